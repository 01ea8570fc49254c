package transform

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/gobwas/glob"
	"github.com/wolfeidau/assetpipe/internal/assets"
	"gopkg.in/yaml.v3"
)

var (
	candidateRe = regexp.MustCompile(`[a-z0-9][a-z0-9-]*`)
	skipDirs    = map[string]bool{"node_modules": true, ".git": true}
)

type UtilityCSSOptions struct {
	// Package name in the import directive that is replaced, "tailwindcss" by default
	Directive string `yaml:"directive"`
	// Globs, relative to the root, scanned for class names
	Content []string `yaml:"content"`
	// When set the rules are emitted as a separate stylesheet with this name
	Output string `yaml:"output"`
}

// UtilityCSS replaces `@import "tailwindcss";` with rules for the utility classes actually
// used in the content files. Only a small fixed table of utilities is known.
type UtilityCSS struct {
	opts      UtilityCSSOptions
	root      string
	outDir    string
	directive *regexp.Regexp
	content   []glob.Glob
}

func newUtilityCSSFromNode(cfg assets.Config, node *yaml.Node) (assets.Stage, error) {
	var opts UtilityCSSOptions
	if err := decodeOptions(node, &opts); err != nil {
		return nil, err
	}
	return NewUtilityCSS(cfg, opts)
}

func NewUtilityCSS(cfg assets.Config, opts UtilityCSSOptions) (*UtilityCSS, error) {
	if opts.Directive == "" {
		opts.Directive = "tailwindcss"
	}
	if len(opts.Content) == 0 {
		opts.Content = []string{"**/*.html", "**/*.js"}
	}
	if opts.Output != "" && filepath.Base(opts.Output) != opts.Output {
		return nil, fmt.Errorf("output %q must be a plain file name", opts.Output)
	}

	patterns := make([]glob.Glob, 0, len(opts.Content))
	for _, pattern := range opts.Content {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid content glob %q: %w", pattern, err)
		}
		patterns = append(patterns, g)
	}

	return &UtilityCSS{
		opts:      opts,
		root:      cfg.RootPath(),
		outDir:    cfg.OutputPath(),
		directive: regexp.MustCompile(`@import\s+["']` + regexp.QuoteMeta(opts.Directive) + `["']\s*;?`),
		content:   patterns,
	}, nil
}

func (u *UtilityCSS) Name() string { return "utilitycss" }

func (u *UtilityCSS) Capabilities() assets.Capabilities {
	return assets.Capabilities{RewriteContent: true, EmitFiles: true}
}

func (u *UtilityCSS) Match(path string) bool {
	return filepath.Ext(path) == ".css" && !inNodeModules(path)
}

func (u *UtilityCSS) Transform(ctx context.Context, src assets.Source) (assets.Result, error) {
	if !u.directive.Match(src.Contents) {
		return assets.Result{}, nil
	}

	classes, err := u.scan(ctx)
	if err != nil {
		return assets.Result{}, err
	}
	css := GenerateUtilities(classes)

	if u.opts.Output != "" {
		return assets.Result{
			Contents: u.directive.ReplaceAll(src.Contents, nil),
			Files:    []assets.EmittedFile{{Name: u.opts.Output, Contents: []byte(css)}},
		}, nil
	}

	return assets.Result{
		Contents: u.directive.ReplaceAllLiteral(src.Contents, []byte(css)),
	}, nil
}

// scan collects candidate class names from every content file
func (u *UtilityCSS) scan(ctx context.Context) ([]string, error) {
	seen := map[string]bool{}

	err := filepath.WalkDir(u.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if path != u.root && (skipDirs[d.Name()] || path == u.outDir) {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(u.root, path)
		if err != nil {
			return err
		}
		if !u.matchContent(filepath.ToSlash(rel)) {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		for _, token := range candidateRe.FindAll(data, -1) {
			seen[string(token)] = true
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan content: %w", err)
	}

	classes := make([]string, 0, len(seen))
	for class := range seen {
		classes = append(classes, class)
	}
	return classes, nil
}

// matchContent lets a leading "**/" also match files at the root
func (u *UtilityCSS) matchContent(rel string) bool {
	return slices.ContainsFunc(u.content, func(g glob.Glob) bool {
		return g.Match(rel) || g.Match("/"+rel)
	})
}

var staticUtilities = map[string]string{
	"block":           "display: block;",
	"inline-block":    "display: inline-block;",
	"inline":          "display: inline;",
	"flex":            "display: flex;",
	"inline-flex":     "display: inline-flex;",
	"grid":            "display: grid;",
	"hidden":          "display: none;",
	"flex-row":        "flex-direction: row;",
	"flex-col":        "flex-direction: column;",
	"flex-wrap":       "flex-wrap: wrap;",
	"items-start":     "align-items: flex-start;",
	"items-center":    "align-items: center;",
	"items-end":       "align-items: flex-end;",
	"justify-start":   "justify-content: flex-start;",
	"justify-center":  "justify-content: center;",
	"justify-end":     "justify-content: flex-end;",
	"justify-between": "justify-content: space-between;",
	"text-left":       "text-align: left;",
	"text-center":     "text-align: center;",
	"text-right":      "text-align: right;",
	"text-xs":         "font-size: 0.75rem; line-height: 1rem;",
	"text-sm":         "font-size: 0.875rem; line-height: 1.25rem;",
	"text-base":       "font-size: 1rem; line-height: 1.5rem;",
	"text-lg":         "font-size: 1.125rem; line-height: 1.75rem;",
	"text-xl":         "font-size: 1.25rem; line-height: 1.75rem;",
	"text-2xl":        "font-size: 1.5rem; line-height: 2rem;",
	"text-white":      "color: #fff;",
	"text-black":      "color: #000;",
	"bg-white":        "background-color: #fff;",
	"bg-black":        "background-color: #000;",
	"bg-transparent":  "background-color: transparent;",
	"font-normal":     "font-weight: 400;",
	"font-medium":     "font-weight: 500;",
	"font-semibold":   "font-weight: 600;",
	"font-bold":       "font-weight: 700;",
	"italic":          "font-style: italic;",
	"underline":       "text-decoration-line: underline;",
	"uppercase":       "text-transform: uppercase;",
	"lowercase":       "text-transform: lowercase;",
	"w-full":          "width: 100%;",
	"h-full":          "height: 100%;",
	"w-screen":        "width: 100vw;",
	"h-screen":        "height: 100vh;",
	"mx-auto":         "margin-left: auto; margin-right: auto;",
	"rounded":         "border-radius: 0.25rem;",
	"rounded-md":      "border-radius: 0.375rem;",
	"rounded-lg":      "border-radius: 0.5rem;",
	"rounded-full":    "border-radius: 9999px;",
	"border":          "border-width: 1px;",
	"relative":        "position: relative;",
	"absolute":        "position: absolute;",
	"fixed":           "position: fixed;",
	"sticky":          "position: sticky;",
	"cursor-pointer":  "cursor: pointer;",
}

var spacingUtilities = map[string][]string{
	"p":   {"padding"},
	"px":  {"padding-left", "padding-right"},
	"py":  {"padding-top", "padding-bottom"},
	"pt":  {"padding-top"},
	"pr":  {"padding-right"},
	"pb":  {"padding-bottom"},
	"pl":  {"padding-left"},
	"m":   {"margin"},
	"mx":  {"margin-left", "margin-right"},
	"my":  {"margin-top", "margin-bottom"},
	"mt":  {"margin-top"},
	"mr":  {"margin-right"},
	"mb":  {"margin-bottom"},
	"ml":  {"margin-left"},
	"gap": {"gap"},
	"w":   {"width"},
	"h":   {"height"},
}

// utility returns the declarations for a known class
func utility(class string) (string, bool) {
	if decl, ok := staticUtilities[class]; ok {
		return decl, true
	}

	prefix, size, ok := strings.Cut(class, "-")
	if !ok {
		return "", false
	}
	props, ok := spacingUtilities[prefix]
	if !ok {
		return "", false
	}
	n, err := strconv.Atoi(size)
	if err != nil || n < 0 || n > 96 || strconv.Itoa(n) != size {
		return "", false
	}

	value := "0px"
	if n > 0 {
		value = strconv.FormatFloat(float64(n)*0.25, 'f', -1, 64) + "rem"
	}

	decls := make([]string, 0, len(props))
	for _, prop := range props {
		decls = append(decls, prop+": "+value+";")
	}
	return strings.Join(decls, " "), true
}

// GenerateUtilities renders rules for the known classes among candidates, sorted by class name
func GenerateUtilities(candidates []string) string {
	classes := slices.Clone(candidates)
	slices.Sort(classes)
	classes = slices.Compact(classes)

	var b strings.Builder
	for _, class := range classes {
		decl, ok := utility(class)
		if !ok {
			continue
		}
		fmt.Fprintf(&b, ".%s { %s }\n", class, decl)
	}
	return b.String()
}
