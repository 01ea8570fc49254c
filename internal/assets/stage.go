package assets

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/rs/zerolog/log"
)

const (
	pluginName       = "assetpipe-stages"
	virtualNamespace = "virtual"
	virtualPrefix    = "virtual:"

	// sources handed to stages, everything else is loaded by esbuild untouched
	sourceFilter = `\.(m?js|cjs|jsx|m?ts|cts|tsx|css|json)$`
)

// Capabilities lists what a stage is allowed to do with a source file
type Capabilities struct {
	RewriteContent     bool
	EmitVirtualModules bool
	EmitFiles          bool
}

func (c Capabilities) String() string {
	var parts []string
	if c.RewriteContent {
		parts = append(parts, "rewrite")
	}
	if c.EmitVirtualModules {
		parts = append(parts, "virtual-modules")
	}
	if c.EmitFiles {
		parts = append(parts, "emit-files")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ",")
}

// Source is a file as seen by a stage, Contents already carries the output of earlier stages
type Source struct {
	// Absolute path on disk
	Path string
	// Path relative to the project root, slash separated
	RelPath  string
	Contents []byte
}

// Result of a stage; zero values mean "nothing changed"
type Result struct {
	// Replacement contents, nil keeps the input
	Contents []byte
	// Modules importable as "virtual:<name>"
	VirtualModules map[string]string
	// Auxiliary files written next to the bundle and recorded in the manifest
	Files []EmittedFile
}

// EmittedFile is an auxiliary output, Name is its logical manifest key (e.g., "utilities.css")
type EmittedFile struct {
	Name     string
	Contents []byte
}

// Stage is one pure transform step in the ordered pipeline
type Stage interface {
	Name() string
	Capabilities() Capabilities
	Match(path string) bool
	Transform(ctx context.Context, src Source) (Result, error)
}

type emitted struct {
	file   EmittedFile
	src    string
	plugin string
}

// buildRun collects stage side effects for a single build, esbuild calls back concurrently
type buildRun struct {
	root   string
	stages []Stage

	mu      sync.Mutex
	virtual map[string]string
	files   map[string]emitted
	failure error
}

func newBuildRun(root string, stages []Stage) *buildRun {
	return &buildRun{
		root:    root,
		stages:  stages,
		virtual: make(map[string]string),
		files:   make(map[string]emitted),
	}
}

// fail records the first structured failure so it can be returned instead of esbuild's flattened message
func (r *buildRun) fail(err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failure == nil {
		r.failure = err
	}
	return err
}

func (r *buildRun) err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failure
}

func (r *buildRun) virtualModule(name string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	contents, ok := r.virtual[strings.TrimPrefix(name, virtualPrefix)]
	return contents, ok
}

func (r *buildRun) emittedFiles() []emitted {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := slices.Sorted(maps.Keys(r.files))
	out := make([]emitted, 0, len(names))
	for _, name := range names {
		out = append(out, r.files[name])
	}
	return out
}

func (r *buildRun) record(stage Stage, relPath string, res Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, contents := range res.VirtualModules {
		if existing, ok := r.virtual[name]; ok && existing != contents {
			return fmt.Errorf("virtual module %q registered twice with different contents", name)
		}
		r.virtual[name] = contents
	}

	for _, f := range res.Files {
		if f.Name == "" || filepath.Base(f.Name) != f.Name {
			return fmt.Errorf("emitted file name %q must be a plain file name", f.Name)
		}
		if existing, ok := r.files[f.Name]; ok && !bytes.Equal(existing.file.Contents, f.Contents) {
			return fmt.Errorf("file %q emitted twice with different contents", f.Name)
		}
		r.files[f.Name] = emitted{file: f, src: relPath, plugin: stage.Name()}
	}

	return nil
}

// load runs every matching stage over path in declared order
func (r *buildRun) load(ctx context.Context, path string) (api.OnLoadResult, error) {
	var matched []Stage
	for _, st := range r.stages {
		if st.Match(path) {
			matched = append(matched, st)
		}
	}
	if len(matched) == 0 {
		return api.OnLoadResult{}, nil
	}

	relPath := r.rel(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return api.OnLoadResult{}, r.fail(&ResolutionError{Path: relPath, Err: err})
	}

	src := Source{Path: path, RelPath: relPath, Contents: data}
	for _, st := range matched {
		if err := ctx.Err(); err != nil {
			return api.OnLoadResult{}, r.fail(err)
		}

		res, err := st.Transform(ctx, src)
		if err != nil {
			return api.OnLoadResult{}, r.fail(&TransformError{Path: relPath, Plugin: st.Name(), Err: err})
		}

		if err := checkCapabilities(st.Capabilities(), src, res); err != nil {
			return api.OnLoadResult{}, r.fail(&TransformError{Path: relPath, Plugin: st.Name(), Err: err})
		}

		if err := r.record(st, relPath, res); err != nil {
			return api.OnLoadResult{}, r.fail(&TransformError{Path: relPath, Plugin: st.Name(), Err: err})
		}

		if res.Contents != nil {
			src.Contents = res.Contents
		}

		log.Debug().Str("path", relPath).Str("plugin", st.Name()).Msg("Applied stage")
	}

	contents := string(src.Contents)
	return api.OnLoadResult{
		Contents: &contents,
		Loader:   loaderFor(path),
	}, nil
}

func (r *buildRun) rel(path string) string {
	rel, err := filepath.Rel(r.root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

func checkCapabilities(caps Capabilities, src Source, res Result) error {
	if res.Contents != nil && !caps.RewriteContent && !bytes.Equal(res.Contents, src.Contents) {
		return fmt.Errorf("%w: rewrite content", ErrCapability)
	}
	if len(res.VirtualModules) > 0 && !caps.EmitVirtualModules {
		return fmt.Errorf("%w: emit virtual modules", ErrCapability)
	}
	if len(res.Files) > 0 && !caps.EmitFiles {
		return fmt.Errorf("%w: emit files", ErrCapability)
	}
	return nil
}

// esbuildPlugin adapts the stage pipeline to a single esbuild plugin
func (r *buildRun) esbuildPlugin(ctx context.Context) api.Plugin {
	return api.Plugin{
		Name: pluginName,
		Setup: func(pb api.PluginBuild) {
			pb.OnResolve(api.OnResolveOptions{Filter: `^` + virtualPrefix}, func(args api.OnResolveArgs) (api.OnResolveResult, error) {
				if _, ok := r.virtualModule(args.Path); !ok {
					return api.OnResolveResult{}, r.fail(&ResolutionError{
						Path:     args.Path,
						Importer: r.rel(args.Importer),
						Err:      errors.New("virtual module was not registered by any stage"),
					})
				}
				return api.OnResolveResult{Path: args.Path, Namespace: virtualNamespace}, nil
			})

			pb.OnLoad(api.OnLoadOptions{Filter: `.*`, Namespace: virtualNamespace}, func(args api.OnLoadArgs) (api.OnLoadResult, error) {
				contents, _ := r.virtualModule(args.Path)
				return api.OnLoadResult{
					Contents:   &contents,
					ResolveDir: r.root,
					Loader:     api.LoaderJS,
				}, nil
			})

			pb.OnLoad(api.OnLoadOptions{Filter: sourceFilter, Namespace: "file"}, func(args api.OnLoadArgs) (api.OnLoadResult, error) {
				return r.load(ctx, args.Path)
			})
		},
	}
}

func loaderFor(path string) api.Loader {
	switch filepath.Ext(path) {
	case ".css":
		return api.LoaderCSS
	case ".json":
		return api.LoaderJSON
	case ".ts", ".mts", ".cts":
		return api.LoaderTS
	case ".tsx":
		return api.LoaderTSX
	case ".jsx":
		return api.LoaderJSX
	default:
		return api.LoaderJS
	}
}
