package assets

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"gopkg.in/yaml.v3"
)

const (
	FormatESM  = "esm"
	FormatIIFE = "iife"

	EncodingGzip = "gzip"
	EncodingZstd = "zstd"
)

var entryNameRe = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.-]*$`)

var targets = map[string]api.Target{
	"es2015": api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
	"es2023": api.ES2023,
	"esnext": api.ESNext,
}

type Config struct {
	// Root directory that entry paths, content globs and the output directory are relative to
	Root string `yaml:"root"`
	// Prefix prepended to every emitted asset URL (e.g., "/static/")
	BasePublicPath string `yaml:"base_public_path"`
	// Output directory for built files, owned and overwritten by every build
	OutputDir string `yaml:"output_dir"`
	// Name of the manifest written inside OutputDir
	ManifestFileName string `yaml:"manifest_file_name"`
	// Logical entry name to source path
	Entries map[string]string `yaml:"entries"`
	// Ordered transform stages
	Plugins []PluginConfig `yaml:"plugins"`
	// Output module format, esm or iife
	Format string `yaml:"format"`
	// Language target passed to esbuild (e.g., "es2020")
	Target string `yaml:"target"`
	// Import paths left out of the bundle
	External []string `yaml:"external"`
	// Whether to minify output
	Minify bool `yaml:"minify"`
	// Whether to enable source maps
	SourceMap bool `yaml:"source_map"`
	// Precompressed side files to write next to text outputs (gzip, zstd)
	Precompress []string `yaml:"precompress"`
}

// PluginConfig declares one transform stage; Options is decoded by the stage factory.
type PluginConfig struct {
	Name    string    `yaml:"name"`
	Options yaml.Node `yaml:"options"`
}

// DefaultConfig returns the configuration used when no config file is present
func DefaultConfig() Config {
	return Config{
		Root:             ".",
		BasePublicPath:   "/static/",
		OutputDir:        "assets",
		ManifestFileName: "manifest.json",
		Entries: map[string]string{
			"test": "static/js/main.js",
		},
		Format: FormatESM,
		Target: "es2020",
	}
}

// LoadConfig reads a YAML config file, relative roots are resolved against the file's directory
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, &ConfigurationError{Path: path, Err: err}
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, &ConfigurationError{Path: path, Err: fmt.Errorf("failed to parse config: %w", err)}
	}

	defaults := DefaultConfig()
	if cfg.Root == "" {
		cfg.Root = "."
	}
	if !filepath.IsAbs(cfg.Root) {
		cfg.Root = filepath.Join(filepath.Dir(path), cfg.Root)
	}
	if cfg.BasePublicPath == "" {
		cfg.BasePublicPath = defaults.BasePublicPath
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = defaults.OutputDir
	}
	if cfg.ManifestFileName == "" {
		cfg.ManifestFileName = defaults.ManifestFileName
	}
	if cfg.Entries == nil {
		cfg.Entries = defaults.Entries
	}
	if cfg.Format == "" {
		cfg.Format = defaults.Format
	}
	if cfg.Target == "" {
		cfg.Target = defaults.Target
	}

	return cfg, nil
}

// Validate checks the configuration and normalises the base public path
func (c *Config) Validate() error {
	if c.BasePublicPath == "" {
		return &ConfigurationError{Path: "base_public_path", Err: fmt.Errorf("must not be empty")}
	}
	c.BasePublicPath = normaliseBase(c.BasePublicPath)

	if c.OutputDir == "" {
		return &ConfigurationError{Path: "output_dir", Err: fmt.Errorf("must not be empty")}
	}

	if c.ManifestFileName == "" || filepath.Base(c.ManifestFileName) != c.ManifestFileName {
		return &ConfigurationError{Path: "manifest_file_name", Err: fmt.Errorf("%q must be a plain file name", c.ManifestFileName)}
	}

	if len(c.Entries) == 0 {
		return &ConfigurationError{Path: "entries", Err: fmt.Errorf("at least one entry is required")}
	}

	outDir := c.OutputPath()
	if outDir == c.RootPath() {
		return &ConfigurationError{Path: outDir, Err: fmt.Errorf("output directory must not be the project root")}
	}

	for name, source := range c.Entries {
		if !entryNameRe.MatchString(name) {
			return &ConfigurationError{Path: "entries", Err: fmt.Errorf("invalid entry name %q", name)}
		}
		if source == "" {
			return &ConfigurationError{Path: "entries." + name, Err: fmt.Errorf("source path must not be empty")}
		}
		if isWithin(outDir, c.AbsPath(source)) {
			return &ConfigurationError{Path: outDir, Err: fmt.Errorf("entry %q lives inside the output directory", name)}
		}
	}

	switch c.Format {
	case FormatESM, FormatIIFE:
	default:
		return &ConfigurationError{Path: "format", Err: fmt.Errorf("unsupported format %q", c.Format)}
	}

	if _, ok := targets[strings.ToLower(c.Target)]; !ok {
		return &ConfigurationError{Path: "target", Err: fmt.Errorf("unsupported target %q", c.Target)}
	}

	for _, enc := range c.Precompress {
		if enc != EncodingGzip && enc != EncodingZstd {
			return &ConfigurationError{Path: "precompress", Err: fmt.Errorf("unsupported encoding %q", enc)}
		}
	}

	for i, p := range c.Plugins {
		if p.Name == "" {
			return &ConfigurationError{Path: fmt.Sprintf("plugins[%d]", i), Err: fmt.Errorf("plugin name is required")}
		}
	}

	return nil
}

// EntryNames returns the logical entry names in sorted order
func (c Config) EntryNames() []string {
	names := make([]string, 0, len(c.Entries))
	for name := range c.Entries {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// RootPath returns the absolute project root
func (c Config) RootPath() string {
	root := c.Root
	if root == "" {
		root = "."
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return filepath.Clean(root)
	}
	return abs
}

// AbsPath resolves p against the project root
func (c Config) AbsPath(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(c.RootPath(), p)
}

// OutputPath returns the absolute output directory
func (c Config) OutputPath() string {
	return c.AbsPath(c.OutputDir)
}

// ManifestPath returns the absolute path of the manifest file
func (c Config) ManifestPath() string {
	return filepath.Join(c.OutputPath(), c.ManifestFileName)
}

// SourcePath returns the absolute source path for a logical entry name
func (c Config) SourcePath(name string) (string, bool) {
	source, ok := c.Entries[name]
	if !ok {
		return "", false
	}
	return c.AbsPath(source), true
}

func (c Config) target() api.Target {
	return targets[strings.ToLower(c.Target)]
}

func normaliseBase(base string) string {
	if !strings.Contains(base, "://") && !strings.HasPrefix(base, "/") {
		base = "/" + base
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base
}

// isWithin reports whether path is dir or lives below it
func isWithin(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
