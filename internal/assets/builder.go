package assets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/assetpipe/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// BuildResult describes one successful build
type BuildResult struct {
	ID       string
	Manifest Manifest
	// Files written, relative to the output directory, manifest excluded
	Files    []string
	Duration time.Duration
}

type emittedOutput struct {
	name     string
	file     string
	src      string
	plugin   string
	contents []byte
}

var assetLoaders = map[string]api.Loader{
	".png":   api.LoaderFile,
	".jpg":   api.LoaderFile,
	".jpeg":  api.LoaderFile,
	".gif":   api.LoaderFile,
	".svg":   api.LoaderFile,
	".webp":  api.LoaderFile,
	".avif":  api.LoaderFile,
	".ico":   api.LoaderFile,
	".woff":  api.LoaderFile,
	".woff2": api.LoaderFile,
	".ttf":   api.LoaderFile,
	".eot":   api.LoaderFile,
}

// Build bundles every entry, writes the outputs and finally the manifest. Nothing is written
// unless every entry resolves and every stage succeeds.
func (p *Pipeline) Build(ctx context.Context) (*BuildResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	buildID := uuid.New().String()
	started := time.Now()

	ctx, span := telemetry.Tracer().Start(ctx, "assets.Build", trace.WithAttributes(
		attribute.String("build.id", buildID),
		attribute.Int("build.entries", len(p.config.Entries)),
	))
	defer span.End()

	result, err := p.build(ctx, buildID)

	metrics := telemetry.GetMetrics()
	status := attribute.String("status", buildStatus(err))
	metrics.BuildsTotal.Add(ctx, 1, metric.WithAttributes(status))
	metrics.BuildDuration.Record(ctx, float64(time.Since(started).Milliseconds()), metric.WithAttributes(status))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error().Err(err).Str("build_id", buildID).Msg("Build failed")
		return nil, err
	}

	result.Duration = time.Since(started)
	p.manifest = result.Manifest

	log.Info().
		Str("build_id", buildID).
		Int("files", len(result.Files)).
		Dur("duration", result.Duration).
		Str("manifest", p.config.ManifestPath()).
		Msg("Built assets")

	return result, nil
}

func (p *Pipeline) build(ctx context.Context, buildID string) (*BuildResult, error) {
	cfg := p.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p.config = cfg

	outDir := cfg.OutputPath()
	if err := ensureWritable(outDir); err != nil {
		return nil, err
	}

	// outputs are assembled next to outDir and swapped in once complete
	staging, err := os.MkdirTemp(filepath.Dir(outDir), "."+filepath.Base(outDir)+"-build-*")
	if err != nil {
		return nil, &ConfigurationError{Path: outDir, Err: err}
	}
	defer os.RemoveAll(staging)

	entryPoints := make([]api.EntryPoint, 0, len(cfg.Entries))
	for _, name := range cfg.EntryNames() {
		source, _ := cfg.SourcePath(name)
		info, err := os.Stat(source)
		if err != nil {
			return nil, &ResolutionError{Path: cfg.Entries[name], Err: err}
		}
		if info.IsDir() {
			return nil, &ResolutionError{Path: cfg.Entries[name], Err: errors.New("entry is a directory")}
		}
		entryPoints = append(entryPoints, api.EntryPoint{InputPath: source, OutputPath: name})
	}

	log.Info().
		Str("build_id", buildID).
		Strs("entrypoints", cfg.EntryNames()).
		Int("stages", len(p.stages)).
		Msg("Building assets")

	run := newBuildRun(cfg.RootPath(), p.stages)
	esm := cfg.Format == FormatESM

	result := api.Build(api.BuildOptions{
		AbsWorkingDir:       cfg.RootPath(),
		EntryPointsAdvanced: entryPoints,
		Bundle:              true,
		Splitting:           esm,
		Write:               false,
		Outdir:              outDir,
		EntryNames:          "[name]-[hash]",
		ChunkNames:          "chunks/[name]-[hash]",
		AssetNames:          "assets/[name]-[hash]",
		PublicPath:          cfg.BasePublicPath,
		Format:              cond(esm, api.FormatESModule, api.FormatIIFE),
		Platform:            api.PlatformBrowser,
		Target:              cfg.target(),
		External:            cfg.External,
		Loader:              assetLoaders,
		MinifyWhitespace:    cfg.Minify,
		MinifyIdentifiers:   cfg.Minify,
		MinifySyntax:        cfg.Minify,
		TreeShaking:         api.TreeShakingTrue,
		Sourcemap:           cond(cfg.SourceMap, api.SourceMapLinked, api.SourceMapNone),
		Metafile:            true,
		LogLevel:            api.LogLevelSilent,
		Plugins:             []api.Plugin{run.esbuildPlugin(ctx)},
	})

	if len(result.Errors) > 0 {
		for _, msg := range api.FormatMessages(result.Errors, api.FormatMessagesOptions{Kind: api.ErrorMessage}) {
			log.Error().Str("build_id", buildID).Str("error", strings.TrimSpace(msg)).Msg("Build error")
		}
		if err := run.err(); err != nil {
			return nil, err
		}
		return nil, classify(result.Errors[0], run)
	}
	if err := run.err(); err != nil {
		return nil, err
	}

	for _, msg := range result.Warnings {
		log.Warn().Str("build_id", buildID).Str("warning", msg.Text).Msg("Build warning")
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	emitted := make([]emittedOutput, 0)
	for _, e := range run.emittedFiles() {
		emitted = append(emitted, emittedOutput{
			name:     e.file.Name,
			file:     hashedName(e.file.Name, e.file.Contents),
			src:      e.src,
			plugin:   e.plugin,
			contents: e.file.Contents,
		})
	}

	manifest, err := buildManifest(result.Metafile, cfg, emitted)
	if err != nil {
		if errors.Is(err, ErrConfiguration) || errors.Is(err, ErrTransform) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to derive manifest from metafile: %w", err)
	}

	files, err := p.writeOutputs(outDir, staging, result.OutputFiles, emitted)
	if err != nil {
		return nil, err
	}

	if err := manifest.Write(staging, cfg.ManifestFileName); err != nil {
		return nil, &ConfigurationError{Path: cfg.ManifestPath(), Err: err}
	}

	if err := swapDir(staging, outDir); err != nil {
		return nil, &ConfigurationError{Path: outDir, Err: err}
	}

	return &BuildResult{ID: buildID, Manifest: manifest, Files: files}, nil
}

// writeOutputs writes every output into staging, mirroring its place under outDir
func (p *Pipeline) writeOutputs(outDir, staging string, outputs []api.OutputFile, emitted []emittedOutput) ([]string, error) {
	metrics := telemetry.GetMetrics()
	files := make([]string, 0, len(outputs)+len(emitted))

	write := func(target string, contents []byte) error {
		rel, err := filepath.Rel(outDir, target)
		if err != nil || !filepath.IsLocal(rel) {
			return &ConfigurationError{Path: target, Err: fmt.Errorf("output escapes %s", outDir)}
		}
		path := filepath.Join(staging, rel)

		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return &ConfigurationError{Path: path, Err: err}
		}
		if err := os.WriteFile(path, contents, 0o644); err != nil { //nolint:gosec
			return &ConfigurationError{Path: path, Err: err}
		}
		if err := precompress(path, contents, p.config.Precompress); err != nil {
			return &ConfigurationError{Path: path, Err: err}
		}

		files = append(files, filepath.ToSlash(rel))
		metrics.OutputBytes.Add(context.Background(), int64(len(contents)))
		log.Debug().Str("file", target).Int("bytes", len(contents)).Msg("Built file")
		return nil
	}

	for _, out := range outputs {
		if err := write(out.Path, out.Contents); err != nil {
			return nil, err
		}
	}
	for _, e := range emitted {
		if err := write(filepath.Join(outDir, filepath.FromSlash(e.file)), e.contents); err != nil {
			return nil, err
		}
	}

	return files, nil
}

// classify maps an esbuild message onto the error taxonomy
func classify(msg api.Message, run *buildRun) error {
	file := ""
	if msg.Location != nil {
		file = msg.Location.File
	}

	if rest, ok := strings.CutPrefix(msg.Text, "Could not resolve "); ok {
		target, err := strconv.Unquote(strings.TrimSpace(rest))
		if err != nil {
			target = rest
		}
		return &ResolutionError{Path: target, Importer: file, Err: errors.New(msg.Text)}
	}

	plugin := msg.PluginName
	if plugin == "" {
		plugin = "esbuild"
	}
	if file == "" {
		file = run.root
	}
	return &TransformError{Path: file, Plugin: plugin, Err: errors.New(msg.Text)}
}

// ensureWritable creates dir if needed and proves a file can be written inside it
func ensureWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &ConfigurationError{Path: dir, Err: err}
	}
	probe, err := os.CreateTemp(dir, ".assetpipe-probe-*")
	if err != nil {
		return &ConfigurationError{Path: dir, Err: err}
	}
	name := probe.Name()
	if err := probe.Close(); err != nil {
		return &ConfigurationError{Path: dir, Err: err}
	}
	return os.Remove(name)
}

// swapDir moves a fully written staging directory into place, restoring the previous dir if that fails
func swapDir(staging, dir string) error {
	previous := staging + "-previous"
	if err := os.Rename(dir, previous); err != nil {
		return err
	}
	if err := os.Rename(staging, dir); err != nil {
		if restoreErr := os.Rename(previous, dir); restoreErr != nil {
			return errors.Join(err, restoreErr)
		}
		return err
	}
	if err := os.RemoveAll(previous); err != nil {
		log.Warn().Err(err).Str("dir", previous).Msg("Failed to remove previous build")
	}
	return nil
}

func buildStatus(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrConfiguration):
		return "configuration_error"
	case errors.Is(err, ErrResolution):
		return "resolution_error"
	case errors.Is(err, ErrTransform):
		return "transform_error"
	default:
		return "error"
	}
}

func cond[T any](condition bool, trueVal, falseVal T) T {
	if condition {
		return trueVal
	}
	return falseVal
}
