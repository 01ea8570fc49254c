package commands

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/assetpipe/internal/assets"
	"github.com/wolfeidau/assetpipe/internal/logger"
	"github.com/wolfeidau/assetpipe/internal/telemetry"
	"github.com/wolfeidau/assetpipe/internal/transform"
)

type Globals struct {
	Debug     bool
	Config    string
	Telemetry bool
	Version   string
}

// Overrides are flags shared by commands that build
type Overrides struct {
	OutputDir      string `help:"Override the output directory." env:"ASSETPIPE_OUTPUT_DIR"`
	BasePublicPath string `help:"Override the base public path." env:"ASSETPIPE_BASE_PUBLIC_PATH"`
	Minify         bool   `help:"Minify output regardless of the config file." env:"ASSETPIPE_MINIFY"`
}

func (o Overrides) apply(cfg *assets.Config) {
	if o.OutputDir != "" {
		cfg.OutputDir = o.OutputDir
	}
	if o.BasePublicPath != "" {
		cfg.BasePublicPath = o.BasePublicPath
	}
	if o.Minify {
		cfg.Minify = true
	}
}

// setup configures logging and, when enabled, telemetry; the returned func flushes telemetry
func setup(ctx context.Context, globals *Globals) (zerolog.Logger, func()) {
	log := logger.Setup(globals.Debug)

	if !globals.Telemetry {
		return log, func() {}
	}

	shutdown, err := telemetry.InitTelemetry(ctx, telemetry.Options{
		ServiceName: "assetpipe",
		Version:     globals.Version,
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without it")
		return log, func() {}
	}

	return log, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Failed to shutdown telemetry")
		}
	}
}

// loadConfig reads the config file, falling back to defaults when the file does not exist
func loadConfig(globals *Globals, overrides Overrides) (assets.Config, error) {
	cfg, err := assets.LoadConfig(globals.Config)
	if errors.Is(err, fs.ErrNotExist) {
		cfg, err = assets.DefaultConfig(), nil
	}
	if err != nil {
		return assets.Config{}, err
	}

	overrides.apply(&cfg)
	if err := cfg.Validate(); err != nil {
		return assets.Config{}, err
	}
	return cfg, nil
}

// newPipeline loads the configuration and builds its declared stages
func newPipeline(globals *Globals, overrides Overrides, templateDir string) (*assets.Pipeline, error) {
	cfg, err := loadConfig(globals, overrides)
	if err != nil {
		return nil, err
	}

	stages, err := transform.New(cfg)
	if err != nil {
		return nil, err
	}

	if templateDir != "" {
		return assets.NewWithTemplateDir(cfg, templateDir, stages...)
	}
	return assets.New(cfg, stages...), nil
}

func configureHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       time.Minute,
		WriteTimeout:      time.Minute,
		IdleTimeout:       5 * time.Minute,
		MaxHeaderBytes:    8 * 1024, // 8KiB
	}
}

func printf(format string, args ...any) {
	fmt.Fprintf(os.Stdout, format, args...)
}
