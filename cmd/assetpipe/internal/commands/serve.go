package commands

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/assetpipe/internal/assets"
	httpmiddleware "github.com/wolfeidau/assetpipe/internal/http"
	"github.com/wolfeidau/assetpipe/internal/logger"
	"github.com/wolfeidau/assetpipe/internal/watch"
)

type ServeCmd struct {
	Overrides Overrides `embed:""`

	Listen      string   `help:"HTTP server listen address" default:"127.0.0.1:5173" env:"ASSETPIPE_LISTEN"`
	CORSOrigins []string `help:"origins allowed to load assets, e.g. the backend rendering the pages" default:"http://localhost:8000" env:"ASSETPIPE_CORS_ORIGINS"`
	NoBuild     bool     `help:"serve the existing output without building first" env:"ASSETPIPE_NO_BUILD"`
	Watch       bool     `help:"rebuild on change while serving" env:"ASSETPIPE_WATCH"`
	Templates   string   `help:"directory of *.html page templates rendered at /" type:"existingdir" env:"ASSETPIPE_TEMPLATES"`
	Page        string   `help:"template rendered at /" default:"index.html"`
	PageEntry   string   `help:"entry whose tags the page template receives" default:"test"`
}

func (c *ServeCmd) Run(ctx context.Context, globals *Globals) error {
	log, flush := setup(ctx, globals)
	defer flush()

	pipeline, err := newPipeline(globals, c.Overrides, c.Templates)
	if err != nil {
		return err
	}
	cfg := pipeline.Config()

	switch {
	case c.Watch:
		w := watch.New(pipeline, watch.Config{
			Root:   cfg.RootPath(),
			Ignore: []string{cfg.OutputPath()},
		})
		go func() {
			if err := w.Run(ctx); err != nil {
				log.Error().Err(err).Msg("Watcher stopped")
			}
		}()
	case c.NoBuild:
		if err := pipeline.LoadManifest(); err != nil {
			return err
		}
	default:
		if _, err := pipeline.Build(ctx); err != nil {
			return err
		}
	}

	handler, err := c.handler(pipeline, cfg, log)
	if err != nil {
		return err
	}

	srv := configureHTTPServer(c.Listen, handler)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Failed to shutdown server")
		}
	}()

	log.Info().
		Str("addr", c.Listen).
		Str("base", cfg.BasePublicPath).
		Str("dir", cfg.OutputPath()).
		Bool("watch", c.Watch).
		Msg("Starting HTTP server")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (c *ServeCmd) handler(pipeline *assets.Pipeline, cfg assets.Config, log zerolog.Logger) (http.Handler, error) {
	mux := http.NewServeMux()

	prefix := basePath(cfg.BasePublicPath)
	static := httpmiddleware.CacheControl(cfg.ManifestFileName)(httpmiddleware.StaticHandler(cfg.OutputPath()))
	mux.Handle(prefix, http.StripPrefix(strings.TrimSuffix(prefix, "/"), static))

	if c.Templates != "" {
		page, err := pipeline.Handler(c.Page, "assetpipe", c.PageEntry, nil)
		if err != nil {
			return nil, err
		}
		mux.HandleFunc("/{$}", page)
	}

	return withCORS(c.CORSOrigins, logger.NewHTTPRequests(log).Wrap(mux)), nil
}

// basePath reduces an absolute base URL to the path the server mounts assets on
func basePath(base string) string {
	if u, err := url.Parse(base); err == nil && u.Scheme != "" {
		base = u.Path
	}
	if !strings.HasPrefix(base, "/") {
		base = "/" + base
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base
}

// withCORS lets pages served from another origin load module scripts
func withCORS(allowedOrigins []string, h http.Handler) http.Handler {
	middleware := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodHead},
	})
	return middleware.Handler(h)
}
