package commands

import (
	"context"
	"time"

	"github.com/wolfeidau/assetpipe/internal/watch"
)

type WatchCmd struct {
	Overrides Overrides `embed:""`

	Debounce time.Duration `help:"Quiet period before rebuilding." default:"100ms" env:"ASSETPIPE_DEBOUNCE"`
	Retries  uint          `help:"Attempts for rebuilds failing on a missing file." default:"3"`
}

func (c *WatchCmd) Run(ctx context.Context, globals *Globals) error {
	log, flush := setup(ctx, globals)
	defer flush()

	pipeline, err := newPipeline(globals, c.Overrides, "")
	if err != nil {
		return err
	}

	cfg := pipeline.Config()
	log.Info().Str("root", cfg.RootPath()).Strs("stages", pipeline.Stages()).Msg("Starting watch")

	return watch.New(pipeline, watch.Config{
		Root:     cfg.RootPath(),
		Ignore:   []string{cfg.OutputPath()},
		Debounce: c.Debounce,
		MaxTries: c.Retries,
	}).Run(ctx)
}
