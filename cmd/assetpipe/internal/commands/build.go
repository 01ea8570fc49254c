package commands

import (
	"context"
)

type BuildCmd struct {
	Overrides Overrides `embed:""`
}

func (c *BuildCmd) Run(ctx context.Context, globals *Globals) error {
	log, flush := setup(ctx, globals)
	defer flush()

	pipeline, err := newPipeline(globals, c.Overrides, "")
	if err != nil {
		return err
	}

	cfg := pipeline.Config()
	log.Info().
		Str("version", globals.Version).
		Str("root", cfg.RootPath()).
		Strs("stages", pipeline.Stages()).
		Msg("Starting build")

	result, err := pipeline.Build(ctx)
	if err != nil {
		return err
	}

	for _, name := range result.Manifest.Entries() {
		log.Info().Str("entry", name).Str("file", result.Manifest[name].File).Msg("Entry built")
	}
	return nil
}
