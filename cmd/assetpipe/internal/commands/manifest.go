package commands

import (
	"context"
	"encoding/json"

	"github.com/wolfeidau/assetpipe/internal/assets"
)

type ManifestCmd struct {
	Overrides Overrides `embed:""`

	Entry string `arg:"" optional:"" help:"Entry to resolve into HTML tags."`
}

func (c *ManifestCmd) Run(ctx context.Context, globals *Globals) error {
	_, flush := setup(ctx, globals)
	defer flush()

	cfg, err := loadConfig(globals, c.Overrides)
	if err != nil {
		return err
	}

	m, err := assets.ReadManifest(cfg.ManifestPath())
	if err != nil {
		return err
	}

	if c.Entry == "" {
		data, err := json.MarshalIndent(m, "", "  ")
		if err != nil {
			return err
		}
		printf("%s\n", data)
		return nil
	}

	tags, err := m.Resolve(c.Entry, cfg.BasePublicPath)
	if err != nil {
		return err
	}
	printf("%s\n", tags.HTML(cfg.Format == assets.FormatESM))
	return nil
}
