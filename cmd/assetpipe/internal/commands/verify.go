package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/wolfeidau/assetpipe/internal/assets"
	"github.com/wolfeidau/assetpipe/internal/runtime"
)

type VerifyCmd struct {
	Overrides Overrides `embed:""`

	Entry   string   `arg:"" help:"Entry to evaluate."`
	Expect  []string `help:"Globals the entry must define."`
	Rebuild bool     `help:"Build before verifying."`
}

func (c *VerifyCmd) Run(ctx context.Context, globals *Globals) error {
	log, flush := setup(ctx, globals)
	defer flush()

	pipeline, err := newPipeline(globals, c.Overrides, "")
	if err != nil {
		return err
	}
	cfg := pipeline.Config()

	if c.Rebuild {
		if _, err := pipeline.Build(ctx); err != nil {
			return err
		}
	} else if err := pipeline.LoadManifest(); err != nil {
		return err
	}

	m, err := pipeline.Manifest()
	if err != nil {
		return err
	}
	entry, ok := m[c.Entry]
	if !ok {
		return fmt.Errorf("%w: %s", assets.ErrEntryNotFound, c.Entry)
	}
	if len(entry.Imports) > 0 || cfg.Format != assets.FormatIIFE {
		return fmt.Errorf("entry %s must be built with format iife to be evaluated", c.Entry)
	}

	script, err := os.ReadFile(filepath.Join(cfg.OutputPath(), filepath.FromSlash(entry.File)))
	if err != nil {
		return err
	}

	report, err := runtime.Run(ctx, entry.File, string(script))
	if err != nil {
		return err
	}

	for _, line := range report.Console {
		printf("console: %s\n", line)
	}
	printf("globals: %v\n", report.Globals)

	defined := map[string]bool{}
	for _, name := range report.Globals {
		defined[name] = true
	}
	for _, name := range c.Expect {
		if !defined[name] {
			return fmt.Errorf("entry %s did not define global %q", c.Entry, name)
		}
	}

	log.Info().Str("entry", c.Entry).Strs("globals", report.Globals).Msg("Entry verified")
	return nil
}
