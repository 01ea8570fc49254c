package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/wolfeidau/assetpipe/cmd/assetpipe/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Debug     bool   `help:"Enable debug mode."`
		Config    string `help:"Path to the YAML config file." default:"assetpipe.yaml" env:"ASSETPIPE_CONFIG" type:"path"`
		Telemetry bool   `help:"Export traces and metrics over OTLP." env:"ASSETPIPE_TELEMETRY"`
		Version   kong.VersionFlag

		Build    commands.BuildCmd    `cmd:"" help:"Bundle every entry and write the manifest."`
		Watch    commands.WatchCmd    `cmd:"" help:"Rebuild whenever a source file changes."`
		Serve    commands.ServeCmd    `cmd:"" help:"Serve built assets, optionally rebuilding on change."`
		Verify   commands.VerifyCmd   `cmd:"" help:"Evaluate a built entry and report its console output and globals."`
		Manifest commands.ManifestCmd `cmd:"" help:"Print the manifest or the tags for one entry."`
	}
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd := kong.Parse(&cli,
		kong.Name("assetpipe"),
		kong.Description("Static asset build pipeline: entries, ordered transform stages, hashed outputs and a manifest."),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{
		Debug:     cli.Debug,
		Config:    cli.Config,
		Telemetry: cli.Telemetry,
		Version:   version,
	})
	cmd.FatalIfErrorf(err)
}
