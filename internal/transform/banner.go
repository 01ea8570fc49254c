package transform

import (
	"context"
	"errors"
	"strings"

	"github.com/wolfeidau/assetpipe/internal/assets"
	"gopkg.in/yaml.v3"
)

type BannerOptions struct {
	Text       string   `yaml:"text"`
	Extensions []string `yaml:"extensions"`
}

// Banner prepends a comment to matching project sources
type Banner struct {
	opts BannerOptions
}

func newBannerFromNode(_ assets.Config, node *yaml.Node) (assets.Stage, error) {
	var opts BannerOptions
	if err := decodeOptions(node, &opts); err != nil {
		return nil, err
	}
	return NewBanner(opts)
}

func NewBanner(opts BannerOptions) (*Banner, error) {
	if opts.Text == "" {
		return nil, errors.New("banner text is required")
	}
	if strings.Contains(opts.Text, "*/") {
		return nil, errors.New("banner text must not contain */")
	}
	if len(opts.Extensions) == 0 {
		opts.Extensions = []string{".js", ".css"}
	}
	return &Banner{opts: opts}, nil
}

func (b *Banner) Name() string { return "banner" }

func (b *Banner) Capabilities() assets.Capabilities {
	return assets.Capabilities{RewriteContent: true}
}

func (b *Banner) Match(path string) bool {
	return hasExt(path, b.opts.Extensions) && !inNodeModules(path)
}

func (b *Banner) Transform(_ context.Context, src assets.Source) (assets.Result, error) {
	header := "/*! " + b.opts.Text + " */\n"
	return assets.Result{Contents: append([]byte(header), src.Contents...)}, nil
}
