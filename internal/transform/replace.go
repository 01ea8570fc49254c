package transform

import (
	"context"
	"errors"
	"maps"
	"slices"
	"strings"

	"github.com/wolfeidau/assetpipe/internal/assets"
	"gopkg.in/yaml.v3"
)

type ReplaceOptions struct {
	// Literal search string to replacement
	Values     map[string]string `yaml:"values"`
	Extensions []string          `yaml:"extensions"`
}

// Replace substitutes literal strings in matching project sources. Longer keys win over
// keys they contain so the result does not depend on map order.
type Replace struct {
	opts     ReplaceOptions
	replacer *strings.Replacer
}

func newReplaceFromNode(_ assets.Config, node *yaml.Node) (assets.Stage, error) {
	var opts ReplaceOptions
	if err := decodeOptions(node, &opts); err != nil {
		return nil, err
	}
	return NewReplace(opts)
}

func NewReplace(opts ReplaceOptions) (*Replace, error) {
	if len(opts.Values) == 0 {
		return nil, errors.New("at least one value is required")
	}
	if len(opts.Extensions) == 0 {
		opts.Extensions = []string{".js", ".mjs", ".ts", ".jsx", ".tsx"}
	}

	keys := slices.Collect(maps.Keys(opts.Values))
	slices.SortFunc(keys, func(a, b string) int {
		if len(a) != len(b) {
			return len(b) - len(a)
		}
		return strings.Compare(a, b)
	})

	pairs := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		if k == "" {
			return nil, errors.New("replace keys must not be empty")
		}
		pairs = append(pairs, k, opts.Values[k])
	}

	return &Replace{opts: opts, replacer: strings.NewReplacer(pairs...)}, nil
}

func (r *Replace) Name() string { return "replace" }

func (r *Replace) Capabilities() assets.Capabilities {
	return assets.Capabilities{RewriteContent: true}
}

func (r *Replace) Match(path string) bool {
	return hasExt(path, r.opts.Extensions) && !inNodeModules(path)
}

func (r *Replace) Transform(_ context.Context, src assets.Source) (assets.Result, error) {
	return assets.Result{Contents: []byte(r.replacer.Replace(string(src.Contents)))}, nil
}
