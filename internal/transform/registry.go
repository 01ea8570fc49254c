// Package transform holds the built-in stages that can be declared under "plugins" in the
// configuration. Stages are applied in declared order; each one states what it may do to a file.
package transform

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/wolfeidau/assetpipe/internal/assets"
	"gopkg.in/yaml.v3"
)

// Factory builds a stage from its YAML options
type Factory func(cfg assets.Config, options *yaml.Node) (assets.Stage, error)

var factories = map[string]Factory{
	"globals":    newGlobalsFromNode,
	"utilitycss": newUtilityCSSFromNode,
	"banner":     newBannerFromNode,
	"replace":    newReplaceFromNode,
}

// Names returns the registered stage names
func Names() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// New builds the ordered stages declared in cfg.Plugins
func New(cfg assets.Config) ([]assets.Stage, error) {
	stages := make([]assets.Stage, 0, len(cfg.Plugins))
	for i, plugin := range cfg.Plugins {
		factory, ok := factories[plugin.Name]
		if !ok {
			return nil, &assets.ConfigurationError{
				Path: fmt.Sprintf("plugins[%d]", i),
				Err:  fmt.Errorf("unknown plugin %q, expected one of %s", plugin.Name, strings.Join(Names(), ", ")),
			}
		}

		stage, err := factory(cfg, &plugin.Options)
		if err != nil {
			return nil, &assets.ConfigurationError{Path: fmt.Sprintf("plugins[%d] (%s)", i, plugin.Name), Err: err}
		}
		stages = append(stages, stage)
	}
	return stages, nil
}

func decodeOptions(node *yaml.Node, v any) error {
	if node == nil || node.Kind == 0 {
		return nil
	}
	return node.Decode(v)
}

// hasExt reports whether path ends in one of exts
func hasExt(path string, exts []string) bool {
	return slices.Contains(exts, filepath.Ext(path))
}

func inNodeModules(path string) bool {
	return strings.Contains(filepath.ToSlash(path), "/node_modules/")
}
