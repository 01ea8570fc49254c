package transform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/wolfeidau/assetpipe/internal/assets"
	"gopkg.in/yaml.v3"
)

const (
	globalsModule = "globals"
	globalsImport = `import "virtual:globals";`
)

var identRe = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// GlobalSlot exposes one dependency to non-module scripts on the page
type GlobalSlot struct {
	// Property defined on globalThis (e.g., "Alpine")
	Name string `yaml:"name"`
	// Import specifier of the dependency (e.g., "alpinejs")
	Module string `yaml:"module"`
	// Optional method invoked once after registration (e.g., "start")
	Init string `yaml:"init"`
}

type GlobalsOptions struct {
	// Entries that install the registry, every script entry when empty
	Entries []string     `yaml:"entries"`
	Slots   []GlobalSlot `yaml:"slots"`
}

// Globals installs an explicit registry on globalThis: every slot is defined once as a
// read-only property before the entry body runs, and a second evaluation throws.
type Globals struct {
	opts    GlobalsOptions
	entries map[string]bool
	module  string
}

func newGlobalsFromNode(cfg assets.Config, node *yaml.Node) (assets.Stage, error) {
	var opts GlobalsOptions
	if err := decodeOptions(node, &opts); err != nil {
		return nil, err
	}
	return NewGlobals(cfg, opts)
}

// NewGlobals validates the slots and renders the registry module
func NewGlobals(cfg assets.Config, opts GlobalsOptions) (*Globals, error) {
	if len(opts.Slots) == 0 {
		return nil, errors.New("at least one slot is required")
	}

	seen := map[string]bool{}
	for _, slot := range opts.Slots {
		if !identRe.MatchString(slot.Name) {
			return nil, fmt.Errorf("slot name %q is not a valid identifier", slot.Name)
		}
		if seen[slot.Name] {
			return nil, fmt.Errorf("slot %q declared twice", slot.Name)
		}
		seen[slot.Name] = true

		if slot.Module == "" {
			return nil, fmt.Errorf("slot %q has no module", slot.Name)
		}
		if slot.Init != "" && !identRe.MatchString(slot.Init) {
			return nil, fmt.Errorf("slot %q init %q is not a valid identifier", slot.Name, slot.Init)
		}
	}

	names := opts.Entries
	if len(names) == 0 {
		names = cfg.EntryNames()
	}

	entries := map[string]bool{}
	for _, name := range names {
		source, ok := cfg.SourcePath(name)
		if !ok {
			return nil, fmt.Errorf("unknown entry %q", name)
		}
		if filepath.Ext(source) == ".css" {
			continue
		}
		entries[filepath.Clean(source)] = true
	}

	return &Globals{
		opts:    opts,
		entries: entries,
		module:  renderRegistry(opts.Slots),
	}, nil
}

func (g *Globals) Name() string { return "globals" }

func (g *Globals) Capabilities() assets.Capabilities {
	return assets.Capabilities{RewriteContent: true, EmitVirtualModules: true}
}

func (g *Globals) Match(path string) bool {
	return g.entries[filepath.Clean(path)]
}

func (g *Globals) Transform(_ context.Context, src assets.Source) (assets.Result, error) {
	res := assets.Result{
		VirtualModules: map[string]string{globalsModule: g.module},
	}
	if !strings.Contains(string(src.Contents), globalsImport) {
		res.Contents = append([]byte(globalsImport+"\n"), src.Contents...)
	}
	return res, nil
}

// Names returns the globals the registry defines, in registration order
func (g *Globals) Names() []string {
	names := make([]string, 0, len(g.opts.Slots))
	for _, slot := range g.opts.Slots {
		names = append(names, slot.Name)
	}
	return names
}

func renderRegistry(slots []GlobalSlot) string {
	var b strings.Builder

	b.WriteString("// global registry, populated once when the entry loads\n")
	for i, slot := range slots {
		fmt.Fprintf(&b, "import * as __global%d from %s;\n", i, jsString(slot.Module))
	}

	names := make([]string, 0, len(slots))
	for _, slot := range slots {
		names = append(names, jsString(slot.Name))
	}

	fmt.Fprintf(&b, `
const __names = [%s];
for (const name of __names) {
  if (Object.prototype.hasOwnProperty.call(globalThis, name)) {
    throw new Error("global " + name + " is already registered, the entry module must only run once");
  }
}

function __register(name, ns) {
  const value = ns && ns.default !== undefined ? ns.default : ns;
  Object.defineProperty(globalThis, name, { value: value, enumerable: true, writable: false, configurable: false });
  return value;
}
`, strings.Join(names, ", "))

	for i, slot := range slots {
		fmt.Fprintf(&b, "const __value%d = __register(%s, __global%d);\n", i, jsString(slot.Name), i)
	}
	for i, slot := range slots {
		if slot.Init != "" {
			fmt.Fprintf(&b, "__value%d.%s();\n", i, slot.Init)
		}
	}

	return b.String()
}

// jsString quotes s as a JavaScript string literal
func jsString(s string) string {
	data, _ := json.Marshal(s)
	return string(data)
}
