package transform

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/assetpipe/internal/assets"
	"github.com/wolfeidau/assetpipe/internal/runtime"
)

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, contents := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	}
}

func pageSlots() []GlobalSlot {
	return []GlobalSlot{
		{Name: "htmx", Module: "htmx.org"},
		{Name: "Alpine", Module: "alpinejs", Init: "start"},
	}
}

// buildPage bundles a page entry with stand-in htmx and alpine packages as a classic script
func buildPage(t *testing.T) (assets.Config, string) {
	t.Helper()

	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"node_modules/htmx.org/index.js": `export default { version: "2.0.0", process() {} };
`,
		"node_modules/alpinejs/index.js": `let started = false;
export default {
  start() {
    if (started) throw new Error("alpine started twice");
    started = true;
    console.log("alpine started");
  },
};
`,
		"static/js/main.js": `console.log("Main JavaScript file loaded.");
`,
	})

	cfg := assets.DefaultConfig()
	cfg.Root = root
	cfg.Entries = map[string]string{"main": "static/js/main.js"}
	cfg.Format = assets.FormatIIFE
	cfg.Target = "es2015"

	globals, err := NewGlobals(cfg, GlobalsOptions{Slots: pageSlots()})
	require.NoError(t, err)

	result, err := assets.New(cfg, globals).Build(context.Background())
	require.NoError(t, err)

	script, err := os.ReadFile(filepath.Join(cfg.OutputPath(), result.Manifest["main"].File))
	require.NoError(t, err)

	return cfg, string(script)
}

func TestGlobals_registersOnceAndStarts(t *testing.T) {
	_, script := buildPage(t)

	report, err := runtime.Run(context.Background(), "main.js", script)
	require.NoError(t, err)

	require.Equal(t, []string{"alpine started", "Main JavaScript file loaded."}, report.Console)
	require.Equal(t, []string{"Alpine", "htmx"}, report.Globals)
}

func TestGlobals_secondEvaluationFails(t *testing.T) {
	_, script := buildPage(t)

	r := runtime.NewRunner()
	require.NoError(t, r.Run(context.Background(), "main.js", script))

	err := r.Run(context.Background(), "main.js", script)
	require.ErrorContains(t, err, "already registered")

	// the failed second run never reached start()
	require.Equal(t, []string{"alpine started", "Main JavaScript file loaded."}, r.Console())
}

func TestGlobals_readOnly(t *testing.T) {
	_, script := buildPage(t)

	r := runtime.NewRunner()
	require.NoError(t, r.Run(context.Background(), "main.js", script))
	require.NoError(t, r.Run(context.Background(), "probe.js", `
globalThis.Alpine = null;
console.log(typeof Alpine.start);
`))
	require.Equal(t, "function", r.Console()[len(r.Console())-1])
}

func TestGlobals_Transform(t *testing.T) {
	cfg := assets.DefaultConfig()
	cfg.Entries = map[string]string{"main": "static/js/main.js", "styles": "static/css/main.css"}

	g, err := NewGlobals(cfg, GlobalsOptions{Slots: pageSlots()})
	require.NoError(t, err)

	require.Equal(t, "globals", g.Name())
	require.Equal(t, []string{"htmx", "Alpine"}, g.Names())
	require.True(t, g.Capabilities().EmitVirtualModules)

	main, _ := cfg.SourcePath("main")
	styles, _ := cfg.SourcePath("styles")
	require.True(t, g.Match(main))
	require.False(t, g.Match(styles))
	require.False(t, g.Match(cfg.AbsPath("static/js/other.js")))

	res, err := g.Transform(context.Background(), assets.Source{Path: main, Contents: []byte("run();\n")})
	require.NoError(t, err)
	require.Equal(t, "import \"virtual:globals\";\nrun();\n", string(res.Contents))
	require.Contains(t, res.VirtualModules["globals"], `import * as __global1 from "alpinejs";`)
	require.Contains(t, res.VirtualModules["globals"], "__value1.start();")

	// already wired by hand, contents stay untouched
	res, err = g.Transform(context.Background(), assets.Source{Path: main, Contents: []byte("import \"virtual:globals\";\nrun();\n")})
	require.NoError(t, err)
	require.Nil(t, res.Contents)
}

func TestNewGlobals_errors(t *testing.T) {
	cfg := assets.DefaultConfig()

	tests := []struct {
		name    string
		opts    GlobalsOptions
		wantErr string
	}{
		{name: "no slots", opts: GlobalsOptions{}, wantErr: "at least one slot is required"},
		{
			name:    "bad identifier",
			opts:    GlobalsOptions{Slots: []GlobalSlot{{Name: "my-lib", Module: "lib"}}},
			wantErr: `slot name "my-lib" is not a valid identifier`,
		},
		{
			name:    "duplicate",
			opts:    GlobalsOptions{Slots: []GlobalSlot{{Name: "A", Module: "a"}, {Name: "A", Module: "b"}}},
			wantErr: `slot "A" declared twice`,
		},
		{
			name:    "no module",
			opts:    GlobalsOptions{Slots: []GlobalSlot{{Name: "A"}}},
			wantErr: `slot "A" has no module`,
		},
		{
			name:    "bad init",
			opts:    GlobalsOptions{Slots: []GlobalSlot{{Name: "A", Module: "a", Init: "start()"}}},
			wantErr: `init "start()" is not a valid identifier`,
		},
		{
			name:    "unknown entry",
			opts:    GlobalsOptions{Entries: []string{"nope"}, Slots: []GlobalSlot{{Name: "A", Module: "a"}}},
			wantErr: `unknown entry "nope"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGlobals(cfg, tt.opts)
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}
