package transform

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/assetpipe/internal/assets"
)

func utilityProject(t *testing.T) assets.Config {
	t.Helper()

	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"index.html":             `<div class="flex items-center p-4 mystery"><h1 class="text-xl font-bold">Hi</h1></div>`,
		"static/js/main.js":      `el.classList.add("hidden");`,
		"static/css/main.css":    "@import \"tailwindcss\";\nbody { margin: 0; }\n",
		"node_modules/x/a.html":  `<p class="italic"></p>`,
		"assets/old/index.html":  `<p class="underline"></p>`,
		"templates/notes.txt":    `uppercase`,
		"templates/partial.html": `<span class="mx-auto"></span>`,
	})

	cfg := assets.DefaultConfig()
	cfg.Root = root
	cfg.Entries = map[string]string{"main": "static/js/main.js"}
	return cfg
}

func TestUtilityCSS_inline(t *testing.T) {
	cfg := utilityProject(t)

	u, err := NewUtilityCSS(cfg, UtilityCSSOptions{})
	require.NoError(t, err)

	path := cfg.AbsPath("static/css/main.css")
	require.True(t, u.Match(path))
	require.False(t, u.Match(cfg.AbsPath("static/js/main.js")))
	require.False(t, u.Match(cfg.AbsPath("node_modules/pkg/style.css")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	res, err := u.Transform(context.Background(), assets.Source{Path: path, Contents: data})
	require.NoError(t, err)
	require.Empty(t, res.Files)

	css := string(res.Contents)
	require.NotContains(t, css, "@import")
	require.Contains(t, css, ".flex { display: flex; }")
	require.Contains(t, css, ".items-center { align-items: center; }")
	require.Contains(t, css, ".p-4 { padding: 1rem; }")
	require.Contains(t, css, ".text-xl { font-size: 1.25rem; line-height: 1.75rem; }")
	require.Contains(t, css, ".font-bold { font-weight: 700; }")
	require.Contains(t, css, ".hidden { display: none; }")
	require.Contains(t, css, ".mx-auto { margin-left: auto; margin-right: auto; }")
	require.Contains(t, css, "body { margin: 0; }")

	// node_modules, the output directory and non-content files are not scanned
	require.NotContains(t, css, ".italic")
	require.NotContains(t, css, ".underline")
	require.NotContains(t, css, ".uppercase")
}

func TestUtilityCSS_emitFile(t *testing.T) {
	cfg := utilityProject(t)

	u, err := NewUtilityCSS(cfg, UtilityCSSOptions{Output: "utilities.css", Content: []string{"**/*.html"}})
	require.NoError(t, err)

	res, err := u.Transform(context.Background(), assets.Source{
		Path:     cfg.AbsPath("static/css/main.css"),
		Contents: []byte("@import 'tailwindcss';\nbody { margin: 0; }\n"),
	})
	require.NoError(t, err)

	require.Equal(t, "\nbody { margin: 0; }\n", string(res.Contents))
	require.Len(t, res.Files, 1)
	require.Equal(t, "utilities.css", res.Files[0].Name)

	css := string(res.Files[0].Contents)
	require.Contains(t, css, ".flex { display: flex; }")
	require.NotContains(t, css, ".hidden", "js files are outside the configured content")
}

func TestUtilityCSS_noDirective(t *testing.T) {
	cfg := utilityProject(t)

	u, err := NewUtilityCSS(cfg, UtilityCSSOptions{})
	require.NoError(t, err)

	res, err := u.Transform(context.Background(), assets.Source{Contents: []byte("body { margin: 0; }")})
	require.NoError(t, err)
	require.Nil(t, res.Contents)
	require.Empty(t, res.Files)
}

func TestUtilityCSS_inPipeline(t *testing.T) {
	cfg := utilityProject(t)
	writeFiles(t, cfg.Root, map[string]string{"static/js/app.js": "import '../css/main.css';\n"})
	cfg.Entries = map[string]string{
		"styles": "static/css/main.css",
		"app":    "static/js/app.js",
	}

	u, err := NewUtilityCSS(cfg, UtilityCSSOptions{Output: "utilities.css"})
	require.NoError(t, err)

	result, err := assets.New(cfg, u).Build(context.Background())
	require.NoError(t, err)

	utilities, ok := result.Manifest["utilities.css"]
	require.True(t, ok)
	require.Equal(t, "static/css/main.css", utilities.Src)

	// entries that pull in the stylesheet link the emitted file too
	require.Contains(t, result.Manifest["app"].CSS, utilities.File)
	tags, err := result.Manifest.Resolve("app", cfg.BasePublicPath)
	require.NoError(t, err)
	require.Contains(t, tags.Styles, "/static/"+utilities.File)

	data, err := os.ReadFile(filepath.Join(cfg.OutputPath(), utilities.File))
	require.NoError(t, err)
	require.Contains(t, string(data), ".flex { display: flex; }")
}

func TestNewUtilityCSS_errors(t *testing.T) {
	cfg := assets.DefaultConfig()

	_, err := NewUtilityCSS(cfg, UtilityCSSOptions{Output: "css/utilities.css"})
	require.ErrorContains(t, err, "must be a plain file name")
}

func TestGenerateUtilities(t *testing.T) {
	got := GenerateUtilities([]string{"p-4", "flex", "p-4", "m-0", "w-97", "p-04", "nope", "px-2"})
	require.Equal(t, `.flex { display: flex; }
.m-0 { margin: 0px; }
.p-4 { padding: 1rem; }
.px-2 { padding-left: 0.5rem; padding-right: 0.5rem; }
`, got)

	require.Empty(t, GenerateUtilities(nil))
}
