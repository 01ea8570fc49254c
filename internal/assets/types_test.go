package assets

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPipeline_notBuilt(t *testing.T) {
	p := New(DefaultConfig())

	_, err := p.Manifest()
	require.ErrorIs(t, err, ErrNotBuilt)

	_, err = p.LoadTags("test")
	require.ErrorIs(t, err, ErrNotBuilt)

	_, err = p.Handler("index.html", "Home", "test", nil)
	require.ErrorContains(t, err, "template not loaded")
}

func TestPipeline_LoadManifest(t *testing.T) {
	root := t.TempDir()
	cfg := testConfig(root, map[string]string{"main": "static/js/main.js"})
	require.NoError(t, os.MkdirAll(cfg.OutputPath(), 0o755))
	require.NoError(t, sampleManifest().Write(cfg.OutputPath(), cfg.ManifestFileName))

	p := New(cfg)
	require.NoError(t, p.LoadManifest())

	tags, err := p.LoadTags("admin")
	require.NoError(t, err)
	require.Equal(t, "/static/admin-Q1w2.js", tags.Entry)

	url, err := p.assetURL("main.css")
	require.NoError(t, err)
	require.Equal(t, "/static/main-9xYz.css", url)

	_, err = p.assetURL("nope")
	require.ErrorIs(t, err, ErrEntryNotFound)
}

func TestPipeline_Handler(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, siteFiles())
	writeFiles(t, root, map[string]string{
		"templates/index.html": `<title>{{.Title}}</title>
{{.Tags}}
<pre id="ctx">{{marshal .Context | safe}}</pre>
<img src="{{asset_url "static/img/logo.png"}}">`,
	})

	cfg := testConfig(root, map[string]string{"main": "static/js/main.js"})
	p, err := NewWithTemplateDir(cfg, filepath.Join(root, "templates"))
	require.NoError(t, err)

	_, err = p.Build(context.Background())
	require.NoError(t, err)

	m, err := p.Manifest()
	require.NoError(t, err)

	h, err := p.Handler("index.html", "Home", "main", func(ctx context.Context) any {
		return map[string]string{"user": "ada"}
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.Contains(t, body, "<title>Home</title>")
	require.Contains(t, body, `<script type="module" src="/static/`+m["main"].File+`"></script>`)
	require.Contains(t, body, `<link rel="stylesheet" href="/static/`+m["main.css"].File+`">`)
	require.Contains(t, body, `<pre id="ctx">{"user":"ada"}`)
	require.Contains(t, body, `<img src="/static/`+m["static/img/logo.png"].File+`">`)

	missing, err := p.Handler("index.html", "Home", "nope", nil)
	require.NoError(t, err)
	rec = httptest.NewRecorder()
	missing(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}
