package transform

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/assetpipe/internal/assets"
	"gopkg.in/yaml.v3"
)

func configWithPlugins(t *testing.T, plugins string) assets.Config {
	t.Helper()

	cfg := assets.DefaultConfig()
	require.NoError(t, yaml.Unmarshal([]byte(plugins), &cfg))
	return cfg
}

func TestNew(t *testing.T) {
	cfg := configWithPlugins(t, `
entries:
  test: static/js/main.js
plugins:
  - name: replace
    options:
      values:
        __VERSION__: "1.2.3"
  - name: globals
    options:
      slots:
        - name: Alpine
          module: alpinejs
          init: start
  - name: utilitycss
  - name: banner
    options:
      text: example
`)

	stages, err := New(cfg)
	require.NoError(t, err)
	require.Len(t, stages, 4)

	names := make([]string, 0, len(stages))
	for _, st := range stages {
		names = append(names, st.Name())
	}
	require.Equal(t, []string{"replace", "globals", "utilitycss", "banner"}, names)
	require.IsType(t, &Globals{}, stages[1])
}

func TestNew_errors(t *testing.T) {
	cfg := configWithPlugins(t, `
plugins:
  - name: minify-everything
`)
	_, err := New(cfg)
	require.ErrorIs(t, err, assets.ErrConfiguration)
	require.ErrorContains(t, err, `unknown plugin "minify-everything", expected one of banner, globals, replace, utilitycss`)

	cfg = configWithPlugins(t, `
plugins:
  - name: banner
`)
	_, err = New(cfg)
	require.ErrorIs(t, err, assets.ErrConfiguration)
	require.ErrorContains(t, err, "banner text is required")

	cfg = configWithPlugins(t, `
plugins:
  - name: replace
    options:
      values: [not, a, map]
`)
	_, err = New(cfg)
	require.ErrorIs(t, err, assets.ErrConfiguration)
}

func TestNew_noPlugins(t *testing.T) {
	stages, err := New(assets.DefaultConfig())
	require.NoError(t, err)
	require.Empty(t, stages)
}

func TestBanner(t *testing.T) {
	b, err := NewBanner(BannerOptions{Text: "(c) example"})
	require.NoError(t, err)

	require.True(t, b.Match("/src/static/js/main.js"))
	require.True(t, b.Match("/src/static/css/main.css"))
	require.False(t, b.Match("/src/node_modules/alpinejs/index.js"))
	require.False(t, b.Match("/src/data.json"))

	res, err := b.Transform(context.Background(), assets.Source{Contents: []byte("run();\n")})
	require.NoError(t, err)
	require.Equal(t, "/*! (c) example */\nrun();\n", string(res.Contents))

	_, err = NewBanner(BannerOptions{Text: "oops */ alert(1) /*"})
	require.ErrorContains(t, err, "must not contain */")
}

func TestReplace(t *testing.T) {
	r, err := NewReplace(ReplaceOptions{Values: map[string]string{
		"API":       "api",
		"API_URL":   "https://example.com",
		"__DEBUG__": "false",
	}})
	require.NoError(t, err)

	require.True(t, r.Match("/src/main.ts"))
	require.False(t, r.Match("/src/main.css"))

	res, err := r.Transform(context.Background(), assets.Source{
		Contents: []byte("fetch(API_URL); log(API); if (__DEBUG__) {}"),
	})
	require.NoError(t, err)
	require.Equal(t, "fetch(https://example.com); log(api); if (false) {}", string(res.Contents))

	_, err = NewReplace(ReplaceOptions{})
	require.ErrorContains(t, err, "at least one value is required")

	_, err = NewReplace(ReplaceOptions{Values: map[string]string{"": "x"}})
	require.ErrorContains(t, err, "must not be empty")
}
