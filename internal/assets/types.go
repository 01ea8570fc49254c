package assets

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"maps"
	"net/http"
	"sync"

	"github.com/rs/zerolog/log"
)

// Pipeline manages the asset build process and manifest lookups
type Pipeline struct {
	config   Config
	stages   []Stage
	manifest Manifest
	tmpl     *template.Template
	mu       sync.RWMutex
}

// New creates a new asset pipeline with the given configuration and ordered stages
func New(config Config, stages ...Stage) *Pipeline {
	return &Pipeline{
		config: config,
		stages: stages,
	}
}

// NewWithTemplateDir creates a new asset pipeline and loads all templates from a directory
func NewWithTemplateDir(config Config, templateDir string, stages ...Stage) (*Pipeline, error) {
	return NewWithTemplateDirAndFuncs(config, templateDir, nil, stages...)
}

// NewWithTemplateDirAndFuncs creates a new asset pipeline and loads all templates from a directory with custom functions
func NewWithTemplateDirAndFuncs(config Config, templateDir string, customFuncs template.FuncMap, stages ...Stage) (*Pipeline, error) {
	p := New(config, stages...)

	funcs := template.FuncMap{
		"marshal": marshal,
		"safe": func(s string) template.HTML {
			return template.HTML(s) //nolint:gosec
		},
		"asset_tags": p.assetTags,
		"asset_url":  p.assetURL,
	}

	// Merge custom functions
	maps.Copy(funcs, customFuncs)

	tmpl, err := template.New(templateDir).Funcs(funcs).ParseGlob(templateDir + "/*.html")
	if err != nil {
		return nil, err
	}
	p.tmpl = tmpl
	return p, nil
}

// Config returns the pipeline configuration
func (p *Pipeline) Config() Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.config
}

// Stages returns the ordered stage names
func (p *Pipeline) Stages() []string {
	names := make([]string, 0, len(p.stages))
	for _, st := range p.stages {
		names = append(names, st.Name())
	}
	return names
}

// Manifest returns the manifest of the last successful build
func (p *Pipeline) Manifest() (Manifest, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.manifest == nil {
		return nil, ErrNotBuilt
	}
	return p.manifest, nil
}

// LoadManifest adopts the manifest already on disk, used when serving a previous build
func (p *Pipeline) LoadManifest() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	m, err := ReadManifest(p.config.ManifestPath())
	if err != nil {
		return err
	}
	p.manifest = m
	return nil
}

// LoadTags returns the URLs needed to load the given entry
func (p *Pipeline) LoadTags(entry string) (Tags, error) {
	m, err := p.Manifest()
	if err != nil {
		return Tags{}, err
	}
	cfg := p.Config()
	return m.Resolve(entry, normaliseBase(cfg.BasePublicPath))
}

func (p *Pipeline) assetTags(entry string) (template.HTML, error) {
	tags, err := p.LoadTags(entry)
	if err != nil {
		return "", err
	}
	return tags.HTML(p.Config().Format == FormatESM), nil
}

func (p *Pipeline) assetURL(name string) (string, error) {
	m, err := p.Manifest()
	if err != nil {
		return "", err
	}
	entry, ok := m[name]
	if !ok {
		return "", ErrEntryNotFound
	}
	return URL(normaliseBase(p.Config().BasePublicPath), entry.File), nil
}

// Handler returns an http.HandlerFunc that renders the given template and entry with its tags
func (p *Pipeline) Handler(templateName, title, entry string, contextFn func(ctx context.Context) any) (http.HandlerFunc, error) {
	if p.tmpl == nil {
		return nil, errors.New("template not loaded, use NewWithTemplateDir")
	}

	if contextFn == nil {
		contextFn = func(ctx context.Context) any {
			return nil
		}
	}

	return func(w http.ResponseWriter, r *http.Request) {
		tags, err := p.LoadTags(entry)
		if err != nil {
			log.Error().Err(err).Str("entry", entry).Msg("Failed to load tags")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		data := map[string]any{
			"Title":   title,
			"Entry":   entry,
			"Tags":    tags.HTML(p.Config().Format == FormatESM),
			"Scripts": append([]string{tags.Entry}, tags.Preloads...),
			"Styles":  tags.Styles,
			"Context": contextFn(r.Context()),
		}

		if err := p.tmpl.ExecuteTemplate(w, templateName, data); err != nil {
			log.Error().Err(err).Msg("Failed to render template")
		}
	}, nil
}

func marshal(value any) string {
	buf := new(bytes.Buffer)

	if err := json.NewEncoder(buf).Encode(value); err != nil {
		panic(errors.New("context can only be json serializable"))
	}

	return buf.String()
}
