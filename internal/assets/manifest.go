package assets

import (
	"encoding/json"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"
)

// Manifest maps logical asset names to the files produced for them. Its JSON form follows
// the Vite manifest so existing server-side helpers can read it.
type Manifest map[string]ManifestEntry

type ManifestEntry struct {
	// Output path relative to the base public path
	File           string   `json:"file"`
	Name           string   `json:"name,omitempty"`
	Src            string   `json:"src,omitempty"`
	IsEntry        bool     `json:"isEntry,omitempty"`
	IsDynamicEntry bool     `json:"isDynamicEntry,omitempty"`
	CSS            []string `json:"css,omitempty"`
	Assets         []string `json:"assets,omitempty"`
	Imports        []string `json:"imports,omitempty"`
	DynamicImports []string `json:"dynamicImports,omitempty"`
}

// Tags is the ordered set of URLs a page needs to load one entry
type Tags struct {
	Entry    string
	Styles   []string
	Preloads []string
}

// ReadManifest loads a manifest written by a previous build
func ReadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	return m, nil
}

// Write replaces dir/name with the manifest; the rename makes the update all or nothing
func (m Manifest) Write(dir, name string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(dir, ".manifest-*.json")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), filepath.Join(dir, name))
}

// Entries returns the keys of entries declared in the configuration
func (m Manifest) Entries() []string {
	var names []string
	for key, entry := range m {
		if entry.IsEntry {
			names = append(names, key)
		}
	}
	return sortedUnique(names)
}

// Resolve returns the entry script, its stylesheets and the chunks it statically imports
func (m Manifest) Resolve(name string, base string) (Tags, error) {
	entry, ok := m[name]
	if !ok {
		return Tags{}, fmt.Errorf("%w: %s", ErrEntryNotFound, name)
	}

	tags := Tags{Entry: URL(base, entry.File)}
	visited := map[string]bool{name: true}
	seenCSS := map[string]bool{}

	addCSS := func(e ManifestEntry) {
		for _, css := range e.CSS {
			if !seenCSS[css] {
				seenCSS[css] = true
				tags.Styles = append(tags.Styles, URL(base, css))
			}
		}
	}
	addCSS(entry)
	m.addDependencies(entry, base, &tags, visited, addCSS)

	return tags, nil
}

func (m Manifest) addDependencies(entry ManifestEntry, base string, tags *Tags, visited map[string]bool, addCSS func(ManifestEntry)) {
	for _, imp := range entry.Imports {
		if visited[imp] {
			continue
		}
		visited[imp] = true

		chunk, exists := m[imp]
		if !exists {
			continue
		}
		tags.Preloads = append(tags.Preloads, URL(base, chunk.File))
		addCSS(chunk)
		m.addDependencies(chunk, base, tags, visited, addCSS)
	}
}

// HTML renders the tags, module selects <script type="module"> for esm output
func (t Tags) HTML(module bool) template.HTML {
	var b strings.Builder
	for _, href := range t.Styles {
		fmt.Fprintf(&b, `<link rel="stylesheet" href="%s">`+"\n", template.HTMLEscapeString(href))
	}
	for _, href := range t.Preloads {
		fmt.Fprintf(&b, `<link rel="modulepreload" href="%s">`+"\n", template.HTMLEscapeString(href))
	}
	if module {
		fmt.Fprintf(&b, `<script type="module" src="%s"></script>`, template.HTMLEscapeString(t.Entry))
	} else {
		fmt.Fprintf(&b, `<script defer src="%s"></script>`, template.HTMLEscapeString(t.Entry))
	}
	return template.HTML(b.String()) //nolint:gosec
}

// URL joins the base public path and a manifest file path
func URL(base, file string) string {
	if base == "" {
		base = "/"
	}
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(file, "/")
}
