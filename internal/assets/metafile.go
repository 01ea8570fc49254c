package assets

import (
	"encoding/json"
	"fmt"
	"maps"
	"path"
	"path/filepath"
	"slices"
	"strings"
)

// metafile is the subset of esbuild's metafile JSON the manifest is derived from
type metafile struct {
	Inputs  map[string]metaInput  `json:"inputs"`
	Outputs map[string]metaOutput `json:"outputs"`
}

type metaInput struct {
	Imports []metaImport `json:"imports"`
}

type metaImport struct {
	Path     string `json:"path"`
	Kind     string `json:"kind"`
	External bool   `json:"external,omitempty"`
}

type metaOutput struct {
	EntryPoint string                     `json:"entryPoint,omitempty"`
	Imports    []metaImport               `json:"imports"`
	Inputs     map[string]json.RawMessage `json:"inputs"`
	CSSBundle  string                     `json:"cssBundle,omitempty"`
}

// manifestBuilder turns esbuild output paths (relative to the root) into manifest keys and files
type manifestBuilder struct {
	meta      metafile
	root      string
	outDir    string
	entries   map[string][]string // relative source path -> logical names
	cssOwner  map[string]string   // css bundle output -> logical name
	assetByIn map[string]string   // input path -> asset output
}

func buildManifest(raw string, cfg Config, emitted []emittedOutput) (Manifest, error) {
	var meta metafile
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return nil, err
	}

	b := &manifestBuilder{
		meta:      meta,
		root:      cfg.RootPath(),
		outDir:    cfg.OutputPath(),
		entries:   make(map[string][]string),
		cssOwner:  make(map[string]string),
		assetByIn: make(map[string]string),
	}

	for _, name := range cfg.EntryNames() {
		source, _ := cfg.SourcePath(name)
		rel, err := filepath.Rel(b.root, source)
		if err != nil {
			return nil, err
		}
		src := filepath.ToSlash(rel)
		b.entries[src] = append(b.entries[src], name)
	}

	for outPath, out := range meta.Outputs {
		if out.CSSBundle != "" {
			if name, ok := b.entryName(outPath, out.EntryPoint); ok {
				b.cssOwner[out.CSSBundle] = name
			}
		}
		if isAssetOutput(outPath) && len(out.Inputs) == 1 {
			for in := range out.Inputs {
				b.assetByIn[in] = outPath
			}
		}
	}

	m := Manifest{}
	outPaths := slices.Sorted(maps.Keys(meta.Outputs))
	for _, outPath := range outPaths {
		if strings.HasSuffix(outPath, ".map") {
			continue
		}
		key, entry := b.entry(outPath, meta.Outputs[outPath])
		if prev, ok := m[key]; ok {
			return nil, &ConfigurationError{
				Path: "entries",
				Err:  fmt.Errorf("manifest key %q is claimed by both %s and %s", key, prev.File, entry.File),
			}
		}
		m[key] = entry
	}

	for _, e := range emitted {
		if prev, ok := m[e.name]; ok {
			return nil, &TransformError{
				Path:   e.src,
				Plugin: e.plugin,
				Err:    fmt.Errorf("emitted file %q collides with manifest key of %s", e.name, prev.File),
			}
		}
		m[e.name] = ManifestEntry{File: e.file, Src: e.src}
		if path.Ext(e.name) == ".css" {
			b.attachStylesheet(m, e)
		}
	}

	return m, nil
}

// entryName maps an output built from src to the logical entry it was declared as. Several
// entries may share a source, the output path ("<name>-<hash>.<ext>") tells them apart.
func (b *manifestBuilder) entryName(outPath, src string) (string, bool) {
	names := b.entries[src]
	switch len(names) {
	case 0:
		return "", false
	case 1:
		return names[0], true
	}

	rel := b.file(outPath)
	stem := strings.TrimSuffix(rel, path.Ext(rel))
	if i := strings.LastIndex(stem, "-"); i > 0 && slices.Contains(names, stem[:i]) {
		return stem[:i], true
	}
	return "", false
}

// attachStylesheet lists an emitted stylesheet on every entry whose bundle includes the source that produced it
func (b *manifestBuilder) attachStylesheet(m Manifest, e emittedOutput) {
	for outPath, out := range b.meta.Outputs {
		name, ok := b.entryName(outPath, out.EntryPoint)
		if !ok || path.Ext(outPath) == ".map" {
			continue
		}
		if _, isBundle := b.cssOwner[outPath]; isBundle {
			continue
		}
		included := false
		if _, ok := out.Inputs[e.src]; ok {
			included = true
		}
		if out.CSSBundle != "" {
			if _, ok := b.meta.Outputs[out.CSSBundle].Inputs[e.src]; ok {
				included = true
			}
		}
		if !included {
			continue
		}

		entry := m[name]
		if !entry.IsEntry || slices.Contains(entry.CSS, e.file) {
			continue
		}
		entry.CSS = append(entry.CSS, e.file)
		m[name] = entry
	}
}

func (b *manifestBuilder) entry(outPath string, out metaOutput) (string, ManifestEntry) {
	entry := ManifestEntry{File: b.file(outPath)}
	key := b.key(outPath, out)

	if owner, ok := b.cssBundleOwner(outPath, out); ok {
		entry.Name = owner
		entry.Src = out.EntryPoint
	} else if out.EntryPoint != "" {
		entry.Src = out.EntryPoint
		if name, ok := b.entryName(outPath, out.EntryPoint); ok {
			entry.Name = name
			entry.IsEntry = true
		} else {
			entry.Name = baseName(out.EntryPoint)
			entry.IsDynamicEntry = true
		}
	}

	if isAssetOutput(outPath) {
		for in := range out.Inputs {
			entry.Src = in
		}
		return key, entry
	}

	for _, imp := range out.Imports {
		if imp.External {
			continue
		}
		if _, ok := b.meta.Outputs[imp.Path]; !ok {
			continue
		}
		impOut := b.meta.Outputs[imp.Path]
		impKey := b.key(imp.Path, impOut)
		switch {
		case imp.Kind == "dynamic-import":
			entry.DynamicImports = append(entry.DynamicImports, impKey)
		case strings.HasSuffix(imp.Path, ".js"):
			entry.Imports = append(entry.Imports, impKey)
		}
	}
	entry.Imports = sortedUnique(entry.Imports)
	entry.DynamicImports = sortedUnique(entry.DynamicImports)

	inputs := make([]string, 0, len(out.Inputs))
	for in := range out.Inputs {
		inputs = append(inputs, in)
	}
	if out.CSSBundle != "" {
		entry.CSS = []string{b.file(out.CSSBundle)}
		for in := range b.meta.Outputs[out.CSSBundle].Inputs {
			inputs = append(inputs, in)
		}
	}

	var assets []string
	for _, in := range inputs {
		for _, imp := range b.meta.Inputs[in].Imports {
			if assetOut, ok := b.assetByIn[imp.Path]; ok {
				assets = append(assets, b.file(assetOut))
			}
		}
	}
	entry.Assets = sortedUnique(assets)

	return key, entry
}

// key names an output the way the manifest exposes it
func (b *manifestBuilder) key(outPath string, out metaOutput) string {
	if owner, ok := b.cssBundleOwner(outPath, out); ok {
		return owner + ".css"
	}
	if out.EntryPoint != "" {
		if name, ok := b.entryName(outPath, out.EntryPoint); ok {
			return name
		}
		return out.EntryPoint
	}
	if isAssetOutput(outPath) {
		for in := range out.Inputs {
			return in
		}
	}
	return "_" + path.Base(outPath)
}

// cssBundleOwner reports the entry a stylesheet was split out of, if any
func (b *manifestBuilder) cssBundleOwner(outPath string, out metaOutput) (string, bool) {
	if name, ok := b.cssOwner[outPath]; ok {
		return name, true
	}
	if path.Ext(outPath) != ".css" || out.EntryPoint == "" || path.Ext(out.EntryPoint) == ".css" {
		return "", false
	}
	if name, ok := b.entryName(outPath, out.EntryPoint); ok {
		return name, true
	}
	return baseName(out.EntryPoint), true
}

// file converts an esbuild output path into a path relative to the output directory
func (b *manifestBuilder) file(outPath string) string {
	abs := filepath.Join(b.root, filepath.FromSlash(outPath))
	rel, err := filepath.Rel(b.outDir, abs)
	if err != nil {
		return outPath
	}
	return filepath.ToSlash(rel)
}

func baseName(p string) string {
	return strings.TrimSuffix(path.Base(p), path.Ext(p))
}

func isAssetOutput(p string) bool {
	switch path.Ext(p) {
	case ".js", ".css", ".map":
		return false
	}
	return true
}

func sortedUnique(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	slices.Sort(values)
	return slices.Compact(values)
}
