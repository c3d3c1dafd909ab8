// Package definition loads resource definitions from YAML, validates them and
// serves them from a read-only registry with atomic snapshot swap.
package definition

import (
	"bytes"
	"crypto/sha256"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pitabwire/console/model"
)

//go:embed defaults/*.yaml
var defaultsFS embed.FS

// Loader scans directories for YAML definition files, parses them, and
// computes SHA-256 checksums. Each file holds one resource descriptor.
type Loader struct{}

// NewLoader creates a new definition Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Defaults returns the built-in resource definitions.
func (l *Loader) Defaults() ([]model.ResourceDescriptor, error) {
	sub, err := fs.Sub(defaultsFS, "defaults")
	if err != nil {
		return nil, err
	}
	return l.LoadFS(sub)
}

// Load returns the built-in definitions overlaid with any found in
// directories. A directory definition replaces a default with the same name.
func (l *Loader) Load(directories []string) ([]model.ResourceDescriptor, error) {
	defs, err := l.Defaults()
	if err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}
	extra, err := l.LoadAll(directories)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]string, len(extra))
	for _, d := range extra {
		if prev, dup := seen[d.Name]; dup {
			return nil, fmt.Errorf("resource %q defined in both %s and %s", d.Name, prev, d.SourceFile)
		}
		seen[d.Name] = d.SourceFile
	}
	return Merge(defs, extra), nil
}

// LoadAll recursively scans directories for *.yaml and *.yml files and parses
// each into a ResourceDescriptor.
func (l *Loader) LoadAll(directories []string) ([]model.ResourceDescriptor, error) {
	var defs []model.ResourceDescriptor

	for _, dir := range directories {
		err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !isYAML(path) {
				return nil
			}

			def, err := l.LoadFile(path)
			if err != nil {
				return fmt.Errorf("loading %s: %w", path, err)
			}
			defs = append(defs, def)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scanning directory %s: %w", dir, err)
		}
	}

	return defs, nil
}

// LoadFS parses every YAML file at the root of fsys, in name order.
func (l *Loader) LoadFS(fsys fs.FS) ([]model.ResourceDescriptor, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, err
	}
	var defs []model.ResourceDescriptor
	for _, e := range entries {
		if e.IsDir() || !isYAML(e.Name()) {
			continue
		}
		data, err := fs.ReadFile(fsys, e.Name())
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", e.Name(), err)
		}
		def, err := Parse(data, e.Name())
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// LoadFile loads and parses a single YAML definition file. It computes the
// SHA-256 checksum and records the source file path.
func (l *Loader) LoadFile(path string) (model.ResourceDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.ResourceDescriptor{}, fmt.Errorf("reading %s: %w", path, err)
	}
	return Parse(data, path)
}

// Parse decodes one definition. Unknown keys are rejected so typos in
// definition files surface at startup.
func Parse(data []byte, source string) (model.ResourceDescriptor, error) {
	var def model.ResourceDescriptor
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&def); err != nil {
		return model.ResourceDescriptor{}, fmt.Errorf("parsing %s: %w", source, err)
	}
	applyDefaults(&def)

	def.Checksum = fmt.Sprintf("%x", sha256.Sum256(data))
	def.SourceFile = source

	return def, nil
}

// Merge overlays extra onto base by resource name. The result is sorted by
// name.
func Merge(base, extra []model.ResourceDescriptor) []model.ResourceDescriptor {
	byName := make(map[string]model.ResourceDescriptor, len(base)+len(extra))
	for _, d := range base {
		byName[d.Name] = d
	}
	for _, d := range extra {
		byName[d.Name] = d
	}
	out := make([]model.ResourceDescriptor, 0, len(byName))
	for _, d := range byName {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func applyDefaults(def *model.ResourceDescriptor) {
	if def.IDField == "" {
		def.IDField = "id"
	}
	if def.ListStyle == "" && !def.Singleton {
		def.ListStyle = model.ListPaged
	}
	if def.DisplayField == "" {
		def.DisplayField = "name"
	}
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
