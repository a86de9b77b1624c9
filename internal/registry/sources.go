// Package registry describes the agency scrape sources prospects come from.
package registry

import (
	"os"
	"sort"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Source is one agency opportunity feed.
type Source struct {
	Code     string `yaml:"code" json:"code"`
	Name     string `yaml:"name" json:"name"`
	Agency   string `yaml:"agency" json:"agency"`
	BaseURL  string `yaml:"base_url" json:"base_url"`
	Disabled bool   `yaml:"disabled,omitempty" json:"disabled,omitempty"`
}

// Registry holds the loaded source set, keyed by code.
type Registry struct {
	sources map[string]Source
	order   []string
}

// sourcesFile is the on-disk shape: a top-level "sources" list.
type sourcesFile struct {
	Sources []Source `yaml:"sources"`
}

// LoadSources reads the source registry from a YAML file.
func LoadSources(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "registry: read sources %s", path)
	}
	return ParseSources(data)
}

// ParseSources builds a registry from raw YAML.
func ParseSources(data []byte) (*Registry, error) {
	var file sourcesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, eris.Wrap(err, "registry: parse sources")
	}
	if len(file.Sources) == 0 {
		return nil, eris.New("registry: no sources defined")
	}

	r := &Registry{sources: make(map[string]Source, len(file.Sources))}
	for _, s := range file.Sources {
		if s.Code == "" {
			return nil, eris.Errorf("registry: source %q has no code", s.Name)
		}
		if _, dup := r.sources[s.Code]; dup {
			return nil, eris.Errorf("registry: duplicate source code %q", s.Code)
		}
		r.sources[s.Code] = s
		r.order = append(r.order, s.Code)
	}
	sort.Strings(r.order)
	return r, nil
}

// Get returns a source by code.
func (r *Registry) Get(code string) (Source, bool) {
	s, ok := r.sources[code]
	return s, ok
}

// All returns every source sorted by code.
func (r *Registry) All() []Source {
	out := make([]Source, 0, len(r.order))
	for _, code := range r.order {
		out = append(out, r.sources[code])
	}
	return out
}

// Enabled returns every non-disabled source sorted by code.
func (r *Registry) Enabled() []Source {
	var out []Source
	for _, code := range r.order {
		if s := r.sources[code]; !s.Disabled {
			out = append(out, s)
		}
	}
	return out
}
