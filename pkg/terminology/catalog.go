package terminology

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

type Entry struct {
	Description string   `yaml:"description" json:"description"`
	System      string   `yaml:"system" json:"system"`
	Codes       []string `yaml:"codes" json:"codes"`
}

// Catalog holds the named codelists available to dataset definitions.
type Catalog struct {
	Codelists map[string]Entry `yaml:"codelists" json:"codelists"`
}

func Load(path string) (Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Catalog{}, err
	}
	return Parse(content)
}

func Parse(content []byte) (Catalog, error) {
	var cat Catalog
	if err := yaml.Unmarshal(content, &cat); err != nil {
		return Catalog{}, err
	}
	if len(cat.Codelists) == 0 {
		return Catalog{}, fmt.Errorf("codelist catalog empty")
	}
	normalized := make(map[string]Entry, len(cat.Codelists))
	for name, entry := range cat.Codelists {
		if entry.System == "" {
			entry.System = SystemSNOMEDCT
		}
		if _, err := NewCodelist(name, entry.System, entry.Codes...); err != nil {
			return Catalog{}, err
		}
		normalized[strings.ToLower(name)] = entry
	}
	cat.Codelists = normalized
	return cat, nil
}

func (c Catalog) Lookup(name string) (Codelist, bool) {
	if c.Codelists == nil {
		return Codelist{}, false
	}
	entry, ok := c.Codelists[strings.ToLower(name)]
	if !ok {
		return Codelist{}, false
	}
	cl, err := NewCodelist(strings.ToLower(name), entry.System, entry.Codes...)
	if err != nil {
		return Codelist{}, false
	}
	return cl, true
}

func (c Catalog) Names() []string {
	names := make([]string, 0, len(c.Codelists))
	for name := range c.Codelists {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultCatalog returns the codelists used by the study, matching the codes
// present in the dummy data.
func DefaultCatalog() Catalog {
	return Catalog{Codelists: map[string]Entry{
		"diabetes": {
			Description: "Diabetes mellitus",
			System:      SystemSNOMEDCT,
			Codes:       []string{"73211009", "44054006"},
		},
		"hypertension": {
			Description: "Hypertensive disorder",
			System:      SystemSNOMEDCT,
			Codes:       []string{"38341003"},
		},
		"asthma": {
			Description: "Asthma",
			System:      SystemSNOMEDCT,
			Codes:       []string{"195967001"},
		},
	}}
}
