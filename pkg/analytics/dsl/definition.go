package dsl

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/synaptica-ai/studydata/pkg/dataset"
	"github.com/synaptica-ai/studydata/pkg/terminology"
	"gopkg.in/yaml.v3"
)

type ColumnSpec struct {
	Name string `yaml:"name" json:"name"`
	Expr string `yaml:"expr" json:"expr"`
}

// Definition is the YAML form of a dataset declaration. Codelists declared
// inline take precedence over the catalog.
type Definition struct {
	Codelists  map[string][]string `yaml:"codelists,omitempty" json:"codelists,omitempty"`
	Population string              `yaml:"population" json:"population"`
	Columns    []ColumnSpec        `yaml:"columns" json:"columns"`
}

type scopedCodelists struct {
	inline  map[string]terminology.Codelist
	catalog Codelists
}

func (s scopedCodelists) Lookup(name string) (terminology.Codelist, bool) {
	if cl, ok := s.inline[strings.ToLower(name)]; ok {
		return cl, true
	}
	if s.catalog == nil {
		return terminology.Codelist{}, false
	}
	return s.catalog.Lookup(name)
}

func ParseDefinition(content []byte, catalog Codelists) (*dataset.Dataset, error) {
	var def Definition
	if err := yaml.Unmarshal(content, &def); err != nil {
		return nil, fmt.Errorf("decoding definition: %w", err)
	}
	return def.Build(catalog)
}

func LoadDefinition(path string, catalog Codelists) (*dataset.Dataset, error) {
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	return ParseDefinition(content, catalog)
}

// Build compiles the definition into a frozen dataset.
func (d Definition) Build(catalog Codelists) (*dataset.Dataset, error) {
	scope := scopedCodelists{inline: make(map[string]terminology.Codelist, len(d.Codelists)), catalog: catalog}
	for name, codes := range d.Codelists {
		cl, err := terminology.NewCodelist(strings.ToLower(name), terminology.SystemSNOMEDCT, codes...)
		if err != nil {
			return nil, err
		}
		scope.inline[strings.ToLower(name)] = cl
	}

	if strings.TrimSpace(d.Population) == "" {
		return nil, dataset.ErrPopulationUndefined
	}
	ds := dataset.New()
	population, err := ParseSeries(d.Population, scope)
	if err != nil {
		return nil, fmt.Errorf("population: %w", err)
	}
	if err := ds.DefinePopulation(population); err != nil {
		return nil, err
	}

	for _, col := range d.Columns {
		series, err := ParseSeries(col.Expr, scope)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", col.Name, err)
		}
		if err := ds.Add(col.Name, series); err != nil {
			return nil, err
		}
	}

	if err := ds.Freeze(); err != nil {
		return nil, err
	}
	return ds, nil
}
