// Package dataset declares which patients a dataset includes and which
// per-patient columns it emits. Declarations are built once, frozen and then
// handed to an engine for evaluation.
package dataset

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"

	"github.com/synaptica-ai/studydata/pkg/query"
)

const maxColumnNameLength = 63

var (
	ErrDuplicateColumn          = errors.New("column already defined")
	ErrInvalidColumnName        = errors.New("invalid column name")
	ErrReservedColumnName       = errors.New("reserved column name")
	ErrPopulationAlreadyDefined = errors.New("population already defined")
	ErrPopulationUndefined      = errors.New("population not defined")
	ErrNotPatientLevel          = errors.New("expression must have one value per patient")
	ErrNotBoolean               = errors.New("population must be a boolean series")
	ErrNoColumns                = errors.New("dataset has no columns")
	ErrFrozen                   = errors.New("dataset is frozen")
)

var (
	columnNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)
	reservedNames     = map[string]struct{}{
		query.PatientIDColumn: {},
		"population":          {},
	}
)

type Column struct {
	Name       string
	Type       query.Type
	Expression query.Node
}

type Dataset struct {
	mu         sync.RWMutex
	population query.Node
	columns    []Column
	index      map[string]int
	frozen     bool
}

func New() *Dataset {
	return &Dataset{index: make(map[string]int)}
}

func (d *Dataset) DefinePopulation(predicate query.Series) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.frozen {
		return ErrFrozen
	}
	if d.population != nil {
		return ErrPopulationAlreadyDefined
	}
	shape, err := query.Check(predicate.Node())
	if err != nil {
		return fmt.Errorf("population: %w", err)
	}
	if !shape.PatientLevel() {
		return fmt.Errorf("population: %w", ErrNotPatientLevel)
	}
	if shape.Type != query.Bool {
		return fmt.Errorf("population has type %s: %w", shape.Type, ErrNotBoolean)
	}
	d.population = predicate.Node()
	return nil
}

// Add binds a named output column.
func (d *Dataset) Add(name string, series query.Series) error {
	if err := ValidateColumnName(name); err != nil {
		return err
	}
	shape, err := query.Check(series.Node())
	if err != nil {
		return fmt.Errorf("column %s: %w", name, err)
	}
	if !shape.PatientLevel() {
		return fmt.Errorf("column %s: %w", name, ErrNotPatientLevel)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.frozen {
		return ErrFrozen
	}
	if _, exists := d.index[name]; exists {
		return fmt.Errorf("column %s: %w", name, ErrDuplicateColumn)
	}
	d.index[name] = len(d.columns)
	d.columns = append(d.columns, Column{Name: name, Type: shape.Type, Expression: series.Node()})
	return nil
}

func ValidateColumnName(name string) error {
	if _, reserved := reservedNames[strings.ToLower(name)]; reserved {
		return fmt.Errorf("%q: %w", name, ErrReservedColumnName)
	}
	if len(name) > maxColumnNameLength || !columnNamePattern.MatchString(name) {
		return fmt.Errorf("%q: %w", name, ErrInvalidColumnName)
	}
	return nil
}

func (d *Dataset) Population() query.Node {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.population
}

// Columns returns the bound columns in declaration order.
func (d *Dataset) Columns() []Column {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Column, len(d.columns))
	copy(out, d.columns)
	return out
}

func (d *Dataset) Column(name string) (Column, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	i, ok := d.index[name]
	if !ok {
		return Column{}, false
	}
	return d.columns[i], true
}

func (d *Dataset) Validate() error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.population == nil {
		return ErrPopulationUndefined
	}
	if len(d.columns) == 0 {
		return ErrNoColumns
	}
	return nil
}

// Freeze validates the dataset and rejects any later mutation.
func (d *Dataset) Freeze() error {
	if err := d.Validate(); err != nil {
		return err
	}
	d.mu.Lock()
	d.frozen = true
	d.mu.Unlock()
	return nil
}

func (d *Dataset) Frozen() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.frozen
}

// Nodes returns the population followed by every column expression.
func (d *Dataset) Nodes() []query.Node {
	d.mu.RLock()
	defer d.mu.RUnlock()
	nodes := make([]query.Node, 0, len(d.columns)+1)
	if d.population != nil {
		nodes = append(nodes, d.population)
	}
	for _, c := range d.columns {
		nodes = append(nodes, c.Expression)
	}
	return nodes
}

// Hash identifies the declaration by content: the rendered expressions plus
// the codes of every referenced codelist.
func (d *Dataset) Hash() string {
	h := sha256.New()
	d.mu.RLock()
	if d.population != nil {
		fmt.Fprintf(h, "population=%s\n", query.Format(d.population))
		writeCodes(h, d.population)
	}
	for _, c := range d.columns {
		fmt.Fprintf(h, "%s=%s\n", c.Name, query.Format(c.Expression))
		writeCodes(h, c.Expression)
	}
	d.mu.RUnlock()
	return hex.EncodeToString(h.Sum(nil))
}

func writeCodes(w io.Writer, node query.Node) {
	for _, cl := range query.Codelists(node) {
		fmt.Fprintf(w, "  %s:%s\n", cl.Name, strings.Join(cl.Codes(), ","))
	}
}
