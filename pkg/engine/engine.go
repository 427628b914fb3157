// Package engine evaluates dataset declarations against table rows held in
// memory.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/synaptica-ai/studydata/pkg/dataset"
	"github.com/synaptica-ai/studydata/pkg/query"
)

const DateLayout = "2006-01-02"

var ErrDuplicatePatientRow = errors.New("patient-level table has more than one row for a patient")

type Column struct {
	Name string     `json:"name"`
	Type query.Type `json:"type"`
}

type Record struct {
	PatientID string        `json:"patient_id"`
	Values    []interface{} `json:"values"`
}

type Result struct {
	Columns []Column `json:"columns"`
	Records []Record `json:"records"`
}

func (r *Result) Len() int {
	return len(r.Records)
}

// Value returns the named column for a patient.
func (r *Result) Value(patientID, column string) (interface{}, bool) {
	idx := -1
	for i, c := range r.Columns {
		if c.Name == column {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, false
	}
	for _, rec := range r.Records {
		if rec.PatientID == patientID {
			return rec.Values[idx], true
		}
	}
	return nil, false
}

// RestoreTypes converts values decoded from JSON back to their column types.
func (r *Result) RestoreTypes() error {
	for ri := range r.Records {
		for ci, col := range r.Columns {
			if ci >= len(r.Records[ri].Values) {
				return fmt.Errorf("record %s has %d values for %d columns", r.Records[ri].PatientID, len(r.Records[ri].Values), len(r.Columns))
			}
			v, err := coerce(col.Type, r.Records[ri].Values[ci])
			if err != nil {
				return fmt.Errorf("record %s column %s: %w", r.Records[ri].PatientID, col.Name, err)
			}
			r.Records[ri].Values[ci] = v
		}
	}
	return nil
}

type evaluator struct {
	// table -> patient -> rows
	rows map[string]map[string][]Row
}

// Evaluate runs the declaration against src. A patient is emitted iff the
// population predicate is true for them; rows are ordered by patient id.
func Evaluate(ctx context.Context, ds *dataset.Dataset, src Source) (*Result, error) {
	if err := ds.Validate(); err != nil {
		return nil, err
	}

	tables := map[string]struct{}{query.PatientsTable: {}}
	for _, node := range ds.Nodes() {
		for _, t := range query.Tables(node) {
			tables[t] = struct{}{}
		}
	}

	ev := &evaluator{rows: make(map[string]map[string][]Row, len(tables))}
	candidates := map[string]struct{}{}
	for name := range tables {
		grouped, err := load(ctx, src, name)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", name, err)
		}
		ev.rows[name] = grouped
		for pid := range grouped {
			candidates[pid] = struct{}{}
		}
	}

	patientIDs := make([]string, 0, len(candidates))
	for pid := range candidates {
		patientIDs = append(patientIDs, pid)
	}
	sort.Strings(patientIDs)

	columns := ds.Columns()
	result := &Result{Columns: make([]Column, len(columns))}
	for i, c := range columns {
		result.Columns[i] = Column{Name: c.Name, Type: c.Type}
	}

	population := ds.Population()
	for _, pid := range patientIDs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		included, err := ev.series(population, pid, nil)
		if err != nil {
			return nil, fmt.Errorf("population: %w", err)
		}
		if included != true {
			continue
		}
		record := Record{PatientID: pid, Values: make([]interface{}, len(columns))}
		for i, c := range columns {
			v, err := ev.series(c.Expression, pid, nil)
			if err != nil {
				return nil, fmt.Errorf("column %s: %w", c.Name, err)
			}
			record.Values[i] = v
		}
		result.Records = append(result.Records, record)
	}
	return result, nil
}

func load(ctx context.Context, src Source, name string) (map[string][]Row, error) {
	table, ok := query.LookupTable(name)
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, query.ErrUnknownTable)
	}
	rows, err := src.Rows(ctx, name)
	if err != nil {
		return nil, err
	}
	grouped := make(map[string][]Row)
	for _, row := range rows {
		raw, ok := row[query.PatientIDColumn]
		if !ok || raw == nil {
			return nil, fmt.Errorf("row without %s", query.PatientIDColumn)
		}
		pid := fmt.Sprint(raw)
		normalized := Row{query.PatientIDColumn: pid}
		for _, col := range table.Columns {
			v, err := coerce(col.Type, row[col.Name])
			if err != nil {
				return nil, fmt.Errorf("patient %s column %s: %w", pid, col.Name, err)
			}
			normalized[col.Name] = v
		}
		if table.PatientLevel && len(grouped[pid]) > 0 {
			return nil, fmt.Errorf("%s patient %s: %w", name, pid, ErrDuplicatePatientRow)
		}
		grouped[pid] = append(grouped[pid], normalized)
	}
	return grouped, nil
}

// series evaluates a series for one patient. row is the current row when the
// series is evaluated inside a where condition.
func (ev *evaluator) series(node query.Node, pid string, row Row) (interface{}, error) {
	switch n := node.(type) {
	case query.Value:
		return n.Value, nil
	case query.SelectColumn:
		table := rootTable(n.Source)
		if t, ok := query.LookupTable(table); ok && t.PatientLevel {
			rows, err := ev.frame(n.Source, pid)
			if err != nil || len(rows) == 0 {
				return nil, err
			}
			return rows[0][n.Name], nil
		}
		if row == nil {
			return nil, fmt.Errorf("%s.%s read outside a row context", table, n.Name)
		}
		return row[n.Name], nil
	case query.Exists:
		rows, err := ev.frame(n.Source, pid)
		if err != nil {
			return nil, err
		}
		return len(rows) > 0, nil
	case query.Count:
		rows, err := ev.frame(n.Source, pid)
		if err != nil {
			return nil, err
		}
		return len(rows), nil
	case query.IsIn:
		v, err := ev.series(n.Operand, pid, row)
		if err != nil || v == nil {
			return nil, err
		}
		code, ok := v.(string)
		if !ok {
			code = fmt.Sprint(v)
		}
		return n.Codelist.Contains(code), nil
	case query.Not:
		v, err := ev.series(n.Operand, pid, row)
		if err != nil || v == nil {
			return nil, err
		}
		return !v.(bool), nil
	case query.And:
		return ev.logical(n.LHS, n.RHS, pid, row, false)
	case query.Or:
		return ev.logical(n.LHS, n.RHS, pid, row, true)
	default:
		return nil, fmt.Errorf("cannot evaluate %T as a series", node)
	}
}

// logical implements three-valued AND (dominant=false) and OR
// (dominant=true).
func (ev *evaluator) logical(lhs, rhs query.Node, pid string, row Row, dominant bool) (interface{}, error) {
	l, err := ev.series(lhs, pid, row)
	if err != nil {
		return nil, err
	}
	r, err := ev.series(rhs, pid, row)
	if err != nil {
		return nil, err
	}
	if l == dominant || r == dominant {
		return dominant, nil
	}
	if l == nil || r == nil {
		return nil, nil
	}
	return !dominant, nil
}

func (ev *evaluator) frame(node query.Node, pid string) ([]Row, error) {
	switch n := node.(type) {
	case query.SelectTable:
		return ev.rows[n.Name][pid], nil
	case query.SelectPatientTable:
		return ev.rows[n.Name][pid], nil
	case query.Filter:
		rows, err := ev.frame(n.Source, pid)
		if err != nil {
			return nil, err
		}
		var kept []Row
		for _, row := range rows {
			v, err := ev.series(n.Condition, pid, row)
			if err != nil {
				return nil, err
			}
			if v == true {
				kept = append(kept, row)
			}
		}
		return kept, nil
	default:
		return nil, fmt.Errorf("cannot evaluate %T as a table", node)
	}
}

func rootTable(node query.Node) string {
	switch n := node.(type) {
	case query.SelectTable:
		return n.Name
	case query.SelectPatientTable:
		return n.Name
	case query.Filter:
		return rootTable(n.Source)
	default:
		return ""
	}
}

func coerce(t query.Type, v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case query.Date:
		switch d := v.(type) {
		case time.Time:
			y, m, day := d.Date()
			return time.Date(y, m, day, 0, 0, 0, 0, time.UTC), nil
		case *time.Time:
			if d == nil {
				return nil, nil
			}
			return coerce(t, *d)
		case string:
			if d == "" {
				return nil, nil
			}
			parsed, err := time.Parse(DateLayout, d)
			if err != nil {
				if parsed, err = time.Parse(time.RFC3339, d); err != nil {
					return nil, err
				}
			}
			return coerce(t, parsed)
		}
	case query.String, query.Code:
		switch s := v.(type) {
		case string:
			return s, nil
		case *string:
			if s == nil {
				return nil, nil
			}
			return *s, nil
		}
		return fmt.Sprint(v), nil
	case query.Bool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case query.Int:
		switch i := v.(type) {
		case int:
			return i, nil
		case int64:
			return int(i), nil
		case float64:
			return int(i), nil
		}
	case query.Float:
		switch f := v.(type) {
		case float64:
			return f, nil
		case *float64:
			if f == nil {
				return nil, nil
			}
			return *f, nil
		case float32:
			return float64(f), nil
		case int:
			return float64(f), nil
		}
	}
	return nil, fmt.Errorf("cannot convert %T to %s", v, t)
}
