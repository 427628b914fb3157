package query

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownTable   = errors.New("unknown table")
	ErrUnknownColumn  = errors.New("unknown column")
	ErrTypeMismatch   = errors.New("type mismatch")
	ErrDomainMismatch = errors.New("domain mismatch")
	ErrNotAFrame      = errors.New("expression is not a table")
	ErrNotASeries     = errors.New("expression is not a series")
)

type Kind int

const (
	SeriesKind Kind = iota
	FrameKind
)

// Shape is the result of checking a node. Domain is empty for values with at
// most one entry per patient and names the event table otherwise.
type Shape struct {
	Kind   Kind
	Type   Type
	Domain string
	Table  string
}

func (s Shape) PatientLevel() bool {
	return s.Kind == SeriesKind && s.Domain == ""
}

func Check(node Node) (Shape, error) {
	switch n := node.(type) {
	case nil:
		return Shape{}, errors.New("nil expression")
	case Value:
		if n.Of == Unknown {
			return Shape{}, fmt.Errorf("literal %v: %w", n.Value, ErrTypeMismatch)
		}
		return Shape{Kind: SeriesKind, Type: n.Of}, nil
	case SelectPatientTable:
		t, ok := LookupTable(n.Name)
		if !ok || !t.PatientLevel {
			return Shape{}, fmt.Errorf("%s is not a patient-level table: %w", n.Name, ErrUnknownTable)
		}
		return Shape{Kind: FrameKind, Table: t.Name}, nil
	case SelectTable:
		t, ok := LookupTable(n.Name)
		if !ok || t.PatientLevel {
			return Shape{}, fmt.Errorf("%s is not an event-level table: %w", n.Name, ErrUnknownTable)
		}
		return Shape{Kind: FrameKind, Domain: t.Name, Table: t.Name}, nil
	case SelectColumn:
		src, err := checkFrame(n.Source)
		if err != nil {
			return Shape{}, err
		}
		t, _ := LookupTable(src.Table)
		col, ok := t.Column(n.Name)
		if !ok {
			return Shape{}, fmt.Errorf("%s.%s: %w", src.Table, n.Name, ErrUnknownColumn)
		}
		return Shape{Kind: SeriesKind, Type: col.Type, Domain: src.Domain}, nil
	case Filter:
		src, err := checkFrame(n.Source)
		if err != nil {
			return Shape{}, err
		}
		cond, err := checkSeries(n.Condition, Bool)
		if err != nil {
			return Shape{}, fmt.Errorf("where condition: %w", err)
		}
		if cond.Domain != "" && cond.Domain != src.Domain {
			return Shape{}, fmt.Errorf("cannot filter %s by a condition on %s: %w", src.Table, cond.Domain, ErrDomainMismatch)
		}
		return src, nil
	case Exists:
		if _, err := checkFrame(n.Source); err != nil {
			return Shape{}, err
		}
		return Shape{Kind: SeriesKind, Type: Bool}, nil
	case Count:
		if _, err := checkFrame(n.Source); err != nil {
			return Shape{}, err
		}
		return Shape{Kind: SeriesKind, Type: Int}, nil
	case IsIn:
		op, err := Check(n.Operand)
		if err != nil {
			return Shape{}, err
		}
		if op.Kind != SeriesKind {
			return Shape{}, fmt.Errorf("is_in: %w", ErrNotASeries)
		}
		if op.Type != Code && op.Type != String {
			return Shape{}, fmt.Errorf("is_in applied to %s series: %w", op.Type, ErrTypeMismatch)
		}
		if n.Codelist.Len() == 0 {
			return Shape{}, fmt.Errorf("is_in with empty codelist: %w", ErrTypeMismatch)
		}
		return Shape{Kind: SeriesKind, Type: Bool, Domain: op.Domain}, nil
	case Not:
		op, err := checkSeries(n.Operand, Bool)
		if err != nil {
			return Shape{}, err
		}
		return op, nil
	case And:
		return checkLogical(n.LHS, n.RHS)
	case Or:
		return checkLogical(n.LHS, n.RHS)
	default:
		return Shape{}, unexpectedNode(node)
	}
}

func checkFrame(node Node) (Shape, error) {
	s, err := Check(node)
	if err != nil {
		return Shape{}, err
	}
	if s.Kind != FrameKind {
		return Shape{}, ErrNotAFrame
	}
	return s, nil
}

func checkSeries(node Node, want Type) (Shape, error) {
	s, err := Check(node)
	if err != nil {
		return Shape{}, err
	}
	if s.Kind != SeriesKind {
		return Shape{}, ErrNotASeries
	}
	if s.Type != want {
		return Shape{}, fmt.Errorf("expected %s, got %s: %w", want, s.Type, ErrTypeMismatch)
	}
	return s, nil
}

func checkLogical(lhs, rhs Node) (Shape, error) {
	l, err := checkSeries(lhs, Bool)
	if err != nil {
		return Shape{}, err
	}
	r, err := checkSeries(rhs, Bool)
	if err != nil {
		return Shape{}, err
	}
	switch {
	case l.Domain == r.Domain, r.Domain == "":
		return l, nil
	case l.Domain == "":
		return r, nil
	default:
		return Shape{}, fmt.Errorf("cannot combine %s and %s: %w", l.Domain, r.Domain, ErrDomainMismatch)
	}
}
