// Package query holds the expression tree used to declare dataset columns and
// populations, together with the schema of the tables those expressions read.
package query

import (
	"fmt"

	"github.com/synaptica-ai/studydata/pkg/terminology"
)

type Type int

const (
	Unknown Type = iota
	Bool
	Date
	String
	Code
	Int
	Float
)

func (t Type) String() string {
	switch t {
	case Bool:
		return "bool"
	case Date:
		return "date"
	case String:
		return "string"
	case Code:
		return "code"
	case Int:
		return "int"
	case Float:
		return "float"
	default:
		return "unknown"
	}
}

func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Type) UnmarshalText(text []byte) error {
	parsed, ok := ParseType(string(text))
	if !ok {
		return fmt.Errorf("unknown type %q", text)
	}
	*t = parsed
	return nil
}

func ParseType(name string) (Type, bool) {
	for t := Bool; t <= Float; t++ {
		if t.String() == name {
			return t, true
		}
	}
	return Unknown, false
}

// Node is a single expression in the tree. The set of implementations is
// closed.
type Node interface {
	isNode()
}

// Value is a literal broadcast to every patient.
type Value struct {
	Value interface{}
	Of    Type
}

type SelectPatientTable struct {
	Name string
}

type SelectTable struct {
	Name string
}

type SelectColumn struct {
	Source Node
	Name   string
}

// Filter keeps the rows of Source for which Condition is true.
type Filter struct {
	Source    Node
	Condition Node
}

type Exists struct {
	Source Node
}

type Count struct {
	Source Node
}

type IsIn struct {
	Operand  Node
	Codelist terminology.Codelist
}

type Not struct {
	Operand Node
}

type And struct {
	LHS Node
	RHS Node
}

type Or struct {
	LHS Node
	RHS Node
}

func (Value) isNode()              {}
func (SelectPatientTable) isNode() {}
func (SelectTable) isNode()        {}
func (SelectColumn) isNode()       {}
func (Filter) isNode()             {}
func (Exists) isNode()             {}
func (Count) isNode()              {}
func (IsIn) isNode()               {}
func (Not) isNode()                {}
func (And) isNode()                {}
func (Or) isNode()                 {}

// Walk visits node and its descendants depth first.
func Walk(node Node, visit func(Node)) {
	if node == nil {
		return
	}
	visit(node)
	switch n := node.(type) {
	case SelectColumn:
		Walk(n.Source, visit)
	case Filter:
		Walk(n.Source, visit)
		Walk(n.Condition, visit)
	case Exists:
		Walk(n.Source, visit)
	case Count:
		Walk(n.Source, visit)
	case IsIn:
		Walk(n.Operand, visit)
	case Not:
		Walk(n.Operand, visit)
	case And:
		Walk(n.LHS, visit)
		Walk(n.RHS, visit)
	case Or:
		Walk(n.LHS, visit)
		Walk(n.RHS, visit)
	}
}

// Codelists returns every codelist referenced under node, in visit order.
func Codelists(node Node) []terminology.Codelist {
	var out []terminology.Codelist
	Walk(node, func(n Node) {
		if in, ok := n.(IsIn); ok {
			out = append(out, in.Codelist)
		}
	})
	return out
}

// Tables returns the distinct table names read under node.
func Tables(node Node) []string {
	seen := map[string]struct{}{}
	var out []string
	Walk(node, func(n Node) {
		var name string
		switch t := n.(type) {
		case SelectTable:
			name = t.Name
		case SelectPatientTable:
			name = t.Name
		default:
			return
		}
		if _, ok := seen[name]; !ok {
			seen[name] = struct{}{}
			out = append(out, name)
		}
	})
	return out
}

func unexpectedNode(node Node) error {
	return fmt.Errorf("unexpected node %T", node)
}
