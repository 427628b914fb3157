package query

import (
	"fmt"
	"strconv"
	"strings"
)

// Format renders node in the textual form accepted by the dsl package. Named
// codelists are rendered by reference; anonymous ones inline.
func Format(node Node) string {
	var b strings.Builder
	format(&b, node)
	return b.String()
}

func format(b *strings.Builder, node Node) {
	switch n := node.(type) {
	case Value:
		switch v := n.Value.(type) {
		case string:
			b.WriteString(strconv.Quote(v))
		case bool:
			b.WriteString(strconv.FormatBool(v))
		default:
			fmt.Fprintf(b, "%v", v)
		}
	case SelectPatientTable:
		b.WriteString(n.Name)
	case SelectTable:
		b.WriteString(n.Name)
	case SelectColumn:
		b.WriteString(rootTable(n.Source))
		b.WriteString(".")
		b.WriteString(n.Name)
	case Filter:
		format(b, n.Source)
		b.WriteString(".where(")
		format(b, n.Condition)
		b.WriteString(")")
	case Exists:
		format(b, n.Source)
		b.WriteString(".exists_for_patient()")
	case Count:
		format(b, n.Source)
		b.WriteString(".count_for_patient()")
	case IsIn:
		format(b, n.Operand)
		b.WriteString(".is_in(")
		if n.Codelist.Name != "" {
			b.WriteString("codelists.")
			b.WriteString(n.Codelist.Name)
		} else {
			quoted := make([]string, 0, n.Codelist.Len())
			for _, c := range n.Codelist.Codes() {
				quoted = append(quoted, strconv.Quote(c))
			}
			b.WriteString("[" + strings.Join(quoted, ", ") + "]")
		}
		b.WriteString(")")
	case Not:
		b.WriteString("not(")
		format(b, n.Operand)
		b.WriteString(")")
	case And:
		b.WriteString("and(")
		format(b, n.LHS)
		b.WriteString(", ")
		format(b, n.RHS)
		b.WriteString(")")
	case Or:
		b.WriteString("or(")
		format(b, n.LHS)
		b.WriteString(", ")
		format(b, n.RHS)
		b.WriteString(")")
	default:
		fmt.Fprintf(b, "<%T>", node)
	}
}

// Column references always name the underlying table, even when the column
// is read from a filtered frame inside a condition.
func rootTable(node Node) string {
	switch n := node.(type) {
	case SelectTable:
		return n.Name
	case SelectPatientTable:
		return n.Name
	case Filter:
		return rootTable(n.Source)
	default:
		return Format(node)
	}
}
