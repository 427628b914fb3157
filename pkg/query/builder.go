package query

import "github.com/synaptica-ai/studydata/pkg/terminology"

// Frame is a table, possibly filtered, that can be reduced to one value per
// patient.
type Frame struct {
	node Node
}

func NewFrame(node Node) Frame {
	return Frame{node: node}
}

func (f Frame) Node() Node {
	return f.node
}

func (f Frame) Where(condition Series) Frame {
	return Frame{node: Filter{Source: f.node, Condition: condition.node}}
}

func (f Frame) ExistsForPatient() Series {
	return Series{node: Exists{Source: f.node}}
}

func (f Frame) CountForPatient() Series {
	return Series{node: Count{Source: f.node}}
}

// Column selects a column by name. Unknown names are reported by Check.
func (f Frame) Column(name string) Series {
	return Series{node: SelectColumn{Source: f.node, Name: name}}
}

type Series struct {
	node Node
}

func NewSeries(node Node) Series {
	return Series{node: node}
}

func (s Series) Node() Node {
	return s.node
}

func (s Series) IsIn(codelist terminology.Codelist) Series {
	return Series{node: IsIn{Operand: s.node, Codelist: codelist}}
}

func (s Series) Not() Series {
	return Series{node: Not{Operand: s.node}}
}

func (s Series) And(other Series) Series {
	return Series{node: And{LHS: s.node, RHS: other.node}}
}

func (s Series) Or(other Series) Series {
	return Series{node: Or{LHS: s.node, RHS: other.node}}
}

func Literal(value interface{}, of Type) Series {
	return Series{node: Value{Value: value, Of: of}}
}

type PatientsFrame struct {
	Frame
	DateOfBirth Series
	Sex         Series
}

type ClinicalEventsFrame struct {
	Frame
	Date         Series
	SNOMEDCTCode Series
	NumericValue Series
}

var Patients = func() PatientsFrame {
	f := Frame{node: SelectPatientTable{Name: PatientsTable}}
	return PatientsFrame{
		Frame:       f,
		DateOfBirth: f.Column("date_of_birth"),
		Sex:         f.Column("sex"),
	}
}()

var ClinicalEvents = func() ClinicalEventsFrame {
	f := Frame{node: SelectTable{Name: ClinicalEventsTable}}
	return ClinicalEventsFrame{
		Frame:        f,
		Date:         f.Column("date"),
		SNOMEDCTCode: f.Column("snomedct_code"),
		NumericValue: f.Column("numeric_value"),
	}
}()
