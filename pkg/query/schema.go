package query

const (
	PatientsTable       = "patients"
	ClinicalEventsTable = "clinical_events"

	PatientIDColumn = "patient_id"
)

var SexCategories = []string{"female", "male", "intersex", "unknown"}

type Column struct {
	Name       string
	Type       Type
	Categories []string
}

// Table describes a source table. Patient-level tables hold at most one row
// per patient; event-level tables hold any number.
type Table struct {
	Name         string
	PatientLevel bool
	Columns      []Column
}

func (t Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

var schema = map[string]Table{
	PatientsTable: {
		Name:         PatientsTable,
		PatientLevel: true,
		Columns: []Column{
			{Name: "date_of_birth", Type: Date},
			{Name: "sex", Type: String, Categories: SexCategories},
		},
	},
	ClinicalEventsTable: {
		Name: ClinicalEventsTable,
		Columns: []Column{
			{Name: "date", Type: Date},
			{Name: "snomedct_code", Type: Code},
			{Name: "numeric_value", Type: Float},
		},
	},
}

func LookupTable(name string) (Table, bool) {
	t, ok := schema[name]
	return t, ok
}

func TableNames() []string {
	return []string{PatientsTable, ClinicalEventsTable}
}
