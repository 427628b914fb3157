package dataset

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synaptica-ai/studydata/pkg/query"
	"github.com/synaptica-ai/studydata/pkg/terminology"
)

var hypertension = terminology.MustCodelist("hypertension", terminology.SystemSNOMEDCT, "38341003")

func newValidDataset(t *testing.T) *Dataset {
	t.Helper()
	ds := New()
	require.NoError(t, ds.DefinePopulation(query.Patients.ExistsForPatient()))
	require.NoError(t, ds.Add("sex", query.Patients.Sex))
	return ds
}

func TestAddRejectsDuplicateColumn(t *testing.T) {
	ds := newValidDataset(t)
	err := ds.Add("sex", query.Patients.DateOfBirth)
	require.ErrorIs(t, err, ErrDuplicateColumn)

	col, ok := ds.Column("sex")
	require.True(t, ok)
	assert.Equal(t, query.String, col.Type)
}

func TestAddRejectsBadNames(t *testing.T) {
	ds := New()
	for _, name := range []string{"", "1st", "_hidden", "has-asthma", "has asthma"} {
		if err := ds.Add(name, query.Patients.Sex); !errors.Is(err, ErrInvalidColumnName) {
			t.Fatalf("expected ErrInvalidColumnName for %q, got %v", name, err)
		}
	}
	for _, name := range []string{"patient_id", "population", "Population"} {
		if err := ds.Add(name, query.Patients.Sex); !errors.Is(err, ErrReservedColumnName) {
			t.Fatalf("expected ErrReservedColumnName for %q, got %v", name, err)
		}
	}
}

func TestAddRejectsEventLevelSeries(t *testing.T) {
	ds := New()
	err := ds.Add("code", query.ClinicalEvents.SNOMEDCTCode)
	require.ErrorIs(t, err, ErrNotPatientLevel)
}

func TestDefinePopulation(t *testing.T) {
	ds := New()
	require.ErrorIs(t, ds.DefinePopulation(query.Patients.Sex), ErrNotBoolean)
	require.ErrorIs(t, ds.DefinePopulation(query.ClinicalEvents.SNOMEDCTCode.IsIn(hypertension)), ErrNotPatientLevel)

	require.NoError(t, ds.DefinePopulation(query.Patients.ExistsForPatient()))
	require.ErrorIs(t, ds.DefinePopulation(query.Patients.ExistsForPatient()), ErrPopulationAlreadyDefined)
}

func TestValidate(t *testing.T) {
	ds := New()
	require.ErrorIs(t, ds.Validate(), ErrPopulationUndefined)
	require.NoError(t, ds.DefinePopulation(query.Patients.ExistsForPatient()))
	require.ErrorIs(t, ds.Validate(), ErrNoColumns)
	require.ErrorIs(t, ds.Freeze(), ErrNoColumns)
}

func TestFreezeRejectsMutation(t *testing.T) {
	ds := newValidDataset(t)
	require.NoError(t, ds.Freeze())
	assert.True(t, ds.Frozen())

	require.ErrorIs(t, ds.Add("date_of_birth", query.Patients.DateOfBirth), ErrFrozen)
	assert.Len(t, ds.Columns(), 1)
}

func TestColumnsKeepDeclarationOrder(t *testing.T) {
	ds := newValidDataset(t)
	require.NoError(t, ds.Add("date_of_birth", query.Patients.DateOfBirth))
	require.NoError(t, ds.Add("has_hypertension",
		query.ClinicalEvents.Where(query.ClinicalEvents.SNOMEDCTCode.IsIn(hypertension)).ExistsForPatient()))

	var names []string
	for _, c := range ds.Columns() {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"sex", "date_of_birth", "has_hypertension"}, names)
	assert.Len(t, ds.Nodes(), 4)
}

func TestHashIgnoresCodeOrder(t *testing.T) {
	build := func(codes ...string) *Dataset {
		cl := terminology.MustCodelist("diabetes", terminology.SystemSNOMEDCT, codes...)
		ds := newValidDataset(t)
		require.NoError(t, ds.Add("has_diabetes",
			query.ClinicalEvents.Where(query.ClinicalEvents.SNOMEDCTCode.IsIn(cl)).ExistsForPatient()))
		return ds
	}

	a := build("73211009", "44054006")
	b := build("44054006", "73211009")
	c := build("44054006")

	assert.Equal(t, a.Hash(), b.Hash())
	assert.NotEqual(t, a.Hash(), c.Hash())
}
