package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synaptica-ai/studydata/pkg/dataset"
	"github.com/synaptica-ai/studydata/pkg/query"
	"github.com/synaptica-ai/studydata/pkg/terminology"
)

var diabetes = terminology.MustCodelist("diabetes", terminology.SystemSNOMEDCT, "73211009", "44054006")

func flagDataset(t *testing.T, cl terminology.Codelist) *dataset.Dataset {
	t.Helper()
	events := query.ClinicalEvents
	ds := dataset.New()
	require.NoError(t, ds.DefinePopulation(query.Patients.ExistsForPatient()))
	require.NoError(t, ds.Add("sex", query.Patients.Sex))
	require.NoError(t, ds.Add("has_diabetes", events.Where(events.SNOMEDCTCode.IsIn(cl)).ExistsForPatient()))
	require.NoError(t, ds.Add("diabetes_count", events.Where(events.SNOMEDCTCode.IsIn(cl)).CountForPatient()))
	require.NoError(t, ds.Freeze())
	return ds
}

func fixture() *MemorySource {
	src := NewMemorySource()
	src.Add(query.PatientsTable,
		Row{"patient_id": "1", "date_of_birth": "1980-05-01", "sex": "female"},
		Row{"patient_id": "2", "date_of_birth": time.Date(1990, 1, 1, 12, 0, 0, 0, time.UTC), "sex": "male"},
		Row{"patient_id": "3", "date_of_birth": nil, "sex": nil},
	)
	src.Add(query.ClinicalEventsTable,
		Row{"patient_id": "1", "snomedct_code": "44054006", "date": "2020-01-01"},
		Row{"patient_id": "1", "snomedct_code": "99999999"},
		Row{"patient_id": "1", "snomedct_code": "73211009"},
		Row{"patient_id": "2", "snomedct_code": "38341003"},
		Row{"patient_id": "2", "snomedct_code": nil},
		// not registered
		Row{"patient_id": "9", "snomedct_code": "44054006"},
	)
	return src
}

func TestEvaluateFlagsAndPopulation(t *testing.T) {
	res, err := Evaluate(context.Background(), flagDataset(t, diabetes), fixture())
	require.NoError(t, err)

	require.Equal(t, 3, res.Len())
	var ids []string
	for _, r := range res.Records {
		ids = append(ids, r.PatientID)
	}
	assert.Equal(t, []string{"1", "2", "3"}, ids)

	v, _ := res.Value("1", "has_diabetes")
	assert.Equal(t, true, v)
	v, _ = res.Value("1", "diabetes_count")
	assert.Equal(t, 2, v)

	v, _ = res.Value("2", "has_diabetes")
	assert.Equal(t, false, v)

	// no events at all: false, never null
	v, _ = res.Value("3", "has_diabetes")
	assert.Equal(t, false, v)
	v, _ = res.Value("3", "diabetes_count")
	assert.Equal(t, 0, v)
	v, ok := res.Value("3", "sex")
	assert.True(t, ok)
	assert.Nil(t, v)

	_, ok = res.Value("9", "has_diabetes")
	assert.False(t, ok, "patient without a patients row must be omitted")
}

func TestEvaluateCodeOrderIrrelevant(t *testing.T) {
	reordered := terminology.MustCodelist("diabetes", terminology.SystemSNOMEDCT, "44054006", "73211009")

	a, err := Evaluate(context.Background(), flagDataset(t, diabetes), fixture())
	require.NoError(t, err)
	b, err := Evaluate(context.Background(), flagDataset(t, reordered), fixture())
	require.NoError(t, err)

	assert.Equal(t, a.Records, b.Records)
}

func TestEvaluateNoPrefixMatching(t *testing.T) {
	src := NewMemorySource()
	src.Add(query.PatientsTable, Row{"patient_id": "1", "sex": "unknown"})
	src.Add(query.ClinicalEventsTable,
		Row{"patient_id": "1", "snomedct_code": "440540061"},
		Row{"patient_id": "1", "snomedct_code": "4405400"},
	)

	res, err := Evaluate(context.Background(), flagDataset(t, diabetes), src)
	require.NoError(t, err)
	v, _ := res.Value("1", "has_diabetes")
	assert.Equal(t, false, v)
}

func TestEvaluateNormalizesDates(t *testing.T) {
	ds := dataset.New()
	require.NoError(t, ds.DefinePopulation(query.Patients.ExistsForPatient()))
	require.NoError(t, ds.Add("date_of_birth", query.Patients.DateOfBirth))

	res, err := Evaluate(context.Background(), ds, fixture())
	require.NoError(t, err)

	v, _ := res.Value("2", "date_of_birth")
	assert.Equal(t, time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC), v)
	v, _ = res.Value("1", "date_of_birth")
	assert.Equal(t, time.Date(1980, 5, 1, 0, 0, 0, 0, time.UTC), v)
}

func TestEvaluateRejectsDuplicatePatientRows(t *testing.T) {
	src := NewMemorySource()
	src.Add(query.PatientsTable, Row{"patient_id": "1"}, Row{"patient_id": "1"})

	_, err := Evaluate(context.Background(), flagDataset(t, diabetes), src)
	require.ErrorIs(t, err, ErrDuplicatePatientRow)
}

func TestEvaluateThreeValuedLogic(t *testing.T) {
	events := query.ClinicalEvents
	isDiabetes := events.SNOMEDCTCode.IsIn(diabetes)

	ds := dataset.New()
	require.NoError(t, ds.DefinePopulation(query.Patients.ExistsForPatient()))
	require.NoError(t, ds.Add("non_diabetes_events", events.Where(isDiabetes.Not()).CountForPatient()))
	require.NoError(t, ds.Add("any_or_true", events.Where(isDiabetes.Or(query.Literal(true, query.Bool))).CountForPatient()))

	res, err := Evaluate(context.Background(), ds, fixture())
	require.NoError(t, err)

	// the null code is neither a diabetes nor a non-diabetes event
	v, _ := res.Value("2", "non_diabetes_events")
	assert.Equal(t, 1, v)
	v, _ = res.Value("2", "any_or_true")
	assert.Equal(t, 2, v)
}

func TestEvaluateRequiresValidDataset(t *testing.T) {
	_, err := Evaluate(context.Background(), dataset.New(), NewMemorySource())
	require.ErrorIs(t, err, dataset.ErrPopulationUndefined)
}

func TestEvaluateHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Evaluate(ctx, flagDataset(t, diabetes), fixture())
	require.ErrorIs(t, err, context.Canceled)
}

func TestRestoreTypes(t *testing.T) {
	res := &Result{
		Columns: []Column{{Name: "date_of_birth", Type: query.Date}, {Name: "n", Type: query.Int}},
		Records: []Record{{PatientID: "1", Values: []interface{}{"1990-01-01T00:00:00Z", float64(3)}}},
	}
	require.NoError(t, res.RestoreTypes())
	assert.Equal(t, time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC), res.Records[0].Values[0])
	assert.Equal(t, 3, res.Records[0].Values[1])
}
