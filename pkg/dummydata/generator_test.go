package dummydata

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synaptica-ai/studydata/pkg/engine"
	"github.com/synaptica-ai/studydata/pkg/query"
	"github.com/synaptica-ai/studydata/pkg/study"
)

var today = time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

func TestGenerateIsDeterministic(t *testing.T) {
	ds, err := study.Definition()
	require.NoError(t, err)

	opts := Options{PopulationSize: 50, Seed: 7, Today: today}
	a, err := Generate(context.Background(), ds, opts)
	require.NoError(t, err)
	b, err := Generate(context.Background(), ds, opts)
	require.NoError(t, err)

	ctx := context.Background()
	for _, table := range query.TableNames() {
		ra, _ := a.Rows(ctx, table)
		rb, _ := b.Rows(ctx, table)
		assert.Equal(t, ra, rb, table)
	}
}

func TestGeneratedPatientsAreValid(t *testing.T) {
	ds, err := study.Definition()
	require.NoError(t, err)

	src, err := Generate(context.Background(), ds, Options{PopulationSize: 200, Seed: 1, Today: today})
	require.NoError(t, err)

	patients, err := src.Rows(context.Background(), query.PatientsTable)
	require.NoError(t, err)
	require.Len(t, patients, 200)

	for _, p := range patients {
		dob := p["date_of_birth"].(time.Time)
		assert.Equal(t, 1, dob.Day())
		assert.False(t, dob.After(today))
		assert.Contains(t, query.SexCategories, p["sex"])
	}
}

func TestGeneratedDataExercisesEveryFlag(t *testing.T) {
	ds, err := study.Definition()
	require.NoError(t, err)

	src, err := Generate(context.Background(), ds, Options{PopulationSize: 300, Seed: 42, Today: today})
	require.NoError(t, err)

	res, err := engine.Evaluate(context.Background(), ds, src)
	require.NoError(t, err)
	require.Equal(t, 300, res.Len())

	for _, col := range []string{"has_diabetes", "has_hypertension", "has_asthma"} {
		seen := map[interface{}]bool{}
		for _, rec := range res.Records {
			v, _ := res.Value(rec.PatientID, col)
			seen[v] = true
		}
		assert.True(t, seen[true], "%s never true", col)
		assert.True(t, seen[false], "%s never false", col)
	}
}

func TestGenerateUnregisteredPatientsAreExcluded(t *testing.T) {
	ds, err := study.Definition()
	require.NoError(t, err)

	src, err := Generate(context.Background(), ds, Options{PopulationSize: 100, Seed: 3, Today: today, UnregisteredRate: 0.5})
	require.NoError(t, err)
	assert.Equal(t, 100, src.Len(query.PatientsTable))
	assert.Equal(t, 50, unregisteredWithEvents(t, src))

	res, err := engine.Evaluate(context.Background(), ds, src)
	require.NoError(t, err)
	assert.Equal(t, 100, res.Len())
	for _, rec := range res.Records {
		_, ok := res.Value(rec.PatientID, "sex")
		assert.True(t, ok)
	}
	_, ok := res.Value("101", "has_diabetes")
	assert.False(t, ok)
}

func TestGenerateUnregisteredDefault(t *testing.T) {
	ds, err := study.Definition()
	require.NoError(t, err)

	src, err := Generate(context.Background(), ds, Options{PopulationSize: 10, Seed: 1, Today: today})
	require.NoError(t, err)
	assert.Equal(t, 1, unregisteredWithEvents(t, src))

	src, err = Generate(context.Background(), ds, Options{PopulationSize: 10, Seed: 1, Today: today, UnregisteredRate: -1})
	require.NoError(t, err)
	assert.Equal(t, 0, unregisteredWithEvents(t, src))
}

func unregisteredWithEvents(t *testing.T, src *engine.MemorySource) int {
	t.Helper()
	ctx := context.Background()
	patients, err := src.Rows(ctx, query.PatientsTable)
	require.NoError(t, err)
	events, err := src.Rows(ctx, query.ClinicalEventsTable)
	require.NoError(t, err)

	registered := map[interface{}]bool{}
	for _, p := range patients {
		registered[p["patient_id"]] = true
	}
	outside := map[interface{}]bool{}
	for _, e := range events {
		if !registered[e["patient_id"]] {
			outside[e["patient_id"]] = true
		}
	}
	return len(outside)
}
