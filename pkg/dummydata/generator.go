// Package dummydata generates synthetic patients and clinical events shaped
// by a dataset declaration, so that every condition column sees both matching
// and non-matching patients. A share of extra patients carries events without
// registration, so the population excludes them.
package dummydata

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/synaptica-ai/studydata/pkg/dataset"
	"github.com/synaptica-ai/studydata/pkg/engine"
	"github.com/synaptica-ai/studydata/pkg/query"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	DefaultPopulationSize   = 10
	DefaultUnregisteredRate = 0.1
	maxAge                  = 110

	// Never a member of any study codelist.
	fillerCode = "999999999"
)

type Options struct {
	PopulationSize int
	Seed           uint64
	Today          time.Time
	// Mean number of clinical events per patient.
	EventRate float64
	// Patients with clinical events but no row in the patients table, as a
	// share of PopulationSize. Zero selects the default, negative disables.
	UnregisteredRate float64
}

func (o Options) withDefaults() Options {
	if o.PopulationSize <= 0 {
		o.PopulationSize = DefaultPopulationSize
	}
	if o.Today.IsZero() {
		o.Today = time.Now().UTC()
	}
	if o.EventRate <= 0 {
		o.EventRate = 3
	}
	if o.UnregisteredRate == 0 {
		o.UnregisteredRate = DefaultUnregisteredRate
	}
	return o
}

// Generate builds a deterministic in-memory source for opts.Seed.
func Generate(ctx context.Context, ds *dataset.Dataset, opts Options) (*engine.MemorySource, error) {
	if ds == nil {
		return nil, fmt.Errorf("dataset is required")
	}
	opts = opts.withDefaults()

	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))
	ages := distuv.Normal{Mu: 45, Sigma: 22, Src: rng}
	eventCounts := distuv.Poisson{Lambda: opts.EventRate, Src: rng}

	codes := []string{fillerCode}
	seen := map[string]struct{}{fillerCode: {}}
	for _, node := range ds.Nodes() {
		for _, cl := range query.Codelists(node) {
			for _, code := range cl.Codes() {
				if _, ok := seen[code]; !ok {
					seen[code] = struct{}{}
					codes = append(codes, code)
				}
			}
		}
	}

	src := engine.NewMemorySource()
	addEvents := func(pid string, dob time.Time, n int) {
		for j := 0; j < n; j++ {
			src.Add(query.ClinicalEventsTable, engine.Row{
				"patient_id":    pid,
				"date":          eventDate(dob, opts.Today, rng),
				"snomedct_code": codes[rng.IntN(len(codes))],
				"numeric_value": nil,
			})
		}
	}

	for i := 1; i <= opts.PopulationSize; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pid := fmt.Sprintf("%d", i)
		dob := dateOfBirth(opts.Today, ages.Rand(), rng)
		src.Add(query.PatientsTable, engine.Row{
			"patient_id":    pid,
			"date_of_birth": dob,
			"sex":           query.SexCategories[rng.IntN(len(query.SexCategories))],
		})
		addEvents(pid, dob, int(eventCounts.Rand()))
	}

	// Unregistered patients always have events so they reach evaluation.
	unregistered := 0
	if opts.UnregisteredRate > 0 {
		unregistered = int(math.Ceil(opts.UnregisteredRate * float64(opts.PopulationSize)))
	}
	for i := 1; i <= unregistered; i++ {
		dob := dateOfBirth(opts.Today, ages.Rand(), rng)
		addEvents(fmt.Sprintf("%d", opts.PopulationSize+i), dob, 1+int(eventCounts.Rand()))
	}
	return src, nil
}

// dateOfBirth rounds to the first of the month, as patient records do.
func dateOfBirth(today time.Time, age float64, rng *rand.Rand) time.Time {
	age = math.Max(0, math.Min(maxAge, age))
	days := int(age*365.25) + rng.IntN(28)
	dob := today.AddDate(0, 0, -days)
	return time.Date(dob.Year(), dob.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func eventDate(dob, today time.Time, rng *rand.Rand) time.Time {
	span := int(today.Sub(dob).Hours() / 24)
	if span <= 0 {
		return dob
	}
	d := dob.AddDate(0, 0, rng.IntN(span))
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
}
