// Package study declares the example study dataset: date of birth, sex and
// whether each registered patient has ever had a recorded diagnosis of
// diabetes, hypertension or asthma.
package study

import (
	"github.com/synaptica-ai/studydata/pkg/dataset"
	"github.com/synaptica-ai/studydata/pkg/query"
	"github.com/synaptica-ai/studydata/pkg/terminology"
)

// The study codelists are part of the declaration and do not follow the
// configured catalog.
var (
	Diabetes     = terminology.MustCodelist("diabetes", terminology.SystemSNOMEDCT, "73211009", "44054006")
	Hypertension = terminology.MustCodelist("hypertension", terminology.SystemSNOMEDCT, "38341003")
	Asthma       = terminology.MustCodelist("asthma", terminology.SystemSNOMEDCT, "195967001")
)

var conditionColumns = []struct {
	column   string
	codelist terminology.Codelist
}{
	{"has_diabetes", Diabetes},
	{"has_hypertension", Hypertension},
	{"has_asthma", Asthma},
}

// Definition builds the frozen study dataset.
func Definition() (*dataset.Dataset, error) {
	patients := query.Patients
	events := query.ClinicalEvents

	ds := dataset.New()

	// All registered patients
	if err := ds.DefinePopulation(patients.ExistsForPatient()); err != nil {
		return nil, err
	}

	if err := ds.Add("date_of_birth", patients.DateOfBirth); err != nil {
		return nil, err
	}
	if err := ds.Add("sex", patients.Sex); err != nil {
		return nil, err
	}

	for _, cond := range conditionColumns {
		flag := events.Where(events.SNOMEDCTCode.IsIn(cond.codelist)).ExistsForPatient()
		if err := ds.Add(cond.column, flag); err != nil {
			return nil, err
		}
	}

	if err := ds.Freeze(); err != nil {
		return nil, err
	}
	return ds, nil
}
