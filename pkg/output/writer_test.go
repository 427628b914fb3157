package output

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synaptica-ai/studydata/pkg/engine"
	"github.com/synaptica-ai/studydata/pkg/query"
)

func sampleResult() *engine.Result {
	return &engine.Result{
		Columns: []engine.Column{
			{Name: "date_of_birth", Type: query.Date},
			{Name: "sex", Type: query.String},
			{Name: "has_asthma", Type: query.Bool},
		},
		Records: []engine.Record{
			{PatientID: "1", Values: []interface{}{time.Date(1980, 5, 1, 0, 0, 0, 0, time.UTC), "female", true}},
			{PatientID: "2", Values: []interface{}{nil, nil, false}},
		},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatCSV, sampleResult()))

	want := "patient_id,date_of_birth,sex,has_asthma\n" +
		"1,1980-05-01,female,T\n" +
		"2,,,F\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteCSVGzip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatCSVGzip, sampleResult()))

	gz, err := gzip.NewReader(&buf)
	require.NoError(t, err)
	content, err := io.ReadAll(gz)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(content), "patient_id,date_of_birth"))
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatJSON, sampleResult()))

	var rows []map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "1980-05-01", rows[0]["date_of_birth"])
	assert.Equal(t, true, rows[0]["has_asthma"])
	assert.Nil(t, rows[1]["sex"])
}

func TestWriteUnknownFormat(t *testing.T) {
	assert.Error(t, Write(io.Discard, "arrow", sampleResult()))
}

func TestFormatFromPath(t *testing.T) {
	for path, want := range map[string]string{
		"":                FormatCSV,
		"-":               FormatCSV,
		"out/dataset.csv": FormatCSV,
		"dataset.CSV.GZ":  FormatCSVGzip,
		"dataset.json":    FormatJSON,
	} {
		got, err := FormatFromPath(path)
		require.NoError(t, err, path)
		assert.Equal(t, want, got, path)
	}
	_, err := FormatFromPath("dataset.arrow")
	assert.Error(t, err)
}

func TestSummarize(t *testing.T) {
	ref := time.Date(2020, 5, 1, 0, 0, 0, 0, time.UTC)
	summaries := Summarize(sampleResult(), ref)
	require.Len(t, summaries, 3)

	dob := summaries[0]
	assert.Equal(t, 1, dob.Nulls)
	assert.InDelta(t, 40, dob.Mean, 0.1)

	assert.Equal(t, map[string]int{"female": 1}, summaries[1].Counts)
	assert.Equal(t, map[string]int{"T": 1, "F": 1}, summaries[2].Counts)

	var buf bytes.Buffer
	require.NoError(t, WriteSummary(&buf, 2, summaries))
	assert.Contains(t, buf.String(), "has_asthma")
	assert.Contains(t, buf.String(), "F=1 T=1")
}
