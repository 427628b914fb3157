package output

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/synaptica-ai/studydata/pkg/engine"
	"github.com/synaptica-ai/studydata/pkg/query"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ColumnSummary describes one column of a result. Date columns are
// summarised as ages in years at the reference date.
type ColumnSummary struct {
	Name   string         `json:"name"`
	Type   query.Type     `json:"type"`
	Nulls  int            `json:"nulls"`
	Counts map[string]int `json:"counts,omitempty"`
	Mean   float64        `json:"mean,omitempty"`
	StdDev float64        `json:"std_dev,omitempty"`
	Min    float64        `json:"min,omitempty"`
	Max    float64        `json:"max,omitempty"`
}

func Summarize(result *engine.Result, reference time.Time) []ColumnSummary {
	summaries := make([]ColumnSummary, 0, len(result.Columns))
	for i, col := range result.Columns {
		s := ColumnSummary{Name: col.Name, Type: col.Type}
		var values []float64
		for _, rec := range result.Records {
			switch v := rec.Values[i].(type) {
			case nil:
				s.Nulls++
			case bool:
				s.count(stringifyValue(v))
			case string:
				s.count(v)
			case time.Time:
				values = append(values, reference.Sub(v).Hours()/(24*365.25))
			case int:
				values = append(values, float64(v))
			case float64:
				values = append(values, v)
			}
		}
		if len(values) > 0 {
			s.Mean, s.StdDev = stat.MeanStdDev(values, nil)
			s.Min = floats.Min(values)
			s.Max = floats.Max(values)
		}
		summaries = append(summaries, s)
	}
	return summaries
}

func (s *ColumnSummary) count(key string) {
	if s.Counts == nil {
		s.Counts = make(map[string]int)
	}
	s.Counts[key]++
}

func WriteSummary(w io.Writer, rows int, summaries []ColumnSummary) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "rows\t%d\n", rows)
	fmt.Fprintln(tw, "column\ttype\tnulls\tdetail")
	for _, s := range summaries {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", s.Name, s.Type, s.Nulls, s.detail())
	}
	return tw.Flush()
}

func (s ColumnSummary) detail() string {
	if len(s.Counts) > 0 {
		keys := make([]string, 0, len(s.Counts))
		for k := range s.Counts {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%d", k, s.Counts[k]))
		}
		return strings.Join(parts, " ")
	}
	if s.Max == 0 && s.Min == 0 && s.Mean == 0 {
		return ""
	}
	return fmt.Sprintf("mean=%.1f sd=%.1f min=%.1f max=%.1f", s.Mean, s.StdDev, s.Min, s.Max)
}
