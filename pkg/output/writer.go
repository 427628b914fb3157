// Package output serialises evaluated datasets.
package output

import (
	"compress/gzip"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/synaptica-ai/studydata/pkg/engine"
	"github.com/synaptica-ai/studydata/pkg/query"
)

const (
	FormatCSV     = "csv"
	FormatCSVGzip = "csv.gz"
	FormatJSON    = "json"
)

func Formats() []string {
	return []string{FormatCSV, FormatCSVGzip, FormatJSON}
}

func ContentType(format string) string {
	switch format {
	case FormatCSVGzip:
		return "application/gzip"
	case FormatJSON:
		return "application/json"
	default:
		return "text/csv"
	}
}

// FormatFromPath picks the format from a file extension, defaulting to CSV.
func FormatFromPath(path string) (string, error) {
	lower := strings.ToLower(path)
	switch {
	case path == "" || path == "-":
		return FormatCSV, nil
	case strings.HasSuffix(lower, ".csv.gz"):
		return FormatCSVGzip, nil
	case strings.HasSuffix(lower, ".csv"):
		return FormatCSV, nil
	case strings.HasSuffix(lower, ".json"):
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unsupported output file %q, expected one of %v", path, Formats())
}

func Write(w io.Writer, format string, result *engine.Result) error {
	switch format {
	case FormatCSV, "":
		return WriteCSV(w, result)
	case FormatCSVGzip:
		gz := gzip.NewWriter(w)
		if err := WriteCSV(gz, result); err != nil {
			gz.Close()
			return err
		}
		return gz.Close()
	case FormatJSON:
		return WriteJSON(w, result)
	}
	return fmt.Errorf("unsupported format %q", format)
}

func WriteCSV(w io.Writer, result *engine.Result) error {
	writer := csv.NewWriter(w)
	header := make([]string, 0, len(result.Columns)+1)
	header = append(header, query.PatientIDColumn)
	for _, c := range result.Columns {
		header = append(header, c.Name)
	}
	if err := writer.Write(header); err != nil {
		return err
	}

	row := make([]string, len(header))
	for _, rec := range result.Records {
		row[0] = rec.PatientID
		for i, v := range rec.Values {
			row[i+1] = stringifyValue(v)
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteJSON emits one object per patient keyed by column name.
func WriteJSON(w io.Writer, result *engine.Result) error {
	rows := make([]map[string]interface{}, 0, len(result.Records))
	for _, rec := range result.Records {
		obj := make(map[string]interface{}, len(result.Columns)+1)
		obj[query.PatientIDColumn] = rec.PatientID
		for i, c := range result.Columns {
			v := rec.Values[i]
			if t, ok := v.(time.Time); ok {
				v = t.Format(engine.DateLayout)
			}
			obj[c.Name] = v
		}
		rows = append(rows, obj)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}

func stringifyValue(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case time.Time:
		return v.Format(engine.DateLayout)
	case bool:
		if v {
			return "T"
		}
		return "F"
	case int:
		return strconv.Itoa(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}
