package terminology

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

const SystemSNOMEDCT = "snomedct"

var (
	ErrUnknownSystem = errors.New("unknown coding system")
	ErrInvalidCode   = errors.New("invalid code")
	ErrEmptyCodelist = errors.New("codelist has no codes")
)

var codeFormats = map[string]*regexp.Regexp{
	// SNOMED CT identifiers are 6-18 digits without a leading zero.
	SystemSNOMEDCT: regexp.MustCompile(`^[1-9][0-9]{5,17}$`),
}

// Codelist is a named set of codes from a single coding system. Membership is
// an exact string match; no hierarchy expansion is applied.
type Codelist struct {
	Name   string
	System string
	codes  map[string]struct{}
}

func NewCodelist(name, system string, codes ...string) (Codelist, error) {
	system = strings.ToLower(strings.TrimSpace(system))
	format, ok := codeFormats[system]
	if !ok {
		return Codelist{}, fmt.Errorf("%s: %w", system, ErrUnknownSystem)
	}
	set := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		code = strings.TrimSpace(code)
		if !format.MatchString(code) {
			return Codelist{}, fmt.Errorf("codelist %q: %q is not a valid %s code: %w", name, code, system, ErrInvalidCode)
		}
		set[code] = struct{}{}
	}
	if len(set) == 0 {
		return Codelist{}, fmt.Errorf("codelist %q: %w", name, ErrEmptyCodelist)
	}
	return Codelist{Name: name, System: system, codes: set}, nil
}

func MustCodelist(name, system string, codes ...string) Codelist {
	cl, err := NewCodelist(name, system, codes...)
	if err != nil {
		panic(err)
	}
	return cl
}

func (c Codelist) Contains(code string) bool {
	_, ok := c.codes[code]
	return ok
}

// Codes returns the distinct codes in ascending order.
func (c Codelist) Codes() []string {
	out := make([]string, 0, len(c.codes))
	for code := range c.codes {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

func (c Codelist) Len() int {
	return len(c.codes)
}

// FromCSV reads codes from the named column of a CSV document with a header
// row. Blank cells are skipped.
func FromCSV(name, system string, r io.Reader, column string) (Codelist, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		return Codelist{}, fmt.Errorf("reading codelist header: %w", err)
	}
	idx := -1
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), column) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Codelist{}, fmt.Errorf("column %q not found in codelist header %v", column, header)
	}

	var codes []string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Codelist{}, fmt.Errorf("reading codelist row: %w", err)
		}
		if idx >= len(record) {
			continue
		}
		if code := strings.TrimSpace(record[idx]); code != "" {
			codes = append(codes, code)
		}
	}
	return NewCodelist(name, system, codes...)
}

func LoadCSV(path, system, column string) (Codelist, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return Codelist{}, err
	}
	defer f.Close()
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return FromCSV(name, system, f, column)
}
