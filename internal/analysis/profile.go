package analysis

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Options controls how an uploaded CSV is profiled.
type Options struct {
	// MaxRows limits rows kept in memory for the full preview; 0 means unlimited.
	// Counts and dtypes always cover every row.
	MaxRows int
	// HeadRows is the default preview size.
	HeadRows int
	// Delimiter for CSV. If 0, picks '\t' for .tsv names and ',' otherwise.
	Delimiter rune
}

// DefaultOptions returns reasonable defaults for dataset profiling.
func DefaultOptions() Options {
	return Options{
		MaxRows:  100000,
		HeadRows: 10,
	}
}

// Dtype names follow what pandas.read_csv infers so that the prompt matches
// the frame the generated code will load.
const (
	DtypeInt    = "int64"
	DtypeFloat  = "float64"
	DtypeBool   = "bool"
	DtypeObject = "object"
)

// Column summarises one CSV column.
type Column struct {
	Name    string
	Dtype   string
	NonNull int
	Nulls   int
	// Sample is the first non-null value; empty when HasSample is false.
	Sample    string
	HasSample bool
}

// Profile is the in-memory view of an uploaded dataset.
type Profile struct {
	Name     string
	Columns  []Column
	Rows     int
	Records  [][]string
	HeadRows int
	Warnings []string
}

// Shape returns (rows, columns) like DataFrame.shape.
func (p *Profile) Shape() (int, int) {
	if p == nil {
		return 0, 0
	}
	return p.Rows, len(p.Columns)
}

// Header returns the column names in order.
func (p *Profile) Header() []string {
	out := make([]string, len(p.Columns))
	for i, c := range p.Columns {
		out[i] = c.Name
	}
	return out
}

// Head returns up to n leading records. n <= 0 uses the profile's HeadRows.
func (p *Profile) Head(n int) [][]string {
	if n <= 0 {
		n = p.HeadRows
	}
	if n <= 0 || n > len(p.Records) {
		n = len(p.Records)
	}
	return p.Records[:n]
}

// pandas' default na_values.
var naValues = map[string]struct{}{
	"": {}, "#N/A": {}, "#N/A N/A": {}, "#NA": {}, "-1.#IND": {}, "-1.#QNAN": {},
	"-NaN": {}, "-nan": {}, "1.#IND": {}, "1.#QNAN": {}, "<NA>": {}, "N/A": {},
	"NA": {}, "NULL": {}, "NaN": {}, "None": {}, "n/a": {}, "nan": {}, "null": {},
}

func isNA(v string) bool {
	_, ok := naValues[strings.TrimSpace(v)]
	return ok
}

// ProfileFile opens path and profiles it.
func ProfileFile(path string, opt Options) (*Profile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()
	if opt.Delimiter == 0 {
		opt.Delimiter = sniffDelimiter(path)
	}
	return ProfileCSV(f, filepath.Base(path), opt)
}

// ProfileBytes profiles an in-memory upload.
func ProfileBytes(data []byte, name string, opt Options) (*Profile, error) {
	if opt.Delimiter == 0 {
		opt.Delimiter = sniffDelimiter(name)
	}
	return ProfileCSV(bytes.NewReader(data), name, opt)
}

// ProfileCSV reads a CSV stream and infers per-column dtypes, counts and samples.
func ProfileCSV(src io.Reader, name string, opt Options) (*Profile, error) {
	delim := opt.Delimiter
	if delim == 0 {
		delim = ','
	}
	r := csv.NewReader(src)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.Comma = delim

	prof := &Profile{Name: name, HeadRows: opt.HeadRows}
	if prof.HeadRows <= 0 {
		prof.HeadRows = 10
	}
	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return prof, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	header = normalizeHeader(header)
	ncol := len(header)

	type colAcc struct {
		nonNull  int
		nulls    int
		ints     int
		floats   int
		bools    int
		sample   string
		hasValue bool
	}
	accs := make([]*colAcc, ncol)
	for i := range accs {
		accs[i] = &colAcc{}
	}
	maxRows := opt.MaxRows
	if maxRows <= 0 {
		maxRows = math.MaxInt
	}
	truncatedWide := false

	for {
		rec, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read row %d: %w", prof.Rows+1, err)
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" && ncol > 1 {
			continue
		}
		prof.Rows++
		if len(rec) > ncol {
			truncatedWide = true
			rec = rec[:ncol]
		}
		row := make([]string, ncol)
		copy(row, rec)
		if len(prof.Records) < maxRows {
			prof.Records = append(prof.Records, row)
		}
		for j, v := range row {
			a := accs[j]
			if isNA(v) {
				a.nulls++
				continue
			}
			a.nonNull++
			if !a.hasValue {
				a.sample = v
				a.hasValue = true
			}
			s := strings.TrimSpace(v)
			if _, err := strconv.ParseInt(s, 10, 64); err == nil {
				a.ints++
				continue
			}
			if _, err := strconv.ParseFloat(s, 64); err == nil {
				a.floats++
				continue
			}
			if isBoolLiteral(s) {
				a.bools++
			}
		}
	}

	prof.Columns = make([]Column, ncol)
	for i, a := range accs {
		prof.Columns[i] = Column{
			Name:      header[i],
			Dtype:     inferDtype(a.nonNull, a.nulls, a.ints, a.floats, a.bools),
			NonNull:   a.nonNull,
			Nulls:     a.nulls,
			Sample:    a.sample,
			HasSample: a.hasValue,
		}
	}
	if len(prof.Records) < prof.Rows {
		prof.Warnings = append(prof.Warnings, fmt.Sprintf("kept only %d/%d rows in memory due to MaxRows", len(prof.Records), prof.Rows))
	}
	if truncatedWide {
		prof.Warnings = append(prof.Warnings, "some rows had more fields than the header; extra fields were ignored")
	}
	return prof, nil
}

func inferDtype(nonNull, nulls, ints, floats, bools int) string {
	switch {
	case nonNull == 0:
		// an all-NaN column loads as float64
		return DtypeFloat
	case ints == nonNull && nulls == 0:
		return DtypeInt
	case ints+floats == nonNull:
		return DtypeFloat
	case bools == nonNull && nulls == 0:
		return DtypeBool
	default:
		return DtypeObject
	}
}

func isBoolLiteral(s string) bool {
	switch s {
	case "True", "False", "TRUE", "FALSE", "true", "false":
		return true
	}
	return false
}

// normalizeHeader fills blank names and de-duplicates repeats the way
// read_csv does ("Unnamed: 3", "price.1").
func normalizeHeader(h []string) []string {
	out := make([]string, len(h))
	seen := map[string]int{}
	for i, name := range h {
		name = strings.TrimSpace(name)
		if name == "" {
			name = fmt.Sprintf("Unnamed: %d", i)
		}
		if n, ok := seen[name]; ok {
			seen[name] = n + 1
			name = fmt.Sprintf("%s.%d", name, n+1)
		} else {
			seen[name] = 0
		}
		out[i] = name
	}
	return out
}

func sniffDelimiter(path string) rune {
	if strings.HasSuffix(strings.ToLower(path), ".tsv") {
		return '\t'
	}
	return ','
}

// Markdown renders dataset info, column information and a preview.
func (p *Profile) Markdown() string {
	var b strings.Builder
	b.WriteString("[DATASET INFO]\n")
	if p.Name != "" {
		b.WriteString(fmt.Sprintf("File: %s\n", p.Name))
	}
	rows, cols := p.Shape()
	b.WriteString(fmt.Sprintf("Rows: %d\n", rows))
	b.WriteString(fmt.Sprintf("Columns: %d\n", cols))
	if cols == 0 {
		return b.String()
	}

	b.WriteString("\n[COLUMN INFORMATION]\n")
	b.WriteString("| Column | Type | Non-Null | Nulls |\n| --- | --- | --- | --- |\n")
	for _, c := range p.Columns {
		b.WriteString(fmt.Sprintf("| %s | %s | %d | %d |\n", safeVal(c.Name), c.Dtype, c.NonNull, c.Nulls))
	}

	if head := p.Head(0); len(head) > 0 {
		b.WriteString("\n[DATA PREVIEW]\n")
		b.WriteString("| " + strings.Join(mapStrings(p.Header(), safeVal), " | ") + " |\n")
		b.WriteString("|" + strings.Repeat(" --- |", cols) + "\n")
		for _, row := range head {
			cells := make([]string, cols)
			for i := range cells {
				val := row[i]
				if len(val) > 80 {
					val = val[:77] + "..."
				}
				cells[i] = safeVal(val)
			}
			b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
		}
	}
	if len(p.Warnings) > 0 {
		b.WriteString("\n[NOTES]\n")
		for _, w := range p.Warnings {
			b.WriteString("- " + w + "\n")
		}
	}
	return b.String()
}

func mapStrings(in []string, f func(string) string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = f(s)
	}
	return out
}

func safeVal(s string) string { return strings.ReplaceAll(strings.ReplaceAll(s, "\n", " "), "|", "/") }
