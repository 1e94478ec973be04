package ingest

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/lox/wxarchive/internal/models"
)

// nullSentinel is what vendor exports write for a missing reading.
const nullSentinel = "--"

const utf8BOM = "\ufeff"

// Row is one parsed export line. Time is the raw first-column text; Values
// align with Table.Columns.
type Row struct {
	Time   string
	Values []models.Value
}

// Table is a parsed export file. Columns excludes the leading timestamp column.
type Table struct {
	TimeColumn string
	Columns    []string
	Rows       []Row
}

// Column describes one non-time column and whether it holds numbers.
type Column struct {
	Name    string
	Numeric bool
}

// Schema is an ordered column list.
type Schema []Column

func (s Schema) Names() []string {
	names := make([]string, len(s))
	for i, c := range s {
		names[i] = c.Name
	}
	return names
}

func (s Schema) Index(name string) int {
	for i, c := range s {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// ParseFile opens and parses one export file.
func ParseFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	t, err := ParseCSV(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return t, nil
}

// ParseCSV parses a delimited export. The delimiter is sniffed from the header
// line: semicolon exports (German locale) may also use a decimal comma.
func ParseCSV(r io.Reader) (*Table, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(4096)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, err
	}
	head = bytes.TrimPrefix(head, []byte(utf8BOM))
	if len(bytes.TrimSpace(head)) == 0 {
		return nil, errors.New("empty file")
	}
	delim := sniffDelimiter(head)

	cr := csv.NewReader(br)
	cr.Comma = delim
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], utf8BOM)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	if len(header) < 1 {
		return nil, errors.New("missing header")
	}

	t := &Table{TimeColumn: header[0], Columns: header[1:]}
	decimalComma := delim == ';'
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return t, fmt.Errorf("line %d: %w", len(t.Rows)+2, err)
		}
		if len(rec) == 0 || (len(rec) == 1 && strings.TrimSpace(rec[0]) == "") {
			continue
		}
		row := Row{Time: strings.TrimSpace(rec[0]), Values: make([]models.Value, len(t.Columns))}
		for i := range t.Columns {
			if i+1 < len(rec) {
				row.Values[i] = ParseValue(rec[i+1], decimalComma)
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// ParseValue coerces a cell. It never fails: sentinels and non-finite
// numbers (NaN, Inf) become null and anything non-numeric passes through as
// text.
func ParseValue(s string, decimalComma bool) models.Value {
	s = strings.TrimSpace(s)
	if s == "" || s == nullSentinel {
		return models.NullValue()
	}
	num := s
	if decimalComma {
		num = strings.Replace(num, ",", ".", 1)
	}
	if f, err := strconv.ParseFloat(num, 64); err == nil {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return models.NullValue()
		}
		return models.NumberValue(f)
	}
	return models.TextValue(s)
}

func sniffDelimiter(head []byte) rune {
	line := head
	if i := bytes.IndexByte(head, '\n'); i >= 0 {
		line = head[:i]
	}
	if bytes.Count(line, []byte(";")) > bytes.Count(line, []byte(",")) {
		return ';'
	}
	return ','
}

// Schema classifies each column: numeric when every non-null value is a
// number. All-null columns count as numeric.
func (t *Table) Schema() Schema {
	s := make(Schema, len(t.Columns))
	for i, name := range t.Columns {
		s[i] = Column{Name: name, Numeric: true}
	}
	for _, row := range t.Rows {
		for i, v := range row.Values {
			if v.Kind == models.Text {
				s[i].Numeric = false
			}
		}
	}
	return s
}

// MergeSchemas unions schemas in order of first appearance. A column is
// numeric only if it is numeric in every schema that has it.
func MergeSchemas(schemas ...Schema) Schema {
	var out Schema
	idx := make(map[string]int)
	for _, s := range schemas {
		for _, c := range s {
			if i, ok := idx[c.Name]; ok {
				out[i].Numeric = out[i].Numeric && c.Numeric
				continue
			}
			idx[c.Name] = len(out)
			out = append(out, c)
		}
	}
	return out
}
