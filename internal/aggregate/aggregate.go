// Package aggregate buckets export rows into minute, hour or day slots.
package aggregate

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lox/wxarchive/internal/ingest"
	"github.com/lox/wxarchive/internal/metrics"
	"github.com/lox/wxarchive/internal/units"
)

// TimeHeader is the first header entry of every aggregated table.
const TimeHeader = "time"

type Resolution string

const (
	Minute Resolution = "minute"
	Hour   Resolution = "hour"
	Day    Resolution = "day"
)

func ParseResolution(s string) (Resolution, error) {
	switch r := Resolution(strings.ToLower(strings.TrimSpace(s))); r {
	case Minute, Hour, Day:
		return r, nil
	case "":
		return Hour, nil
	}
	return "", fmt.Errorf("unknown resolution %q (expected minute|hour|day)", s)
}

// Floor truncates t to the start of its bucket.
func Floor(t time.Time, r Resolution) time.Time {
	y, mo, d := t.Date()
	switch r {
	case Day:
		return time.Date(y, mo, d, 0, 0, 0, 0, t.Location())
	case Hour:
		return time.Date(y, mo, d, t.Hour(), 0, 0, 0, t.Location())
	default:
		return time.Date(y, mo, d, t.Hour(), t.Minute(), 0, 0, t.Location())
	}
}

// Key is the canonical bucket label. Keys are zero padded so lexical order is
// chronological order.
func Key(t time.Time, r Resolution) string {
	f := Floor(t, r)
	switch r {
	case Day:
		return fmt.Sprintf("%04d-%02d-%02d", f.Year(), f.Month(), f.Day())
	case Hour:
		return fmt.Sprintf("%04d-%02d-%02d %02d:00", f.Year(), f.Month(), f.Day(), f.Hour())
	default:
		return fmt.Sprintf("%04d-%02d-%02d %02d:%02d", f.Year(), f.Month(), f.Day(), f.Hour(), f.Minute())
	}
}

// Func reduces the values in a bucket.
type Func string

const (
	Avg   Func = "avg"
	Max   Func = "max"
	Min   Func = "min"
	Count Func = "count"
)

// Source is one physical column feeding a Spec, with the conversion applied
// to each value before it is reduced.
type Source struct {
	Column     string
	Conversion units.Conversion
}

// Spec is one output column. A row contributes the first non-null source
// value, so fallback candidates behave like SQL COALESCE.
type Spec struct {
	Alias   string
	Func    Func
	Sources []Source
}

// Bounds limits rows to [Start, End]. A zero bound is open.
type Bounds struct {
	Start time.Time
	End   time.Time
}

func (b Bounds) Contains(t time.Time) bool {
	if !b.Start.IsZero() && t.Before(b.Start) {
		return false
	}
	if !b.End.IsZero() && t.After(b.End) {
		return false
	}
	return true
}

// Row is one bucket. Values holds only specs that received data.
type Row struct {
	Key    string
	Values map[string]float64
}

// Table is the result shape shared by the cache and raw file paths.
type Table struct {
	Header []string
	Rows   []Row
}

// Header returns "time" followed by spec aliases in order.
func Header(specs []Spec) []string {
	h := make([]string, 0, len(specs)+1)
	h = append(h, TimeHeader)
	for _, s := range specs {
		h = append(h, s.Alias)
	}
	return h
}

type accum struct {
	sum      float64
	n        int
	min, max float64
}

func (a *accum) add(v float64) {
	if a.n == 0 || v < a.min {
		a.min = v
	}
	if a.n == 0 || v > a.max {
		a.max = v
	}
	a.sum += v
	a.n++
}

func (a *accum) result(f Func) float64 {
	switch f {
	case Max:
		return a.max
	case Min:
		return a.min
	case Count:
		return float64(a.n)
	default:
		return a.sum / float64(a.n)
	}
}

// Aggregator accumulates rows into buckets. It is owned by one query and is
// not safe for concurrent use.
type Aggregator struct {
	res     Resolution
	specs   []Spec
	bounds  Bounds
	buckets map[string][]accum
	dropped int
}

func New(res Resolution, specs []Spec, bounds Bounds) *Aggregator {
	return &Aggregator{
		res:     res,
		specs:   specs,
		bounds:  bounds,
		buckets: make(map[string][]accum),
	}
}

// AddTable feeds every row of a parsed export. Rows with unparseable
// timestamps are dropped and counted.
func (a *Aggregator) AddTable(t *ingest.Table) {
	index := make(map[string]int, len(t.Columns))
	for i, c := range t.Columns {
		if _, ok := index[c]; !ok {
			index[c] = i
		}
	}
	cols := make([][]int, len(a.specs))
	for i, s := range a.specs {
		cols[i] = make([]int, len(s.Sources))
		for j, src := range s.Sources {
			idx, ok := index[src.Column]
			if !ok {
				idx = -1
			}
			cols[i][j] = idx
		}
	}

	for _, row := range t.Rows {
		ts, err := ingest.ParseTimestamp(row.Time)
		if err != nil {
			a.dropped++
			metrics.RowsDropped.WithLabelValues("invalid_timestamp").Inc()
			continue
		}
		if !a.bounds.Contains(ts) {
			continue
		}
		key := Key(ts, a.res)
		acc, ok := a.buckets[key]
		if !ok {
			acc = make([]accum, len(a.specs))
			a.buckets[key] = acc
		}
		for i, s := range a.specs {
			for j, idx := range cols[i] {
				if idx < 0 || idx >= len(row.Values) || !row.Values[idx].IsNumber() {
					continue
				}
				acc[i].add(s.Sources[j].Conversion.Apply(row.Values[idx].Float))
				break
			}
		}
	}
}

// Dropped is the number of rows discarded for bad timestamps.
func (a *Aggregator) Dropped() int { return a.dropped }

// Table finalizes the buckets in ascending key order.
func (a *Aggregator) Table() *Table {
	keys := make([]string, 0, len(a.buckets))
	for k := range a.buckets {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	t := &Table{Header: Header(a.specs), Rows: make([]Row, 0, len(keys))}
	for _, k := range keys {
		acc := a.buckets[k]
		row := Row{Key: k, Values: make(map[string]float64, len(a.specs))}
		for i, s := range a.specs {
			if acc[i].n == 0 {
				continue
			}
			row.Values[s.Alias] = acc[i].result(s.Func)
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// AverageSpecs averages every numeric column under its own name. Conversions
// keyed by column name are applied first; non-numeric columns are dropped.
func AverageSpecs(schema ingest.Schema, conversions map[string]units.Conversion) []Spec {
	var specs []Spec
	for _, c := range schema {
		if !c.Numeric || c.Name == "" {
			continue
		}
		conv, ok := conversions[c.Name]
		if !ok {
			conv = units.Identity
		}
		specs = append(specs, Spec{
			Alias:   c.Name,
			Func:    Avg,
			Sources: []Source{{Column: c.Name, Conversion: conv}},
		})
	}
	return specs
}
