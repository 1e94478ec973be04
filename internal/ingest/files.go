package ingest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

// Kind selects which export series a query reads.
type Kind string

const (
	KindMain     Kind = "main"
	KindChannels Kind = "channels"
)

func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindMain, "":
		return KindMain, nil
	case KindChannels:
		return KindChannels, nil
	}
	return "", fmt.Errorf("unknown kind %q (expected main|channels)", s)
}

// Month is a calendar month in YYYYMM form.
type Month struct {
	Year  int
	Month time.Month
}

func ParseMonth(s string) (Month, error) {
	t, err := time.Parse("200601", strings.TrimSpace(s))
	if err != nil {
		return Month{}, fmt.Errorf("invalid month %q (expected YYYYMM)", s)
	}
	return Month{Year: t.Year(), Month: t.Month()}, nil
}

func MonthOf(t time.Time) Month {
	return Month{Year: t.Year(), Month: t.Month()}
}

func (m Month) String() string {
	return fmt.Sprintf("%04d%02d", m.Year, int(m.Month))
}

// Start is midnight on the first day of the month.
func (m Month) Start() time.Time {
	return time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC)
}

// End is the last second of the month.
func (m Month) End() time.Time {
	return m.Start().AddDate(0, 1, 0).Add(-time.Second)
}

func (m Month) Next() Month {
	return MonthOf(m.Start().AddDate(0, 1, 0))
}

func (m Month) Before(o Month) bool {
	return m.Year < o.Year || (m.Year == o.Year && m.Month < o.Month)
}

// MonthsBetween lists every month intersecting [start, end].
func MonthsBetween(start, end time.Time) []Month {
	var out []Month
	last := MonthOf(end)
	for m := MonthOf(start); !last.Before(m); m = m.Next() {
		out = append(out, m)
	}
	return out
}

var exportName = regexp.MustCompile(`(?i)^(\d{6})(.*)\.csv$`)

// File is one raw export on disk.
type File struct {
	Path  string
	Name  string
	Kind  Kind
	Month Month
}

// Dir resolves raw exports named YYYYMM<suffix>.CSV in a directory.
type Dir struct {
	Root     string
	Suffixes map[Kind]string
}

// DefaultSuffixes match the file names written by Ecowitt-family consoles.
var DefaultSuffixes = map[Kind]string{
	KindMain:     "A",
	KindChannels: "Allsensors_A",
}

func NewDir(root string, suffixes map[Kind]string) *Dir {
	if suffixes == nil {
		suffixes = DefaultSuffixes
	}
	return &Dir{Root: root, Suffixes: suffixes}
}

// Classify reports the kind and month of a file name, if it is an export.
func (d *Dir) Classify(name string) (Kind, Month, bool) {
	m := exportName.FindStringSubmatch(name)
	if m == nil {
		return "", Month{}, false
	}
	month, err := ParseMonth(m[1])
	if err != nil {
		return "", Month{}, false
	}
	for kind, suffix := range d.Suffixes {
		if strings.EqualFold(m[2], suffix) {
			return kind, month, true
		}
	}
	return "", Month{}, false
}

// Files lists every export of a kind, ordered by month. When several names
// map to the same month the first in lexical order wins.
func (d *Dir) Files(kind Kind) ([]File, error) {
	entries, err := os.ReadDir(d.Root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read export dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	seen := make(map[Month]bool)
	var files []File
	for _, name := range names {
		k, month, ok := d.Classify(name)
		if !ok || k != kind || seen[month] {
			continue
		}
		seen[month] = true
		files = append(files, File{
			Path:  filepath.Join(d.Root, name),
			Name:  name,
			Kind:  k,
			Month: month,
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Month.Before(files[j].Month) })
	return files, nil
}

// FileForMonth returns the export for one month, or nil when there is none.
func (d *Dir) FileForMonth(kind Kind, month Month) (*File, error) {
	files, err := d.Files(kind)
	if err != nil {
		return nil, err
	}
	for i := range files {
		if files[i].Month == month {
			return &files[i], nil
		}
	}
	return nil, nil
}

// FilesForRange returns exports whose month intersects [start, end], in
// month order. An empty result is not an error.
func (d *Dir) FilesForRange(kind Kind, start, end time.Time) ([]File, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("range end %s before start %s", end.Format(time.DateOnly), start.Format(time.DateOnly))
	}
	files, err := d.Files(kind)
	if err != nil {
		return nil, err
	}
	first, last := MonthOf(start), MonthOf(end)
	var out []File
	for _, f := range files {
		if f.Month.Before(first) || last.Before(f.Month) {
			continue
		}
		out = append(out, f)
	}
	return out, nil
}
