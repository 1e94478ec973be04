package ingest

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/lox/wxarchive/internal/models"
)

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    time.Time
		wantErr bool
	}{
		{"raw export", "2025/8/1 0:03", time.Date(2025, 8, 1, 0, 3, 0, 0, time.UTC), false},
		{"raw export with seconds", "2025/12/31 23:59:59", time.Date(2025, 12, 31, 23, 59, 59, 0, time.UTC), false},
		{"iso", "2025-08-01T14:30", time.Date(2025, 8, 1, 14, 30, 0, 0, time.UTC), false},
		{"iso with zulu and fraction", "2025-08-01T14:30:15.250Z", time.Date(2025, 8, 1, 14, 30, 15, 0, time.UTC), false},
		{"canonical", "2025-08-01 14:30:00", time.Date(2025, 8, 1, 14, 30, 0, 0, time.UTC), false},
		{"date only", "2025/8/1", time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC), false},
		{"hour only", "2025/8/1 7", time.Date(2025, 8, 1, 7, 0, 0, 0, time.UTC), false},
		{"leap day", "2024/2/29 12:00", time.Date(2024, 2, 29, 12, 0, 0, 0, time.UTC), false},
		{"empty", "", time.Time{}, true},
		{"two date parts", "2025/8 0:03", time.Time{}, true},
		{"non numeric date", "2025/Aug/1 0:03", time.Time{}, true},
		{"non numeric time", "2025/8/1 ab:03", time.Time{}, true},
		{"month out of range", "2025/13/1 0:00", time.Time{}, true},
		{"not a leap year", "2025/2/29 0:00", time.Time{}, true},
		{"hour out of range", "2025/8/1 24:00", time.Time{}, true},
		{"too many time parts", "2025/8/1 1:2:3:4", time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTimestamp(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidTimestamp) {
					t.Fatalf("ParseTimestamp(%q) error = %v, want ErrInvalidTimestamp", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseTimestamp(%q): %v", tt.in, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParseTimestamp(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestFormatCanonicalSortsChronologically(t *testing.T) {
	a := FormatCanonical(time.Date(2025, 9, 1, 9, 0, 0, 0, time.UTC))
	b := FormatCanonical(time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC))
	if !(a < b) {
		t.Errorf("%q should sort before %q", a, b)
	}
	if a != "2025-09-01 09:00:00" {
		t.Errorf("FormatCanonical = %q", a)
	}
}

func TestParseCSV(t *testing.T) {
	input := "\ufeffTime,Outdoor Temperature(℃),Wind(km/h),Note\n" +
		"2025/8/1 0:00,21.5,--,ok\n" +
		"2025/8/1 0:05,,3.2\n" +
		"\n" +
		"2025/8/1 0:10,22,4.0,ok,extra\n"

	tbl, err := ParseCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseCSV: %v", err)
	}
	if tbl.TimeColumn != "Time" {
		t.Errorf("TimeColumn = %q, want Time", tbl.TimeColumn)
	}
	wantCols := []string{"Outdoor Temperature(℃)", "Wind(km/h)", "Note"}
	if !reflect.DeepEqual(tbl.Columns, wantCols) {
		t.Errorf("Columns = %v, want %v", tbl.Columns, wantCols)
	}
	if len(tbl.Rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(tbl.Rows))
	}

	first := tbl.Rows[0]
	if first.Time != "2025/8/1 0:00" {
		t.Errorf("Rows[0].Time = %q", first.Time)
	}
	if !first.Values[0].IsNumber() || first.Values[0].Float != 21.5 {
		t.Errorf("Rows[0] temp = %+v, want 21.5", first.Values[0])
	}
	if !first.Values[1].IsNull() {
		t.Errorf("sentinel should be null, got %+v", first.Values[1])
	}
	if first.Values[2].Kind != models.Text || first.Values[2].Str != "ok" {
		t.Errorf("text should pass through, got %+v", first.Values[2])
	}

	short := tbl.Rows[1]
	if !short.Values[0].IsNull() || !short.Values[2].IsNull() {
		t.Errorf("empty and missing cells should be null, got %+v", short.Values)
	}
	if len(tbl.Rows[2].Values) != 3 {
		t.Errorf("extra cells should be ignored, got %d values", len(tbl.Rows[2].Values))
	}
}

func TestParseCSVSemicolonDecimalComma(t *testing.T) {
	input := "Zeit;Temperatur Außen(℃);Regen Tag(mm)\n" +
		"2025/1/5 10:00;-3,5;1,2\n"
	tbl, err := ParseCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseCSV: %v", err)
	}
	if len(tbl.Columns) != 2 {
		t.Fatalf("Columns = %v", tbl.Columns)
	}
	got := []float64{tbl.Rows[0].Values[0].Float, tbl.Rows[0].Values[1].Float}
	want := []float64{-3.5, 1.2}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("values = %v, want %v", got, want)
	}
}

func TestParseCSVEmpty(t *testing.T) {
	if _, err := ParseCSV(strings.NewReader("")); err == nil {
		t.Error("expected error for empty input")
	}
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		in           string
		decimalComma bool
		want         models.Value
	}{
		{"12.5", false, models.NumberValue(12.5)},
		{" 7 ", false, models.NumberValue(7)},
		{"--", false, models.NullValue()},
		{"", false, models.NullValue()},
		{"1,5", true, models.NumberValue(1.5)},
		{"1,5", false, models.TextValue("1,5")},
		{"N/A", false, models.TextValue("N/A")},
		{"NaN", false, models.NullValue()},
		{"nan", false, models.NullValue()},
		{"inf", false, models.NullValue()},
		{"-Infinity", false, models.NullValue()},
		{"1e400", false, models.TextValue("1e400")},
	}
	for _, tt := range tests {
		if got := ParseValue(tt.in, tt.decimalComma); got != tt.want {
			t.Errorf("ParseValue(%q, %v) = %+v, want %+v", tt.in, tt.decimalComma, got, tt.want)
		}
	}
}

func TestSchemaAndMerge(t *testing.T) {
	a, err := ParseCSV(strings.NewReader("Time,Temp,Note,Empty\n2025/8/1 0:00,1,x,--\n2025/8/1 0:01,2,3,\n"))
	if err != nil {
		t.Fatalf("ParseCSV a: %v", err)
	}
	b, err := ParseCSV(strings.NewReader("Time,Wind,Temp\n2025/9/1 0:00,4,oops\n"))
	if err != nil {
		t.Fatalf("ParseCSV b: %v", err)
	}

	sa := a.Schema()
	want := Schema{{"Temp", true}, {"Note", false}, {"Empty", true}}
	if !reflect.DeepEqual(sa, want) {
		t.Errorf("Schema() = %v, want %v", sa, want)
	}

	merged := MergeSchemas(sa, b.Schema())
	wantMerged := Schema{{"Temp", false}, {"Note", false}, {"Empty", true}, {"Wind", true}}
	if !reflect.DeepEqual(merged, wantMerged) {
		t.Errorf("MergeSchemas = %v, want %v", merged, wantMerged)
	}
	if merged.Index("Wind") != 3 || merged.Index("missing") != -1 {
		t.Errorf("Index lookups wrong: %v", merged.Names())
	}
}

func writeExports(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dir, n), []byte("Time,Temp\n"), 0o644); err != nil {
			t.Fatalf("write %s: %v", n, err)
		}
	}
	return dir
}

func TestDirFiles(t *testing.T) {
	root := writeExports(t,
		"202508A.CSV",
		"202507A.csv",
		"202508Allsensors_A.CSV",
		"202509A.CSV",
		"notes.txt",
		"2025A.CSV",
	)
	d := NewDir(root, nil)

	main, err := d.Files(KindMain)
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	var names []string
	for _, f := range main {
		names = append(names, f.Name)
	}
	want := []string{"202507A.csv", "202508A.CSV", "202509A.CSV"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("main files = %v, want %v", names, want)
	}

	ch, err := d.FileForMonth(KindChannels, Month{2025, time.August})
	if err != nil {
		t.Fatalf("FileForMonth: %v", err)
	}
	if ch == nil || ch.Name != "202508Allsensors_A.CSV" {
		t.Errorf("channels file = %+v", ch)
	}

	none, err := d.FileForMonth(KindChannels, Month{2025, time.July})
	if err != nil || none != nil {
		t.Errorf("FileForMonth missing = %+v, %v; want nil, nil", none, err)
	}
}

func TestDirFilesForRange(t *testing.T) {
	root := writeExports(t, "202506A.CSV", "202507A.CSV", "202508A.CSV", "202510A.CSV")
	d := NewDir(root, nil)

	files, err := d.FilesForRange(KindMain,
		time.Date(2025, 7, 15, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 10, 2, 23, 59, 59, 0, time.UTC))
	if err != nil {
		t.Fatalf("FilesForRange: %v", err)
	}
	var months []string
	for _, f := range files {
		months = append(months, f.Month.String())
	}
	want := []string{"202507", "202508", "202510"}
	if !reflect.DeepEqual(months, want) {
		t.Errorf("months = %v, want %v", months, want)
	}

	if _, err := d.FilesForRange(KindMain, time.Date(2025, 8, 2, 0, 0, 0, 0, time.UTC), time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)); err == nil {
		t.Error("expected error for inverted range")
	}
}

func TestDirMissingRoot(t *testing.T) {
	d := NewDir(filepath.Join(t.TempDir(), "nope"), nil)
	files, err := d.Files(KindMain)
	if err != nil || files != nil {
		t.Errorf("Files on missing dir = %v, %v; want nil, nil", files, err)
	}
}

func TestMonths(t *testing.T) {
	m, err := ParseMonth("202412")
	if err != nil {
		t.Fatalf("ParseMonth: %v", err)
	}
	if m.Next().String() != "202501" {
		t.Errorf("Next = %s", m.Next())
	}
	if got := m.End(); !got.Equal(time.Date(2024, 12, 31, 23, 59, 59, 0, time.UTC)) {
		t.Errorf("End = %v", got)
	}
	if _, err := ParseMonth("2024-12"); err == nil {
		t.Error("expected error for bad month")
	}

	got := MonthsBetween(time.Date(2024, 11, 30, 0, 0, 0, 0, time.UTC), time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC))
	var names []string
	for _, m := range got {
		names = append(names, m.String())
	}
	want := []string{"202411", "202412", "202501", "202502"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("MonthsBetween = %v, want %v", names, want)
	}
}

func TestParseKind(t *testing.T) {
	for in, want := range map[string]Kind{"": KindMain, "main": KindMain, " Channels ": KindChannels} {
		got, err := ParseKind(in)
		if err != nil || got != want {
			t.Errorf("ParseKind(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseKind("indoor"); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func nf(v float64) sql.NullFloat64 { return sql.NullFloat64{Float64: v, Valid: true} }

func TestCheckDaily(t *testing.T) {
	tests := []struct {
		name      string
		day       models.DailyAggregate
		wantFlags []string
	}{
		{
			name: "plausible day",
			day: models.DailyAggregate{
				TempMax: nf(28), TempMin: nf(12), RainSum: nf(4.2),
				WindMax: nf(30), GustMax: nf(52),
			},
			wantFlags: nil,
		},
		{
			name:      "empty day",
			day:       models.DailyAggregate{},
			wantFlags: nil,
		},
		{
			name:      "temp too hot",
			day:       models.DailyAggregate{TempMax: nf(65)},
			wantFlags: []string{FlagTempOutOfRange},
		},
		{
			name:      "min above max",
			day:       models.DailyAggregate{TempMax: nf(10), TempMin: nf(12)},
			wantFlags: []string{FlagTempInverted},
		},
		{
			name:      "negative rain",
			day:       models.DailyAggregate{RainSum: nf(-1)},
			wantFlags: []string{FlagRainNegative},
		},
		{
			name:      "huge rain",
			day:       models.DailyAggregate{RainSum: nf(812)},
			wantFlags: []string{FlagRainUnlikely},
		},
		{
			name:      "gust below wind",
			day:       models.DailyAggregate{WindMax: nf(40), GustMax: nf(20)},
			wantFlags: []string{FlagGustBelowWind},
		},
		{
			name:      "wind unlikely and gust below it",
			day:       models.DailyAggregate{WindMax: nf(300), GustMax: nf(20)},
			wantFlags: []string{FlagWindUnlikely, FlagGustBelowWind},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CheckDaily(tt.day)
			if !reflect.DeepEqual(got, tt.wantFlags) {
				t.Errorf("CheckDaily() = %v, want %v", got, tt.wantFlags)
			}
		})
	}
}
