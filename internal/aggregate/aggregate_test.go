package aggregate

import (
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/wxarchive/internal/columns"
	"github.com/lox/wxarchive/internal/ingest"
	"github.com/lox/wxarchive/internal/units"
)

func parse(t *testing.T, csv string) *ingest.Table {
	t.Helper()
	tbl, err := ingest.ParseCSV(strings.NewReader(csv))
	require.NoError(t, err)
	return tbl
}

func TestHourlyAverage(t *testing.T) {
	tbl := parse(t, "time,tempf\n2025/8/1 0:03,70\n2025/8/1 0:31,74\n")

	agg := New(Hour, AverageSpecs(tbl.Schema(), nil), Bounds{})
	agg.AddTable(tbl)
	got := agg.Table()

	assert.Equal(t, []string{"time", "tempf"}, got.Header)
	require.Len(t, got.Rows, 1)
	assert.Equal(t, "2025-08-01 00:00", got.Rows[0].Key)
	assert.InDelta(t, 72.0, got.Rows[0].Values["tempf"], 1e-9)
}

func TestMeanIsSumOverCount(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	var b strings.Builder
	b.WriteString("time,v\n")
	const n = 500
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "2025/3/9 14:%02d,%s\n", i%60, strconv.FormatFloat(r.Float64()*80-20, 'f', -1, 64))
	}
	tbl := parse(t, b.String())

	var sum float64
	for _, row := range tbl.Rows {
		sum += row.Values[0].Float
	}

	agg := New(Day, AverageSpecs(tbl.Schema(), nil), Bounds{})
	agg.AddTable(tbl)
	got := agg.Table()
	require.Len(t, got.Rows, 1)
	assert.InDelta(t, sum/n, got.Rows[0].Values["v"], 1e-9)
}

func TestFloorIdempotent(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	base := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 1000; i++ {
		ts := base.Add(time.Duration(r.Int63n(int64(6 * 365 * 24 * time.Hour))))
		for _, res := range []Resolution{Minute, Hour, Day} {
			once := Floor(ts, res)
			assert.True(t, once.Equal(Floor(once, res)), "floor(floor(%v, %s))", ts, res)
			assert.False(t, once.After(ts))
		}
	}
}

func TestKeyOrderMatchesChronology(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	base := time.Date(1999, 12, 31, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 1000; i++ {
		t1 := base.Add(time.Duration(r.Int63n(int64(40 * 365 * 24 * time.Hour))))
		t2 := t1.Add(time.Duration(r.Int63n(int64(72 * time.Hour))))
		for _, res := range []Resolution{Minute, Hour, Day} {
			assert.LessOrEqual(t, Key(t1, res), Key(t2, res))
		}
	}
}

func TestKeyFormats(t *testing.T) {
	ts := time.Date(2025, 8, 1, 9, 7, 42, 0, time.UTC)
	assert.Equal(t, "2025-08-01 09:07", Key(ts, Minute))
	assert.Equal(t, "2025-08-01 09:00", Key(ts, Hour))
	assert.Equal(t, "2025-08-01", Key(ts, Day))
}

func TestAggregatorDropsAndBounds(t *testing.T) {
	tbl := parse(t, "time,temp,note\n"+
		"2025/8/1 23:59,10,a\n"+
		"garbage,99,b\n"+
		"2025/8/2 0:00,20,c\n"+
		"2025/8/2 12:00,--,d\n"+
		"2025/8/3 0:00,30,e\n")

	bounds := Bounds{
		Start: time.Date(2025, 8, 2, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 8, 2, 23, 59, 59, 0, time.UTC),
	}
	agg := New(Hour, AverageSpecs(tbl.Schema(), nil), bounds)
	agg.AddTable(tbl)
	got := agg.Table()

	assert.Equal(t, 1, agg.Dropped())
	assert.Equal(t, []string{"time", "temp"}, got.Header, "text column dropped")
	require.Len(t, got.Rows, 2)
	assert.Equal(t, "2025-08-02 00:00", got.Rows[0].Key)
	assert.Equal(t, map[string]float64{"temp": 20}, got.Rows[0].Values)
	assert.Equal(t, "2025-08-02 12:00", got.Rows[1].Key)
	assert.Empty(t, got.Rows[1].Values, "no data is not zero")
}

func TestConversionBeforeAveraging(t *testing.T) {
	tbl := parse(t, "time,Wind(mph)\n2025/8/1 0:00,10\n2025/8/1 0:10,20\n")
	conv := columns.SpeedConversions(tbl.Columns)

	agg := New(Hour, AverageSpecs(tbl.Schema(), conv), Bounds{})
	agg.AddTable(tbl)
	got := agg.Table()

	require.Len(t, got.Rows, 1)
	assert.InDelta(t, 15*units.MphToKmh(1), got.Rows[0].Values["Wind(mph)"], 1e-9)
}

func TestCoalesceSources(t *testing.T) {
	tbl := parse(t, "time,a,b\n2025/8/1 0:00,1,100\n2025/8/1 0:01,--,3\n2025/8/1 0:02,--,--\n")
	specs := []Spec{{
		Alias: "v",
		Func:  Avg,
		Sources: []Source{
			{Column: "a", Conversion: units.Identity},
			{Column: "b", Conversion: units.Identity},
			{Column: "missing", Conversion: units.Identity},
		},
	}, {
		Alias:   "n",
		Func:    Count,
		Sources: []Source{{Column: "a", Conversion: units.Identity}, {Column: "b", Conversion: units.Identity}},
	}}
	agg := New(Hour, specs, Bounds{})
	agg.AddTable(tbl)
	got := agg.Table()

	require.Len(t, got.Rows, 1)
	assert.InDelta(t, 2.0, got.Rows[0].Values["v"], 1e-9)
	assert.Equal(t, 2.0, got.Rows[0].Values["n"])
}

func TestMultipleTablesShareBuckets(t *testing.T) {
	a := parse(t, "time,temp\n2025/8/31 23:00,10\n")
	b := parse(t, "time,temp,extra\n2025/8/31 23:30,20,1\n2025/9/1 0:00,30,2\n")
	schema := ingest.MergeSchemas(a.Schema(), b.Schema())

	agg := New(Hour, AverageSpecs(schema, nil), Bounds{})
	agg.AddTable(a)
	agg.AddTable(b)
	got := agg.Table()

	assert.Equal(t, []string{"time", "temp", "extra"}, got.Header)
	require.Len(t, got.Rows, 2)
	assert.Equal(t, map[string]float64{"temp": 15, "extra": 1}, got.Rows[0].Values)
	assert.Equal(t, map[string]float64{"temp": 30, "extra": 2}, got.Rows[1].Values)
}

func TestParseResolution(t *testing.T) {
	for in, want := range map[string]Resolution{"minute": Minute, "HOUR": Hour, " day ": Day, "": Hour} {
		got, err := ParseResolution(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseResolution("week")
	assert.Error(t, err)
}

func TestDailySpecsAndRows(t *testing.T) {
	csv := "Time,Outdoor Temperature(℉),Wind(mph),Gust(mph),Daily Rain(in),Yearly Rain(in)\n" +
		"2025/8/1 6:00,50,2,5,0,10\n" +
		"2025/8/1 14:00,86,10,20,0.5,10.5\n" +
		"2025/8/1 23:55,68,0,1,1,11\n" +
		"2025/8/2 0:05,--,3,4,0,11\n"
	tbl := parse(t, csv)

	specs, err := DailySpecs(columns.Discover(tbl.Columns, columns.Station))
	require.NoError(t, err)

	agg := New(Day, specs, Bounds{})
	agg.AddTable(tbl)
	days, err := DailyRows(agg.Table(), 0)
	require.NoError(t, err)
	require.Len(t, days, 2)

	d := days[0]
	assert.True(t, d.Date.Equal(time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)), "date %v", d.Date)
	assert.InDelta(t, 30.0, d.TempMax.Float64, 1e-9)
	assert.InDelta(t, 10.0, d.TempMin.Float64, 1e-9)
	assert.InDelta(t, 20.0, d.TempAvg.Float64, 1e-9)
	assert.InDelta(t, 25.4, d.RainSum.Float64, 1e-9)
	assert.InDelta(t, units.MphToKmh(10), d.WindMax.Float64, 1e-9)
	assert.InDelta(t, units.MphToKmh(4), d.WindAvg.Float64, 1e-9)
	assert.InDelta(t, units.MphToKmh(20), d.GustMax.Float64, 1e-9)
	assert.Equal(t, 3, d.Readings)

	next := days[1]
	assert.False(t, next.TempMax.Valid)
	assert.Equal(t, 0, next.Readings)
	assert.True(t, next.WindMax.Valid)
}

func TestDailySpecsRequiresTemperature(t *testing.T) {
	_, err := DailySpecs(columns.Discover([]string{"Time", "CH2 Humidity(%)"}, columns.Channel(2)))
	assert.True(t, errors.Is(err, columns.ErrColumnNotFound))
}
