// Package forecast scores externally supplied daily forecasts against
// observed daily aggregates.
package forecast

import (
	"database/sql"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/lox/wxarchive/internal/models"
	"github.com/lox/wxarchive/internal/units"
)

// Field is a scored forecast quantity.
type Field string

const (
	TempMin   Field = "temp_min"
	TempMax   Field = "temp_max"
	Precip    Field = "precip"
	WindSpeed Field = "wind_speed"
	WindGust  Field = "wind_gust"
)

var Fields = []Field{TempMin, TempMax, Precip, WindSpeed, WindGust}

// Actual is one observed day in forecast units (°C, mm, km/h).
type Actual struct {
	Date      time.Time
	TempMin   sql.NullFloat64
	TempMax   sql.NullFloat64
	Precip    sql.NullFloat64
	WindSpeed sql.NullFloat64
	WindGust  sql.NullFloat64
}

// ActualFromDaily maps a daily aggregate onto forecast fields. Observed wind
// is the day's peak sustained wind.
func ActualFromDaily(d models.DailyAggregate) Actual {
	return Actual{
		Date:      d.Date,
		TempMin:   d.TempMin,
		TempMax:   d.TempMax,
		Precip:    d.RainSum,
		WindSpeed: d.WindMax,
		WindGust:  d.GustMax,
	}
}

func (a Actual) Get(f Field) sql.NullFloat64 {
	switch f {
	case TempMin:
		return a.TempMin
	case TempMax:
		return a.TempMax
	case Precip:
		return a.Precip
	case WindSpeed:
		return a.WindSpeed
	case WindGust:
		return a.WindGust
	}
	return sql.NullFloat64{}
}

// ImperialActual is an observed day as reported by US-unit stations.
type ImperialActual struct {
	Date     time.Time
	TempMaxF sql.NullFloat64
	TempMinF sql.NullFloat64
	PrecipIn sql.NullFloat64
	WindMph  sql.NullFloat64
	GustMph  sql.NullFloat64
}

// Convert returns the day in forecast units.
func (i ImperialActual) Convert() Actual {
	return Actual{
		Date:      i.Date,
		TempMax:   mapNull(i.TempMaxF, units.FahrenheitToCelsius),
		TempMin:   mapNull(i.TempMinF, units.FahrenheitToCelsius),
		Precip:    mapNull(i.PrecipIn, units.InchesToMillimetres),
		WindSpeed: mapNull(i.WindMph, units.MphToKmh),
		WindGust:  mapNull(i.GustMph, units.MphToKmh),
	}
}

func mapNull(v sql.NullFloat64, fn func(float64) float64) sql.NullFloat64 {
	if !v.Valid {
		return v
	}
	return sql.NullFloat64{Float64: fn(v.Float64), Valid: true}
}

func forecastValue(fc models.Forecast, f Field) sql.NullFloat64 {
	switch f {
	case TempMin:
		return fc.TempMin
	case TempMax:
		return fc.TempMax
	case Precip:
		return fc.Precip
	case WindSpeed:
		return fc.WindSpeed
	case WindGust:
		return fc.WindGust
	}
	return sql.NullFloat64{}
}

// Pair is one forecast matched with the observed day it predicted.
type Pair struct {
	Date     time.Time
	Source   string
	Actual   Actual
	Forecast models.Forecast
}

// Join pairs forecasts with actuals on (forecast date, source). Only the first
// forecast per key is used; forecasts for unobserved days are skipped.
func Join(actuals []Actual, forecasts []models.Forecast) []Pair {
	byDate := make(map[string]Actual, len(actuals))
	for _, a := range actuals {
		byDate[models.DateKey(a.Date)] = a
	}

	seen := make(map[string]bool)
	var pairs []Pair
	for _, fc := range forecasts {
		date := models.DateKey(fc.ForecastDate)
		a, ok := byDate[date]
		if !ok {
			continue
		}
		key := date + "|" + fc.Source
		if seen[key] {
			continue
		}
		seen[key] = true
		pairs = append(pairs, Pair{Date: a.Date, Source: fc.Source, Actual: a, Forecast: fc})
	}
	sort.SliceStable(pairs, func(i, j int) bool {
		if !pairs[i].Date.Equal(pairs[j].Date) {
			return pairs[i].Date.Before(pairs[j].Date)
		}
		return pairs[i].Source < pairs[j].Source
	})
	return pairs
}

// Diff is actual minus forecast, null when either side is missing.
func (p Pair) Diff(f Field) sql.NullFloat64 {
	a, fc := p.Actual.Get(f), forecastValue(p.Forecast, f)
	if !a.Valid || !fc.Valid {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: a.Float64 - fc.Float64, Valid: true}
}

// AbsErrors returns |actual - forecast| per field, null-propagating.
func (p Pair) AbsErrors() map[Field]sql.NullFloat64 {
	out := make(map[Field]sql.NullFloat64, len(Fields))
	for _, f := range Fields {
		d := p.Diff(f)
		if d.Valid {
			d.Float64 = math.Abs(d.Float64)
		}
		out[f] = d
	}
	return out
}

// Stat summarises the errors of one field for one source. MAE, RMSE and Bias
// are nil when there are no samples. Bias is forecast minus actual.
type Stat struct {
	N    int      `json:"n"`
	MAE  *float64 `json:"mae"`
	RMSE *float64 `json:"rmse"`
	Bias *float64 `json:"bias"`
}

// Summarize computes a Stat from signed differences (actual - forecast).
// RMSE uses the signed values, not their absolute values.
func Summarize(diffs []float64) Stat {
	if len(diffs) == 0 {
		return Stat{}
	}
	abs := make([]float64, len(diffs))
	sq := make([]float64, len(diffs))
	for i, d := range diffs {
		abs[i] = math.Abs(d)
		sq[i] = d * d
	}
	mae := stat.Mean(abs, nil)
	rmse := math.Sqrt(stat.Mean(sq, nil))
	bias := -stat.Mean(diffs, nil)
	return Stat{N: len(diffs), MAE: &mae, RMSE: &rmse, Bias: &bias}
}

// Score holds per-field statistics for one source. Fields without samples
// are absent.
type Score map[Field]Stat

// ScoreBySource aggregates pairs per forecast source.
func ScoreBySource(pairs []Pair) map[string]Score {
	diffs := make(map[string]map[Field][]float64)
	for _, p := range pairs {
		if diffs[p.Source] == nil {
			diffs[p.Source] = make(map[Field][]float64)
		}
		for _, f := range Fields {
			if d := p.Diff(f); d.Valid {
				diffs[p.Source][f] = append(diffs[p.Source][f], d.Float64)
			}
		}
	}

	out := make(map[string]Score, len(diffs))
	for source, byField := range diffs {
		score := make(Score, len(byField))
		for f, ds := range byField {
			score[f] = Summarize(ds)
		}
		out[source] = score
	}
	return out
}
