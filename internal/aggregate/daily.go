package aggregate

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lox/wxarchive/internal/columns"
	"github.com/lox/wxarchive/internal/models"
)

// Aliases of the daily reducer's output columns.
const (
	AliasTempMax  = "tmax"
	AliasTempMin  = "tmin"
	AliasTempAvg  = "tavg"
	AliasRain     = "rain"
	AliasWindMax  = "wind_max"
	AliasWindAvg  = "wind_avg"
	AliasGustMax  = "gust_max"
	AliasReadings = "readings"
)

func sources(h columns.Hint) []Source {
	out := make([]Source, len(h.Candidates))
	for i, c := range h.Candidates {
		out[i] = Source{Column: c.Name, Conversion: c.Conversion()}
	}
	return out
}

// DailySpecs builds the daily reducer for a scope. Temperature is required;
// rain, wind and gust are included when discovered. The rain total is the
// day's maximum of the cumulative daily counter, or of the generic rain
// column when the export has no daily counter.
func DailySpecs(h columns.Hints) ([]Spec, error) {
	if err := h.Require(columns.Temperature); err != nil {
		return nil, err
	}
	temp := sources(h.Get(columns.Temperature))
	specs := []Spec{
		{Alias: AliasTempMax, Func: Max, Sources: temp},
		{Alias: AliasTempMin, Func: Min, Sources: temp},
		{Alias: AliasTempAvg, Func: Avg, Sources: temp},
		{Alias: AliasReadings, Func: Count, Sources: temp},
	}

	if rain := h.Get(columns.RainDaily); rain.Found() {
		specs = append(specs, Spec{Alias: AliasRain, Func: Max, Sources: sources(rain)})
	} else if rain := h.Get(columns.Rain); rain.Found() {
		specs = append(specs, Spec{Alias: AliasRain, Func: Max, Sources: sources(rain)})
	}

	if wind := h.Get(columns.Wind); wind.Found() {
		specs = append(specs,
			Spec{Alias: AliasWindMax, Func: Max, Sources: sources(wind)},
			Spec{Alias: AliasWindAvg, Func: Avg, Sources: sources(wind)},
		)
	}
	if gust := h.Get(columns.Gust); gust.Found() {
		specs = append(specs, Spec{Alias: AliasGustMax, Func: Max, Sources: sources(gust)})
	}
	return specs, nil
}

// DailyRows converts a day-resolution table into DailyAggregate rows.
func DailyRows(t *Table, channel int) ([]models.DailyAggregate, error) {
	days := make([]models.DailyAggregate, 0, len(t.Rows))
	for _, r := range t.Rows {
		date, err := time.Parse(time.DateOnly, r.Key)
		if err != nil {
			return nil, fmt.Errorf("daily key %q: %w", r.Key, err)
		}
		d := models.DailyAggregate{
			Date:    date,
			Channel: channel,
			TempMax: lookup(r, AliasTempMax),
			TempMin: lookup(r, AliasTempMin),
			TempAvg: lookup(r, AliasTempAvg),
			RainSum: lookup(r, AliasRain),
			WindMax: lookup(r, AliasWindMax),
			WindAvg: lookup(r, AliasWindAvg),
			GustMax: lookup(r, AliasGustMax),
		}
		if n, ok := r.Values[AliasReadings]; ok {
			d.Readings = int(n)
		}
		days = append(days, d)
	}
	return days, nil
}

func lookup(r Row, alias string) sql.NullFloat64 {
	v, ok := r.Values[alias]
	return sql.NullFloat64{Float64: v, Valid: ok}
}
