// Package stats derives extremes, means and threshold day lists from daily
// aggregate rows.
package stats

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/lox/wxarchive/internal/models"
)

// Order controls how threshold lists are sorted.
type Order int

const (
	Chronological Order = iota
	// ByValue puts the most extreme day first: warmest or wettest for upper
	// thresholds, coldest for lower ones.
	ByValue
)

// DayValue is a value observed on a date.
type DayValue struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// Threshold lists the days crossing a boundary.
type Threshold struct {
	Count int        `json:"count"`
	Items []DayValue `json:"items"`
}

type Temperature struct {
	Max    *DayValue `json:"max"`
	Min    *DayValue `json:"min"`
	Mean   *float64  `json:"mean"`
	Over30 Threshold `json:"over30"`
	Over25 Threshold `json:"over25"`
	Over20 Threshold `json:"over20"`
	Under0 Threshold `json:"under0"`
	// AtOrBelowMinus10 counts days with a minimum of -10 °C or colder.
	AtOrBelowMinus10 Threshold `json:"atOrBelowMinus10"`
}

type Precipitation struct {
	Total     *float64  `json:"total"`
	Max       *DayValue `json:"max"`
	Min       *DayValue `json:"min"`
	AtLeast20 Threshold `json:"atLeast20"`
	AtLeast30 Threshold `json:"atLeast30"`
}

type Wind struct {
	MaxWind  *DayValue `json:"maxWind"`
	MaxGust  *DayValue `json:"maxGust"`
	MeanWind *float64  `json:"meanWind"`
}

// Summary is the statistics of a run of days.
type Summary struct {
	Days          int           `json:"days"`
	Temperature   Temperature   `json:"temperature"`
	Precipitation Precipitation `json:"precipitation"`
	Wind          Wind          `json:"wind"`
}

// MonthSummary is a Summary for one calendar month of a year.
type MonthSummary struct {
	Month time.Month `json:"month"`
	Summary
}

// Year is a year summary plus a summary per month that has data.
type Year struct {
	Year int `json:"year"`
	Summary
	Months []MonthSummary `json:"months"`
}

type Options struct {
	Order Order
}

type threshold struct {
	pick  func(models.DailyAggregate) (float64, bool)
	match func(float64) bool
	upper bool
}

func tmax(d models.DailyAggregate) (float64, bool) { return d.TempMax.Float64, d.TempMax.Valid }
func tmin(d models.DailyAggregate) (float64, bool) { return d.TempMin.Float64, d.TempMin.Valid }
func tavg(d models.DailyAggregate) (float64, bool) { return d.TempAvg.Float64, d.TempAvg.Valid }
func rain(d models.DailyAggregate) (float64, bool) { return d.RainSum.Float64, d.RainSum.Valid }
func wmax(d models.DailyAggregate) (float64, bool) { return d.WindMax.Float64, d.WindMax.Valid }
func wavg(d models.DailyAggregate) (float64, bool) { return d.WindAvg.Float64, d.WindAvg.Valid }
func gust(d models.DailyAggregate) (float64, bool) { return d.GustMax.Float64, d.GustMax.Valid }

// Summarize computes statistics over days. Rows are considered in date order;
// on equal extremes the earliest date wins. Missing values are skipped, never
// treated as zero.
func Summarize(days []models.DailyAggregate, opts Options) Summary {
	days = sorted(days)

	return Summary{
		Days: len(days),
		Temperature: Temperature{
			Max:              extreme(days, tmax, true),
			Min:              extreme(days, tmin, false),
			Mean:             mean(days, tavg),
			Over30:           collect(days, threshold{tmax, func(v float64) bool { return v > 30 }, true}, opts.Order),
			Over25:           collect(days, threshold{tmax, func(v float64) bool { return v > 25 }, true}, opts.Order),
			Over20:           collect(days, threshold{tmax, func(v float64) bool { return v > 20 }, true}, opts.Order),
			Under0:           collect(days, threshold{tmin, func(v float64) bool { return v < 0 }, false}, opts.Order),
			AtOrBelowMinus10: collect(days, threshold{tmin, func(v float64) bool { return v <= -10 }, false}, opts.Order),
		},
		Precipitation: Precipitation{
			Total:     total(days, rain),
			Max:       extreme(days, rain, true),
			Min:       extreme(days, rain, false),
			AtLeast20: collect(days, threshold{rain, func(v float64) bool { return v >= 20 }, true}, opts.Order),
			AtLeast30: collect(days, threshold{rain, func(v float64) bool { return v >= 30 }, true}, opts.Order),
		},
		Wind: Wind{
			MaxWind:  extreme(days, wmax, true),
			MaxGust:  extreme(days, gust, true),
			MeanWind: mean(days, wavg),
		},
	}
}

// ForYear summarises a year and each of its months that has rows.
func ForYear(year int, days []models.DailyAggregate, opts Options) Year {
	days = sorted(days)
	out := Year{Year: year, Summary: Summarize(days, opts)}

	var start int
	for i := 1; i <= len(days); i++ {
		if i < len(days) && days[i].Date.Month() == days[start].Date.Month() {
			continue
		}
		out.Months = append(out.Months, MonthSummary{
			Month:   days[start].Date.Month(),
			Summary: Summarize(days[start:i], opts),
		})
		start = i
	}
	return out
}

func sorted(days []models.DailyAggregate) []models.DailyAggregate {
	out := make([]models.DailyAggregate, len(days))
	copy(out, days)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

func extreme(days []models.DailyAggregate, pick func(models.DailyAggregate) (float64, bool), max bool) *DayValue {
	var best *DayValue
	for _, d := range days {
		v, ok := pick(d)
		if !ok {
			continue
		}
		if best == nil || (max && v > best.Value) || (!max && v < best.Value) {
			best = &DayValue{Date: d.Date, Value: v}
		}
	}
	return best
}

func values(days []models.DailyAggregate, pick func(models.DailyAggregate) (float64, bool)) []float64 {
	var out []float64
	for _, d := range days {
		if v, ok := pick(d); ok {
			out = append(out, v)
		}
	}
	return out
}

func mean(days []models.DailyAggregate, pick func(models.DailyAggregate) (float64, bool)) *float64 {
	vs := values(days, pick)
	if len(vs) == 0 {
		return nil
	}
	m := stat.Mean(vs, nil)
	return &m
}

func total(days []models.DailyAggregate, pick func(models.DailyAggregate) (float64, bool)) *float64 {
	vs := values(days, pick)
	if len(vs) == 0 {
		return nil
	}
	s := floats.Sum(vs)
	return &s
}

func collect(days []models.DailyAggregate, th threshold, order Order) Threshold {
	out := Threshold{Items: []DayValue{}}
	for _, d := range days {
		v, ok := th.pick(d)
		if ok && th.match(v) {
			out.Items = append(out.Items, DayValue{Date: d.Date, Value: v})
		}
	}
	out.Count = len(out.Items)
	if order == ByValue {
		sort.SliceStable(out.Items, func(i, j int) bool {
			if th.upper {
				return out.Items[i].Value > out.Items[j].Value
			}
			return out.Items[i].Value < out.Items[j].Value
		})
	}
	return out
}
