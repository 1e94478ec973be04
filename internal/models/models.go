package models

import (
	"database/sql"
	"strconv"
	"time"
)

type ValueKind int

const (
	Null ValueKind = iota
	Number
	Text
)

// Value is one parsed CSV cell: null, a number or pass-through text.
type Value struct {
	Kind  ValueKind
	Float float64
	Str   string
}

func NullValue() Value            { return Value{} }
func NumberValue(f float64) Value { return Value{Kind: Number, Float: f} }
func TextValue(s string) Value    { return Value{Kind: Text, Str: s} }

func (v Value) IsNull() bool   { return v.Kind == Null }
func (v Value) IsNumber() bool { return v.Kind == Number }

func (v Value) String() string {
	switch v.Kind {
	case Number:
		return strconv.FormatFloat(v.Float, 'f', -1, 64)
	case Text:
		return v.Str
	default:
		return ""
	}
}

// DailyAggregate is one calendar day of observations in canonical units
// (°C, mm, km/h). Date is midnight UTC of the local calendar day.
type DailyAggregate struct {
	Date     time.Time
	TempMax  sql.NullFloat64
	TempMin  sql.NullFloat64
	TempAvg  sql.NullFloat64
	RainSum  sql.NullFloat64
	WindMax  sql.NullFloat64
	WindAvg  sql.NullFloat64
	GustMax  sql.NullFloat64
	Channel  int // 0 for the main station
	Readings int
}

// Forecast is an externally supplied daily forecast in metric units.
type Forecast struct {
	ID           int64
	Source       string
	FetchedAt    time.Time
	ForecastDate time.Time
	TempMax      sql.NullFloat64
	TempMin      sql.NullFloat64
	Precip       sql.NullFloat64
	WindSpeed    sql.NullFloat64
	WindGust     sql.NullFloat64
}

// DateKey formats a calendar date the way rows and forecasts are joined.
func DateKey(t time.Time) string {
	return t.Format("2006-01-02")
}
