package forecast

import (
	"database/sql"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/lox/wxarchive/internal/ingest"
	"github.com/lox/wxarchive/internal/models"
)

type csvColumns struct {
	schema ingest.Schema
	row    ingest.Row
}

func (c csvColumns) number(name string) sql.NullFloat64 {
	i := c.schema.Index(name)
	if i < 0 || i >= len(c.row.Values) || !c.row.Values[i].IsNumber() {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: c.row.Values[i].Float, Valid: true}
}

func (c csvColumns) text(name string) string {
	i := c.schema.Index(name)
	if i < 0 || i >= len(c.row.Values) {
		return ""
	}
	return strings.TrimSpace(c.row.Values[i].String())
}

func parse(r io.Reader, dateColumn string, required ...string) (*ingest.Table, ingest.Schema, error) {
	t, err := ingest.ParseCSV(r)
	if err != nil {
		return nil, nil, err
	}
	if !strings.EqualFold(t.TimeColumn, dateColumn) {
		return nil, nil, fmt.Errorf("first column is %q, expected %q", t.TimeColumn, dateColumn)
	}
	lower := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		lower[i] = strings.ToLower(c)
	}
	t.Columns = lower
	schema := t.Schema()
	for _, name := range required {
		if schema.Index(name) < 0 {
			return nil, nil, fmt.Errorf("missing column %q", name)
		}
	}
	return t, schema, nil
}

// LoadForecasts reads forecast records with the header
// forecast_date,source,fetched_at,temp_max,temp_min,precip,wind_speed,wind_gust.
// Values are metric. fetched_at is RFC 3339.
func LoadForecasts(r io.Reader) ([]models.Forecast, error) {
	t, schema, err := parse(r, "forecast_date", "source", "fetched_at")
	if err != nil {
		return nil, err
	}
	out := make([]models.Forecast, 0, len(t.Rows))
	for n, row := range t.Rows {
		c := csvColumns{schema: schema, row: row}
		date, err := time.Parse(time.DateOnly, row.Time)
		if err != nil {
			return nil, fmt.Errorf("line %d: forecast_date %q: %w", n+2, row.Time, err)
		}
		fetched, err := time.Parse(time.RFC3339, c.text("fetched_at"))
		if err != nil {
			return nil, fmt.Errorf("line %d: fetched_at: %w", n+2, err)
		}
		source := c.text("source")
		if source == "" {
			return nil, fmt.Errorf("line %d: empty source", n+2)
		}
		out = append(out, models.Forecast{
			Source:       source,
			FetchedAt:    fetched.UTC(),
			ForecastDate: date,
			TempMax:      c.number(string(TempMax)),
			TempMin:      c.number(string(TempMin)),
			Precip:       c.number(string(Precip)),
			WindSpeed:    c.number(string(WindSpeed)),
			WindGust:     c.number(string(WindGust)),
		})
	}
	return out, nil
}

// LoadImperialActuals reads daily observations in US units with the header
// date,tempmaxf,tempminf,precipin,windmph,gustmph and converts them.
func LoadImperialActuals(r io.Reader) ([]Actual, error) {
	t, schema, err := parse(r, "date")
	if err != nil {
		return nil, err
	}
	out := make([]Actual, 0, len(t.Rows))
	for n, row := range t.Rows {
		c := csvColumns{schema: schema, row: row}
		date, err := time.Parse(time.DateOnly, row.Time)
		if err != nil {
			return nil, fmt.Errorf("line %d: date %q: %w", n+2, row.Time, err)
		}
		out = append(out, ImperialActual{
			Date:     date,
			TempMaxF: c.number("tempmaxf"),
			TempMinF: c.number("tempminf"),
			PrecipIn: c.number("precipin"),
			WindMph:  c.number("windmph"),
			GustMph:  c.number("gustmph"),
		}.Convert())
	}
	return out, nil
}
