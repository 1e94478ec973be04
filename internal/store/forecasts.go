package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lox/wxarchive/internal/models"
)

const fetchedAtLayout = "2006-01-02T15:04:05Z"

type forecastRow struct {
	ID           int64           `db:"id"`
	Source       string          `db:"source"`
	FetchedAt    string          `db:"fetched_at"`
	ForecastDate string          `db:"forecast_date"`
	TempMax      sql.NullFloat64 `db:"temp_max"`
	TempMin      sql.NullFloat64 `db:"temp_min"`
	Precip       sql.NullFloat64 `db:"precip"`
	WindSpeed    sql.NullFloat64 `db:"wind_speed"`
	WindGust     sql.NullFloat64 `db:"wind_gust"`
}

// InsertForecast stores one forecast. Re-importing the same fetch is a no-op.
// It reports whether a row was added.
func (s *Store) InsertForecast(ctx context.Context, f models.Forecast) (bool, error) {
	source := f.Source
	if source == "" {
		source = "unknown"
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO forecasts (source, fetched_at, forecast_date, temp_max, temp_min, precip, wind_speed, wind_gust)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source, fetched_at, forecast_date) DO NOTHING
	`, source, f.FetchedAt.UTC().Format(fetchedAtLayout), models.DateKey(f.ForecastDate),
		f.TempMax, f.TempMin, f.Precip, f.WindSpeed, f.WindGust)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetForecasts returns one forecast per (source, date) in [start, end]: the
// earliest fetch, which is the longest-lead prediction on record.
func (s *Store) GetForecasts(ctx context.Context, start, end time.Time) ([]models.Forecast, error) {
	var rows []forecastRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT f.id, f.source, f.fetched_at, f.forecast_date, f.temp_max, f.temp_min, f.precip, f.wind_speed, f.wind_gust
		FROM forecasts f
		JOIN (
			SELECT source, forecast_date, MIN(fetched_at) AS first_fetch
			FROM forecasts
			WHERE forecast_date >= ? AND forecast_date <= ?
			GROUP BY source, forecast_date
		) e ON f.source = e.source AND f.forecast_date = e.forecast_date AND f.fetched_at = e.first_fetch
		ORDER BY f.forecast_date, f.source
	`, models.DateKey(start), models.DateKey(end))
	if err != nil {
		return nil, err
	}

	out := make([]models.Forecast, 0, len(rows))
	for _, r := range rows {
		fetched, err := time.Parse(fetchedAtLayout, r.FetchedAt)
		if err != nil {
			return nil, fmt.Errorf("forecast %d fetched_at: %w", r.ID, err)
		}
		date, err := time.Parse(time.DateOnly, r.ForecastDate)
		if err != nil {
			return nil, fmt.Errorf("forecast %d date: %w", r.ID, err)
		}
		out = append(out, models.Forecast{
			ID:           r.ID,
			Source:       r.Source,
			FetchedAt:    fetched,
			ForecastDate: date,
			TempMax:      r.TempMax,
			TempMin:      r.TempMin,
			Precip:       r.Precip,
			WindSpeed:    r.WindSpeed,
			WindGust:     r.WindGust,
		})
	}
	return out, nil
}
