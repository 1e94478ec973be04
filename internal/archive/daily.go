package archive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lox/wxarchive/internal/aggregate"
	"github.com/lox/wxarchive/internal/columns"
	"github.com/lox/wxarchive/internal/forecast"
	"github.com/lox/wxarchive/internal/ingest"
	"github.com/lox/wxarchive/internal/log"
	"github.com/lox/wxarchive/internal/metrics"
	"github.com/lox/wxarchive/internal/models"
	"github.com/lox/wxarchive/internal/stats"
)

type DailyResult struct {
	Meta
	Scope columns.Scope
	Days  []models.DailyAggregate
}

// Daily reduces the scope to one row per calendar day. Channel scopes read
// the channel export unless the request names a kind.
func (a *Archive) Daily(ctx context.Context, req Request, scope columns.Scope) (*DailyResult, error) {
	if req.Kind == "" && !scope.IsStation() {
		req.Kind = ingest.KindChannels
	}
	req.Resolution = aggregate.Day

	res, err := a.run(ctx, "daily", req, dailyPlan(scope))
	if err != nil {
		return nil, err
	}
	days, err := aggregate.DailyRows(res.Table, scope.Channel)
	if err != nil {
		return nil, err
	}
	for _, d := range days {
		flags := ingest.CheckDaily(d)
		for _, f := range flags {
			metrics.QualityFlags.WithLabelValues(f).Inc()
		}
		if len(flags) > 0 {
			log.Warnw("archive: implausible daily row",
				"date", models.DateKey(d.Date), "scope", scope.String(), "flags", flags)
		}
	}
	return &DailyResult{Meta: res.Meta, Scope: scope, Days: days}, nil
}

type YearResult struct {
	Meta
	stats.Year
}

// YearStats summarises a calendar year and each of its months.
func (a *Archive) YearStats(ctx context.Context, year int, scope columns.Scope, opts stats.Options) (*YearResult, error) {
	req := Request{
		Start: time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC),
	}
	daily, err := a.Daily(ctx, req, scope)
	if err != nil {
		return nil, err
	}
	return &YearResult{Meta: daily.Meta, Year: stats.ForYear(year, daily.Days, opts)}, nil
}

type MonthResult struct {
	Meta
	Month string `json:"month"`
	stats.Summary
}

// MonthStats summarises one month's export.
func (a *Archive) MonthStats(ctx context.Context, month ingest.Month, scope columns.Scope, opts stats.Options) (*MonthResult, error) {
	daily, err := a.Daily(ctx, Request{Month: &month}, scope)
	if err != nil {
		return nil, err
	}
	return &MonthResult{Meta: daily.Meta, Month: month.String(), Summary: stats.Summarize(daily.Days, opts)}, nil
}

type AccuracyResult struct {
	Meta
	Pairs  int                       `json:"pairs"`
	Scores map[string]forecast.Score `json:"scores"`
}

// Accuracy scores stored forecasts against the main station's daily rows.
func (a *Archive) Accuracy(ctx context.Context, start, end time.Time) (*AccuracyResult, error) {
	daily, err := a.Daily(ctx, Request{Start: start, End: end}, columns.Station)
	if err != nil {
		return nil, err
	}
	actuals := make([]forecast.Actual, len(daily.Days))
	for i, d := range daily.Days {
		actuals[i] = forecast.ActualFromDaily(d)
	}
	out, err := a.AccuracyAgainst(ctx, actuals, start, end)
	if err != nil {
		return nil, err
	}
	out.Meta = daily.Meta
	return out, nil
}

// AccuracyAgainst scores stored forecasts against externally supplied
// actuals.
func (a *Archive) AccuracyAgainst(ctx context.Context, actuals []forecast.Actual, start, end time.Time) (*AccuracyResult, error) {
	if a.forecasts == nil {
		return nil, errors.New("no forecast source configured")
	}
	fcs, err := a.forecasts.GetForecasts(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("load forecasts: %w", err)
	}
	pairs := forecast.Join(actuals, fcs)
	return &AccuracyResult{
		Meta:   Meta{NoData: len(actuals) == 0, Files: []string{}},
		Pairs:  len(pairs),
		Scores: forecast.ScoreBySource(pairs),
	}, nil
}
