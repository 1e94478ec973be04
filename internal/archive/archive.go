// Package archive answers aggregate, statistics and accuracy queries over the
// monthly export archive. Each query first tries the sqlite cache and, when
// that fails for any reason, reads the raw export files instead. Both paths
// produce the same table shape.
package archive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/lox/wxarchive/internal/aggregate"
	"github.com/lox/wxarchive/internal/columns"
	"github.com/lox/wxarchive/internal/ingest"
	"github.com/lox/wxarchive/internal/log"
	"github.com/lox/wxarchive/internal/metrics"
	"github.com/lox/wxarchive/internal/models"
	"github.com/lox/wxarchive/internal/store"
)

var (
	// ErrNoData marks a scope with no export files. Results carry NoData
	// instead of returning it; the HTTP layer maps it to 404.
	ErrNoData = errors.New("no data for requested scope")

	// ErrDataUnavailable is returned when both the cache and the raw files
	// failed.
	ErrDataUnavailable = errors.New("data unavailable")

	errCacheDisabled = errors.New("cache disabled")
)

// Cache is the columnar fast path. *store.Store satisfies it.
type Cache interface {
	EnsureCacheForMonth(ctx context.Context, kind ingest.Kind, month ingest.Month) (*store.CacheHandle, error)
	EnsureCacheForRange(ctx context.Context, kind ingest.Kind, start, end time.Time) ([]store.CacheHandle, error)
	DescribeColumns(ctx context.Context, handles []store.CacheHandle) (ingest.Schema, error)
	QueryGrouped(ctx context.Context, q store.GroupedQuery) (*aggregate.Table, error)
}

// ForecastSource supplies stored forecasts for accuracy scoring.
type ForecastSource interface {
	GetForecasts(ctx context.Context, start, end time.Time) ([]models.Forecast, error)
}

// RecoverableError is a fast path failure. The coordinator answers it by
// reading raw files for the same scope.
type RecoverableError struct {
	Reason string
	Err    error
}

func (e *RecoverableError) Error() string {
	return fmt.Sprintf("cache %s: %v", e.Reason, e.Err)
}

func (e *RecoverableError) Unwrap() error { return e.Err }

func recoverable(reason string, err error) *RecoverableError {
	return &RecoverableError{Reason: reason, Err: err}
}

type Options struct {
	// Concurrency bounds parallel raw file reads. Zero means 4.
	Concurrency int
	Forecasts   ForecastSource
}

type Archive struct {
	cache       Cache
	dir         *ingest.Dir
	forecasts   ForecastSource
	concurrency int
}

// New returns a coordinator. A nil cache sends every query to the raw files.
func New(cache Cache, dir *ingest.Dir, opts Options) *Archive {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	return &Archive{
		cache:       cache,
		dir:         dir,
		forecasts:   opts.Forecasts,
		concurrency: opts.Concurrency,
	}
}

// Request selects a file scope and a resolution. Set either Month or both
// Start and End.
type Request struct {
	Kind       ingest.Kind
	Month      *ingest.Month
	Start      time.Time
	End        time.Time
	Resolution aggregate.Resolution
}

func (r Request) Validate() error {
	if r.Month != nil {
		if !r.Start.IsZero() || !r.End.IsZero() {
			return errors.New("request has both month and date range")
		}
		return nil
	}
	if r.Start.IsZero() || r.End.IsZero() {
		return errors.New("request needs a month or a start and end date")
	}
	if r.End.Before(r.Start) {
		return fmt.Errorf("end %s before start %s", models.DateKey(r.End), models.DateKey(r.Start))
	}
	return nil
}

// bounds covers whole days for ranges. Month requests read the whole file.
func (r Request) bounds() aggregate.Bounds {
	if r.Month != nil {
		return aggregate.Bounds{}
	}
	start := time.Date(r.Start.Year(), r.Start.Month(), r.Start.Day(), 0, 0, 0, 0, time.UTC)
	end := time.Date(r.End.Year(), r.End.Month(), r.End.Day(), 23, 59, 59, 0, time.UTC)
	return aggregate.Bounds{Start: start, End: end}
}

func (r Request) kind() ingest.Kind {
	if r.Kind == "" {
		return ingest.KindMain
	}
	return r.Kind
}

func (r Request) String() string {
	if r.Month != nil {
		return fmt.Sprintf("%s %s", r.kind(), r.Month)
	}
	return fmt.Sprintf("%s %s..%s", r.kind(), models.DateKey(r.Start), models.DateKey(r.End))
}

// Meta describes where a result came from.
type Meta struct {
	RequestID string   `json:"requestId"`
	Files     []string `json:"files"`
	FromCache bool     `json:"fromCache"`
	NoData    bool     `json:"noData"`
}

type Result struct {
	Meta
	Table *aggregate.Table
}

// ResolveForMonth returns the cached table for a month, or nil when the month
// has no export.
func (a *Archive) ResolveForMonth(ctx context.Context, kind ingest.Kind, month ingest.Month) (*store.CacheHandle, error) {
	if a.cache == nil {
		return nil, errCacheDisabled
	}
	return a.cache.EnsureCacheForMonth(ctx, kind, month)
}

// ResolveForRange returns cached tables for every export intersecting
// [start, end], in month order.
func (a *Archive) ResolveForRange(ctx context.Context, kind ingest.Kind, start, end time.Time) ([]store.CacheHandle, error) {
	if a.cache == nil {
		return nil, errCacheDisabled
	}
	return a.cache.EnsureCacheForRange(ctx, kind, start, end)
}

// plan turns the merged schema of the scope into aggregation specs.
type plan func(ingest.Schema) ([]aggregate.Spec, error)

func averagePlan(schema ingest.Schema) ([]aggregate.Spec, error) {
	return aggregate.AverageSpecs(schema, columns.SpeedConversions(schema.Names())), nil
}

func dailyPlan(scope columns.Scope) plan {
	return func(schema ingest.Schema) ([]aggregate.Spec, error) {
		var names []string
		for _, c := range schema {
			if c.Numeric {
				names = append(names, c.Name)
			}
		}
		return aggregate.DailySpecs(columns.Discover(names, scope))
	}
}

// Aggregate averages every numeric column of the scope per bucket. Wind and
// gust columns are converted to km/h first.
func (a *Archive) Aggregate(ctx context.Context, req Request) (*Result, error) {
	if req.Resolution == "" {
		req.Resolution = aggregate.Hour
	}
	return a.run(ctx, "aggregate", req, averagePlan)
}

func (a *Archive) run(ctx context.Context, op string, req Request, p plan) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	id := uuid.NewString()
	began := time.Now()
	defer func() {
		metrics.QueryLatency.WithLabelValues(op).Observe(time.Since(began).Seconds())
	}()

	res, rerr := a.tryCache(ctx, req, p)
	if rerr == nil {
		metrics.QueriesTotal.WithLabelValues(op, "cache").Inc()
		res.RequestID = id
		return res, nil
	}

	log.Infow("archive: reading raw files",
		"op", op, "request_id", id, "scope", req.String(), "reason", rerr.Reason, "error", rerr.Err)
	metrics.FallbacksTotal.WithLabelValues(op, rerr.Reason).Inc()

	res, err := a.fallback(ctx, req, p)
	if err != nil {
		if errors.Is(err, columns.ErrColumnNotFound) {
			return nil, err
		}
		log.Warnw("archive: query failed on both paths", "op", op, "request_id", id, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrDataUnavailable, multierr.Combine(rerr, err))
	}
	metrics.QueriesTotal.WithLabelValues(op, "files").Inc()
	res.RequestID = id
	return res, nil
}

func (a *Archive) tryCache(ctx context.Context, req Request, p plan) (*Result, *RecoverableError) {
	if a.cache == nil {
		return nil, recoverable("disabled", errCacheDisabled)
	}

	var handles []store.CacheHandle
	if req.Month != nil {
		h, err := a.ResolveForMonth(ctx, req.kind(), *req.Month)
		if err != nil {
			return nil, recoverable("materialize", err)
		}
		if h != nil {
			handles = append(handles, *h)
		}
	} else {
		hs, err := a.ResolveForRange(ctx, req.kind(), req.Start, req.End)
		if err != nil {
			return nil, recoverable("materialize", err)
		}
		handles = hs
	}
	if len(handles) == 0 {
		return nil, recoverable("not_found", ErrNoData)
	}

	schema, err := a.cache.DescribeColumns(ctx, handles)
	if err != nil {
		return nil, recoverable("describe", err)
	}
	specs, err := p(schema)
	if err != nil {
		return nil, recoverable("discovery", err)
	}
	table, err := a.cache.QueryGrouped(ctx, store.GroupedQuery{
		Handles:    handles,
		Resolution: req.Resolution,
		Specs:      specs,
		Bounds:     req.bounds(),
	})
	if err != nil {
		return nil, recoverable("query", err)
	}

	labels := make([]string, len(handles))
	for i, h := range handles {
		labels[i] = "cache:" + h.Table
	}
	return &Result{Meta: Meta{Files: labels, FromCache: true}, Table: table}, nil
}

func (a *Archive) files(req Request) ([]ingest.File, error) {
	if req.Month != nil {
		f, err := a.dir.FileForMonth(req.kind(), *req.Month)
		if err != nil || f == nil {
			return nil, err
		}
		return []ingest.File{*f}, nil
	}
	return a.dir.FilesForRange(req.kind(), req.Start, req.End)
}

func (a *Archive) fallback(ctx context.Context, req Request, p plan) (*Result, error) {
	files, err := a.files(req)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return &Result{
			Meta:  Meta{NoData: true, Files: []string{}},
			Table: &aggregate.Table{Header: aggregate.Header(nil)},
		}, nil
	}

	tables, err := a.readFiles(ctx, files)
	if err != nil {
		return nil, err
	}

	var (
		schemas []ingest.Schema
		read    []string
	)
	for i, t := range tables {
		if t == nil {
			continue
		}
		schemas = append(schemas, t.Schema())
		read = append(read, files[i].Name)
	}
	if len(read) == 0 {
		return nil, fmt.Errorf("none of %d export files could be read", len(files))
	}

	specs, err := p(ingest.MergeSchemas(schemas...))
	if err != nil {
		return nil, err
	}
	agg := aggregate.New(req.Resolution, specs, req.bounds())
	for _, t := range tables {
		if t != nil {
			agg.AddTable(t)
		}
	}
	return &Result{Meta: Meta{Files: read}, Table: agg.Table()}, nil
}

// readFiles parses files concurrently into per-file slots. A file that fails
// leaves a nil slot; the rest of the range is still read.
func (a *Archive) readFiles(ctx context.Context, files []ingest.File) ([]*ingest.Table, error) {
	tables := make([]*ingest.Table, len(files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i, f := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			t, err := ingest.ParseFile(f.Path)
			if err != nil {
				metrics.FileErrors.Inc()
				log.Warnf("archive: skipping %s: %v", f.Name, err)
				return nil
			}
			tables[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return tables, nil
}
