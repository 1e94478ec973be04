package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/lox/wxarchive/internal/aggregate"
	"github.com/lox/wxarchive/internal/api"
	"github.com/lox/wxarchive/internal/archive"
	"github.com/lox/wxarchive/internal/columns"
	"github.com/lox/wxarchive/internal/export"
	"github.com/lox/wxarchive/internal/forecast"
	"github.com/lox/wxarchive/internal/ingest"
	"github.com/lox/wxarchive/internal/log"
	"github.com/lox/wxarchive/internal/stats"
)

// Scope flags shared by the query commands.
type ScopeFlags struct {
	Kind       string `help:"Export series: main or channels. Defaults by scope."`
	Month      string `help:"Month to read (YYYYMM)." xor:"scope"`
	Start      string `help:"First day of a range (YYYY-MM-DD)." xor:"scope"`
	End        string `help:"Last day of a range (YYYY-MM-DD)."`
	Resolution string `help:"Bucket size: minute, hour or day." default:"hour" enum:"minute,hour,day"`
}

func (f ScopeFlags) request() (archive.Request, error) {
	var req archive.Request
	if f.Kind != "" {
		kind, err := ingest.ParseKind(f.Kind)
		if err != nil {
			return req, err
		}
		req.Kind = kind
	}
	res, err := aggregate.ParseResolution(f.Resolution)
	if err != nil {
		return req, err
	}
	req.Resolution = res

	if f.Month != "" {
		m, err := ingest.ParseMonth(f.Month)
		if err != nil {
			return req, err
		}
		req.Month = &m
	}
	if f.Start != "" {
		if req.Start, err = time.Parse(time.DateOnly, f.Start); err != nil {
			return req, fmt.Errorf("invalid --start: %w", err)
		}
	}
	if f.End != "" {
		if req.End, err = time.Parse(time.DateOnly, f.End); err != nil {
			return req, fmt.Errorf("invalid --end: %w", err)
		}
	}
	return req, req.Validate()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// FTPFlags configure the export mirror. An empty host disables it.
type FTPFlags struct {
	FTPHost     string        `name:"ftp-host" help:"FTP host:port the console uploads to." env:"FTP_HOST"`
	FTPUser     string        `name:"ftp-user" help:"FTP user." env:"FTP_USER"`
	FTPPassword string        `name:"ftp-password" help:"FTP password." env:"FTP_PASSWORD"`
	FTPDir      string        `name:"ftp-dir" help:"Remote export directory." default:"/" env:"FTP_DIR"`
	FTPTimeout  time.Duration `name:"ftp-timeout" help:"FTP connection timeout." default:"30s"`
}

func (f FTPFlags) mirror(app *App) *ingest.Mirror {
	if f.FTPHost == "" {
		return nil
	}
	return ingest.NewMirror(ingest.MirrorConfig{
		Host:     f.FTPHost,
		User:     f.FTPUser,
		Password: f.FTPPassword,
		Dir:      f.FTPDir,
		Timeout:  f.FTPTimeout,
	}, app.Dir, app.Store)
}

type ServeCmd struct {
	FTPFlags
	Port    string        `help:"HTTP server port." default:"8080" env:"PORT"`
	Refresh time.Duration `help:"Interval between mirror syncs and cache reloads. Zero disables." default:"15m" env:"WXARCHIVE_REFRESH"`
}

func (c *ServeCmd) Run(ctx context.Context, app *App, g *Globals) error {
	var cache api.CacheStatus = app.Store
	if g.NoCache {
		cache = nil
	}

	if c.Refresh > 0 {
		var syncer ingest.Syncer
		if m := c.mirror(app); m != nil {
			syncer = m
		}
		var warm ingest.WarmFunc
		if !g.NoCache {
			warm = func(ctx context.Context, kind ingest.Kind, month ingest.Month) error {
				_, err := app.Store.EnsureCacheForMonth(ctx, kind, month)
				return err
			}
		}
		go ingest.NewScheduler(app.Dir, syncer, warm, c.Refresh).Run(ctx)
	} else {
		log.Infof("refresh disabled")
	}

	return api.NewServer(app.Archive, cache, c.Port).Run(ctx)
}

type AggregateCmd struct {
	ScopeFlags
	Format string `help:"Output format." default:"csv" enum:"csv,json"`
}

func (c *AggregateCmd) Run(ctx context.Context, app *App) error {
	req, err := c.request()
	if err != nil {
		return err
	}
	res, err := app.Archive.Aggregate(ctx, req)
	if err != nil {
		return err
	}
	if res.NoData {
		return archive.ErrNoData
	}
	log.Infow("aggregate", "request_id", res.RequestID, "files", res.Files, "from_cache", res.FromCache)

	if c.Format == "json" {
		return printJSON(res)
	}
	w := csv.NewWriter(os.Stdout)
	w.Write(res.Table.Header)
	for _, row := range res.Table.Rows {
		rec := make([]string, len(res.Table.Header))
		rec[0] = row.Key
		for i, alias := range res.Table.Header[1:] {
			if v, ok := row.Values[alias]; ok {
				rec[i+1] = strconv.FormatFloat(v, 'f', -1, 64)
			}
		}
		w.Write(rec)
	}
	w.Flush()
	return w.Error()
}

type StatsCmd struct {
	Year    int    `help:"Calendar year to summarise." xor:"period" required:""`
	Month   string `help:"Month to summarise (YYYYMM)." xor:"period" required:""`
	Scope   string `help:"station or chN." default:"station"`
	ByValue bool   `help:"Sort threshold day lists by value instead of date."`
}

func (c *StatsCmd) Run(ctx context.Context, app *App) error {
	scope, err := columns.ParseScope(c.Scope)
	if err != nil {
		return err
	}
	opts := stats.Options{}
	if c.ByValue {
		opts.Order = stats.ByValue
	}

	if c.Month != "" {
		m, err := ingest.ParseMonth(c.Month)
		if err != nil {
			return err
		}
		res, err := app.Archive.MonthStats(ctx, m, scope, opts)
		if err != nil {
			return err
		}
		if res.NoData {
			return archive.ErrNoData
		}
		return printJSON(res)
	}

	res, err := app.Archive.YearStats(ctx, c.Year, scope, opts)
	if err != nil {
		return err
	}
	if res.NoData {
		return archive.ErrNoData
	}
	return printJSON(res)
}

type AccuracyCmd struct {
	Start           string `help:"First forecast date (YYYY-MM-DD)." required:""`
	End             string `help:"Last forecast date (YYYY-MM-DD)." required:""`
	ActualsImperial string `help:"Score against imperial daily actuals from this CSV instead of the archive." type:"existingfile"`
}

func (c *AccuracyCmd) Run(ctx context.Context, app *App) error {
	start, err := time.Parse(time.DateOnly, c.Start)
	if err != nil {
		return fmt.Errorf("invalid --start: %w", err)
	}
	end, err := time.Parse(time.DateOnly, c.End)
	if err != nil {
		return fmt.Errorf("invalid --end: %w", err)
	}

	if c.ActualsImperial == "" {
		res, err := app.Archive.Accuracy(ctx, start, end)
		if err != nil {
			return err
		}
		return printJSON(res)
	}

	f, err := os.Open(c.ActualsImperial)
	if err != nil {
		return err
	}
	defer f.Close()
	actuals, err := forecast.LoadImperialActuals(f)
	if err != nil {
		return fmt.Errorf("%s: %w", c.ActualsImperial, err)
	}
	res, err := app.Archive.AccuracyAgainst(ctx, actuals, start, end)
	if err != nil {
		return err
	}
	return printJSON(res)
}

type ImportForecastsCmd struct {
	Files []string `arg:"" help:"Forecast CSV files." type:"existingfile"`
}

func (c *ImportForecastsCmd) Run(ctx context.Context, app *App) error {
	for _, path := range c.Files {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		fcs, err := forecast.LoadForecasts(f)
		f.Close()
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}

		var added int
		for _, fc := range fcs {
			ok, err := app.Store.InsertForecast(ctx, fc)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			if ok {
				added++
			}
		}
		log.Infof("imported %d of %d forecasts from %s", added, len(fcs), path)
	}
	return nil
}

type WarmCacheCmd struct {
	Kind  string `help:"Export series: main or channels." default:"main"`
	Start string `help:"First day (YYYY-MM-DD). Defaults to the earliest export."`
	End   string `help:"Last day (YYYY-MM-DD). Defaults to the latest export."`
}

func (c *WarmCacheCmd) Run(ctx context.Context, app *App) error {
	kind, err := ingest.ParseKind(c.Kind)
	if err != nil {
		return err
	}
	files, err := app.Dir.Files(kind)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		log.Infof("warm-cache: no %s exports in %s", kind, app.Dir.Root)
		return nil
	}

	start, end := files[0].Month.Start(), files[len(files)-1].Month.End()
	if c.Start != "" {
		if start, err = time.Parse(time.DateOnly, c.Start); err != nil {
			return fmt.Errorf("invalid --start: %w", err)
		}
	}
	if c.End != "" {
		if end, err = time.Parse(time.DateOnly, c.End); err != nil {
			return fmt.Errorf("invalid --end: %w", err)
		}
	}

	handles, err := app.Store.EnsureCacheForRange(ctx, kind, start, end)
	if err != nil {
		return err
	}
	for _, h := range handles {
		log.Infof("warm-cache: %s %d rows (%d dropped)", h.Table, h.Rows, h.Dropped)
	}
	return nil
}

type SyncCmd struct {
	FTPFlags
}

func (c *SyncCmd) Run(ctx context.Context, app *App) error {
	m := c.mirror(app)
	if m == nil {
		return errors.New("sync needs --ftp-host or FTP_HOST")
	}
	res, err := m.Sync(ctx)
	if err != nil {
		return err
	}
	log.Infow("sync complete",
		"listed", res.Listed, "downloaded", len(res.Downloaded), "skipped", res.Skipped, "failed", len(res.Failed))
	return nil
}

type ExportCmd struct {
	ScopeFlags
	Out string `help:"Parquet file to write." required:"" type:"path"`
}

func (c *ExportCmd) Run(ctx context.Context, app *App) error {
	req, err := c.request()
	if err != nil {
		return err
	}
	res, err := app.Archive.Aggregate(ctx, req)
	if err != nil {
		return err
	}
	if res.NoData {
		return archive.ErrNoData
	}
	if err := export.WriteFile(c.Out, res.Table); err != nil {
		return err
	}
	log.Infof("export: wrote %d rows to %s", len(res.Table.Rows), c.Out)
	return nil
}
