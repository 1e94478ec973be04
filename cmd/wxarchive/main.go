package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"
	_ "modernc.org/sqlite"

	"github.com/lox/wxarchive/internal/archive"
	"github.com/lox/wxarchive/internal/ingest"
	"github.com/lox/wxarchive/internal/log"
	"github.com/lox/wxarchive/internal/store"
)

type Globals struct {
	EnvFile kongdotenv.ENVFileConfig `kong:"optional,name=env-file,default='.env',help='Path to .env file'"`

	DataDir       string `help:"Directory holding monthly exports." default:"data/exports" env:"WXARCHIVE_DATA_DIR"`
	DB            string `help:"Path to SQLite cache database." default:"data/wxarchive.db" env:"WXARCHIVE_DB"`
	NoCache       bool   `help:"Skip the cache and read raw exports only." env:"WXARCHIVE_NO_CACHE"`
	MainSuffix    string `help:"File name suffix of main station exports." default:"A" env:"WXARCHIVE_MAIN_SUFFIX"`
	ChannelSuffix string `help:"File name suffix of channel sensor exports." default:"Allsensors_A" env:"WXARCHIVE_CHANNEL_SUFFIX"`
	Concurrency   int    `help:"Parallel raw file reads." default:"4" env:"WXARCHIVE_CONCURRENCY"`
	Debug         bool   `help:"Enable debug logging." env:"WXARCHIVE_DEBUG"`
}

type CLI struct {
	Globals

	Serve           ServeCmd           `cmd:"" help:"Serve the HTTP API."`
	Aggregate       AggregateCmd       `cmd:"" help:"Print bucketed averages for a month or date range."`
	Stats           StatsCmd           `cmd:"" help:"Print year or month statistics."`
	Accuracy        AccuracyCmd        `cmd:"" help:"Score stored forecasts against observations."`
	ImportForecasts ImportForecastsCmd `cmd:"" name:"import-forecasts" help:"Load forecasts from CSV files."`
	WarmCache       WarmCacheCmd       `cmd:"" name:"warm-cache" help:"Load exports into the cache ahead of queries."`
	Sync            SyncCmd            `cmd:"" help:"Mirror new exports from FTP."`
	Export          ExportCmd          `cmd:"" help:"Write bucketed averages to a parquet file."`
}

// App holds the handles every command shares. The caller owns their
// lifecycle; Close releases them.
type App struct {
	Dir     *ingest.Dir
	Store   *store.Store
	Archive *archive.Archive

	db *sql.DB
}

func openApp(g *Globals) (*App, error) {
	dir := ingest.NewDir(g.DataDir, map[ingest.Kind]string{
		ingest.KindMain:     g.MainSuffix,
		ingest.KindChannels: g.ChannelSuffix,
	})

	db, err := sql.Open("sqlite", g.DB)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")

	st := store.New(db, dir)
	if err := st.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	log.Debugf("database migrated")

	var cache archive.Cache = st
	if g.NoCache {
		cache = nil
		log.Infof("cache disabled, reading raw exports only")
	}

	return &App{
		Dir:     dir,
		Store:   st,
		Archive: archive.New(cache, dir, archive.Options{Concurrency: g.Concurrency, Forecasts: st}),
		db:      db,
	}, nil
}

func (a *App) Close() error {
	return a.db.Close()
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("wxarchive"),
		kong.Description("Weather export archive: aggregates, statistics and forecast accuracy."),
		kong.UsageOnError(),
	)

	if err := log.Init(cli.Debug); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync()

	app, err := openApp(&cli.Globals)
	if err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}
	defer app.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	kctx.BindTo(ctx, (*context.Context)(nil))
	if err := kctx.Run(app, &cli.Globals); err != nil {
		log.Errorf("%s: %v", kctx.Command(), err)
		app.Close()
		log.Sync()
		os.Exit(1)
	}
}
