// Package cli is the seedpipe command-line surface.
package cli

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"seedpipe/internal/config"
	"seedpipe/internal/etl"
	"seedpipe/internal/etl/sources"
	"seedpipe/internal/service"
	"seedpipe/internal/storage"
)

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// rootOptions holds the persistent flags. Precedence: flag > env > config file > default.
type rootOptions struct {
	configPath      string
	logLevel        string
	historyDB       string
	requireExisting bool
	baseURL         string
	fetchOutput     string
	seedOutput      string
	quoteMode       string
	timeout         time.Duration
	rateLimit       float64
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "seedpipe",
		Short:         "Fetch feature attributes and build SQL seed scripts",
		Long:          "seedpipe queries a feature service once per key and flattens JSON records into SQL value tuples appended to a seed script.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "", "YAML config file")
	pf.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	pf.StringVar(&opts.historyDB, "history-db", "", "SQLite file recording run history (disabled when empty)")
	pf.BoolVar(&opts.requireExisting, "require-existing", true, "Only write outputs that already exist")
	pf.StringVar(&opts.baseURL, "base-url", "", "Feature query endpoint")
	pf.StringVar(&opts.fetchOutput, "fetch-output", "", "Dataset file overwritten by fetch")
	pf.StringVar(&opts.seedOutput, "seed-output", "", "SQL seed script appended by flatten")
	pf.StringVar(&opts.quoteMode, "quote-mode", "", "String literal quoting (escape, postgres, raw)")
	pf.DurationVar(&opts.timeout, "timeout", 0, "Per-request timeout (0 waits indefinitely)")
	pf.Float64Var(&opts.rateLimit, "rate-limit", 0, "Max requests per second (0 is unlimited)")

	rootCmd.AddCommand(newFetchCmd(opts))
	rootCmd.AddCommand(newFlattenCmd(opts))
	rootCmd.AddCommand(newWatchCmd(opts))
	rootCmd.AddCommand(newScheduleCmd(opts))
	rootCmd.AddCommand(newRunsCmd(opts))

	return rootCmd
}

// resolveConfig layers defaults, the config file, the environment and flags.
func (o *rootOptions) resolveConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()
	if o.configPath != "" {
		loaded, err := config.Load(o.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel = o.logLevel
	}
	if flags.Changed("history-db") {
		cfg.HistoryDB = o.historyDB
	}
	if flags.Changed("require-existing") {
		cfg.RequireExisting = o.requireExisting
	}
	if flags.Changed("base-url") {
		cfg.BaseURL = o.baseURL
	}
	if flags.Changed("fetch-output") {
		cfg.FetchOutput = o.fetchOutput
	}
	if flags.Changed("seed-output") {
		cfg.SeedOutput = o.seedOutput
	}
	if flags.Changed("quote-mode") {
		cfg.QuoteMode = o.quoteMode
	}
	if flags.Changed("timeout") {
		cfg.Timeout = o.timeout
	}
	if flags.Changed("rate-limit") {
		cfg.RateLimit = o.rateLimit
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// pipeline bundles what every command needs.
type pipeline struct {
	cfg    *config.Config
	svc    *service.PipelineService
	db     *storage.DB
	logger *slog.Logger
}

func (o *rootOptions) open(cmd *cobra.Command) (*pipeline, error) {
	cfg, err := o.resolveConfig(cmd)
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: cfg.SlogLevel()}))

	mode, err := etl.ParseQuoteMode(cfg.QuoteMode)
	if err != nil {
		return nil, err
	}

	engine := &etl.Engine{
		Inputs: sources.JSONFileReader{},
		Fetcher: &etl.Fetcher{
			Query:  sources.NewFeatureQuery(cfg.BaseURL, cfg.QueryTemplate, cfg.Timeout, cfg.RateLimit),
			Logger: logger,
		},
		Flattener: &etl.Flattener{Mode: mode},
		Dataset:   &etl.JSONFileWriter{Path: cfg.FetchOutput, RequireExisting: cfg.RequireExisting},
		Script:    &etl.SQLFileWriter{Path: cfg.SeedOutput, RequireExisting: cfg.RequireExisting},
		Logger:    logger,
	}

	p := &pipeline{cfg: cfg, logger: logger}
	var runs *storage.RunStore
	if cfg.HistoryDB != "" {
		db, err := storage.New(cfg.HistoryDB)
		if err != nil {
			return nil, fmt.Errorf("open run history: %w", err)
		}
		p.db = db
		runs = storage.NewRunStore(db)
	}
	p.svc = service.NewPipelineService(engine, runs, service.LogEmitter{Logger: logger}, logger)
	return p, nil
}

func (p *pipeline) Close() {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			p.logger.Warn("close run history", "err", err)
		}
	}
}
