// =============================================================================
// main.go - bankier-feed CLI
// =============================================================================
//
// Scrapes the recent bankier.pl news listing and writes an RSS 2.0 file.
// Meant to be run from cron or a systemd timer.
//
//	bankier-feed                          # defaults: 5 pages, 48h window
//	bankier-feed --pages 1 --delay 0s     # quick local check
//	bankier-feed --config feed.yml --output /var/www/bankier.xml
//
// Settings are resolved in this order (later wins):
//
//	defaults -> --config YAML -> .env / .env.local -> environment -> flags
//
// Exit status: 0 when a feed with at least one article was written,
// 1 otherwise (no articles, fatal error, interrupt).
//
// =============================================================================
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/spf13/cobra"

	"bankier-feed/internal/config"
	"bankier-feed/internal/logger"
	"bankier-feed/internal/pipeline"
)

// runner is one pipeline pass; *pipeline.Driver satisfies it.
type runner interface {
	Run(ctx context.Context) (*pipeline.RunResult, error)
}

// newDriver builds the production pipeline.
var newDriver = func(cfg *config.Config, log logger.Logger) (runner, error) {
	return pipeline.New(cfg, log)
}

type options struct {
	configPath  string
	baseURL     string
	pages       int
	windowHours int
	delay       time.Duration
	output      string
	diagnostic  string
	logLevel    string
	logFormat   string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stderr)
	stop()
	os.Exit(code)
}

// execute runs the root command and returns the process exit status.
// A panic before logging is set up is printed to stderr with its stack.
func execute(ctx context.Context, args []string, stderr io.Writer) (code int) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(stderr, "fatal: %v\n%s", r, debug.Stack())
			code = 1
		}
	}()

	code = 1
	cmd := newRootCommand(&options{}, &code)
	cmd.SetArgs(args)
	cmd.SetErr(stderr)
	if err := cmd.ExecuteContext(ctx); err != nil {
		return 1
	}
	return code
}

func newRootCommand(opts *options, code *int) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "bankier-feed",
		Short:        "Build an RSS feed from the bankier.pl news listing",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := buildConfig(cmd, opts)
			if err != nil {
				return err
			}
			*code = run(cmd.Context(), cfg)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.configPath, "config", "c", "", "YAML config file")
	f.StringVar(&opts.baseURL, "base-url", "", "site origin")
	f.IntVarP(&opts.pages, "pages", "p", 0, "listing pages to scan")
	f.IntVar(&opts.windowHours, "window", 0, "recency window in hours")
	f.DurationVar(&opts.delay, "delay", 0, "pause between page requests")
	f.StringVarP(&opts.output, "output", "o", "", "feed output path")
	f.StringVar(&opts.diagnostic, "debug-dump", "", "where to save the first page when nothing is found")
	f.StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error")
	f.StringVar(&opts.logFormat, "log-format", "", "console or json")
	return cmd
}

// buildConfig loads file and environment settings, then applies only the
// flags that were set explicitly.
func buildConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}

	f := cmd.Flags()
	if f.Changed("base-url") {
		cfg.BaseURL = opts.baseURL
	}
	if f.Changed("pages") {
		cfg.PagesToScan = opts.pages
	}
	if f.Changed("window") {
		cfg.WindowHours = opts.windowHours
	}
	if f.Changed("delay") {
		cfg.RequestDelay = opts.delay
	}
	if f.Changed("output") {
		cfg.OutputPath = opts.output
	}
	if f.Changed("debug-dump") {
		cfg.DiagnosticPath = opts.diagnostic
	}
	if f.Changed("log-level") {
		cfg.Logging.Level = opts.logLevel
	}
	if f.Changed("log-format") {
		cfg.Logging.Format = opts.logFormat
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// run executes one pass and maps the outcome to an exit status. Any
// panic below this point is logged with its stack and exits 1.
func run(ctx context.Context, cfg *config.Config) (code int) {
	log, err := logger.New(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		return 1
	}
	defer func() { _ = log.Sync() }()
	defer func() {
		if r := recover(); r != nil {
			log.Error("unexpected failure", logger.Any("panic", r), logger.Stack("stack"))
			code = 1
		}
	}()

	log.Info("bankier-feed starting", logger.String("config", cfg.String()))

	driver, err := newDriver(cfg, log)
	if err != nil {
		log.Error("failed to set up pipeline", logger.Error(err))
		return 1
	}

	start := time.Now()
	res, err := driver.Run(ctx)
	switch {
	case pipeline.IsInterrupt(err):
		log.Warn("interrupted; no feed written")
	case err != nil:
		log.Error("run failed", logger.Error(err))
	case res.Status == pipeline.StatusEmpty:
		log.Warn("finished without articles", logger.Duration("elapsed", time.Since(start)))
	default:
		log.Info("done",
			logger.Int("articles", len(res.Articles)),
			logger.String("output", res.OutputPath),
			logger.Duration("elapsed", time.Since(start)),
		)
	}
	return pipeline.ExitCode(res, err)
}
