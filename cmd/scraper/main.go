package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pmarques/go-scrape-fbref/browser"
	"github.com/pmarques/go-scrape-fbref/config"
	"github.com/pmarques/go-scrape-fbref/models"
	"github.com/pmarques/go-scrape-fbref/pipeline"
	"github.com/pmarques/go-scrape-fbref/scraper"
)

// cliFlags holds the parsed flag values. Configuration is resolved in layers:
// defaults, then the config file, then SCRAPER_* environment variables, then
// flags the user passed explicitly.
type cliFlags struct {
	configFile        *string
	baseURL           *string
	poolSize          *int
	rateLimit         *int
	ratePeriodSec     *int
	maxAttempts       *int
	retryBackoffMs    *int
	retryBackoffMaxMs *int
	pageTimeoutSec    *int
	dataDir           *string
	debugDir          *string
	headless          *bool
	teams             *string
	metricsAddr       *string
	verbose           *bool
}

func registerFlags(fs *flag.FlagSet, defaults *config.Config) *cliFlags {
	return &cliFlags{
		configFile:        fs.String("config", "config.json", "Optional JSON config file"),
		baseURL:           fs.String("base-url", defaults.BaseURL, "League overview URL to scrape"),
		poolSize:          fs.Int("pool-size", defaults.PoolSize, "Maximum concurrent browser sessions"),
		rateLimit:         fs.Int("rate-limit", defaults.RateLimit, "Navigations allowed per rate period"),
		ratePeriodSec:     fs.Int("rate-period", int(defaults.RatePeriod.Seconds()), "Rate limit period (seconds)"),
		maxAttempts:       fs.Int("max-attempts", defaults.MaxAttempts, "Attempts per task before it fails"),
		retryBackoffMs:    fs.Int("retry-backoff", int(defaults.RetryBackoff.Milliseconds()), "Initial retry backoff (milliseconds)"),
		retryBackoffMaxMs: fs.Int("retry-backoff-max", int(defaults.RetryBackoffMax.Milliseconds()), "Maximum retry backoff (milliseconds)"),
		pageTimeoutSec:    fs.Int("page-timeout", int(defaults.PageTimeout.Seconds()), "Per-page render timeout (seconds)"),
		dataDir:           fs.String("data-dir", defaults.DataDir, "Directory for extracted data"),
		debugDir:          fs.String("debug-dir", defaults.DebugDir, "Directory for failure diagnostics"),
		headless:          fs.Bool("headless", defaults.Headless, "Run the browser headless"),
		teams:             fs.String("teams", "", "Comma-separated team names to fetch stats for (empty means all)"),
		metricsAddr:       fs.String("metrics-addr", defaults.MetricsAddr, "Prometheus metrics listen address (e.g. :9090)"),
		verbose:           fs.Bool("v", defaults.Verbose, "Enable verbose logging"),
	}
}

// applyEnv overlays SCRAPER_* environment overrides onto cfg.
func applyEnv(cfg *config.Config) error {
	if value, ok, err := config.EnvInt("SCRAPER_POOL_SIZE"); err != nil {
		return err
	} else if ok {
		cfg.PoolSize = value
	}
	if value, ok, err := config.EnvInt("SCRAPER_RATE_LIMIT"); err != nil {
		return err
	} else if ok {
		cfg.RateLimit = value
	}
	if value, ok := config.EnvString("SCRAPER_DATA_DIR"); ok {
		cfg.DataDir = value
	}
	if value, ok := config.EnvString("SCRAPER_METRICS_ADDR"); ok {
		cfg.MetricsAddr = value
	}
	if value, ok, err := config.EnvBool("SCRAPER_HEADLESS"); err != nil {
		return err
	} else if ok {
		cfg.Headless = value
	}
	return nil
}

// applyFlags overrides cfg with flags the user passed explicitly, so config
// file and environment values survive unless a flag names them.
func applyFlags(cfg *config.Config, fs *flag.FlagSet, fl *cliFlags) {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if set["base-url"] {
		cfg.BaseURL = *fl.baseURL
	}
	if set["pool-size"] {
		cfg.PoolSize = *fl.poolSize
	}
	if set["rate-limit"] {
		cfg.RateLimit = *fl.rateLimit
	}
	if set["rate-period"] {
		cfg.RatePeriod = time.Duration(*fl.ratePeriodSec) * time.Second
	}
	if set["max-attempts"] {
		cfg.MaxAttempts = *fl.maxAttempts
	}
	if set["retry-backoff"] {
		cfg.RetryBackoff = time.Duration(*fl.retryBackoffMs) * time.Millisecond
	}
	if set["retry-backoff-max"] {
		cfg.RetryBackoffMax = time.Duration(*fl.retryBackoffMaxMs) * time.Millisecond
	}
	if set["page-timeout"] {
		cfg.PageTimeout = time.Duration(*fl.pageTimeoutSec) * time.Second
	}
	if set["data-dir"] {
		cfg.DataDir = *fl.dataDir
	}
	if set["debug-dir"] {
		cfg.DebugDir = *fl.debugDir
	}
	if set["headless"] {
		cfg.Headless = *fl.headless
	}
	if set["teams"] {
		cfg.Teams = splitTeams(*fl.teams)
	}
	if set["metrics-addr"] {
		cfg.MetricsAddr = *fl.metricsAddr
	}
	if set["v"] {
		cfg.Verbose = *fl.verbose
	}
}

func splitTeams(s string) []string {
	var names []string
	for _, name := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			names = append(names, trimmed)
		}
	}
	return names
}

func resolveConfig(fs *flag.FlagSet, fl *cliFlags) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if err := cfg.LoadFile(*fl.configFile); err != nil {
		return nil, err
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	applyFlags(cfg, fs, fl)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func main() {
	fl := registerFlags(flag.CommandLine, config.DefaultConfig())
	flag.Parse()

	cfg, err := resolveConfig(flag.CommandLine, fl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, _ := newLogger(cfg.Verbose)
	slog.SetDefault(logger)

	slog.Info("starting scrape",
		slog.String("base_url", cfg.BaseURL),
		slog.Int("pool_size", cfg.PoolSize),
		slog.Int("rate_limit", cfg.RateLimit),
		slog.Duration("rate_period", cfg.RatePeriod),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, waiting for in-flight tasks to finish")
	}()

	metrics := scraper.NewMetrics()
	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	launcher := browser.NewChromeLauncher(cfg)
	store := pipeline.NewStore(cfg.DataDir)
	orch := scraper.NewOrchestrator(cfg, launcher, store, metrics)

	report := orch.Run(ctx)

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	printSummary(report, cfg.DataDir)
	if report.HasFatal() {
		os.Exit(1)
	}
}

func printSummary(report *models.RunReport, dataDir string) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Scrape complete")

	counts := report.CountByStatus()
	fmt.Printf("  Run ID:        %s\n", report.RunID)
	fmt.Printf("  Succeeded:     %d\n", counts[models.StatusSucceeded])
	fmt.Printf("  Failed:        %d\n", counts[models.StatusFailed])
	fmt.Printf("  Skipped:       %d\n", counts[models.StatusSkipped])
	fmt.Printf("  Cancelled:     %d\n", counts[models.StatusCancelled])
	if report.HasFatal() {
		fmt.Printf("  Fatal:         %s\n", report.FatalErr)
	}
	for _, task := range report.Tasks {
		if task.Status == models.StatusFailed && task.DiagnosticPath != "" {
			fmt.Printf("  Diagnostic:    %s (%s)\n", task.DiagnosticPath, task.Task)
		}
	}
	fmt.Printf("  Duration:      %v\n", report.EndTime.Sub(report.StartTime).Round(time.Millisecond))
	fmt.Printf("  Data dir:      %s\n", dataDir)
	fmt.Println(separator)
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
