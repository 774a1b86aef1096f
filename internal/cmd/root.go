// Package cmd provides the command-line interface for DataExplore.
// It handles command parsing, configuration loading, and crawler execution.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/masahif/dataexplore/internal/config"
	"github.com/masahif/dataexplore/internal/crawler"
	"github.com/masahif/dataexplore/internal/logging"
	"github.com/masahif/dataexplore/internal/sink"
	"github.com/masahif/dataexplore/internal/storage"
)

var (
	cfgFile   string
	version   string
	buildTime string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "dataexplore [seed-url]",
	Short: "A polite single-domain web crawler",
	Long: `DataExplore crawls one website breadth-first from a seed URL.

It honours robots.txt, spaces requests at a fixed interval and records
one event per visited URL to a CSV log, a live console table and,
optionally, a SQLite database and Prometheus metrics.`,
	Args:          cobra.MaximumNArgs(1),
	RunE:          runCrawler,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersionInfo sets version information for the CLI
func SetVersionInfo(v, bt string) {
	version = v
	buildTime = bt
	rootCmd.Version = fmt.Sprintf("%s (built %s)", version, buildTime)
}

func init() {
	cobra.OnInitialize(initConfig)

	defaults := config.DefaultConfig()

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./dataexplore.yml)")
	rootCmd.Flags().Bool("show-config", false, "Display current configuration in YAML format and exit")

	// Scope and budget
	rootCmd.Flags().StringP("domain", "d", "", "Target domain; links must match it as a host suffix (empty = seed host)")
	rootCmd.Flags().Bool("registered-domain", false, "Match links on the registered domain (eTLD+1) instead of the host suffix")
	rootCmd.Flags().IntP("max-pages", "l", defaults.MaxPages, "Stop after N processed URLs")
	rootCmd.Flags().DurationP("interval", "r", defaults.RequestInterval, "Minimum spacing between request starts")
	rootCmd.Flags().Int("link-cap", defaults.PerPageLinkCap, "Links per page offered to the queue")

	// HTTP
	rootCmd.Flags().DurationP("timeout", "t", defaults.RequestTimeout, "HTTP request timeout")
	rootCmd.Flags().Duration("robots-timeout", defaults.RobotsTimeout, "robots.txt request timeout")
	rootCmd.Flags().StringP("user-agent", "u", defaults.UserAgent, "HTTP User-Agent header")
	rootCmd.Flags().Bool("ignore-robots", false, "Ignore robots.txt rules")

	// Outputs
	rootCmd.Flags().StringP("csv", "o", defaults.CSVPath, "CSV event log path (empty disables)")
	rootCmd.Flags().Bool("no-table", false, "Disable the live console table")
	rootCmd.Flags().String("database", "", "SQLite event log path (empty disables)")
	rootCmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address (empty disables)")

	// Logging
	rootCmd.Flags().String("log-level", defaults.Log.Level, "Log level: debug, info, warn or error")
	rootCmd.Flags().String("log-file", "", "Rotating log file path")
	rootCmd.Flags().String("log-format", defaults.Log.Format, "Log format: json or text")

	if err := bindFlags(viper.GetViper(), rootCmd); err != nil {
		// Log the error but continue - non-critical for operation
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
}

// flagBindings maps viper keys to the flags that set them
var flagBindings = []struct {
	viperKey string
	flagName string
}{
	{"target_domain", "domain"},
	{"match_registered_domain", "registered-domain"},
	{"max_pages", "max-pages"},
	{"request_interval", "interval"},
	{"per_page_link_cap", "link-cap"},
	{"request_timeout", "timeout"},
	{"robots_timeout", "robots-timeout"},
	{"user_agent", "user-agent"},
	{"csv_path", "csv"},
	{"database_path", "database"},
	{"metrics_addr", "metrics-addr"},
	{"log.level", "log-level"},
	{"log.file", "log-file"},
	{"log.format", "log-format"},
}

func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	var errs []error
	for _, bind := range flagBindings {
		if err := v.BindPFlag(bind.viperKey, cmd.Flags().Lookup(bind.flagName)); err != nil {
			errs = append(errs, fmt.Errorf("failed to bind flag %s: %w", bind.flagName, err))
		}
	}
	return errors.Join(errs...)
}

// setDefaults registers the options that have no flag of their own so they
// can still come from the environment or the config file.
func setDefaults(v *viper.Viper) {
	defaults := config.DefaultConfig()
	v.SetDefault("seed_url", defaults.SeedURL)
	v.SetDefault("respect_robots", defaults.RespectRobots)
	v.SetDefault("show_table", defaults.ShowTable)
	v.SetDefault("max_conns_per_host", defaults.MaxConnsPerHost)
	v.SetDefault("max_retries", defaults.MaxRetries)
	v.SetDefault("max_body_size", defaults.MaxBodySize)
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Search for config in current directory
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("dataexplore")
	}

	setDefaults(viper.GetViper())

	viper.SetEnvPrefix("DX")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// loadConfig merges defaults, config file, environment and flags into a
// CrawlConfig. A positional seed URL overrides every other source.
func loadConfig(cmd *cobra.Command, args []string) (*config.CrawlConfig, error) {
	cfg := config.DefaultConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if len(args) > 0 {
		cfg.SeedURL = args[0]
	}
	if ignore, _ := cmd.Flags().GetBool("ignore-robots"); ignore {
		cfg.RespectRobots = false
	}
	if noTable, _ := cmd.Flags().GetBool("no-table"); noTable {
		cfg.ShowTable = false
	}
	return cfg, nil
}

func showCurrentConfig(w io.Writer, cfg *config.CrawlConfig) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	// Validate configuration before showing it
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Configuration validation failed: %v\n", err)
		fmt.Fprintf(os.Stderr, "Displaying configuration anyway...\n\n")
	}

	yamlData, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration to YAML: %w", err)
	}

	fmt.Fprintf(w, "# Current DataExplore Configuration\n")
	fmt.Fprintf(w, "# Generated at: %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(w, "# Configuration file search paths: ./dataexplore.yml\n")
	fmt.Fprintf(w, "# Environment variables prefix: DX_\n\n")

	fmt.Fprint(w, string(yamlData))

	fmt.Fprintf(w, "\n# Configuration source priority:\n")
	fmt.Fprintf(w, "# 1. Command-line arguments (highest priority)\n")
	fmt.Fprintf(w, "# 2. Environment variables (DX_ prefix)\n")
	fmt.Fprintf(w, "# 3. Configuration file (dataexplore.yml)\n")
	fmt.Fprintf(w, "# 4. Default values (lowest priority)\n")

	return nil
}

func runCrawler(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}

	if showConfig, _ := cmd.Flags().GetBool("show-config"); showConfig {
		return showCurrentConfig(cmd.OutOrStdout(), cfg)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signalContext(ctx)
	defer stop()

	return runCrawl(ctx, cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
}

// runCrawl validates cfg, assembles the sinks, runs the engine next to the
// optional metrics server and prints a summary to out.
func runCrawl(ctx context.Context, cfg *config.CrawlConfig, out, errOut io.Writer) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, logCloser, err := newLogger(cfg.Log, errOut)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer func() { _ = logCloser.Close() }()

	sinks := sink.NewMulti()
	defer func() {
		if err := sinks.Close(); err != nil {
			logger.Error("Failed to close event sinks", "error", err)
		}
	}()

	if cfg.CSVPath != "" {
		csvSink, err := sink.CreateCSVFile(cfg.CSVPath)
		if err != nil {
			return fmt.Errorf("failed to create CSV log: %w", err)
		}
		sinks.Add(csvSink)
	}

	if cfg.ShowTable {
		sinks.Add(sink.NewTableSink(out, cfg.TargetDomain, isTerminal(out)))
	}

	var eventLog *storage.EventLog
	if cfg.DatabasePath != "" {
		// Create database directory if it doesn't exist
		if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0750); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
		store, err := storage.NewSQLiteStorage(cfg.DatabasePath)
		if err != nil {
			return fmt.Errorf("failed to initialize storage: %w", err)
		}
		defer func() { _ = store.Close() }()

		eventLog, err = storage.NewEventLog(context.WithoutCancel(ctx), store, cfg.SeedURL, cfg.TargetDomain, cfg.UserAgent)
		if err != nil {
			return err
		}
		sinks.Add(eventLog)
		logger.Info("Recording crawl run", "database", cfg.DatabasePath, "run_id", eventLog.RunID())
	}

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector())
		promSink, err := sink.NewPrometheusSink(reg)
		if err != nil {
			return fmt.Errorf("failed to register metrics: %w", err)
		}
		sinks.Add(promSink)
		metricsServer = sink.NewMetricsServer(cfg.MetricsAddr, reg)
	}

	engine, err := crawler.NewEngine(cfg, crawler.Components{Sink: sinks, Logger: logger})
	if err != nil {
		return fmt.Errorf("failed to initialize crawler: %w", err)
	}
	defer func() { _ = engine.Close() }()

	var stats crawler.CrawlStats
	g, gctx := errgroup.WithContext(ctx)

	if metricsServer != nil {
		g.Go(func() error {
			logger.Info("Serving metrics", "addr", cfg.MetricsAddr)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		var runErr error
		stats, runErr = engine.Run(gctx)

		if metricsServer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				logger.Warn("Failed to shut down metrics server", "error", err)
			}
		}

		// An interrupted run is not a failure
		if runErr != nil && ctx.Err() != nil {
			logger.Info("Crawl interrupted", "error", runErr)
			return nil
		}
		return runErr
	})

	waitErr := g.Wait()

	if eventLog != nil {
		if err := eventLog.Finish(context.WithoutCancel(ctx), stats); err != nil {
			logger.Error("Failed to record run summary", "run_id", eventLog.RunID(), "error", err)
		}
	}

	printSummary(out, cfg, stats)
	return waitErr
}

func newLogger(lc config.LogConfig, console io.Writer) (*slog.Logger, io.Closer, error) {
	lcfg := logging.DefaultConfig()
	lcfg.Level = logging.ParseLevel(lc.Level)
	lcfg.Format = logging.ParseFormat(lc.Format)
	lcfg.FilePath = lc.File
	lcfg.Console = console
	return logging.NewLogger(*lcfg)
}

func printSummary(w io.Writer, cfg *config.CrawlConfig, stats crawler.CrawlStats) {
	fmt.Fprintf(w, "\nCrawled %d URLs on %s in %s\n", stats.PagesProcessed, cfg.TargetDomain, stats.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "  Blocked by robots.txt: %d\n", stats.PagesBlocked)
	fmt.Fprintf(w, "  Errors: %d\n", stats.PagesFailed)
	fmt.Fprintf(w, "  Links enqueued: %d\n", stats.LinksEnqueued)
	fmt.Fprintf(w, "  Still pending: %d\n", stats.Pending)
	if cfg.CSVPath != "" {
		fmt.Fprintf(w, "  CSV log: %s\n", cfg.CSVPath)
	}
}

// isTerminal reports whether w is a terminal, in which case the live table
// redraws in place.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
