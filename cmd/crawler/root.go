package main

import (
	"os"
	"strings"

	"github.com/alvmarrod/dfimoveis-crawler/internal/config"
	"github.com/alvmarrod/dfimoveis-crawler/internal/version"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// v carries defaults, environment overrides and bound flags
var v = config.New()

var rootCmd = &cobra.Command{
	Use:   "dfcrawl",
	Short: "Crawler for DF Imóveis property listings",
	Long: `dfcrawl pages through the DF Imóveis search results of a category
(venda or aluguel) and property type, normalizes every listing and stores
them as CSV, in SQLite and optionally in PostgreSQL.

Examples:
  # Crawl apartments for sale, at most 50 pages
  dfcrawl crawl --category venda --type apartamento --max-pages 50

  # Crawl every property type for rent
  dfcrawl crawl-all --category aluguel

  # Crawl every night at 03:00
  dfcrawl schedule --cron "0 3 * * *" --all`,
	Version:      version.Version,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// .env is optional
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			logrus.Warnf("Failed to load .env: %v", err)
		}
	},
}

func init() {
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "config file (JSON or YAML)")
	pf.Bool("debug", false, "enable debug logging")
	pf.String("log-level", "", "log level (debug, info, warn, error)")
	pf.String("category", "", "listing category: venda or aluguel")
	pf.String("base-url", "", "results URL template with {category} and {property_type}")
	pf.Int("max-pages", 0, "stop after this many pages (0 = until results run out)")
	pf.Int("workers", 0, "concurrent page fetches per batch")
	pf.Int("batch-size", 0, "pages per batch")
	pf.Int("batch-delay", 0, "seconds to wait between batches")
	pf.Int("max-retries", 0, "retries per page on 429, 5xx and connection errors")
	pf.Bool("save-each-batch", true, "write listings after every batch")
	pf.Bool("append", true, "append to existing output instead of replacing it")
	pf.String("output-dir", "", "directory for CSV output")
	pf.String("db", "", "SQLite database path")
	pf.String("postgres-dsn", "", "also write listings to this PostgreSQL database")
	pf.String("metrics", "", "metrics JSON output path")

	for key, flag := range map[string]string{
		"log_level":           "log-level",
		"category":            "category",
		"base_url":            "base-url",
		"max_pages":           "max-pages",
		"workers":             "workers",
		"batch_size":          "batch-size",
		"batch_delay_seconds": "batch-delay",
		"max_retries":         "max-retries",
		"save_each_batch":     "save-each-batch",
		"append":              "append",
		"output_dir":          "output-dir",
		"db_path":             "db",
		"postgres_dsn":        "postgres-dsn",
		"metrics_path":        "metrics",
	} {
		// an unchanged flag never overrides file or env values
		if err := v.BindPFlag(key, pf.Lookup(flag)); err != nil {
			logrus.Fatalf("Failed to bind flag %s: %v", flag, err)
		}
	}

	rootCmd.AddCommand(crawlCmd, crawlAllCmd, scheduleCmd, runsCmd, versionCmd)
}

// loadConfig reads the config file named by --config and applies logging settings
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(v, path)
	if err != nil {
		return nil, err
	}

	setupLogging(cmd, cfg)
	return cfg, nil
}

func setupLogging(cmd *cobra.Command, cfg *config.Config) {
	level, err := logrus.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		logrus.Warnf("Unknown log level %q, using info", cfg.LogLevel)
		level = logrus.InfoLevel
	}
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		level = logrus.DebugLevel
	}
	logrus.SetLevel(level)
}
