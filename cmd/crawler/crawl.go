package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/alvmarrod/dfimoveis-crawler/internal/app"
	"github.com/alvmarrod/dfimoveis-crawler/internal/config"
	"github.com/alvmarrod/dfimoveis-crawler/internal/crawler"
	"github.com/alvmarrod/dfimoveis-crawler/internal/metrics"
	"github.com/alvmarrod/dfimoveis-crawler/internal/storage"
	"github.com/alvmarrod/dfimoveis-crawler/internal/version"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Crawl one property type of a category",
	RunE: func(cmd *cobra.Command, args []string) error {
		bindLocalFlags(cmd, map[string]string{"property_type": "type"})
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return runSession(cfg, func(ctx context.Context, s *session) (string, error) {
			res, err := s.runner().CrawlType(ctx, cfg.PropertyType, cfg.Append)
			if err != nil {
				return "error", err
			}
			return res.Reason, nil
		})
	},
}

var crawlAllCmd = &cobra.Command{
	Use:   "crawl-all",
	Short: "Crawl every property type of a category, one after another",
	RunE: func(cmd *cobra.Command, args []string) error {
		bindLocalFlags(cmd, map[string]string{"type_pause_seconds": "type-pause"})
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return runSession(cfg, crawlAll)
	},
}

func init() {
	crawlCmd.Flags().String("type", "", "property type (imoveis, apartamento, casa, ...)")
	crawlAllCmd.Flags().Int("type-pause", 0, "seconds to wait between property types")
}

// bindLocalFlags binds command-local flags to config keys. Done at run time
// because several commands define a flag for the same key.
func bindLocalFlags(cmd *cobra.Command, keys map[string]string) {
	for key, flag := range keys {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			logrus.Fatalf("Failed to bind flag %s: %v", flag, err)
		}
	}
}

func crawlAll(ctx context.Context, s *session) (string, error) {
	results, err := s.runner().CrawlAll(ctx)
	if err != nil {
		return "error", err
	}
	if ctx.Err() != nil {
		return crawler.ReasonCancelled, nil
	}
	logrus.Infof("Crawled %d property types", len(results))
	return "completed", nil
}

// crawlFunc runs crawl jobs on a session and returns the termination reason
type crawlFunc func(ctx context.Context, s *session) (string, error)

// session holds the resources shared by the crawls of one process
type session struct {
	cfg      *config.Config
	store    *storage.Storage
	postgres *storage.PostgresWriter
	tracker  *metrics.Tracker

	mu     sync.Mutex
	active *app.Runner
}

func openSession(ctx context.Context, cfg *config.Config) (*session, error) {
	store, err := storage.NewStorage(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	logrus.Infof("Database initialized: %s", cfg.DBPath)

	s := &session{cfg: cfg, store: store, tracker: metrics.NewTracker()}

	if cfg.PostgresDSN != "" {
		pg, err := storage.NewPostgresWriter(ctx, cfg.PostgresDSN)
		if err != nil {
			store.Close()
			return nil, err
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			pg.Close()
			store.Close()
			return nil, err
		}
		s.postgres = pg
		logrus.Info("PostgreSQL mirror enabled")
	}

	return s, nil
}

// runner creates a runner with a fresh in-memory dataset and makes it the
// target of emergency flushes
func (s *session) runner() *app.Runner {
	opts := []app.Option{app.WithOutput(os.Stdout)}
	if s.postgres != nil {
		opts = append(opts, app.WithPostgres(s.postgres))
	}
	r := app.NewRunner(s.cfg, s.store, s.tracker, opts...)

	s.mu.Lock()
	s.active = r
	s.mu.Unlock()
	return r
}

func (s *session) emergencyFlush(ctx context.Context) error {
	s.mu.Lock()
	r := s.active
	s.mu.Unlock()

	if r == nil {
		return nil
	}
	return r.EmergencyFlush(ctx)
}

func (s *session) close() {
	if s.postgres != nil {
		s.postgres.Close()
	}
	if err := s.store.Close(); err != nil {
		logrus.Warnf("Failed to close database: %v", err)
	}
}

// runSession runs fn with signal handling: the first SIGINT/SIGTERM cancels the
// crawl and lets it save what it has, a second one flushes memory and exits.
func runSession(cfg *config.Config, fn crawlFunc) error {
	logrus.Infof("dfcrawl v%s starting...", version.Version)
	logrus.Infof("Configuration loaded: category=%s, type=%s, workers=%d, batch=%d, max_pages=%d",
		cfg.Category, cfg.PropertyType, cfg.Workers, cfg.BatchSize, cfg.MaxPages)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := openSession(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.close()

	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case sig := <-sigChan:
			logrus.Infof("Received signal: %v - finishing in-flight pages and saving (repeat to force quit)", sig)
			cancel()
		case <-done:
			return
		}

		select {
		case sig := <-sigChan:
			logrus.Warnf("Received second signal (%v) - forcing immediate exit!", sig)
			logrus.Warn("Attempting emergency save...")

			flushCtx, flushCancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := s.emergencyFlush(flushCtx); err != nil {
				logrus.Errorf("Emergency flush failed: %v", err)
			} else {
				logrus.Info("Emergency flush succeeded")
			}
			flushCancel()

			if err := s.tracker.WriteToFile(cfg.MetricsPath, "forced_exit"); err != nil {
				logrus.Errorf("Emergency metrics save failed: %v", err)
			}
			os.Exit(1)
		case <-done:
		}
	}()

	stopProgress := startProgress(s.tracker, 10*time.Second)

	reason, runErr := fn(ctx, s)

	stopProgress()

	logrus.Info("Final stats: " + s.tracker.LogProgress())
	if err := s.tracker.WriteToFile(cfg.MetricsPath, reason); err != nil {
		logrus.Errorf("Failed to write metrics: %v", err)
	} else {
		logrus.Infof("Metrics written to %s", cfg.MetricsPath)
	}

	if runErr != nil {
		return runErr
	}
	logrus.Infof("Done (%s)", reason)
	return nil
}

// startProgress logs tracker progress periodically until the returned func is called
func startProgress(tracker *metrics.Tracker, every time.Duration) func() {
	stop := make(chan struct{})
	finished := make(chan struct{})

	go func() {
		defer close(finished)
		ticker := time.NewTicker(every)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				logrus.Info(tracker.LogProgress())
			case <-stop:
				return
			}
		}
	}()

	return func() {
		close(stop)
		<-finished
	}
}
