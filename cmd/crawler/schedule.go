package main

import (
	"context"
	"fmt"
	"time"

	"github.com/alvmarrod/dfimoveis-crawler/internal/crawler"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run crawls on a cron schedule until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		bindLocalFlags(cmd, map[string]string{"schedule": "cron", "property_type": "type"})
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cfg.Schedule == "" {
			return fmt.Errorf("no schedule configured (use --cron or schedule in the config file)")
		}

		all, _ := cmd.Flags().GetBool("all")
		job := crawlAll
		if !all {
			job = func(ctx context.Context, s *session) (string, error) {
				res, err := s.runner().CrawlType(ctx, cfg.PropertyType, cfg.Append)
				if err != nil {
					return "error", err
				}
				return res.Reason, nil
			}
		}

		return runSession(cfg, func(ctx context.Context, s *session) (string, error) {
			return runScheduled(ctx, cfg.Schedule, s, job)
		})
	},
}

func init() {
	scheduleCmd.Flags().String("cron", "", "standard 5-field cron expression")
	scheduleCmd.Flags().Bool("all", false, "crawl every property type on each run")
	scheduleCmd.Flags().String("type", "", "property type when --all is not set")
}

// runScheduled runs job on every tick of expr until ctx is cancelled.
// Ticks that fire while a job is still running are skipped.
func runScheduled(ctx context.Context, expr string, s *session, job crawlFunc) (string, error) {
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return "error", fmt.Errorf("invalid schedule %q: %w", expr, err)
	}

	c := cron.New(cron.WithChain(
		cron.Recover(cron.DefaultLogger),
		cron.SkipIfStillRunning(cron.DefaultLogger),
	))
	c.Schedule(schedule, cron.FuncJob(func() {
		logrus.Info("Scheduled crawl starting")
		reason, err := job(ctx, s)
		if err != nil {
			logrus.Errorf("Scheduled crawl failed: %v", err)
			return
		}
		logrus.Infof("Scheduled crawl finished (%s), next run at %s", reason, schedule.Next(time.Now()).Format(time.DateTime))
	}))

	c.Start()
	logrus.Infof("Scheduler started (%s), next run at %s", expr, schedule.Next(time.Now()).Format(time.DateTime))

	<-ctx.Done()

	logrus.Info("Stopping scheduler, waiting for running crawl to save...")
	<-c.Stop().Done()

	return crawler.ReasonCancelled, nil
}
