package main

import (
	"context"
	"fmt"
	"os"

	"github.com/alvmarrod/dfimoveis-crawler/internal/report"
	"github.com/alvmarrod/dfimoveis-crawler/internal/storage"
	"github.com/alvmarrod/dfimoveis-crawler/internal/version"
	"github.com/spf13/cobra"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded crawl runs, or show the listings of one run",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")

		store, err := storage.NewStorage(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("failed to open storage: %w", err)
		}
		defer store.Close()

		ctx := context.Background()

		if id, _ := cmd.Flags().GetInt64("id"); id > 0 {
			run, err := store.GetRun(ctx, id)
			if err != nil {
				return err
			}
			if run == nil {
				return fmt.Errorf("run %d not found", id)
			}
			listings, err := store.ListListings(ctx, id)
			if err != nil {
				return err
			}
			report.RunDetail(os.Stdout, *run, listings)
			return nil
		}

		runs, err := store.ListRuns(ctx, limit)
		if err != nil {
			return err
		}

		report.Runs(os.Stdout, runs)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("dfcrawl", version.Version)
	},
}

func init() {
	runsCmd.Flags().Int("limit", 20, "number of runs to show")
	runsCmd.Flags().Int64("id", 0, "show the listings stored for this run")
}
