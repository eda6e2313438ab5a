package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"instatrack/internal/retention"
	"instatrack/pkg/logger"
)

var (
	// Clean command flags
	ageDays      int
	minWidth     int
	minHeight    int
	sweepWorkers int
	cleanDir     string
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Reclaim disk space in the download tree",
	Long: `Remove media files the archive no longer needs.

Two sweeps are available and can run in one invocation:
  - the age sweep removes files older than --days
  - the size sweep removes images smaller than --min-width x --min-height

The size sweep only decodes files small enough to plausibly be below the
dimension floor; images that turn out to be unreadable are treated as junk
and removed. Videos are only ever removed by age.`,
	Example: `  # Default cleanup: media older than 15 days
  instatrack clean

  # Keep a month of history instead
  instatrack clean --days 30

  # Also drop thumbnails smaller than 256x256
  instatrack clean --min-width 256 --min-height 256`,
	RunE: runClean,
}

func init() {
	rootCmd.AddCommand(cleanCmd)

	cleanCmd.Flags().IntVar(&ageDays, "days", 15, "remove media older than this many days (0 disables the age sweep)")
	cleanCmd.Flags().IntVar(&minWidth, "min-width", 0, "remove images narrower than this (0 disables the size sweep)")
	cleanCmd.Flags().IntVar(&minHeight, "min-height", 0, "remove images shorter than this (0 disables the size sweep)")
	cleanCmd.Flags().IntVar(&sweepWorkers, "workers", 0, "sweep worker pool size (default from config)")
	cleanCmd.Flags().StringVarP(&cleanDir, "download-dir", "o", "", "directory to clean (default from config)")
}

func runClean(cmd *cobra.Command, args []string) error {
	flags := make(map[string]interface{})
	if cleanDir != "" {
		flags["download-dir"] = cleanDir
	}
	if sweepWorkers > 0 {
		flags["workers"] = sweepWorkers
	}

	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	log := logger.GetLogger()

	if ageDays <= 0 && (minWidth <= 0 || minHeight <= 0) {
		return fmt.Errorf("nothing to do: enable --days or both --min-width and --min-height")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	manager, err := retention.NewManager(cfg.Download.BaseDirectory, retention.Config{
		Workers:            cfg.Retention.Workers,
		BatchSize:          cfg.Retention.BatchSize,
		LargeFileThreshold: cfg.Retention.LargeFileThreshold,
	}, log)
	if err != nil {
		return err
	}

	fmt.Printf("Scanning %s: %d media files", cfg.Download.BaseDirectory, manager.Candidates())
	if manager.Problematic() > 0 {
		fmt.Printf(" (%d entries could not be inspected)", manager.Problematic())
	}
	fmt.Println()

	if ageDays > 0 {
		summary, err := manager.RemoveOld(ctx, time.Duration(ageDays)*24*time.Hour)
		if err != nil {
			return err
		}
		printSweep("age sweep", summary)
	}

	if minWidth > 0 && minHeight > 0 {
		summary, err := manager.RemoveSmall(ctx, minWidth, minHeight)
		if err != nil {
			return err
		}
		printSweep("size sweep", summary)
	}
	return nil
}

func printSweep(name string, summary *retention.SweepSummary) {
	fmt.Printf("%s: removed %d of %d files (%.1f MB freed), %d skipped, %d failed\n",
		name, summary.Removed, summary.Examined,
		float64(summary.BytesFreed)/(1024*1024), summary.Skipped, summary.Failed)
	for _, path := range summary.FailedPaths {
		fmt.Printf("  failed: %s\n", path)
	}
}
