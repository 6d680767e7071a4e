package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/paperscope/backend/internal/app"
	"github.com/paperscope/backend/internal/config"
	"github.com/paperscope/backend/internal/platform/logger"
	"github.com/paperscope/backend/internal/services"
)

// One-shot sync run for cron and operator use. Exits non-zero when the
// run aborts; item-level failures are reported in the summary but do not
// change the exit code.
func main() {
	var (
		configPath = flag.String("config", "config.yaml", "path to config file")
		target     = flag.String("target", "both", "sync target: graph, vectors or both")
		reconcile  = flag.String("reconcile", "off", "reconcile ledger: off, before or after")
		categories = flag.String("categories", "", "comma-separated category filter")
		from       = flag.String("from", "", "lower published-date bound (inclusive)")
		to         = flag.String("to", "", "upper published-date bound (inclusive)")
		maxPapers  = flag.Int("max-papers", 0, "stop after this many papers (0 = no limit)")
		resync     = flag.Bool("resync", false, "rescan tracked papers; unchanged content is skipped by fingerprint")
	)
	flag.Parse()

	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "production"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("Could not load config", "error", err)
		os.Exit(1)
	}

	application, err := app.New(log, cfg)
	if err != nil {
		log.Error("Could not wire application", "error", err)
		os.Exit(1)
	}
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := services.RunOptions{
		Target:        services.Target(*target),
		Reconcile:     services.ReconcileMode(*reconcile),
		PublishedFrom: *from,
		PublishedTo:   *to,
		MaxPapers:     *maxPapers,
		Resync:        *resync,
	}
	if *categories != "" {
		for _, c := range strings.Split(*categories, ",") {
			if c = strings.TrimSpace(c); c != "" {
				opts.Categories = append(opts.Categories, c)
			}
		}
	}

	stats, err := application.Runner.Run(ctx, opts)
	if err != nil {
		if errors.Is(err, services.ErrLockHeld) {
			log.Error("Another sync run is already in progress")
		} else {
			log.Error("Sync run aborted", "error", err)
		}
		os.Exit(1)
	}

	fmt.Printf("batches=%d succeeded=%d failed=%d skipped=%d duration=%s\n",
		stats.BatchesProcessed, stats.Succeeded, stats.Failed, stats.Skipped, stats.Duration)
	if stats.Failed > 0 {
		log.Warn("Run finished with item failures", "failed", stats.Failed)
	}
}
