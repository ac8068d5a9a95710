package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/rolesweep/pkg/events"
	"github.com/cuemby/rolesweep/pkg/health"
	"github.com/cuemby/rolesweep/pkg/log"
	"github.com/cuemby/rolesweep/pkg/metrics"
	"github.com/cuemby/rolesweep/pkg/reconciler"
	"github.com/cuemby/rolesweep/pkg/scheduler"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run scheduled reconciliation and serve metrics and health",
	Long: `Start the scheduler for every configured schedule and an HTTP server
exposing /metrics, /health, /ready and /live. Runs until SIGINT or SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if v, _ := cmd.Flags().GetString("metrics-addr"); v != "" {
			cfg.MetricsAddr = v
		}

		metrics.SetVersion(Version)
		metrics.RegisterComponent(metrics.ComponentStorage, false, "starting")
		metrics.RegisterComponent(metrics.ComponentPlatform, false, "starting")

		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		a.broker.Start()
		audit := a.broker.Subscribe(events.EventGrantExpired, events.EventGrantDropped)
		go auditEvents(audit)

		monitor := health.NewMonitor(health.Config{
			Interval: time.Minute,
			Timeout:  cfg.CallTimeout,
			Retries:  3,
		}, health.StorageChecker{Store: a.store}, health.PlatformChecker{Provider: a.client})
		monitor.Start()
		defer monitor.Stop()

		sched := scheduler.NewScheduler(a.reconciler, reconciler.NewStatsTracker())
		for _, s := range cfg.Schedules {
			if err := sched.Add(scheduler.Schedule{Name: s.Name, Spec: s.Cron, Filter: s.Filter()}); err != nil {
				return err
			}
		}
		sched.Start()

		collector := metrics.NewCollector(a.store, 30*time.Second)
		collector.Start()
		defer collector.Stop()

		server := &http.Server{
			Addr:         cfg.MetricsAddr,
			Handler:      metrics.NewServeMux(),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		errCh := make(chan error, 1)
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()

		log.Logger.Info().
			Str("community_id", cfg.CommunityID).
			Str("metrics_addr", cfg.MetricsAddr).
			Int("schedules", len(cfg.Schedules)).
			Msg("rolesweep is running")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		var runErr error
		select {
		case <-sigCh:
			log.Info("Shutting down")
		case runErr = <-errCh:
			log.Errorf("Metrics server failed", runErr)
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := sched.Stop(shutdownCtx); err != nil {
			log.Errorf("Scheduler did not stop cleanly", err)
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Errorf("Metrics server did not stop cleanly", err)
		}
		a.broker.Unsubscribe(audit)

		log.Info("Shutdown complete")
		return runErr
	},
}

func init() {
	serveCmd.Flags().String("metrics-addr", "", "Listen address for metrics and health (overrides config)")
}

// auditEvents writes committed grant deletions to the log
func auditEvents(sub events.Subscriber) {
	logger := log.WithComponent("audit")
	for ev := range sub {
		logger.Info().
			Str("event", string(ev.Type)).
			Str("member_id", ev.Metadata["member_id"]).
			Str("role_id", ev.Metadata["role_id"]).
			Str("class", ev.Metadata["class"]).
			Str("outcome", ev.Metadata["outcome"]).
			Msg("Grant removed")
	}
}
