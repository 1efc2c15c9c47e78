package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"VoiceEconomy/internal/metrics"
	"VoiceEconomy/internal/notifier"
	"VoiceEconomy/internal/scheduler"

	"github.com/spf13/cobra"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}

	rootCmd := &cobra.Command{
		Use:   "bot",
		Short: "VoiceEconomy - rewards members for time spent in voice",
		Long: `VoiceEconomy tracks members in voice channels, pays points for every
reward period under the day's multiplier tier, and settles the day's points
into the bank at the daily reset.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", cfgPath, "Path to the YAML config file")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run the tick scheduler and daily reset",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(cfgPath)
		},
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "rollover",
		Short: "Settle the current day now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRollover(cfgPath)
		},
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "resolve",
		Short: "Print the multiplier tier in effect today",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(cfgPath)
		},
	})

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List recent rollovers from the history database",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			return runHistory(cfgPath, limit)
		},
	}
	historyCmd.Flags().Int("limit", 10, "Number of runs to show")
	rootCmd.AddCommand(historyCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "balance [member]",
		Short: "Print a member's bank balances",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBalance(cfgPath, args[0])
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runBot(cfgPath string) error {
	log.Println("[INFO] VoiceEconomy starting...")
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer a.Close()

	var n scheduler.Notifier
	if cfg.Notifier.WebhookURL != "" {
		n = notifier.NewWebhookNotifier(cfg.Notifier.WebhookURL)
	}

	loc, _ := cfg.Location()
	sched := scheduler.NewScheduler(ctx, a.engine, n, loc, cfg.Debug())
	if err := sched.RegisterAll(cfg.Engine.TickInterval, cfg.Engine.ResetHour); err != nil {
		return fmt.Errorf("register cron tasks: %w", err)
	}

	if a.engine.Stale() {
		log.Println("[INFO] settling the day missed while stopped")
		sched.RunRolloverNow()
	}

	var srv *http.Server
	if cfg.Metrics.ListenAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(a.registry))
		srv = &http.Server{Addr: cfg.Metrics.ListenAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("[ERROR] metrics server: %v", err)
			}
		}()
		log.Printf("[INFO] metrics listening on %s", cfg.Metrics.ListenAddr)
	}

	sched.Start()
	log.Println("[INFO] VoiceEconomy is running. Press Ctrl+C to stop.")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[INFO] shutdown signal received, stopping...")
	sched.Stop()
	if srv != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("[WARN] metrics server shutdown: %v", err)
		}
	}
	cancel()
	log.Println("[INFO] VoiceEconomy stopped")
	return nil
}

func runRollover(cfgPath string) error {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}
	ctx := context.Background()
	a, err := newApp(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.engine.Rollover(ctx)
	if err != nil {
		return err
	}
	fmt.Println(notifier.FormatRolloverSummary(report))
	return nil
}

func runResolve(cfgPath string) error {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}
	a, err := newApp(context.Background(), cfg, true)
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Println(notifier.FormatTierSnapshot(a.engine.Snapshot()))
	if a.engine.Stale() {
		fmt.Println("(last day not yet settled, run `bot rollover`)")
	}
	return nil
}

func runHistory(cfgPath string, limit int) error {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}
	if cfg.Storage.SQLitePath == "" {
		return fmt.Errorf("storage.sqlite_path is not configured")
	}
	a, err := newApp(context.Background(), cfg, true)
	if err != nil {
		return err
	}
	defer a.Close()
	if a.history == nil {
		return fmt.Errorf("history database unavailable")
	}

	runs, err := a.history.RecentRuns(limit)
	if err != nil {
		return err
	}
	for _, r := range runs {
		fmt.Printf("%s  %s  %s -> %s  settled %d, failed %d, total %s %s\n",
			r.StartedAt.Format("2006-01-02 15:04"), r.RunID, r.ClosingTier, r.OpeningTier,
			r.Settled, r.Failed, r.TotalPoints.String(), r.CurrencyName)
	}
	return nil
}

func runBalance(cfgPath, memberID string) error {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}
	a, err := newApp(context.Background(), cfg, true)
	if err != nil {
		return err
	}
	defer a.Close()

	for _, cur := range cfg.ModelCurrencies() {
		bal, err := a.bank.Balance(memberID, cur.Name)
		if err != nil {
			return err
		}
		fmt.Printf("%s: %s\n", cur.Name, cur.Format(bal))
	}
	if lt, err := a.engine.LongTerm(context.Background(), memberID); err == nil {
		fmt.Printf("days settled: %d, best day: %s, best multiplier: %s\n",
			lt.DaysSettled, lt.HighestPointsEarned.String(), lt.HighestMultiplier.String())
	}

	if a.history != nil {
		recent, err := a.history.MemberSettlements(memberID, 5)
		if err != nil {
			return err
		}
		for _, s := range recent {
			status := "settled"
			if s.Err != "" {
				status = "failed: " + s.Err
			}
			fmt.Printf("  run %s: %s %s (%s)\n", s.RunID, s.Points.String(), s.Currency, status)
		}
	}
	return nil
}
