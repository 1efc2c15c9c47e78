package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"VoiceEconomy/internal/activity"
	"VoiceEconomy/internal/notifier"
	"VoiceEconomy/internal/rollover"

	"github.com/robfig/cron/v3"
)

// Engine is the part of the activity engine the scheduler drives.
type Engine interface {
	Tick(ctx context.Context) (activity.TickStats, error)
	Rollover(ctx context.Context) (*rollover.Report, error)
}

// Notifier delivers rollover summaries.
type Notifier interface {
	SendWithRetry(ctx context.Context, text string, maxRetries int) error
}

// Scheduler manages the tick and daily reset jobs.
type Scheduler struct {
	Cron     *cron.Cron
	Engine   Engine
	Notifier Notifier // nil disables notifications
	Ctx      context.Context

	logger cron.Logger
}

// NewScheduler creates a Scheduler whose cron expressions are evaluated in loc.
func NewScheduler(ctx context.Context, eng Engine, n Notifier, loc *time.Location, verbose bool) *Scheduler {
	logger := cron.PrintfLogger(log.Default())
	if verbose {
		logger = cron.VerbosePrintfLogger(log.Default())
	}
	return &Scheduler{
		Cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(loc),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger)),
		),
		Engine:   eng,
		Notifier: n,
		Ctx:      ctx,
		logger:   logger,
	}
}

// RegisterAll registers the tick job and the daily reset at resetHour.
// Intervals under a second are rounded up to one second.
func (s *Scheduler) RegisterAll(tickInterval time.Duration, resetHour int) error {
	if tickInterval <= 0 {
		return fmt.Errorf("tick interval must be positive")
	}
	// A slow tick is skipped rather than queued; missed ticks are not replayed.
	tick := cron.NewChain(cron.SkipIfStillRunning(s.logger)).Then(cron.FuncJob(s.tickTask))
	s.Cron.Schedule(cron.Every(tickInterval), tick)

	if _, err := s.Cron.AddFunc(ResetSpec(resetHour), s.rolloverTask); err != nil {
		return fmt.Errorf("register daily reset: %w", err)
	}
	return nil
}

// ResetSpec is the seconds-field cron expression for the daily reset.
func ResetSpec(resetHour int) string {
	return fmt.Sprintf("0 0 %d * * *", resetHour)
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	log.Println("[INFO] scheduler started")
}

// Stop stops the cron scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	log.Println("[INFO] scheduler stopped")
}

// RunRolloverNow executes the daily reset immediately (for manual trigger or
// a rollover missed while the process was down).
func (s *Scheduler) RunRolloverNow() {
	s.rolloverTask()
}

func (s *Scheduler) tickTask() {
	if _, err := s.Engine.Tick(s.Ctx); err != nil {
		log.Printf("[ERROR] tick: %v", err)
	}
}

func (s *Scheduler) rolloverTask() {
	log.Println("[INFO] running daily rollover")
	report, err := s.Engine.Rollover(s.Ctx)
	if err != nil {
		log.Printf("[ERROR] daily rollover: %v", err)
		s.trySend(fmt.Sprintf("❌ Daily rollover failed: %v", err))
		return
	}
	s.trySend(notifier.FormatRolloverSummary(report))
}

func (s *Scheduler) trySend(text string) {
	if s.Notifier == nil {
		return
	}
	if err := s.Notifier.SendWithRetry(s.Ctx, text, 3); err != nil {
		log.Printf("[ERROR] send notification: %v", err)
	}
}
