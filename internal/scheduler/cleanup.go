// Package scheduler runs periodic maintenance. Expiry stays lazy on every
// read; the cron job only keeps unobserved requests from lingering.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/credential-payments/internal/service"
	"github.com/akylbek/payment-system/credential-payments/internal/telemetry"
)

// Cleaner is the orchestrator operation the job drives.
type Cleaner interface {
	Cleanup(ctx context.Context, retention time.Duration) (*service.CleanupResult, error)
}

type CleanupScheduler struct {
	cron      *cron.Cron
	cleaner   Cleaner
	schedule  string
	retention time.Duration
	timeout   time.Duration

	mu      sync.Mutex
	running bool
	last    *service.CleanupResult
	lastErr error
	lastRun time.Time
}

func NewCleanupScheduler(cleaner Cleaner, schedule string, retention time.Duration) *CleanupScheduler {
	return &CleanupScheduler{
		cron:      cron.New(cron.WithLocation(time.UTC)),
		cleaner:   cleaner,
		schedule:  schedule,
		retention: retention,
		timeout:   time.Minute,
	}
}

func (s *CleanupScheduler) Start() error {
	entryID, err := s.cron.AddFunc(s.schedule, s.RunOnce)
	if err != nil {
		return fmt.Errorf("schedule cleanup %q: %w", s.schedule, err)
	}
	s.cron.Start()

	entry := s.cron.Entry(entryID)
	telemetry.Logger.Info("Cleanup scheduler started",
		zap.String("schedule", s.schedule),
		zap.Duration("retention", s.retention),
		zap.Time("next_run", entry.Next),
	)
	return nil
}

// Stop prevents further runs and waits for a running job to finish.
func (s *CleanupScheduler) Stop() {
	<-s.cron.Stop().Done()
}

// RunOnce runs a cleanup pass unless one is already in progress.
func (s *CleanupScheduler) RunOnce() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		telemetry.Logger.Warn("Cleanup still running, skipping tick")
		return
	}
	s.running = true
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	result, err := s.cleaner.Cleanup(ctx, s.retention)
	if err != nil {
		telemetry.Logger.Error("Scheduled cleanup failed", zap.Error(err))
	}

	s.mu.Lock()
	s.running = false
	s.last = result
	s.lastErr = err
	s.lastRun = time.Now().UTC()
	s.mu.Unlock()
}

func (s *CleanupScheduler) GetStatus() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := map[string]interface{}{
		"schedule":  s.schedule,
		"retention": s.retention.String(),
		"running":   s.running,
	}
	if !s.lastRun.IsZero() {
		status["last_run"] = s.lastRun
	}
	if s.last != nil {
		status["last_result"] = s.last
	}
	if s.lastErr != nil {
		status["last_error"] = s.lastErr.Error()
	}
	if entries := s.cron.Entries(); len(entries) > 0 {
		status["next_run"] = entries[0].Next
	}
	return status
}
