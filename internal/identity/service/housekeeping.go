package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/storefront/internal/identity/metrics"
	"github.com/aussiebroadwan/storefront/internal/identity/store"
)

const (
	// codeRetention keeps expired codes around for a while so a late verify
	// still reports expired instead of not found.
	codeRetention = 7 * 24 * time.Hour

	// ledgerRetention must stay below codeRetention: code versions restart
	// once a user's codes are purged, and an older ledger entry would
	// swallow the new send.
	ledgerRetention = 24 * time.Hour
)

// HousekeepingService periodically cleans up expired database records
// to prevent unbounded growth of refresh_sessions, one_time_codes and the
// notification ledger.
type HousekeepingService struct {
	Store    store.Store
	Logger   *slog.Logger
	Interval time.Duration
	Metrics  *metrics.Metrics

	// Internal channels for lifecycle management
	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
}

// NewHousekeepingService creates a new housekeeping service with the given interval.
// If interval is 0 or negative, defaults to 1 hour.
func NewHousekeepingService(s store.Store, logger *slog.Logger, interval time.Duration, m *metrics.Metrics) *HousekeepingService {
	if interval <= 0 {
		interval = 1 * time.Hour
	}

	return &HousekeepingService{
		Store:    s,
		Logger:   logger,
		Interval: interval,
		Metrics:  m,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background worker. Call Stop() to shut it down.
func (s *HousekeepingService) Start() {
	s.started = true
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop blocks until any in-progress cleanup has finished. It is a no-op if
// Start was never called.
func (s *HousekeepingService) Stop() {
	if !s.started {
		return
	}
	s.started = false
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	// Run cleanup immediately on startup
	s.Cleanup(context.Background(), time.Now())

	for {
		select {
		case <-ticker.C:
			s.Cleanup(context.Background(), time.Now())
		case <-s.stopCh:
			return
		}
	}
}

// Cleanup deletes expired records relative to now. Each table is cleaned
// independently; a failure in one doesn't stop the others.
func (s *HousekeepingService) Cleanup(ctx context.Context, now time.Time) {
	jobs := []struct {
		table string
		run   func() (int64, error)
	}{
		{"refresh_sessions", func() (int64, error) {
			return s.Store.RefreshSessions().DeleteExpiredSessions(ctx, now)
		}},
		{"one_time_codes", func() (int64, error) {
			return s.Store.OneTimeCodes().DeleteExpiredCodes(ctx, now.Add(-codeRetention))
		}},
		{"notifications_sent", func() (int64, error) {
			return s.Store.Notifications().DeleteNotificationsBefore(ctx, now.Add(-ledgerRetention))
		}},
	}

	var total int64
	for _, job := range jobs {
		n, err := job.run()
		if err != nil {
			s.Logger.Error("housekeeping failed", "table", job.table, "error", err)
			continue
		}
		s.Metrics.Deleted(job.table, n)
		total += n
	}

	s.Logger.Info("housekeeping cleanup completed", "deleted", total)
}
