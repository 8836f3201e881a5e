package service

import (
	"context"
	"time"

	"github.com/knowledgehub/kms-backend/pkg/logger"
)

// ExpiryScheduler runs the expiry scanner periodically.
type ExpiryScheduler struct {
	scanner  *ExpiryScanner
	interval time.Duration
	logger   *logger.Logger
	cancel   context.CancelFunc
}

// NewExpiryScheduler creates a new expiry scheduler
func NewExpiryScheduler(scanner *ExpiryScanner, interval time.Duration, log *logger.Logger) *ExpiryScheduler {
	return &ExpiryScheduler{
		scanner:  scanner,
		interval: interval,
		logger:   log.WithComponent("expiry-scheduler"),
	}
}

// Start starts the scheduler in a background goroutine. An initial
// scan runs immediately so restarts do not leave stale statuses until
// the first tick.
func (s *ExpiryScheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	go func() {
		s.logger.Info().Dur("interval", s.interval).Msg("expiry scheduler started")

		s.runCycle(ctx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info().Msg("expiry scheduler stopped")
				return
			case <-ticker.C:
				s.runCycle(ctx)
			}
		}
	}()
}

// Stop stops the scheduler goroutine
func (s *ExpiryScheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *ExpiryScheduler) runCycle(ctx context.Context) {
	if _, err := s.scanner.ScanAll(ctx); err != nil {
		s.logger.Error().Err(err).Msg("expiry scan failed")
	}
}
