package service

import (
	"context"
	"time"

	"github.com/knowledgehub/kms-backend/internal/kms/domain"
	"github.com/knowledgehub/kms-backend/internal/kms/events"
	"github.com/knowledgehub/kms-backend/internal/kms/repository"
	"github.com/knowledgehub/kms-backend/pkg/actor"
	"github.com/knowledgehub/kms-backend/pkg/errors"
	"github.com/knowledgehub/kms-backend/pkg/logger"
	"github.com/knowledgehub/kms-backend/pkg/messaging"
	"github.com/knowledgehub/kms-backend/pkg/metrics"
)

// ScanResult summarizes one expiry scan pass.
type ScanResult struct {
	Scanned     int `json:"scanned"`
	NearExpired int `json:"near_expired"`
	Expired     int `json:"expired"`
	Reactivated int `json:"reactivated"`
	Skipped     int `json:"skipped"`
}

// ExpiryScanner recomputes the lifecycle status of published documents
// from their expiry date. The computation is pure and idempotent; a
// second pass with no elapsed time changes nothing. Each write happens
// under the same per-document lock as manual transitions, with the
// state re-read inside the lock, so a manual transition always takes
// precedence over the scan.
type ExpiryScanner struct {
	documents     *repository.DocumentRepository
	publisher     *events.EventPublisher
	metrics       *metrics.Metrics
	logger        *logger.Logger
	locks         *LockTable
	thresholdDays int

	now func() time.Time
}

// NewExpiryScanner creates the expiry scanner. The lock table must be
// the one the lifecycle service uses.
func NewExpiryScanner(
	documents *repository.DocumentRepository,
	publisher *events.EventPublisher,
	m *metrics.Metrics,
	log *logger.Logger,
	locks *LockTable,
	thresholdDays int,
) *ExpiryScanner {
	if thresholdDays <= 0 {
		thresholdDays = domain.DefaultNearExpiryThresholdDays
	}
	return &ExpiryScanner{
		documents:     documents,
		publisher:     publisher,
		metrics:       m,
		logger:        log.WithComponent("expiry-scanner"),
		locks:         locks,
		thresholdDays: thresholdDays,
		now:           time.Now,
	}
}

// ScanAll runs one full pass over all published documents with an
// expiry date.
func (s *ExpiryScanner) ScanAll(ctx context.Context) (*ScanResult, error) {
	start := s.now()
	scanCtx := actor.WithActor(ctx, actor.SystemActor())

	docs, err := s.documents.ListExpiryCandidates(scanCtx)
	if err != nil {
		return nil, err
	}

	result := &ScanResult{Scanned: len(docs)}

	for _, candidate := range docs {
		// Cheap pre-check on the listed snapshot; the authoritative
		// decision is re-made under the lock.
		if _, changed := domain.ExpiryTarget(
			domain.LifecycleStatus(candidate.LifecycleStatus),
			candidate.ExpiryDate,
			start,
			s.thresholdDays,
		); !changed {
			continue
		}

		doc, target, err := s.rescanOne(scanCtx, candidate.ID, start)
		if err != nil {
			return result, err
		}
		if doc == nil {
			// A manual transition got there first; the next pass
			// re-evaluates from the new state.
			result.Skipped++
			s.logger.Debug().Str("document_id", candidate.ID).Msg("document changed during scan, skipped")
			continue
		}

		switch target {
		case domain.StatusNearExpired:
			result.NearExpired++
			s.metrics.DocumentsMarkedNearExpired.Inc()
		case domain.StatusExpired:
			result.Expired++
			s.metrics.DocumentsMarkedExpired.Inc()
		case domain.StatusActive:
			result.Reactivated++
		}

		if target != domain.StatusActive {
			s.publisher.ExpiryChanged(scanCtx, messaging.DocumentExpiryChangedEvent{
				DocumentID:      doc.ID,
				LifecycleStatus: doc.LifecycleStatus,
				ExpiryDate:      doc.ExpiryDate,
			})
		}
	}

	s.metrics.ExpiryScansTotal.Inc()
	s.metrics.ExpiryScanDuration.Observe(time.Since(start).Seconds())

	s.logger.Info().
		Int("scanned", result.Scanned).
		Int("near_expired", result.NearExpired).
		Int("expired", result.Expired).
		Int("skipped", result.Skipped).
		Dur("duration", time.Since(start)).
		Msg("expiry scan completed")

	return result, nil
}

// rescanOne recomputes and writes one document's status under its
// transition lock. It returns a nil document when the document was
// deleted, no longer needs a change, or lost the cross-process lock
// version race; all three mean a manual transition took precedence.
func (s *ExpiryScanner) rescanOne(ctx context.Context, id string, now time.Time) (*repository.Document, domain.LifecycleStatus, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	doc, err := s.documents.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil, "", nil
		}
		return nil, "", err
	}

	target, changed := domain.ExpiryTarget(
		domain.LifecycleStatus(doc.LifecycleStatus),
		doc.ExpiryDate,
		now,
		s.thresholdDays,
	)
	if !changed {
		return nil, "", nil
	}

	doc.LifecycleStatus = string(target)
	if err := s.documents.UpdateLifecycle(ctx, doc); err != nil {
		if errors.Is(err, errors.ErrConflict) {
			return nil, "", nil
		}
		return nil, "", err
	}

	return doc, target, nil
}
