// Package service implements the KMS document workflows on top of the
// repositories: the approval lifecycle, the expiry scanner, the intake
// pipeline and the taxonomy and space management.
package service

import (
	"context"
	"encoding/json"
	"fmt"
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

// LifecycleService drives documents through submission, approval,
// publication, expiry handling and archival. Transitions are validated
// by the domain package, serialized per document by the lock table and
// guarded against cross-process races by the repository's lock version.
type LifecycleService struct {
	documents  *repository.DocumentRepository
	categories *repository.CategoryRepository
	collected  *repository.CollectedRepository
	audit      *repository.AuditRepository
	publisher  *events.EventPublisher
	metrics    *metrics.Metrics
	logger     *logger.Logger
	locks      *LockTable

	// now is swappable in tests
	now func() time.Time
}

// NewLifecycleService creates the lifecycle service
func NewLifecycleService(
	documents *repository.DocumentRepository,
	categories *repository.CategoryRepository,
	collected *repository.CollectedRepository,
	audit *repository.AuditRepository,
	publisher *events.EventPublisher,
	m *metrics.Metrics,
	log *logger.Logger,
	locks *LockTable,
) *LifecycleService {
	return &LifecycleService{
		documents:  documents,
		categories: categories,
		collected:  collected,
		audit:      audit,
		publisher:  publisher,
		metrics:    m,
		logger:     log.WithComponent("lifecycle"),
		locks:      locks,
		now:        time.Now,
	}
}

// requireActor returns the authenticated actor or an unauthorized error.
func requireActor(ctx context.Context) (*actor.Actor, error) {
	a := actor.FromContext(ctx)
	if a == nil {
		return nil, errors.Unauthorized("an authenticated user is required for this operation")
	}
	return a, nil
}

// Submit moves a draft or rejected document into the approval pipeline.
// Resubmission restarts at level 1 and replaces the previous approval
// trail.
func (s *LifecycleService) Submit(ctx context.Context, documentID string) (*repository.Document, error) {
	a, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(documentID)
	defer unlock()

	doc, err := s.documents.GetByID(ctx, documentID)
	if err != nil {
		return nil, s.fail("submit", err)
	}

	status := domain.LifecycleStatus(doc.LifecycleStatus)
	if verr := domain.ValidateSubmit(doc.ID, status, doc.CategoryIDs); verr != nil {
		return nil, s.fail("submit", verr)
	}
	if err := s.ensureActiveCategories(ctx, doc.CategoryIDs); err != nil {
		return nil, s.fail("submit", err)
	}

	now := s.now()
	doc.LifecycleStatus = string(domain.StatusPendingLevel1)
	doc.SubmittedAt = &now
	doc.ClearApprovals()

	if err := s.documents.UpdateLifecycle(ctx, doc); err != nil {
		return nil, s.fail("submit", err)
	}

	s.metrics.TransitionsTotal.WithLabelValues("submit").Inc()
	s.syncIntakeStatus(ctx, doc.ID, domain.CollectionInApproval)
	s.recordAudit(ctx, doc.ID, "submit", a, map[string]string{"status": doc.LifecycleStatus})
	s.publisher.DocumentSubmitted(ctx, messaging.DocumentSubmittedEvent{
		DocumentID:  doc.ID,
		Title:       doc.Title,
		CategoryIDs: doc.CategoryIDs,
		SubmittedBy: a.ID,
	})

	s.logger.Info().Str("document_id", doc.ID).Str("actor", a.ID).Msg("document submitted for approval")
	return doc, nil
}

// Approve records a level approval. Levels compose in order; the final
// level publishes the document.
func (s *LifecycleService) Approve(ctx context.Context, documentID string, level int) (*repository.Document, error) {
	a, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(documentID)
	defer unlock()

	doc, err := s.documents.GetByID(ctx, documentID)
	if err != nil {
		return nil, s.fail("approve", err)
	}

	status := domain.LifecycleStatus(doc.LifecycleStatus)
	next, verr := domain.NextOnApprove(doc.ID, status, level)
	if verr != nil {
		return nil, s.fail("approve", verr)
	}

	now := s.now()
	doc.SetApproval(level, a.ID, now)
	doc.LifecycleStatus = string(next)

	final := next == domain.StatusActive
	if final {
		doc.PublishedAt = &now
	}

	if err := s.documents.UpdateLifecycle(ctx, doc); err != nil {
		return nil, s.fail("approve", err)
	}

	s.metrics.TransitionsTotal.WithLabelValues("approve").Inc()
	if final {
		s.syncIntakeStatus(ctx, doc.ID, domain.CollectionApproved)
	}
	s.recordAudit(ctx, doc.ID, fmt.Sprintf("approve_level_%d", level), a, map[string]string{"status": doc.LifecycleStatus})
	s.publisher.DocumentApproved(ctx, messaging.DocumentApprovedEvent{
		DocumentID: doc.ID,
		Level:      level,
		ApprovedBy: a.ID,
		Final:      final,
	})

	s.logger.Info().
		Str("document_id", doc.ID).
		Int("level", level).
		Bool("published", final).
		Msg("approval recorded")
	return doc, nil
}

// Reject halts the approval chain at the document's current level.
func (s *LifecycleService) Reject(ctx context.Context, documentID string, level int, reason string) (*repository.Document, error) {
	a, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(documentID)
	defer unlock()

	doc, err := s.documents.GetByID(ctx, documentID)
	if err != nil {
		return nil, s.fail("reject", err)
	}

	status := domain.LifecycleStatus(doc.LifecycleStatus)
	next, verr := domain.NextOnReject(doc.ID, status, level, reason)
	if verr != nil {
		return nil, s.fail("reject", verr)
	}

	now := s.now()
	doc.LifecycleStatus = string(next)
	doc.RejectedLevel = &level
	doc.RejectedBy = &a.ID
	doc.RejectedAt = &now
	doc.RejectionReason = &reason

	if err := s.documents.UpdateLifecycle(ctx, doc); err != nil {
		return nil, s.fail("reject", err)
	}

	s.metrics.TransitionsTotal.WithLabelValues("reject").Inc()
	s.syncIntakeStatus(ctx, doc.ID, domain.CollectionRejected)
	s.recordAudit(ctx, doc.ID, fmt.Sprintf("reject_level_%d", level), a, map[string]string{
		"status": doc.LifecycleStatus,
		"reason": reason,
	})
	s.publisher.DocumentRejected(ctx, messaging.DocumentRejectedEvent{
		DocumentID: doc.ID,
		Level:      level,
		RejectedBy: a.ID,
		Reason:     reason,
	})

	return doc, nil
}

// Extend pushes the expiry date forward and reactivates the document.
// The extension is recorded in the append-only extension history.
func (s *LifecycleService) Extend(ctx context.Context, documentID string, newExpiry time.Time, reason string) (*repository.Document, error) {
	a, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(documentID)
	defer unlock()

	doc, err := s.documents.GetByID(ctx, documentID)
	if err != nil {
		return nil, s.fail("extend", err)
	}

	status := domain.LifecycleStatus(doc.LifecycleStatus)
	if verr := domain.ValidateExtend(doc.ID, status, doc.ExpiryDate, newExpiry); verr != nil {
		return nil, s.fail("extend", verr)
	}

	ext := &repository.ExtensionHistory{
		PreviousExpiry: doc.ExpiryDate,
		NewExpiry:      newExpiry,
		Reason:         reason,
		ExtendedBy:     a.ID,
	}

	oldExpiry := time.Time{}
	if doc.ExpiryDate != nil {
		oldExpiry = *doc.ExpiryDate
	}

	doc.ExpiryDate = &newExpiry
	doc.LifecycleStatus = string(domain.StatusActive)

	if err := s.documents.Extend(ctx, doc, ext); err != nil {
		return nil, s.fail("extend", err)
	}

	s.metrics.TransitionsTotal.WithLabelValues("extend").Inc()
	s.recordAudit(ctx, doc.ID, "extend", a, map[string]string{
		"new_expiry": newExpiry.Format(time.RFC3339),
		"reason":     reason,
	})
	s.publisher.DocumentExtended(ctx, messaging.DocumentExtendedEvent{
		DocumentID:    doc.ID,
		OldExpiryDate: oldExpiry,
		NewExpiryDate: newExpiry,
		Reason:        reason,
		ExtendedBy:    a.ID,
	})

	s.logger.Info().Str("document_id", doc.ID).Time("new_expiry", newExpiry).Msg("document extended")
	return doc, nil
}

// CreateVersion snapshots the current revision, installs the new
// content under the next version number and reactivates the document
// with the new expiry date. Prior versions are never mutated.
func (s *LifecycleService) CreateVersion(ctx context.Context, documentID, newContent, changeLog string, newExpiry time.Time) (*repository.Document, error) {
	a, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(documentID)
	defer unlock()

	doc, err := s.documents.GetByID(ctx, documentID)
	if err != nil {
		return nil, s.fail("create_version", err)
	}

	status := domain.LifecycleStatus(doc.LifecycleStatus)
	if verr := domain.ValidateCreateVersion(doc.ID, status, changeLog); verr != nil {
		return nil, s.fail("create_version", verr)
	}

	snapshot := &repository.DocumentVersion{
		VersionNumber: doc.VersionNumber,
		Content:       doc.Content,
		ChangeLog:     changeLog,
		CreatedBy:     a.ID,
	}

	doc.VersionNumber++
	doc.Content = newContent
	doc.ExpiryDate = &newExpiry
	doc.LifecycleStatus = string(domain.StatusActive)

	if err := s.documents.CreateVersion(ctx, doc, snapshot); err != nil {
		return nil, s.fail("create_version", err)
	}

	s.metrics.TransitionsTotal.WithLabelValues("create_version").Inc()
	s.recordAudit(ctx, doc.ID, "create_version", a, map[string]string{
		"version":    fmt.Sprintf("%d", doc.VersionNumber),
		"change_log": changeLog,
	})
	s.publisher.DocumentVersioned(ctx, messaging.DocumentVersionedEvent{
		DocumentID:    doc.ID,
		VersionNumber: doc.VersionNumber,
		NewExpiryDate: newExpiry,
		CreatedBy:     a.ID,
	})

	return doc, nil
}

// Archive retires a document permanently. There is no un-archive.
func (s *LifecycleService) Archive(ctx context.Context, documentID string) (*repository.Document, error) {
	a, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(documentID)
	defer unlock()

	doc, err := s.documents.GetByID(ctx, documentID)
	if err != nil {
		return nil, s.fail("archive", err)
	}

	status := domain.LifecycleStatus(doc.LifecycleStatus)
	if verr := domain.ValidateArchive(doc.ID, status); verr != nil {
		return nil, s.fail("archive", verr)
	}

	now := s.now()
	doc.LifecycleStatus = string(domain.StatusArchived)
	doc.ArchivedAt = &now

	if err := s.documents.UpdateLifecycle(ctx, doc); err != nil {
		return nil, s.fail("archive", err)
	}

	s.metrics.TransitionsTotal.WithLabelValues("archive").Inc()
	s.recordAudit(ctx, doc.ID, "archive", a, nil)
	s.publisher.DocumentArchived(ctx, messaging.DocumentArchivedEvent{
		DocumentID: doc.ID,
		ArchivedBy: a.ID,
	})

	return doc, nil
}

// Hide removes a published document from view without retiring it.
func (s *LifecycleService) Hide(ctx context.Context, documentID string) (*repository.Document, error) {
	return s.toggleVisibility(ctx, documentID, true)
}

// Unhide returns a hidden document to active. The expiry scanner
// re-evaluates it on its next pass.
func (s *LifecycleService) Unhide(ctx context.Context, documentID string) (*repository.Document, error) {
	return s.toggleVisibility(ctx, documentID, false)
}

func (s *LifecycleService) toggleVisibility(ctx context.Context, documentID string, hide bool) (*repository.Document, error) {
	a, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}

	operation := "unhide"
	if hide {
		operation = "hide"
	}

	unlock := s.locks.Lock(documentID)
	defer unlock()

	doc, err := s.documents.GetByID(ctx, documentID)
	if err != nil {
		return nil, s.fail(operation, err)
	}

	status := domain.LifecycleStatus(doc.LifecycleStatus)
	if hide {
		if verr := domain.ValidateHide(doc.ID, status); verr != nil {
			return nil, s.fail(operation, verr)
		}
		doc.LifecycleStatus = string(domain.StatusHidden)
	} else {
		if verr := domain.ValidateUnhide(doc.ID, status); verr != nil {
			return nil, s.fail(operation, verr)
		}
		doc.LifecycleStatus = string(domain.StatusActive)
	}

	if err := s.documents.UpdateLifecycle(ctx, doc); err != nil {
		return nil, s.fail(operation, err)
	}

	s.metrics.TransitionsTotal.WithLabelValues(operation).Inc()
	s.recordAudit(ctx, doc.ID, operation, a, nil)

	event := messaging.DocumentArchivedEvent{DocumentID: doc.ID, ArchivedBy: a.ID}
	if hide {
		s.publisher.DocumentHidden(ctx, event)
	} else {
		s.publisher.DocumentUnhidden(ctx, event)
	}

	return doc, nil
}

// AuditTrail returns a document's audit history, newest first.
func (s *LifecycleService) AuditTrail(ctx context.Context, documentID string, limit int) ([]*repository.AuditEntry, error) {
	if _, err := s.documents.GetByID(ctx, documentID); err != nil {
		return nil, err
	}
	return s.audit.ListByEntity(ctx, "document", documentID, limit)
}

// syncIntakeStatus mirrors a lifecycle outcome onto the intake row that
// produced the document, if any. The transition itself already
// committed, so failures are logged and not surfaced.
func (s *LifecycleService) syncIntakeStatus(ctx context.Context, documentID string, status domain.CollectionStatus) {
	if err := s.collected.SetStatusByDocumentID(ctx, documentID, status); err != nil {
		s.logger.Error().Err(err).
			Str("document_id", documentID).
			Str("status", string(status)).
			Msg("failed to sync intake status")
	}
}

// ensureActiveCategories verifies every category exists and is active.
func (s *LifecycleService) ensureActiveCategories(ctx context.Context, ids []string) error {
	cats, err := s.categories.GetByIDs(ctx, ids)
	if err != nil {
		return err
	}

	inactive := map[string]string{}
	for _, c := range cats {
		if !c.IsActive {
			inactive[c.ID] = "category is deactivated"
		}
	}
	if len(inactive) > 0 {
		return errors.Validation(inactive)
	}

	return nil
}

// fail counts a transition failure and passes the error through.
func (s *LifecycleService) fail(operation string, err error) error {
	code := "INTERNAL_ERROR"
	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		code = appErr.Code
	}
	s.metrics.TransitionFailuresTotal.WithLabelValues(operation, code).Inc()
	return err
}

// recordAudit appends to the audit trail. Failures are logged only;
// the transition itself already committed.
func (s *LifecycleService) recordAudit(ctx context.Context, documentID, action string, a *actor.Actor, details map[string]string) {
	entry := &repository.AuditEntry{
		EntityType: "document",
		EntityID:   documentID,
		Action:     action,
	}
	if a != nil {
		entry.ActorID = &a.ID
		entry.ActorName = &a.Name
	}
	if details != nil {
		if raw, err := json.Marshal(details); err == nil {
			entry.Details = raw
		}
	}

	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Error().Err(err).Str("document_id", documentID).Str("action", action).Msg("failed to record audit entry")
	}
}
