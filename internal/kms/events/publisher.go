// Package events publishes KMS domain events. Publishing is
// best-effort: a broker outage must never fail the transition that
// already committed, so failures are logged and dropped.
package events

import (
	"context"

	"github.com/knowledgehub/kms-backend/pkg/logger"
	"github.com/knowledgehub/kms-backend/pkg/messaging"
)

// Publisher is the transport the event publisher writes to.
// *messaging.Publisher satisfies it; tests use a recording mock.
type Publisher interface {
	Publish(ctx context.Context, eventType string, data interface{}) error
}

// EventPublisher emits typed KMS events on the document and collection
// exchanges.
type EventPublisher struct {
	documents   Publisher
	collections Publisher
	logger      *logger.Logger
}

// NewEventPublisher creates an event publisher over the two exchanges
func NewEventPublisher(documents, collections Publisher, log *logger.Logger) *EventPublisher {
	return &EventPublisher{
		documents:   documents,
		collections: collections,
		logger:      log.WithComponent("events"),
	}
}

func (p *EventPublisher) publish(ctx context.Context, target Publisher, eventType string, data interface{}) {
	if target == nil {
		return
	}
	if err := target.Publish(ctx, eventType, data); err != nil {
		p.logger.Error().Err(err).Str("event_type", eventType).Msg("failed to publish event")
	}
}

// DocumentSubmitted emits document.submitted
func (p *EventPublisher) DocumentSubmitted(ctx context.Context, e messaging.DocumentSubmittedEvent) {
	p.publish(ctx, p.documents, messaging.EventDocumentSubmitted, e)
}

// DocumentApproved emits document.approved, plus document.published on
// the final approval.
func (p *EventPublisher) DocumentApproved(ctx context.Context, e messaging.DocumentApprovedEvent) {
	p.publish(ctx, p.documents, messaging.EventDocumentApproved, e)
	if e.Final {
		p.publish(ctx, p.documents, messaging.EventDocumentPublished, e)
	}
}

// DocumentRejected emits document.rejected
func (p *EventPublisher) DocumentRejected(ctx context.Context, e messaging.DocumentRejectedEvent) {
	p.publish(ctx, p.documents, messaging.EventDocumentRejected, e)
}

// DocumentExtended emits document.extended
func (p *EventPublisher) DocumentExtended(ctx context.Context, e messaging.DocumentExtendedEvent) {
	p.publish(ctx, p.documents, messaging.EventDocumentExtended, e)
}

// DocumentVersioned emits document.versioned
func (p *EventPublisher) DocumentVersioned(ctx context.Context, e messaging.DocumentVersionedEvent) {
	p.publish(ctx, p.documents, messaging.EventDocumentVersioned, e)
}

// DocumentArchived emits document.archived
func (p *EventPublisher) DocumentArchived(ctx context.Context, e messaging.DocumentArchivedEvent) {
	p.publish(ctx, p.documents, messaging.EventDocumentArchived, e)
}

// DocumentHidden emits document.hidden
func (p *EventPublisher) DocumentHidden(ctx context.Context, e messaging.DocumentArchivedEvent) {
	p.publish(ctx, p.documents, messaging.EventDocumentHidden, e)
}

// DocumentUnhidden emits document.unhidden
func (p *EventPublisher) DocumentUnhidden(ctx context.Context, e messaging.DocumentArchivedEvent) {
	p.publish(ctx, p.documents, messaging.EventDocumentUnhidden, e)
}

// ExpiryChanged emits document.near_expired or document.expired
// depending on the status the scanner moved the document into.
func (p *EventPublisher) ExpiryChanged(ctx context.Context, e messaging.DocumentExpiryChangedEvent) {
	eventType := messaging.EventDocumentNearExpired
	if e.LifecycleStatus == "expired" {
		eventType = messaging.EventDocumentExpired
	}
	p.publish(ctx, p.documents, eventType, e)
}

// CollectionUploaded emits collection.uploaded
func (p *EventPublisher) CollectionUploaded(ctx context.Context, e messaging.CollectionUploadedEvent) {
	p.publish(ctx, p.collections, messaging.EventCollectionUploaded, e)
}

// CollectionClassified emits collection.classified
func (p *EventPublisher) CollectionClassified(ctx context.Context, e messaging.CollectionClassifiedEvent) {
	p.publish(ctx, p.collections, messaging.EventCollectionClassified, e)
}

// CollectionSubmitted emits collection.submitted
func (p *EventPublisher) CollectionSubmitted(ctx context.Context, e messaging.CollectionSubmittedEvent) {
	p.publish(ctx, p.collections, messaging.EventCollectionSubmitted, e)
}

// CollectionDiscarded emits collection.discarded
func (p *EventPublisher) CollectionDiscarded(ctx context.Context, e messaging.CollectionUploadedEvent) {
	p.publish(ctx, p.collections, messaging.EventCollectionDiscarded, e)
}

// CategoryStatusChanged emits category.status.changed
func (p *EventPublisher) CategoryStatusChanged(ctx context.Context, e messaging.CategoryStatusChangedEvent) {
	p.publish(ctx, p.documents, messaging.EventCategoryStatusChanged, e)
}
