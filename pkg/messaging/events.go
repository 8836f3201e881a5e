package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	// Document lifecycle events
	EventDocumentSubmitted   = "document.submitted"
	EventDocumentApproved    = "document.approved"
	EventDocumentRejected    = "document.rejected"
	EventDocumentPublished   = "document.published"
	EventDocumentExtended    = "document.extended"
	EventDocumentVersioned   = "document.versioned"
	EventDocumentArchived    = "document.archived"
	EventDocumentHidden      = "document.hidden"
	EventDocumentUnhidden    = "document.unhidden"
	EventDocumentNearExpired = "document.near_expired"
	EventDocumentExpired     = "document.expired"

	// Collection intake events
	EventCollectionUploaded   = "collection.uploaded"
	EventCollectionClassified = "collection.classified"
	EventCollectionSubmitted  = "collection.submitted"
	EventCollectionDiscarded  = "collection.discarded"

	// Taxonomy events
	EventCategoryCreated       = "category.created"
	EventCategoryStatusChanged = "category.status.changed"
	EventCategoryDeleted       = "category.deleted"

	// User events consumed from the identity service
	EventUserCreated = "user.created"
	EventUserUpdated = "user.updated"
	EventUserDeleted = "user.deleted"
)

// Exchange names
const (
	ExchangeDocumentEvents   = "kms.document.events"
	ExchangeCollectionEvents = "kms.collection.events"
	ExchangeUserEvents       = "user.events"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            GenerateEventID(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// GenerateEventID generates a unique event ID
func GenerateEventID() string {
	return uuid.New().String()
}

// Document lifecycle events

// DocumentSubmittedEvent is published when a document enters the approval pipeline
type DocumentSubmittedEvent struct {
	DocumentID  string   `json:"document_id"`
	Title       string   `json:"title"`
	CategoryIDs []string `json:"category_ids"`
	SubmittedBy string   `json:"submitted_by"`
}

// DocumentApprovedEvent is published on each approval step
type DocumentApprovedEvent struct {
	DocumentID string `json:"document_id"`
	Level      int    `json:"level"`
	ApprovedBy string `json:"approved_by"`
	// Final is true when the level-3 approval activated the document
	Final bool `json:"final"`
}

// DocumentRejectedEvent is published when an approver rejects a document
type DocumentRejectedEvent struct {
	DocumentID string `json:"document_id"`
	Level      int    `json:"level"`
	RejectedBy string `json:"rejected_by"`
	Reason     string `json:"reason"`
}

// DocumentExtendedEvent is published when a document's expiry is pushed forward
type DocumentExtendedEvent struct {
	DocumentID    string    `json:"document_id"`
	OldExpiryDate time.Time `json:"old_expiry_date"`
	NewExpiryDate time.Time `json:"new_expiry_date"`
	Reason        string    `json:"reason"`
	ExtendedBy    string    `json:"extended_by"`
}

// DocumentVersionedEvent is published when a new content revision is created
type DocumentVersionedEvent struct {
	DocumentID    string    `json:"document_id"`
	VersionNumber int       `json:"version_number"`
	NewExpiryDate time.Time `json:"new_expiry_date"`
	CreatedBy     string    `json:"created_by"`
}

// DocumentArchivedEvent is published when a document is archived
type DocumentArchivedEvent struct {
	DocumentID string `json:"document_id"`
	ArchivedBy string `json:"archived_by"`
}

// DocumentExpiryChangedEvent is published by the expiry scanner when a
// document crosses into near-expired or expired.
type DocumentExpiryChangedEvent struct {
	DocumentID      string     `json:"document_id"`
	LifecycleStatus string     `json:"lifecycle_status"`
	ExpiryDate      *time.Time `json:"expiry_date,omitempty"`
}

// Collection intake events

// CollectionUploadedEvent is published when external files are registered
type CollectionUploadedEvent struct {
	DocumentIDs []string `json:"document_ids"`
	Source      string   `json:"source"`
	CollectedBy string   `json:"collected_by"`
}

// CollectionClassifiedEvent is published when collected documents are classified
type CollectionClassifiedEvent struct {
	DocumentIDs  []string `json:"document_ids"`
	CategoryIDs  []string `json:"category_ids"`
	ClassifiedBy string   `json:"classified_by"`
}

// CollectionSubmittedEvent is published when collected documents enter approval
type CollectionSubmittedEvent struct {
	// CollectedID -> created document id
	Documents   map[string]string `json:"documents"`
	SubmittedBy string            `json:"submitted_by"`
}

// Taxonomy events

// CategoryStatusChangedEvent is published when a category is activated or deactivated
type CategoryStatusChangedEvent struct {
	CategoryID string `json:"category_id"`
	IsActive   bool   `json:"is_active"`
	ChangedBy  string `json:"changed_by"`
}

// User events (consumed)

// UserCreatedEvent mirrors the identity service's user.created payload
type UserCreatedEvent struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	Role   string `json:"role_name"`
}

// UserUpdatedEvent mirrors the identity service's user.updated payload
type UserUpdatedEvent struct {
	UserID string         `json:"user_id"`
	Fields map[string]any `json:"fields"`
}

// UserDeletedEvent mirrors the identity service's user.deleted payload
type UserDeletedEvent struct {
	UserID string `json:"user_id"`
}
