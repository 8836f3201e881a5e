package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/knowledgehub/kms-backend/pkg/database"
)

// AuditEntry records who did what to which entity.
type AuditEntry struct {
	ID         string          `db:"id" json:"id"`
	EntityType string          `db:"entity_type" json:"entity_type"`
	EntityID   string          `db:"entity_id" json:"entity_id"`
	Action     string          `db:"action" json:"action"`
	ActorID    *string         `db:"actor_id" json:"actor_id,omitempty"`
	ActorName  *string         `db:"actor_name" json:"actor_name,omitempty"`
	Details    json.RawMessage `db:"details" json:"details,omitempty"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
}

// AuditRepository handles the audit trail
type AuditRepository struct {
	db *database.DB
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *database.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Record appends an audit entry
func (r *AuditRepository) Record(ctx context.Context, entry *AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	query := `
		INSERT INTO audit_log (id, entity_type, entity_id, action, actor_id, actor_name, details)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`

	return r.db.QueryRowxContext(ctx, query,
		entry.ID, entry.EntityType, entry.EntityID, entry.Action,
		entry.ActorID, entry.ActorName, entry.Details,
	).Scan(&entry.CreatedAt)
}

// ListByEntity returns the audit trail for one entity, newest first
func (r *AuditRepository) ListByEntity(ctx context.Context, entityType, entityID string, limit int) ([]*AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, entity_type, entity_id, action, actor_id, actor_name, details, created_at
		FROM audit_log
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at DESC
		LIMIT $3
	`

	var entries []*AuditEntry
	if err := r.db.SelectContext(ctx, &entries, query, entityType, entityID, limit); err != nil {
		return nil, err
	}

	return entries, nil
}
