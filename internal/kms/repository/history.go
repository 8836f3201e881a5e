package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/knowledgehub/kms-backend/pkg/database"
	"github.com/knowledgehub/kms-backend/pkg/errors"
)

// DocumentVersion is an immutable snapshot of a document revision.
type DocumentVersion struct {
	ID            string    `db:"id" json:"id"`
	DocumentID    string    `db:"document_id" json:"document_id"`
	VersionNumber int       `db:"version_number" json:"version_number"`
	Content       string    `db:"content" json:"content"`
	ChangeLog     string    `db:"change_log" json:"change_log"`
	CreatedBy     string    `db:"created_by" json:"created_by"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// ExtensionHistory records an expiry date extension.
type ExtensionHistory struct {
	ID             string     `db:"id" json:"id"`
	DocumentID     string     `db:"document_id" json:"document_id"`
	PreviousExpiry *time.Time `db:"previous_expiry" json:"previous_expiry,omitempty"`
	NewExpiry      time.Time  `db:"new_expiry" json:"new_expiry"`
	Reason         string     `db:"reason" json:"reason"`
	ExtendedBy     string     `db:"extended_by" json:"extended_by"`
	ExtendedAt     time.Time  `db:"extended_at" json:"extended_at"`
}

// Extend atomically applies the lifecycle update and appends the
// extension record. The lifecycle write carries the lock version guard,
// so a concurrent change rolls the whole extension back.
func (r *DocumentRepository) Extend(ctx context.Context, doc *Document, ext *ExtensionHistory) error {
	if ext.ID == "" {
		ext.ID = uuid.New().String()
	}
	ext.DocumentID = doc.ID

	return r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		if err := updateLifecycleTx(ctx, tx, doc); err != nil {
			return err
		}

		query := `
			INSERT INTO extension_history (id, document_id, previous_expiry, new_expiry, reason, extended_by)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING extended_at
		`
		err := tx.QueryRowxContext(ctx, query,
			ext.ID, ext.DocumentID, ext.PreviousExpiry, ext.NewExpiry, ext.Reason, ext.ExtendedBy,
		).Scan(&ext.ExtendedAt)
		if err != nil {
			if mapped := database.MapPQError(err); mapped != nil {
				return mapped
			}
			return err
		}

		doc.LockVersion++
		return nil
	})
}

// CreateVersion atomically snapshots the previous revision and applies
// the lifecycle update carrying the new content and version number.
func (r *DocumentRepository) CreateVersion(ctx context.Context, doc *Document, snapshot *DocumentVersion) error {
	if snapshot.ID == "" {
		snapshot.ID = uuid.New().String()
	}
	snapshot.DocumentID = doc.ID

	return r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO document_versions (id, document_id, version_number, content, change_log, created_by)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING created_at
		`
		err := tx.QueryRowxContext(ctx, query,
			snapshot.ID, snapshot.DocumentID, snapshot.VersionNumber,
			snapshot.Content, snapshot.ChangeLog, snapshot.CreatedBy,
		).Scan(&snapshot.CreatedAt)
		if err != nil {
			if mapped := database.MapPQError(err); mapped != nil {
				return mapped
			}
			return err
		}

		if err := updateLifecycleTx(ctx, tx, doc); err != nil {
			return err
		}

		doc.LockVersion++
		return nil
	})
}

// updateLifecycleTx is the transactional form of UpdateLifecycle. It
// does not bump the in-memory lock version; the caller does that after
// the transaction commits.
func updateLifecycleTx(ctx context.Context, tx *sqlx.Tx, doc *Document) error {
	query := `
		UPDATE documents
		SET lifecycle_status = $1,
		    content = $2,
		    category_ids = $3,
		    expiry_date = $4,
		    version_number = $5,
		    submitted_at = $6,
		    published_at = $7,
		    archived_at = $8,
		    level1_approved_by = $9, level1_approved_at = $10,
		    level2_approved_by = $11, level2_approved_at = $12,
		    level3_approved_by = $13, level3_approved_at = $14,
		    rejected_level = $15, rejected_by = $16, rejected_at = $17, rejection_reason = $18,
		    lock_version = lock_version + 1,
		    updated_at = NOW()
		WHERE id = $19 AND lock_version = $20
	`

	result, err := tx.ExecContext(ctx, query,
		doc.LifecycleStatus, doc.Content, doc.CategoryIDs, doc.ExpiryDate,
		doc.VersionNumber, doc.SubmittedAt, doc.PublishedAt, doc.ArchivedAt,
		doc.Level1ApprovedBy, doc.Level1ApprovedAt,
		doc.Level2ApprovedBy, doc.Level2ApprovedAt,
		doc.Level3ApprovedBy, doc.Level3ApprovedAt,
		doc.RejectedLevel, doc.RejectedBy, doc.RejectedAt, doc.RejectionReason,
		doc.ID, doc.LockVersion,
	)
	if err != nil {
		if mapped := database.MapPQError(err); mapped != nil {
			return mapped
		}
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.Conflict("document was modified concurrently, reload and retry")
	}

	return nil
}

// ListVersions returns a document's revision history, newest first
func (r *DocumentRepository) ListVersions(ctx context.Context, documentID string) ([]*DocumentVersion, error) {
	query := `
		SELECT id, document_id, version_number, content, change_log, created_by, created_at
		FROM document_versions
		WHERE document_id = $1
		ORDER BY version_number DESC
	`

	var versions []*DocumentVersion
	if err := r.db.SelectContext(ctx, &versions, query, documentID); err != nil {
		return nil, err
	}

	return versions, nil
}

// ListExtensions returns a document's extension history, newest first
func (r *DocumentRepository) ListExtensions(ctx context.Context, documentID string) ([]*ExtensionHistory, error) {
	query := `
		SELECT id, document_id, previous_expiry, new_expiry, reason, extended_by, extended_at
		FROM extension_history
		WHERE document_id = $1
		ORDER BY extended_at DESC
	`

	var exts []*ExtensionHistory
	if err := r.db.SelectContext(ctx, &exts, query, documentID); err != nil {
		return nil, err
	}

	return exts, nil
}
