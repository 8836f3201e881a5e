// Package repository persists KMS entities in PostgreSQL.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/knowledgehub/kms-backend/internal/kms/domain"
	"github.com/knowledgehub/kms-backend/pkg/database"
	"github.com/knowledgehub/kms-backend/pkg/errors"
)

// Document is a knowledge document moving through the approval and
// expiry lifecycle.
type Document struct {
	ID              string         `db:"id" json:"id"`
	Title           string         `db:"title" json:"title"`
	Content         string         `db:"content" json:"content"`
	FileName        *string        `db:"file_name" json:"file_name,omitempty"`
	SpaceID         string         `db:"space_id" json:"space_id"`
	CategoryIDs     pq.StringArray `db:"category_ids" json:"category_ids"`
	LifecycleStatus string         `db:"lifecycle_status" json:"lifecycle_status"`
	OwnerID         string         `db:"owner_id" json:"owner_id"`
	OwnerName       string         `db:"owner_name" json:"owner_name"`
	ExpiryDate      *time.Time     `db:"expiry_date" json:"expiry_date,omitempty"`
	VersionNumber   int            `db:"version_number" json:"version_number"`
	LockVersion     int            `db:"lock_version" json:"-"`
	SubmittedAt     *time.Time     `db:"submitted_at" json:"submitted_at,omitempty"`
	PublishedAt     *time.Time     `db:"published_at" json:"published_at,omitempty"`
	ArchivedAt      *time.Time     `db:"archived_at" json:"archived_at,omitempty"`

	Level1ApprovedBy *string    `db:"level1_approved_by" json:"level1_approved_by,omitempty"`
	Level1ApprovedAt *time.Time `db:"level1_approved_at" json:"level1_approved_at,omitempty"`
	Level2ApprovedBy *string    `db:"level2_approved_by" json:"level2_approved_by,omitempty"`
	Level2ApprovedAt *time.Time `db:"level2_approved_at" json:"level2_approved_at,omitempty"`
	Level3ApprovedBy *string    `db:"level3_approved_by" json:"level3_approved_by,omitempty"`
	Level3ApprovedAt *time.Time `db:"level3_approved_at" json:"level3_approved_at,omitempty"`

	RejectedLevel   *int       `db:"rejected_level" json:"rejected_level,omitempty"`
	RejectedBy      *string    `db:"rejected_by" json:"rejected_by,omitempty"`
	RejectedAt      *time.Time `db:"rejected_at" json:"rejected_at,omitempty"`
	RejectionReason *string    `db:"rejection_reason" json:"rejection_reason,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Status returns the coarse display status derived from the lifecycle status.
func (d *Document) Status() domain.DocumentStatus {
	return domain.LifecycleStatus(d.LifecycleStatus).Project()
}

// ClearApprovals resets the approval trail for a fresh submission.
func (d *Document) ClearApprovals() {
	d.Level1ApprovedBy, d.Level1ApprovedAt = nil, nil
	d.Level2ApprovedBy, d.Level2ApprovedAt = nil, nil
	d.Level3ApprovedBy, d.Level3ApprovedAt = nil, nil
	d.RejectedLevel, d.RejectedBy, d.RejectedAt, d.RejectionReason = nil, nil, nil, nil
}

// SetApproval records the approver for a level.
func (d *Document) SetApproval(level int, approverID string, at time.Time) {
	switch level {
	case 1:
		d.Level1ApprovedBy, d.Level1ApprovedAt = &approverID, &at
	case 2:
		d.Level2ApprovedBy, d.Level2ApprovedAt = &approverID, &at
	case 3:
		d.Level3ApprovedBy, d.Level3ApprovedAt = &approverID, &at
	}
}

// DocumentFilter narrows document listings.
type DocumentFilter struct {
	SpaceID         string
	LifecycleStatus string
	CategoryID      string
	OwnerID         string
	Limit           int
	Offset          int
}

const documentColumns = `
	id, title, content, file_name, space_id, category_ids, lifecycle_status,
	owner_id, owner_name, expiry_date, version_number, lock_version,
	submitted_at, published_at, archived_at,
	level1_approved_by, level1_approved_at,
	level2_approved_by, level2_approved_at,
	level3_approved_by, level3_approved_at,
	rejected_level, rejected_by, rejected_at, rejection_reason,
	created_at, updated_at`

// DocumentRepository handles document persistence
type DocumentRepository struct {
	db *database.DB
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(db *database.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Create inserts a new document
func (r *DocumentRepository) Create(ctx context.Context, doc *Document) error {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	if doc.LifecycleStatus == "" {
		doc.LifecycleStatus = string(domain.StatusDraft)
	}
	if doc.VersionNumber == 0 {
		doc.VersionNumber = 1
	}
	doc.LockVersion = 1
	if doc.CategoryIDs == nil {
		doc.CategoryIDs = pq.StringArray{}
	}

	query := `
		INSERT INTO documents (
			id, title, content, file_name, space_id, category_ids,
			lifecycle_status, owner_id, owner_name, expiry_date,
			version_number, lock_version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		doc.ID, doc.Title, doc.Content, doc.FileName, doc.SpaceID, doc.CategoryIDs,
		doc.LifecycleStatus, doc.OwnerID, doc.OwnerName, doc.ExpiryDate,
		doc.VersionNumber, doc.LockVersion,
	).Scan(&doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		if mapped := database.MapPQError(err); mapped != nil {
			return mapped
		}
		return err
	}

	return nil
}

// GetByID fetches a document by id
func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*Document, error) {
	var doc Document
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`

	err := r.db.GetContext(ctx, &doc, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("document")
	}
	if err != nil {
		return nil, err
	}

	return &doc, nil
}

// List returns documents matching the filter, newest first
func (r *DocumentRepository) List(ctx context.Context, filter DocumentFilter) ([]*Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE 1=1`
	args := []interface{}{}

	if filter.SpaceID != "" {
		args = append(args, filter.SpaceID)
		query += fmt.Sprintf(" AND space_id = $%d", len(args))
	}
	if filter.LifecycleStatus != "" {
		args = append(args, filter.LifecycleStatus)
		query += fmt.Sprintf(" AND lifecycle_status = $%d", len(args))
	}
	if filter.CategoryID != "" {
		args = append(args, filter.CategoryID)
		query += fmt.Sprintf(" AND $%d = ANY(category_ids)", len(args))
	}
	if filter.OwnerID != "" {
		args = append(args, filter.OwnerID)
		query += fmt.Sprintf(" AND owner_id = $%d", len(args))
	}

	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	var docs []*Document
	if err := r.db.SelectContext(ctx, &docs, query, args...); err != nil {
		return nil, err
	}

	return docs, nil
}

// UpdateMetadata updates the editable fields of a draft document
func (r *DocumentRepository) UpdateMetadata(ctx context.Context, doc *Document) error {
	query := `
		UPDATE documents
		SET title = $1, content = $2, category_ids = $3, expiry_date = $4, updated_at = NOW()
		WHERE id = $5
	`

	result, err := r.db.ExecContext(ctx, query,
		doc.Title, doc.Content, doc.CategoryIDs, doc.ExpiryDate, doc.ID,
	)
	if err != nil {
		if mapped := database.MapPQError(err); mapped != nil {
			return mapped
		}
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("document")
	}

	return nil
}

// UpdateLifecycle writes the full lifecycle state of a document guarded
// by its lock version. A concurrent writer that got there first leaves
// zero rows affected, which surfaces as a conflict. On success the
// in-memory lock version is bumped to match the row.
func (r *DocumentRepository) UpdateLifecycle(ctx context.Context, doc *Document) error {
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

	result, err := r.db.ExecContext(ctx, query,
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

	doc.LockVersion++
	return nil
}

// ListExpiryCandidates returns published documents with an expiry date.
// Hidden and archived documents are excluded from the scan.
func (r *DocumentRepository) ListExpiryCandidates(ctx context.Context) ([]*Document, error) {
	query := `SELECT ` + documentColumns + `
		FROM documents
		WHERE lifecycle_status IN ($1, $2, $3) AND expiry_date IS NOT NULL
		ORDER BY expiry_date ASC`

	var docs []*Document
	err := r.db.SelectContext(ctx, &docs, query,
		string(domain.StatusActive), string(domain.StatusNearExpired), string(domain.StatusExpired),
	)
	if err != nil {
		return nil, err
	}

	return docs, nil
}

// CountByCategory returns the number of documents classified into a
// category, split into total and pending approval.
func (r *DocumentRepository) CountByCategory(ctx context.Context, categoryID string) (total int, pending int, err error) {
	query := `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE lifecycle_status IN ($2, $3, $4))
		FROM documents
		WHERE $1 = ANY(category_ids) AND lifecycle_status != $5
	`

	err = r.db.QueryRowxContext(ctx, query,
		categoryID,
		string(domain.StatusPendingLevel1), string(domain.StatusPendingLevel2), string(domain.StatusPendingLevel3),
		string(domain.StatusArchived),
	).Scan(&total, &pending)
	if err != nil {
		return 0, 0, err
	}

	return total, pending, nil
}
