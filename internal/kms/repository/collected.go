package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/knowledgehub/kms-backend/internal/kms/domain"
	"github.com/knowledgehub/kms-backend/pkg/database"
	"github.com/knowledgehub/kms-backend/pkg/errors"
)

// CollectedDocument is a raw intake item waiting to be classified and
// promoted into the approval workflow.
type CollectedDocument struct {
	ID              string         `db:"id" json:"id"`
	Title           string         `db:"title" json:"title"`
	FileName        string         `db:"file_name" json:"file_name"`
	FileSize        int64          `db:"file_size" json:"file_size"`
	FileType        string         `db:"file_type" json:"file_type"`
	Source          string         `db:"source" json:"source"`
	SourceDetail    string         `db:"source_detail" json:"source_detail"`
	Status          string         `db:"status" json:"status"`
	SpaceID         string         `db:"space_id" json:"space_id"`
	CategoryIDs     pq.StringArray `db:"category_ids" json:"category_ids"`
	Tags            pq.StringArray `db:"tags" json:"tags"`
	EffectiveDate   *time.Time     `db:"effective_date" json:"effective_date,omitempty"`
	ExpiryDate      *time.Time     `db:"expiry_date" json:"expiry_date,omitempty"`
	Notes           string         `db:"notes" json:"notes"`
	CollectedBy     string         `db:"collected_by" json:"collected_by"`
	CollectedByName string         `db:"collected_by_name" json:"collected_by_name"`
	ContributorName *string        `db:"contributor_name" json:"contributor_name,omitempty"`
	ClassifiedBy    *string        `db:"classified_by" json:"classified_by,omitempty"`
	ClassifiedAt    *time.Time     `db:"classified_at" json:"classified_at,omitempty"`
	DocumentID      *string        `db:"document_id" json:"document_id,omitempty"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updated_at"`
}

const collectedColumns = `
	id, title, file_name, file_size, file_type, source, source_detail, status,
	space_id, category_ids, tags, effective_date, expiry_date, notes,
	collected_by, collected_by_name, contributor_name, classified_by,
	classified_at, document_id, created_at, updated_at`

// CollectedFilter narrows intake listings.
type CollectedFilter struct {
	SpaceID string
	Status  string
	Source  string
	Limit   int
	Offset  int
}

// CollectedRepository handles intake pipeline persistence
type CollectedRepository struct {
	db *database.DB
}

// NewCollectedRepository creates a new collected document repository
func NewCollectedRepository(db *database.DB) *CollectedRepository {
	return &CollectedRepository{db: db}
}

// CreateBatch inserts a batch of uploaded documents in one transaction.
// Either every row lands or none does.
func (r *CollectedRepository) CreateBatch(ctx context.Context, docs []*CollectedDocument) error {
	return r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO collected_documents (
				id, title, file_name, file_size, file_type, source, source_detail,
				status, space_id, category_ids, collected_by, collected_by_name,
				contributor_name
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			RETURNING created_at, updated_at
		`

		for _, doc := range docs {
			if doc.ID == "" {
				doc.ID = uuid.New().String()
			}
			if doc.Status == "" {
				doc.Status = string(domain.CollectionCollected)
			}
			if doc.CategoryIDs == nil {
				doc.CategoryIDs = pq.StringArray{}
			}

			err := tx.QueryRowxContext(ctx, query,
				doc.ID, doc.Title, doc.FileName, doc.FileSize, doc.FileType,
				doc.Source, doc.SourceDetail, doc.Status, doc.SpaceID,
				doc.CategoryIDs, doc.CollectedBy, doc.CollectedByName,
				doc.ContributorName,
			).Scan(&doc.CreatedAt, &doc.UpdatedAt)
			if err != nil {
				if mapped := database.MapPQError(err); mapped != nil {
					return mapped
				}
				return err
			}
		}

		return nil
	})
}

// GetByID fetches a collected document by id
func (r *CollectedRepository) GetByID(ctx context.Context, id string) (*CollectedDocument, error) {
	var doc CollectedDocument
	query := `SELECT ` + collectedColumns + ` FROM collected_documents WHERE id = $1`

	err := r.db.GetContext(ctx, &doc, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("collected document")
	}
	if err != nil {
		return nil, err
	}

	return &doc, nil
}

// GetByIDs fetches a set of collected documents. Every requested id
// must exist; missing ids surface as a not found error naming them.
func (r *CollectedRepository) GetByIDs(ctx context.Context, ids []string) ([]*CollectedDocument, error) {
	if len(ids) == 0 {
		return nil, errors.Validation(map[string]string{"ids": "at least one id is required"})
	}

	query := `SELECT ` + collectedColumns + ` FROM collected_documents WHERE id = ANY($1)`

	var docs []*CollectedDocument
	if err := r.db.SelectContext(ctx, &docs, query, pq.Array(ids)); err != nil {
		return nil, err
	}

	if len(docs) != len(ids) {
		found := make(map[string]bool, len(docs))
		for _, d := range docs {
			found[d.ID] = true
		}
		missing := map[string]string{}
		for _, id := range ids {
			if !found[id] {
				missing[id] = "collected document not found"
			}
		}
		return nil, errors.NotFound("collected document").WithDetails(missing)
	}

	return docs, nil
}

// List returns collected documents matching the filter, newest first
func (r *CollectedRepository) List(ctx context.Context, filter CollectedFilter) ([]*CollectedDocument, error) {
	query := `SELECT ` + collectedColumns + ` FROM collected_documents WHERE 1=1`
	args := []interface{}{}

	if filter.SpaceID != "" {
		args = append(args, filter.SpaceID)
		query += fmt.Sprintf(" AND space_id = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.Source != "" {
		args = append(args, filter.Source)
		query += fmt.Sprintf(" AND source = $%d", len(args))
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

	var docs []*CollectedDocument
	if err := r.db.SelectContext(ctx, &docs, query, args...); err != nil {
		return nil, err
	}

	return docs, nil
}

// ClassifyAttrs carries the curation fields a classification pass
// stamps onto every member of the batch.
type ClassifyAttrs struct {
	CategoryIDs   []string
	Tags          []string
	EffectiveDate *time.Time
	ExpiryDate    *time.Time
	Notes         string
}

// ClassifyBatch assigns categories and curation attributes to a batch
// of collected documents in one transaction. Rows that left the intake
// pipeline concurrently make the whole batch roll back with a conflict.
func (r *CollectedRepository) ClassifyBatch(ctx context.Context, ids []string, attrs ClassifyAttrs, classifiedBy string) error {
	tags := attrs.Tags
	if tags == nil {
		tags = []string{}
	}

	return r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		query := `
			UPDATE collected_documents
			SET category_ids = $1, tags = $2, effective_date = $3, expiry_date = $4,
			    notes = $5, status = $6, classified_by = $7, classified_at = NOW(),
			    updated_at = NOW()
			WHERE id = ANY($8) AND status IN ($9, $10)
		`

		result, err := tx.ExecContext(ctx, query,
			pq.Array(attrs.CategoryIDs), pq.Array(tags), attrs.EffectiveDate, attrs.ExpiryDate,
			attrs.Notes, string(domain.CollectionClassified), classifiedBy, pq.Array(ids),
			string(domain.CollectionCollected), string(domain.CollectionClassified),
		)
		if err != nil {
			if mapped := database.MapPQError(err); mapped != nil {
				return mapped
			}
			return err
		}

		affected, _ := result.RowsAffected()
		if int(affected) != len(ids) {
			return errors.Conflict("one or more documents left the intake pipeline, classification rolled back")
		}

		return nil
	})
}

// SubmitBatch promotes classified intake rows into documents in one
// transaction: each collected document gets a pending document row and
// is marked in_approval with a link to it.
func (r *CollectedRepository) SubmitBatch(ctx context.Context, collected []*CollectedDocument, docs []*Document) error {
	return r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		insertDoc := `
			INSERT INTO documents (
				id, title, content, file_name, space_id, category_ids,
				lifecycle_status, owner_id, owner_name, expiry_date,
				version_number, lock_version, submitted_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			RETURNING created_at, updated_at
		`
		markSubmitted := `
			UPDATE collected_documents
			SET status = $1, document_id = $2, updated_at = NOW()
			WHERE id = $3 AND status = $4
		`

		for i, cd := range collected {
			doc := docs[i]
			if doc.ID == "" {
				doc.ID = uuid.New().String()
			}

			err := tx.QueryRowxContext(ctx, insertDoc,
				doc.ID, doc.Title, doc.Content, doc.FileName, doc.SpaceID, doc.CategoryIDs,
				doc.LifecycleStatus, doc.OwnerID, doc.OwnerName, doc.ExpiryDate,
				doc.VersionNumber, doc.LockVersion, doc.SubmittedAt,
			).Scan(&doc.CreatedAt, &doc.UpdatedAt)
			if err != nil {
				if mapped := database.MapPQError(err); mapped != nil {
					return mapped
				}
				return err
			}

			result, err := tx.ExecContext(ctx, markSubmitted,
				string(domain.CollectionInApproval), doc.ID, cd.ID, string(domain.CollectionClassified),
			)
			if err != nil {
				if mapped := database.MapPQError(err); mapped != nil {
					return mapped
				}
				return err
			}

			affected, _ := result.RowsAffected()
			if affected == 0 {
				return errors.Conflict(fmt.Sprintf("collected document %s left the intake pipeline, submission rolled back", cd.ID))
			}

			cd.Status = string(domain.CollectionInApproval)
			cd.DocumentID = &doc.ID
		}

		return nil
	})
}

// DiscardBatch drops a batch of intake rows in one transaction.
func (r *CollectedRepository) DiscardBatch(ctx context.Context, ids []string) error {
	return r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		query := `
			UPDATE collected_documents
			SET status = $1, updated_at = NOW()
			WHERE id = ANY($2) AND status = $3
		`

		result, err := tx.ExecContext(ctx, query,
			string(domain.CollectionDiscarded), pq.Array(ids),
			string(domain.CollectionCollected),
		)
		if err != nil {
			return err
		}

		affected, _ := result.RowsAffected()
		if int(affected) != len(ids) {
			return errors.Conflict("one or more documents left the intake pipeline, discard rolled back")
		}

		return nil
	})
}

// SetStatusByDocumentID updates the intake row linked to a lifecycle
// document. Documents created directly, without passing through intake,
// have no linked row; matching zero rows is not an error.
func (r *CollectedRepository) SetStatusByDocumentID(ctx context.Context, documentID string, status domain.CollectionStatus) error {
	query := `
		UPDATE collected_documents
		SET status = $1, updated_at = NOW()
		WHERE document_id = $2
	`

	_, err := r.db.ExecContext(ctx, query, string(status), documentID)
	return err
}

// CountByStatus returns intake counts grouped by status
func (r *CollectedRepository) CountByStatus(ctx context.Context) (map[string]int, error) {
	query := `SELECT status, COUNT(*) AS count FROM collected_documents GROUP BY status`

	rows, err := r.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}

	return counts, rows.Err()
}
