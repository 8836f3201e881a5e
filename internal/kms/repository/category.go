package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/knowledgehub/kms-backend/pkg/database"
	"github.com/knowledgehub/kms-backend/pkg/errors"
)

// Category is a node in the document taxonomy.
type Category struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	ParentID    *string   `db:"parent_id" json:"parent_id,omitempty"`
	Description string    `db:"description" json:"description"`
	IsActive    bool      `db:"is_active" json:"is_active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`

	// Derived counters, populated by the service when listing.
	DocumentCount        int `db:"-" json:"document_count"`
	PendingDocumentCount int `db:"-" json:"pending_document_count"`

	// Children is populated when building the tree.
	Children []*Category `db:"-" json:"children,omitempty"`
}

const categoryColumns = `id, name, parent_id, description, is_active, created_at, updated_at`

// CategoryRepository handles taxonomy persistence
type CategoryRepository struct {
	db *database.DB
}

// NewCategoryRepository creates a new category repository
func NewCategoryRepository(db *database.DB) *CategoryRepository {
	return &CategoryRepository{db: db}
}

// Create inserts a new category
func (r *CategoryRepository) Create(ctx context.Context, cat *Category) error {
	if cat.ID == "" {
		cat.ID = uuid.New().String()
	}
	cat.IsActive = true

	query := `
		INSERT INTO categories (id, name, parent_id, description, is_active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		cat.ID, cat.Name, cat.ParentID, cat.Description, cat.IsActive,
	).Scan(&cat.CreatedAt, &cat.UpdatedAt)
	if err != nil {
		if mapped := database.MapPQError(err); mapped != nil {
			return mapped
		}
		return err
	}

	return nil
}

// GetByID fetches a category by id
func (r *CategoryRepository) GetByID(ctx context.Context, id string) (*Category, error) {
	var cat Category
	query := `SELECT ` + categoryColumns + ` FROM categories WHERE id = $1`

	err := r.db.GetContext(ctx, &cat, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("category")
	}
	if err != nil {
		return nil, err
	}

	return &cat, nil
}

// GetByIDs fetches a set of categories. Missing ids surface as a not
// found error naming them, which the bulk classify operations rely on.
func (r *CategoryRepository) GetByIDs(ctx context.Context, ids []string) ([]*Category, error) {
	if len(ids) == 0 {
		return nil, errors.Validation(map[string]string{"category_ids": "at least one category is required"})
	}

	query, args, err := sqlx.In(`SELECT `+categoryColumns+` FROM categories WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	query = r.db.Rebind(query)

	var cats []*Category
	if err := r.db.SelectContext(ctx, &cats, query, args...); err != nil {
		return nil, err
	}

	if len(cats) != len(ids) {
		found := make(map[string]bool, len(cats))
		for _, c := range cats {
			found[c.ID] = true
		}
		missing := map[string]string{}
		for _, id := range ids {
			if !found[id] {
				missing[id] = "category not found"
			}
		}
		return nil, errors.NotFound("category").WithDetails(missing)
	}

	return cats, nil
}

// ListAll returns every category ordered by name
func (r *CategoryRepository) ListAll(ctx context.Context) ([]*Category, error) {
	var cats []*Category
	query := `SELECT ` + categoryColumns + ` FROM categories ORDER BY name ASC`

	if err := r.db.SelectContext(ctx, &cats, query); err != nil {
		return nil, err
	}

	return cats, nil
}

// Update renames a category or changes its description
func (r *CategoryRepository) Update(ctx context.Context, cat *Category) error {
	query := `
		UPDATE categories
		SET name = $1, description = $2, updated_at = NOW()
		WHERE id = $3
	`

	result, err := r.db.ExecContext(ctx, query, cat.Name, cat.Description, cat.ID)
	if err != nil {
		if mapped := database.MapPQError(err); mapped != nil {
			return mapped
		}
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("category")
	}

	return nil
}

// SetActive activates or deactivates a category
func (r *CategoryRepository) SetActive(ctx context.Context, id string, active bool) error {
	query := `UPDATE categories SET is_active = $1, updated_at = NOW() WHERE id = $2`

	result, err := r.db.ExecContext(ctx, query, active, id)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("category")
	}

	return nil
}

// Delete removes a category
func (r *CategoryRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM categories WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		if mapped := database.MapPQError(err); mapped != nil {
			return mapped
		}
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("category")
	}

	return nil
}

// HasChildren reports whether a category has subcategories
func (r *CategoryRepository) HasChildren(ctx context.Context, id string) (bool, error) {
	var count int
	query := `SELECT COUNT(*) FROM categories WHERE parent_id = $1`

	if err := r.db.GetContext(ctx, &count, query, id); err != nil {
		return false, err
	}

	return count > 0, nil
}
