package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/knowledgehub/kms-backend/pkg/database"
	"github.com/knowledgehub/kms-backend/pkg/errors"
)

// CachedUser is a local projection of a user from the identity service,
// kept fresh by the user events consumer. It lets listings show actor
// names without a cross-service call.
type CachedUser struct {
	ID        string    `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	Name      string    `db:"name" json:"name"`
	Role      string    `db:"role" json:"role"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// UserCacheRepository handles the local user projection
type UserCacheRepository struct {
	db *database.DB
}

// NewUserCacheRepository creates a new user cache repository
func NewUserCacheRepository(db *database.DB) *UserCacheRepository {
	return &UserCacheRepository{db: db}
}

// Upsert inserts or refreshes a cached user
func (r *UserCacheRepository) Upsert(ctx context.Context, user *CachedUser) error {
	query := `
		INSERT INTO user_cache (id, email, name, role, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (id) DO UPDATE
		SET email = EXCLUDED.email, name = EXCLUDED.name, role = EXCLUDED.role, updated_at = NOW()
	`

	_, err := r.db.ExecContext(ctx, query, user.ID, user.Email, user.Name, user.Role)
	return err
}

// GetByID fetches a cached user
func (r *UserCacheRepository) GetByID(ctx context.Context, id string) (*CachedUser, error) {
	var user CachedUser
	query := `SELECT id, email, name, role, updated_at FROM user_cache WHERE id = $1`

	err := r.db.GetContext(ctx, &user, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("user")
	}
	if err != nil {
		return nil, err
	}

	return &user, nil
}

// Delete drops a cached user after the identity service removed them
func (r *UserCacheRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM user_cache WHERE id = $1`, id)
	return err
}
