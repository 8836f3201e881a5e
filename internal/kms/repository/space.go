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

// Member roles within a space.
const (
	RoleOwner       = "owner"
	RoleModerator   = "moderator"
	RoleContributor = "contributor"
	RoleViewer      = "viewer"
)

// Space is a grouping of documents with its own membership.
type Space struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Type        string    `db:"type" json:"type"`
	Description string    `db:"description" json:"description"`
	IsPrivate   bool      `db:"is_private" json:"is_private"`
	CreatedBy   *string   `db:"created_by" json:"created_by,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// SpaceMember is a user's membership in a space.
type SpaceMember struct {
	SpaceID string    `db:"space_id" json:"space_id"`
	UserID  string    `db:"user_id" json:"user_id"`
	Role    string    `db:"role" json:"role"`
	AddedAt time.Time `db:"added_at" json:"added_at"`
}

// SpaceRepository handles space and membership persistence
type SpaceRepository struct {
	db *database.DB
}

// NewSpaceRepository creates a new space repository
func NewSpaceRepository(db *database.DB) *SpaceRepository {
	return &SpaceRepository{db: db}
}

// Create inserts a new space and makes the creator its owner in one
// transaction.
func (r *SpaceRepository) Create(ctx context.Context, space *Space) error {
	if space.ID == "" {
		space.ID = uuid.New().String()
	}

	return r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO spaces (id, name, type, description, is_private, created_by)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING created_at, updated_at
		`
		err := tx.QueryRowxContext(ctx, query,
			space.ID, space.Name, space.Type, space.Description, space.IsPrivate, space.CreatedBy,
		).Scan(&space.CreatedAt, &space.UpdatedAt)
		if err != nil {
			if mapped := database.MapPQError(err); mapped != nil {
				return mapped
			}
			return err
		}

		if space.CreatedBy == nil {
			return nil
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO space_members (space_id, user_id, role) VALUES ($1, $2, $3)`,
			space.ID, *space.CreatedBy, RoleOwner,
		)
		if err != nil {
			if mapped := database.MapPQError(err); mapped != nil {
				return mapped
			}
			return err
		}

		return nil
	})
}

// GetByID fetches a space by id
func (r *SpaceRepository) GetByID(ctx context.Context, id string) (*Space, error) {
	var space Space
	query := `SELECT id, name, type, description, is_private, created_by, created_at, updated_at FROM spaces WHERE id = $1`

	err := r.db.GetContext(ctx, &space, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("space")
	}
	if err != nil {
		return nil, err
	}

	return &space, nil
}

// List returns all spaces ordered by name
func (r *SpaceRepository) List(ctx context.Context) ([]*Space, error) {
	var spaces []*Space
	query := `SELECT id, name, type, description, is_private, created_by, created_at, updated_at FROM spaces ORDER BY name ASC`

	if err := r.db.SelectContext(ctx, &spaces, query); err != nil {
		return nil, err
	}

	return spaces, nil
}

// ListVisible returns public spaces plus the private ones userID
// belongs to.
func (r *SpaceRepository) ListVisible(ctx context.Context, userID string) ([]*Space, error) {
	var spaces []*Space
	query := `
		SELECT id, name, type, description, is_private, created_by, created_at, updated_at
		FROM spaces
		WHERE is_private = false
		   OR EXISTS (SELECT 1 FROM space_members WHERE space_id = spaces.id AND user_id = $1)
		ORDER BY name ASC
	`

	if err := r.db.SelectContext(ctx, &spaces, query, userID); err != nil {
		return nil, err
	}

	return spaces, nil
}

// Update changes a space's name, description or privacy flag
func (r *SpaceRepository) Update(ctx context.Context, space *Space) error {
	query := `UPDATE spaces SET name = $1, description = $2, is_private = $3, updated_at = NOW() WHERE id = $4`

	result, err := r.db.ExecContext(ctx, query, space.Name, space.Description, space.IsPrivate, space.ID)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("space")
	}

	return nil
}

// ListMembers returns a space's members, owners first
func (r *SpaceRepository) ListMembers(ctx context.Context, spaceID string) ([]*SpaceMember, error) {
	var members []*SpaceMember
	query := `
		SELECT space_id, user_id, role, added_at
		FROM space_members
		WHERE space_id = $1
		ORDER BY CASE role WHEN 'owner' THEN 0 WHEN 'moderator' THEN 1 WHEN 'contributor' THEN 2 ELSE 3 END, added_at ASC
	`

	if err := r.db.SelectContext(ctx, &members, query, spaceID); err != nil {
		return nil, err
	}

	return members, nil
}

// GetMember fetches one membership
func (r *SpaceRepository) GetMember(ctx context.Context, spaceID, userID string) (*SpaceMember, error) {
	var member SpaceMember
	query := `SELECT space_id, user_id, role, added_at FROM space_members WHERE space_id = $1 AND user_id = $2`

	err := r.db.GetContext(ctx, &member, query, spaceID, userID)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("space member")
	}
	if err != nil {
		return nil, err
	}

	return &member, nil
}

// AddMember adds a user to a space
func (r *SpaceRepository) AddMember(ctx context.Context, member *SpaceMember) error {
	query := `
		INSERT INTO space_members (space_id, user_id, role)
		VALUES ($1, $2, $3)
		RETURNING added_at
	`

	err := r.db.QueryRowxContext(ctx, query, member.SpaceID, member.UserID, member.Role).Scan(&member.AddedAt)
	if err != nil {
		if mapped := database.MapPQError(err); mapped != nil {
			return mapped
		}
		return err
	}

	return nil
}

// UpdateMemberRole changes a member's role. The update runs in a
// transaction so the last owner cannot be demoted.
func (r *SpaceRepository) UpdateMemberRole(ctx context.Context, spaceID, userID, role string) error {
	return r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		if role != RoleOwner {
			if err := guardLastOwner(ctx, tx, spaceID, userID); err != nil {
				return err
			}
		}

		result, err := tx.ExecContext(ctx,
			`UPDATE space_members SET role = $1 WHERE space_id = $2 AND user_id = $3`,
			role, spaceID, userID,
		)
		if err != nil {
			if mapped := database.MapPQError(err); mapped != nil {
				return mapped
			}
			return err
		}

		affected, _ := result.RowsAffected()
		if affected == 0 {
			return errors.NotFound("space member")
		}

		return nil
	})
}

// RemoveMember removes a user from a space, refusing to drop the last
// owner.
func (r *SpaceRepository) RemoveMember(ctx context.Context, spaceID, userID string) error {
	return r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		if err := guardLastOwner(ctx, tx, spaceID, userID); err != nil {
			return err
		}

		result, err := tx.ExecContext(ctx,
			`DELETE FROM space_members WHERE space_id = $1 AND user_id = $2`,
			spaceID, userID,
		)
		if err != nil {
			return err
		}

		affected, _ := result.RowsAffected()
		if affected == 0 {
			return errors.NotFound("space member")
		}

		return nil
	})
}

// guardLastOwner fails when userID is the only owner left in the space.
func guardLastOwner(ctx context.Context, tx *sqlx.Tx, spaceID, userID string) error {
	var isOwner bool
	err := tx.QueryRowxContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM space_members WHERE space_id = $1 AND user_id = $2 AND role = $3)`,
		spaceID, userID, RoleOwner,
	).Scan(&isOwner)
	if err != nil {
		return err
	}
	if !isOwner {
		return nil
	}

	var owners int
	err = tx.QueryRowxContext(ctx,
		`SELECT COUNT(*) FROM space_members WHERE space_id = $1 AND role = $2`,
		spaceID, RoleOwner,
	).Scan(&owners)
	if err != nil {
		return err
	}

	if owners <= 1 {
		return errors.Conflict("a space must keep at least one owner")
	}

	return nil
}
