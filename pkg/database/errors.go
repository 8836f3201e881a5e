package database

import (
	"strings"

	"github.com/lib/pq"

	"github.com/knowledgehub/kms-backend/pkg/errors"
)

// MapPQError converts a PostgreSQL error to an AppError with meaningful messages.
// Returns nil if the error is not a pq.Error.
func MapPQError(err error) *errors.AppError {
	pqErr, ok := err.(*pq.Error)
	if !ok {
		return nil
	}

	switch pqErr.Code {
	// Check constraint violation (23514)
	case "23514":
		return mapCheckConstraint(pqErr)

	// Unique constraint violation (23505)
	case "23505":
		return errors.Conflict(formatConstraintMessage(pqErr))

	// Foreign key violation (23503)
	case "23503":
		return errors.BadRequest("referenced record does not exist")

	// Not null violation (23502)
	case "23502":
		col := pqErr.Column
		if col == "" {
			col = "required field"
		}
		return errors.Validation(map[string]string{
			col: "must not be empty",
		})

	default:
		return nil
	}
}

// mapCheckConstraint maps specific CHECK constraint names to user-friendly messages.
func mapCheckConstraint(pqErr *pq.Error) *errors.AppError {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "lifecycle_status_valid"):
		return errors.Validation(map[string]string{
			"lifecycle_status": "is not a recognized lifecycle status",
		})

	case strings.Contains(constraint, "collection_status_valid"):
		return errors.Validation(map[string]string{
			"status": "must be one of: collected, classified, in_approval, approved, rejected, discarded",
		})

	case strings.Contains(constraint, "source_valid"):
		return errors.Validation(map[string]string{
			"source": "must be one of: upload, crawler, import",
		})

	case strings.Contains(constraint, "space_type_valid"):
		return errors.Validation(map[string]string{
			"type": "must be one of: department, project, community, personal",
		})

	case strings.Contains(constraint, "member_role_valid"):
		return errors.Validation(map[string]string{
			"role": "must be one of: owner, moderator, contributor, viewer",
		})

	case strings.Contains(constraint, "version_number_positive"):
		return errors.Validation(map[string]string{
			"version_number": "must be a positive integer",
		})

	default:
		return errors.BadRequest("data validation failed: " + constraint)
	}
}

// formatConstraintMessage creates a user-friendly message for unique constraint violations.
func formatConstraintMessage(pqErr *pq.Error) string {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "document_versions_document_id_version_number"):
		return "this version number already exists for the document"
	case strings.Contains(constraint, "space_members_space_id_user_id"):
		return "this user is already a member of the space"
	case strings.Contains(constraint, "categories_parent_id_name"):
		return "a category with this name already exists under the same parent"
	default:
		return "a record with these values already exists"
	}
}
