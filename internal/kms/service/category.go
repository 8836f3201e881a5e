package service

import (
	"context"
	"strings"

	"github.com/knowledgehub/kms-backend/internal/kms/events"
	"github.com/knowledgehub/kms-backend/internal/kms/repository"
	"github.com/knowledgehub/kms-backend/pkg/errors"
	"github.com/knowledgehub/kms-backend/pkg/logger"
	"github.com/knowledgehub/kms-backend/pkg/messaging"
)

// CategoryService manages the document taxonomy. Deactivation and
// deletion are guarded by the category's document counts.
type CategoryService struct {
	categories *repository.CategoryRepository
	documents  *repository.DocumentRepository
	publisher  *events.EventPublisher
	logger     *logger.Logger
}

// NewCategoryService creates the category service
func NewCategoryService(
	categories *repository.CategoryRepository,
	documents *repository.DocumentRepository,
	publisher *events.EventPublisher,
	log *logger.Logger,
) *CategoryService {
	return &CategoryService{
		categories: categories,
		documents:  documents,
		publisher:  publisher,
		logger:     log.WithComponent("categories"),
	}
}

// CategoryInput carries category create/update fields.
type CategoryInput struct {
	Name        string  `json:"name" validate:"required,min=1,max=255"`
	ParentID    *string `json:"parent_id,omitempty" validate:"omitempty,uuid"`
	Description string  `json:"description"`
}

// Create adds a category, optionally under a parent.
func (s *CategoryService) Create(ctx context.Context, input CategoryInput) (*repository.Category, error) {
	if _, err := requireActor(ctx); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, errors.Validation(map[string]string{"name": "must not be empty"})
	}

	if input.ParentID != nil {
		parent, err := s.categories.GetByID(ctx, *input.ParentID)
		if err != nil {
			return nil, err
		}
		if !parent.IsActive {
			return nil, errors.Validation(map[string]string{"parent_id": "parent category is deactivated"})
		}
	}

	cat := &repository.Category{
		Name:        name,
		ParentID:    input.ParentID,
		Description: input.Description,
	}
	if err := s.categories.Create(ctx, cat); err != nil {
		return nil, err
	}

	return cat, nil
}

// Update renames a category or changes its description
func (s *CategoryService) Update(ctx context.Context, id string, input CategoryInput) (*repository.Category, error) {
	if _, err := requireActor(ctx); err != nil {
		return nil, err
	}

	cat, err := s.categories.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	cat.Name = strings.TrimSpace(input.Name)
	cat.Description = input.Description
	if err := s.categories.Update(ctx, cat); err != nil {
		return nil, err
	}

	return cat, nil
}

// ToggleStatus flips a category between active and inactive.
// Deactivation is blocked while documents are pending approval in the
// category, so reviewers never lose a classification mid-flight.
func (s *CategoryService) ToggleStatus(ctx context.Context, id string) (*repository.Category, error) {
	a, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}

	cat, err := s.categories.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if cat.IsActive {
		_, pending, err := s.documents.CountByCategory(ctx, id)
		if err != nil {
			return nil, err
		}
		if pending > 0 {
			return nil, errors.Conflict("category has documents pending approval and cannot be deactivated")
		}
	}

	cat.IsActive = !cat.IsActive
	if err := s.categories.SetActive(ctx, id, cat.IsActive); err != nil {
		return nil, err
	}

	s.publisher.CategoryStatusChanged(ctx, messaging.CategoryStatusChangedEvent{
		CategoryID: cat.ID,
		IsActive:   cat.IsActive,
		ChangedBy:  a.ID,
	})

	s.logger.Info().Str("category_id", id).Bool("is_active", cat.IsActive).Msg("category status changed")
	return cat, nil
}

// Delete removes a category. Categories with subcategories or with any
// classified documents must be emptied first.
func (s *CategoryService) Delete(ctx context.Context, id string) error {
	if _, err := requireActor(ctx); err != nil {
		return err
	}

	if _, err := s.categories.GetByID(ctx, id); err != nil {
		return err
	}

	hasChildren, err := s.categories.HasChildren(ctx, id)
	if err != nil {
		return err
	}
	if hasChildren {
		return errors.Conflict("category has subcategories and cannot be deleted")
	}

	total, _, err := s.documents.CountByCategory(ctx, id)
	if err != nil {
		return err
	}
	if total > 0 {
		return errors.Conflict("category has classified documents and cannot be deleted")
	}

	return s.categories.Delete(ctx, id)
}

// Get returns one category with its document counts
func (s *CategoryService) Get(ctx context.Context, id string) (*repository.Category, error) {
	cat, err := s.categories.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	total, pending, err := s.documents.CountByCategory(ctx, id)
	if err != nil {
		return nil, err
	}
	cat.DocumentCount = total
	cat.PendingDocumentCount = pending

	return cat, nil
}

// Tree returns the full taxonomy as a forest of root categories with
// nested children and per-node document counts.
func (s *CategoryService) Tree(ctx context.Context) ([]*repository.Category, error) {
	cats, err := s.categories.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*repository.Category, len(cats))
	for _, c := range cats {
		byID[c.ID] = c

		total, pending, err := s.documents.CountByCategory(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		c.DocumentCount = total
		c.PendingDocumentCount = pending
	}

	var roots []*repository.Category
	for _, c := range cats {
		if c.ParentID == nil {
			roots = append(roots, c)
			continue
		}
		parent, ok := byID[*c.ParentID]
		if !ok {
			// orphaned node, surface it as a root
			roots = append(roots, c)
			continue
		}
		parent.Children = append(parent.Children, c)
	}

	return roots, nil
}
