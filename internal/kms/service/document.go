package service

import (
	"context"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/knowledgehub/kms-backend/internal/kms/domain"
	"github.com/knowledgehub/kms-backend/internal/kms/repository"
	"github.com/knowledgehub/kms-backend/pkg/errors"
	"github.com/knowledgehub/kms-backend/pkg/logger"
)

// DocumentService covers draft creation, edits and read access.
// Lifecycle transitions live in LifecycleService.
type DocumentService struct {
	documents  *repository.DocumentRepository
	categories *repository.CategoryRepository
	spaces     *repository.SpaceRepository
	logger     *logger.Logger
}

// NewDocumentService creates the document service
func NewDocumentService(
	documents *repository.DocumentRepository,
	categories *repository.CategoryRepository,
	spaces *repository.SpaceRepository,
	log *logger.Logger,
) *DocumentService {
	return &DocumentService{
		documents:  documents,
		categories: categories,
		spaces:     spaces,
		logger:     log.WithComponent("documents"),
	}
}

// CreateDraftInput carries a new draft's fields.
type CreateDraftInput struct {
	Title       string     `json:"title" validate:"required,min=1,max=500"`
	Content     string     `json:"content"`
	SpaceID     string     `json:"space_id" validate:"required,uuid"`
	CategoryIDs []string   `json:"category_ids" validate:"dive,uuid"`
	ExpiryDate  *time.Time `json:"expiry_date,omitempty"`
}

// CreateDraft creates a draft document owned by the caller.
func (s *DocumentService) CreateDraft(ctx context.Context, input CreateDraftInput) (*repository.Document, error) {
	a, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(input.Title) == "" {
		return nil, errors.Validation(map[string]string{"title": "must not be empty"})
	}

	if _, err := s.spaces.GetByID(ctx, input.SpaceID); err != nil {
		return nil, err
	}
	if len(input.CategoryIDs) > 0 {
		if _, err := s.categories.GetByIDs(ctx, input.CategoryIDs); err != nil {
			return nil, err
		}
	}

	doc := &repository.Document{
		Title:       strings.TrimSpace(input.Title),
		Content:     input.Content,
		SpaceID:     input.SpaceID,
		CategoryIDs: pq.StringArray(input.CategoryIDs),
		OwnerID:     a.ID,
		OwnerName:   a.Name,
		ExpiryDate:  input.ExpiryDate,
	}

	if err := s.documents.Create(ctx, doc); err != nil {
		return nil, err
	}

	s.logger.Info().Str("document_id", doc.ID).Str("space_id", doc.SpaceID).Msg("draft created")
	return doc, nil
}

// UpdateDraftInput carries editable draft fields.
type UpdateDraftInput struct {
	Title       string     `json:"title" validate:"required,min=1,max=500"`
	Content     string     `json:"content"`
	CategoryIDs []string   `json:"category_ids" validate:"dive,uuid"`
	ExpiryDate  *time.Time `json:"expiry_date,omitempty"`
}

// UpdateDraft edits a document that has not entered the approval
// pipeline yet. Published and pending documents change only through
// lifecycle operations.
func (s *DocumentService) UpdateDraft(ctx context.Context, documentID string, input UpdateDraftInput) (*repository.Document, error) {
	if _, err := requireActor(ctx); err != nil {
		return nil, err
	}

	doc, err := s.documents.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}

	status := domain.LifecycleStatus(doc.LifecycleStatus)
	if status != domain.StatusDraft {
		if _, rejected := status.RejectedLevel(); !rejected {
			return nil, errors.InvalidState(doc.ID, doc.LifecycleStatus, "update_draft")
		}
	}

	if len(input.CategoryIDs) > 0 {
		if _, err := s.categories.GetByIDs(ctx, input.CategoryIDs); err != nil {
			return nil, err
		}
	}

	doc.Title = strings.TrimSpace(input.Title)
	doc.Content = input.Content
	doc.CategoryIDs = pq.StringArray(input.CategoryIDs)
	doc.ExpiryDate = input.ExpiryDate

	if err := s.documents.UpdateMetadata(ctx, doc); err != nil {
		return nil, err
	}

	return doc, nil
}

// Get returns one document
func (s *DocumentService) Get(ctx context.Context, documentID string) (*repository.Document, error) {
	return s.documents.GetByID(ctx, documentID)
}

// List returns documents matching the filter
func (s *DocumentService) List(ctx context.Context, filter repository.DocumentFilter) ([]*repository.Document, error) {
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	return s.documents.List(ctx, filter)
}

// Versions returns a document's revision history, newest first
func (s *DocumentService) Versions(ctx context.Context, documentID string) ([]*repository.DocumentVersion, error) {
	if _, err := s.documents.GetByID(ctx, documentID); err != nil {
		return nil, err
	}
	return s.documents.ListVersions(ctx, documentID)
}

// Extensions returns a document's extension history, newest first
func (s *DocumentService) Extensions(ctx context.Context, documentID string) ([]*repository.ExtensionHistory, error) {
	if _, err := s.documents.GetByID(ctx, documentID); err != nil {
		return nil, err
	}
	return s.documents.ListExtensions(ctx, documentID)
}
