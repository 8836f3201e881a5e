package service

import (
	"context"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/knowledgehub/kms-backend/internal/kms/domain"
	"github.com/knowledgehub/kms-backend/internal/kms/events"
	"github.com/knowledgehub/kms-backend/internal/kms/repository"
	"github.com/knowledgehub/kms-backend/pkg/errors"
	"github.com/knowledgehub/kms-backend/pkg/logger"
	"github.com/knowledgehub/kms-backend/pkg/messaging"
	"github.com/knowledgehub/kms-backend/pkg/metrics"
)

// IntakeService manages collected documents from upload through
// classification to submission into the approval workflow. Every bulk
// operation validates the whole batch before mutating anything.
type IntakeService struct {
	collected  *repository.CollectedRepository
	categories *repository.CategoryRepository
	spaces     *repository.SpaceRepository
	publisher  *events.EventPublisher
	metrics    *metrics.Metrics
	logger     *logger.Logger

	now func() time.Time
}

// NewIntakeService creates the intake service
func NewIntakeService(
	collected *repository.CollectedRepository,
	categories *repository.CategoryRepository,
	spaces *repository.SpaceRepository,
	publisher *events.EventPublisher,
	m *metrics.Metrics,
	log *logger.Logger,
) *IntakeService {
	return &IntakeService{
		collected:  collected,
		categories: categories,
		spaces:     spaces,
		publisher:  publisher,
		metrics:    m,
		logger:     log.WithComponent("intake"),
		now:        time.Now,
	}
}

// UploadFile describes one file entering the intake pipeline.
type UploadFile struct {
	Title    string `json:"title" validate:"required,min=1,max=500"`
	FileName string `json:"file_name" validate:"required"`
	FileSize int64  `json:"file_size" validate:"min=0"`
	FileType string `json:"file_type"`
}

// UploadBatch carries the shared provenance for a batch of files.
type UploadBatch struct {
	Source          string       `json:"source" validate:"required"`
	SourceDetail    string       `json:"source_detail" validate:"required"`
	ContributorName string       `json:"contributor_name"`
	Files           []UploadFile `json:"files" validate:"required,min=1,dive"`
}

// Upload registers a batch of externally sourced files. The batch is
// inserted in one transaction.
func (s *IntakeService) Upload(ctx context.Context, spaceID string, batch UploadBatch) ([]*repository.CollectedDocument, error) {
	a, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}

	if len(batch.Files) == 0 {
		return nil, errors.Validation(map[string]string{"files": "at least one file is required"})
	}
	if strings.TrimSpace(batch.SourceDetail) == "" {
		return nil, errors.Validation(map[string]string{"source_detail": "must not be blank"})
	}
	if !domain.Source(batch.Source).Valid() {
		return nil, errors.Validation(map[string]string{"source": "must be one of: upload, crawler, import"})
	}
	if _, err := s.spaces.GetByID(ctx, spaceID); err != nil {
		return nil, err
	}

	var contributor *string
	if name := strings.TrimSpace(batch.ContributorName); name != "" {
		contributor = &name
	}

	invalid := map[string]string{}
	docs := make([]*repository.CollectedDocument, 0, len(batch.Files))
	for _, file := range batch.Files {
		if strings.TrimSpace(file.Title) == "" {
			invalid[file.FileName] = "title must not be empty"
			continue
		}

		docs = append(docs, &repository.CollectedDocument{
			Title:           strings.TrimSpace(file.Title),
			FileName:        file.FileName,
			FileSize:        file.FileSize,
			FileType:        file.FileType,
			Source:          batch.Source,
			SourceDetail:    strings.TrimSpace(batch.SourceDetail),
			Status:          string(domain.CollectionCollected),
			SpaceID:         spaceID,
			CollectedBy:     a.ID,
			CollectedByName: a.Name,
			ContributorName: contributor,
		})
	}
	if len(invalid) > 0 {
		return nil, errors.Validation(invalid)
	}

	if err := s.collected.CreateBatch(ctx, docs); err != nil {
		return nil, err
	}

	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}

	s.metrics.CollectedDocumentsTotal.WithLabelValues(string(domain.CollectionCollected)).Add(float64(len(docs)))
	s.publisher.CollectionUploaded(ctx, messaging.CollectionUploadedEvent{
		DocumentIDs: ids,
		Source:      batch.Source,
		CollectedBy: a.ID,
	})

	s.logger.Info().Int("count", len(docs)).Str("space_id", spaceID).Msg("documents collected")
	return docs, nil
}

// ClassifyInput carries the classification attributes applied to every
// member of the batch.
type ClassifyInput struct {
	CategoryIDs   []string   `json:"category_ids" validate:"required,min=1,dive,uuid"`
	Tags          []string   `json:"tags"`
	EffectiveDate *time.Time `json:"effective_date"`
	ExpiryDate    *time.Time `json:"expiry_date"`
	Notes         string     `json:"notes"`
}

// Classify assigns categories and curation attributes to a batch of
// collected documents. The whole batch is validated first: one
// offending member leaves every member untouched.
func (s *IntakeService) Classify(ctx context.Context, ids []string, input ClassifyInput) ([]*repository.CollectedDocument, error) {
	a, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}

	docs, err := s.collected.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	offending := map[string]string{}
	var first *repository.CollectedDocument
	for _, doc := range docs {
		if verr := domain.ValidateClassify(doc.ID, domain.CollectionStatus(doc.Status), input.CategoryIDs); verr != nil {
			if verr.Code == "VALIDATION_ERROR" {
				return nil, verr
			}
			if first == nil {
				first = doc
			}
			offending[doc.ID] = "cannot be classified from status " + doc.Status
		}
	}
	if first != nil {
		return nil, errors.InvalidState(first.ID, first.Status, "classify").WithDetails(offending)
	}

	if err := s.ensureActiveCategories(ctx, input.CategoryIDs); err != nil {
		return nil, err
	}

	attrs := repository.ClassifyAttrs{
		CategoryIDs:   input.CategoryIDs,
		Tags:          input.Tags,
		EffectiveDate: input.EffectiveDate,
		ExpiryDate:    input.ExpiryDate,
		Notes:         input.Notes,
	}
	if err := s.collected.ClassifyBatch(ctx, ids, attrs, a.ID); err != nil {
		return nil, err
	}

	now := s.now()
	for _, doc := range docs {
		doc.Status = string(domain.CollectionClassified)
		doc.CategoryIDs = pq.StringArray(input.CategoryIDs)
		doc.Tags = pq.StringArray(input.Tags)
		doc.EffectiveDate = input.EffectiveDate
		doc.ExpiryDate = input.ExpiryDate
		doc.Notes = input.Notes
		doc.ClassifiedBy = &a.ID
		doc.ClassifiedAt = &now
	}

	s.metrics.CollectedDocumentsTotal.WithLabelValues(string(domain.CollectionClassified)).Add(float64(len(docs)))
	s.publisher.CollectionClassified(ctx, messaging.CollectionClassifiedEvent{
		DocumentIDs:  ids,
		CategoryIDs:  input.CategoryIDs,
		ClassifiedBy: a.ID,
	})

	return docs, nil
}

// SendToApproval promotes a batch of classified documents into the
// approval workflow. A batch containing any non-classified member is
// rejected whole, naming the offending ids.
func (s *IntakeService) SendToApproval(ctx context.Context, ids []string, expiryDate *time.Time) ([]*repository.Document, error) {
	a, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}

	collected, err := s.collected.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	offending := map[string]string{}
	var first *repository.CollectedDocument
	for _, doc := range collected {
		if verr := domain.ValidateSendToApproval(doc.ID, domain.CollectionStatus(doc.Status)); verr != nil {
			if first == nil {
				first = doc
			}
			offending[doc.ID] = "cannot be submitted from status " + doc.Status
		}
	}
	if first != nil {
		return nil, errors.InvalidState(first.ID, first.Status, "send_to_approval").WithDetails(offending)
	}

	now := s.now()
	docs := make([]*repository.Document, len(collected))
	for i, cd := range collected {
		// Expiry stamped during classification wins over the batch default.
		expiry := expiryDate
		if cd.ExpiryDate != nil {
			expiry = cd.ExpiryDate
		}

		docs[i] = &repository.Document{
			Title:           cd.Title,
			FileName:        &cd.FileName,
			SpaceID:         cd.SpaceID,
			CategoryIDs:     cd.CategoryIDs,
			LifecycleStatus: string(domain.StatusPendingLevel1),
			OwnerID:         cd.CollectedBy,
			OwnerName:       cd.CollectedByName,
			ExpiryDate:      expiry,
			VersionNumber:   1,
			LockVersion:     1,
			SubmittedAt:     &now,
		}
	}

	if err := s.collected.SubmitBatch(ctx, collected, docs); err != nil {
		return nil, err
	}

	links := make(map[string]string, len(collected))
	for i, cd := range collected {
		links[cd.ID] = docs[i].ID
	}

	s.metrics.CollectedDocumentsTotal.WithLabelValues(string(domain.CollectionInApproval)).Add(float64(len(docs)))
	s.publisher.CollectionSubmitted(ctx, messaging.CollectionSubmittedEvent{
		Documents:   links,
		SubmittedBy: a.ID,
	})

	s.logger.Info().Int("count", len(docs)).Msg("collected documents sent to approval")
	return docs, nil
}

// Discard drops a batch of raw intake documents. Anything past the
// collected stage refuses to be discarded.
func (s *IntakeService) Discard(ctx context.Context, ids []string) error {
	a, err := requireActor(ctx)
	if err != nil {
		return err
	}

	docs, err := s.collected.GetByIDs(ctx, ids)
	if err != nil {
		return err
	}

	offending := map[string]string{}
	var first *repository.CollectedDocument
	for _, doc := range docs {
		if verr := domain.ValidateDiscard(doc.ID, domain.CollectionStatus(doc.Status)); verr != nil {
			if first == nil {
				first = doc
			}
			offending[doc.ID] = "cannot be discarded from status " + doc.Status
		}
	}
	if first != nil {
		return errors.InvalidState(first.ID, first.Status, "discard").WithDetails(offending)
	}

	if err := s.collected.DiscardBatch(ctx, ids); err != nil {
		return err
	}

	s.metrics.CollectedDocumentsTotal.WithLabelValues(string(domain.CollectionDiscarded)).Add(float64(len(ids)))
	s.publisher.CollectionDiscarded(ctx, messaging.CollectionUploadedEvent{
		DocumentIDs: ids,
		CollectedBy: a.ID,
	})

	return nil
}

// Get returns one collected document
func (s *IntakeService) Get(ctx context.Context, id string) (*repository.CollectedDocument, error) {
	return s.collected.GetByID(ctx, id)
}

// List returns collected documents matching the filter
func (s *IntakeService) List(ctx context.Context, filter repository.CollectedFilter) ([]*repository.CollectedDocument, error) {
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	return s.collected.List(ctx, filter)
}

// ensureActiveCategories verifies every category exists and is active.
func (s *IntakeService) ensureActiveCategories(ctx context.Context, ids []string) error {
	cats, err := s.categories.GetByIDs(ctx, ids)
	if err != nil {
		return err
	}

	inactive := map[string]string{}
	for _, c := range cats {
		if !c.IsActive {
			inactive[c.ID] = "category is deactivated"
		}
	}
	if len(inactive) > 0 {
		return errors.Validation(inactive)
	}

	return nil
}
