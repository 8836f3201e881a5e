package domain

import "github.com/knowledgehub/kms-backend/pkg/errors"

// CollectionStatus tracks a collected document through the intake
// pipeline: collected -> classified -> in_approval, then approved or
// rejected once the linked document resolves, with discarded as the
// drop state for raw uploads.
type CollectionStatus string

const (
	CollectionCollected  CollectionStatus = "collected"
	CollectionClassified CollectionStatus = "classified"
	CollectionInApproval CollectionStatus = "in_approval"
	CollectionApproved   CollectionStatus = "approved"
	CollectionRejected   CollectionStatus = "rejected"
	CollectionDiscarded  CollectionStatus = "discarded"
)

// Source identifies where a collected document came from.
type Source string

const (
	SourceUpload  Source = "upload"
	SourceCrawler Source = "crawler"
	SourceImport  Source = "import"
)

// Valid reports whether s is a recognized collection status.
func (s CollectionStatus) Valid() bool {
	switch s {
	case CollectionCollected, CollectionClassified, CollectionInApproval,
		CollectionApproved, CollectionRejected, CollectionDiscarded:
		return true
	}
	return false
}

// Valid reports whether s is a recognized source.
func (s Source) Valid() bool {
	switch s {
	case SourceUpload, SourceCrawler, SourceImport:
		return true
	}
	return false
}

// ValidateClassify checks that a collected document may be (re)classified.
// Classification is allowed while the document is still in the intake
// pipeline: freshly collected or already classified, but not once it has
// entered approval or been discarded.
func ValidateClassify(collectedID string, s CollectionStatus, categoryIDs []string) *errors.AppError {
	if len(categoryIDs) == 0 {
		return errors.Validation(map[string]string{
			"category_ids": "at least one category is required",
		})
	}

	if s != CollectionCollected && s != CollectionClassified {
		return errors.InvalidState(collectedID, string(s), "classify")
	}
	return nil
}

// ValidateSendToApproval checks that a collected document may be promoted
// into the approval workflow. Only classified documents qualify.
func ValidateSendToApproval(collectedID string, s CollectionStatus) *errors.AppError {
	if s != CollectionClassified {
		return errors.InvalidState(collectedID, string(s), "send_to_approval")
	}
	return nil
}

// ValidateDiscard checks that a collected document may be dropped from
// the pipeline. Only raw uploads qualify; a classified document carries
// curation work and must be reclassified or submitted instead.
func ValidateDiscard(collectedID string, s CollectionStatus) *errors.AppError {
	if s != CollectionCollected {
		return errors.InvalidState(collectedID, string(s), "discard")
	}
	return nil
}
