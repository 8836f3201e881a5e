// Package domain holds the pure lifecycle rules for KMS documents.
// Everything here is side-effect free: functions validate a requested
// transition against the current state and either return the next state
// or a typed error. Persistence and locking are the service layer's job.
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/knowledgehub/kms-backend/pkg/errors"
)

// ApprovalLevels is the number of approval steps a document passes
// through before becoming active.
const ApprovalLevels = 3

// LifecycleStatus is the fine-grained document state driving the
// approval and expiry workflow.
type LifecycleStatus string

const (
	StatusDraft          LifecycleStatus = "draft"
	StatusPendingLevel1  LifecycleStatus = "pending_level_1"
	StatusPendingLevel2  LifecycleStatus = "pending_level_2"
	StatusPendingLevel3  LifecycleStatus = "pending_level_3"
	StatusRejectedLevel1 LifecycleStatus = "rejected_level_1"
	StatusRejectedLevel2 LifecycleStatus = "rejected_level_2"
	StatusRejectedLevel3 LifecycleStatus = "rejected_level_3"
	StatusActive         LifecycleStatus = "active"
	StatusNearExpired    LifecycleStatus = "near_expired"
	StatusExpired        LifecycleStatus = "expired"
	StatusArchived       LifecycleStatus = "archived"
	StatusHidden         LifecycleStatus = "hidden"
)

// DocumentStatus is the coarse display status projected from the
// lifecycle status.
type DocumentStatus string

const (
	DocDraft    DocumentStatus = "draft"
	DocPending  DocumentStatus = "pending"
	DocApproved DocumentStatus = "approved"
	DocRejected DocumentStatus = "rejected"
	DocExpired  DocumentStatus = "expired"
	DocArchived DocumentStatus = "archived"
)

var pendingByLevel = map[int]LifecycleStatus{
	1: StatusPendingLevel1,
	2: StatusPendingLevel2,
	3: StatusPendingLevel3,
}

var rejectedByLevel = map[int]LifecycleStatus{
	1: StatusRejectedLevel1,
	2: StatusRejectedLevel2,
	3: StatusRejectedLevel3,
}

// Valid reports whether s is a recognized lifecycle status.
func (s LifecycleStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusPendingLevel1, StatusPendingLevel2, StatusPendingLevel3,
		StatusRejectedLevel1, StatusRejectedLevel2, StatusRejectedLevel3,
		StatusActive, StatusNearExpired, StatusExpired, StatusArchived, StatusHidden:
		return true
	}
	return false
}

// PendingLevel returns the approval level if s is a pending status.
func (s LifecycleStatus) PendingLevel() (int, bool) {
	for level, status := range pendingByLevel {
		if s == status {
			return level, true
		}
	}
	return 0, false
}

// RejectedLevel returns the approval level if s is a rejected status.
func (s LifecycleStatus) RejectedLevel() (int, bool) {
	for level, status := range rejectedByLevel {
		if s == status {
			return level, true
		}
	}
	return 0, false
}

// IsPublished reports whether the document has reached active at least
// once. Only published documents participate in expiry recomputation.
func (s LifecycleStatus) IsPublished() bool {
	switch s {
	case StatusActive, StatusNearExpired, StatusExpired:
		return true
	}
	return false
}

// Project derives the coarse display status from the lifecycle status.
// The projection is total and deterministic: every lifecycle status maps
// to exactly one display status.
func (s LifecycleStatus) Project() DocumentStatus {
	if _, ok := s.PendingLevel(); ok {
		return DocPending
	}
	if _, ok := s.RejectedLevel(); ok {
		return DocRejected
	}

	switch s {
	case StatusActive, StatusNearExpired, StatusHidden:
		return DocApproved
	case StatusExpired:
		return DocExpired
	case StatusArchived:
		return DocArchived
	default:
		return DocDraft
	}
}

// ValidateSubmit checks that a document may enter the approval pipeline.
// Submission is allowed from draft and from any rejected level (resubmission
// restarts at level 1). A document without categories cannot be submitted.
func ValidateSubmit(documentID string, s LifecycleStatus, categoryIDs []string) *errors.AppError {
	if len(categoryIDs) == 0 {
		return errors.Validation(map[string]string{
			"category_ids": "document must be classified into at least one category before submission",
		})
	}

	if s == StatusDraft {
		return nil
	}
	if _, ok := s.RejectedLevel(); ok {
		return nil
	}

	return errors.InvalidState(documentID, string(s), "submit")
}

// NextOnApprove returns the state after a level approval.
// Approving level N requires the document to be pending at exactly level N;
// levels below the final one advance to the next pending level, the final
// level activates the document.
func NextOnApprove(documentID string, s LifecycleStatus, level int) (LifecycleStatus, *errors.AppError) {
	expected, ok := pendingByLevel[level]
	if !ok {
		return "", errors.Validation(map[string]string{
			"level": fmt.Sprintf("approval level must be between 1 and %d", ApprovalLevels),
		})
	}

	if s != expected {
		return "", errors.InvalidState(documentID, string(s), fmt.Sprintf("approve_level_%d", level))
	}

	if level == ApprovalLevels {
		return StatusActive, nil
	}
	return pendingByLevel[level+1], nil
}

// NextOnReject returns the state after a level rejection.
// Rejection requires the document to be pending at exactly that level and a
// non-blank reason.
func NextOnReject(documentID string, s LifecycleStatus, level int, reason string) (LifecycleStatus, *errors.AppError) {
	expected, ok := pendingByLevel[level]
	if !ok {
		return "", errors.Validation(map[string]string{
			"level": fmt.Sprintf("approval level must be between 1 and %d", ApprovalLevels),
		})
	}

	if strings.TrimSpace(reason) == "" {
		return "", errors.Validation(map[string]string{
			"reason": "a rejection reason is required",
		})
	}

	if s != expected {
		return "", errors.InvalidState(documentID, string(s), fmt.Sprintf("reject_level_%d", level))
	}

	return rejectedByLevel[level], nil
}

// ValidateExtend checks that a document's expiry may be pushed forward.
// Extension is only legal from near-expired or expired, and the new date
// must be strictly after the current expiry date.
func ValidateExtend(documentID string, s LifecycleStatus, currentExpiry *time.Time, newExpiry time.Time) *errors.AppError {
	if s != StatusNearExpired && s != StatusExpired {
		return errors.InvalidState(documentID, string(s), "extend")
	}

	if currentExpiry != nil && !newExpiry.After(*currentExpiry) {
		return errors.Validation(map[string]string{
			"new_expiry_date": "must be after the current expiry date",
		})
	}

	return nil
}

// ValidateCreateVersion checks that a new content revision may be created.
// Versioning shares the extend gate: only near-expired or expired documents
// are eligible.
func ValidateCreateVersion(documentID string, s LifecycleStatus, changeLog string) *errors.AppError {
	if s != StatusNearExpired && s != StatusExpired {
		return errors.InvalidState(documentID, string(s), "create_version")
	}

	if strings.TrimSpace(changeLog) == "" {
		return errors.Validation(map[string]string{
			"change_log": "a change log entry is required",
		})
	}

	return nil
}

// ValidateArchive checks that a document may be archived. Archiving is
// allowed from any state except archived itself and is irreversible.
func ValidateArchive(documentID string, s LifecycleStatus) *errors.AppError {
	if s == StatusArchived {
		return errors.InvalidState(documentID, string(s), "archive")
	}
	return nil
}

// ValidateHide checks the active -> hidden transition.
func ValidateHide(documentID string, s LifecycleStatus) *errors.AppError {
	if s != StatusActive && s != StatusNearExpired {
		return errors.InvalidState(documentID, string(s), "hide")
	}
	return nil
}

// ValidateUnhide checks the hidden -> active transition. The expiry
// scanner re-evaluates the document on its next pass.
func ValidateUnhide(documentID string, s LifecycleStatus) *errors.AppError {
	if s != StatusHidden {
		return errors.InvalidState(documentID, string(s), "unhide")
	}
	return nil
}
