package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/knowledgehub/kms-backend/internal/kms/repository"
	"github.com/knowledgehub/kms-backend/internal/kms/service"
	"github.com/knowledgehub/kms-backend/pkg/httputil"
	"github.com/knowledgehub/kms-backend/pkg/logger"
)

// CollectionHandler handles the intake pipeline endpoints
type CollectionHandler struct {
	intake *service.IntakeService
	logger *logger.Logger
}

// NewCollectionHandler creates a new collection handler
func NewCollectionHandler(intake *service.IntakeService, log *logger.Logger) *CollectionHandler {
	return &CollectionHandler{
		intake: intake,
		logger: log,
	}
}

// List lists collected documents with optional filters
func (h *CollectionHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	filter := repository.CollectedFilter{
		SpaceID: r.URL.Query().Get("space_id"),
		Status:  r.URL.Query().Get("status"),
		Source:  r.URL.Query().Get("source"),
		Limit:   limit,
		Offset:  offset,
	}

	docs, err := h.intake.List(r.Context(), filter)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, docs)
}

// Get gets a collected document by ID
func (h *CollectionHandler) Get(w http.ResponseWriter, r *http.Request) {
	doc, err := h.intake.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, doc)
}

type uploadRequest struct {
	SpaceID         string               `json:"space_id" validate:"required,uuid"`
	Source          string               `json:"source" validate:"required"`
	SourceDetail    string               `json:"source_detail" validate:"required"`
	ContributorName string               `json:"contributor_name"`
	Files           []service.UploadFile `json:"files" validate:"required,min=1,dive"`
}

// Upload registers a batch of collected documents
func (h *CollectionHandler) Upload(w http.ResponseWriter, r *http.Request) {
	var req uploadRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	docs, err := h.intake.Upload(r.Context(), req.SpaceID, service.UploadBatch{
		Source:          req.Source,
		SourceDetail:    req.SourceDetail,
		ContributorName: req.ContributorName,
		Files:           req.Files,
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, docs)
}

type classifyRequest struct {
	DocumentIDs   []string   `json:"document_ids" validate:"required,min=1,dive,uuid"`
	CategoryIDs   []string   `json:"category_ids" validate:"required,min=1,dive,uuid"`
	Tags          []string   `json:"tags"`
	EffectiveDate *time.Time `json:"effective_date,omitempty"`
	ExpiryDate    *time.Time `json:"expiry_date,omitempty"`
	Notes         string     `json:"notes"`
}

// Classify assigns categories and curation attributes to a batch of
// collected documents
func (h *CollectionHandler) Classify(w http.ResponseWriter, r *http.Request) {
	var req classifyRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	docs, err := h.intake.Classify(r.Context(), req.DocumentIDs, service.ClassifyInput{
		CategoryIDs:   req.CategoryIDs,
		Tags:          req.Tags,
		EffectiveDate: req.EffectiveDate,
		ExpiryDate:    req.ExpiryDate,
		Notes:         req.Notes,
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, docs)
}

type sendToApprovalRequest struct {
	DocumentIDs []string   `json:"document_ids" validate:"required,min=1,dive,uuid"`
	ExpiryDate  *time.Time `json:"expiry_date,omitempty"`
}

// SendToApproval promotes a classified batch into the approval pipeline
func (h *CollectionHandler) SendToApproval(w http.ResponseWriter, r *http.Request) {
	var req sendToApprovalRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	docs, err := h.intake.SendToApproval(r.Context(), req.DocumentIDs, req.ExpiryDate)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, docs)
}

type discardRequest struct {
	DocumentIDs []string `json:"document_ids" validate:"required,min=1,dive,uuid"`
}

// Discard removes a batch from the intake pipeline
func (h *CollectionHandler) Discard(w http.ResponseWriter, r *http.Request) {
	var req discardRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	if err := h.intake.Discard(r.Context(), req.DocumentIDs); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.NoContent(w)
}
