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

// DocumentHandler handles document and lifecycle endpoints
type DocumentHandler struct {
	documents *service.DocumentService
	lifecycle *service.LifecycleService
	logger    *logger.Logger
}

// NewDocumentHandler creates a new document handler
func NewDocumentHandler(documents *service.DocumentService, lifecycle *service.LifecycleService, log *logger.Logger) *DocumentHandler {
	return &DocumentHandler{
		documents: documents,
		lifecycle: lifecycle,
		logger:    log,
	}
}

// List lists documents with optional filters
func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	filter := repository.DocumentFilter{
		SpaceID:         r.URL.Query().Get("space_id"),
		LifecycleStatus: r.URL.Query().Get("status"),
		CategoryID:      r.URL.Query().Get("category_id"),
		OwnerID:         r.URL.Query().Get("owner_id"),
		Limit:           limit,
		Offset:          offset,
	}

	docs, err := h.documents.List(r.Context(), filter)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, docs)
}

// Get gets a document by ID
func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	doc, err := h.documents.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, doc)
}

// Create creates a new draft document
func (h *DocumentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input service.CreateDraftInput
	if err := httputil.DecodeJSON(r, &input); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(input); err != nil {
		httputil.Error(w, err)
		return
	}

	doc, err := h.documents.CreateDraft(r.Context(), input)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, doc)
}

// Update updates a draft document
func (h *DocumentHandler) Update(w http.ResponseWriter, r *http.Request) {
	var input service.UpdateDraftInput
	if err := httputil.DecodeJSON(r, &input); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(input); err != nil {
		httputil.Error(w, err)
		return
	}

	doc, err := h.documents.UpdateDraft(r.Context(), chi.URLParam(r, "id"), input)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, doc)
}

// Submit submits a document for approval
func (h *DocumentHandler) Submit(w http.ResponseWriter, r *http.Request) {
	doc, err := h.lifecycle.Submit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, doc)
}

type approveRequest struct {
	Level int `json:"level" validate:"required,min=1,max=3"`
}

// Approve records an approval at the given level
func (h *DocumentHandler) Approve(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	doc, err := h.lifecycle.Approve(r.Context(), chi.URLParam(r, "id"), req.Level)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, doc)
}

type rejectRequest struct {
	Level  int    `json:"level" validate:"required,min=1,max=3"`
	Reason string `json:"reason" validate:"required"`
}

// Reject records a rejection at the given level
func (h *DocumentHandler) Reject(w http.ResponseWriter, r *http.Request) {
	var req rejectRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	doc, err := h.lifecycle.Reject(r.Context(), chi.URLParam(r, "id"), req.Level, req.Reason)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, doc)
}

type extendRequest struct {
	ExpiryDate time.Time `json:"expiry_date" validate:"required"`
	Reason     string    `json:"reason"`
}

// Extend pushes a document's expiry date forward
func (h *DocumentHandler) Extend(w http.ResponseWriter, r *http.Request) {
	var req extendRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	doc, err := h.lifecycle.Extend(r.Context(), chi.URLParam(r, "id"), req.ExpiryDate, req.Reason)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, doc)
}

type createVersionRequest struct {
	Content    string    `json:"content" validate:"required"`
	ChangeLog  string    `json:"change_log" validate:"required"`
	ExpiryDate time.Time `json:"expiry_date" validate:"required"`
}

// CreateVersion publishes a new revision of an expiring document
func (h *DocumentHandler) CreateVersion(w http.ResponseWriter, r *http.Request) {
	var req createVersionRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	doc, err := h.lifecycle.CreateVersion(r.Context(), chi.URLParam(r, "id"), req.Content, req.ChangeLog, req.ExpiryDate)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, doc)
}

// Archive archives a document
func (h *DocumentHandler) Archive(w http.ResponseWriter, r *http.Request) {
	doc, err := h.lifecycle.Archive(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, doc)
}

// Hide removes a published document from regular listings
func (h *DocumentHandler) Hide(w http.ResponseWriter, r *http.Request) {
	doc, err := h.lifecycle.Hide(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, doc)
}

// Unhide restores a hidden document
func (h *DocumentHandler) Unhide(w http.ResponseWriter, r *http.Request) {
	doc, err := h.lifecycle.Unhide(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, doc)
}

// Versions lists the version history of a document
func (h *DocumentHandler) Versions(w http.ResponseWriter, r *http.Request) {
	versions, err := h.documents.Versions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, versions)
}

// Extensions lists the expiry extension history of a document
func (h *DocumentHandler) Extensions(w http.ResponseWriter, r *http.Request) {
	extensions, err := h.documents.Extensions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, extensions)
}

// Audit lists a document's audit trail, newest first
// GET /documents/{id}/audit
func (h *DocumentHandler) Audit(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 200 {
		limit = 50
	}

	entries, err := h.lifecycle.AuditTrail(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, entries)
}
