package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/knowledgehub/kms-backend/internal/kms/service"
	"github.com/knowledgehub/kms-backend/pkg/httputil"
	"github.com/knowledgehub/kms-backend/pkg/logger"
)

// CategoryHandler handles taxonomy endpoints
type CategoryHandler struct {
	categories *service.CategoryService
	logger     *logger.Logger
}

// NewCategoryHandler creates a new category handler
func NewCategoryHandler(categories *service.CategoryService, log *logger.Logger) *CategoryHandler {
	return &CategoryHandler{
		categories: categories,
		logger:     log,
	}
}

// Tree returns the full category tree with document counts
func (h *CategoryHandler) Tree(w http.ResponseWriter, r *http.Request) {
	roots, err := h.categories.Tree(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, roots)
}

// Get gets a category by ID
func (h *CategoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	cat, err := h.categories.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, cat)
}

// Create creates a category
func (h *CategoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input service.CategoryInput
	if err := httputil.DecodeJSON(r, &input); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(input); err != nil {
		httputil.Error(w, err)
		return
	}

	cat, err := h.categories.Create(r.Context(), input)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, cat)
}

// Update updates a category
func (h *CategoryHandler) Update(w http.ResponseWriter, r *http.Request) {
	var input service.CategoryInput
	if err := httputil.DecodeJSON(r, &input); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(input); err != nil {
		httputil.Error(w, err)
		return
	}

	cat, err := h.categories.Update(r.Context(), chi.URLParam(r, "id"), input)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, cat)
}

// ToggleStatus flips a category between active and inactive
func (h *CategoryHandler) ToggleStatus(w http.ResponseWriter, r *http.Request) {
	cat, err := h.categories.ToggleStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, cat)
}

// Delete deletes an empty category
func (h *CategoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.categories.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.NoContent(w)
}
