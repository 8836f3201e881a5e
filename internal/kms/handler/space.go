package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/knowledgehub/kms-backend/internal/kms/service"
	"github.com/knowledgehub/kms-backend/pkg/httputil"
	"github.com/knowledgehub/kms-backend/pkg/logger"
)

// SpaceHandler handles space and membership endpoints
type SpaceHandler struct {
	spaces *service.SpaceService
	logger *logger.Logger
}

// NewSpaceHandler creates a new space handler
func NewSpaceHandler(spaces *service.SpaceService, log *logger.Logger) *SpaceHandler {
	return &SpaceHandler{
		spaces: spaces,
		logger: log,
	}
}

// List lists all spaces
func (h *SpaceHandler) List(w http.ResponseWriter, r *http.Request) {
	spaces, err := h.spaces.List(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, spaces)
}

// Get gets a space by ID
func (h *SpaceHandler) Get(w http.ResponseWriter, r *http.Request) {
	space, err := h.spaces.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, space)
}

// Create creates a space owned by the caller
func (h *SpaceHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input service.SpaceInput
	if err := httputil.DecodeJSON(r, &input); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(input); err != nil {
		httputil.Error(w, err)
		return
	}

	space, err := h.spaces.Create(r.Context(), input)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, space)
}

// Update updates a space
func (h *SpaceHandler) Update(w http.ResponseWriter, r *http.Request) {
	var input service.SpaceInput
	if err := httputil.DecodeJSON(r, &input); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(input); err != nil {
		httputil.Error(w, err)
		return
	}

	space, err := h.spaces.Update(r.Context(), chi.URLParam(r, "id"), input)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, space)
}

// Members lists the members of a space
func (h *SpaceHandler) Members(w http.ResponseWriter, r *http.Request) {
	members, err := h.spaces.Members(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, members)
}

type memberRequest struct {
	UserID string `json:"user_id" validate:"required,uuid"`
	Role   string `json:"role" validate:"required,oneof=owner moderator contributor viewer"`
}

// AddMember adds a user to a space
func (h *SpaceHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	var req memberRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	member, err := h.spaces.AddMember(r.Context(), chi.URLParam(r, "id"), req.UserID, req.Role)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, member)
}

type memberRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=owner moderator contributor viewer"`
}

// UpdateMemberRole changes a member's role
func (h *SpaceHandler) UpdateMemberRole(w http.ResponseWriter, r *http.Request) {
	var req memberRoleRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	if err := h.spaces.UpdateMemberRole(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "userID"), req.Role); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.NoContent(w)
}

// RemoveMember removes a user from a space
func (h *SpaceHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	if err := h.spaces.RemoveMember(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "userID")); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.NoContent(w)
}
