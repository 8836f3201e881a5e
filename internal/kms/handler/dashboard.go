package handler

import (
	"net/http"

	"github.com/knowledgehub/kms-backend/internal/kms/service"
	"github.com/knowledgehub/kms-backend/pkg/httputil"
	"github.com/knowledgehub/kms-backend/pkg/logger"
)

// DashboardHandler handles overview endpoints
type DashboardHandler struct {
	dashboard *service.DashboardService
	scanner   *service.ExpiryScanner
	logger    *logger.Logger
}

// NewDashboardHandler creates a new dashboard handler
func NewDashboardHandler(dashboard *service.DashboardService, scanner *service.ExpiryScanner, log *logger.Logger) *DashboardHandler {
	return &DashboardHandler{
		dashboard: dashboard,
		scanner:   scanner,
		logger:    log,
	}
}

// Overview returns document and intake counts for the dashboard
func (h *DashboardHandler) Overview(w http.ResponseWriter, r *http.Request) {
	stats, err := h.dashboard.Overview(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, stats)
}

// Expiring lists published documents ordered by expiry date
func (h *DashboardHandler) Expiring(w http.ResponseWriter, r *http.Request) {
	docs, err := h.dashboard.ExpiringDocuments(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, docs)
}

// RunExpiryScan triggers an expiry scan outside the regular schedule
func (h *DashboardHandler) RunExpiryScan(w http.ResponseWriter, r *http.Request) {
	result, err := h.scanner.ScanAll(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}
