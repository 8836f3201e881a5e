package service

import (
	"context"
	"time"

	"github.com/knowledgehub/kms-backend/internal/kms/domain"
	"github.com/knowledgehub/kms-backend/internal/kms/repository"
	"github.com/knowledgehub/kms-backend/pkg/logger"
)

// DashboardService aggregates the overview numbers.
type DashboardService struct {
	stats     *repository.StatsRepository
	collected *repository.CollectedRepository
	documents *repository.DocumentRepository
	logger    *logger.Logger

	thresholdDays int
	now           func() time.Time
}

// NewDashboardService creates the dashboard service
func NewDashboardService(
	stats *repository.StatsRepository,
	collected *repository.CollectedRepository,
	documents *repository.DocumentRepository,
	log *logger.Logger,
	thresholdDays int,
) *DashboardService {
	if thresholdDays <= 0 {
		thresholdDays = domain.DefaultNearExpiryThresholdDays
	}
	return &DashboardService{
		stats:         stats,
		collected:     collected,
		documents:     documents,
		logger:        log.WithComponent("dashboard"),
		thresholdDays: thresholdDays,
		now:           time.Now,
	}
}

// Overview computes the dashboard aggregates in one pass.
func (s *DashboardService) Overview(ctx context.Context) (*repository.DashboardStats, error) {
	byStatus, err := s.stats.DocumentsByStatus(ctx)
	if err != nil {
		return nil, err
	}

	pending, err := s.stats.PendingApprovals(ctx)
	if err != nil {
		return nil, err
	}

	intake, err := s.collected.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}

	return &repository.DashboardStats{
		DocumentsByStatus: byStatus,
		PendingApprovals:  pending,
		ExpiringSoon:      byStatus[string(domain.StatusNearExpired)],
		Expired:           byStatus[string(domain.StatusExpired)],
		IntakeByStatus:    intake,
	}, nil
}

// ExpiringDocuments lists published documents ordered by expiry date,
// soonest first.
func (s *DashboardService) ExpiringDocuments(ctx context.Context) ([]*repository.Document, error) {
	return s.documents.ListExpiryCandidates(ctx)
}
