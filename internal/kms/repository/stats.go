package repository

import (
	"context"

	"github.com/knowledgehub/kms-backend/internal/kms/domain"
	"github.com/knowledgehub/kms-backend/pkg/database"
)

// DashboardStats aggregates the numbers shown on the KMS overview page.
type DashboardStats struct {
	DocumentsByStatus map[string]int `json:"documents_by_status"`
	PendingApprovals  int            `json:"pending_approvals"`
	ExpiringSoon      int            `json:"expiring_soon"`
	Expired           int            `json:"expired"`
	IntakeByStatus    map[string]int `json:"intake_by_status"`
}

// StatsRepository computes dashboard aggregates
type StatsRepository struct {
	db *database.DB
}

// NewStatsRepository creates a new stats repository
func NewStatsRepository(db *database.DB) *StatsRepository {
	return &StatsRepository{db: db}
}

// DocumentsByStatus returns document counts grouped by lifecycle status
func (r *StatsRepository) DocumentsByStatus(ctx context.Context) (map[string]int, error) {
	query := `SELECT lifecycle_status, COUNT(*) FROM documents GROUP BY lifecycle_status`

	rows, err := r.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}

	return counts, rows.Err()
}

// PendingApprovals returns the number of documents waiting at any
// approval level.
func (r *StatsRepository) PendingApprovals(ctx context.Context) (int, error) {
	query := `SELECT COUNT(*) FROM documents WHERE lifecycle_status IN ($1, $2, $3)`

	var count int
	err := r.db.GetContext(ctx, &count, query,
		string(domain.StatusPendingLevel1), string(domain.StatusPendingLevel2), string(domain.StatusPendingLevel3),
	)
	if err != nil {
		return 0, err
	}

	return count, nil
}
