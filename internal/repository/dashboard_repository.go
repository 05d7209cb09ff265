package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/pharmaelevate/portal-api/internal/models"
)

// DashboardRepository aggregates admin dashboard counters.
type DashboardRepository struct {
	db *sqlx.DB
}

// NewDashboardRepository constructs a DashboardRepository.
func NewDashboardRepository(db *sqlx.DB) *DashboardRepository {
	return &DashboardRepository{db: db}
}

// Stats returns all counters in a single round trip.
func (r *DashboardRepository) Stats(ctx context.Context) (*models.DashboardStats, error) {
	const query = `SELECT
		(SELECT COUNT(*) FROM users) AS total_users,
		(SELECT COUNT(*) FROM users WHERE is_verified) AS verified_users,
		(SELECT COUNT(*) FROM users WHERE is_blocked) AS blocked_users,
		(SELECT COUNT(*) FROM users WHERE role = 'admin' AND NOT is_blocked) AS admins,
		(SELECT COUNT(*) FROM notes) AS total_notes,
		(SELECT COUNT(*) FROM notes WHERE status = 'pending') AS pending_notes,
		(SELECT COUNT(*) FROM images) AS total_images,
		(SELECT COUNT(*) FROM images WHERE status = 'pending') AS pending_images,
		(SELECT COUNT(*) FROM albums) AS total_albums,
		(SELECT COALESCE(SUM(downloads), 0) FROM notes) AS total_downloads`
	var stats models.DashboardStats
	if err := r.db.GetContext(ctx, &stats, query); err != nil {
		return nil, fmt.Errorf("dashboard stats: %w", err)
	}
	return &stats, nil
}
