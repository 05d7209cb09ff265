package dto

import (
	"time"

	"github.com/pharmaelevate/portal-api/internal/models"
)

// AdminDashboardResponse captures the aggregated admin dashboard payload.
type AdminDashboardResponse struct {
	Stats          models.DashboardStats `json:"stats"`
	System         models.SystemMetrics  `json:"system"`
	RecentActivity []models.AuditLog     `json:"recentActivity"`
	GeneratedAt    time.Time             `json:"generatedAt"`
}

// DashboardCounters is the cacheable part of the admin dashboard.
type DashboardCounters struct {
	Stats          models.DashboardStats `json:"stats"`
	RecentActivity []models.AuditLog     `json:"recentActivity"`
	GeneratedAt    time.Time             `json:"generatedAt"`
}
