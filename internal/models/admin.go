package models

// AdminAction is a user management verb.
type AdminAction string

const (
	ActionPromote AdminAction = "PROMOTE"
	ActionDemote  AdminAction = "DEMOTE"
	ActionBlock   AdminAction = "BLOCK"
	ActionUnblock AdminAction = "UNBLOCK"
)

// Valid reports whether the action is known.
func (a AdminAction) Valid() bool {
	switch a {
	case ActionPromote, ActionDemote, ActionBlock, ActionUnblock:
		return true
	}
	return false
}

// UserActionRequest is the PATCH /admin/users/:id payload.
type UserActionRequest struct {
	Action string `json:"action" validate:"required"`
}

// UserActionResult reports what an admin action did.
type UserActionResult struct {
	User    UserInfo `json:"user"`
	Changed bool     `json:"changed"`
	Message string   `json:"message"`
}

// DashboardStats aggregates counters for the admin dashboard.
type DashboardStats struct {
	TotalUsers     int `db:"total_users" json:"totalUsers"`
	VerifiedUsers  int `db:"verified_users" json:"verifiedUsers"`
	BlockedUsers   int `db:"blocked_users" json:"blockedUsers"`
	Admins         int `db:"admins" json:"admins"`
	TotalNotes     int `db:"total_notes" json:"totalNotes"`
	PendingNotes   int `db:"pending_notes" json:"pendingNotes"`
	TotalImages    int `db:"total_images" json:"totalImages"`
	PendingImages  int `db:"pending_images" json:"pendingImages"`
	TotalAlbums    int `db:"total_albums" json:"totalAlbums"`
	TotalDownloads int `db:"total_downloads" json:"totalDownloads"`
}
