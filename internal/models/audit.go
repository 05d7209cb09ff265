package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// Audit event types.
const (
	AuditUserRegistered   = "USER_REGISTERED"
	AuditUserVerified     = "USER_VERIFIED"
	AuditLogin            = "LOGIN"
	AuditLogout           = "LOGOUT"
	AuditPasswordChanged  = "PASSWORD_CHANGED"
	AuditPasswordReset    = "PASSWORD_RESET"
	AuditSocialSignIn     = "SOCIAL_SIGN_IN"
	AuditProfileUpdated   = "PROFILE_UPDATED"
	AuditUserPromoted     = "USER_PROMOTED"
	AuditUserDemoted      = "USER_DEMOTED"
	AuditUserBlocked      = "USER_BLOCKED"
	AuditUserUnblocked    = "USER_UNBLOCKED"
	AuditUserExported     = "USER_EXPORTED"
	AuditUsersViewed      = "USERS_VIEWED"
	AuditContentUploaded  = "CONTENT_UPLOADED"
	AuditContentApproved  = "CONTENT_APPROVED"
	AuditContentRejected  = "CONTENT_REJECTED"
	AuditContentDeleted   = "CONTENT_DELETED"
	AuditAlbumCreated     = "ALBUM_CREATED"
	AuditCompensationFail = "UPLOAD_COMPENSATION_FAILED"
)

// AuditLog represents an append-only audit trail record.
type AuditLog struct {
	ID        string         `db:"id" json:"id"`
	Type      string         `db:"type" json:"type"`
	ActorID   *string        `db:"actor_id" json:"actorId,omitempty"`
	TargetID  *string        `db:"target_id" json:"targetId,omitempty"`
	Resource  string         `db:"resource" json:"resource"`
	Metadata  types.JSONText `db:"metadata" json:"metadata,omitempty"`
	IPAddress string         `db:"ip_address" json:"ipAddress"`
	UserAgent string         `db:"user_agent" json:"userAgent"`
	CreatedAt time.Time      `db:"created_at" json:"createdAt"`
}
