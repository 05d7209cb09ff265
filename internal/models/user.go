package models

import (
	"strings"
	"time"
)

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleStudent UserRole = "student"
	RoleAdmin   UserRole = "admin"
	RoleFaculty UserRole = "faculty"
)

// Valid reports whether the role is one of the known roles.
func (r UserRole) Valid() bool {
	switch r {
	case RoleStudent, RoleAdmin, RoleFaculty:
		return true
	}
	return false
}

// AuthProvider records how an account signs in.
type AuthProvider string

const (
	ProviderCredentials AuthProvider = "credentials"
	ProviderGoogle      AuthProvider = "google"
)

// User represents an application user stored in the users table.
type User struct {
	ID                  string       `db:"id" json:"id"`
	Email               string       `db:"email" json:"email"`
	Username            string       `db:"username" json:"username"`
	Name                string       `db:"name" json:"name"`
	PasswordHash        *string      `db:"password_hash" json:"-"`
	Role                UserRole     `db:"role" json:"role"`
	IsBlocked           bool         `db:"is_blocked" json:"isBlocked"`
	IsVerified          bool         `db:"is_verified" json:"isVerified"`
	OTPHash             *string      `db:"otp_hash" json:"-"`
	OTPExpiresAt        *time.Time   `db:"otp_expires_at" json:"-"`
	OTPSentAt           *time.Time   `db:"otp_sent_at" json:"-"`
	ResetTokenHash      *string      `db:"reset_token_hash" json:"-"`
	ResetTokenExpiresAt *time.Time   `db:"reset_token_expires_at" json:"-"`
	Bio                 string       `db:"bio" json:"bio"`
	Year                string       `db:"year" json:"year"`
	AvatarURL           string       `db:"avatar_url" json:"avatarUrl"`
	Instagram           string       `db:"instagram" json:"-"`
	LinkedIn            string       `db:"linkedin" json:"-"`
	GitHub              string       `db:"github" json:"-"`
	Provider            AuthProvider `db:"provider" json:"provider"`
	LastLogin           *time.Time   `db:"last_login" json:"lastLogin,omitempty"`
	CreatedAt           time.Time    `db:"created_at" json:"createdAt"`
	UpdatedAt           time.Time    `db:"updated_at" json:"updatedAt"`
}

// HasPassword reports whether the account can sign in with a password.
func (u *User) HasPassword() bool {
	return u != nil && u.PasswordHash != nil && *u.PasswordHash != ""
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// Socials returns the profile links as a value object.
func (u *User) Socials() Socials {
	return Socials{Instagram: u.Instagram, LinkedIn: u.LinkedIn, GitHub: u.GitHub}
}

// Socials groups a user's public profile links.
type Socials struct {
	Instagram string `json:"instagram"`
	LinkedIn  string `json:"linkedin"`
	GitHub    string `json:"github"`
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role      *UserRole
	Blocked   *bool
	Verified  *bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	TotalCount int `json:"totalCount"`
	TotalPages int `json:"totalPages"`
}

// NewPagination derives the page count from the total.
func NewPagination(page, pageSize, total int) *Pagination {
	pages := 0
	if pageSize > 0 {
		pages = (total + pageSize - 1) / pageSize
	}
	return &Pagination{Page: page, PageSize: pageSize, TotalCount: total, TotalPages: pages}
}

// NormalizePage clamps page and size to sane bounds.
func NormalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return page, size
}

// NormalizeEmail lower-cases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// PublicProfile is the subset of a user visible to other members.
type PublicProfile struct {
	Username  string    `json:"username"`
	Name      string    `json:"name"`
	Bio       string    `json:"bio"`
	Year      string    `json:"year"`
	AvatarURL string    `json:"avatarUrl"`
	Socials   Socials   `json:"socials"`
	Role      UserRole  `json:"role"`
	JoinedAt  time.Time `json:"joinedAt"`
}

// ProfileUpdateRequest carries self-service profile edits. Nil fields are left untouched.
type ProfileUpdateRequest struct {
	Name      *string  `json:"name" validate:"omitempty,min=1,max=80"`
	Username  *string  `json:"username" validate:"omitempty"`
	Bio       *string  `json:"bio" validate:"omitempty,max=500"`
	Year      *string  `json:"year" validate:"omitempty,max=40"`
	AvatarURL *string  `json:"avatarUrl" validate:"omitempty,url,max=500"`
	Socials   *Socials `json:"socials"`
}
