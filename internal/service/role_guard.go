package service

import (
	"strings"

	"github.com/pharmaelevate/portal-api/internal/models"
	appErrors "github.com/pharmaelevate/portal-api/pkg/errors"
)

// DefaultSuperAdminEmail is used when SUPER_ADMIN_EMAIL is unset.
const DefaultSuperAdminEmail = "pharmaelevate.admin@gmail.com"

// RoleDecision is the outcome of a permitted admin action.
type RoleDecision struct {
	Changed   bool
	Role      models.UserRole
	Blocked   bool
	Message   string
	AuditType string
}

// RoleGuard decides whether an admin may change another user's role or
// block flag. Rules are evaluated in order and the first failure wins.
type RoleGuard struct {
	superAdminEmail string
}

// NewRoleGuard constructs a guard for the configured super admin.
func NewRoleGuard(superAdminEmail string) *RoleGuard {
	email := models.NormalizeEmail(superAdminEmail)
	if email == "" {
		email = DefaultSuperAdminEmail
	}
	return &RoleGuard{superAdminEmail: email}
}

// IsSuperAdmin compares email against the super admin address, ignoring case.
func (g *RoleGuard) IsSuperAdmin(email string) bool {
	return models.NormalizeEmail(email) == g.superAdminEmail
}

// ParseAction upper-cases raw and reports whether it names a known action.
func ParseAction(raw string) (models.AdminAction, bool) {
	action := models.AdminAction(strings.ToUpper(strings.TrimSpace(raw)))
	return action, action.Valid()
}

// Authorize applies the checks that need no target: actor role and action.
func (g *RoleGuard) Authorize(actor *models.User, action models.AdminAction) error {
	if actor == nil || actor.Role != models.RoleAdmin {
		return appErrors.Clone(appErrors.ErrForbidden, "admin role required")
	}
	if !action.Valid() {
		return appErrors.Clone(appErrors.ErrInvalidAction, "action must be one of PROMOTE, DEMOTE, BLOCK, UNBLOCK")
	}
	return nil
}

// Evaluate runs the full rule set. target is nil when the user does not
// exist; activeAdmins is the number of unblocked admins.
func (g *RoleGuard) Evaluate(actor, target *models.User, action models.AdminAction, activeAdmins int) (RoleDecision, error) {
	if err := g.Authorize(actor, action); err != nil {
		return RoleDecision{}, err
	}
	if target == nil {
		return RoleDecision{}, appErrors.Clone(appErrors.ErrNotFound, "user not found")
	}
	if target.ID == actor.ID && (action == models.ActionBlock || action == models.ActionDemote) {
		return RoleDecision{}, appErrors.ErrSelfAction
	}
	if g.IsSuperAdmin(target.Email) {
		return RoleDecision{}, appErrors.ErrSuperAdminImmune
	}
	if (action == models.ActionPromote || action == models.ActionDemote) && !g.IsSuperAdmin(actor.Email) {
		return RoleDecision{}, appErrors.ErrInsufficientPrivilege
	}
	if target.Role == models.RoleAdmin && (action == models.ActionBlock || action == models.ActionDemote) && activeAdmins <= 1 {
		return RoleDecision{}, appErrors.ErrLastAdmin
	}

	decision := RoleDecision{Role: target.Role, Blocked: target.IsBlocked}
	switch action {
	case models.ActionPromote:
		if target.Role == models.RoleAdmin {
			decision.Message = "user is already an admin"
			return decision, nil
		}
		decision.Role = models.RoleAdmin
		decision.AuditType = models.AuditUserPromoted
		decision.Message = "user promoted to admin"
	case models.ActionDemote:
		if target.Role != models.RoleAdmin {
			decision.Message = "user is already not an admin"
			return decision, nil
		}
		decision.Role = models.RoleStudent
		decision.AuditType = models.AuditUserDemoted
		decision.Message = "user demoted to student"
	case models.ActionBlock:
		if target.IsBlocked {
			decision.Message = "user is already blocked"
			return decision, nil
		}
		decision.Blocked = true
		decision.AuditType = models.AuditUserBlocked
		decision.Message = "user blocked"
	case models.ActionUnblock:
		if !target.IsBlocked {
			decision.Message = "user is already unblocked"
			return decision, nil
		}
		decision.Blocked = false
		decision.AuditType = models.AuditUserUnblocked
		decision.Message = "user unblocked"
	}
	decision.Changed = true
	return decision, nil
}
