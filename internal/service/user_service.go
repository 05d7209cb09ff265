package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pharmaelevate/portal-api/internal/models"
	"github.com/pharmaelevate/portal-api/internal/repository"
	appErrors "github.com/pharmaelevate/portal-api/pkg/errors"
	"github.com/pharmaelevate/portal-api/pkg/export"
)

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	WithinAdminTx(ctx context.Context, fn func(tx repository.UserTx) error) error
}

// RequestMeta carries client details for audit entries.
type RequestMeta struct {
	IP        string
	UserAgent string
}

// UserService handles admin user management.
type UserService struct {
	repo    userRepository
	guard   *RoleGuard
	audit   AuditRecorder
	metrics *MetricsService
	logger  *zap.Logger
}

// NewUserService creates an instance of UserService.
func NewUserService(repo userRepository, guard *RoleGuard, audit AuditRecorder, metrics *MetricsService, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if guard == nil {
		guard = NewRoleGuard("")
	}
	return &UserService{repo: repo, guard: guard, audit: audit, metrics: metrics, logger: logger}
}

// List returns paginated users and pagination metadata.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.UserInfo, *models.Pagination, error) {
	filter.Page, filter.PageSize = models.NormalizePage(filter.Page, filter.PageSize)
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}
	out := make([]models.UserInfo, 0, len(users))
	for i := range users {
		out = append(out, models.NewUserInfo(&users[i]))
	}
	return out, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// ApplyAction runs a PROMOTE, DEMOTE, BLOCK or UNBLOCK through the role
// guard. The admin set and the target are row locked for the duration so
// concurrent removals cannot leave the portal without an active admin.
func (s *UserService) ApplyAction(ctx context.Context, actor *models.User, targetID, rawAction string, meta RequestMeta) (*models.UserActionResult, error) {
	action, _ := ParseAction(rawAction)
	if err := s.guard.Authorize(actor, action); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(targetID); err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
	}

	var (
		target   *models.User
		decision RoleDecision
	)
	err := s.repo.WithinAdminTx(ctx, func(tx repository.UserTx) error {
		activeAdmins, err := tx.LockActiveAdmins(ctx)
		if err != nil {
			return err
		}
		target, err = tx.FindByIDForUpdate(ctx, targetID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		decision, err = s.guard.Evaluate(actor, target, action, activeAdmins)
		if err != nil || !decision.Changed {
			return err
		}
		return tx.UpdateRoleAndBlock(ctx, target.ID, decision.Role, decision.Blocked)
	})
	if err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update user")
	}

	s.metrics.RecordAdminAction(action, decision.Changed)
	if decision.Changed {
		target.Role = decision.Role
		target.IsBlocked = decision.Blocked
		target.UpdatedAt = time.Now().UTC()
		if s.audit != nil {
			s.audit.Record(AuditEvent{
				Type:      decision.AuditType,
				ActorID:   actor.ID,
				TargetID:  target.ID,
				Resource:  "user",
				IPAddress: meta.IP,
				UserAgent: meta.UserAgent,
				Metadata:  map[string]interface{}{"action": string(action), "role": string(decision.Role), "blocked": decision.Blocked},
			})
		}
	}

	return &models.UserActionResult{User: models.NewUserInfo(target), Changed: decision.Changed, Message: decision.Message}, nil
}

const exportPageSize = 100

// Export renders every user matching filter as CSV or PDF.
func (s *UserService) Export(ctx context.Context, actor *models.User, format export.Format, filter models.UserFilter) ([]byte, string, error) {
	if actor == nil || !actor.IsAdmin() {
		return nil, "", appErrors.Clone(appErrors.ErrForbidden, "admin role required")
	}

	data := export.Dataset{
		Title:   "PharmaElevate members",
		Headers: []string{"Username", "Name", "Email", "Role", "Verified", "Blocked", "Provider", "Joined"},
	}
	filter.PageSize = exportPageSize
	for page := 1; ; page++ {
		filter.Page = page
		users, total, err := s.repo.List(ctx, filter)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
		}
		for _, u := range users {
			data.Rows = append(data.Rows, map[string]string{
				"Username": u.Username,
				"Name":     u.Name,
				"Email":    u.Email,
				"Role":     string(u.Role),
				"Verified": strconv.FormatBool(u.IsVerified),
				"Blocked":  strconv.FormatBool(u.IsBlocked),
				"Provider": string(u.Provider),
				"Joined":   u.CreatedAt.Format("2006-01-02"),
			})
		}
		if len(users) == 0 || page*exportPageSize >= total {
			break
		}
	}

	payload, err := export.Render(format, data)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	if s.audit != nil {
		s.audit.Record(AuditEvent{Type: models.AuditUserExported, ActorID: actor.ID, Resource: "user",
			Metadata: map[string]interface{}{"format": string(format), "rows": len(data.Rows)}})
	}
	filename := fmt.Sprintf("users-%s.%s", time.Now().UTC().Format("20060102"), format)
	return payload, filename, nil
}
