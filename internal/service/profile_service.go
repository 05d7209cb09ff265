package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/pharmaelevate/portal-api/internal/models"
	appErrors "github.com/pharmaelevate/portal-api/pkg/errors"
)

type profileRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	UsernameTaken(ctx context.Context, username, exceptID string) (bool, error)
	UpdateProfile(ctx context.Context, user *models.User) error
}

// ProfileService serves self-service settings and public member pages.
type ProfileService struct {
	repo      profileRepository
	audit     AuditRecorder
	validator *validator.Validate
	logger    *zap.Logger
}

// NewProfileService constructs a ProfileService.
func NewProfileService(repo profileRepository, audit AuditRecorder, validate *validator.Validate, logger *zap.Logger) *ProfileService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ProfileService{repo: repo, audit: audit, validator: validate, logger: logger}
}

// Get returns the caller's own profile.
func (s *ProfileService) Get(ctx context.Context, userID string) (*models.UserInfo, error) {
	user, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	info := models.NewUserInfo(user)
	return &info, nil
}

// Update applies the non-nil fields of req.
func (s *ProfileService) Update(ctx context.Context, userID string, req models.ProfileUpdateRequest) (*models.UserInfo, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid profile payload")
	}
	user, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	changed := []string{}
	if req.Username != nil {
		username, err := NormalizeUsername(*req.Username)
		if err != nil {
			return nil, err
		}
		if username != user.Username {
			taken, err := s.repo.UsernameTaken(ctx, username, user.ID)
			if err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check username")
			}
			if taken {
				return nil, appErrors.ErrUsernameTaken
			}
			user.Username = username
			changed = append(changed, "username")
		}
	}
	if req.Name != nil {
		user.Name = strings.TrimSpace(*req.Name)
		changed = append(changed, "name")
	}
	if req.Bio != nil {
		user.Bio = strings.TrimSpace(*req.Bio)
		changed = append(changed, "bio")
	}
	if req.Year != nil {
		user.Year = strings.TrimSpace(*req.Year)
		changed = append(changed, "year")
	}
	if req.AvatarURL != nil {
		user.AvatarURL = strings.TrimSpace(*req.AvatarURL)
		changed = append(changed, "avatarUrl")
	}
	if req.Socials != nil {
		user.Instagram = strings.TrimSpace(req.Socials.Instagram)
		user.LinkedIn = strings.TrimSpace(req.Socials.LinkedIn)
		user.GitHub = strings.TrimSpace(req.Socials.GitHub)
		changed = append(changed, "socials")
	}

	if len(changed) > 0 {
		if err := s.repo.UpdateProfile(ctx, user); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update profile")
		}
		if s.audit != nil {
			s.audit.Record(AuditEvent{Type: models.AuditProfileUpdated, ActorID: user.ID, TargetID: user.ID, Resource: "profile",
				Metadata: map[string]interface{}{"fields": changed}})
		}
	}
	info := models.NewUserInfo(user)
	return &info, nil
}

// Public returns the member page for username. Blocked and unverified
// accounts are reported as missing.
func (s *ProfileService) Public(ctx context.Context, username string) (*models.PublicProfile, error) {
	user, err := s.repo.FindByUsername(ctx, strings.ToLower(strings.TrimSpace(username)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load profile")
	}
	if user.IsBlocked || !user.IsVerified {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "profile not found")
	}
	return &models.PublicProfile{
		Username:  user.Username,
		Name:      user.Name,
		Bio:       user.Bio,
		Year:      user.Year,
		AvatarURL: user.AvatarURL,
		Socials:   user.Socials(),
		Role:      user.Role,
		JoinedAt:  user.CreatedAt,
	}, nil
}

func (s *ProfileService) load(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}
