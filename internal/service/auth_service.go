package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/pharmaelevate/portal-api/internal/models"
	"github.com/pharmaelevate/portal-api/internal/repository"
	appErrors "github.com/pharmaelevate/portal-api/pkg/errors"
	"github.com/pharmaelevate/portal-api/pkg/mailer"
)

type authUserRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	UsernameTaken(ctx context.Context, username, exceptID string) (bool, error)
	Create(ctx context.Context, user *models.User) error
	UpdateAuthState(ctx context.Context, user *models.User) error
	UpdateLastLogin(ctx context.Context, id string, ts time.Time) error
	UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error
	RevokeUserRefreshTokens(ctx context.Context, userID string) error
	CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error
	FindRefreshToken(ctx context.Context, tokenHash string) (*models.RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error
}

var usernamePattern = regexp.MustCompile(`^[a-z0-9_.]{3,20}$`)

var reservedUsernames = map[string]struct{}{
	"admin": {}, "administrator": {}, "root": {}, "system": {}, "support": {}, "help": {},
	"moderator": {}, "mod": {}, "staff": {}, "superadmin": {}, "pharmaelevate": {}, "api": {},
	"null": {}, "undefined": {}, "me": {}, "settings": {}, "login": {}, "register": {},
}

// maxPasswordBytes is the bcrypt input limit.
const maxPasswordBytes = 72

// AuthConfig defines configuration for authentication flows.
type AuthConfig struct {
	AccessTokenSecret  string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
	Issuer             string
	Audience           []string
	SuperAdminEmail    string
	MinPasswordLen     int
	Production         bool
}

// AuthService provides the account lifecycle: registration, verification,
// password recovery and token sessions.
type AuthService struct {
	repo      authUserRepository
	otp       *OTPIssuer
	mail      mailer.Sender
	audit     AuditRecorder
	metrics   *MetricsService
	guard     *RoleGuard
	validator *validator.Validate
	logger    *zap.Logger
	config    AuthConfig
	now       func() time.Time
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(repo authUserRepository, otp *OTPIssuer, mail mailer.Sender, audit AuditRecorder, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, config AuthConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if otp == nil {
		otp = NewOTPIssuer(0, 0)
	}
	if mail == nil {
		mail = mailer.NewLogMailer(logger, false)
	}
	if config.MinPasswordLen <= 0 {
		config.MinPasswordLen = 8
	}
	return &AuthService{
		repo:      repo,
		otp:       otp,
		mail:      mail,
		audit:     audit,
		metrics:   metrics,
		guard:     NewRoleGuard(config.SuperAdminEmail),
		validator: validate,
		logger:    logger,
		config:    config,
		now:       time.Now,
	}
}

// NormalizeUsername lower-cases and checks the username format and the reserved list.
func NormalizeUsername(raw string) (string, error) {
	username := strings.ToLower(strings.TrimSpace(raw))
	if !usernamePattern.MatchString(username) {
		return "", appErrors.ErrInvalidUsername
	}
	if _, reserved := reservedUsernames[username]; reserved {
		return "", appErrors.ErrReservedUsername
	}
	return username, nil
}

func (s *AuthService) checkPassword(password string) error {
	if len(password) < s.config.MinPasswordLen {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("password must be at least %d characters", s.config.MinPasswordLen))
	}
	if len(password) > maxPasswordBytes {
		return appErrors.Clone(appErrors.ErrValidation, "password must be at most 72 bytes")
	}
	return nil
}

// Register creates or refreshes an unverified account and mails a verification code.
func (s *AuthService) Register(ctx context.Context, req models.RegisterRequest) (*models.RegisterResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid registration payload")
	}
	username, err := NormalizeUsername(req.Username)
	if err != nil {
		return nil, err
	}
	if err := s.checkPassword(req.Password); err != nil {
		return nil, err
	}
	email := models.NormalizeEmail(req.Email)

	existing, err := s.repo.FindByEmail(ctx, email)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up email")
	}
	if existing != nil && existing.IsVerified {
		return nil, appErrors.ErrEmailTaken
	}
	if existing != nil {
		// Re-registering resends the verification code, so it shares the resend cooldown.
		if remaining := s.otp.Cooldown(existing, OTPPurposeVerify, s.now().UTC()); remaining > 0 {
			return nil, rateLimited(&OTPCooldownError{Remaining: remaining})
		}
	}

	exceptID := ""
	if existing != nil {
		exceptID = existing.ID
	}
	taken, err := s.repo.UsernameTaken(ctx, username, exceptID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check username")
	}
	if taken {
		return nil, appErrors.ErrUsernameTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}
	hashed := string(hash)
	now := s.now().UTC()

	user := existing
	if user == nil {
		user = &models.User{Email: email, Role: models.RoleStudent, Provider: models.ProviderCredentials}
		if s.guard.IsSuperAdmin(email) {
			user.Role = models.RoleAdmin
		}
	}
	user.Name = strings.TrimSpace(req.Name)
	user.Username = username
	user.PasswordHash = &hashed

	code, err := s.otp.Issue(user, OTPPurposeVerify, now)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to issue verification code")
	}

	if existing == nil {
		err = s.repo.Create(ctx, user)
	} else {
		err = s.repo.UpdateAuthState(ctx, user)
	}
	if err != nil {
		switch constraint := repository.UniqueConstraint(err); {
		case strings.Contains(constraint, "email"):
			return nil, appErrors.ErrEmailTaken
		case strings.Contains(constraint, "username"):
			return nil, appErrors.ErrUsernameTaken
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save account")
	}
	s.metrics.RecordOTP(OTPPurposeVerify, "issued")

	sent := true
	if err := s.mail.Send(ctx, otpMessage(user.Email, user.Name, code, OTPPurposeVerify, s.otp.TTL())); err != nil {
		sent = false
		fields := []zap.Field{zap.String("email", user.Email), zap.Error(err)}
		if !s.config.Production {
			fields = append(fields, zap.String("otp", code))
		}
		s.logger.Warn("verification email failed; registration kept", fields...)
	}

	s.record(AuditEvent{Type: models.AuditUserRegistered, ActorID: user.ID, TargetID: user.ID, Resource: "user", IPAddress: req.IP, UserAgent: req.UserAgent,
		Metadata: map[string]interface{}{"emailSent": sent}})

	return &models.RegisterResponse{User: models.NewUserInfo(user), VerificationSent: sent}, nil
}

// Verify consumes a verification code and marks the account verified.
func (s *AuthService) Verify(ctx context.Context, req models.VerifyRequest) (*models.UserInfo, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid verification payload")
	}
	user, err := s.findForCode(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	if user.IsVerified {
		info := models.NewUserInfo(user)
		return &info, nil
	}
	if err := s.otp.Consume(user, req.Code, OTPPurposeVerify, s.now().UTC()); err != nil {
		return nil, mapOTPError(err)
	}
	user.IsVerified = true
	if err := s.repo.UpdateAuthState(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify account")
	}

	s.record(AuditEvent{Type: models.AuditUserVerified, ActorID: user.ID, TargetID: user.ID, Resource: "user"})
	info := models.NewUserInfo(user)
	return &info, nil
}

// ResendCode mails a fresh code unless the cooldown is active. Unknown
// accounts receive the same success response.
func (s *AuthService) ResendCode(ctx context.Context, req models.ResendCodeRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid resend payload")
	}
	purpose, _ := ParseOTPPurpose(req.Purpose)

	user, err := s.repo.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up account")
	}
	if purpose == OTPPurposeVerify && user.IsVerified {
		return nil
	}

	code, err := s.otp.Resend(user, purpose, s.now().UTC())
	if err != nil {
		var cooldown *OTPCooldownError
		if errors.As(err, &cooldown) {
			s.metrics.RecordOTP(purpose, "rate_limited")
			return rateLimited(cooldown)
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to issue code")
	}
	return s.persistAndSend(ctx, user, code, purpose)
}

// ForgotPassword mails a reset code. Unknown accounts and an active cooldown
// both answer success so the endpoint cannot be used to probe accounts.
func (s *AuthService) ForgotPassword(ctx context.Context, req models.ForgotPasswordRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid forgot password payload")
	}
	user, err := s.repo.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Info("password reset requested for unknown email")
			return nil
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up account")
	}

	code, err := s.otp.Resend(user, OTPPurposeReset, s.now().UTC())
	if err != nil {
		if errors.Is(err, ErrOTPRateLimited) {
			s.metrics.RecordOTP(OTPPurposeReset, "rate_limited")
			return nil
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to issue reset code")
	}
	return s.persistAndSend(ctx, user, code, OTPPurposeReset)
}

func (s *AuthService) persistAndSend(ctx context.Context, user *models.User, code string, purpose OTPPurpose) error {
	if err := s.repo.UpdateAuthState(ctx, user); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store code")
	}
	s.metrics.RecordOTP(purpose, "issued")
	if err := s.mail.Send(ctx, otpMessage(user.Email, user.Name, code, purpose, s.otp.TTL())); err != nil {
		s.logger.Warn("code email failed", zap.String("purpose", string(purpose)), zap.String("user_id", user.ID), zap.Error(err))
		return appErrors.Wrap(err, appErrors.ErrEmailDelivery.Code, appErrors.ErrEmailDelivery.Status, appErrors.ErrEmailDelivery.Message)
	}
	return nil
}

// ResetPassword consumes a reset code, stores the new password and ends
// every existing session.
func (s *AuthService) ResetPassword(ctx context.Context, req models.ResetPasswordRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid reset password payload")
	}
	if err := s.checkPassword(req.NewPassword); err != nil {
		return err
	}
	user, err := s.findForCode(ctx, req.Email)
	if err != nil {
		return err
	}
	if err := s.otp.Consume(user, req.Code, OTPPurposeReset, s.now().UTC()); err != nil {
		return mapOTPError(err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}
	hashed := string(hash)
	user.PasswordHash = &hashed
	// Receiving the code proves control of the mailbox.
	user.IsVerified = true
	if err := s.repo.UpdateAuthState(ctx, user); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update password")
	}
	if err := s.repo.RevokeUserRefreshTokens(ctx, user.ID); err != nil {
		s.logger.Warn("failed to revoke refresh tokens after reset", zap.Error(err))
	}

	s.record(AuditEvent{Type: models.AuditPasswordReset, ActorID: user.ID, TargetID: user.ID, Resource: "auth"})
	return nil
}

// Login authenticates a user by email or username and returns issued tokens.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	identifier := strings.TrimSpace(req.Identifier)
	var (
		user *models.User
		err  error
	)
	if strings.Contains(identifier, "@") {
		user, err = s.repo.FindByEmail(ctx, identifier)
	} else {
		user, err = s.repo.FindByUsername(ctx, strings.ToLower(identifier))
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrInvalidCredentials
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}

	if !user.HasPassword() {
		return nil, appErrors.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, appErrors.ErrInvalidCredentials
	}
	if user.IsBlocked {
		return nil, appErrors.ErrAccountBlocked
	}
	if !user.IsVerified {
		return nil, appErrors.ErrEmailNotVerified
	}

	resp, err := s.issueSession(ctx, user, req.IP, req.UserAgent)
	if err != nil {
		return nil, err
	}
	s.record(AuditEvent{Type: models.AuditLogin, ActorID: user.ID, TargetID: user.ID, Resource: "auth", IPAddress: req.IP, UserAgent: req.UserAgent,
		Metadata: map[string]interface{}{"provider": string(models.ProviderCredentials)}})
	return resp, nil
}

// SocialSignIn signs in or provisions an account from a verified OAuth identity.
func (s *AuthService) SocialSignIn(ctx context.Context, profile models.SocialProfile) (*models.LoginResponse, error) {
	email := models.NormalizeEmail(profile.Email)
	if email == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "provider did not return an email address")
	}

	user, err := s.repo.FindByEmail(ctx, email)
	switch {
	case err == nil:
		if user.IsBlocked {
			return nil, appErrors.ErrAccountBlocked
		}
		if !user.IsVerified {
			user.IsVerified = true
			user.OTPHash, user.OTPExpiresAt, user.OTPSentAt = nil, nil, nil
			if err := s.repo.UpdateAuthState(ctx, user); err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify account")
			}
		}
	case errors.Is(err, sql.ErrNoRows):
		user, err = s.provisionSocialUser(ctx, email, profile)
		if err != nil {
			return nil, err
		}
	default:
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}

	resp, err := s.issueSession(ctx, user, profile.IP, profile.UserAgent)
	if err != nil {
		return nil, err
	}
	s.record(AuditEvent{Type: models.AuditSocialSignIn, ActorID: user.ID, TargetID: user.ID, Resource: "auth", IPAddress: profile.IP, UserAgent: profile.UserAgent,
		Metadata: map[string]interface{}{"provider": string(profile.Provider)}})
	return resp, nil
}

func (s *AuthService) provisionSocialUser(ctx context.Context, email string, profile models.SocialProfile) (*models.User, error) {
	username, err := s.availableUsername(ctx, email)
	if err != nil {
		return nil, err
	}
	provider := profile.Provider
	if provider == "" {
		provider = models.ProviderGoogle
	}
	user := &models.User{
		Email:      email,
		Username:   username,
		Name:       strings.TrimSpace(profile.Name),
		Role:       models.RoleStudent,
		IsVerified: true,
		Provider:   provider,
		AvatarURL:  profile.AvatarURL,
	}
	if s.guard.IsSuperAdmin(email) {
		user.Role = models.RoleAdmin
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create account")
	}
	s.record(AuditEvent{Type: models.AuditUserRegistered, ActorID: user.ID, TargetID: user.ID, Resource: "user", IPAddress: profile.IP, UserAgent: profile.UserAgent,
		Metadata: map[string]interface{}{"provider": string(provider)}})
	return user, nil
}

// availableUsername derives a free username from the email local part.
func (s *AuthService) availableUsername(ctx context.Context, email string) (string, error) {
	local := email
	if at := strings.IndexByte(email, '@'); at > 0 {
		local = email[:at]
	}
	var b strings.Builder
	for _, r := range strings.ToLower(local) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '.' {
			b.WriteRune(r)
		}
	}
	base := b.String()
	if len(base) > 15 {
		base = base[:15]
	}
	for len(base) < 3 {
		base += "_"
	}

	candidate := base
	for attempt := 0; attempt < 5; attempt++ {
		if _, err := NormalizeUsername(candidate); err == nil {
			taken, err := s.repo.UsernameTaken(ctx, candidate, "")
			if err != nil {
				return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check username")
			}
			if !taken {
				return candidate, nil
			}
		}
		n, err := rand.Int(rand.Reader, big.NewInt(10000))
		if err != nil {
			return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to derive username")
		}
		candidate = fmt.Sprintf("%s%04d", base, n.Int64())
	}
	return "", appErrors.Clone(appErrors.ErrUsernameTaken, "could not derive a free username")
}

// RefreshToken exchanges a refresh token for a new access token pair.
func (s *AuthService) RefreshToken(ctx context.Context, req models.RefreshTokenRequest) (*models.RefreshTokenResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid refresh payload")
	}

	storedToken, err := s.repo.FindRefreshToken(ctx, hashToken(req.RefreshToken))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "refresh token not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch refresh token")
	}

	if storedToken.Revoked || s.now().UTC().After(storedToken.ExpiresAt) {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "refresh token is expired or revoked")
	}

	user, err := s.repo.FindByID(ctx, storedToken.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "associated user no longer exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if user.IsBlocked {
		return nil, appErrors.ErrAccountBlocked
	}

	if err := s.repo.RevokeRefreshToken(ctx, storedToken.ID, s.now().UTC()); err != nil {
		s.logger.Warn("failed to revoke used refresh token", zap.Error(err))
	}

	session, err := s.issueSession(ctx, user, req.IP, req.UserAgent)
	if err != nil {
		return nil, err
	}
	return &models.RefreshTokenResponse{
		AccessToken:  session.AccessToken,
		RefreshToken: session.RefreshToken,
		ExpiresIn:    session.ExpiresIn,
		IssuedAt:     session.IssuedAt,
	}, nil
}

// Logout revokes the provided refresh token.
func (s *AuthService) Logout(ctx context.Context, userID string, req models.LogoutRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid logout payload")
	}
	storedToken, err := s.repo.FindRefreshToken(ctx, hashToken(req.RefreshToken))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrUnauthorized, "refresh token not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load refresh token")
	}

	if storedToken.UserID != userID {
		return appErrors.Clone(appErrors.ErrForbidden, "token does not belong to user")
	}

	if err := s.repo.RevokeRefreshToken(ctx, storedToken.ID, s.now().UTC()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revoke refresh token")
	}

	s.record(AuditEvent{Type: models.AuditLogout, ActorID: userID, TargetID: userID, Resource: "auth", IPAddress: req.IP, UserAgent: req.UserAgent})
	return nil
}

// ChangePassword changes the password for the given user ID.
func (s *AuthService) ChangePassword(ctx context.Context, userID string, req models.ChangePasswordRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid change password payload")
	}
	if err := s.checkPassword(req.NewPassword); err != nil {
		return err
	}

	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	if !user.HasPassword() {
		return appErrors.Clone(appErrors.ErrForbidden, "account has no password; use forgot password to set one")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(req.OldPassword)); err != nil {
		return appErrors.Clone(appErrors.ErrForbidden, "old password does not match")
	}

	newHash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	if err := s.repo.UpdatePassword(ctx, userID, string(newHash), s.now().UTC()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update password")
	}

	if err := s.repo.RevokeUserRefreshTokens(ctx, userID); err != nil {
		s.logger.Warn("failed to revoke refresh tokens after password change", zap.Error(err))
	}

	s.record(AuditEvent{Type: models.AuditPasswordChanged, ActorID: userID, TargetID: userID, Resource: "auth"})
	return nil
}

// Me returns the current account.
func (s *AuthService) Me(ctx context.Context, userID string) (*models.UserInfo, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	info := models.NewUserInfo(user)
	return &info, nil
}

// CurrentUser loads the caller's live account. A blocked or deleted account
// loses access at once, whatever its token says.
func (s *AuthService) CurrentUser(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "account no longer exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if user.IsBlocked {
		return nil, appErrors.ErrAccountBlocked
	}
	return user, nil
}

// ValidateToken parses and validates an access token returning the claims.
func (s *AuthService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.AccessTokenSecret), nil
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}

	return claims, nil
}

func (s *AuthService) findForCode(ctx context.Context, email string) (*models.User, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrInvalidCode
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up account")
	}
	return user, nil
}

func (s *AuthService) issueSession(ctx context.Context, user *models.User, ip, userAgent string) (*models.LoginResponse, error) {
	accessToken, _, err := s.generateAccessToken(user)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create access token")
	}

	refreshTokenValue, err := generateRefreshTokenString()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create refresh token")
	}

	now := s.now().UTC()
	refreshToken := &models.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		TokenHash: hashToken(refreshTokenValue),
		ExpiresAt: now.Add(s.config.RefreshTokenExpiry),
		CreatedAt: now,
		IPAddress: ip,
		UserAgent: userAgent,
	}
	if err := s.repo.CreateRefreshToken(ctx, refreshToken); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist refresh token")
	}

	if err := s.repo.UpdateLastLogin(ctx, user.ID, now); err != nil {
		s.logger.Warn("failed to update last login", zap.Error(err))
	}
	user.LastLogin = &now

	return &models.LoginResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshTokenValue,
		ExpiresIn:    int64(s.config.AccessTokenExpiry.Seconds()),
		IssuedAt:     now,
		User:         models.NewUserInfo(user),
	}, nil
}

func (s *AuthService) generateAccessToken(user *models.User) (string, time.Time, error) {
	issuedAt := s.now().UTC()
	expiresAt := issuedAt.Add(s.config.AccessTokenExpiry)
	claims := &models.JWTClaims{
		UserID:   user.ID,
		Role:     user.Role,
		Email:    user.Email,
		Username: user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   user.ID,
			Audience:  s.config.Audience,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.AccessTokenSecret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

func (s *AuthService) record(event AuditEvent) {
	if s.audit != nil {
		s.audit.Record(event)
	}
}

func generateRefreshTokenString() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// hashToken returns the hex SHA-256 digest stored for an opaque refresh token.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// mapOTPError folds the issuer's sentinels into client errors. Unknown and
// wrong codes share one response.
func mapOTPError(err error) error {
	switch {
	case errors.Is(err, ErrOTPExpired):
		return appErrors.ErrCodeExpired
	case errors.Is(err, ErrOTPNotFound), errors.Is(err, ErrOTPMismatch):
		return appErrors.ErrInvalidCode
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check code")
}

func rateLimited(cooldown *OTPCooldownError) error {
	return appErrors.WithMeta(appErrors.ErrRateLimited, map[string]interface{}{"retryAfterSeconds": cooldown.RetryAfterSeconds()})
}
