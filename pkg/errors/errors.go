package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Status  int                    `json:"status"`
	Meta    map[string]interface{} `json:"meta,omitempty"`
	Err     error                  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches errors sharing the same code so cloned errors compare equal to
// their predefined template.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrValidation            = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrReservedUsername      = New("RESERVED_USERNAME", http.StatusBadRequest, "username is reserved")
	ErrInvalidUsername       = New("INVALID_USERNAME", http.StatusBadRequest, "username must be 3-20 characters of a-z, 0-9, underscore or dot")
	ErrEmailTaken            = New("EMAIL_TAKEN", http.StatusConflict, "email already registered")
	ErrUsernameTaken         = New("USERNAME_TAKEN", http.StatusConflict, "username already taken")
	ErrInvalidCredentials    = New("INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid email or password")
	ErrEmailNotVerified      = New("EMAIL_NOT_VERIFIED", http.StatusForbidden, "email address not verified")
	ErrAccountBlocked        = New("ACCOUNT_BLOCKED", http.StatusForbidden, "account is blocked")
	ErrUnauthorized          = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrForbidden             = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrNotFound              = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrConflict              = New("CONFLICT", http.StatusConflict, "conflict")
	ErrInvalidCode           = New("INVALID_CODE", http.StatusBadRequest, "invalid or unknown code")
	ErrCodeExpired           = New("CODE_EXPIRED", http.StatusBadRequest, "code has expired")
	ErrRateLimited           = New("RATE_LIMITED", http.StatusTooManyRequests, "please wait before requesting another code")
	ErrDuplicate             = New("DUPLICATE", http.StatusConflict, "identical content already uploaded")
	ErrFileTooLarge          = New("FILE_TOO_LARGE", http.StatusRequestEntityTooLarge, "file exceeds size limit")
	ErrUnsupportedMedia      = New("UNSUPPORTED_MEDIA_TYPE", http.StatusUnsupportedMediaType, "unsupported media type")
	ErrStorageUnavailable    = New("STORAGE_UNAVAILABLE", http.StatusBadGateway, "object storage unavailable")
	ErrPersistenceFailed     = New("PERSISTENCE_FAILED", http.StatusInternalServerError, "failed to record upload")
	ErrEmailDelivery         = New("EMAIL_DELIVERY_FAILED", http.StatusBadGateway, "failed to deliver email")
	ErrInvalidAction         = New("INVALID_ACTION", http.StatusBadRequest, "invalid action")
	ErrSelfAction            = New("SELF_ACTION_FORBIDDEN", http.StatusBadRequest, "cannot perform this action on your own account")
	ErrSuperAdminImmune      = New("SUPER_ADMIN_IMMUNE", http.StatusForbidden, "the super admin account cannot be modified")
	ErrInsufficientPrivilege = New("INSUFFICIENT_PRIVILEGE", http.StatusForbidden, "only the super admin can change roles")
	ErrLastAdmin             = New("LAST_ADMIN_PROTECTED", http.StatusConflict, "cannot remove the last active admin")
	ErrInvalidTransition     = New("INVALID_TRANSITION", http.StatusConflict, "content already moderated")
	ErrDeprecated            = New("DEPRECATED", http.StatusGone, "endpoint retired")
	ErrInternal              = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")

	// ErrCacheMiss is returned by cache lookups when no entry exists.
	ErrCacheMiss = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// WithMeta returns a copy of err carrying extra client-visible metadata.
func WithMeta(err *Error, meta map[string]interface{}) *Error {
	clone := Clone(err, "")
	if clone == nil {
		return nil
	}
	clone.Meta = meta
	return clone
}
