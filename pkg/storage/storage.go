package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrObjectNotFound is returned when a key has no stored object.
var ErrObjectNotFound = errors.New("object not found")

// Object describes a stored blob.
type Object struct {
	Key         string
	URL         string
	Size        int64
	ContentType string
}

// PresignedUpload carries everything a client needs to PUT bytes directly to
// the object store.
type PresignedUpload struct {
	Key       string            `json:"key"`
	URL       string            `json:"url"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers,omitempty"`
	ExpiresAt time.Time         `json:"expiresAt"`
}

// ObjectStore abstracts remote file hosting.
type ObjectStore interface {
	Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) (Object, error)
	Destroy(ctx context.Context, key string) error
	Stat(ctx context.Context, key string) (Object, error)
	PresignPut(ctx context.Context, ticket Ticket, ttl time.Duration) (PresignedUpload, error)
	URL(key string) string
}

// NewKey builds a collision-free object key below root/folder keeping the
// extension of the original filename.
func NewKey(root, folder, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	if len(ext) > 8 {
		ext = ""
	}
	parts := make([]string, 0, 3)
	if root = strings.Trim(root, "/"); root != "" {
		parts = append(parts, root)
	}
	if folder = strings.Trim(folder, "/"); folder != "" {
		parts = append(parts, folder)
	}
	parts = append(parts, uuid.NewString()+ext)
	return strings.Join(parts, "/")
}

// KeyInFolder reports whether key lives directly under root/folder.
func KeyInFolder(key, root, folder string) bool {
	prefix := strings.Trim(strings.Join([]string{strings.Trim(root, "/"), strings.Trim(folder, "/")}, "/"), "/") + "/"
	if !strings.HasPrefix(key, prefix) {
		return false
	}
	rest := strings.TrimPrefix(key, prefix)
	return rest != "" && !strings.Contains(rest, "/") && !strings.Contains(rest, "..")
}
