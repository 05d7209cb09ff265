package storage

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// LocalStorage persists objects on disk under a base directory. It backs
// development setups where no S3 compatible endpoint is available.
type LocalStorage struct {
	baseDir   string
	publicURL string
	directURL string
	signer    *SignedURLSigner
}

// NewLocalStorage ensures the base directory exists and returns a handle.
// publicURL is where stored files are served from; directURL is the endpoint
// accepting signed PUT uploads.
func NewLocalStorage(baseDir, publicURL, directURL string, signer *SignedURLSigner) (*LocalStorage, error) {
	if baseDir == "" {
		baseDir = "./uploads"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve storage directory: %w", err)
	}
	return &LocalStorage{
		baseDir:   abs,
		publicURL: strings.TrimRight(publicURL, "/"),
		directURL: directURL,
		signer:    signer,
	}, nil
}

// Upload copies body into the file addressed by key.
func (s *LocalStorage) Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) (Object, error) {
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}
	path, err := s.resolve(key)
	if err != nil {
		return Object{}, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Object{}, fmt.Errorf("prepare storage directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return Object{}, fmt.Errorf("create object file: %w", err)
	}
	defer file.Close() //nolint:errcheck

	written, err := io.Copy(file, body)
	if err != nil {
		_ = os.Remove(path)
		return Object{}, fmt.Errorf("write object: %w", err)
	}
	if size > 0 && written != size {
		_ = os.Remove(path)
		return Object{}, fmt.Errorf("write object: short write %d of %d bytes", written, size)
	}
	return Object{Key: key, URL: s.URL(key), Size: written, ContentType: contentType}, nil
}

// Destroy removes a stored object if present.
func (s *LocalStorage) Destroy(ctx context.Context, key string) error {
	path, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

// Stat reports size and content type of a stored object.
func (s *LocalStorage) Stat(ctx context.Context, key string) (Object, error) {
	path, err := s.resolve(key)
	if err != nil {
		return Object{}, err
	}
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return Object{}, ErrObjectNotFound
	}
	if err != nil {
		return Object{}, fmt.Errorf("stat object: %w", err)
	}
	return Object{
		Key:         key,
		URL:         s.URL(key),
		Size:        info.Size(),
		ContentType: mime.TypeByExtension(filepath.Ext(path)),
	}, nil
}

// Open returns a read-only handle for the stored object.
func (s *LocalStorage) Open(key string) (*os.File, error) {
	path, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, ErrObjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open object: %w", err)
	}
	return file, nil
}

// PresignPut issues a signed URL for the direct upload endpoint. The whole
// ticket travels in the token so the receiver can check size and hash.
func (s *LocalStorage) PresignPut(ctx context.Context, ticket Ticket, ttl time.Duration) (PresignedUpload, error) {
	if s.signer == nil {
		return PresignedUpload{}, fmt.Errorf("direct uploads not configured")
	}
	token, expiresAt, err := s.signer.Generate(ticket, ttl)
	if err != nil {
		return PresignedUpload{}, err
	}
	return PresignedUpload{
		Key:       ticket.Key,
		URL:       s.directURL + "?token=" + url.QueryEscape(token),
		Method:    http.MethodPut,
		Headers:   map[string]string{"Content-Type": ticket.ContentType},
		ExpiresAt: expiresAt,
	}, nil
}

// ParseDirectToken validates a token previously issued by PresignPut.
func (s *LocalStorage) ParseDirectToken(token string) (Ticket, error) {
	if s.signer == nil {
		return Ticket{}, ErrInvalidTicket
	}
	return s.signer.Parse(token, false)
}

// URL returns the public address for key.
func (s *LocalStorage) URL(key string) string {
	return s.publicURL + "/" + strings.TrimLeft(key, "/")
}

// Dir exposes the storage root so it can be served statically.
func (s *LocalStorage) Dir() string {
	return s.baseDir
}

func (s *LocalStorage) resolve(key string) (string, error) {
	cleaned := filepath.Clean("/" + filepath.FromSlash(key))
	if cleaned == string(filepath.Separator) {
		return "", fmt.Errorf("empty object key")
	}
	path := filepath.Join(s.baseDir, cleaned)
	if !strings.HasPrefix(path, s.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("object key escapes storage root")
	}
	return path, nil
}
