package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/pharmaelevate/portal-api/internal/models"
)

const imageColumns = `i.id, i.album_id, i.caption, i.url, i.public_id, i.content_hash, i.mime_type, i.size_bytes, i.uploaded_by, COALESCE(u.username, '') AS uploader, i.status, i.likes, i.created_at, i.updated_at`

// ImageRepository persists gallery images.
type ImageRepository struct {
	db *sqlx.DB
}

// NewImageRepository constructs an ImageRepository.
func NewImageRepository(db *sqlx.DB) *ImageRepository {
	return &ImageRepository{db: db}
}

// Create inserts an image.
func (r *ImageRepository) Create(ctx context.Context, image *models.Image) error {
	if image.ID == "" {
		image.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	image.CreatedAt = now
	image.UpdatedAt = now
	const query = `INSERT INTO images (id, album_id, caption, url, public_id, content_hash, mime_type, size_bytes, uploaded_by, status, likes, created_at, updated_at)
		VALUES (:id, :album_id, :caption, :url, :public_id, :content_hash, :mime_type, :size_bytes, :uploaded_by, :status, 0, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, image); err != nil {
		return fmt.Errorf("create image: %w", err)
	}
	return nil
}

// FindByID returns an image by identifier.
func (r *ImageRepository) FindByID(ctx context.Context, id string) (*models.Image, error) {
	query := `SELECT ` + imageColumns + ` FROM images i LEFT JOIN users u ON u.id = i.uploaded_by WHERE i.id = $1`
	var image models.Image
	if err := r.db.GetContext(ctx, &image, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find image: %w", err)
	}
	return &image, nil
}

// ExistsByHash reports whether any image already stores this content.
func (r *ImageRepository) ExistsByHash(ctx context.Context, hash string) (bool, error) {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM images WHERE content_hash = $1)`, hash); err != nil {
		return false, fmt.Errorf("check image hash: %w", err)
	}
	return exists, nil
}

// ExistsByPublicID reports whether an image row already owns this storage key.
func (r *ImageRepository) ExistsByPublicID(ctx context.Context, publicID string) (bool, error) {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM images WHERE public_id = $1)`, publicID); err != nil {
		return false, fmt.Errorf("check image key: %w", err)
	}
	return exists, nil
}

// List returns images matching the filter with total count.
func (r *ImageRepository) List(ctx context.Context, filter models.ImageFilter) ([]models.Image, int, error) {
	where := []string{"1=1"}
	var args []interface{}
	if filter.AlbumID != "" {
		args = append(args, filter.AlbumID)
		where = append(where, fmt.Sprintf("i.album_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("i.status = $%d", len(args)))
	}
	clause := strings.Join(where, " AND ")

	page, size := models.NormalizePage(filter.Page, filter.PageSize)
	query := fmt.Sprintf(`SELECT %s FROM images i LEFT JOIN users u ON u.id = i.uploaded_by WHERE %s ORDER BY i.created_at DESC LIMIT %d OFFSET %d`,
		imageColumns, clause, size, (page-1)*size)

	var images []models.Image
	if err := r.db.SelectContext(ctx, &images, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list images: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM images i WHERE `+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("count images: %w", err)
	}
	return images, total, nil
}

// TransitionFromPending moves a pending image to status. It reports false
// when the image was not pending.
func (r *ImageRepository) TransitionFromPending(ctx context.Context, id string, status models.ModerationStatus) (bool, error) {
	const query = `UPDATE images SET status = $2, updated_at = $3 WHERE id = $1 AND status = 'pending'`
	res, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("moderate image: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("moderate image rows: %w", err)
	}
	return affected == 1, nil
}

// Delete hard deletes an image row.
func (r *ImageRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM images WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete image: %w", err)
	}
	return nil
}

// IncrementLikes bumps the like counter of an approved image.
func (r *ImageRepository) IncrementLikes(ctx context.Context, id string) (int64, error) {
	const query = `UPDATE images SET likes = likes + 1 WHERE id = $1 AND status = 'approved' RETURNING likes`
	var likes int64
	if err := r.db.GetContext(ctx, &likes, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, err
		}
		return 0, fmt.Errorf("increment likes: %w", err)
	}
	return likes, nil
}
