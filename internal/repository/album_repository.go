package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/pharmaelevate/portal-api/internal/models"
)

// AlbumRepository persists gallery albums.
type AlbumRepository struct {
	db *sqlx.DB
}

// NewAlbumRepository constructs an AlbumRepository.
func NewAlbumRepository(db *sqlx.DB) *AlbumRepository {
	return &AlbumRepository{db: db}
}

// Create inserts an album.
func (r *AlbumRepository) Create(ctx context.Context, album *models.Album) error {
	if album.ID == "" {
		album.ID = uuid.NewString()
	}
	album.CreatedAt = time.Now().UTC()
	const query = `INSERT INTO albums (id, name, description, created_by, created_at) VALUES (:id, :name, :description, :created_by, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, album); err != nil {
		return fmt.Errorf("create album: %w", err)
	}
	return nil
}

// Exists reports whether an album with id exists.
func (r *AlbumRepository) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM albums WHERE id = $1)`, id); err != nil {
		return false, fmt.Errorf("check album: %w", err)
	}
	return exists, nil
}

// FindByID returns an album with its approved image count.
func (r *AlbumRepository) FindByID(ctx context.Context, id string) (*models.Album, error) {
	const query = `SELECT a.id, a.name, a.description, a.created_by, a.created_at,
		(SELECT COUNT(*) FROM images i WHERE i.album_id = a.id AND i.status = 'approved') AS image_count,
		(SELECT i.url FROM images i WHERE i.album_id = a.id AND i.status = 'approved' ORDER BY i.created_at DESC LIMIT 1) AS cover_url
		FROM albums a WHERE a.id = $1`
	var album models.Album
	if err := r.db.GetContext(ctx, &album, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find album: %w", err)
	}
	return &album, nil
}

// List returns every album, newest first, with approved image counts and a cover.
func (r *AlbumRepository) List(ctx context.Context) ([]models.Album, error) {
	const query = `SELECT a.id, a.name, a.description, a.created_by, a.created_at,
		(SELECT COUNT(*) FROM images i WHERE i.album_id = a.id AND i.status = 'approved') AS image_count,
		(SELECT i.url FROM images i WHERE i.album_id = a.id AND i.status = 'approved' ORDER BY i.created_at DESC LIMIT 1) AS cover_url
		FROM albums a ORDER BY a.created_at DESC`
	var albums []models.Album
	if err := r.db.SelectContext(ctx, &albums, query); err != nil {
		return nil, fmt.Errorf("list albums: %w", err)
	}
	return albums, nil
}
