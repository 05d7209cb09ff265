package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmaelevate/portal-api/internal/models"
	appErrors "github.com/pharmaelevate/portal-api/pkg/errors"
)

func (r *albumRepoStub) Create(ctx context.Context, album *models.Album) error {
	for _, existing := range r.albums {
		if existing.Name == album.Name {
			return fmt.Errorf("create album: %w", &pq.Error{Code: "23505", Constraint: "albums_name_key"})
		}
	}
	if album.ID == "" {
		album.ID = uuid.NewString()
	}
	clone := *album
	r.albums[album.ID] = &clone
	return nil
}

func (r *albumRepoStub) List(ctx context.Context) ([]models.Album, error) {
	out := make([]models.Album, 0, len(r.albums))
	for _, a := range r.albums {
		out = append(out, *a)
	}
	return out, nil
}

type galleryFixture struct {
	svc    *GalleryService
	albums *albumRepoStub
	images *imageRepoStub
	audit  *recordingAudit
}

func newGalleryFixture(cache *CacheService) *galleryFixture {
	f := &galleryFixture{
		albums: &albumRepoStub{albums: map[string]*models.Album{}},
		images: newImageRepoStub(),
		audit:  &recordingAudit{},
	}
	f.svc = NewGalleryService(f.albums, f.images, cache, f.audit, nil, nil)
	return f
}

func TestCreateAlbum(t *testing.T) {
	f := newGalleryFixture(nil)
	ctx := context.Background()

	_, err := f.svc.CreateAlbum(ctx, studentUser, models.CreateAlbumRequest{Name: "Convocation"})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = f.svc.CreateAlbum(ctx, adminUser, models.CreateAlbumRequest{Name: "  x "})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	album, err := f.svc.CreateAlbum(ctx, adminUser, models.CreateAlbumRequest{Name: " Convocation ", Description: "2026 batch"})
	require.NoError(t, err)
	assert.Equal(t, "Convocation", album.Name)
	require.NotNil(t, album.CreatedBy)
	assert.Equal(t, adminUser.ID, *album.CreatedBy)
	assert.Equal(t, []string{models.AuditAlbumCreated}, f.audit.types())

	_, err = f.svc.CreateAlbum(ctx, adminUser, models.CreateAlbumRequest{Name: "Convocation"})
	assert.ErrorIs(t, err, appErrors.ErrConflict)
}

func TestListAlbumsInvalidatedByCreate(t *testing.T) {
	f := newGalleryFixture(newTestCache(t))
	ctx := context.Background()

	albums, err := f.svc.ListAlbums(ctx)
	require.NoError(t, err)
	assert.Empty(t, albums)

	_, err = f.svc.CreateAlbum(ctx, adminUser, models.CreateAlbumRequest{Name: "Sports meet"})
	require.NoError(t, err)

	albums, err = f.svc.ListAlbums(ctx)
	require.NoError(t, err)
	require.Len(t, albums, 1)
	assert.Equal(t, "Sports meet", albums[0].Name)
}

func TestListImagesApprovedOnly(t *testing.T) {
	f := newGalleryFixture(newTestCache(t))
	ctx := context.Background()
	album, err := f.svc.CreateAlbum(ctx, adminUser, models.CreateAlbumRequest{Name: "Lab"})
	require.NoError(t, err)
	shown := &models.Image{ID: uuid.NewString(), AlbumID: album.ID, Status: models.StatusApproved}
	f.images.images[shown.ID] = shown
	f.images.images["hidden"] = &models.Image{ID: "hidden", AlbumID: album.ID, Status: models.StatusPending}

	list, err := f.svc.ListImages(ctx, album.ID, 1, 10)
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	assert.Equal(t, shown.ID, list.Items[0].ID)

	_, err = f.svc.ListImages(ctx, album.ID, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, f.images.lists)

	_, err = f.svc.ListImages(ctx, uuid.NewString(), 1, 10)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	_, err = f.svc.ListImages(ctx, "lab", 1, 10)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestLikeImage(t *testing.T) {
	f := newGalleryFixture(nil)
	img := &models.Image{ID: uuid.NewString(), Status: models.StatusApproved, Likes: 4}
	f.images.images[img.ID] = img

	likes, err := f.svc.Like(context.Background(), img.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), likes)

	img.Status = models.StatusRejected
	_, err = f.svc.Like(context.Background(), img.ID)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}
