package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmaelevate/portal-api/internal/models"
	"github.com/pharmaelevate/portal-api/internal/repository"
	appErrors "github.com/pharmaelevate/portal-api/pkg/errors"
)

func newTestCache(t *testing.T) *CacheService {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCacheService(repository.NewCacheRepository(client, "test:"), NewMetricsService(), time.Minute, nil, true)
}

func TestListNotesServesApprovedFromCache(t *testing.T) {
	notes := newNoteRepoStub()
	approved := &models.Note{ID: uuid.NewString(), Title: "Pharmaceutics", Semester: 2, Status: models.StatusApproved, FileURL: "https://files.test/p.pdf"}
	notes.notes[approved.ID] = approved
	notes.notes["pending"] = &models.Note{ID: "pending", Semester: 2, Status: models.StatusPending}
	cache := newTestCache(t)
	svc := NewLibraryService(notes, cache, nil)
	ctx := context.Background()

	filter := models.NoteFilter{Semester: 2, Status: models.StatusPending}
	first, err := svc.ListNotes(ctx, filter)
	require.NoError(t, err)
	require.Len(t, first.Items, 1)
	assert.Equal(t, approved.ID, first.Items[0].ID)
	assert.Equal(t, 1, first.Pagination.TotalCount)

	second, err := svc.ListNotes(ctx, filter)
	require.NoError(t, err)
	assert.Equal(t, first.Items[0].Title, second.Items[0].Title)
	assert.Equal(t, 1, notes.lists)

	cache.InvalidateContent(ctx, models.KindNote)
	_, err = svc.ListNotes(ctx, filter)
	require.NoError(t, err)
	assert.Equal(t, 2, notes.lists)
}

func TestListNotesValidatesSemester(t *testing.T) {
	svc := NewLibraryService(newNoteRepoStub(), nil, nil)
	_, err := svc.ListNotes(context.Background(), models.NoteFilter{Semester: 9})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	empty, err := svc.ListNotes(context.Background(), models.NoteFilter{})
	require.NoError(t, err)
	assert.NotNil(t, empty.Items)
	assert.Empty(t, empty.Items)
}

func TestDownloadCountsApprovedOnly(t *testing.T) {
	notes := newNoteRepoStub()
	approved := &models.Note{ID: uuid.NewString(), Status: models.StatusApproved, FileURL: "https://files.test/a.pdf"}
	pending := &models.Note{ID: uuid.NewString(), Status: models.StatusPending, FileURL: "https://files.test/b.pdf"}
	notes.notes[approved.ID] = approved
	notes.notes[pending.ID] = pending
	svc := NewLibraryService(notes, nil, nil)

	url, err := svc.Download(context.Background(), approved.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://files.test/a.pdf", url)
	assert.Equal(t, int64(1), approved.Downloads)

	_, err = svc.Download(context.Background(), pending.ID)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	_, err = svc.Download(context.Background(), "../etc")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}
