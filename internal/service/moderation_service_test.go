package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmaelevate/portal-api/internal/models"
	appErrors "github.com/pharmaelevate/portal-api/pkg/errors"
)

type moderationFixture struct {
	svc    *ModerationService
	notes  *noteRepoStub
	images *imageRepoStub
	store  *memStore
	audit  *recordingAudit
}

func newModerationFixture() *moderationFixture {
	f := &moderationFixture{
		notes:  newNoteRepoStub(),
		images: newImageRepoStub(),
		store:  newMemStore(),
		audit:  &recordingAudit{},
	}
	f.svc = NewModerationService(f.notes, f.images, f.store, nil, f.audit, NewMetricsService(), nil, nil)
	return f
}

func (f *moderationFixture) addNote(status models.ModerationStatus) *models.Note {
	note := &models.Note{ID: uuid.NewString(), Title: "Anatomy", PublicID: "pharmaelevate/notes/" + uuid.NewString() + ".pdf", Status: status}
	f.notes.notes[note.ID] = note
	f.store.objects[note.PublicID] = pdfBytes("anatomy")
	return note
}

func TestModerateApproveIsIdempotent(t *testing.T) {
	f := newModerationFixture()
	note := f.addNote(models.StatusPending)
	req := models.ModerateRequest{ID: note.ID, Action: "approve", Type: "notes"}

	first, err := f.svc.Moderate(context.Background(), adminUser, req, RequestMeta{})
	require.NoError(t, err)
	assert.True(t, first.Changed)
	assert.Equal(t, models.StatusApproved, first.Status)
	assert.Equal(t, models.KindNote, first.Kind)

	second, err := f.svc.Moderate(context.Background(), adminUser, req, RequestMeta{})
	require.NoError(t, err)
	assert.False(t, second.Changed)
	assert.Equal(t, []string{models.AuditContentApproved}, f.audit.types())
}

func TestModerateRejectsReversal(t *testing.T) {
	f := newModerationFixture()
	note := f.addNote(models.StatusRejected)

	_, err := f.svc.Moderate(context.Background(), adminUser, models.ModerateRequest{ID: note.ID, Action: "approve", Type: "note"}, RequestMeta{})
	assert.ErrorIs(t, err, appErrors.ErrInvalidTransition)
	assert.Equal(t, models.StatusRejected, f.notes.notes[note.ID].Status)
}

func TestModerateRequiresAdminAndKnownContent(t *testing.T) {
	f := newModerationFixture()
	note := f.addNote(models.StatusPending)

	_, err := f.svc.Moderate(context.Background(), studentUser, models.ModerateRequest{ID: note.ID, Action: "approve", Type: "note"}, RequestMeta{})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = f.svc.Moderate(context.Background(), adminUser, models.ModerateRequest{ID: note.ID, Action: "publish", Type: "note"}, RequestMeta{})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = f.svc.Moderate(context.Background(), adminUser, models.ModerateRequest{ID: note.ID, Action: "approve", Type: "image"}, RequestMeta{})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	_, err = f.svc.Moderate(context.Background(), adminUser, models.ModerateRequest{ID: "abc", Action: "approve", Type: "note"}, RequestMeta{})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	assert.Equal(t, models.StatusPending, f.notes.notes[note.ID].Status)
}

func TestDeleteRemovesRemoteObjectFirst(t *testing.T) {
	f := newModerationFixture()
	note := f.addNote(models.StatusRejected)

	require.NoError(t, f.svc.Delete(context.Background(), adminUser, "notes", note.ID, RequestMeta{IP: "10.0.0.1"}))
	assert.Empty(t, f.notes.notes)
	assert.Empty(t, f.store.objects)
	assert.Equal(t, []string{note.PublicID}, f.store.destroyed)
	require.Len(t, f.audit.events, 1)
	assert.Equal(t, "10.0.0.1", f.audit.events[0].IPAddress)
	assert.Equal(t, true, f.audit.events[0].Metadata["remoteDeleted"])
}

func TestDeleteToleratesStorageFailure(t *testing.T) {
	f := newModerationFixture()
	note := f.addNote(models.StatusApproved)
	f.store.destroyErr = errors.New("provider timeout")

	require.NoError(t, f.svc.Delete(context.Background(), adminUser, "note", note.ID, RequestMeta{}))
	assert.Empty(t, f.notes.notes)
	assert.Equal(t, false, f.audit.events[0].Metadata["remoteDeleted"])

	err := f.svc.Delete(context.Background(), adminUser, "video", note.ID, RequestMeta{})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	err = f.svc.Delete(context.Background(), studentUser, "note", note.ID, RequestMeta{})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestListPendingMapsImages(t *testing.T) {
	f := newModerationFixture()
	pending := &models.Image{ID: uuid.NewString(), Caption: "Lab visit", URL: "https://files.test/a.jpg", Uploader: "asha", Status: models.StatusPending}
	f.images.images[pending.ID] = pending
	f.images.images["approved"] = &models.Image{ID: "approved", Status: models.StatusApproved}

	items, pagination, err := f.svc.ListPending(context.Background(), "images", 0, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, models.KindImage, items[0].Kind)
	assert.Equal(t, "Lab visit", items[0].Title)
	assert.Equal(t, "asha", items[0].Uploader)
	assert.Equal(t, 1, pagination.TotalCount)

	_, _, err = f.svc.ListPending(context.Background(), "videos", 1, 20)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}
