package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmaelevate/portal-api/internal/models"
	appErrors "github.com/pharmaelevate/portal-api/pkg/errors"
	"github.com/pharmaelevate/portal-api/pkg/storage"
)

// memStore is an in-memory ObjectStore that counts every remote call.
type memStore struct {
	mu         sync.Mutex
	objects    map[string][]byte
	calls      int
	uploadErr  error
	destroyErr error
	destroyed  []string
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}}
}

func (m *memStore) Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) (storage.Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.uploadErr != nil {
		return storage.Object{}, m.uploadErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return storage.Object{}, err
	}
	m.objects[key] = data
	return storage.Object{Key: key, URL: m.URL(key), Size: int64(len(data)), ContentType: contentType}, nil
}

func (m *memStore) Destroy(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.destroyed = append(m.destroyed, key)
	if m.destroyErr != nil {
		return m.destroyErr
	}
	delete(m.objects, key)
	return nil
}

func (m *memStore) Stat(ctx context.Context, key string) (storage.Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	data, ok := m.objects[key]
	if !ok {
		return storage.Object{}, storage.ErrObjectNotFound
	}
	return storage.Object{Key: key, URL: m.URL(key), Size: int64(len(data))}, nil
}

func (m *memStore) PresignPut(ctx context.Context, ticket storage.Ticket, ttl time.Duration) (storage.PresignedUpload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return storage.PresignedUpload{Key: ticket.Key, URL: m.URL(ticket.Key) + "?signed=1", Method: http.MethodPut}, nil
}

func (m *memStore) URL(key string) string {
	return "https://files.test/" + key
}

func (m *memStore) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// noteRepoStub backs notes in memory for upload, moderation and library tests.
type noteRepoStub struct {
	notes     map[string]*models.Note
	createErr error
	listErr   error
	lists     int
}

func newNoteRepoStub() *noteRepoStub {
	return &noteRepoStub{notes: map[string]*models.Note{}}
}

func (r *noteRepoStub) Create(ctx context.Context, note *models.Note) error {
	if r.createErr != nil {
		return r.createErr
	}
	if note.ID == "" {
		note.ID = uuid.NewString()
	}
	clone := *note
	r.notes[note.ID] = &clone
	return nil
}

func (r *noteRepoStub) ExistsByHash(ctx context.Context, hash string) (bool, error) {
	for _, n := range r.notes {
		if n.ContentHash == hash {
			return true, nil
		}
	}
	return false, nil
}

func (r *noteRepoStub) ExistsByPublicID(ctx context.Context, publicID string) (bool, error) {
	for _, n := range r.notes {
		if n.PublicID == publicID {
			return true, nil
		}
	}
	return false, nil
}

func (r *noteRepoStub) FindByID(ctx context.Context, id string) (*models.Note, error) {
	if n, ok := r.notes[id]; ok {
		clone := *n
		return &clone, nil
	}
	return nil, sql.ErrNoRows
}

func (r *noteRepoStub) List(ctx context.Context, filter models.NoteFilter) ([]models.Note, int, error) {
	r.lists++
	if r.listErr != nil {
		return nil, 0, r.listErr
	}
	var out []models.Note
	for _, n := range r.notes {
		if filter.Status != "" && n.Status != filter.Status {
			continue
		}
		if filter.Semester > 0 && n.Semester != filter.Semester {
			continue
		}
		out = append(out, *n)
	}
	return out, len(out), nil
}

func (r *noteRepoStub) TransitionFromPending(ctx context.Context, id string, status models.ModerationStatus) (bool, error) {
	n, ok := r.notes[id]
	if !ok || n.Status != models.StatusPending {
		return false, nil
	}
	n.Status = status
	return true, nil
}

func (r *noteRepoStub) Delete(ctx context.Context, id string) error {
	delete(r.notes, id)
	return nil
}

func (r *noteRepoStub) IncrementDownloads(ctx context.Context, id string) (string, error) {
	n, ok := r.notes[id]
	if !ok || n.Status != models.StatusApproved {
		return "", sql.ErrNoRows
	}
	n.Downloads++
	return n.FileURL, nil
}

// imageRepoStub backs gallery images in memory.
type imageRepoStub struct {
	images    map[string]*models.Image
	createErr error
	lists     int
}

func newImageRepoStub() *imageRepoStub {
	return &imageRepoStub{images: map[string]*models.Image{}}
}

func (r *imageRepoStub) Create(ctx context.Context, image *models.Image) error {
	if r.createErr != nil {
		return r.createErr
	}
	if image.ID == "" {
		image.ID = uuid.NewString()
	}
	clone := *image
	r.images[image.ID] = &clone
	return nil
}

func (r *imageRepoStub) ExistsByHash(ctx context.Context, hash string) (bool, error) {
	for _, img := range r.images {
		if img.ContentHash == hash {
			return true, nil
		}
	}
	return false, nil
}

func (r *imageRepoStub) ExistsByPublicID(ctx context.Context, publicID string) (bool, error) {
	for _, img := range r.images {
		if img.PublicID == publicID {
			return true, nil
		}
	}
	return false, nil
}

func (r *imageRepoStub) FindByID(ctx context.Context, id string) (*models.Image, error) {
	if img, ok := r.images[id]; ok {
		clone := *img
		return &clone, nil
	}
	return nil, sql.ErrNoRows
}

func (r *imageRepoStub) List(ctx context.Context, filter models.ImageFilter) ([]models.Image, int, error) {
	r.lists++
	var out []models.Image
	for _, img := range r.images {
		if filter.Status != "" && img.Status != filter.Status {
			continue
		}
		if filter.AlbumID != "" && img.AlbumID != filter.AlbumID {
			continue
		}
		out = append(out, *img)
	}
	return out, len(out), nil
}

func (r *imageRepoStub) TransitionFromPending(ctx context.Context, id string, status models.ModerationStatus) (bool, error) {
	img, ok := r.images[id]
	if !ok || img.Status != models.StatusPending {
		return false, nil
	}
	img.Status = status
	return true, nil
}

func (r *imageRepoStub) Delete(ctx context.Context, id string) error {
	delete(r.images, id)
	return nil
}

func (r *imageRepoStub) IncrementLikes(ctx context.Context, id string) (int64, error) {
	img, ok := r.images[id]
	if !ok || img.Status != models.StatusApproved {
		return 0, sql.ErrNoRows
	}
	img.Likes++
	return img.Likes, nil
}

type albumRepoStub struct {
	albums map[string]*models.Album
}

func (r *albumRepoStub) Exists(ctx context.Context, id string) (bool, error) {
	_, ok := r.albums[id]
	return ok, nil
}

type uploadFixture struct {
	svc    *UploadService
	notes  *noteRepoStub
	images *imageRepoStub
	store  *memStore
	audit  *recordingAudit
	album  string
}

func newUploadFixture() *uploadFixture {
	album := uuid.NewString()
	f := &uploadFixture{
		notes:  newNoteRepoStub(),
		images: newImageRepoStub(),
		store:  newMemStore(),
		audit:  &recordingAudit{},
		album:  album,
	}
	albums := &albumRepoStub{albums: map[string]*models.Album{album: {ID: album, Name: "Fresher's Day"}}}
	signer := storage.NewSignedURLSigner("upload-secret", time.Minute)
	f.svc = NewUploadService(f.notes, f.images, albums, f.store, signer, nil, f.audit, NewMetricsService(), nil, nil,
		UploadConfig{RootFolder: "pharmaelevate"})
	return f
}

var (
	studentUser = &models.User{ID: "6d3a4b1e-0000-4000-8000-000000000001", Role: models.RoleStudent, IsVerified: true}
	adminUser   = &models.User{ID: "6d3a4b1e-0000-4000-8000-000000000002", Role: models.RoleAdmin, IsVerified: true}
)

func pdfBytes(body string) []byte {
	return []byte("%PDF-1.4\n" + body)
}

func jpegBytes(size int) []byte {
	data := make([]byte, size)
	copy(data, []byte{0xFF, 0xD8, 0xFF, 0xE0})
	return data
}

func noteMeta() models.UploadMeta {
	return models.UploadMeta{Kind: models.KindNote, Title: "Pharmacology unit 3", Subject: "Pharmacology", Semester: 4}
}

func sha(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func TestCommitRejectsOversizedImageBeforeStorage(t *testing.T) {
	f := newUploadFixture()
	meta := models.UploadMeta{Kind: models.KindImage, AlbumID: f.album}
	big := jpegBytes(12 << 20)

	_, err := f.svc.Commit(context.Background(), studentUser, UploadFile{Name: "big.jpg", Size: int64(len(big)), Body: bytes.NewReader(big)}, meta)
	assert.ErrorIs(t, err, appErrors.ErrFileTooLarge)

	// An unknown declared size is still caught while reading.
	_, err = f.svc.Commit(context.Background(), studentUser, UploadFile{Name: "big.jpg", Body: bytes.NewReader(big)}, meta)
	assert.ErrorIs(t, err, appErrors.ErrFileTooLarge)

	assert.Zero(t, f.store.callCount())
	assert.Empty(t, f.images.images)
}

func TestCommitCompensatesWhenRecordFails(t *testing.T) {
	f := newUploadFixture()
	f.notes.createErr = errors.New("connection reset")
	data := pdfBytes("unit 3")

	_, err := f.svc.Commit(context.Background(), studentUser, UploadFile{Name: "unit3.pdf", Size: int64(len(data)), Body: bytes.NewReader(data)}, noteMeta())
	assert.ErrorIs(t, err, appErrors.ErrPersistenceFailed)
	require.Len(t, f.store.destroyed, 1)
	assert.Empty(t, f.store.objects)
	assert.Empty(t, f.audit.types())
}

func TestCommitCompensationFailureIsAudited(t *testing.T) {
	f := newUploadFixture()
	f.notes.createErr = errors.New("connection reset")
	f.store.destroyErr = errors.New("storage down")
	data := pdfBytes("unit 4")

	_, err := f.svc.Commit(context.Background(), studentUser, UploadFile{Name: "unit4.pdf", Body: bytes.NewReader(data)}, noteMeta())
	assert.ErrorIs(t, err, appErrors.ErrPersistenceFailed)
	assert.Equal(t, []string{models.AuditCompensationFail}, f.audit.types())
}

func TestCommitStoresIdenticalBytes(t *testing.T) {
	f := newUploadFixture()
	data := pdfBytes("organic chemistry")

	result, err := f.svc.Commit(context.Background(), studentUser, UploadFile{Name: "Chem.PDF", Size: int64(len(data)), Body: bytes.NewReader(data)}, noteMeta())
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, result.Status)
	assert.Equal(t, sha(data), result.ContentHash)

	note := f.notes.notes[result.ID]
	require.NotNil(t, note)
	assert.Equal(t, result.URL, note.FileURL)
	assert.Equal(t, "application/pdf", note.MimeType)
	assert.True(t, storage.KeyInFolder(note.PublicID, "pharmaelevate", "notes"))
	assert.Equal(t, sha(f.store.objects[note.PublicID]), note.ContentHash)
	assert.Equal(t, []string{models.AuditContentUploaded}, f.audit.types())

	_, err = f.svc.Commit(context.Background(), studentUser, UploadFile{Name: "again.pdf", Body: bytes.NewReader(data)}, noteMeta())
	assert.ErrorIs(t, err, appErrors.ErrDuplicate)
}

func TestCommitAdminUploadsAreApproved(t *testing.T) {
	f := newUploadFixture()
	data := jpegBytes(2048)

	result, err := f.svc.Commit(context.Background(), adminUser, UploadFile{Name: "stage.jpg", Body: bytes.NewReader(data)},
		models.UploadMeta{Kind: models.KindImage, AlbumID: f.album, Caption: " Annual day "})
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, result.Status)
	assert.Equal(t, "Annual day", f.images.images[result.ID].Caption)
}

func TestCommitRejectsBeforeStorage(t *testing.T) {
	cases := map[string]struct {
		file UploadFile
		meta models.UploadMeta
		want *appErrors.Error
	}{
		"text passed off as pdf": {
			file: UploadFile{Name: "notes.pdf", Body: bytes.NewReader([]byte("plain text"))},
			meta: noteMeta(),
			want: appErrors.ErrUnsupportedMedia,
		},
		"pdf into gallery": {
			file: UploadFile{Name: "x.pdf", Body: bytes.NewReader(pdfBytes("x"))},
			meta: models.UploadMeta{Kind: models.KindImage, AlbumID: "00000000-0000-0000-0000-000000000000"},
			want: appErrors.ErrNotFound,
		},
		"note without semester": {
			file: UploadFile{Name: "x.pdf", Body: bytes.NewReader(pdfBytes("x"))},
			meta: models.UploadMeta{Kind: models.KindNote, Title: "t", Subject: "s"},
			want: appErrors.ErrValidation,
		},
		"unknown kind": {
			file: UploadFile{Name: "x.pdf", Body: bytes.NewReader(pdfBytes("x"))},
			meta: models.UploadMeta{Kind: "video"},
			want: appErrors.ErrValidation,
		},
		"empty file": {
			file: UploadFile{Name: "x.pdf", Body: bytes.NewReader(nil)},
			meta: noteMeta(),
			want: appErrors.ErrValidation,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			f := newUploadFixture()
			_, err := f.svc.Commit(context.Background(), studentUser, tc.file, tc.meta)
			assert.ErrorIs(t, err, tc.want)
			assert.Zero(t, f.store.callCount())
		})
	}
}

func TestCommitStorageFailure(t *testing.T) {
	f := newUploadFixture()
	f.store.uploadErr = errors.New("503 from provider")

	_, err := f.svc.Commit(context.Background(), studentUser, UploadFile{Name: "a.pdf", Body: bytes.NewReader(pdfBytes("a"))}, noteMeta())
	assert.ErrorIs(t, err, appErrors.ErrStorageUnavailable)
	assert.NotContains(t, appErrors.FromError(err).Message, "503")
	assert.Empty(t, f.notes.notes)
}

func TestSignRejectsDuplicateHash(t *testing.T) {
	f := newUploadFixture()
	data := pdfBytes("dup")
	f.notes.notes["existing"] = &models.Note{ID: "existing", ContentHash: sha(data), Status: models.StatusApproved}

	_, err := f.svc.Sign(context.Background(), studentUser, models.SignUploadRequest{
		Kind: models.KindNote, FileName: "dup.pdf", ContentType: "application/pdf", Size: int64(len(data)), ContentHash: sha(data),
	})
	assert.ErrorIs(t, err, appErrors.ErrDuplicate)
	assert.Zero(t, f.store.callCount())
}

func TestSignThenComplete(t *testing.T) {
	f := newUploadFixture()
	data := pdfBytes("direct")
	ctx := context.Background()

	signed, err := f.svc.Sign(ctx, studentUser, models.SignUploadRequest{
		Kind: models.KindNote, FileName: "direct.pdf", ContentType: "application/pdf; charset=binary", Size: int64(len(data)), ContentHash: sha(data),
	})
	require.NoError(t, err)
	assert.Equal(t, http.MethodPut, signed.Method)
	assert.True(t, storage.KeyInFolder(signed.Key, "pharmaelevate", "notes"))

	req := models.CompleteUploadRequest{Ticket: signed.Ticket, Meta: noteMeta()}
	_, err = f.svc.Complete(ctx, studentUser, req)
	assert.ErrorIs(t, err, appErrors.ErrValidation, "object not uploaded yet")

	f.store.objects[signed.Key] = data
	_, err = f.svc.Complete(ctx, adminUser, req)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	result, err := f.svc.Complete(ctx, studentUser, req)
	require.NoError(t, err)
	assert.Equal(t, sha(data), result.ContentHash)
	assert.Equal(t, "application/pdf", f.notes.notes[result.ID].MimeType)

	_, err = f.svc.Complete(ctx, studentUser, models.CompleteUploadRequest{Ticket: signed.Ticket + "x", Meta: noteMeta()})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestCompleteReplayKeepsRecordedObject(t *testing.T) {
	f := newUploadFixture()
	data := pdfBytes("replayed")
	ctx := context.Background()

	signed, err := f.svc.Sign(ctx, studentUser, models.SignUploadRequest{
		Kind: models.KindNote, FileName: "replayed.pdf", ContentType: "application/pdf", Size: int64(len(data)), ContentHash: sha(data),
	})
	require.NoError(t, err)
	f.store.objects[signed.Key] = data

	req := models.CompleteUploadRequest{Ticket: signed.Ticket, Meta: noteMeta()}
	first, err := f.svc.Complete(ctx, studentUser, req)
	require.NoError(t, err)

	_, err = f.svc.Complete(ctx, studentUser, req)
	assert.ErrorIs(t, err, appErrors.ErrDuplicate)
	assert.Empty(t, f.store.destroyed)
	assert.Equal(t, data, f.store.objects[signed.Key])
	require.Len(t, f.notes.notes, 1)
	assert.Equal(t, signed.Key, f.notes.notes[first.ID].PublicID)
}

func TestCompleteRaceOnKeyDoesNotDestroyObject(t *testing.T) {
	f := newUploadFixture()
	data := pdfBytes("raced")
	ctx := context.Background()

	signed, err := f.svc.Sign(ctx, studentUser, models.SignUploadRequest{
		Kind: models.KindNote, FileName: "raced.pdf", ContentType: "application/pdf", Size: int64(len(data)), ContentHash: sha(data),
	})
	require.NoError(t, err)
	f.store.objects[signed.Key] = data
	f.notes.createErr = &pq.Error{Code: "23505", Constraint: "notes_public_id_key"}

	_, err = f.svc.Complete(ctx, studentUser, models.CompleteUploadRequest{Ticket: signed.Ticket, Meta: noteMeta()})
	assert.ErrorIs(t, err, appErrors.ErrDuplicate)
	assert.Empty(t, f.store.destroyed)
	assert.Contains(t, f.store.objects, signed.Key)
}

func TestReceiveDirectVerifiesTicket(t *testing.T) {
	f := newUploadFixture()
	data := pdfBytes("direct body")
	signer := storage.NewSignedURLSigner("upload-secret", time.Minute)
	token, _, err := signer.Generate(storage.Ticket{
		Key:         storage.NewKey("pharmaelevate", "notes", "d.pdf"),
		Kind:        string(models.KindNote),
		ContentHash: sha(data),
		ContentType: "application/pdf",
		Size:        int64(len(data)),
		UploaderID:  studentUser.ID,
	}, time.Minute)
	require.NoError(t, err)

	tampered := append([]byte{}, data...)
	tampered[len(tampered)-1] = 'X'
	_, err = f.svc.ReceiveDirect(context.Background(), token, bytes.NewReader(tampered))
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = f.svc.ReceiveDirect(context.Background(), token, bytes.NewReader(append(data, '!')))
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	assert.Zero(t, f.store.callCount())

	obj, err := f.svc.ReceiveDirect(context.Background(), token, bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, data, f.store.objects[obj.Key])
}
