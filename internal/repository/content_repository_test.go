package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmaelevate/portal-api/internal/models"
)

func TestNoteTransitionFromPending(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNoteRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE notes SET status = $2, updated_at = $3 WHERE id = $1 AND status = 'pending'")).
		WithArgs("n1", models.StatusApproved, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE notes SET status = $2")).
		WithArgs("n1", models.StatusRejected, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	changed, err := repo.TransitionFromPending(context.Background(), "n1", models.StatusApproved)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repo.TransitionFromPending(context.Background(), "n1", models.StatusRejected)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNoteListApprovedBySemester(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNoteRepository(db)

	now := time.Now()
	cols := []string{"id", "title", "subject", "semester", "description", "file_url", "public_id", "content_hash", "mime_type", "size_bytes", "uploaded_by", "uploader", "status", "downloads", "created_at", "updated_at"}
	rows := sqlmock.NewRows(cols).AddRow("n1", "Pharmacology", "pharmacology", 3, "", "https://cdn/n1.pdf", "root/notes/n1.pdf", "abc", "application/pdf", 100, "u1", "student", "approved", 4, now, now)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE 1=1 AND n.status = $1 AND n.semester = $2 ORDER BY n.created_at DESC LIMIT 20 OFFSET 0")).
		WithArgs(models.StatusApproved, 3).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM notes n WHERE 1=1 AND n.status = $1 AND n.semester = $2")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	notes, total, err := repo.List(context.Background(), models.NoteFilter{Status: models.StatusApproved, Semester: 3})
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, 1, total)
	assert.Equal(t, "student", notes[0].Uploader)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNoteIncrementDownloadsOnlyApproved(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNoteRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE notes SET downloads = downloads + 1 WHERE id = $1 AND status = 'approved' RETURNING file_url")).
		WithArgs("pending-note").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.IncrementDownloads(context.Background(), "pending-note")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestImageExistsByHash(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewImageRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM images WHERE content_hash = $1)")).
		WithArgs("deadbeef").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.ExistsByHash(context.Background(), "deadbeef")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExistsByPublicID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM notes WHERE public_id = $1)")).
		WithArgs("root/notes/a.pdf").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM images WHERE public_id = $1)")).
		WithArgs("root/gallery/a.png").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	noteExists, err := NewNoteRepository(db).ExistsByPublicID(context.Background(), "root/notes/a.pdf")
	require.NoError(t, err)
	assert.True(t, noteExists)

	imageExists, err := NewImageRepository(db).ExistsByPublicID(context.Background(), "root/gallery/a.png")
	require.NoError(t, err)
	assert.False(t, imageExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestImageCreateAndLike(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewImageRepository(db)

	mock.ExpectExec("INSERT INTO images").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE images SET likes = likes + 1")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"likes"}).AddRow(1))

	image := &models.Image{AlbumID: "a1", URL: "https://cdn/x.png", PublicID: "root/gallery/x.png", ContentHash: "h", MimeType: "image/png", SizeBytes: 10, UploadedBy: "u1", Status: models.StatusApproved}
	require.NoError(t, repo.Create(context.Background(), image))
	assert.NotEmpty(t, image.ID)

	likes, err := repo.IncrementLikes(context.Background(), image.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), likes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAlbumList(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAlbumRepository(db)

	cover := "https://cdn/cover.png"
	rows := sqlmock.NewRows([]string{"id", "name", "description", "created_by", "created_at", "image_count", "cover_url"}).
		AddRow("a1", "Fresher's Day", "", nil, time.Now(), 3, cover).
		AddRow("a2", "Lab Tour", "", "u1", time.Now(), 0, nil)
	mock.ExpectQuery("FROM albums a ORDER BY a.created_at DESC").WillReturnRows(rows)

	albums, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, albums, 2)
	assert.Equal(t, 3, albums[0].ImageCount)
	require.NotNil(t, albums[0].CoverURL)
	assert.Nil(t, albums[1].CoverURL)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditPurgeOlderThan(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAuditRepository(db)

	cutoff := time.Now().Add(-90 * 24 * time.Hour)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM audit_logs WHERE created_at < $1")).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 7))

	n, err := repo.PurgeOlderThan(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditCreate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAuditRepository(db)

	mock.ExpectExec("INSERT INTO audit_logs").WillReturnResult(sqlmock.NewResult(1, 1))

	actor := "u1"
	entry := &models.AuditLog{Type: models.AuditUserPromoted, ActorID: &actor, Resource: "user", Metadata: types.JSONText(`{"role":"admin"}`)}
	require.NoError(t, repo.Create(context.Background(), entry))
	assert.NotEmpty(t, entry.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDashboardStats(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewDashboardRepository(db)

	cols := []string{"total_users", "verified_users", "blocked_users", "admins", "total_notes", "pending_notes", "total_images", "pending_images", "total_albums", "total_downloads"}
	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows(cols).AddRow(10, 8, 1, 2, 5, 1, 7, 2, 3, 40))

	stats, err := repo.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, stats.TotalUsers)
	assert.Equal(t, 2, stats.PendingImages)
	assert.NoError(t, mock.ExpectationsWereMet())
}
