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

const noteColumns = `n.id, n.title, n.subject, n.semester, n.description, n.file_url, n.public_id, n.content_hash, n.mime_type, n.size_bytes, n.uploaded_by, COALESCE(u.username, '') AS uploader, n.status, n.downloads, n.created_at, n.updated_at`

// NoteRepository persists library notes.
type NoteRepository struct {
	db *sqlx.DB
}

// NewNoteRepository constructs a NoteRepository.
func NewNoteRepository(db *sqlx.DB) *NoteRepository {
	return &NoteRepository{db: db}
}

// Create inserts a note.
func (r *NoteRepository) Create(ctx context.Context, note *models.Note) error {
	if note.ID == "" {
		note.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	note.CreatedAt = now
	note.UpdatedAt = now
	const query = `INSERT INTO notes (id, title, subject, semester, description, file_url, public_id, content_hash, mime_type, size_bytes, uploaded_by, status, downloads, created_at, updated_at)
		VALUES (:id, :title, :subject, :semester, :description, :file_url, :public_id, :content_hash, :mime_type, :size_bytes, :uploaded_by, :status, 0, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, note); err != nil {
		return fmt.Errorf("create note: %w", err)
	}
	return nil
}

// FindByID returns a note by identifier.
func (r *NoteRepository) FindByID(ctx context.Context, id string) (*models.Note, error) {
	query := `SELECT ` + noteColumns + ` FROM notes n LEFT JOIN users u ON u.id = n.uploaded_by WHERE n.id = $1`
	var note models.Note
	if err := r.db.GetContext(ctx, &note, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find note: %w", err)
	}
	return &note, nil
}

// ExistsByHash reports whether any note already stores this content.
func (r *NoteRepository) ExistsByHash(ctx context.Context, hash string) (bool, error) {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM notes WHERE content_hash = $1)`, hash); err != nil {
		return false, fmt.Errorf("check note hash: %w", err)
	}
	return exists, nil
}

// ExistsByPublicID reports whether a note row already owns this storage key.
func (r *NoteRepository) ExistsByPublicID(ctx context.Context, publicID string) (bool, error) {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM notes WHERE public_id = $1)`, publicID); err != nil {
		return false, fmt.Errorf("check note key: %w", err)
	}
	return exists, nil
}

// List returns notes matching the filter with total count.
func (r *NoteRepository) List(ctx context.Context, filter models.NoteFilter) ([]models.Note, int, error) {
	where := []string{"1=1"}
	var args []interface{}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("n.status = $%d", len(args)))
	}
	if filter.Subject != "" {
		args = append(args, strings.ToLower(filter.Subject))
		where = append(where, fmt.Sprintf("LOWER(n.subject) = $%d", len(args)))
	}
	if filter.Semester > 0 {
		args = append(args, filter.Semester)
		where = append(where, fmt.Sprintf("n.semester = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		where = append(where, fmt.Sprintf("(LOWER(n.title) LIKE $%d OR LOWER(n.description) LIKE $%d)", len(args), len(args)))
	}
	clause := strings.Join(where, " AND ")

	page, size := models.NormalizePage(filter.Page, filter.PageSize)
	query := fmt.Sprintf(`SELECT %s FROM notes n LEFT JOIN users u ON u.id = n.uploaded_by WHERE %s ORDER BY n.created_at DESC LIMIT %d OFFSET %d`,
		noteColumns, clause, size, (page-1)*size)

	var notes []models.Note
	if err := r.db.SelectContext(ctx, &notes, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list notes: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM notes n WHERE `+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("count notes: %w", err)
	}
	return notes, total, nil
}

// TransitionFromPending moves a pending note to status. It reports false when
// the note was not pending.
func (r *NoteRepository) TransitionFromPending(ctx context.Context, id string, status models.ModerationStatus) (bool, error) {
	const query = `UPDATE notes SET status = $2, updated_at = $3 WHERE id = $1 AND status = 'pending'`
	res, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("moderate note: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("moderate note rows: %w", err)
	}
	return affected == 1, nil
}

// Delete hard deletes a note row.
func (r *NoteRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM notes WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	return nil
}

// IncrementDownloads bumps the counter of an approved note and returns its file URL.
func (r *NoteRepository) IncrementDownloads(ctx context.Context, id string) (string, error) {
	const query = `UPDATE notes SET downloads = downloads + 1 WHERE id = $1 AND status = 'approved' RETURNING file_url`
	var url string
	if err := r.db.GetContext(ctx, &url, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", err
		}
		return "", fmt.Errorf("increment downloads: %w", err)
	}
	return url, nil
}
