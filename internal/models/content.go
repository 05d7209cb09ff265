package models

import "time"

// ModerationStatus is the single lifecycle state of user-submitted content.
type ModerationStatus string

const (
	StatusPending  ModerationStatus = "pending"
	StatusApproved ModerationStatus = "approved"
	StatusRejected ModerationStatus = "rejected"
)

// ContentKind distinguishes library notes from gallery images.
type ContentKind string

const (
	KindNote  ContentKind = "note"
	KindImage ContentKind = "image"
)

// ParseContentKind accepts singular and plural spellings.
func ParseContentKind(raw string) (ContentKind, bool) {
	switch raw {
	case "note", "notes":
		return KindNote, true
	case "image", "images":
		return KindImage, true
	}
	return "", false
}

// Folder returns the object store folder used for the kind.
func (k ContentKind) Folder() string {
	if k == KindImage {
		return "gallery"
	}
	return "notes"
}

// Note is a PDF in the study library.
type Note struct {
	ID          string           `db:"id" json:"id"`
	Title       string           `db:"title" json:"title"`
	Subject     string           `db:"subject" json:"subject"`
	Semester    int              `db:"semester" json:"semester"`
	Description string           `db:"description" json:"description"`
	FileURL     string           `db:"file_url" json:"fileUrl"`
	PublicID    string           `db:"public_id" json:"-"`
	ContentHash string           `db:"content_hash" json:"contentHash"`
	MimeType    string           `db:"mime_type" json:"mimeType"`
	SizeBytes   int64            `db:"size_bytes" json:"sizeBytes"`
	UploadedBy  string           `db:"uploaded_by" json:"uploadedBy"`
	Uploader    string           `db:"uploader" json:"uploader,omitempty"`
	Status      ModerationStatus `db:"status" json:"status"`
	Downloads   int64            `db:"downloads" json:"downloads"`
	CreatedAt   time.Time        `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time        `db:"updated_at" json:"updatedAt"`
}

// Image is a photo inside an album.
type Image struct {
	ID          string           `db:"id" json:"id"`
	AlbumID     string           `db:"album_id" json:"albumId"`
	Caption     string           `db:"caption" json:"caption"`
	URL         string           `db:"url" json:"url"`
	PublicID    string           `db:"public_id" json:"-"`
	ContentHash string           `db:"content_hash" json:"contentHash"`
	MimeType    string           `db:"mime_type" json:"mimeType"`
	SizeBytes   int64            `db:"size_bytes" json:"sizeBytes"`
	UploadedBy  string           `db:"uploaded_by" json:"uploadedBy"`
	Uploader    string           `db:"uploader" json:"uploader,omitempty"`
	Status      ModerationStatus `db:"status" json:"status"`
	Likes       int64            `db:"likes" json:"likes"`
	CreatedAt   time.Time        `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time        `db:"updated_at" json:"updatedAt"`
}

// Album groups gallery images.
type Album struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	CreatedBy   *string   `db:"created_by" json:"createdBy,omitempty"`
	ImageCount  int       `db:"image_count" json:"imageCount"`
	CoverURL    *string   `db:"cover_url" json:"coverUrl,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}

// CreateAlbumRequest is the admin payload for a new album.
type CreateAlbumRequest struct {
	Name        string `json:"name" validate:"required,min=2,max=80"`
	Description string `json:"description" validate:"omitempty,max=500"`
}

// NoteFilter narrows library listings.
type NoteFilter struct {
	Status   ModerationStatus
	Subject  string
	Semester int
	Search   string
	Page     int
	PageSize int
}

// ImageFilter narrows gallery listings.
type ImageFilter struct {
	AlbumID  string
	Status   ModerationStatus
	Page     int
	PageSize int
}

// PendingItem is a moderation queue row, common to notes and images.
type PendingItem struct {
	ID         string      `db:"id" json:"id"`
	Kind       ContentKind `db:"kind" json:"type"`
	Title      string      `db:"title" json:"title"`
	URL        string      `db:"url" json:"url"`
	UploadedBy string      `db:"uploaded_by" json:"uploadedBy"`
	Uploader   string      `db:"uploader" json:"uploader"`
	CreatedAt  time.Time   `db:"created_at" json:"createdAt"`
}

// ModerateRequest is the admin approve/reject payload.
type ModerateRequest struct {
	ID     string `json:"id" validate:"required"`
	Action string `json:"action" validate:"required,oneof=approve reject"`
	Type   string `json:"type" validate:"required,oneof=note notes image images"`
}

// ModerationResult reports the outcome of a moderation call.
type ModerationResult struct {
	ID      string           `json:"id"`
	Kind    ContentKind      `json:"type"`
	Status  ModerationStatus `json:"status"`
	Changed bool             `json:"changed"`
}
