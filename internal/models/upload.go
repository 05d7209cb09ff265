package models

import "time"

// UploadMeta is the descriptive metadata submitted alongside a file.
type UploadMeta struct {
	Kind        ContentKind `form:"type" json:"type" validate:"required,oneof=note image"`
	Title       string      `form:"title" json:"title" validate:"max=200"`
	Subject     string      `form:"subject" json:"subject" validate:"max=120"`
	Semester    int         `form:"semester" json:"semester" validate:"omitempty,min=1,max=8"`
	Description string      `form:"description" json:"description" validate:"max=1000"`
	AlbumID     string      `form:"albumId" json:"albumId" validate:"max=64"`
	Caption     string      `form:"caption" json:"caption" validate:"max=300"`
}

// SignUploadRequest asks for a presigned direct upload.
type SignUploadRequest struct {
	Kind        ContentKind `json:"type" validate:"required,oneof=note image"`
	FileName    string      `json:"fileName" validate:"required,max=255"`
	ContentType string      `json:"contentType" validate:"required"`
	Size        int64       `json:"size" validate:"required,gt=0"`
	ContentHash string      `json:"contentHash" validate:"required,len=64,hexadecimal"`
}

// SignUploadResponse returns the presigned URL and the ticket to redeem later.
type SignUploadResponse struct {
	Key       string            `json:"key"`
	UploadURL string            `json:"uploadUrl"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers,omitempty"`
	Ticket    string            `json:"ticket"`
	ExpiresAt time.Time         `json:"expiresAt"`
}

// CompleteUploadRequest records a directly uploaded object.
type CompleteUploadRequest struct {
	Ticket string     `json:"ticket" validate:"required"`
	Meta   UploadMeta `json:"meta"`
}

// UploadResult is returned after a successful commit.
type UploadResult struct {
	ID          string           `json:"id"`
	Kind        ContentKind      `json:"type"`
	URL         string           `json:"url"`
	ContentHash string           `json:"contentHash"`
	Status      ModerationStatus `json:"status"`
}
