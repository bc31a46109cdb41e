package domain

import (
	"strings"
	"time"
)

const (
	MaxMessageLength    = 2000
	MaxHistoryLimit     = 100
	DefaultHistoryLimit = 50
)

// Media types a message can carry.
const (
	MediaTypeImage = "image"
	MediaTypeVideo = "video"
	MediaTypeAudio = "audio"
	MediaTypeFile  = "file"
)

// History directions. Backward walks from newest to oldest.
const (
	DirectionBackward = "backward"
	DirectionForward  = "forward"
)

// Message is one chat line in a room. IDs are ULIDs so they sort by time.
type Message struct {
	ID         string     `json:"id"`
	RoomID     string     `json:"room_id"`
	AuthorID   string     `json:"author_id"`
	AuthorName string     `json:"author_name"`
	Content    string     `json:"content"`
	MediaKey   string     `json:"-"`
	MediaURL   string     `json:"media_url,omitempty"`
	MediaType  string     `json:"media_type,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	EditedAt   *time.Time `json:"edited_at,omitempty"`
}

// MediaTypeFor maps a MIME content type to a message media type.
func MediaTypeFor(contentType string) string {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return MediaTypeImage
	case strings.HasPrefix(contentType, "video/"):
		return MediaTypeVideo
	case strings.HasPrefix(contentType, "audio/"):
		return MediaTypeAudio
	default:
		return MediaTypeFile
	}
}

type SendMessageRequest struct {
	RoomID    string `json:"room_id" binding:"required"`
	Content   string `json:"content"`
	MediaKey  string `json:"media_key"`
	MediaURL  string `json:"media_url" binding:"omitempty,url"`
	MediaType string `json:"media_type" binding:"omitempty,oneof=image video audio file"`
}

// EditMessageRequest carries the new text. Content must be present but may
// be empty to clear a media message's caption.
type EditMessageRequest struct {
	Content *string `json:"content" binding:"required"`
}

// HistoryQuery is the cursor-paginated read of a room's messages.
type HistoryQuery struct {
	RoomID    string `form:"room_id" binding:"required"`
	Cursor    string `form:"cursor"`
	Limit     int    `form:"limit"`
	Direction string `form:"direction" binding:"omitempty,oneof=backward forward"`
}

type HistoryResponse struct {
	Messages   []Message `json:"messages"`
	NextCursor string    `json:"next_cursor,omitempty"`
	HasMore    bool      `json:"has_more"`
}

type PresignMediaRequest struct {
	RoomID      string `json:"room_id" binding:"required"`
	ContentType string `json:"content_type" binding:"required"`
	Size        int64  `json:"size"`
}

type PresignMediaResponse struct {
	UploadURL string `json:"upload_url"`
	Key       string `json:"key"`
	MediaType string `json:"media_type"`
	ExpiresAt int64  `json:"expires_at"`
}

type UploadMediaResponse struct {
	Key       string `json:"key"`
	MediaURL  string `json:"media_url"`
	MediaType string `json:"media_type"`
}
