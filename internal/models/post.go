package models

import (
	"mime"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// Post is one crawled notice normalized across every board.
// IDs are unique within a site only.
type Post struct {
	ID          string            `json:"id"`
	URL         string            `json:"url"`
	Author      string            `json:"author,omitempty"`
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	Category    []string          `json:"category"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   *time.Time        `json:"updated_at"`
	Thumbnail   string            `json:"thumbnail,omitempty"`
	Content     string            `json:"content"`
	Attachments []Attachment      `json:"attachments"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// ContentEqual reports whether two posts carry the same content.
// Only id, title, category and content take part; url, author, dates,
// attachments and metadata may drift without counting as a change.
func (p Post) ContentEqual(other Post) bool {
	return strings.TrimSpace(p.ID) == strings.TrimSpace(other.ID) &&
		strings.TrimSpace(p.Title) == strings.TrimSpace(other.Title) &&
		slices.Equal(p.Category, other.Category) &&
		strings.TrimSpace(p.Content) == strings.TrimSpace(other.Content)
}

// Attachment is a file linked from a post.
type Attachment struct {
	URL      string `json:"url"`
	Name     string `json:"name,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
}

// NewAttachment builds an attachment and guesses its MIME type from the
// extension of name.
func NewAttachment(name, url string) Attachment {
	return Attachment{
		URL:      url,
		Name:     name,
		MimeType: GuessMimeType(name),
	}
}

// GuessMimeType returns the media type registered for the extension of name
// without parameters, or "" when unknown.
func GuessMimeType(name string) string {
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(name)))
	if ext == "" {
		return ""
	}
	if t, ok := extraMimeTypes[ext]; ok {
		return t
	}
	full := mime.TypeByExtension(ext)
	if full == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(full)
	if err != nil {
		return full
	}
	return mediaType
}

// Office formats common on Korean boards that the system table often lacks.
var extraMimeTypes = map[string]string{
	".hwp":  "application/x-hwp",
	".hwpx": "application/hwp+zip",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xls":  "application/vnd.ms-excel",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".ppt":  "application/vnd.ms-powerpoint",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".zip":  "application/zip",
}

// SiteDocument is the crawl result for one site.
type SiteDocument struct {
	Title       string `json:"title"`
	Source      string `json:"source"`
	Description string `json:"description"`
	Items       []Post `json:"items"`
}
