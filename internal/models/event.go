package models

import (
	"crypto/sha1"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// EventType names a change detected between two crawls.
type EventType string

const (
	EventPostCreated EventType = "post_created"
	EventPostUpdated EventType = "post_updated"
)

// PostEvent is published for every created or updated post.
type PostEvent struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	Site       string    `json:"site"`
	SiteTitle  string    `json:"site_title"`
	Post       Post      `json:"post"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Key partitions events so all changes of one post stay ordered.
func (e PostEvent) Key() string {
	return e.Site + "/" + e.Post.ID
}

// Fingerprint identifies one version of a post: its key, its update time
// and a digest of the fields ContentEqual compares. Redelivered events share
// it; an edit changes it even when UpdatedAt does not.
func (e PostEvent) Fingerprint() string {
	version := "0"
	if e.Post.UpdatedAt != nil {
		version = strconv.FormatInt(e.Post.UpdatedAt.UnixNano(), 10)
	}
	return e.Key() + "@" + version + "#" + contentDigest(e.Post)
}

func contentDigest(p Post) string {
	h := sha1.New()
	for _, part := range []string{
		strings.TrimSpace(p.ID),
		strings.TrimSpace(p.Title),
		strings.Join(p.Category, "\x1f"),
		strings.TrimSpace(p.Content),
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)[:8])
}

// PostDocument is the canonical structure stored in Elasticsearch.
type PostDocument struct {
	ID        string     `json:"id"`
	Site      string     `json:"site"`
	SiteTitle string     `json:"site_title"`
	PostID    string     `json:"post_id"`
	Title     string     `json:"title"`
	Text      string     `json:"text"`
	URL       string     `json:"url"`
	Author    string     `json:"author,omitempty"`
	Category  []string   `json:"category"`
	Keywords  []string   `json:"keywords"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
	IndexedAt time.Time  `json:"indexed_at"`
}
