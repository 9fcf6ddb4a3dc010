package models_test

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/campus-feed/backend/internal/models"
)

func TestContentEqualIgnoresVolatileFields(t *testing.T) {
	created := time.Date(2024, 3, 22, 12, 0, 0, 0, time.UTC)
	a := models.Post{
		ID:        "1",
		URL:       "https://example.com/1",
		Author:    "Author",
		Title:     "Title",
		Category:  []string{"학사"},
		CreatedAt: created,
		Content:   "Body",
	}
	b := a
	b.URL = "https://example.com/1?moved"
	b.Author = "Other"
	b.Description = "changed"
	b.Thumbnail = "https://example.com/t.png"
	b.CreatedAt = created.Add(time.Hour)
	b.Attachments = []models.Attachment{{URL: "https://example.com/a.pdf"}}
	b.Metadata = map[string]string{"views": "10"}

	require.True(t, a.ContentEqual(b))
}

func TestContentEqualTrimsWhitespace(t *testing.T) {
	a := models.Post{ID: " 1", Title: "Title ", Content: "\nBody\n"}
	b := models.Post{ID: "1", Title: "Title", Content: "Body"}
	require.True(t, a.ContentEqual(b))
}

func TestContentEqualDetectsChanges(t *testing.T) {
	base := models.Post{ID: "1", Title: "Title", Category: []string{"a", "b"}, Content: "Body"}

	tests := []struct {
		name   string
		mutate func(p *models.Post)
	}{
		{name: "id", mutate: func(p *models.Post) { p.ID = "2" }},
		{name: "title", mutate: func(p *models.Post) { p.Title = "Other" }},
		{name: "content", mutate: func(p *models.Post) { p.Content = "Other" }},
		{name: "category order", mutate: func(p *models.Post) { p.Category = []string{"b", "a"} }},
		{name: "category removed", mutate: func(p *models.Post) { p.Category = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			changed := base
			changed.Category = append([]string(nil), base.Category...)
			tt.mutate(&changed)
			require.False(t, base.ContentEqual(changed))
		})
	}
}

func TestContentEqualNilAndEmptyCategory(t *testing.T) {
	a := models.Post{ID: "1", Category: nil}
	b := models.Post{ID: "1", Category: []string{}}
	require.True(t, a.ContentEqual(b))
}

func TestNewAttachmentGuessesMimeType(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{name: "syllabus.pdf", want: "application/pdf"},
		{name: "FORM.HWP", want: "application/x-hwp"},
		{name: "poster.png", want: "image/png"},
		{name: "report.xlsx", want: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"},
		{name: "README", want: ""},
		{name: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			att := models.NewAttachment(tt.name, "https://example.com/f")
			require.Equal(t, tt.want, att.MimeType)
			require.Equal(t, tt.name, att.Name)
			require.Equal(t, "https://example.com/f", att.URL)
		})
	}
}

func TestPostJSONShape(t *testing.T) {
	p := models.Post{
		ID:        "7",
		URL:       "https://example.com/7",
		Title:     "t",
		CreatedAt: time.Date(2024, 3, 23, 10, 0, 0, 0, time.UTC),
		Content:   "c",
	}
	data, err := json.Marshal(p)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	require.Equal(t, "2024-03-23T10:00:00Z", raw["created_at"])
	require.Contains(t, raw, "updated_at")
	require.Nil(t, raw["updated_at"])
	require.NotContains(t, raw, "author")
}

func TestPostEventFingerprint(t *testing.T) {
	updated := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	evt := models.PostEvent{Site: "cse", Post: models.Post{ID: "10", Title: "Notice", Content: "body"}}
	require.Equal(t, "cse/10", evt.Key())
	first := evt.Fingerprint()
	require.True(t, strings.HasPrefix(first, "cse/10@0#"))
	require.Equal(t, first, evt.Fingerprint())

	evt.Post.UpdatedAt = &updated
	withDate := evt.Fingerprint()
	require.NotEqual(t, first, withDate)

	// same update time, different content
	evt.Post.Content = "edited body"
	require.NotEqual(t, withDate, evt.Fingerprint())

	evt.Post.Content = "body"
	evt.Post.Category = []string{"academic"}
	require.NotEqual(t, withDate, evt.Fingerprint())

	// volatile fields do not count
	evt.Post.Category = nil
	evt.Post.URL = "https://cse.example.com/10?session=1"
	evt.Post.Author = "admin"
	require.Equal(t, withDate, evt.Fingerprint())
}
