// Package feed crawls sites that publish an RSS or Atom feed.
package feed

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/DeafMist/campus-feed/backend/internal/models"
	"github.com/DeafMist/campus-feed/backend/internal/plugin"
)

// Plugin turns feed items into posts. Feeds are not paginated, so at most
// one document worth of items is returned.
type Plugin struct {
	info   plugin.Info
	url    string
	client *http.Client
	parser *gofeed.Parser
	now    func() time.Time
}

// New builds a feed plugin reading feedURL.
func New(info plugin.Info, feedURL string, client *http.Client) *Plugin {
	if client == nil {
		client = plugin.NewHTTPClient(30 * time.Second)
	}
	return &Plugin{
		info:   info,
		url:    feedURL,
		client: client,
		parser: gofeed.NewParser(),
		now:    time.Now,
	}
}

func (p *Plugin) Info() plugin.Info {
	return p.info
}

func (p *Plugin) Crawl(ctx context.Context, limit int) ([]models.Post, error) {
	body, err := plugin.Fetch(ctx, p.client, p.info.ID, p.url)
	if err != nil {
		return nil, err
	}

	parsed, err := p.parser.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, plugin.ParseError(p.info.ID, err, "parse feed %s", p.url)
	}

	posts := make([]models.Post, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		if limit > 0 && len(posts) == limit {
			break
		}
		// items without guid or link cannot be tracked across crawls
		post, ok := p.toPost(item)
		if !ok {
			continue
		}
		posts = append(posts, post)
	}
	return posts, nil
}

func (p *Plugin) toPost(item *gofeed.Item) (models.Post, bool) {
	id := strings.TrimSpace(item.GUID)
	if id == "" && item.Link != "" {
		id = linkID(item.Link)
	}
	if id == "" {
		return models.Post{}, false
	}

	post := models.Post{
		ID:          id,
		URL:         item.Link,
		Title:       strings.TrimSpace(item.Title),
		Description: strings.TrimSpace(item.Description),
		Category:    append([]string{}, item.Categories...),
		Content:     item.Content,
		Attachments: []models.Attachment{},
	}
	if post.Content == "" {
		post.Content = item.Description
	}
	if item.Author != nil {
		post.Author = item.Author.Name
	}
	if item.Image != nil {
		post.Thumbnail = item.Image.URL
	}

	switch {
	case item.PublishedParsed != nil:
		post.CreatedAt = *item.PublishedParsed
	case item.UpdatedParsed != nil:
		post.CreatedAt = *item.UpdatedParsed
	default:
		post.CreatedAt = p.now()
	}
	// only a modification reported by the feed itself counts
	if item.PublishedParsed != nil && item.UpdatedParsed != nil && item.UpdatedParsed.After(*item.PublishedParsed) {
		updated := *item.UpdatedParsed
		post.UpdatedAt = &updated
	}

	for _, enc := range item.Enclosures {
		if enc == nil || enc.URL == "" {
			continue
		}
		att := models.NewAttachment(enclosureName(enc.URL), enc.URL)
		if enc.Type != "" {
			att.MimeType = enc.Type
		}
		post.Attachments = append(post.Attachments, att)
	}
	return post, true
}

func linkID(link string) string {
	sum := sha1.Sum([]byte(link))
	return hex.EncodeToString(sum[:8])
}

func enclosureName(u string) string {
	u, _, _ = strings.Cut(u, "?")
	if i := strings.LastIndex(u, "/"); i >= 0 {
		return u[i+1:]
	}
	return u
}
