// Package board crawls paginated HTML notice boards: list pages give post
// links, detail pages give the content.
package board

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"

	"github.com/DeafMist/campus-feed/backend/internal/models"
	"github.com/DeafMist/campus-feed/backend/internal/plugin"
)

// Selectors locate the parts of a board. List selectors apply to the list
// page (Link, Author and Category relative to Row); the rest to detail pages.
type Selectors struct {
	Row      string
	Link     string
	Author   string
	Category string

	Title       string
	Content     string
	Thumbnail   string
	Attachments string
	CreatedAt   string
}

// Config describes one board.
type Config struct {
	ListURL    string
	PageParam  string
	IDParam    string
	Selectors  Selectors
	DateLayout string
	Location   *time.Location
	// Concurrency bounds detail page fetches.
	Concurrency int
}

// Plugin crawls one board.
type Plugin struct {
	info   plugin.Info
	cfg    Config
	client *http.Client
	log    *slog.Logger
	now    func() time.Time
}

type listEntry struct {
	id       string
	url      string
	author   string
	category string
}

// New builds a board plugin.
func New(info plugin.Info, cfg Config, client *http.Client, log *slog.Logger) *Plugin {
	if client == nil {
		client = plugin.NewHTTPClient(30 * time.Second)
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Plugin{
		info:   info,
		cfg:    cfg,
		client: client,
		log:    log.With(slog.String("plugin", info.ID)),
		now:    time.Now,
	}
}

func (p *Plugin) Info() plugin.Info {
	return p.info
}

// Crawl collects up to limit entries from list pages 1, 2, ... and then
// fetches their detail pages concurrently. Posts keep list order.
func (p *Plugin) Crawl(ctx context.Context, limit int) ([]models.Post, error) {
	entries, err := p.collect(ctx, limit)
	if err != nil {
		return nil, err
	}
	p.log.Debug("fetch post contents", slog.Int("posts", len(entries)))

	posts := make([]models.Post, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)
	for i, entry := range entries {
		g.Go(func() error {
			post, err := p.fetchPost(gctx, entry)
			if err != nil {
				return err
			}
			posts[i] = post
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return posts, nil
}

func (p *Plugin) collect(ctx context.Context, limit int) ([]listEntry, error) {
	var entries []listEntry
	seen := make(map[string]struct{})

	for page := 1; limit <= 0 || len(entries) < limit; page++ {
		found, err := p.fetchList(ctx, page)
		if err != nil {
			return nil, err
		}

		added := 0
		for _, e := range found {
			if _, dup := seen[e.id]; dup {
				// pinned notices repeat on every page
				continue
			}
			seen[e.id] = struct{}{}
			entries = append(entries, e)
			added++
			if limit > 0 && len(entries) == limit {
				break
			}
		}
		if added == 0 {
			break
		}
	}
	return entries, nil
}

func (p *Plugin) pageURL(page int) (string, error) {
	u, err := url.Parse(p.cfg.ListURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set(p.cfg.PageParam, strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (p *Plugin) fetchList(ctx context.Context, page int) ([]listEntry, error) {
	pageURL, err := p.pageURL(page)
	if err != nil {
		return nil, plugin.ParseError(p.info.ID, err, "list url %s", p.cfg.ListURL)
	}
	doc, err := p.document(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	base, _ := url.Parse(pageURL)

	rows := doc.Find(p.cfg.Selectors.Row)
	if rows.Length() == 0 && page == 1 {
		return nil, plugin.ParseError(p.info.ID, nil, "no rows match %q on %s", p.cfg.Selectors.Row, pageURL)
	}

	entries := make([]listEntry, 0, rows.Length())
	rows.Each(func(_ int, row *goquery.Selection) {
		entry, ok := p.resolveRow(base, row)
		if !ok {
			return
		}
		entries = append(entries, entry)
	})
	p.log.Debug("fetched list page", slog.Int("page", page), slog.Int("entries", len(entries)))
	return entries, nil
}

// resolveRow skips rows without a usable link, such as "no posts" rows.
func (p *Plugin) resolveRow(base *url.URL, row *goquery.Selection) (listEntry, bool) {
	href, ok := row.Find(p.cfg.Selectors.Link).First().Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return listEntry{}, false
	}
	link, err := base.Parse(strings.TrimSpace(href))
	if err != nil {
		p.log.Warn("skip row with bad link", slog.String("href", href), slog.Any("err", err))
		return listEntry{}, false
	}
	id := link.Query().Get(p.cfg.IDParam)
	if id == "" {
		p.log.Warn("skip row without id", slog.String("url", link.String()))
		return listEntry{}, false
	}

	entry := listEntry{id: id, url: link.String()}
	if p.cfg.Selectors.Author != "" {
		entry.author = cleanText(row.Find(p.cfg.Selectors.Author).First().Text())
	}
	if p.cfg.Selectors.Category != "" {
		entry.category = cleanText(row.Find(p.cfg.Selectors.Category).First().Text())
	}
	return entry, true
}

func (p *Plugin) fetchPost(ctx context.Context, entry listEntry) (models.Post, error) {
	doc, err := p.document(ctx, entry.url)
	if err != nil {
		return models.Post{}, err
	}
	base, _ := url.Parse(entry.url)
	sel := p.cfg.Selectors

	titleSel := doc.Find(sel.Title).First()
	if titleSel.Length() == 0 {
		return models.Post{}, plugin.ParseError(p.info.ID, nil, "title not found: %s", entry.url)
	}
	contentSel := doc.Find(sel.Content).First()
	if contentSel.Length() == 0 {
		return models.Post{}, plugin.ParseError(p.info.ID, nil, "content not found: %s", entry.url)
	}
	content, err := contentSel.Html()
	if err != nil {
		return models.Post{}, plugin.ParseError(p.info.ID, err, "render content: %s", entry.url)
	}

	createdAt, err := p.createdAt(doc, entry.url)
	if err != nil {
		return models.Post{}, err
	}

	post := models.Post{
		ID:          entry.id,
		URL:         entry.url,
		Author:      entry.author,
		Title:       cleanText(titleSel.Text()),
		Category:    []string{},
		CreatedAt:   createdAt,
		Content:     strings.TrimSpace(content),
		Attachments: []models.Attachment{},
	}
	if entry.category != "" {
		post.Category = []string{entry.category}
	}
	if sel.Thumbnail != "" {
		if src, ok := doc.Find(sel.Thumbnail).First().Attr("src"); ok {
			post.Thumbnail = absolute(base, src)
		}
	}
	if sel.Attachments != "" {
		doc.Find(sel.Attachments).Each(func(_ int, a *goquery.Selection) {
			href, ok := a.Attr("href")
			if !ok || strings.TrimSpace(href) == "" {
				return
			}
			name := cleanText(a.Children().First().Text())
			if name == "" {
				name = cleanText(a.Text())
			}
			post.Attachments = append(post.Attachments, models.NewAttachment(name, absolute(base, href)))
		})
	}
	return post, nil
}

func (p *Plugin) createdAt(doc *goquery.Document, pageURL string) (time.Time, error) {
	if p.cfg.Selectors.CreatedAt == "" {
		return p.now(), nil
	}
	node := doc.Find(p.cfg.Selectors.CreatedAt).First()
	if node.Length() == 0 {
		return time.Time{}, plugin.ParseError(p.info.ID, nil, "created date not found: %s", pageURL)
	}
	// the date is the last text node, after any label such as "작성일"
	raw := strings.TrimSpace(node.Contents().Last().Text())
	if raw == "" {
		raw = cleanText(node.Text())
	}
	ts, err := time.ParseInLocation(p.cfg.DateLayout, raw, p.cfg.Location)
	if err != nil {
		return time.Time{}, plugin.ParseError(p.info.ID, err, "parse created date %q", raw)
	}
	return ts, nil
}

func (p *Plugin) document(ctx context.Context, pageURL string) (*goquery.Document, error) {
	body, err := plugin.Fetch(ctx, p.client, p.info.ID, pageURL)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, plugin.ParseError(p.info.ID, err, "parse html %s", pageURL)
	}
	return doc, nil
}

func absolute(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if base == nil {
		return ref
	}
	u, err := base.Parse(ref)
	if err != nil {
		return ref
	}
	return u.String()
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
