package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

// Site kinds understood by the crawler.
const (
	KindFeed  = "feed"
	KindBoard = "board"
)

var (
	ErrNoSites         = errors.New("at least one site is required")
	ErrSiteMissingID   = errors.New("id is required")
	ErrSiteInvalidID   = errors.New("id may only contain lowercase letters, digits, '-' and '_'")
	ErrSiteDuplicateID = errors.New("duplicate site id")
	ErrSiteMissingURL  = errors.New("base_url is required")
	ErrSiteUnknownKind = errors.New("kind must be 'feed' or 'board'")
	ErrFeedMissingURL  = errors.New("feed.url is required")
	ErrBoardMissingURL = errors.New("board.list_url is required")
	ErrBoardSelectors  = errors.New("board.row, board.link, board.title and board.content are required")
	ErrBoardTimezone   = errors.New("board.timezone is not a known location")
)

var siteIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// Sites is the root of the sites file.
type Sites struct {
	Sites []Site `yaml:"sites"`
}

// Site describes one crawled source.
type Site struct {
	ID          string    `yaml:"id"`
	Title       string    `yaml:"title"`
	Description string    `yaml:"description"`
	BaseURL     string    `yaml:"base_url"`
	Kind        string    `yaml:"kind"`
	Enabled     *bool     `yaml:"enabled"`
	Feed        FeedSite  `yaml:"feed"`
	Board       BoardSite `yaml:"board"`
}

// FeedSite configures an RSS or Atom source.
type FeedSite struct {
	URL string `yaml:"url"`
}

// BoardSite configures a paginated HTML notice board.
type BoardSite struct {
	// ListURL is the first list page. PageParam is set to 1, 2, ... on it.
	ListURL   string `yaml:"list_url"`
	PageParam string `yaml:"page_param"`
	// IDParam names the query parameter of a post link that holds its id.
	IDParam string `yaml:"id_param"`

	Row      string `yaml:"row"`
	Link     string `yaml:"link"`
	Author   string `yaml:"author"`
	Category string `yaml:"category"`

	Title       string `yaml:"title"`
	Content     string `yaml:"content"`
	Thumbnail   string `yaml:"thumbnail"`
	Attachments string `yaml:"attachments"`
	CreatedAt   string `yaml:"created_at"`
	// DateLayout is a Go time layout for CreatedAt.
	DateLayout string `yaml:"date_layout"`
	Timezone   string `yaml:"timezone"`
	// Concurrency bounds detail page fetches.
	Concurrency int `yaml:"concurrency"`
}

// IsEnabled defaults to true when the field is omitted.
func (s Site) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// LoadSites reads and validates the sites file at path.
func LoadSites(path string) (*Sites, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sites file: %w", err)
	}
	return ParseSites(data)
}

// ParseSites decodes a sites document, applies defaults and validates it.
func ParseSites(data []byte) (*Sites, error) {
	var s Sites
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse sites file: %w", err)
	}
	s.applyDefaults()
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Enabled returns the sites not switched off.
func (s *Sites) Enabled() []Site {
	out := make([]Site, 0, len(s.Sites))
	for _, site := range s.Sites {
		if site.IsEnabled() {
			out = append(out, site)
		}
	}
	return out
}

// Find looks a site up by id.
func (s *Sites) Find(id string) (Site, bool) {
	for _, site := range s.Sites {
		if site.ID == id {
			return site, true
		}
	}
	return Site{}, false
}

func (s *Sites) applyDefaults() {
	for i := range s.Sites {
		site := &s.Sites[i]
		site.ID = strings.TrimSpace(site.ID)
		site.Kind = strings.ToLower(strings.TrimSpace(site.Kind))
		if site.Title == "" {
			site.Title = site.ID
		}
		if site.Kind != KindBoard {
			continue
		}
		b := &site.Board
		if b.PageParam == "" {
			b.PageParam = "page"
		}
		if b.IDParam == "" {
			b.IDParam = "wr_id"
		}
		if b.DateLayout == "" {
			b.DateLayout = "2006-01-02 15:04"
		}
		if b.Timezone == "" {
			b.Timezone = "Asia/Seoul"
		}
		if b.Concurrency <= 0 {
			b.Concurrency = 4
		}
	}
}

// Validate checks every site and reports the first problem found.
func (s *Sites) Validate() error {
	if len(s.Sites) == 0 {
		return ErrNoSites
	}
	seen := make(map[string]struct{}, len(s.Sites))
	for i, site := range s.Sites {
		if err := site.validate(); err != nil {
			return fmt.Errorf("sites[%d]: %w", i, err)
		}
		if _, ok := seen[site.ID]; ok {
			return fmt.Errorf("sites[%d]: %w: %s", i, ErrSiteDuplicateID, site.ID)
		}
		seen[site.ID] = struct{}{}
	}
	return nil
}

func (s Site) validate() error {
	switch {
	case s.ID == "":
		return ErrSiteMissingID
	case !siteIDPattern.MatchString(s.ID):
		return fmt.Errorf("%w: %q", ErrSiteInvalidID, s.ID)
	case strings.TrimSpace(s.BaseURL) == "":
		return ErrSiteMissingURL
	}

	switch s.Kind {
	case KindFeed:
		if strings.TrimSpace(s.Feed.URL) == "" {
			return ErrFeedMissingURL
		}
	case KindBoard:
		b := s.Board
		if strings.TrimSpace(b.ListURL) == "" {
			return ErrBoardMissingURL
		}
		if b.Row == "" || b.Link == "" || b.Title == "" || b.Content == "" {
			return ErrBoardSelectors
		}
		if _, err := time.LoadLocation(b.Timezone); err != nil {
			return fmt.Errorf("%w: %s", ErrBoardTimezone, b.Timezone)
		}
	default:
		return fmt.Errorf("%w: %q", ErrSiteUnknownKind, s.Kind)
	}
	return nil
}
