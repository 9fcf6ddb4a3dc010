// Package plugin defines what a site crawler must provide to the core.
package plugin

import (
	"context"

	"github.com/DeafMist/campus-feed/backend/internal/models"
)

// Info is the static identity of a plugin. ID doubles as the cache and
// output key, so it must be stable and file-name safe.
type Info struct {
	ID          string
	Title       string
	Description string
	BaseURL     string
}

// Plugin crawls one site.
//
// Crawl returns at most limit posts, fetching and paginating on its own. It
// sets CreatedAt on a best-effort basis and leaves UpdatedAt nil unless the
// site reports a modification time. Failures are returned as *Error.
type Plugin interface {
	Info() Info
	Crawl(ctx context.Context, limit int) ([]models.Post, error)
}
