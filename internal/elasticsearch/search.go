package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/DeafMist/campus-feed/backend/internal/models"
)

const (
	defaultSize = 20
	maxSize     = 200
)

var sortableFields = map[string]struct{}{
	"created_at": {},
	"updated_at": {},
	"indexed_at": {},
	"_score":     {},
}

// SearchParams narrow the post search.
type SearchParams struct {
	Query    string
	Site     string
	Category string
	Keywords []string
	From     int
	Size     int
	// Sort is field:order, e.g. created_at:desc.
	Sort  string
	Start *time.Time
	End   *time.Time
}

// SearchResult bundles hits and total count.
type SearchResult struct {
	Total int64                 `json:"total"`
	Items []models.PostDocument `json:"items"`
}

// SearchPosts executes a bool query with optional filters.
func (c *Client) SearchPosts(ctx context.Context, params SearchParams) (*SearchResult, error) {
	payload, err := json.Marshal(buildSearchBody(params))
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.index),
		c.es.Search.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		data, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("search failed: %s", strings.TrimSpace(string(data)))
	}

	var parsed struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source models.PostDocument `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	items := make([]models.PostDocument, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		items = append(items, hit.Source)
	}
	return &SearchResult{Total: parsed.Hits.Total.Value, Items: items}, nil
}

func buildSearchBody(params SearchParams) map[string]any {
	size := params.Size
	if size <= 0 {
		size = defaultSize
	}
	size = min(size, maxSize)
	from := max(params.From, 0)

	var must, filters []map[string]any
	if q := strings.TrimSpace(params.Query); q != "" {
		must = append(must, map[string]any{
			"multi_match": map[string]any{
				"query":  q,
				"fields": []string{"title^3", "keywords^2", "text"},
			},
		})
	}
	if params.Site != "" {
		filters = append(filters, map[string]any{"term": map[string]any{"site": params.Site}})
	}
	if params.Category != "" {
		filters = append(filters, map[string]any{"term": map[string]any{"category": params.Category}})
	}
	if len(params.Keywords) > 0 {
		filters = append(filters, map[string]any{"terms": map[string]any{"keywords": params.Keywords}})
	}
	if params.Start != nil || params.End != nil {
		window := map[string]any{}
		if params.Start != nil {
			window["gte"] = params.Start.UTC().Format(time.RFC3339)
		}
		if params.End != nil {
			window["lte"] = params.End.UTC().Format(time.RFC3339)
		}
		filters = append(filters, map[string]any{"range": map[string]any{"created_at": window}})
	}

	boolQuery := map[string]any{}
	if len(must) > 0 {
		boolQuery["must"] = must
	} else {
		boolQuery["must"] = []map[string]any{{"match_all": map[string]any{}}}
	}
	if len(filters) > 0 {
		boolQuery["filter"] = filters
	}

	field, order := parseSort(params.Sort)
	return map[string]any{
		"from":             from,
		"size":             size,
		"track_total_hits": true,
		"query":            map[string]any{"bool": boolQuery},
		"sort":             []map[string]any{{field: map[string]any{"order": order}}},
	}
}

// parseSort falls back to created_at:desc for unknown fields or orders.
func parseSort(raw string) (string, string) {
	field, order, _ := strings.Cut(strings.TrimSpace(raw), ":")
	if _, ok := sortableFields[field]; !ok {
		field = "created_at"
	}
	order = strings.ToLower(order)
	if order != "asc" {
		order = "desc"
	}
	return field, order
}
