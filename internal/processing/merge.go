package processing

import (
	"time"

	"github.com/DeafMist/campus-feed/backend/internal/models"
)

// MergeResult is the outcome of comparing a fresh crawl with the previous one.
type MergeResult struct {
	Posts   []models.Post
	Created []string
	Updated []string
}

// InjectUpdateDate resolves UpdatedAt for every post of next against the
// previous snapshot prev. The result keeps the order and length of next.
//
// A value already set by the plugin wins. Otherwise a post unknown to prev
// stays nil, a content-equal post keeps its previous UpdatedAt, and a changed
// post gets now. now is shared by the whole batch.
func InjectUpdateDate(prev, next []models.Post, now time.Time) []models.Post {
	return Merge(prev, next, now).Posts
}

// Merge does what InjectUpdateDate does and also reports which ids are new
// and which changed content since prev.
func Merge(prev, next []models.Post, now time.Time) MergeResult {
	known := make(map[string]models.Post, len(prev))
	for _, p := range prev {
		known[p.ID] = p
	}

	res := MergeResult{Posts: make([]models.Post, len(next))}
	for i, post := range next {
		old, seen := known[post.ID]
		switch {
		case !seen:
			res.Created = append(res.Created, post.ID)
		case !old.ContentEqual(post):
			res.Updated = append(res.Updated, post.ID)
		}

		if post.UpdatedAt == nil {
			switch {
			case !seen:
			case old.ContentEqual(post):
				post.UpdatedAt = cloneTime(old.UpdatedAt)
			default:
				post.UpdatedAt = cloneTime(&now)
			}
		}
		res.Posts[i] = post
	}
	return res
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
