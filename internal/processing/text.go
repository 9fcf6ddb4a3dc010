package processing

import (
	"crypto/sha1"
	"encoding/hex"
	"html"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/DeafMist/campus-feed/backend/internal/models"
)

var (
	urlRegex    = regexp.MustCompile(`https?://[^\s<>"]+`)
	tagRegex    = regexp.MustCompile(`(?s)<[^>]*>`)
	blockRegex  = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	whitespace  = regexp.MustCompile(`[\s\p{Zs}]+`)
	punctuation = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
)

var stopwords = map[string]struct{}{
	"및": {}, "등": {}, "의": {}, "를": {}, "을": {}, "에": {}, "안내": {}, "공지": {},
	"a": {}, "an": {}, "the": {}, "to": {}, "in": {}, "for": {}, "and": {}, "of": {},
	"http": {}, "https": {}, "www": {}, "nbsp": {},
}

// StripTags removes markup and decodes entities, leaving readable text with
// collapsed whitespace.
func StripTags(input string) string {
	if input == "" {
		return ""
	}
	out := blockRegex.ReplaceAllString(input, " ")
	out = tagRegex.ReplaceAllString(out, " ")
	out = html.UnescapeString(out)
	out = whitespace.ReplaceAllString(out, " ")
	return strings.TrimSpace(out)
}

// Excerpt returns the first maxRunes characters of the readable text of
// content, followed by "..." when it had to be cut.
func Excerpt(content string, maxRunes int) string {
	text := []rune(StripTags(content))
	if maxRunes <= 0 || len(text) <= maxRunes {
		return string(text)
	}
	return strings.TrimSpace(string(text[:maxRunes])) + "..."
}

// CleanText strips markup, URLs and punctuation, and squeezes whitespace.
func CleanText(input string) string {
	if input == "" {
		return ""
	}
	decoded := StripTags(input)
	decoded = urlRegex.ReplaceAllString(decoded, " ")
	decoded = punctuation.ReplaceAllString(decoded, " ")
	decoded = whitespace.ReplaceAllString(decoded, " ")
	return strings.TrimSpace(decoded)
}

// ExtractKeywords returns the most frequent words that are not stop-words.
func ExtractKeywords(text string, limit, minLen int) []string {
	clean := strings.ToLower(CleanText(text))
	if clean == "" {
		return nil
	}

	freq := make(map[string]int)
	for _, token := range strings.Fields(clean) {
		token = strings.TrimFunc(token, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r)
		})
		if len([]rune(token)) < minLen {
			continue
		}
		if _, skip := stopwords[token]; skip {
			continue
		}
		freq[token]++
	}

	if len(freq) == 0 {
		return nil
	}

	type kv struct {
		word  string
		count int
	}

	pairs := make([]kv, 0, len(freq))
	for word, count := range freq {
		pairs = append(pairs, kv{word: word, count: count})
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].count == pairs[j].count {
			return pairs[i].word < pairs[j].word
		}
		return pairs[i].count > pairs[j].count
	})

	n := limit
	if n <= 0 || n > len(pairs) {
		n = len(pairs)
	}

	keywords := make([]string, 0, n)
	for i := 0; i < n; i++ {
		keywords = append(keywords, pairs[i].word)
	}
	return keywords
}

// BuildDocumentID namespaces a post id by its site. Post ids are only unique
// per site, so the index key must carry both.
func BuildDocumentID(site, postID string) string {
	s := sha1.Sum([]byte(strings.TrimSpace(site) + "|" + strings.TrimSpace(postID)))
	return hex.EncodeToString(s[:])
}

// BuildPostDocument turns a change event into its search representation.
func BuildPostDocument(evt models.PostEvent, keywordLimit, keywordMinLen int, now time.Time) models.PostDocument {
	post := evt.Post
	text := StripTags(post.Content)
	title := strings.TrimSpace(post.Title)

	category := post.Category
	if category == nil {
		category = []string{}
	}

	return models.PostDocument{
		ID:        BuildDocumentID(evt.Site, post.ID),
		Site:      evt.Site,
		SiteTitle: evt.SiteTitle,
		PostID:    post.ID,
		Title:     title,
		Text:      text,
		URL:       post.URL,
		Author:    post.Author,
		Category:  category,
		Keywords:  ExtractKeywords(title+" "+text, keywordLimit, keywordMinLen),
		CreatedAt: post.CreatedAt,
		UpdatedAt: post.UpdatedAt,
		IndexedAt: now.UTC(),
	}
}
