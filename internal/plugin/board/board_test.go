package board

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/campus-feed/backend/internal/plugin"
)

var seoul = time.FixedZone("KST", 9*3600)

// fakeBoard serves a gnuboard-like site: one pinned notice on every page,
// then three posts per page, ids counting down from 7.
type fakeBoard struct {
	listHits   atomic.Int32
	detailHits atomic.Int32
	brokenID   string
}

func (b *fakeBoard) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/bbs/board.php":
		b.listHits.Add(1)
		page := r.URL.Query().Get("page")
		fmt.Fprint(w, b.listPage(page))
	case "/bbs/view.php":
		b.detailHits.Add(1)
		id := r.URL.Query().Get("wr_id")
		if id == b.brokenID {
			fmt.Fprint(w, `<html><body><div id="bo_v_con">no title</div></body></html>`)
			return
		}
		fmt.Fprint(w, detailPage(id))
	default:
		http.NotFound(w, r)
	}
}

func (b *fakeBoard) listPage(page string) string {
	ids := map[string][]int{"1": {7, 6, 5}, "2": {4, 3, 2}, "3": {1}}[page]

	var rows strings.Builder
	rows.WriteString(`<tr class="bo_notice"><td class="td_subject"><a href="view.php?bo_table=notice&wr_id=100">pinned</a></td><td class="td_name"><span class="sv_member">office</span></td></tr>`)
	for _, id := range ids {
		fmt.Fprintf(&rows, `<tr><td class="td_subject"><a class="bo_cate_link">학사</a><a href="view.php?bo_table=notice&amp;wr_id=%d">post %d</a></td><td class="td_name"><span class="sv_member">writer %d</span></td></tr>`, id, id, id)
	}
	rows.WriteString(`<tr><td class="empty_table">no more</td></tr>`)
	return `<html><body><div id="bo_list"><table><tbody>` + rows.String() + `</tbody></table></div></body></html>`
}

func detailPage(id string) string {
	return fmt.Sprintf(`<html><body>
<div id="bo_v_title"><span class="bo_v_tit"> Notice %[1]s </span></div>
<section id="bo_v_info"><span class="if_date"><strong>작성일</strong> 26-03-0%[2]d 14:30</span></section>
<div id="bo_v_file"><ul><li><a href="/bbs/download.php?wr_id=%[1]s&no=0"><strong>form %[1]s.hwp</strong> (12K)</a></li></ul></div>
<div id="bo_v_con"><p>Body of %[1]s</p><img src="/data/thumb-%[1]s.png"></div>
</body></html>`, id, len(id))
}

func newTestPlugin(t *testing.T, b *fakeBoard) *Plugin {
	t.Helper()
	srv := httptest.NewServer(b)
	t.Cleanup(srv.Close)

	return New(plugin.Info{ID: "cse", Title: "CSE"}, Config{
		ListURL:   srv.URL + "/bbs/board.php?bo_table=notice",
		PageParam: "page",
		IDParam:   "wr_id",
		Selectors: Selectors{
			Row:         "#bo_list tbody > tr",
			Link:        "td.td_subject a[href]",
			Author:      ".sv_member",
			Category:    ".bo_cate_link",
			Title:       "#bo_v_title > span.bo_v_tit",
			Content:     "#bo_v_con",
			Thumbnail:   "#bo_v_con img",
			Attachments: "#bo_v_file > ul > li > a",
			CreatedAt:   "#bo_v_info .if_date",
		},
		DateLayout:  "06-01-02 15:04",
		Location:    seoul,
		Concurrency: 3,
	}, nil, nil)
}

func TestCrawlPaginatesUntilLimit(t *testing.T) {
	b := &fakeBoard{}
	p := newTestPlugin(t, b)

	posts, err := p.Crawl(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, posts, 5)

	ids := make([]string, 0, len(posts))
	for _, post := range posts {
		ids = append(ids, post.ID)
	}
	require.Equal(t, []string{"100", "7", "6", "5", "4"}, ids)
	require.Equal(t, int32(2), b.listHits.Load())
	require.Equal(t, int32(5), b.detailHits.Load())
}

func TestCrawlStopsWhenBoardRunsOut(t *testing.T) {
	b := &fakeBoard{}
	p := newTestPlugin(t, b)

	posts, err := p.Crawl(context.Background(), 50)
	require.NoError(t, err)
	require.Len(t, posts, 8)
	// page 4 repeats only the pinned notice
	require.Equal(t, int32(4), b.listHits.Load())
}

func TestCrawlParsesDetail(t *testing.T) {
	p := newTestPlugin(t, &fakeBoard{})

	posts, err := p.Crawl(context.Background(), 2)
	require.NoError(t, err)

	post := posts[1]
	require.Equal(t, "7", post.ID)
	require.Equal(t, "Notice 7", post.Title)
	require.Equal(t, "writer 7", post.Author)
	require.Equal(t, []string{"학사"}, post.Category)
	require.Contains(t, post.URL, "/bbs/view.php?bo_table=notice&wr_id=7")
	require.Contains(t, post.Content, "<p>Body of 7</p>")
	require.True(t, strings.HasSuffix(post.Thumbnail, "/data/thumb-7.png"))
	require.True(t, strings.HasPrefix(post.Thumbnail, "http://"))
	require.Nil(t, post.UpdatedAt)
	require.True(t, time.Date(2026, 3, 1, 14, 30, 0, 0, seoul).Equal(post.CreatedAt))

	require.Len(t, post.Attachments, 1)
	require.Equal(t, "form 7.hwp", post.Attachments[0].Name)
	require.Equal(t, "application/x-hwp", post.Attachments[0].MimeType)

	pinned := posts[0]
	require.Equal(t, "office", pinned.Author)
	require.Equal(t, []string{}, pinned.Category)
}

func TestCrawlDetailFailureIsParseError(t *testing.T) {
	p := newTestPlugin(t, &fakeBoard{brokenID: "6"})

	_, err := p.Crawl(context.Background(), 4)
	require.Equal(t, plugin.KindParse, plugin.KindOf(err))
	require.Contains(t, err.Error(), "title not found")
}

func TestCrawlMissingTableIsParseError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body>maintenance</body></html>`)
	}))
	t.Cleanup(srv.Close)

	p := New(plugin.Info{ID: "cse"}, Config{
		ListURL:   srv.URL + "/bbs/board.php",
		PageParam: "page",
		IDParam:   "wr_id",
		Selectors: Selectors{Row: "#bo_list tbody > tr", Link: "a", Title: "h1", Content: "div"},
	}, nil, nil)

	_, err := p.Crawl(context.Background(), 10)
	require.Equal(t, plugin.KindParse, plugin.KindOf(err))
}

func TestCrawlServerErrorIsRequestError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	p := New(plugin.Info{ID: "cse"}, Config{ListURL: srv.URL, PageParam: "page", IDParam: "wr_id"}, nil, nil)
	_, err := p.Crawl(context.Background(), 10)
	require.Equal(t, plugin.KindRequest, plugin.KindOf(err))
}
