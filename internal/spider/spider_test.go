package spider

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/trombik/rokujo-collector/internal/config"
	"github.com/trombik/rokujo-collector/internal/engine"
	"github.com/trombik/rokujo-collector/internal/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testEngine(f *siteFetcher) *engine.Engine {
	cfg := &config.EngineConfig{
		Concurrency:    2,
		RequestTimeout: 5 * time.Second,
		MaxRetries:     0,
		RetryDelay:     0,
	}
	return engine.New(cfg, f, testLogger())
}

// siteFetcher serves a canned site from a URL-to-HTML map.
type siteFetcher struct {
	pages map[string]string

	mu      sync.Mutex
	fetched []string
}

func (f *siteFetcher) Fetch(_ context.Context, req *types.Request) (*types.Response, error) {
	u := req.URLString()
	f.mu.Lock()
	f.fetched = append(f.fetched, u)
	f.mu.Unlock()

	body, ok := f.pages[u]
	if !ok {
		return nil, &types.FetchError{URL: u, StatusCode: 404, Err: errors.New("not found"), Retryable: false}
	}
	return &types.Response{
		StatusCode: 200,
		Body:       []byte(body),
		Request:    req,
		FinalURL:   u,
	}, nil
}

func (f *siteFetcher) Close() error { return nil }

func (f *siteFetcher) fetchCount(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int
	for _, u := range f.fetched {
		if u == url {
			n++
		}
	}
	return n
}

// articlePage builds a page with enough body text for content extraction,
// carrying a unique marker, plus arbitrary extra markup.
func articlePage(marker, extra string) string {
	return `<html lang="ja"><body><article><p>` +
		strings.Repeat(marker+"の本文が続きます。", 15) +
		`</p></article>` + extra + `</body></html>`
}

func spiderConfig() config.SpiderConfig {
	return config.SpiderConfig{
		ReadMore:       "記事全文を読む",
		ReadNext:       "次へ",
		MaxSourceDepth: 3,
	}
}

func TestCrawlSinglePageArticle(t *testing.T) {
	fetcher := &siteFetcher{pages: map[string]string{
		"https://example.com/articles/1": articlePage("単一ページ記事", ""),
	}}
	sp := NewReadMore(testEngine(fetcher), spiderConfig(), testLogger())

	rec, err := sp.Crawl(context.Background(), "https://example.com/articles/1")
	if err != nil {
		t.Fatalf("Crawl failed: %v", err)
	}

	if !strings.Contains(rec.Body, "単一ページ記事") {
		t.Errorf("body missing article text: %q", rec.Body)
	}
	if rec.URL != "https://example.com/articles/1" {
		t.Errorf("unexpected record URL %q", rec.URL)
	}
	if rec.ItemType != types.ItemTypeArticle {
		t.Errorf("unexpected item type %q", rec.ItemType)
	}
	if rec.CharacterCount == 0 {
		t.Error("character count should be recomputed")
	}
	if rec.AcquiredTime.IsZero() {
		t.Error("acquired time should be set")
	}
}

func TestCrawlExcludesLandingPageText(t *testing.T) {
	fetcher := &siteFetcher{pages: map[string]string{
		"https://example.com/articles/1": articlePage("ランディング要約",
			`<a href="/articles/1/full">記事全文を読む</a>`),
		"https://example.com/articles/1/full": articlePage("全文本文", ""),
	}}
	sp := NewReadMore(testEngine(fetcher), spiderConfig(), testLogger())

	rec, err := sp.Crawl(context.Background(), "https://example.com/articles/1")
	if err != nil {
		t.Fatalf("Crawl failed: %v", err)
	}

	if strings.Contains(rec.Body, "ランディング要約") {
		t.Error("landing page text must be excluded when read_more is followed")
	}
	if !strings.Contains(rec.Body, "全文本文") {
		t.Errorf("main article text missing: %q", rec.Body)
	}
	if rec.URL != "https://example.com/articles/1/full" {
		t.Errorf("record URL should be the followed article page, got %q", rec.URL)
	}
}

func TestCrawlFollowsNextPageChainInOrder(t *testing.T) {
	fetcher := &siteFetcher{pages: map[string]string{
		"https://example.com/a?page=1": articlePage("一頁目",
			`<a href="/a?page=2">次へ</a>`),
		"https://example.com/a?page=2": articlePage("二頁目",
			`<a href="/a?page=3">次へ</a>`),
		"https://example.com/a?page=3": articlePage("三頁目", ""),
	}}
	sp := NewReadMore(testEngine(fetcher), spiderConfig(), testLogger())

	rec, err := sp.Crawl(context.Background(), "https://example.com/a?page=1")
	if err != nil {
		t.Fatalf("Crawl failed: %v", err)
	}

	i1 := strings.Index(rec.Body, "一頁目")
	i2 := strings.Index(rec.Body, "二頁目")
	i3 := strings.Index(rec.Body, "三頁目")
	if i1 < 0 || i2 < 0 || i3 < 0 {
		t.Fatalf("body missing page text (indexes %d %d %d): %q", i1, i2, i3, rec.Body)
	}
	if !(i1 < i2 && i2 < i3) {
		t.Errorf("page text out of visitation order (indexes %d %d %d)", i1, i2, i3)
	}
}

func TestCrawlStopsOnPaginationCycle(t *testing.T) {
	fetcher := &siteFetcher{pages: map[string]string{
		"https://example.com/a?page=1": articlePage("一頁目",
			`<a href="/a?page=2">次へ</a>`),
		"https://example.com/a?page=2": articlePage("二頁目",
			`<a href="/a?page=1">次へ</a>`),
	}}
	sp := NewReadMore(testEngine(fetcher), spiderConfig(), testLogger())

	rec, err := sp.Crawl(context.Background(), "https://example.com/a?page=1")
	if err != nil {
		t.Fatalf("cycle must be recoverable, got %v", err)
	}

	if n := fetcher.fetchCount("https://example.com/a?page=1"); n != 1 {
		t.Errorf("cycled page fetched %d times, want 1", n)
	}
	if strings.Count(rec.Body, "一頁目の本文") != 15 {
		t.Error("first page text should appear exactly once")
	}
	if !strings.Contains(rec.Body, "二頁目") {
		t.Error("second page text missing")
	}
}

func TestCrawlKeepsPartialArticleOnNextPageFailure(t *testing.T) {
	fetcher := &siteFetcher{pages: map[string]string{
		"https://example.com/a?page=1": articlePage("一頁目",
			`<a href="/a?page=2">次へ</a>`),
		// page 2 missing
	}}
	sp := NewReadMore(testEngine(fetcher), spiderConfig(), testLogger())

	rec, err := sp.Crawl(context.Background(), "https://example.com/a?page=1")
	if err != nil {
		t.Fatalf("next-page failure must keep the partial article, got %v", err)
	}
	if !strings.Contains(rec.Body, "一頁目") {
		t.Errorf("partial body missing first page text: %q", rec.Body)
	}
}

func TestCrawlAttachesSourceArticles(t *testing.T) {
	cfg := spiderConfig()
	cfg.SourceContains = "引用元"

	fetcher := &siteFetcher{pages: map[string]string{
		"https://example.com/a": articlePage("引用する記事",
			`<p><a href="/src/1">引用元:一次報道</a></p>`),
		"https://example.com/src/1": articlePage("引用された記事", ""),
	}}
	sp := NewReadMore(testEngine(fetcher), cfg, testLogger())

	rec, err := sp.Crawl(context.Background(), "https://example.com/a")
	if err != nil {
		t.Fatalf("Crawl failed: %v", err)
	}

	if rec.ItemType != types.ItemTypeArticleWithSource {
		t.Errorf("unexpected item type %q", rec.ItemType)
	}
	if len(rec.Sources) != 1 {
		t.Fatalf("expected 1 source, got %d", len(rec.Sources))
	}
	src := rec.Sources[0]
	if src.URL != "https://example.com/src/1" {
		t.Errorf("unexpected source URL %q", src.URL)
	}
	if !strings.Contains(src.Body, "引用された記事") {
		t.Errorf("source body missing: %q", src.Body)
	}
	if strings.Contains(rec.Body, "引用された記事") {
		t.Error("source text must not be merged into the parent body")
	}
	if src.ItemType != types.ItemTypeArticle {
		t.Errorf("source without own sources should be %q, got %q", types.ItemTypeArticle, src.ItemType)
	}
}

func TestCrawlIgnoresSourceLinksOnEarlierPages(t *testing.T) {
	cfg := spiderConfig()
	cfg.SourceContains = "引用元"

	fetcher := &siteFetcher{pages: map[string]string{
		"https://example.com/a?page=1": articlePage("一頁目",
			`<a href="/src/1">引用元:一次報道</a>
			 <a href="/a?page=2">次へ</a>`),
		"https://example.com/a?page=2": articlePage("二頁目", ""),
		"https://example.com/src/1":    articlePage("引用された記事", ""),
	}}
	sp := NewReadMore(testEngine(fetcher), cfg, testLogger())

	rec, err := sp.Crawl(context.Background(), "https://example.com/a?page=1")
	if err != nil {
		t.Fatalf("Crawl failed: %v", err)
	}

	if len(rec.Sources) != 0 {
		t.Fatalf("source link on a non-final page must be ignored, got %d sources", len(rec.Sources))
	}
	if rec.ItemType != types.ItemTypeArticle {
		t.Errorf("unexpected item type %q", rec.ItemType)
	}
	if n := fetcher.fetchCount("https://example.com/src/1"); n != 0 {
		t.Errorf("source page fetched %d times, want 0", n)
	}
}

func TestCrawlAttachesSourcesFromFinalPage(t *testing.T) {
	cfg := spiderConfig()
	cfg.SourceContains = "引用元"

	fetcher := &siteFetcher{pages: map[string]string{
		"https://example.com/a?page=1": articlePage("一頁目",
			`<a href="/a?page=2">次へ</a>`),
		"https://example.com/a?page=2": articlePage("二頁目",
			`<a href="/src/1">引用元:一次報道</a>`),
		"https://example.com/src/1": articlePage("引用された記事", ""),
	}}
	sp := NewReadMore(testEngine(fetcher), cfg, testLogger())

	rec, err := sp.Crawl(context.Background(), "https://example.com/a?page=1")
	if err != nil {
		t.Fatalf("Crawl failed: %v", err)
	}

	if len(rec.Sources) != 1 {
		t.Fatalf("expected 1 source from the final page, got %d", len(rec.Sources))
	}
	if rec.Sources[0].URL != "https://example.com/src/1" {
		t.Errorf("unexpected source URL %q", rec.Sources[0].URL)
	}
	if rec.ItemType != types.ItemTypeArticleWithSource {
		t.Errorf("unexpected item type %q", rec.ItemType)
	}
}

func TestCrawlSkipsFailedSource(t *testing.T) {
	cfg := spiderConfig()
	cfg.SourceContains = "引用元"

	fetcher := &siteFetcher{pages: map[string]string{
		"https://example.com/a": articlePage("引用する記事",
			`<a href="/src/dead">引用元:消えた記事</a>
			 <a href="/src/alive">引用元:残っている記事</a>`),
		"https://example.com/src/alive": articlePage("生きている引用元", ""),
	}}
	sp := NewReadMore(testEngine(fetcher), cfg, testLogger())

	rec, err := sp.Crawl(context.Background(), "https://example.com/a")
	if err != nil {
		t.Fatalf("failed source must not fail the parent, got %v", err)
	}
	if len(rec.Sources) != 1 {
		t.Fatalf("expected 1 surviving source, got %d", len(rec.Sources))
	}
	if rec.Sources[0].URL != "https://example.com/src/alive" {
		t.Errorf("unexpected source URL %q", rec.Sources[0].URL)
	}
}

func TestCrawlBoundsSourceRecursionDepth(t *testing.T) {
	cfg := spiderConfig()
	cfg.SourceContains = "引用元"
	cfg.MaxSourceDepth = 1

	fetcher := &siteFetcher{pages: map[string]string{
		"https://example.com/a": articlePage("一段目",
			`<a href="/b">引用元:二段目へ</a>`),
		"https://example.com/b": articlePage("二段目",
			`<a href="/c">引用元:三段目へ</a>`),
		"https://example.com/c": articlePage("三段目", ""),
	}}
	sp := NewReadMore(testEngine(fetcher), cfg, testLogger())

	rec, err := sp.Crawl(context.Background(), "https://example.com/a")
	if err != nil {
		t.Fatalf("Crawl failed: %v", err)
	}
	if len(rec.Sources) != 1 {
		t.Fatalf("expected 1 source at depth 1, got %d", len(rec.Sources))
	}
	if len(rec.Sources[0].Sources) != 0 {
		t.Error("depth limit should stop recursion below depth 1")
	}
	if n := fetcher.fetchCount("https://example.com/c"); n != 0 {
		t.Errorf("page beyond the depth limit was fetched %d times", n)
	}
}

func TestRunEmitsInSubmissionOrderAndSkipsDuplicates(t *testing.T) {
	fetcher := &siteFetcher{pages: map[string]string{
		"https://example.com/1": articlePage("記事一", ""),
		"https://example.com/2": articlePage("記事二", ""),
	}}
	sp := NewReadMore(testEngine(fetcher), spiderConfig(), testLogger())

	var emitted []string
	emit := func(rec *types.ArticleRecord) error {
		emitted = append(emitted, rec.URL)
		return nil
	}

	urls := []string{"https://example.com/1", "https://example.com/2", "https://example.com/1"}
	if err := sp.Run(context.Background(), urls, emit); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := []string{"https://example.com/1", "https://example.com/2"}
	if len(emitted) != len(want) {
		t.Fatalf("expected %d records, got %v", len(want), emitted)
	}
	for i := range want {
		if emitted[i] != want[i] {
			t.Errorf("position %d: got %s, want %s", i, emitted[i], want[i])
		}
	}
}
