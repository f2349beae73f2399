package spider

import (
	"context"
	"strings"
	"testing"
)

const sitemapIndexXML = `<?xml version="1.0" encoding="UTF-8"?>
<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <sitemap><loc>https://example.com/sitemap-posts.xml</loc></sitemap>
  <sitemap><loc>https://example.com/sitemap-pages.xml</loc></sitemap>
</sitemapindex>`

func urlset(locs ...string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(`<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">` + "\n")
	for _, loc := range locs {
		b.WriteString("  <url><loc>" + loc + "</loc></url>\n")
	}
	b.WriteString("</urlset>")
	return b.String()
}

func TestWordPressScrapesSitemapPagesInOrder(t *testing.T) {
	fetcher := &siteFetcher{pages: map[string]string{
		"https://example.com/sitemap.xml": sitemapIndexXML,
		"https://example.com/sitemap-posts.xml": urlset(
			"https://example.com/post/1",
			"https://example.com/post/2",
		),
		"https://example.com/sitemap-pages.xml": urlset(
			"https://example.com/about",
			"https://example.com/post/3",
		),
		"https://example.com/post/1": articlePage("記事その一", ""),
		"https://example.com/post/2": articlePage("記事その二", ""),
		"https://example.com/post/3": articlePage("記事その三", ""),
		"https://example.com/about":  `<html><body><nav><a href="/">ホーム</a></nav></body></html>`,
	}}
	sp := NewWordPress(testEngine(fetcher), spiderConfig(), testLogger())

	var emitted []string
	if err := sp.Run(context.Background(), []string{"https://example.com/"}, collectURLs(&emitted)); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := []string{
		"https://example.com/post/1",
		"https://example.com/post/2",
		"https://example.com/post/3",
	}
	if len(emitted) != len(want) {
		t.Fatalf("expected %d records, got %v", len(want), emitted)
	}
	for i := range want {
		if emitted[i] != want[i] {
			t.Errorf("position %d: got %s, want %s", i, emitted[i], want[i])
		}
	}
}

func TestWordPressReadsFlatSitemap(t *testing.T) {
	fetcher := &siteFetcher{pages: map[string]string{
		"https://example.com/sitemap.xml": urlset("https://example.com/post/1"),
		"https://example.com/post/1":      articlePage("単独記事", ""),
	}}
	sp := NewWordPress(testEngine(fetcher), spiderConfig(), testLogger())

	var emitted []string
	if err := sp.Run(context.Background(), []string{"https://example.com/"}, collectURLs(&emitted)); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(emitted) != 1 || emitted[0] != "https://example.com/post/1" {
		t.Errorf("unexpected records %v", emitted)
	}
}

func TestWordPressAbortsOnMissingSitemap(t *testing.T) {
	fetcher := &siteFetcher{pages: map[string]string{
		"https://example.com/post/1": articlePage("届かない記事", ""),
	}}
	sp := NewWordPress(testEngine(fetcher), spiderConfig(), testLogger())

	var emitted []string
	if err := sp.Run(context.Background(), []string{"https://example.com/"}, collectURLs(&emitted)); err == nil {
		t.Fatal("missing sitemap must abort the run")
	}
	if len(emitted) != 0 {
		t.Errorf("no records expected, got %v", emitted)
	}
}

func TestWordPressSkipsBrokenSubSitemap(t *testing.T) {
	fetcher := &siteFetcher{pages: map[string]string{
		"https://example.com/sitemap.xml": sitemapIndexXML,
		// sitemap-posts.xml missing
		"https://example.com/sitemap-pages.xml": urlset("https://example.com/post/3"),
		"https://example.com/post/3":            articlePage("残った記事", ""),
	}}
	sp := NewWordPress(testEngine(fetcher), spiderConfig(), testLogger())

	var emitted []string
	if err := sp.Run(context.Background(), []string{"https://example.com/"}, collectURLs(&emitted)); err != nil {
		t.Fatalf("a broken sub-sitemap must not abort the run, got %v", err)
	}
	if len(emitted) != 1 || emitted[0] != "https://example.com/post/3" {
		t.Errorf("unexpected records %v", emitted)
	}
}
