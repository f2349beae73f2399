package spider

import (
	"context"
	"strings"
	"testing"

	"github.com/trombik/rokujo-collector/internal/config"
	"github.com/trombik/rokujo-collector/internal/types"
)

func archiveConfig() config.SpiderConfig {
	cfg := spiderConfig()
	cfg.ArchiveArticleXPath = `//main//h2[@class="title"]//a/@href`
	cfg.ArchiveNextXPath = `//div[@class="pagination"]//a/@href`
	return cfg
}

func indexPage(articleHrefs []string, nextHref string) string {
	var b strings.Builder
	b.WriteString(`<html><body><main>`)
	for _, href := range articleHrefs {
		b.WriteString(`<h2 class="title"><a href="` + href + `">見出し</a></h2>`)
	}
	b.WriteString(`</main>`)
	if nextHref != "" {
		b.WriteString(`<div class="pagination"><a href="` + nextHref + `">次へ</a></div>`)
	}
	b.WriteString(`</body></html>`)
	return b.String()
}

func collectURLs(emitted *[]string) func(rec *types.ArticleRecord) error {
	return func(rec *types.ArticleRecord) error {
		*emitted = append(*emitted, rec.URL)
		return nil
	}
}

func TestArchiveWalksAllIndexPages(t *testing.T) {
	fetcher := &siteFetcher{pages: map[string]string{
		"https://example.com/archive": indexPage(
			[]string{"/articles/1", "/articles/2"}, "/archive?page=2"),
		"https://example.com/archive?page=2": indexPage(
			[]string{"/articles/2", "/articles/3"}, ""),
		"https://example.com/articles/1": articlePage("記事一", ""),
		"https://example.com/articles/2": articlePage("記事二", ""),
		"https://example.com/articles/3": articlePage("記事三", ""),
	}}
	sp := NewArchive(testEngine(fetcher), archiveConfig(), testLogger())

	var emitted []string
	if err := sp.Run(context.Background(), "https://example.com/archive", collectURLs(&emitted)); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := []string{
		"https://example.com/articles/1",
		"https://example.com/articles/2",
		"https://example.com/articles/3",
	}
	if len(emitted) != len(want) {
		t.Fatalf("expected %d records, got %v", len(want), emitted)
	}
	for i := range want {
		if emitted[i] != want[i] {
			t.Errorf("position %d: got %s, want %s", i, emitted[i], want[i])
		}
	}
	if n := fetcher.fetchCount("https://example.com/articles/2"); n != 1 {
		t.Errorf("article listed on both pages fetched %d times, want 1", n)
	}
}

func TestArchiveSkipsFailedArticle(t *testing.T) {
	fetcher := &siteFetcher{pages: map[string]string{
		"https://example.com/archive": indexPage(
			[]string{"/articles/1", "/articles/dead", "/articles/3"}, ""),
		"https://example.com/articles/1": articlePage("記事一", ""),
		"https://example.com/articles/3": articlePage("記事三", ""),
	}}
	sp := NewArchive(testEngine(fetcher), archiveConfig(), testLogger())

	var emitted []string
	if err := sp.Run(context.Background(), "https://example.com/archive", collectURLs(&emitted)); err != nil {
		t.Fatalf("a failed article must not abort the walk, got %v", err)
	}

	want := []string{"https://example.com/articles/1", "https://example.com/articles/3"}
	if len(emitted) != len(want) {
		t.Fatalf("expected %d records, got %v", len(want), emitted)
	}
	for i := range want {
		if emitted[i] != want[i] {
			t.Errorf("position %d: got %s, want %s", i, emitted[i], want[i])
		}
	}
}

func TestArchiveAbortsOnIndexFailure(t *testing.T) {
	fetcher := &siteFetcher{pages: map[string]string{
		"https://example.com/archive": indexPage(
			[]string{"/articles/1"}, "/archive?page=2"),
		// page 2 of the index is missing
		"https://example.com/articles/1": articlePage("記事一", ""),
	}}
	sp := NewArchive(testEngine(fetcher), archiveConfig(), testLogger())

	var emitted []string
	err := sp.Run(context.Background(), "https://example.com/archive", collectURLs(&emitted))
	if err == nil {
		t.Fatal("a failed index page must abort the walk")
	}
	if len(emitted) != 1 {
		t.Errorf("records before the failure should still be emitted, got %v", emitted)
	}
}

func TestArchiveStopsOnIndexCycle(t *testing.T) {
	fetcher := &siteFetcher{pages: map[string]string{
		"https://example.com/archive": indexPage(
			[]string{"/articles/1"}, "/archive?page=2"),
		"https://example.com/archive?page=2": indexPage(
			[]string{"/articles/2"}, "/archive"),
		"https://example.com/articles/1": articlePage("記事一", ""),
		"https://example.com/articles/2": articlePage("記事二", ""),
	}}
	sp := NewArchive(testEngine(fetcher), archiveConfig(), testLogger())

	var emitted []string
	if err := sp.Run(context.Background(), "https://example.com/archive", collectURLs(&emitted)); err != nil {
		t.Fatalf("an index cycle must end the walk cleanly, got %v", err)
	}
	if len(emitted) != 2 {
		t.Errorf("expected 2 records, got %v", emitted)
	}
	if n := fetcher.fetchCount("https://example.com/archive"); n != 1 {
		t.Errorf("cycled index fetched %d times, want 1", n)
	}
}
