package spider

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/trombik/rokujo-collector/internal/config"
)

func TestDownloadCrawlsAndStoresMatchingFiles(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		fmt.Fprintf(w, "pdf content for %s", r.URL.Path)
	}))
	defer server.Close()

	fetcher := &siteFetcher{pages: map[string]string{
		"https://example.com/docs/": `<html><body>
<a href="/docs/reports/">年次報告</a>
<a href="` + server.URL + `/files/a.pdf">報告書A</a>
<a href="/blog/">対象外のセクション</a>
<a href="https://other.com/docs/x">別サイト</a>
</body></html>`,
		"https://example.com/docs/reports/": `<html><body>
<a href="` + server.URL + `/files/b.pdf">報告書B</a>
<a href="/docs/">戻る</a>
</body></html>`,
		"https://example.com/blog/": `<html><body>should not be crawled</body></html>`,
	}}

	outDir := t.TempDir()
	cfg := config.DownloadConfig{
		OutputDir:  outDir,
		FileRegexp: `\.pdf$`,
		PathRegexp: `^/docs/`,
		MaxSizeMB:  1,
	}
	sp, err := NewDownload(testEngine(fetcher), cfg, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	results, err := sp.Run(context.Background(), "https://example.com/docs/")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(results) != 2 {
		t.Fatalf("expected 2 stored files, got %d", len(results))
	}
	for _, res := range results {
		data, err := os.ReadFile(res.LocalPath)
		if err != nil {
			t.Errorf("stored file unreadable: %v", err)
			continue
		}
		if len(data) == 0 || res.Size != int64(len(data)) {
			t.Errorf("size mismatch for %s: reported %d, on disk %d", res.URL, res.Size, len(data))
		}
		if res.Checksum == "" {
			t.Errorf("missing checksum for %s", res.URL)
		}
	}

	if n := fetcher.fetchCount("https://example.com/blog/"); n != 0 {
		t.Errorf("page outside path pattern was crawled %d times", n)
	}
	if n := fetcher.fetchCount("https://example.com/docs/"); n != 1 {
		t.Errorf("start page fetched %d times, want 1", n)
	}
}

func TestDownloadRejectsBadPatterns(t *testing.T) {
	cfg := config.DownloadConfig{FileRegexp: `[unclosed`, PathRegexp: `^/`}
	if _, err := NewDownload(testEngine(&siteFetcher{}), cfg, testLogger()); err == nil {
		t.Fatal("expected error for invalid file_regexp")
	}
}
