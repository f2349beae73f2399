package spider

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/PuerkitoBio/goquery"

	"github.com/trombik/rokujo-collector/internal/config"
	"github.com/trombik/rokujo-collector/internal/engine"
	"github.com/trombik/rokujo-collector/internal/media"
	"github.com/trombik/rokujo-collector/internal/urlutil"
)

// Download crawls a site breadth-first within a path pattern and stores
// every file whose URL matches the file pattern. Pages are deduplicated
// through the engine; files through the downloader.
type Download struct {
	eng    *engine.Engine
	dl     *media.Downloader
	fileRe *regexp.Regexp
	pathRe *regexp.Regexp
	logger *slog.Logger
}

// NewDownload creates the file-download spider. The regexps in cfg must
// compile; config validation checks that before the spider is built.
func NewDownload(eng *engine.Engine, cfg config.DownloadConfig, logger *slog.Logger) (*Download, error) {
	fileRe, err := regexp.Compile(cfg.FileRegexp)
	if err != nil {
		return nil, fmt.Errorf("file_regexp: %w", err)
	}
	pathRe, err := regexp.Compile(cfg.PathRegexp)
	if err != nil {
		return nil, fmt.Errorf("path_regexp: %w", err)
	}
	return &Download{
		eng:    eng,
		dl:     media.NewDownloader(cfg.OutputDir, cfg.MaxSizeMB, logger),
		fileRe: fileRe,
		pathRe: pathRe,
		logger: logger.With("component", "spider.download"),
	}, nil
}

// Run crawls from startURL and returns the stored files. A page that fails
// to fetch or parse is skipped; a failed file download is logged and
// skipped. The crawl stays on the starting URL's domain.
func (s *Download) Run(ctx context.Context, startURL string) ([]*media.SaveResult, error) {
	if err := s.eng.AllowDomainsOf([]string{startURL}); err != nil {
		return nil, err
	}

	var results []*media.SaveResult
	queue := []string{startURL}
	s.eng.MarkSeen(startURL)

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		pageURL := queue[0]
		queue = queue[1:]

		resp, err := s.eng.Fetch(ctx, pageURL)
		if err != nil {
			s.logger.Warn("page fetch failed, skipping", "url", pageURL, "error", err)
			continue
		}
		doc, err := resp.Document()
		if err != nil {
			s.logger.Warn("page parse failed, skipping", "url", pageURL, "error", err)
			continue
		}

		for _, href := range pageLinks(doc, resp.FinalURL) {
			switch {
			case s.fileRe.MatchString(href):
				result, err := s.dl.Save(ctx, href)
				if err != nil {
					s.logger.Warn("file download failed, skipping", "url", href, "error", err)
					continue
				}
				if result != nil {
					results = append(results, result)
				}
			case s.crawlable(href, startURL):
				s.eng.MarkSeen(href)
				queue = append(queue, href)
			}
		}
	}

	s.logger.Info("download crawl complete", "files", len(results))
	return results, nil
}

// pageLinks collects every anchor href on a page as an absolute URL,
// deduplicated in document order.
func pageLinks(doc *goquery.Document, base string) []string {
	var hrefs []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok || href == "" {
			return
		}
		abs, err := urlutil.Resolve(base, href)
		if err != nil {
			return
		}
		hrefs = append(hrefs, abs)
	})
	return urlutil.UniqueURLs(hrefs)
}

// crawlable decides whether a link is a page worth visiting: same domain,
// path within the configured pattern, not a direct file link, not seen.
func (s *Download) crawlable(href, startURL string) bool {
	if urlutil.Host(href) != urlutil.Host(startURL) {
		return false
	}
	if !urlutil.PathMatches(href, s.pathRe) {
		return false
	}
	if urlutil.IsFileURL(href) {
		return false
	}
	return !s.eng.Seen(href)
}
