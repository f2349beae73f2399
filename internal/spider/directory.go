package spider

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"

	"github.com/trombik/rokujo-collector/internal/config"
	"github.com/trombik/rokujo-collector/internal/engine"
	"github.com/trombik/rokujo-collector/internal/extract"
)

// Directory crawls every page under the starting URL's directory and
// scrapes each one as a standalone article. The directory is the base of
// the URL's last path component: starting from /foo/bar/index.html the
// crawl stays under /foo/bar/, and starting from /index.html it covers
// the whole site.
type Directory struct {
	eng    *engine.Engine
	ex     *extract.Extractor
	logger *slog.Logger
}

// NewDirectory creates the directory spider.
func NewDirectory(eng *engine.Engine, cfg config.SpiderConfig, logger *slog.Logger) *Directory {
	return &Directory{
		eng:    eng,
		ex:     extract.New(cfg, logger),
		logger: logger.With("component", "spider.directory"),
	}
}

// Run crawls breadth-first from startURL, emitting a record for every page
// that yields article text. Pages without text, and pages that fail to
// fetch or parse, are skipped; the crawl itself only fails on a bad
// starting URL or cancellation.
func (s *Directory) Run(ctx context.Context, startURL string, emit engine.EmitFunc) error {
	if err := s.eng.AllowDomainsOf([]string{startURL}); err != nil {
		return err
	}
	host, prefix, err := dirScope(startURL)
	if err != nil {
		return err
	}
	s.logger.Info("directory crawl starting", "url", startURL, "prefix", prefix)

	var emitted int
	queue := []string{startURL}
	s.eng.MarkSeen(startURL)

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		pageURL := queue[0]
		queue = queue[1:]

		resp, err := s.eng.Fetch(ctx, pageURL)
		if err != nil {
			s.logger.Warn("page fetch failed, skipping", "url", pageURL, "error", err)
			continue
		}
		page, err := s.ex.Page(resp)
		if err != nil {
			s.logger.Warn("page parse failed, skipping", "url", pageURL, "error", err)
			continue
		}
		doc, err := resp.Document()
		if err != nil {
			s.logger.Warn("page parse failed, skipping", "url", pageURL, "error", err)
			continue
		}

		if rec := pageRecord(page); rec.Body != "" {
			if err := emit(rec); err != nil {
				return err
			}
			emitted++
		} else {
			s.logger.Debug("page has no article text, skipping", "url", pageURL)
		}

		for _, href := range pageLinks(doc, resp.FinalURL) {
			if !inScope(href, host, prefix) || s.eng.Seen(href) {
				continue
			}
			s.eng.MarkSeen(href)
			queue = append(queue, href)
		}
	}

	s.logger.Info("directory crawl complete", "records", emitted)
	return nil
}

// dirScope derives the crawl boundary from the starting URL: its host and
// the directory of its last path component, with a trailing slash.
func dirScope(rawURL string) (host, prefix string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", fmt.Errorf("parse %s: %w", rawURL, err)
	}
	p := u.Path
	if p == "" {
		p = "/"
	}
	if !strings.HasSuffix(p, "/") {
		p = path.Dir(p)
	}
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return u.Host, p, nil
}

// inScope reports whether a link stays on the crawl's host, under its
// directory prefix, and off binary documents.
func inScope(rawURL, host, prefix string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if u.Host != host || !strings.HasPrefix(u.Path, prefix) {
		return false
	}
	return !isBinaryDoc(u.Path)
}

// isBinaryDoc matches document links the crawl never treats as pages.
func isBinaryDoc(p string) bool {
	switch strings.ToLower(path.Ext(p)) {
	case ".pdf", ".docx":
		return true
	}
	return false
}
