// Package spider implements the traversal strategies: the readmore spider
// (multi-page article assembly with source recursion), the archive spider
// (index pagination driving readmore sessions), the wordpress spider
// (sitemap-listed pages scraped standalone), the directory spider
// (path-scoped crawl), the feed spider, and the file-download spider.
package spider

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/trombik/rokujo-collector/internal/config"
	"github.com/trombik/rokujo-collector/internal/engine"
	"github.com/trombik/rokujo-collector/internal/extract"
	"github.com/trombik/rokujo-collector/internal/types"
)

// session is one article traversal: landing page, main article, next-page
// chain, and nested source sessions. The visited set is per session; nested
// source sessions get a fresh one.
type session struct {
	eng     *engine.Engine
	ex      *extract.Extractor
	cfg     config.SpiderConfig
	logger  *slog.Logger
	depth   int
	visited map[string]struct{}

	fragments []string
	sources   []string
}

func newSession(eng *engine.Engine, ex *extract.Extractor, cfg config.SpiderConfig, logger *slog.Logger, depth int) *session {
	return &session{
		eng:     eng,
		ex:      ex,
		cfg:     cfg,
		logger:  logger,
		depth:   depth,
		visited: make(map[string]struct{}),
	}
}

// run assembles one article record starting from a landing or article URL.
// Failures on the landing page or the main article abort the session; a
// failure further down the next-page chain keeps what was already
// accumulated. A traversal that yields no text at all aborts as well.
// The record's URL is the main article page, the read_more target when
// the landing page carries one.
func (s *session) run(ctx context.Context, startURL string) (*types.ArticleRecord, error) {
	rec := &types.ArticleRecord{
		AcquiredTime: time.Now().UTC(),
		Lang:         types.LangUndetermined,
	}

	resp, err := s.eng.Fetch(ctx, startURL)
	if err != nil {
		return nil, err
	}
	page, err := s.ex.Page(resp)
	if err != nil {
		return nil, err
	}
	s.markVisited(startURL, page.URL)

	// A landing page is only a teaser: when its read_more link is present
	// and followed, its text stays out of the body.
	if page.ReadMoreURL != "" {
		s.logger.Debug("following read_more link", "from", page.URL, "to", page.ReadMoreURL)
		resp, err = s.eng.Fetch(ctx, page.ReadMoreURL)
		if err != nil {
			return nil, err
		}
		if page, err = s.ex.Page(resp); err != nil {
			return nil, err
		}
		s.markVisited(page.URL)
	}

	rec.URL = page.URL
	s.appendText(page)
	meta := page.Meta

	for page.ReadNextURL != "" {
		next := page.ReadNextURL
		if s.isVisited(next) {
			s.logger.Warn("pagination cycle detected, stopping chain", "url", next)
			break
		}
		s.logger.Debug("following read_next link", "from", page.URL, "to", next)
		resp, err = s.eng.Fetch(ctx, next)
		if err != nil {
			s.logger.Warn("next page fetch failed, keeping partial article", "url", next, "error", err)
			break
		}
		if page, err = s.ex.Page(resp); err != nil {
			s.logger.Warn("next page parse failed, keeping partial article", "url", next, "error", err)
			break
		}
		s.markVisited(next, page.URL)
		s.appendText(page)
	}

	// Source links count only on the page where the chain ended. A link
	// that appears on an earlier page of a multi-page article is part of
	// that page's body, not a source reference.
	s.sources = s.sourceLinks(page)

	rec.Body = strings.Join(s.fragments, "\n\n")
	if rec.Body == "" {
		return nil, &types.ExtractError{URL: rec.URL, Err: types.ErrMissingBody}
	}
	applyMetadata(rec, meta)

	s.attachSources(ctx, rec)
	rec.Finalize()
	return rec, nil
}

// appendText accumulates a page's extracted text.
func (s *session) appendText(page *extract.Page) {
	if page.Text != "" {
		s.fragments = append(s.fragments, page.Text)
	}
}

// sourceLinks filters a page's source links down to unvisited ones.
func (s *session) sourceLinks(page *extract.Page) []string {
	var urls []string
	for _, src := range page.SourceURLs {
		if !s.isVisited(src) {
			urls = append(urls, src)
		}
	}
	return urls
}

// pageRecord builds a record from a single page without following any
// traversal links. The wordpress and directory spiders scrape every page
// standalone; an empty body is the caller's problem there, because index
// and navigation pages legitimately carry no article text.
func pageRecord(page *extract.Page) *types.ArticleRecord {
	rec := &types.ArticleRecord{
		AcquiredTime: time.Now().UTC(),
		URL:          page.URL,
		Lang:         types.LangUndetermined,
		Body:         page.Text,
	}
	applyMetadata(rec, page.Meta)
	rec.Finalize()
	return rec
}

// applyMetadata copies extracted metadata onto a record, keeping the
// language sentinel when detection found nothing.
func applyMetadata(rec *types.ArticleRecord, meta extract.Metadata) {
	rec.Title = meta.Title
	rec.Author = meta.Author
	rec.Description = meta.Description
	rec.Kind = meta.Kind
	rec.SiteName = meta.SiteName
	rec.PublishedTime = meta.PublishedTime
	rec.ModifiedTime = meta.ModifiedTime
	if meta.Lang != "" {
		rec.Lang = meta.Lang
	}
}

// attachSources runs a nested session per discovered source link. Each
// nested session gets fresh traversal state; its failure skips only that
// source. Depth is bounded so source pages that link each other cannot
// recurse forever.
func (s *session) attachSources(ctx context.Context, rec *types.ArticleRecord) {
	if len(s.sources) == 0 {
		return
	}
	if s.depth >= s.cfg.MaxSourceDepth {
		s.logger.Warn("source depth limit reached, not descending",
			"url", rec.URL, "depth", s.depth, "sources", len(s.sources))
		return
	}

	for _, src := range s.sources {
		nested := newSession(s.eng, s.ex, s.cfg, s.logger, s.depth+1)
		srcRec, err := nested.run(ctx, src)
		if err != nil {
			s.logger.Warn("source article failed, skipping", "url", src, "error", err)
			continue
		}
		rec.Sources = append(rec.Sources, srcRec)
	}
}

func (s *session) markVisited(urls ...string) {
	for _, u := range urls {
		if u != "" {
			s.visited[engine.CanonicalizeURL(u)] = struct{}{}
		}
	}
}

func (s *session) isVisited(rawURL string) bool {
	_, ok := s.visited[engine.CanonicalizeURL(rawURL)]
	return ok
}
