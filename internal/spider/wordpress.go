package spider

import (
	"context"
	"encoding/xml"
	"errors"
	"log/slog"
	"strings"

	"github.com/trombik/rokujo-collector/internal/config"
	"github.com/trombik/rokujo-collector/internal/engine"
	"github.com/trombik/rokujo-collector/internal/extract"
	"github.com/trombik/rokujo-collector/internal/types"
	"github.com/trombik/rokujo-collector/internal/urlutil"
)

// Nested sitemap indexes deeper than this are treated as broken.
const maxSitemapDepth = 4

var errTooDeep = errors.New("sitemap index nesting too deep")

// WordPress scrapes every page listed in a site's sitemap.xml. Each listed
// page is scraped standalone, with no read_more or read_next traversal;
// WordPress sites expose the full article at the sitemap URL.
type WordPress struct {
	eng    *engine.Engine
	ex     *extract.Extractor
	logger *slog.Logger
}

// NewWordPress creates the sitemap spider.
func NewWordPress(eng *engine.Engine, cfg config.SpiderConfig, logger *slog.Logger) *WordPress {
	return &WordPress{
		eng:    eng,
		ex:     extract.New(cfg, logger),
		logger: logger.With("component", "spider.wordpress"),
	}
}

// sitemapDoc is the subset of the sitemap protocol the spider reads. A
// document is either an index of further sitemaps or a set of page URLs.
type sitemapDoc struct {
	Sitemaps []sitemapRef `xml:"sitemap"`
	URLs     []sitemapRef `xml:"url"`
}

type sitemapRef struct {
	Loc string `xml:"loc"`
}

// Run scrapes every site in siteURLs through its sitemap.xml. Records are
// emitted in sitemap listing order. A sitemap that cannot be fetched or
// parsed aborts the run, the way a broken archive index does; a page
// without article text is skipped.
func (s *WordPress) Run(ctx context.Context, siteURLs []string, emit engine.EmitFunc) error {
	if err := s.eng.AllowDomainsOf(siteURLs); err != nil {
		return err
	}

	var pages []string
	for _, site := range siteURLs {
		sitemapURL, err := urlutil.Resolve(site, "sitemap.xml")
		if err != nil {
			return err
		}
		found, err := s.collect(ctx, sitemapURL, 0)
		if err != nil {
			return err
		}
		s.logger.Info("sitemap read", "url", sitemapURL, "pages", len(found))
		pages = append(pages, found...)
	}
	pages = urlutil.UniqueURLs(pages)

	var fresh []string
	for _, u := range pages {
		if s.eng.Seen(u) {
			s.logger.Debug("skipping already scraped page", "url", u)
			continue
		}
		s.eng.MarkSeen(u)
		fresh = append(fresh, u)
	}

	return s.eng.RunOrdered(ctx, fresh, func(ctx context.Context, u string) ([]*types.ArticleRecord, error) {
		resp, err := s.eng.Fetch(ctx, u)
		if err != nil {
			return nil, err
		}
		page, err := s.ex.Page(resp)
		if err != nil {
			return nil, err
		}
		rec := pageRecord(page)
		if rec.Body == "" {
			s.logger.Debug("page has no article text, skipping", "url", u)
			return nil, nil
		}
		return []*types.ArticleRecord{rec}, nil
	}, emit)
}

// collect reads one sitemap document and returns the page URLs it lists,
// descending into sub-sitemaps when the document is a sitemap index. A
// failed sub-sitemap is skipped; the root sitemap itself must load.
func (s *WordPress) collect(ctx context.Context, sitemapURL string, depth int) ([]string, error) {
	if depth > maxSitemapDepth {
		return nil, &types.ParseError{URL: sitemapURL, Selector: "sitemapindex", Err: errTooDeep}
	}

	resp, err := s.eng.Fetch(ctx, sitemapURL)
	if err != nil {
		return nil, err
	}
	var doc sitemapDoc
	if err := xml.Unmarshal(resp.Body, &doc); err != nil {
		return nil, &types.ParseError{URL: sitemapURL, Selector: "urlset", Err: err}
	}

	if len(doc.Sitemaps) > 0 {
		var urls []string
		for _, ref := range doc.Sitemaps {
			loc := strings.TrimSpace(ref.Loc)
			if loc == "" {
				continue
			}
			sub, err := s.collect(ctx, loc, depth+1)
			if err != nil {
				s.logger.Warn("sub-sitemap failed, skipping", "url", loc, "error", err)
				continue
			}
			urls = append(urls, sub...)
		}
		return urls, nil
	}

	var urls []string
	for _, ref := range doc.URLs {
		if loc := strings.TrimSpace(ref.Loc); loc != "" {
			urls = append(urls, loc)
		}
	}
	return urls, nil
}
