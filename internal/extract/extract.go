// Package extract evaluates the configured selector roles against fetched
// pages and pulls out article text and metadata. Selector roles form a
// closed set: read_more, read_next, source, archive_article, archive_next.
// A selector that matches nothing signals absence, not an error; only an
// unparseable document or an invalid expression is a hard failure.
package extract

import (
	"bytes"
	"log/slog"
	"net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"

	"github.com/trombik/rokujo-collector/internal/config"
	"github.com/trombik/rokujo-collector/internal/types"
	"github.com/trombik/rokujo-collector/internal/urlutil"
)

// Page is everything the traversal state machine needs from one fetched
// page: candidate link targets (absolute URLs, "" or empty when absent),
// the page's article text, and its metadata.
type Page struct {
	// URL is the page's final URL after redirects.
	URL string

	// Text is the extracted article text. Empty when the content extractor
	// found nothing; whether that is fatal depends on the traversal policy.
	Text string

	// Meta holds the optional metadata fields.
	Meta Metadata

	// ReadMoreURL is the landing-page link to the main article, or "".
	ReadMoreURL string

	// ReadNextURL is the link to the next page of the article, or "".
	ReadNextURL string

	// SourceURLs are links to source articles, deduplicated and
	// fragment-stripped, in document order.
	SourceURLs []string
}

// Extractor evaluates selectors against fetched responses.
type Extractor struct {
	cfg    config.SpiderConfig
	logger *slog.Logger
}

// New creates an Extractor for one spider's selector configuration.
func New(cfg config.SpiderConfig, logger *slog.Logger) *Extractor {
	return &Extractor{
		cfg:    cfg,
		logger: logger.With("component", "extractor"),
	}
}

// Page extracts links, text, and metadata from an article (or landing)
// page. Parse failures and invalid selector expressions are hard errors;
// absent links and failed text extraction are not.
func (e *Extractor) Page(resp *types.Response) (*Page, error) {
	root, err := resp.Root()
	if err != nil {
		return nil, err
	}

	page := &Page{URL: resp.FinalURL}

	if page.ReadMoreURL, err = e.readMoreHref(root, resp.FinalURL); err != nil {
		return nil, err
	}
	if page.ReadNextURL, err = e.readNextHref(root, resp.FinalURL); err != nil {
		return nil, err
	}
	if page.SourceURLs, err = e.sourceHrefs(root, resp.FinalURL); err != nil {
		return nil, err
	}

	article := e.runReadability(resp)
	page.Text = strings.TrimSpace(article.TextContent)
	page.Meta = e.metadata(root, article, page.Text)

	return page, nil
}

// Index extracts article URLs and the next-index URL from an archive index
// page.
func (e *Extractor) Index(resp *types.Response) (articles []string, next string, err error) {
	root, err := resp.Root()
	if err != nil {
		return nil, "", err
	}

	hrefs, err := AllStrings(root, e.cfg.ArchiveArticleXPath)
	if err != nil {
		return nil, "", &types.ParseError{URL: resp.FinalURL, Selector: e.cfg.ArchiveArticleXPath, Err: err}
	}
	for _, href := range hrefs {
		abs, err := urlutil.Resolve(resp.FinalURL, href)
		if err != nil {
			e.logger.Warn("skipping unresolvable archive link", "href", href, "error", err)
			continue
		}
		articles = append(articles, abs)
	}
	articles = urlutil.UniqueURLs(articles)

	nextHref, err := FirstString(root, e.cfg.ArchiveNextXPath)
	if err != nil {
		return nil, "", &types.ParseError{URL: resp.FinalURL, Selector: e.cfg.ArchiveNextXPath, Err: err}
	}
	if nextHref != "" {
		if next, err = urlutil.Resolve(resp.FinalURL, nextHref); err != nil {
			e.logger.Warn("skipping unresolvable next-index link", "href", nextHref, "error", err)
			next = ""
		}
	}

	return articles, next, nil
}

// readMoreHref finds the landing-page link to the main article. An explicit
// XPath overrides text matching; "/@href" is appended to it.
func (e *Extractor) readMoreHref(root *html.Node, base string) (string, error) {
	var query string
	switch {
	case e.cfg.ReadMoreXPath != "":
		query = e.cfg.ReadMoreXPath + "/@href"
	case e.cfg.ReadMore != "":
		query = `//a[contains(., ` + xpathLiteral(e.cfg.ReadMore) + `)]/@href`
	default:
		return "", nil
	}
	return e.firstHref(root, base, query)
}

// readNextHref finds the link to the next page of a multi-page article.
// Substring matching takes precedence over exact text matching.
func (e *Extractor) readNextHref(root *html.Node, base string) (string, error) {
	var query string
	switch {
	case e.cfg.ReadNextContains != "":
		query = `//a[contains(., ` + xpathLiteral(e.cfg.ReadNextContains) + `)]/@href`
	case e.cfg.ReadNext != "":
		query = `//a[text()=` + xpathLiteral(e.cfg.ReadNext) + `]/@href`
	default:
		return "", nil
	}
	return e.firstHref(root, base, query)
}

// sourceHrefs finds all source-article links. The two matching modes are
// mutually exclusive; with neither configured the role is absent.
func (e *Extractor) sourceHrefs(root *html.Node, base string) ([]string, error) {
	var query string
	switch {
	case e.cfg.SourceContains != "":
		query = `//a[contains(., ` + xpathLiteral(e.cfg.SourceContains) + `)]/@href`
	case e.cfg.SourceParentContains != "":
		// Matches <a> tags where an ancestor within 2 levels contains the text.
		query = `//a[ancestor::*[position() <= 2][contains(text(), ` + xpathLiteral(e.cfg.SourceParentContains) + `)]]/@href`
	default:
		return nil, nil
	}

	hrefs, err := AllStrings(root, query)
	if err != nil {
		return nil, &types.ParseError{URL: base, Selector: query, Err: err}
	}

	var urls []string
	for _, href := range hrefs {
		abs, err := urlutil.Resolve(base, href)
		if err != nil {
			e.logger.Warn("skipping unresolvable source link", "href", href, "error", err)
			continue
		}
		urls = append(urls, abs)
	}
	return urlutil.UniqueURLs(urls), nil
}

// firstHref evaluates a link query and absolutizes the first match.
func (e *Extractor) firstHref(root *html.Node, base, query string) (string, error) {
	href, err := FirstString(root, query)
	if err != nil {
		return "", &types.ParseError{URL: base, Selector: query, Err: err}
	}
	if href == "" {
		return "", nil
	}
	abs, err := urlutil.Resolve(base, href)
	if err != nil {
		e.logger.Warn("skipping unresolvable link", "href", href, "error", err)
		return "", nil
	}
	return abs, nil
}

// runReadability extracts article content from the raw document. Failure
// yields the zero Article — the caller decides whether missing text is
// fatal.
func (e *Extractor) runReadability(resp *types.Response) readability.Article {
	pageURL, err := url.Parse(resp.FinalURL)
	if err != nil {
		return readability.Article{}
	}

	article, err := readability.FromReader(bytes.NewReader(resp.Body), pageURL)
	if err != nil {
		e.logger.Debug("readability extraction failed", "url", resp.FinalURL, "error", err)
		return readability.Article{}
	}
	return article
}

// metadata assembles the optional fields, preferring readability output,
// then article:/og: meta tags, then JSON-LD.
func (e *Extractor) metadata(root *html.Node, article readability.Article, text string) Metadata {
	ld := parseJSONLD(root)

	return Metadata{
		Title: strings.TrimSpace(article.Title),
		Author: firstNonEmpty(
			strings.TrimSpace(article.Byline),
			metaName(root, "article:author"),
			metaProperty(root, "article:author"),
			ld.Author,
		),
		Description: firstNonEmpty(strings.TrimSpace(article.Excerpt), metaProperty(root, "og:description")),
		Kind:        metaProperty(root, "og:type"),
		SiteName:    firstNonEmpty(strings.TrimSpace(article.SiteName), metaProperty(root, "og:site_name")),
		PublishedTime: normalizeTime(firstNonEmpty(
			metaProperty(root, "article:published_time"),
			metaName(root, "article:published_time"),
			ld.DatePublished,
		)),
		ModifiedTime: normalizeTime(firstNonEmpty(
			metaProperty(root, "article:modified_time"),
			metaName(root, "article:modified_time"),
			ld.DateModified,
		)),
		Lang: detectLang(text, root),
	}
}
