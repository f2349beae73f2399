package spider

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gorilla/feeds"
	"gopkg.in/yaml.v3"

	"github.com/trombik/rokujo-collector/internal/config"
	"github.com/trombik/rokujo-collector/internal/engine"
	"github.com/trombik/rokujo-collector/internal/extract"
	"github.com/trombik/rokujo-collector/internal/types"
	"github.com/trombik/rokujo-collector/internal/urlutil"
)

// FeedDefinition describes one generated feed: the page to scrape, the
// selectors for entry links and titles, and the output file.
type FeedDefinition struct {
	FileName   string `yaml:"file_name"`
	FeedType   string `yaml:"feed_type"`
	XPathHref  string `yaml:"xpath_href"`
	XPathTitle string `yaml:"xpath_title"`
	Title      string `yaml:"title"`
}

// LoadFeedDefinitions reads the YAML file mapping page URLs to feed
// definitions.
func LoadFeedDefinitions(path string) (map[string]FeedDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading feed config: %w", err)
	}
	defs := make(map[string]FeedDefinition)
	if err := yaml.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("parsing feed config %s: %w", path, err)
	}
	for u, def := range defs {
		if def.FileName == "" || def.XPathHref == "" {
			return nil, fmt.Errorf("feed definition for %s: file_name and xpath_href are required", u)
		}
		if def.FeedType != "" && def.FeedType != "atom" && def.FeedType != "rss" {
			return nil, fmt.Errorf("feed definition for %s: unknown feed_type %q", u, def.FeedType)
		}
	}
	return defs, nil
}

// Feed scrapes pages that have no syndication feed of their own and writes
// one, so the rest of the pipeline can watch those sites like any other.
type Feed struct {
	eng    *engine.Engine
	cfg    config.FeedConfig
	logger *slog.Logger
}

// NewFeed creates the feed spider.
func NewFeed(eng *engine.Engine, cfg config.FeedConfig, logger *slog.Logger) *Feed {
	return &Feed{
		eng:    eng,
		cfg:    cfg,
		logger: logger.With("component", "spider.feed"),
	}
}

// Run generates one feed file per definition. A failed page skips only that
// feed; the error is reported after all definitions were attempted.
func (s *Feed) Run(ctx context.Context, defs map[string]FeedDefinition) error {
	urls := make([]string, 0, len(defs))
	for u := range defs {
		urls = append(urls, u)
	}
	if err := s.eng.AllowDomainsOf(urls); err != nil {
		return err
	}

	var failed int
	for u, def := range defs {
		if err := s.generate(ctx, u, def); err != nil {
			s.logger.Error("feed generation failed", "url", u, "file", def.FileName, "error", err)
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d feeds failed", failed, len(defs))
	}
	return nil
}

func (s *Feed) generate(ctx context.Context, pageURL string, def FeedDefinition) error {
	resp, err := s.eng.Fetch(ctx, pageURL)
	if err != nil {
		return err
	}
	root, err := resp.Root()
	if err != nil {
		return err
	}

	hrefs, err := extract.AllStrings(root, def.XPathHref)
	if err != nil {
		return &types.ParseError{URL: pageURL, Selector: def.XPathHref, Err: err}
	}
	var titles []string
	if def.XPathTitle != "" {
		if titles, err = extract.AllStrings(root, def.XPathTitle); err != nil {
			return &types.ParseError{URL: pageURL, Selector: def.XPathTitle, Err: err}
		}
	}
	if len(titles) != 0 && len(titles) != len(hrefs) {
		s.logger.Warn("href and title counts differ",
			"url", pageURL, "hrefs", len(hrefs), "titles", len(titles))
	}

	now := time.Now()
	feed := &feeds.Feed{
		Title:   def.Title,
		Link:    &feeds.Link{Href: pageURL},
		Created: now,
	}
	if feed.Title == "" {
		feed.Title = pageURL
	}

	for i, href := range hrefs {
		abs, err := urlutil.Resolve(resp.FinalURL, href)
		if err != nil {
			s.logger.Warn("skipping unresolvable feed entry", "href", href, "error", err)
			continue
		}
		title := abs
		if i < len(titles) && titles[i] != "" {
			title = titles[i]
		}
		feed.Items = append(feed.Items, &feeds.Item{
			Title:   title,
			Link:    &feeds.Link{Href: abs},
			Id:      abs,
			Created: now,
		})
	}
	s.logger.Info("feed entries collected", "url", pageURL, "entries", len(feed.Items))

	var out string
	if def.FeedType == "rss" {
		out, err = feed.ToRss()
	} else {
		out, err = feed.ToAtom()
	}
	if err != nil {
		return fmt.Errorf("rendering feed: %w", err)
	}

	if err := os.MkdirAll(s.cfg.OutputDir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(s.cfg.OutputDir, def.FileName)
	if err := os.WriteFile(path, []byte(out), 0o644); err != nil {
		return fmt.Errorf("writing feed file: %w", err)
	}
	s.logger.Info("feed written", "path", path)
	return nil
}
