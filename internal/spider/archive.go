package spider

import (
	"context"
	"log/slog"

	"github.com/trombik/rokujo-collector/internal/config"
	"github.com/trombik/rokujo-collector/internal/engine"
	"github.com/trombik/rokujo-collector/internal/extract"
	"github.com/trombik/rokujo-collector/internal/types"
)

// Archive is the backlog spider. It walks an archive index page by page,
// runs one readmore session per listed article, and follows the next-index
// link until the site runs out of pages. A failed article is skipped; a
// failed index page ends the walk with an error, because every later page
// depends on it.
type Archive struct {
	eng    *engine.Engine
	ex     *extract.Extractor
	cfg    config.SpiderConfig
	logger *slog.Logger
}

// NewArchive creates the archive spider.
func NewArchive(eng *engine.Engine, cfg config.SpiderConfig, logger *slog.Logger) *Archive {
	return &Archive{
		eng:    eng,
		ex:     extract.New(cfg, logger),
		cfg:    cfg,
		logger: logger.With("component", "spider.archive"),
	}
}

// Run walks the archive starting at indexURL. Records are emitted in the
// order articles are listed on the index pages. Articles already seen by the
// engine (from an earlier run with an overlapping index) are skipped.
func (s *Archive) Run(ctx context.Context, indexURL string, emit engine.EmitFunc) error {
	if err := s.eng.AllowDomainsOf([]string{indexURL}); err != nil {
		return err
	}

	visitedIndexes := make(map[string]struct{})
	pageNum := 0

	for indexURL != "" {
		canonical := engine.CanonicalizeURL(indexURL)
		if _, ok := visitedIndexes[canonical]; ok {
			s.logger.Warn("index pagination cycle detected, stopping walk", "url", indexURL)
			return nil
		}
		visitedIndexes[canonical] = struct{}{}
		pageNum++

		resp, err := s.eng.Fetch(ctx, indexURL)
		if err != nil {
			return err
		}
		articles, next, err := s.ex.Index(resp)
		if err != nil {
			return err
		}
		s.logger.Info("archive index parsed",
			"url", indexURL, "page", pageNum, "articles", len(articles), "has_next", next != "")

		var fresh []string
		for _, u := range articles {
			if s.eng.Seen(u) {
				s.logger.Debug("skipping already scraped article", "url", u)
				continue
			}
			s.eng.MarkSeen(u)
			fresh = append(fresh, u)
		}

		err = s.eng.RunOrdered(ctx, fresh, func(ctx context.Context, u string) ([]*types.ArticleRecord, error) {
			sess := newSession(s.eng, s.ex, s.cfg, s.logger, 0)
			rec, err := sess.run(ctx, u)
			if err != nil {
				return nil, err
			}
			return []*types.ArticleRecord{rec}, nil
		}, emit)
		if err != nil {
			// Individual article failures are already logged by the
			// session runner; they do not stop the walk.
			s.logger.Warn("some articles on index page failed", "url", indexURL, "error", err)
		}

		if err := ctx.Err(); err != nil {
			return err
		}
		indexURL = next
	}

	s.logger.Info("archive walk complete", "pages", pageNum)
	return nil
}
