package spider

import (
	"context"
	"log/slog"

	"github.com/trombik/rokujo-collector/internal/config"
	"github.com/trombik/rokujo-collector/internal/engine"
	"github.com/trombik/rokujo-collector/internal/extract"
	"github.com/trombik/rokujo-collector/internal/types"
)

// ReadMore is the article spider. Each starting URL becomes one traversal
// session that assembles a single article record, following the landing
// page's read_more link, the next-page chain, and any source links.
type ReadMore struct {
	eng    *engine.Engine
	ex     *extract.Extractor
	cfg    config.SpiderConfig
	logger *slog.Logger
}

// NewReadMore creates the article spider.
func NewReadMore(eng *engine.Engine, cfg config.SpiderConfig, logger *slog.Logger) *ReadMore {
	return &ReadMore{
		eng:    eng,
		ex:     extract.New(cfg, logger),
		cfg:    cfg,
		logger: logger.With("component", "spider.readmore"),
	}
}

// Crawl runs one traversal session for a single starting URL.
func (s *ReadMore) Crawl(ctx context.Context, startURL string) (*types.ArticleRecord, error) {
	sess := newSession(s.eng, s.ex, s.cfg, s.logger, 0)
	return sess.run(ctx, startURL)
}

// Run crawls every starting URL with bounded concurrency and hands completed
// records to emit in the order the URLs were given. Starting URLs already
// seen by the engine are skipped.
func (s *ReadMore) Run(ctx context.Context, urls []string, emit engine.EmitFunc) error {
	if err := s.eng.AllowDomainsOf(urls); err != nil {
		return err
	}

	var fresh []string
	for _, u := range urls {
		if s.eng.Seen(u) {
			s.logger.Info("skipping duplicate starting URL", "url", u)
			continue
		}
		s.eng.MarkSeen(u)
		fresh = append(fresh, u)
	}

	return s.eng.RunOrdered(ctx, fresh, func(ctx context.Context, u string) ([]*types.ArticleRecord, error) {
		rec, err := s.Crawl(ctx, u)
		if err != nil {
			return nil, err
		}
		return []*types.ArticleRecord{rec}, nil
	}, emit)
}
