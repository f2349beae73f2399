// Package pipeline post-processes article records between the spiders and
// storage.
package pipeline

import (
	"log/slog"

	"github.com/trombik/rokujo-collector/internal/types"
)

// Middleware processes a record and returns the (possibly modified) record.
// Return nil to drop the record from the pipeline.
type Middleware interface {
	// Name returns the middleware's identifier.
	Name() string

	// Process transforms a record. Return nil to drop it.
	Process(rec *types.ArticleRecord) (*types.ArticleRecord, error)
}

// Pipeline chains middleware processors together.
type Pipeline struct {
	middlewares []Middleware
	logger      *slog.Logger
}

// New creates a new Pipeline.
func New(logger *slog.Logger) *Pipeline {
	return &Pipeline{
		logger: logger.With("component", "pipeline"),
	}
}

// Use adds a middleware to the pipeline chain.
func (p *Pipeline) Use(mw Middleware) {
	p.middlewares = append(p.middlewares, mw)
	p.logger.Debug("middleware added", "name", mw.Name(), "position", len(p.middlewares))
}

// Process runs a record through all middleware in order. A nil result with
// a nil error means the record was dropped.
func (p *Pipeline) Process(rec *types.ArticleRecord) (*types.ArticleRecord, error) {
	current := rec

	for _, mw := range p.middlewares {
		result, err := mw.Process(current)
		if err != nil {
			return nil, &types.PipelineError{
				Stage: mw.Name(),
				URL:   rec.URL,
				Err:   err,
			}
		}
		if result == nil {
			p.logger.Debug("record dropped", "stage", mw.Name(), "url", rec.URL)
			return nil, nil
		}
		current = result
	}

	return current, nil
}

// Len returns the number of middleware in the chain.
func (p *Pipeline) Len() int {
	return len(p.middlewares)
}

// Default builds the chain the spiders normally run with: whitespace
// trimming, empty-body dropping, URL dedup, derived-field normalization.
func Default(logger *slog.Logger) *Pipeline {
	p := New(logger)
	p.Use(&TrimMiddleware{})
	p.Use(&DropEmptyBodyMiddleware{})
	p.Use(NewDedupMiddleware())
	p.Use(&NormalizeMiddleware{})
	return p
}
