package pipeline

import (
	"strings"
	"sync"

	"github.com/trombik/rokujo-collector/internal/engine"
	"github.com/trombik/rokujo-collector/internal/types"
)

// TrimMiddleware trims surrounding whitespace from the record's string
// fields, recursing into sources.
type TrimMiddleware struct{}

func (m *TrimMiddleware) Name() string { return "trim" }

func (m *TrimMiddleware) Process(rec *types.ArticleRecord) (*types.ArticleRecord, error) {
	trimRecord(rec)
	return rec, nil
}

func trimRecord(rec *types.ArticleRecord) {
	rec.Body = strings.TrimSpace(rec.Body)
	rec.Title = strings.TrimSpace(rec.Title)
	rec.Author = strings.TrimSpace(rec.Author)
	rec.Description = strings.TrimSpace(rec.Description)
	rec.SiteName = strings.TrimSpace(rec.SiteName)
	for _, src := range rec.Sources {
		trimRecord(src)
	}
}

// DropEmptyBodyMiddleware drops records whose body is empty after trimming.
// Nested sources with empty bodies are removed from their parent instead of
// dropping the parent.
type DropEmptyBodyMiddleware struct{}

func (m *DropEmptyBodyMiddleware) Name() string { return "drop_empty_body" }

func (m *DropEmptyBodyMiddleware) Process(rec *types.ArticleRecord) (*types.ArticleRecord, error) {
	if rec.Body == "" {
		return nil, nil
	}
	kept := rec.Sources[:0]
	for _, src := range rec.Sources {
		if src.Body != "" {
			kept = append(kept, src)
		}
	}
	rec.Sources = kept
	return rec, nil
}

// DedupMiddleware drops records whose canonical URL was already emitted.
type DedupMiddleware struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewDedupMiddleware() *DedupMiddleware {
	return &DedupMiddleware{seen: make(map[string]struct{})}
}

func (m *DedupMiddleware) Name() string { return "dedup" }

func (m *DedupMiddleware) Process(rec *types.ArticleRecord) (*types.ArticleRecord, error) {
	key := engine.CanonicalizeURL(rec.URL)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.seen[key]; exists {
		return nil, nil
	}
	m.seen[key] = struct{}{}
	return rec, nil
}

// NormalizeMiddleware recomputes derived fields after the mutating
// middleware ran, recursing into sources. Runs last.
type NormalizeMiddleware struct{}

func (m *NormalizeMiddleware) Name() string { return "normalize" }

func (m *NormalizeMiddleware) Process(rec *types.ArticleRecord) (*types.ArticleRecord, error) {
	normalizeRecord(rec)
	return rec, nil
}

func normalizeRecord(rec *types.ArticleRecord) {
	for _, src := range rec.Sources {
		normalizeRecord(src)
	}
	if rec.Lang == "" {
		rec.Lang = types.LangUndetermined
	}
	rec.Finalize()
}
