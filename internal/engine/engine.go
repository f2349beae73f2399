// Package engine is the crawl-side collaborator of the traversal core: it
// owns fetching (with retry, politeness, and domain limits), cross-session
// URL dedup, and the concurrent execution of independent sessions. Inside
// one session page fetches are strictly sequential, because each step's
// target URL is only known after the previous page is extracted.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/trombik/rokujo-collector/internal/config"
	"github.com/trombik/rokujo-collector/internal/fetcher"
	"github.com/trombik/rokujo-collector/internal/types"
	"github.com/trombik/rokujo-collector/internal/urlutil"
)

// Stats tracks crawl statistics.
type Stats struct {
	RequestsSent   atomic.Int64
	RequestsFailed atomic.Int64
	ResponsesOK    atomic.Int64
	RecordsEmitted atomic.Int64
	SessionsFailed atomic.Int64
	StartTime      time.Time
}

// Snapshot returns a copy of stats safe for logging.
func (s *Stats) Snapshot() map[string]any {
	return map[string]any{
		"requests_sent":   s.RequestsSent.Load(),
		"requests_failed": s.RequestsFailed.Load(),
		"responses_ok":    s.ResponsesOK.Load(),
		"records_emitted": s.RecordsEmitted.Load(),
		"sessions_failed": s.SessionsFailed.Load(),
		"elapsed":         time.Since(s.StartTime).String(),
	}
}

// SessionFunc runs one top-level traversal session for a starting URL and
// returns every record it produced.
type SessionFunc func(ctx context.Context, url string) ([]*types.ArticleRecord, error)

// EmitFunc consumes completed records.
type EmitFunc func(rec *types.ArticleRecord) error

// Engine drives sessions against the fetcher.
type Engine struct {
	cfg    *config.EngineConfig
	fetch  fetcher.Fetcher
	dedup  *Deduplicator
	stats  *Stats
	logger *slog.Logger

	allowedMu sync.RWMutex
	allowed   map[string]bool

	throttleMu sync.Mutex
	throttle   map[string]time.Time
}

// New creates an Engine on top of a fetcher.
func New(cfg *config.EngineConfig, f fetcher.Fetcher, logger *slog.Logger) *Engine {
	e := &Engine{
		cfg:      cfg,
		fetch:    f,
		dedup:    NewDeduplicator(4096),
		stats:    &Stats{StartTime: time.Now()},
		logger:   logger.With("component", "engine"),
		allowed:  make(map[string]bool),
		throttle: make(map[string]time.Time),
	}
	for _, d := range cfg.AllowedDomains {
		e.allowed[d] = true
	}
	return e
}

// Stats returns the engine's counters.
func (e *Engine) Stats() *Stats {
	return e.stats
}

// AllowDomainsOf adds the domains of the given starting URLs to the allowed
// set, so each spider stays on the sites it was pointed at. URLs with
// internationalized domain names are punycoded first.
func (e *Engine) AllowDomainsOf(urls []string) error {
	e.allowedMu.Lock()
	defer e.allowedMu.Unlock()

	for _, raw := range urls {
		ascii, err := urlutil.IDNToASCII(raw)
		if err != nil {
			return err
		}
		if host := urlutil.Host(ascii); host != "" {
			e.allowed[host] = true
		}
	}
	e.logger.Debug("allowed domains updated", "count", len(e.allowed))
	return nil
}

// Seen reports whether a URL was already handed to a session.
func (e *Engine) Seen(rawURL string) bool {
	return e.dedup.IsSeen(rawURL)
}

// MarkSeen records a URL in the cross-session dedup layer.
func (e *Engine) MarkSeen(rawURL string) {
	e.dedup.MarkSeen(rawURL)
}

// Fetch retrieves one page for a session: domain check, per-domain
// politeness delay, retry with backoff on retryable errors.
func (e *Engine) Fetch(ctx context.Context, rawURL string) (*types.Response, error) {
	ascii, err := urlutil.IDNToASCII(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidURL, err)
	}

	if !e.isDomainAllowed(urlutil.Host(ascii)) {
		return nil, fmt.Errorf("domain %q is not allowed", urlutil.Host(ascii))
	}

	req, err := types.NewRequest(ascii)
	if err != nil {
		return nil, err
	}
	req.MaxRetries = e.cfg.MaxRetries
	req.Timeout = e.cfg.RequestTimeout

	for {
		e.applyThrottle(ctx, req.Domain())

		fetchCtx, cancel := context.WithTimeout(ctx, e.cfg.RequestTimeout)
		e.stats.RequestsSent.Add(1)
		resp, err := e.fetch.Fetch(fetchCtx, req)
		cancel()

		if err == nil {
			e.stats.ResponsesOK.Add(1)
			return resp, nil
		}
		e.stats.RequestsFailed.Add(1)

		var fetchErr *types.FetchError
		retryable := errors.As(err, &fetchErr) && fetchErr.IsRetryable()
		if !retryable || req.RetryCount >= req.MaxRetries {
			return nil, err
		}

		req.RetryCount++
		delay := e.cfg.RetryDelay
		if fetchErr.RetryAfter > 0 {
			delay = fetchErr.RetryAfter
		}
		e.logger.Warn("retrying request",
			"url", req.URLString(),
			"retry", req.RetryCount,
			"max_retries", req.MaxRetries,
			"delay", delay,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
}

// RunOrdered runs one session per starting URL with bounded concurrency and
// emits records in submission order: records of urls[0] first, then
// urls[1], and so on, regardless of completion order. Session failures are
// collected and returned joined after every session has finished; they
// never block the records of sessions that succeeded.
func (e *Engine) RunOrdered(ctx context.Context, urls []string, run SessionFunc, emit EmitFunc) error {
	type result struct {
		records []*types.ArticleRecord
		err     error
	}

	results := make([]chan result, len(urls))
	for i := range results {
		results[i] = make(chan result, 1)
	}

	sem := make(chan struct{}, e.cfg.Concurrency)
	var wg sync.WaitGroup

	for i, u := range urls {
		wg.Add(1)
		go func(i int, u string) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results[i] <- result{err: ctx.Err()}
				return
			}
			defer func() { <-sem }()

			records, err := run(ctx, u)
			results[i] <- result{records: records, err: err}
		}(i, u)
	}

	var errs []error
	for i, u := range urls {
		res := <-results[i]
		if res.err != nil {
			e.stats.SessionsFailed.Add(1)
			e.logger.Error("session failed", "url", u, "error", res.err)
			errs = append(errs, fmt.Errorf("session for %s: %w", u, res.err))
			continue
		}
		for _, rec := range res.records {
			if err := emit(rec); err != nil {
				errs = append(errs, err)
				continue
			}
			e.stats.RecordsEmitted.Add(1)
		}
	}

	wg.Wait()
	return errors.Join(errs...)
}

// isDomainAllowed checks the allowed-domain set. An empty set allows all.
func (e *Engine) isDomainAllowed(domain string) bool {
	e.allowedMu.RLock()
	defer e.allowedMu.RUnlock()

	if len(e.allowed) == 0 {
		return true
	}
	return e.allowed[domain]
}

// applyThrottle enforces the per-domain politeness delay.
func (e *Engine) applyThrottle(ctx context.Context, domain string) {
	delay := e.cfg.PolitenessDelay
	if delay <= 0 {
		return
	}

	e.throttleMu.Lock()
	last := e.throttle[domain]
	wait := delay - time.Since(last)
	if wait < 0 {
		wait = 0
	}
	e.throttle[domain] = time.Now().Add(wait)
	e.throttleMu.Unlock()

	if wait > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(wait):
		}
	}
}
