package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/trombik/rokujo-collector/internal/config"
	"github.com/trombik/rokujo-collector/internal/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testEngineConfig() *config.EngineConfig {
	return &config.EngineConfig{
		Concurrency:    2,
		RequestTimeout: 5 * time.Second,
		MaxRetries:     2,
		RetryDelay:     time.Millisecond,
	}
}

// stubFetcher serves canned failures before succeeding.
type stubFetcher struct {
	mu       sync.Mutex
	failures []error
	calls    int
}

func (f *stubFetcher) Fetch(_ context.Context, req *types.Request) (*types.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.failures) > 0 {
		err := f.failures[0]
		f.failures = f.failures[1:]
		return nil, err
	}
	return &types.Response{
		StatusCode: 200,
		Body:       []byte("<html><body>ok</body></html>"),
		Request:    req,
		FinalURL:   req.URLString(),
	}, nil
}

func (f *stubFetcher) Close() error { return nil }

func TestFetchRetriesRetryableErrors(t *testing.T) {
	stub := &stubFetcher{failures: []error{
		&types.FetchError{URL: "https://example.com/a", StatusCode: 503, Err: errors.New("down"), Retryable: true},
		&types.FetchError{URL: "https://example.com/a", StatusCode: 503, Err: errors.New("down"), Retryable: true},
	}}
	eng := New(testEngineConfig(), stub, testLogger())

	resp, err := eng.Fetch(context.Background(), "https://example.com/a")
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("unexpected status %d", resp.StatusCode)
	}
	if stub.calls != 3 {
		t.Errorf("expected 3 fetch attempts, got %d", stub.calls)
	}
}

func TestFetchStopsOnPermanentError(t *testing.T) {
	stub := &stubFetcher{failures: []error{
		&types.FetchError{URL: "https://example.com/a", StatusCode: 404, Err: errors.New("not found"), Retryable: false},
	}}
	eng := New(testEngineConfig(), stub, testLogger())

	if _, err := eng.Fetch(context.Background(), "https://example.com/a"); err == nil {
		t.Fatal("expected error")
	}
	if stub.calls != 1 {
		t.Errorf("permanent error should not be retried, got %d attempts", stub.calls)
	}
}

func TestFetchExhaustsRetries(t *testing.T) {
	retryable := &types.FetchError{URL: "https://example.com/a", StatusCode: 500, Err: errors.New("boom"), Retryable: true}
	stub := &stubFetcher{failures: []error{retryable, retryable, retryable, retryable}}
	eng := New(testEngineConfig(), stub, testLogger())

	if _, err := eng.Fetch(context.Background(), "https://example.com/a"); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	// initial attempt plus MaxRetries
	if stub.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", stub.calls)
	}
}

func TestFetchRejectsDisallowedDomain(t *testing.T) {
	stub := &stubFetcher{}
	eng := New(testEngineConfig(), stub, testLogger())
	if err := eng.AllowDomainsOf([]string{"https://example.com/"}); err != nil {
		t.Fatal(err)
	}

	_, err := eng.Fetch(context.Background(), "https://other.com/a")
	if err == nil || !strings.Contains(err.Error(), "not allowed") {
		t.Fatalf("expected domain rejection, got %v", err)
	}
	if stub.calls != 0 {
		t.Errorf("disallowed fetch should not reach the fetcher")
	}
}

func TestRunOrderedEmitsInSubmissionOrder(t *testing.T) {
	eng := New(testEngineConfig(), &stubFetcher{}, testLogger())

	urls := []string{"https://example.com/1", "https://example.com/2", "https://example.com/3"}
	var started atomic.Int32

	run := func(ctx context.Context, u string) ([]*types.ArticleRecord, error) {
		// Later sessions finish first.
		n := started.Add(1)
		time.Sleep(time.Duration(4-n) * 10 * time.Millisecond)
		return []*types.ArticleRecord{{URL: u, Body: "text"}}, nil
	}

	var emitted []string
	emit := func(rec *types.ArticleRecord) error {
		emitted = append(emitted, rec.URL)
		return nil
	}

	if err := eng.RunOrdered(context.Background(), urls, run, emit); err != nil {
		t.Fatalf("RunOrdered failed: %v", err)
	}

	if len(emitted) != len(urls) {
		t.Fatalf("expected %d records, got %d", len(urls), len(emitted))
	}
	for i, u := range urls {
		if emitted[i] != u {
			t.Errorf("position %d: got %s, want %s", i, emitted[i], u)
		}
	}
}

func TestRunOrderedCollectsFailuresWithoutBlockingOthers(t *testing.T) {
	eng := New(testEngineConfig(), &stubFetcher{}, testLogger())

	urls := []string{"https://example.com/ok", "https://example.com/bad", "https://example.com/ok2"}
	run := func(ctx context.Context, u string) ([]*types.ArticleRecord, error) {
		if strings.Contains(u, "bad") {
			return nil, errors.New("article gone")
		}
		return []*types.ArticleRecord{{URL: u, Body: "text"}}, nil
	}

	var emitted []string
	emit := func(rec *types.ArticleRecord) error {
		emitted = append(emitted, rec.URL)
		return nil
	}

	err := eng.RunOrdered(context.Background(), urls, run, emit)
	if err == nil {
		t.Fatal("expected joined error for the failed session")
	}
	if !strings.Contains(err.Error(), "article gone") {
		t.Errorf("error should carry the session failure: %v", err)
	}

	want := []string{"https://example.com/ok", "https://example.com/ok2"}
	if len(emitted) != len(want) {
		t.Fatalf("expected %d records, got %d: %v", len(want), len(emitted), emitted)
	}
	for i := range want {
		if emitted[i] != want[i] {
			t.Errorf("position %d: got %s, want %s", i, emitted[i], want[i])
		}
	}

	if got := eng.Stats().SessionsFailed.Load(); got != 1 {
		t.Errorf("expected 1 failed session, got %d", got)
	}
}
