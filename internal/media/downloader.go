// Package media stores files discovered by the download spider. Files are
// named by a hash of their URL so repeated runs overwrite rather than
// duplicate, and so filenames from untrusted pages never reach the
// filesystem verbatim.
package media

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// SaveResult describes one stored file.
type SaveResult struct {
	URL         string        `json:"url"`
	LocalPath   string        `json:"local_path"`
	Size        int64         `json:"size"`
	ContentType string        `json:"content_type"`
	Checksum    string        `json:"checksum"`
	Duration    time.Duration `json:"duration"`
}

// Downloader fetches and stores files. It uses its own HTTP client because
// file bodies are streamed to disk instead of buffered like page bodies.
type Downloader struct {
	outputDir string
	client    *http.Client
	maxSize   int64
	saved     atomic.Int64
	logger    *slog.Logger

	mu   sync.Mutex
	seen map[string]bool
}

// NewDownloader creates a Downloader writing into outputDir.
func NewDownloader(outputDir string, maxSizeMB int64, logger *slog.Logger) *Downloader {
	return &Downloader{
		outputDir: outputDir,
		client:    &http.Client{Timeout: 60 * time.Second},
		maxSize:   maxSizeMB * 1024 * 1024,
		logger:    logger.With("component", "downloader"),
		seen:      make(map[string]bool),
	}
}

// Save downloads one file. A URL already saved in this run is skipped and
// reported with a nil result.
func (d *Downloader) Save(ctx context.Context, rawURL string) (*SaveResult, error) {
	d.mu.Lock()
	if d.seen[rawURL] {
		d.mu.Unlock()
		return nil, nil
	}
	d.seen[rawURL] = true
	d.mu.Unlock()

	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download %s: status %d", rawURL, resp.StatusCode)
	}
	if d.maxSize > 0 && resp.ContentLength > d.maxSize {
		return nil, fmt.Errorf("download %s: %d bytes exceeds limit %d", rawURL, resp.ContentLength, d.maxSize)
	}

	contentType := resp.Header.Get("Content-Type")
	if err := os.MkdirAll(d.outputDir, 0o755); err != nil {
		return nil, err
	}
	localPath := filepath.Join(d.outputDir, hashedFilename(rawURL, contentType))

	f, err := os.Create(localPath)
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}
	defer f.Close()

	hasher := sha256.New()
	reader := io.Reader(resp.Body)
	if d.maxSize > 0 {
		reader = io.LimitReader(resp.Body, d.maxSize)
	}
	size, err := io.Copy(io.MultiWriter(f, hasher), reader)
	if err != nil {
		os.Remove(localPath)
		return nil, fmt.Errorf("write file: %w", err)
	}

	d.saved.Add(1)
	result := &SaveResult{
		URL:         rawURL,
		LocalPath:   localPath,
		Size:        size,
		ContentType: contentType,
		Checksum:    hex.EncodeToString(hasher.Sum(nil)),
		Duration:    time.Since(start),
	}

	d.logger.Debug("file saved",
		"url", rawURL,
		"path", localPath,
		"size", size,
		"duration", result.Duration,
	)
	return result, nil
}

// Saved returns the number of files stored so far.
func (d *Downloader) Saved() int64 {
	return d.saved.Load()
}

// hashedFilename derives a stable local name from the URL: a hash prefix
// plus the URL's extension, or one guessed from the content type.
func hashedFilename(rawURL, contentType string) string {
	hash := sha256.Sum256([]byte(rawURL))
	name := hex.EncodeToString(hash[:16])

	if u, err := url.Parse(rawURL); err == nil {
		if ext := strings.ToLower(path.Ext(u.Path)); ext != "" && len(ext) <= 8 {
			return name + ext
		}
	}
	if exts, _ := mime.ExtensionsByType(contentType); len(exts) > 0 {
		return name + exts[0]
	}
	return name
}
