package config

import (
	"fmt"
	"net/url"
	"regexp"
)

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	if cfg.Engine.Concurrency < 1 {
		return fmt.Errorf("engine.concurrency must be >= 1, got %d", cfg.Engine.Concurrency)
	}
	if cfg.Engine.RequestTimeout <= 0 {
		return fmt.Errorf("engine.request_timeout must be > 0")
	}
	if cfg.Engine.PolitenessDelay < 0 {
		return fmt.Errorf("engine.politeness_delay must be >= 0")
	}
	if cfg.Engine.MaxRetries < 0 {
		return fmt.Errorf("engine.max_retries must be >= 0, got %d", cfg.Engine.MaxRetries)
	}

	if cfg.Fetcher.MaxBodySize <= 0 {
		return fmt.Errorf("fetcher.max_body_size must be > 0")
	}
	if cfg.Fetcher.MaxRedirects < 0 {
		return fmt.Errorf("fetcher.max_redirects must be >= 0")
	}

	if cfg.Spider.SourceContains != "" && cfg.Spider.SourceParentContains != "" {
		return fmt.Errorf("spider.source_contains and spider.source_parent_contains are mutually exclusive")
	}
	if cfg.Spider.MaxSourceDepth < 0 {
		return fmt.Errorf("spider.max_source_depth must be >= 0, got %d", cfg.Spider.MaxSourceDepth)
	}

	if _, err := regexp.Compile(cfg.Download.FileRegexp); err != nil {
		return fmt.Errorf("download.file_regexp does not compile: %w", err)
	}
	if _, err := regexp.Compile(cfg.Download.PathRegexp); err != nil {
		return fmt.Errorf("download.path_regexp does not compile: %w", err)
	}

	validStorageTypes := map[string]bool{
		"json": true, "jsonl": true, "csv": true, "mongodb": true,
	}
	if !validStorageTypes[cfg.Storage.Type] {
		return fmt.Errorf("storage.type %q is not supported (valid: json, jsonl, csv, mongodb)", cfg.Storage.Type)
	}
	if cfg.Storage.Type == "mongodb" && cfg.Storage.MongoURI == "" {
		return fmt.Errorf("storage.mongo_uri is required for storage.type mongodb")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be debug/info/warn/error, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json', got %q", cfg.Logging.Format)
	}

	for i, route := range cfg.Routes {
		if route.Spider == "" {
			return fmt.Errorf("routes[%d].spider must not be empty", i)
		}
		if len(route.Patterns) == 0 {
			return fmt.Errorf("routes[%d].patterns must not be empty", i)
		}
		for _, p := range route.Patterns {
			if _, err := regexp.Compile(p); err != nil {
				return fmt.Errorf("routes[%d] pattern %q does not compile: %w", i, p, err)
			}
		}
	}

	return nil
}

// ValidateURL checks if a URL string is valid for crawling.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}
