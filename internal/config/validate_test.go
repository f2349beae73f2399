package config

import (
	"strings"
	"testing"
)

func TestValidateDefaultConfig(t *testing.T) {
	if err := Validate(DefaultConfig()); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestValidateRejectsExclusiveSourceSelectors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Spider.SourceContains = "ソース"
	cfg.Spider.SourceParentContains = "引用元"

	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "mutually exclusive") {
		t.Fatalf("expected mutual-exclusion error, got %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero concurrency", func(c *Config) { c.Engine.Concurrency = 0 }},
		{"negative retries", func(c *Config) { c.Engine.MaxRetries = -1 }},
		{"negative source depth", func(c *Config) { c.Spider.MaxSourceDepth = -1 }},
		{"bad file regexp", func(c *Config) { c.Download.FileRegexp = `[unclosed` }},
		{"bad path regexp", func(c *Config) { c.Download.PathRegexp = `[unclosed` }},
		{"unknown storage type", func(c *Config) { c.Storage.Type = "xml" }},
		{"mongodb without uri", func(c *Config) { c.Storage.Type = "mongodb" }},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "logfmt" }},
		{"route without spider", func(c *Config) {
			c.Routes = []Route{{Patterns: []string{`^https://`}}}
		}},
		{"route without patterns", func(c *Config) {
			c.Routes = []Route{{Spider: "readmore"}}
		}},
		{"route with bad pattern", func(c *Config) {
			c.Routes = []Route{{Spider: "readmore", Patterns: []string{`[unclosed`}}}
		}},
	}

	for _, tt := range tests {
		cfg := DefaultConfig()
		tt.mutate(cfg)
		if err := Validate(cfg); err == nil {
			t.Errorf("%s: expected validation error", tt.name)
		}
	}
}

func TestValidateURL(t *testing.T) {
	if err := ValidateURL("https://example.com/a"); err != nil {
		t.Errorf("valid URL rejected: %v", err)
	}
	if err := ValidateURL("ftp://example.com/a"); err == nil {
		t.Error("non-http scheme should be rejected")
	}
	if err := ValidateURL("https://"); err == nil {
		t.Error("URL without host should be rejected")
	}
}

func TestLoadAppliesDefaultsWithoutConfigFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Spider.ReadMore != "記事全文を読む" {
		t.Errorf("unexpected read_more default %q", cfg.Spider.ReadMore)
	}
	if cfg.Spider.ReadNext != "次へ" {
		t.Errorf("unexpected read_next default %q", cfg.Spider.ReadNext)
	}
	if cfg.Engine.Concurrency < 1 {
		t.Errorf("unexpected concurrency default %d", cfg.Engine.Concurrency)
	}
}
