package config

import (
	"time"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root configuration for the collector.
type Config struct {
	Engine   EngineConfig   `mapstructure:"engine"   yaml:"engine"`
	Fetcher  FetcherConfig  `mapstructure:"fetcher"  yaml:"fetcher"`
	Spider   SpiderConfig   `mapstructure:"spider"   yaml:"spider"`
	Feed     FeedConfig     `mapstructure:"feed"     yaml:"feed"`
	Download DownloadConfig `mapstructure:"download" yaml:"download"`
	Storage  StorageConfig  `mapstructure:"storage"  yaml:"storage"`
	Logging  LoggingConfig  `mapstructure:"logging"  yaml:"logging"`
	Routes   []Route        `mapstructure:"routes"   yaml:"routes"`
}

// EngineConfig controls the session runner.
type EngineConfig struct {
	Concurrency     int           `mapstructure:"concurrency"      yaml:"concurrency"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"  yaml:"request_timeout"`
	PolitenessDelay time.Duration `mapstructure:"politeness_delay" yaml:"politeness_delay"`
	MaxRetries      int           `mapstructure:"max_retries"      yaml:"max_retries"`
	RetryDelay      time.Duration `mapstructure:"retry_delay"      yaml:"retry_delay"`
	UserAgents      []string      `mapstructure:"user_agents"      yaml:"user_agents"`
	AllowedDomains  []string      `mapstructure:"allowed_domains"  yaml:"allowed_domains"`
}

// FetcherConfig controls the HTTP fetcher.
type FetcherConfig struct {
	FollowRedirects bool          `mapstructure:"follow_redirects"  yaml:"follow_redirects"`
	MaxRedirects    int           `mapstructure:"max_redirects"     yaml:"max_redirects"`
	MaxBodySize     int64         `mapstructure:"max_body_size"     yaml:"max_body_size"`
	TLSInsecure     bool          `mapstructure:"tls_insecure"      yaml:"tls_insecure"`
	IdleConnTimeout time.Duration `mapstructure:"idle_conn_timeout" yaml:"idle_conn_timeout"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"    yaml:"max_idle_conns"`
}

// SpiderConfig holds the per-site selector expressions for the readmore and
// archive spiders. The link roles are a closed set; there is no dynamic
// discovery.
type SpiderConfig struct {
	// ReadMore is the text of the <a> tag linking a landing page to the
	// main article.
	ReadMore string `mapstructure:"read_more" yaml:"read_more"`

	// ReadMoreXPath, when set, overrides ReadMore with an XPath expression
	// matching the <a> tag. "/@href" is appended automatically.
	ReadMoreXPath string `mapstructure:"read_more_xpath" yaml:"read_more_xpath"`

	// ReadNext is the exact text of the <a> tag linking to the next page of
	// a multi-page article.
	ReadNext string `mapstructure:"read_next" yaml:"read_next"`

	// ReadNextContains matches the next-page link by substring instead of
	// exact text. Takes precedence over ReadNext when set.
	ReadNextContains string `mapstructure:"read_next_contains" yaml:"read_next_contains"`

	// SourceContains matches <a> tags whose text contains the value.
	SourceContains string `mapstructure:"source_contains" yaml:"source_contains"`

	// SourceParentContains matches <a> tags whose near ancestor text
	// contains the value.
	SourceParentContains string `mapstructure:"source_parent_contains" yaml:"source_parent_contains"`

	// ArchiveArticleXPath selects the href attributes of article links on
	// an archive index page.
	ArchiveArticleXPath string `mapstructure:"archive_article_xpath" yaml:"archive_article_xpath"`

	// ArchiveNextXPath selects the href attribute of the next-index link on
	// an archive index page.
	ArchiveNextXPath string `mapstructure:"archive_next_xpath" yaml:"archive_next_xpath"`

	// MaxSourceDepth bounds recursion of nested source-article sessions.
	MaxSourceDepth int `mapstructure:"max_source_depth" yaml:"max_source_depth"`
}

// FeedConfig controls the feed spider.
type FeedConfig struct {
	// ConfigPath is the YAML file mapping page URLs to feed definitions.
	ConfigPath string `mapstructure:"config_path" yaml:"config_path"`

	// OutputDir is where generated feed files are written.
	OutputDir string `mapstructure:"output_dir" yaml:"output_dir"`
}

// DownloadConfig controls the file-download spider.
type DownloadConfig struct {
	OutputDir  string `mapstructure:"output_dir"  yaml:"output_dir"`
	FileRegexp string `mapstructure:"file_regexp" yaml:"file_regexp"`
	PathRegexp string `mapstructure:"path_regexp" yaml:"path_regexp"`
	MaxSizeMB  int64  `mapstructure:"max_size_mb" yaml:"max_size_mb"`
}

// StorageConfig controls record output.
type StorageConfig struct {
	Type       string `mapstructure:"type"        yaml:"type"`
	OutputPath string `mapstructure:"output_path" yaml:"output_path"`

	// MongoDB backend settings, used when Type is "mongodb".
	MongoURI        string `mapstructure:"mongo_uri"        yaml:"mongo_uri"`
	MongoDatabase   string `mapstructure:"mongo_database"   yaml:"mongo_database"`
	MongoCollection string `mapstructure:"mongo_collection" yaml:"mongo_collection"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Route maps URL patterns to a spider name and argument list for the
// resolver.
type Route struct {
	Patterns []string `mapstructure:"patterns" yaml:"patterns"`
	Spider   string   `mapstructure:"spider"   yaml:"spider"`
	Args     []string `mapstructure:"args"     yaml:"args"`
}

// DefaultConfig returns a Config with sensible defaults. Selector defaults
// target the Japanese news sites the collector was built for.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			Concurrency:     4,
			RequestTimeout:  30 * time.Second,
			PolitenessDelay: 1 * time.Second,
			MaxRetries:      3,
			RetryDelay:      2 * time.Second,
			UserAgents: []string{
				"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
				"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			},
		},
		Fetcher: FetcherConfig{
			FollowRedirects: true,
			MaxRedirects:    10,
			MaxBodySize:     10 * 1024 * 1024, // 10MB
			IdleConnTimeout: 90 * time.Second,
			MaxIdleConns:    100,
		},
		Spider: SpiderConfig{
			ReadMore:            "記事全文を読む",
			ReadNext:            "次へ",
			ArchiveArticleXPath: "//main//li[@class!=' pr']//h2[@class='title']//a/@href",
			ArchiveNextXPath:    "//div[contains(@class, 'pagination')]//a[contains(text(), '次へ')]/@href",
			MaxSourceDepth:      3,
		},
		Feed: FeedConfig{
			ConfigPath: "feed.yml",
			OutputDir:  ".",
		},
		Download: DownloadConfig{
			OutputDir:  "./downloads",
			FileRegexp: `\.pdf$`,
			PathRegexp: `^/`,
			MaxSizeMB:  100,
		},
		Storage: StorageConfig{
			Type:       "jsonl",
			OutputPath: "./output",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
