package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/trombik/rokujo-collector/internal/config"
	"github.com/trombik/rokujo-collector/internal/engine"
	"github.com/trombik/rokujo-collector/internal/fetcher"
	"github.com/trombik/rokujo-collector/internal/pipeline"
	"github.com/trombik/rokujo-collector/internal/resolver"
	"github.com/trombik/rokujo-collector/internal/spider"
	"github.com/trombik/rokujo-collector/internal/storage"
	"github.com/trombik/rokujo-collector/internal/types"
)

var (
	cfgFile     string
	verbose     bool
	outputPath  string
	outputType  string
	concurrent  int
	delay       string
	readMore    string
	readNext    string
	feedConfig  string
	downloadDir string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "rokujo",
		Short: "rokujo-collector — article and feed scraper for sites without APIs",
		Long: `rokujo-collector scrapes news sites that spread articles over landing
pages, paginated bodies, and quoted source articles, and assembles each
article into a single record.

Spiders:
  readmore   one record per starting URL, following read_more/read_next links
  archive    walk an archive index and scrape every listed article
  wordpress  scrape every page a site's sitemap.xml lists
  directory  scrape every page under a URL's directory
  feed       generate Atom/RSS feeds for pages that have none
  download   crawl a site section and store matching files`,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(readmoreCmd())
	rootCmd.AddCommand(archiveCmd())
	rootCmd.AddCommand(wordpressCmd())
	rootCmd.AddCommand(directoryCmd())
	rootCmd.AddCommand(feedCmd())
	rootCmd.AddCommand(downloadCmd())
	rootCmd.AddCommand(resolveCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// readmoreCmd creates the "readmore" subcommand.
func readmoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "readmore [url]...",
		Short: "Scrape articles starting from landing or article pages",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runReadmore,
	}
	addScrapeFlags(cmd)
	return cmd
}

// archiveCmd creates the "archive" subcommand.
func archiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive [index-url]",
		Short: "Scrape every article listed on a paginated archive index",
		Args:  cobra.ExactArgs(1),
		RunE:  runArchive,
	}
	addScrapeFlags(cmd)
	return cmd
}

func addScrapeFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "output directory")
	cmd.Flags().StringVarP(&outputType, "format", "f", "", "output format: json, jsonl, csv, mongodb")
	cmd.Flags().IntVarP(&concurrent, "concurrency", "n", 0, "number of concurrent sessions")
	cmd.Flags().StringVar(&delay, "delay", "", "politeness delay between requests per domain")
	cmd.Flags().StringVar(&readMore, "read-more", "", "text of the link from a landing page to the article")
	cmd.Flags().StringVar(&readNext, "read-next", "", "text of the link to the next page of an article")
}

// wordpressCmd creates the "wordpress" subcommand.
func wordpressCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wordpress [site-url]...",
		Short: "Scrape every page listed in each site's sitemap.xml",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runWordpress,
	}
	addScrapeFlags(cmd)
	return cmd
}

// directoryCmd creates the "directory" subcommand.
func directoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "directory [url]",
		Short: "Scrape every page under the URL's directory",
		Args:  cobra.ExactArgs(1),
		RunE:  runDirectory,
	}
	addScrapeFlags(cmd)
	return cmd
}

// feedCmd creates the "feed" subcommand.
func feedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Generate Atom/RSS feeds from the configured pages",
		Args:  cobra.NoArgs,
		RunE:  runFeed,
	}
	cmd.Flags().StringVar(&feedConfig, "feed-config", "", "YAML file mapping page URLs to feed definitions")
	return cmd
}

// downloadCmd creates the "download" subcommand.
func downloadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "download [url]",
		Short: "Crawl a site section and store files matching the configured pattern",
		Args:  cobra.ExactArgs(1),
		RunE:  runDownload,
	}
	cmd.Flags().StringVarP(&downloadDir, "output", "o", "", "directory for downloaded files")
	return cmd
}

// resolveCmd creates the "resolve" subcommand.
func resolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve [url]...",
		Short: "Print which spider the route table assigns to each URL",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := setupLogger(nil)
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			res, err := resolver.New(cfg.Routes, logger)
			if err != nil {
				return fmt.Errorf("build resolver: %w", err)
			}

			var unresolved int
			for _, rawURL := range args {
				resolution, err := res.Resolve(rawURL)
				if err != nil {
					fmt.Printf("%s\t(no route)\n", rawURL)
					unresolved++
					continue
				}
				if len(resolution.Args) > 0 {
					fmt.Printf("%s\t%s %s\n", rawURL, resolution.Spider, strings.Join(resolution.Args, " "))
				} else {
					fmt.Printf("%s\t%s\n", rawURL, resolution.Spider)
				}
			}
			if unresolved > 0 {
				return fmt.Errorf("%d of %d URLs have no route", unresolved, len(args))
			}
			return nil
		},
	}
}

// runReadmore executes the readmore command.
func runReadmore(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadScrapeConfig(args)
	if err != nil {
		return err
	}

	eng, httpFetcher, err := buildEngine(cfg, logger)
	if err != nil {
		return err
	}
	defer httpFetcher.Close()

	store, err := storage.New(cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("create storage: %w", err)
	}

	ctx, stop := signalContext(logger)
	defer stop()

	start := time.Now()
	sp := spider.NewReadMore(eng, cfg.Spider, logger)
	runErr := sp.Run(ctx, args, emitFunc(pipeline.Default(logger), store))

	if err := store.Close(); err != nil {
		logger.Error("closing storage failed", "error", err)
		if runErr == nil {
			runErr = err
		}
	}
	logSummary(logger, eng, start)
	return runErr
}

// runArchive executes the archive command.
func runArchive(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadScrapeConfig(args)
	if err != nil {
		return err
	}
	if cfg.Spider.ArchiveArticleXPath == "" {
		return fmt.Errorf("archive_article_xpath is not configured")
	}

	eng, httpFetcher, err := buildEngine(cfg, logger)
	if err != nil {
		return err
	}
	defer httpFetcher.Close()

	store, err := storage.New(cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("create storage: %w", err)
	}

	ctx, stop := signalContext(logger)
	defer stop()

	start := time.Now()
	sp := spider.NewArchive(eng, cfg.Spider, logger)
	runErr := sp.Run(ctx, args[0], emitFunc(pipeline.Default(logger), store))

	if err := store.Close(); err != nil {
		logger.Error("closing storage failed", "error", err)
		if runErr == nil {
			runErr = err
		}
	}
	logSummary(logger, eng, start)
	return runErr
}

// runWordpress executes the wordpress command.
func runWordpress(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadScrapeConfig(args)
	if err != nil {
		return err
	}

	eng, httpFetcher, err := buildEngine(cfg, logger)
	if err != nil {
		return err
	}
	defer httpFetcher.Close()

	store, err := storage.New(cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("create storage: %w", err)
	}

	ctx, stop := signalContext(logger)
	defer stop()

	start := time.Now()
	sp := spider.NewWordPress(eng, cfg.Spider, logger)
	runErr := sp.Run(ctx, args, emitFunc(pipeline.Default(logger), store))

	if err := store.Close(); err != nil {
		logger.Error("closing storage failed", "error", err)
		if runErr == nil {
			runErr = err
		}
	}
	logSummary(logger, eng, start)
	return runErr
}

// runDirectory executes the directory command.
func runDirectory(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadScrapeConfig(args)
	if err != nil {
		return err
	}

	eng, httpFetcher, err := buildEngine(cfg, logger)
	if err != nil {
		return err
	}
	defer httpFetcher.Close()

	store, err := storage.New(cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("create storage: %w", err)
	}

	ctx, stop := signalContext(logger)
	defer stop()

	start := time.Now()
	sp := spider.NewDirectory(eng, cfg.Spider, logger)
	runErr := sp.Run(ctx, args[0], emitFunc(pipeline.Default(logger), store))

	if err := store.Close(); err != nil {
		logger.Error("closing storage failed", "error", err)
		if runErr == nil {
			runErr = err
		}
	}
	logSummary(logger, eng, start)
	return runErr
}

// runFeed executes the feed command.
func runFeed(cmd *cobra.Command, args []string) error {
	logger := setupLogger(nil)
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if feedConfig != "" {
		cfg.Feed.ConfigPath = feedConfig
	}
	logger = setupLogger(&cfg.Logging)

	defs, err := spider.LoadFeedDefinitions(cfg.Feed.ConfigPath)
	if err != nil {
		return err
	}
	if len(defs) == 0 {
		return fmt.Errorf("feed config %s defines no feeds", cfg.Feed.ConfigPath)
	}

	eng, httpFetcher, err := buildEngine(cfg, logger)
	if err != nil {
		return err
	}
	defer httpFetcher.Close()

	ctx, stop := signalContext(logger)
	defer stop()

	return spider.NewFeed(eng, cfg.Feed, logger).Run(ctx, defs)
}

// runDownload executes the download command.
func runDownload(cmd *cobra.Command, args []string) error {
	logger := setupLogger(nil)
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if downloadDir != "" {
		cfg.Download.OutputDir = downloadDir
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	logger = setupLogger(&cfg.Logging)

	eng, httpFetcher, err := buildEngine(cfg, logger)
	if err != nil {
		return err
	}
	defer httpFetcher.Close()

	sp, err := spider.NewDownload(eng, cfg.Download, logger)
	if err != nil {
		return err
	}

	ctx, stop := signalContext(logger)
	defer stop()

	start := time.Now()
	results, err := sp.Run(ctx, args[0])
	logSummary(logger, eng, start)
	if err != nil {
		return err
	}

	fmt.Printf("stored %d files in %s\n", len(results), cfg.Download.OutputDir)
	return nil
}

// versionCmd creates the "version" subcommand.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("rokujo-collector %s\n", config.Version)
		},
	}
}

// configCmd creates the "config" subcommand for inspecting configuration.
func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			fmt.Printf("Engine:\n")
			fmt.Printf("  Concurrency:       %d\n", cfg.Engine.Concurrency)
			fmt.Printf("  Request Timeout:   %s\n", cfg.Engine.RequestTimeout)
			fmt.Printf("  Politeness Delay:  %s\n", cfg.Engine.PolitenessDelay)
			fmt.Printf("  Max Retries:       %d\n", cfg.Engine.MaxRetries)
			fmt.Printf("  User Agents:       %d configured\n", len(cfg.Engine.UserAgents))
			fmt.Printf("\nSpider:\n")
			fmt.Printf("  Read More:         %q\n", cfg.Spider.ReadMore)
			fmt.Printf("  Read Next:         %q\n", cfg.Spider.ReadNext)
			fmt.Printf("  Max Source Depth:  %d\n", cfg.Spider.MaxSourceDepth)
			fmt.Printf("  Archive Articles:  %s\n", cfg.Spider.ArchiveArticleXPath)
			fmt.Printf("  Archive Next:      %s\n", cfg.Spider.ArchiveNextXPath)
			fmt.Printf("\nFeed:\n")
			fmt.Printf("  Config Path:       %s\n", cfg.Feed.ConfigPath)
			fmt.Printf("  Output Dir:        %s\n", cfg.Feed.OutputDir)
			fmt.Printf("\nDownload:\n")
			fmt.Printf("  Output Dir:        %s\n", cfg.Download.OutputDir)
			fmt.Printf("  File Pattern:      %s\n", cfg.Download.FileRegexp)
			fmt.Printf("  Path Pattern:      %s\n", cfg.Download.PathRegexp)
			fmt.Printf("\nStorage:\n")
			fmt.Printf("  Type:              %s\n", cfg.Storage.Type)
			fmt.Printf("  Output Path:       %s\n", cfg.Storage.OutputPath)
			fmt.Printf("\nRoutes:             %d configured\n", len(cfg.Routes))
			return nil
		},
	}
}

// loadScrapeConfig loads and validates configuration for the record-emitting
// commands, applying CLI overrides and checking the starting URLs.
func loadScrapeConfig(urls []string) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	applyCLIOverrides(cfg)

	if err := config.Validate(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}
	for _, rawURL := range urls {
		if err := config.ValidateURL(rawURL); err != nil {
			return nil, nil, fmt.Errorf("invalid URL %q: %w", rawURL, err)
		}
	}

	logger := setupLogger(&cfg.Logging)
	return cfg, logger, nil
}

// buildEngine wires the fetcher into an engine.
func buildEngine(cfg *config.Config, logger *slog.Logger) (*engine.Engine, fetcher.Fetcher, error) {
	httpFetcher, err := fetcher.NewHTTPFetcher(cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("create fetcher: %w", err)
	}
	return engine.New(&cfg.Engine, httpFetcher, logger), httpFetcher, nil
}

// emitFunc runs each completed record through the pipeline and stores what
// survives.
func emitFunc(pipe *pipeline.Pipeline, store storage.Storage) engine.EmitFunc {
	return func(rec *types.ArticleRecord) error {
		processed, err := pipe.Process(rec)
		if err != nil {
			return err
		}
		if processed == nil {
			return nil
		}
		return store.Store(processed)
	}
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext(logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		if ctx.Err() == context.Canceled {
			logger.Info("shutting down")
		}
	}()
	return ctx, stop
}

// logSummary logs the engine counters after a run.
func logSummary(logger *slog.Logger, eng *engine.Engine, start time.Time) {
	stats := eng.Stats().Snapshot()
	logger.Info("run complete",
		"elapsed", time.Since(start).Round(time.Millisecond),
		"requests", stats["requests_sent"],
		"failed", stats["requests_failed"],
		"records", stats["records_emitted"],
		"sessions_failed", stats["sessions_failed"],
	)
}

// setupLogger creates a structured logger. Called once with nil before the
// config is loaded, then again with the loaded logging settings.
func setupLogger(cfg *config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	format := "text"
	if cfg != nil {
		switch strings.ToLower(cfg.Level) {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
		format = strings.ToLower(cfg.Format)
	}
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// applyCLIOverrides applies command-line flag values to the config.
func applyCLIOverrides(cfg *config.Config) {
	if concurrent > 0 {
		cfg.Engine.Concurrency = concurrent
	}
	if delay != "" {
		if d, err := time.ParseDuration(delay); err == nil {
			cfg.Engine.PolitenessDelay = d
		}
	}
	if outputPath != "" {
		cfg.Storage.OutputPath = outputPath
	}
	if outputType != "" {
		cfg.Storage.Type = strings.ToLower(outputType)
	}
	if readMore != "" {
		cfg.Spider.ReadMore = readMore
	}
	if readNext != "" {
		cfg.Spider.ReadNext = readNext
	}
}
