package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/imagespider/imagespider/internal/aggregate"
	"github.com/imagespider/imagespider/internal/config"
	"github.com/imagespider/imagespider/internal/crawler"
	"github.com/imagespider/imagespider/internal/log"
)

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl <url> [<url>...]",
		Short: "Crawl seed URLs and archive the images they reference",
		Long: `Crawl walks pages from the given seed URLs, follows links up to the
configured depth, and downloads every image discovered along the way
into the destination directory.

Each image is stored under a name derived from its URL, so re-running a
crawl skips images already archived.

Examples:
  # Crawl one site with defaults
  imagespider crawl https://example.com/

  # Crawl two sites, two levels deep, into ./archive
  imagespider crawl --depth 2 --dest ./archive https://a.example/ https://b.example/

  # Slow down to one request per 5 seconds per host
  imagespider crawl --delay 5s https://fragile.example/

  # Use a custom configuration file
  imagespider crawl -c myconfig.yml https://example.com/

Configuration file (.imagespider.yml) example:
  sites:
    fragile.example:
      delay: 10s
      depth: 1
      headers:
        Authorization: "Bearer token"`,
		Args: cobra.ArbitraryArgs,
		RunE: runCrawlCmd,
	}

	// Crawl behavior flags
	cmd.Flags().IntP("depth", "d", config.DefaultMaxDepth,
		"Maximum link recursion depth from each seed")
	cmd.Flags().IntP("max-pages", "p", config.DefaultMaxPages,
		"Maximum number of pages to fetch in one run")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for each request")

	// Concurrency flags
	cmd.Flags().IntP("concurrency", "n", config.DefaultConcurrency,
		"Maximum number of in-flight page fetches")
	cmd.Flags().Int("host-concurrency", config.DefaultHostConcurrency,
		"Maximum in-flight fetches against a single host")
	cmd.Flags().Int("download-concurrency", config.DefaultDownloadConcurrency,
		"Number of image download workers")

	// Politeness flags
	cmd.Flags().Duration("delay", config.DefaultDelayFloor,
		"Minimum delay between requests to one host")
	cmd.Flags().Duration("max-delay", config.DefaultMaxDelay,
		"Upper bound for per-host backoff")
	cmd.Flags().StringP("user-agent", "u", "",
		"User-Agent header (default: one identity from the built-in pool)")

	// Output flags
	cmd.Flags().StringP("dest", "o", "",
		"Destination directory for downloaded images (default: XDG data dir)")

	// Transport flags
	cmd.Flags().String("proxy", "",
		"Route all traffic through the given proxy URL")

	// Configuration file
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .imagespider.yml in current or config directory)")

	return cmd
}

// runCrawlCmd executes the crawl command.
func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := setupLogger(getVerboseFlag(cmd))
	slog.SetDefault(logger)

	// Set up context with signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal, finishing in-flight work...")
		cancel()
	}()

	fmt.Fprintf(cmd.OutOrStdout(), "Crawling %d seed(s) into %s...\n", len(cfg.Seeds), cfg.DownloadDir)
	startTime := time.Now()

	result, runErr := crawler.Run(ctx, cfg)
	if result != nil {
		printSummary(cmd, result, time.Since(startTime))
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

// printSummary writes the human-readable crawl summary.
func printSummary(cmd *cobra.Command, result *aggregate.Result, elapsed time.Duration) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\nCrawl finished in %s\n", elapsed.Round(time.Millisecond))
	fmt.Fprintf(out, "  pages visited:    %d\n", len(result.Visited))
	fmt.Fprintf(out, "  images found:     %d\n", len(result.Images))
	fmt.Fprintf(out, "  images saved:     %d\n", result.ImagesSaved)
	fmt.Fprintf(out, "  already archived: %d\n", result.ImagesSkipped)
	if result.ImagesFailed > 0 {
		fmt.Fprintf(out, "  download failures: %d\n", result.ImagesFailed)
	}
	if len(result.Failures) > 0 {
		fmt.Fprintf(out, "  fetch failures:   %d\n", len(result.Failures))
		for key, class := range result.Failures {
			fmt.Fprintf(out, "    %s: %s\n", key, class)
		}
	}
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// buildConfig creates a Config from cobra command flags.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()

	var err error

	cfg.MaxDepth, err = cmd.Flags().GetInt("depth")
	if err != nil {
		return nil, err
	}

	cfg.MaxPages, err = cmd.Flags().GetInt("max-pages")
	if err != nil {
		return nil, err
	}

	cfg.Timeout, err = cmd.Flags().GetDuration("timeout")
	if err != nil {
		return nil, err
	}

	cfg.Concurrency, err = cmd.Flags().GetInt("concurrency")
	if err != nil {
		return nil, err
	}

	cfg.HostConcurrency, err = cmd.Flags().GetInt("host-concurrency")
	if err != nil {
		return nil, err
	}

	cfg.DownloadConcurrency, err = cmd.Flags().GetInt("download-concurrency")
	if err != nil {
		return nil, err
	}

	cfg.DelayFloor, err = cmd.Flags().GetDuration("delay")
	if err != nil {
		return nil, err
	}

	cfg.MaxDelay, err = cmd.Flags().GetDuration("max-delay")
	if err != nil {
		return nil, err
	}

	userAgent, err := cmd.Flags().GetString("user-agent")
	if err != nil {
		return nil, err
	}
	if userAgent != "" {
		cfg.UserAgent = userAgent
	} else {
		// No explicit identity: let the fetcher pick one from the pool.
		cfg.UserAgent = ""
		cfg.UserAgents = config.DefaultUserAgents
	}

	dest, err := cmd.Flags().GetString("dest")
	if err != nil {
		return nil, err
	}
	if dest != "" {
		cfg.DownloadDir = dest
	}

	cfg.ProxyURL, err = cmd.Flags().GetString("proxy")
	if err != nil {
		return nil, err
	}

	cfg.ConfigFilePath, err = cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	// Load per-site configuration from the config file.
	// An explicitly specified file must exist; otherwise a missing file
	// just means no overrides.
	explicitConfigPath := cfg.ConfigFilePath != ""
	configPath := config.FindConfigFile(cfg.ConfigFilePath)

	if configPath != "" {
		cfg.Sites, err = config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	} else if explicitConfigPath {
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
	}

	// Positional arguments are the seed URLs.
	cfg.Seeds = args

	return cfg, nil
}

// setupLogger creates a structured logger based on verbosity setting.
// All log output passes through the redacting handler so credentials
// embedded in URLs never reach the terminal.
func setupLogger(verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	handler := log.NewRedactHandler(slog.NewTextHandler(os.Stderr, opts))
	return slog.New(handler)
}
