package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aluiziolira/go-scrape-tululu/config"
	"github.com/aluiziolira/go-scrape-tululu/models"
	"github.com/aluiziolira/go-scrape-tululu/pipeline"
	"github.com/aluiziolira/go-scrape-tululu/scraper"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "tululu",
		Short: "Download books from the tululu.org catalog",
		Long: `tululu walks the catalog pages of one tululu.org category, saves each
book's text and cover and writes every description to descriptions.json.

Examples:
  tululu --start_page 700 --end_page 701
  tululu --skip_imgs --dest_folder library
  tululu --json_path meta --skip_txt`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := v.BindPFlags(cmd.Flags()); err != nil {
				return fmt.Errorf("bind flags: %w", err)
			}
			cfg, err := config.Load(v, cfgFile)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	def := config.DefaultConfig()
	flags := cmd.Flags()
	flags.Int("start_page", def.StartPage, "First catalog page to crawl")
	flags.Int("end_page", def.EndPage, "Last catalog page to crawl (0 discovers the last page)")
	flags.Bool("skip_imgs", def.SkipImages, "Do not download cover images")
	flags.Bool("skip_txt", def.SkipText, "Do not download book texts")
	flags.String("json_path", def.JSONPath, "Directory under dest_folder for descriptions.json")
	flags.String("dest_folder", def.DestFolder, "Root directory for all output")
	flags.String("base_url", def.BaseURL, "Site root to crawl")
	flags.String("category", def.Category, "Catalog category to crawl")
	flags.Int("fallback_end_page", def.FallbackEndPage, "Last page used when discovery fails")
	flags.Duration("timeout", def.Timeout, "Per-request timeout")
	flags.String("user_agent", def.UserAgent, "User-Agent header sent with every request")
	flags.String("metrics_addr", def.MetricsAddr, "Prometheus metrics listen address (e.g. :9090)")
	flags.Bool("no_progress", def.NoProgress, "Disable the progress bar")
	flags.BoolP("verbose", "v", def.Verbose, "Enable verbose logging")
	flags.StringVar(&cfgFile, "config", "", "Optional config file (yaml, toml or json)")

	return cmd
}

func run(parent context.Context, cfg *config.Config) error {
	logger, level := newLogger(cfg.Verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		return err
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := scraper.New(cfg)
	if err != nil {
		slog.Error("initialising scraper", slog.Any("error", err))
		return err
	}

	descriptionsPath := pipeline.DescriptionsPath(cfg.DestFolder, cfg.JSONPath)
	writer, err := pipeline.NewJSONWriter(descriptionsPath)
	if err != nil {
		slog.Error("creating writer", slog.Any("error", err))
		return err
	}
	p := pipeline.NewPipeline(writer)

	metricsServer := startMetricsServer(cfg.MetricsAddr, s.Metrics)
	defer stopMetricsServer(metricsServer)

	var bar *progressbar.ProgressBar
	if !cfg.NoProgress && isTerminal(os.Stderr) {
		bar = newProgressBar()
		s.Progress = func(bookID string, book *models.BookDescription) {
			bar.Describe(book.Title)
			_ = bar.Add(1)
		}
	}

	slog.Info("starting scrape",
		slog.String("base_url", cfg.BaseURL),
		slog.String("category", cfg.Category),
		slog.Int("start_page", cfg.StartPage),
		slog.Int("end_page", cfg.EndPage),
	)

	result, err := s.Run(ctx, p)
	if bar != nil {
		_ = bar.Finish()
	}
	if err != nil {
		slog.Error("scraping failed", slog.Any("error", err))
		return err
	}

	if err := p.Close(); err != nil {
		slog.Error("pipeline shutdown failed", slog.Any("error", err))
		return err
	}
	if err := writer.Validate(); err != nil {
		slog.Error("output validation failed", slog.Any("error", err))
		return err
	}

	printSummary(result, descriptionsPath)
	return nil
}

func newProgressBar() *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("Scraping"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("books"),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

func startMetricsServer(addr string, metrics *scraper.Metrics) *http.Server {
	if addr == "" || metrics == nil {
		return nil
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", slog.Any("error", err))
		}
	}()
	slog.Info("metrics server enabled", slog.String("addr", addr))
	return server
}

func stopMetricsServer(server *http.Server) {
	if server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("metrics server shutdown failed", slog.Any("error", err))
	}
}

func printSummary(result *models.CrawlResult, descriptionsPath string) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Scrape complete")
	fmt.Printf("  Pages:          %d-%d (%d fetched, %d skipped)\n",
		result.Range.StartPage, result.Range.EndPage, result.PageCount, len(result.SkippedPages))
	fmt.Printf("  Books:          %d\n", result.BookCount)
	fmt.Printf("  Skipped books:  %d\n", len(result.SkippedBooks))
	fmt.Printf("  Texts saved:    %d\n", result.TextFiles)
	fmt.Printf("  Covers saved:   %d\n", result.ImageFiles)
	if len(result.SkippedDownloads) > 0 {
		fmt.Printf("  Missing files:  %d\n", len(result.SkippedDownloads))
	}
	fmt.Printf("  Requests:       %d\n", result.RequestCount)
	fmt.Printf("  Duration:       %v\n", result.EndTime.Sub(result.StartTime).Round(time.Millisecond))
	fmt.Printf("  Descriptions:   %s\n", descriptionsPath)
	fmt.Println(separator)
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
