package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"repowiki/internal/config"
	"repowiki/internal/crawler"
	"repowiki/internal/generator"
	"repowiki/internal/git"
	"repowiki/internal/github"
	"repowiki/internal/llm"
	"repowiki/internal/mcpserver"
	"repowiki/internal/metrics"
	"repowiki/internal/pathfilter"
	"repowiki/internal/pipeline"
	"repowiki/internal/storage"
	"repowiki/internal/wiki"
)

var (
	rootCmd = &cobra.Command{
		Use:   "repowiki",
		Short: "Evidence-grounded wiki generator for GitHub repositories",
	}
	configPath string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to the YAML config file")

	analyzeCmd.Flags().String("ref", "", "Branch, tag or commit to analyze (default branch if empty)")
	analyzeCmd.Flags().Bool("force", false, "Ignore a cached analysis for the same commit")
	analyzeCmd.Flags().String("out", "", "Output directory (defaults to output.dir from config)")
	analyzeCmd.Flags().String("dir", "", "Analyze a local checkout instead of fetching from GitHub")

	showCmd.Flags().String("sha", "", "Commit SHA of the cached analysis")
	_ = showCmd.MarkFlagRequired("sha")

	serveCmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(serveCmd)
}

// app bundles the long-lived components shared by the commands.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   storage.Store
	metrics *metrics.Metrics
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel()}))
	slog.SetDefault(logger)

	store, err := storage.Open(ctx, cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}
	return &app{cfg: cfg, logger: logger, store: store, metrics: metrics.New()}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("failed to close cache", "error", err)
	}
}

// analyzer wires the generation backend and fetcher into a pipeline. A
// non-empty localDir reads from that checkout instead of GitHub.
func (a *app) analyzer(ctx context.Context, localDir string) (*pipeline.Analyzer, error) {
	if a.cfg.AI.APIKey == "" {
		return nil, fmt.Errorf("AI API key not configured")
	}
	gen, err := llm.NewGenerator(ctx, llm.Options{
		Provider:    a.cfg.AI.Provider,
		APIKey:      a.cfg.AI.APIKey,
		Model:       a.cfg.AI.Model,
		BaseURL:     a.cfg.AI.BaseURL,
		Timeout:     a.cfg.AI.Timeout,
		MaxAttempts: a.cfg.AI.MaxAttempts,
		RPS:         a.cfg.AI.RPS,
		Burst:       a.cfg.AI.Burst,
		Logger:      a.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create generator: %w", err)
	}
	gen = llm.Chain(gen, a.metrics.Instrument())

	engine := generator.NewEngine(gen, generator.Options{
		MaxTreePaths:   a.cfg.Pipeline.MaxTreePaths,
		MaxSignalPaths: a.cfg.Pipeline.MaxSignalPaths,
		EvidenceFiles:  a.cfg.Pipeline.EvidenceFiles,
	}, a.logger)

	var fetcher pipeline.Fetcher
	if localDir != "" {
		cr := crawler.NewCrawler(localDir)
		if a.cfg.GitHub.MaxFileBytes > 0 {
			cr.MaxFileBytes = a.cfg.GitHub.MaxFileBytes
		}
		fetcher = cr
	} else {
		fetcher = github.NewClient(github.Options{
			Token:        a.cfg.GitHub.Token,
			APIURL:       a.cfg.GitHub.APIURL,
			MaxFileBytes: a.cfg.GitHub.MaxFileBytes,
			Concurrency:  a.cfg.GitHub.Concurrency,
			MaxAttempts:  a.cfg.GitHub.MaxAttempts,
			Logger:       a.logger,
		})
	}

	return pipeline.NewAnalyzer(fetcher, engine, a.store, pipeline.Options{
		Filter:      pathfilter.Filter{Exclude: a.cfg.Pipeline.Exclude},
		Concurrency: a.cfg.Pipeline.Concurrency,
		Metrics:     a.metrics,
		Logger:      a.logger,
	}), nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze [owner/repo]",
	Short: "Analyze a repository and write its wiki pages",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ref, _ := cmd.Flags().GetString("ref")
		force, _ := cmd.Flags().GetBool("force")
		outDir, _ := cmd.Flags().GetString("out")
		localDir, _ := cmd.Flags().GetString("dir")

		ctx, cancel := signalContext()
		defer cancel()

		owner, repo, err := resolveTarget(ctx, args, localDir)
		if err != nil {
			log.Fatalf("Invalid target: %v", err)
		}

		a, err := newApp(ctx)
		if err != nil {
			log.Fatalf("Failed to initialize: %v", err)
		}
		defer a.Close()
		if outDir == "" {
			outDir = a.cfg.Output.Dir
		}

		analyzer, err := a.analyzer(ctx, localDir)
		if err != nil {
			log.Fatalf("Failed to initialize pipeline: %v", err)
		}

		fmt.Printf("🚀 Analyzing %s/%s...\n", owner, repo)
		start := time.Now()
		res, err := analyzer.Analyze(ctx, pipeline.Request{Owner: owner, Repo: repo, Ref: ref, Force: force})
		target := filepath.Join(outDir, pageDirName(owner, repo))
		if res != nil && res.Report != nil {
			if saveErr := res.Report.Save(filepath.Join(target, "run_report.json")); saveErr != nil {
				log.Printf("Warning: failed to save run report: %v", saveErr)
			}
		}
		if err != nil {
			if code := wiki.CodeOf(err); code != "" {
				log.Fatalf("Analysis failed [%s]: %v", code, err)
			}
			log.Fatalf("Analysis failed: %v", err)
		}

		rec := res.Record
		if res.CacheHit {
			fmt.Printf("♻️  Cache hit for commit %s.\n", shortSHA(rec.HeadSHA))
		} else {
			fmt.Printf("✅ Analyzed commit %s in %v.\n", shortSHA(rec.HeadSHA), time.Since(start).Round(time.Millisecond))
		}
		fmt.Printf("  -> %d subsystems, %d pages, %d citations\n",
			len(rec.Result.Subsystems), len(rec.Result.WikiPages), countCitations(rec))
		if n := countFallbackPages(rec); n > 0 {
			fmt.Printf("  -> ⚠️  %d subsystem(s) used fallback evidence\n", n)
		}
		for _, sig := range res.Report.Signals {
			if sig.Code == "DIRTY_WORKTREE" {
				fmt.Printf("  -> ⚠️  %s\n", sig.Message)
			}
		}

		if err := WriteWiki(target, rec); err != nil {
			log.Fatalf("Failed to write wiki: %v", err)
		}
		fmt.Printf("📄 Wiki written to %s\n", target)
	},
}

var showCmd = &cobra.Command{
	Use:   "show owner/repo",
	Short: "Print a cached analysis",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		sha, _ := cmd.Flags().GetString("sha")
		owner, repo, err := mcpserver.SplitRepository(args[0])
		if err != nil {
			log.Fatalf("Invalid target: %v", err)
		}

		ctx, cancel := signalContext()
		defer cancel()

		a, err := newApp(ctx)
		if err != nil {
			log.Fatalf("Failed to initialize: %v", err)
		}
		defer a.Close()

		rec, err := a.store.Get(ctx, wiki.CacheKey(owner, repo, sha))
		if err != nil {
			log.Fatalf("Failed to read cache: %v", err)
		}
		if rec == nil {
			fmt.Printf("🔍 No cached analysis for %s/%s at %s.\n", owner, repo, sha)
			return
		}

		fmt.Printf("📦 %s/%s @ %s (analyzed %s)\n\n", rec.Owner, rec.Repo, rec.HeadSHA, rec.CreatedAt.Format(time.RFC3339))
		fmt.Println(rec.Result.ProductSummary)
		fmt.Println()
		for _, p := range rec.Result.WikiPages {
			marker := ""
			if p.EvidenceSource == wiki.EvidenceFromFallback {
				marker = " (fallback evidence)"
			}
			fmt.Printf("  - %-24s %-32s %d citations%s\n", p.SubsystemID, p.SubsystemName, len(p.Citations), marker)
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve-mcp",
	Short: "Serve the analyze_repository tool over MCP stdio",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

		ctx, cancel := signalContext()
		defer cancel()

		a, err := newApp(ctx)
		if err != nil {
			log.Fatalf("Failed to initialize: %v", err)
		}
		defer a.Close()

		analyzer, err := a.analyzer(ctx, "")
		if err != nil {
			log.Fatalf("Failed to initialize pipeline: %v", err)
		}

		if metricsAddr != "" {
			mux := http.NewServeMux()
			mux.Handle("/metrics", a.metrics.Handler())
			srv := &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					a.logger.Error("metrics server stopped", "error", err)
				}
			}()
			defer srv.Close()
			log.Printf("Serving metrics on %s/metrics", metricsAddr)
		}

		// stdout belongs to the MCP transport; progress goes to stderr.
		log.Println("Starting MCP server in stdio mode...")
		if err := mcpserver.Serve(mcpserver.NewServer(analyzer, a.store)); err != nil {
			log.Fatal(err)
		}
	},
}

// resolveTarget takes owner/repo from args, or from the origin remote of a
// local checkout when only --dir is given.
func resolveTarget(ctx context.Context, args []string, localDir string) (string, string, error) {
	if len(args) == 1 {
		return mcpserver.SplitRepository(args[0])
	}
	if localDir == "" {
		return "", "", fmt.Errorf("owner/repo is required unless --dir is set")
	}
	owner, repo, err := git.RemoteSlug(ctx, localDir)
	if err != nil {
		abs, absErr := filepath.Abs(localDir)
		if absErr != nil {
			return "", "", err
		}
		return "local", filepath.Base(abs), nil
	}
	return owner, repo, nil
}

func pageDirName(owner, repo string) string {
	return strings.ToLower(owner) + "-" + strings.ToLower(repo)
}

func shortSHA(sha string) string {
	if len(sha) > 12 {
		return sha[:12]
	}
	return sha
}
