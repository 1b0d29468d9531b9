// Package main is the Findify CLI entry point.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/hyperjump/findify/internal/cli"
	"github.com/hyperjump/findify/internal/config"
	"github.com/hyperjump/findify/internal/content"
	"github.com/hyperjump/findify/internal/server"
	"github.com/hyperjump/findify/internal/session"
	"github.com/hyperjump/findify/internal/storage"
	"github.com/hyperjump/findify/internal/watcher"
	"github.com/hyperjump/findify/pkg/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/findify/config.yaml"
	defaultServerURL  = "http://localhost:8080"
)

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used.
// A missing default config yields the built-in defaults.
// Returns the config and the path that was actually loaded ("" for built-in defaults).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
		if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
			return config.Default(), "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "search":
		runSearch()
	case "demo":
		runDemo()
	case "status":
		runStatus()
	case "init":
		runInit()
	case "version", "--version", "-v":
		fmt.Printf("findify version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config, debug bool) (*zap.Logger, error) {
	return utils.NewFileLogger(debug, utils.FileOptions{
		Path:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (session transitions, content reloads, etc.)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := newLogger(cfg, debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger, cfg.Storage.ArchiveOrDefault())
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	if cfg.Content.Path != "" && cfg.Content.WatchOrDefault() {
		store := components.Content
		contentWatcher := watcher.NewWatcher(
			[]string{cfg.Content.Path},
			func(path string) {
				if err := store.Reload(path); err != nil {
					logger.Warn("content reload failed, keeping previous content", zap.String("path", path), zap.Error(err))
					return
				}
				logger.Info("content reloaded", zap.String("path", path))
			},
			watcher.WithLogger(logger),
		)
		if err := contentWatcher.Start(gctx); err != nil {
			logger.Fatal("Failed to start content watcher", zap.Error(err))
		}
		g.Go(func() error {
			<-gctx.Done()
			contentWatcher.Stop()
			return nil
		})
	}

	srv := server.NewServer(components.Sessions, components.Storage, cfg, components.Registry, logger)
	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Stop(shutdownCtx); err != nil {
			logger.Warn("server shutdown", zap.Error(err))
		}
		if err := components.Sessions.CloseAll(shutdownCtx); err != nil {
			logger.Warn("archiving open sessions failed", zap.Error(err))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server stopped with error", zap.Error(err))
		components.Close()
		_ = logger.Sync()
		os.Exit(1)
	}
}

// printSearchUsage prints search subcommand usage.
func printSearchUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: findify search [flags] <query>\n\n")
	fmt.Fprintf(fs.Output(), "Query is all remaining arguments joined by spaces. Multi-word queries work with or without quotes.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Results are generated for the query; every page adds %d results, up to %d pages.
  • Use --pages to load more than the first page.
  • Use --server "" to run the session in process instead of on a server.

Examples:
  findify search machine learning
  findify search "machine learning"            # same as above
  findify search --pages 3 golang              # first three pages
  findify search --output json golang          # structured JSON for other apps
`, config.DefaultPageSize, config.DefaultMaxPages)
}

// buildSearchQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting (e.g. "machine learning" vs machine learning).
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// searchArgsReorder moves any flags (and their values) that appear after the query
// to the front of the slice so that flag.Parse() sees them. Go's flag package
// stops at the first non-flag argument, so "findify search golang --pages 3"
// would otherwise leave --pages unparsed.
func searchArgsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (in-process mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = run the session in process)")
	pages := fs.Int("pages", 1, "number of pages to load")
	outputFormat := fs.String("output", "text", "output format: text (human-readable), compact (one result per line), or json (parseable)")
	fs.Usage = func() { printSearchUsage(fs) }
	_ = fs.Parse(searchArgsReorder(os.Args[2:]))

	queryStr := buildSearchQuery(fs.Args())
	if queryStr == "" {
		printSearchUsage(fs)
		os.Exit(1)
	}
	if *pages < 1 {
		fmt.Fprintln(os.Stderr, "--pages must be at least 1")
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var sess cli.Session
	if *serverURL != "" {
		remote, err := cli.NewClient(*serverURL).CreateSession(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
			os.Exit(1)
		}
		defer remote.Close(context.Background())
		sess = remote
	} else {
		cfg, _, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		logger, err := newLogger(cfg, cfg.Debug)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
			os.Exit(1)
		}
		defer logger.Sync()
		components, err := initializeComponents(cfg, logger, false)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
			os.Exit(1)
		}
		defer components.Close()
		sess = components.Sessions.Create()
	}

	state, err := cli.Collect(ctx, sess, queryStr, *pages)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteState(os.Stdout, state, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runDemo() {
	fs := flag.NewFlagSet("demo", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (in-process mode)")
	serverURL := fs.String("server", "", "server URL (empty = run the session in process)")
	_ = fs.Parse(os.Args[2:])

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var sess cli.Session
	if *serverURL != "" {
		remote, err := cli.NewClient(*serverURL).CreateSession(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create session: %v\n", err)
			os.Exit(1)
		}
		defer remote.Close(context.Background())
		sess = remote
	} else {
		cfg, _, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		logger, err := newLogger(cfg, cfg.Debug)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
			os.Exit(1)
		}
		defer logger.Sync()
		components, err := initializeComponents(cfg, logger, cfg.Storage.ArchiveOrDefault())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
			os.Exit(1)
		}
		defer components.Close()
		defer components.Sessions.CloseAll(context.Background())
		sess = components.Sessions.Create()
	}

	repl := cli.NewREPL(sess, os.Stdin, os.Stdout, term.IsTerminal(int(os.Stdin.Fd())))
	if err := repl.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "Demo failed: %v\n", err)
		os.Exit(1)
	}
}

// statusConfigResponse holds configuration info returned by status.
type statusConfigResponse struct {
	PageSize     int    `json:"page_size"`
	MaxPages     int    `json:"max_pages"`
	Latency      string `json:"latency"`
	MaxSessions  int    `json:"max_sessions"`
	ContentPath  string `json:"content_path,omitempty"`
	Archive      bool   `json:"archive"`
	DatabasePath string `json:"database_path,omitempty"`
}

// statusResponse is the shape of GET /api/v1/status response.
type statusResponse struct {
	Sessions       *int                  `json:"sessions,omitempty"`
	Archived       *int64                `json:"archived,omitempty"`
	DiskUsageBytes *int64                `json:"disk_usage_bytes,omitempty"`
	Config         *statusConfigResponse `json:"config,omitempty"`
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (for direct storage mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = read the archive directly)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	ctx := context.Background()
	var status statusResponse
	if *serverURL != "" {
		raw, err := cli.NewClient(*serverURL).Status(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
		if err := remarshal(raw, &status); err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		cfg, _, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		status, err = directStatus(ctx, cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(status); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		writeStatusText(os.Stdout, status)
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

// directStatus reads the archive without a running server.
func directStatus(ctx context.Context, cfg *config.Config) (statusResponse, error) {
	status := statusResponse{
		Config: &statusConfigResponse{
			PageSize:    cfg.Session.PageSize,
			MaxPages:    cfg.Session.MaxPages,
			Latency:     cfg.Session.LatencyOrDefault().String(),
			MaxSessions: cfg.Session.MaxSessions,
			ContentPath: cfg.Content.Path,
			Archive:     cfg.Storage.ArchiveOrDefault(),
		},
	}
	if !cfg.Storage.ArchiveOrDefault() {
		return status, nil
	}
	status.Config.DatabasePath = cfg.Storage.DatabasePath
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return status, fmt.Errorf("failed to open archive: %w", err)
	}
	defer store.Close()
	count, err := store.CountTranscripts(ctx)
	if err != nil {
		return status, fmt.Errorf("count transcripts: %w", err)
	}
	status.Archived = &count
	if diskBytes, err := storage.DiskUsageBytes(storage.DatabaseFiles(cfg.Storage.DatabasePath)...); err == nil {
		status.DiskUsageBytes = &diskBytes
	}
	return status, nil
}

func writeStatusText(w io.Writer, status statusResponse) {
	if status.Sessions != nil {
		fmt.Fprintf(w, "sessions:           %d   # live sessions on the server\n", *status.Sessions)
	}
	if status.Archived != nil {
		fmt.Fprintf(w, "archived:           %d   # transcripts of closed sessions\n", *status.Archived)
	}
	if status.DiskUsageBytes != nil {
		fmt.Fprintf(w, "disk_usage_bytes:   %d   # archive database on disk\n", *status.DiskUsageBytes)
	}
	if c := status.Config; c != nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "# configuration")
		fmt.Fprintf(w, "page_size:          %d\n", c.PageSize)
		fmt.Fprintf(w, "max_pages:          %d\n", c.MaxPages)
		fmt.Fprintf(w, "latency:            %s\n", c.Latency)
		fmt.Fprintf(w, "max_sessions:       %d\n", c.MaxSessions)
		if c.ContentPath != "" {
			fmt.Fprintf(w, "content_path:       %s\n", c.ContentPath)
		}
		fmt.Fprintf(w, "archive:            %t\n", c.Archive)
		if c.DatabasePath != "" {
			fmt.Fprintf(w, "database_path:      %s\n", c.DatabasePath)
		}
	}
}

// remarshal converts a decoded JSON document into out.
func remarshal(in interface{}, out interface{}) error {
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

func runInit() {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "where to write the config file")
	force := fs.Bool("force", false, "overwrite an existing file")
	_ = fs.Parse(os.Args[2:])

	if err := writeDefaultConfig(*configPath, *force); err != nil {
		fmt.Fprintf(os.Stderr, "Init failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Config written: %s\n", *configPath)
}

// writeDefaultConfig saves the default config to path, refusing to overwrite unless force is set.
func writeDefaultConfig(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	return config.Save(path, config.Default())
}

// Components holds initialized services.
type Components struct {
	Content  *content.Store
	Storage  storage.Storage
	Registry *prometheus.Registry
	Sessions *session.Manager
}

func (c *Components) Close() {
	if c.Storage != nil {
		_ = c.Storage.Close()
		c.Storage = nil
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger, archive bool) (*Components, error) {
	bundle := content.Default()
	if cfg.Content.Path != "" {
		loaded, err := content.Load(cfg.Content.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to load content: %w", err)
		}
		bundle = loaded
		logger.Info("content loaded", zap.String("path", cfg.Content.Path),
			zap.Int("topics", len(bundle.Topics)), zap.Int("categories", len(bundle.Categories)))
	}
	store := content.NewStore(bundle)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	opts := []session.ManagerOption{
		session.WithManagerLogger(logger),
		session.WithManagerMetrics(session.NewMetrics(registry)),
	}
	components := &Components{Content: store, Registry: registry}
	if archive {
		db, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		components.Storage = db
		opts = append(opts, session.WithArchive(db))
	}

	sessions, err := session.NewManager(&cfg.Session, store, opts...)
	if err != nil {
		components.Close()
		return nil, err
	}
	components.Sessions = sessions
	return components, nil
}

func printUsage() {
	fmt.Println(`findify - Search-and-chat demo server

Usage:
  findify server [flags]           Start the HTTP server
  findify search [flags] <query>   Run a search and print the results
  findify demo [flags]             Interactive search-and-chat session in the terminal
  findify status [flags]           Show server or archive status
  findify init [flags]             Write a default config file
  findify version                  Show version
  findify help                     Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/findify/config.yaml)
  --debug            Enable debug logging (session transitions, content reloads, etc.)

Search Flags:
  --config string    Config file path (for in-process mode)
  --server string    Server URL (default: http://localhost:8080). Use empty (--server "") to run in process.
  --pages int        Number of pages to load (default: 1)
  --output string    Output format: text, compact or json (default: text)

Demo Flags:
  --config string    Config file path (for in-process mode)
  --server string    Server URL (default: empty, run in process)

Status Flags:
  --config string    Config file path (for direct archive mode)
  --server string    Server URL (default: http://localhost:8080). Use empty (--server "") to read the archive directly.
  --output string    Output format: text or json (default: text)

Init Flags:
  --config string    Where to write the config (default: ./config.yaml)
  --force            Overwrite an existing file

Examples:
  findify server
  findify search "machine learning"
  findify search --pages 3 --output compact golang
  findify demo
  findify status --output json
  findify init --config ~/.config/findify/config.yaml`)
}
