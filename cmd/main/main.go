package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/CTAG07/docgate/pkg/content"
	cli "github.com/urfave/cli/v3"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	app := &cli.Command{
		Name:    "docgate",
		Usage:   "Serve a documentation site from a pinned git revision",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "./config.json",
				Usage:   "path to the JSON config file (created with defaults if missing)",
				Sources: cli.EnvVars("DOCGATE_CONFIG"),
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "override server_config.log_level (debug, info, warn, error)",
			},
		},
		Action: serveAction,
		Commands: []*cli.Command{
			serveCmd(),
			resolveCmd(),
			routesCmd(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Run the documentation gateway and the admin API (default)",
		Action: serveAction,
	}
}

func resolveCmd() *cli.Command {
	return &cli.Command{
		Name:  "resolve",
		Usage: "Print the revision a server cycle would pin",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			config, err := LoadConfig(cmd.String("config"))
			if err != nil {
				return err
			}
			if err = config.Validate(); err != nil {
				return err
			}
			revision, err := resolveRevision(ctx, newGitHubClient(config.Source), config.Source)
			if err != nil {
				return err
			}
			fmt.Printf("%s/%s %s %s\n", config.Source.Owner, config.Source.Repo, revision.Ref, revision.SHA)
			return nil
		},
	}
}

func routesCmd() *cli.Command {
	return &cli.Command{
		Name:  "routes",
		Usage: "Print the route table",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			config, err := LoadConfig(cmd.String("config"))
			if err != nil {
				return err
			}
			table, err := loadRoutes(config.Server.RoutesPath)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PATH\tCONTENT")
			for _, e := range table.Entries() {
				fmt.Fprintf(tw, "%s\t%s\n", e.Path, config.Source.ContentPrefix+e.Content+config.Source.ContentExt)
			}
			return tw.Flush()
		},
	}
}

func serveAction(ctx context.Context, cmd *cli.Command) error {
	baseLogger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	actionChan := make(chan string, 1)

	go func() {
		osSignalChan := make(chan os.Signal, 1)
		signal.Notify(osSignalChan, syscall.SIGINT, syscall.SIGTERM)
		<-osSignalChan
		baseLogger.Info("OS signal received, initiating shutdown.")
		actionChan <- actionShutdown
	}()

	for {
		action, err := run(ctx, cmd.String("config"), cmd.String("log-level"), actionChan)
		if err != nil {
			baseLogger.Error("An error occurred during server run, shutting down.", "error", err)
			return err
		}

		if action != actionRestart {
			break
		}
		baseLogger.Info("--- Server Restarting ---")
	}

	baseLogger.Info("docgate has shut down.")
	return nil
}

// ensureDataDir creates the directory holding a file-backed SQLite database.
func ensureDataDir(dataSource string) error {
	p, _, _ := strings.Cut(dataSource, "?")
	p = strings.TrimPrefix(p, "file:")
	if p == "" || p == ":memory:" {
		return nil
	}
	return os.MkdirAll(filepath.Dir(p), 0755)
}

// run hosts both servers for one cycle and returns the action that ended it.
func run(ctx context.Context, configPath, logLevelOverride string, actionChan chan string) (string, error) {

	cm, err := NewConfigManager(configPath)
	if err != nil {
		return "", fmt.Errorf("failed to load configuration: %w", err)
	}
	config := cm.Get()
	if err = config.Validate(); err != nil {
		return "", fmt.Errorf("invalid configuration: %w", err)
	}

	level := config.Server.LogLevel
	if logLevelOverride != "" {
		level = logLevelOverride
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(level)}))
	cm.SetLogger(logger)
	logger.Info("Starting server cycle...", "version", Version, "config", configPath)

	if err = ensureDataDir(config.Server.DatabasePath); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	db, err := initDB(config.Server.DatabasePath)
	if err != nil {
		return "", fmt.Errorf("failed to initialize database: %w", err)
	}

	if err = setupAuthSchema(db); err != nil {
		logger.Error("Failed to setup auth schema", "error", err)
	}
	if err = setupStatsSchema(db); err != nil {
		logger.Error("Failed to setup stats schema", "error", err)
	}

	server, err := NewServer(ctx, cm, logger, db, newGitHubClient(config.Source), actionChan)
	if err != nil {
		_ = db.Close()
		return "", fmt.Errorf("failed to create server object: %w", err)
	}
	if config.Server.AdminToken == "" {
		logger.Warn("No admin_token configured; the admin API is open until an API key is created", "address", config.Server.ApiAddr)
	}
	if policy := server.cache.Policy(); policy != content.FailureMemoize {
		logger.Info("Cache failure policy", "policy", policy, "ttl_sec", config.Cache.FailureTTLSec)
	}

	watchCtx, stopWatching := context.WithCancel(ctx)
	defer stopWatching()
	if config.Server.WatchConfig {
		watcher, watchErr := newConfigWatcher(cm.Path(), logger)
		if watchErr != nil {
			logger.Warn("Config file will not be watched", "error", watchErr)
		} else {
			defer func() { _ = watcher.Close() }()
			watcher.Start(watchCtx, func() {
				logger.Info("Config file changed, scheduling restart.")
				select {
				case actionChan <- actionRestart:
				default:
				}
			})
		}
	}

	gatewayHttpServer := &http.Server{Addr: config.Server.ServerAddr, Handler: server.gatewayMux, ReadHeaderTimeout: 10 * time.Second}
	apiHttpServer := &http.Server{Addr: config.Server.ApiAddr, Handler: server.apiMux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		logger.Info("Starting admin api server", "address", apiHttpServer.Addr)
		if err := apiHttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Api server failed", "error", err)
		}
	}()

	go func() {
		logger.Info("Starting documentation gateway", "address", gatewayHttpServer.Addr, "revision", server.revision.String())
		if err := gatewayHttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Gateway server failed", "error", err)
		}
	}()

	action := <-actionChan // Block here until API, watcher or OS signal sends an action.

	logger.Info("Stopping servers for " + action + "...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err = apiHttpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Api server shutdown failed", "error", err)
	}
	if err = gatewayHttpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Gateway server shutdown failed", "error", err)
	}
	logger.Info("HTTP servers stopped.")

	logger.Info("Closing database connection.")
	if err = db.Close(); err != nil {
		logger.Error("Failed to close database", "error", err)
	}

	return action, nil
}
