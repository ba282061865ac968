package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/vinodismyname/mcpvariance/config"
	"github.com/vinodismyname/mcpvariance/internal/httpapi"
	"github.com/vinodismyname/mcpvariance/internal/registry"
	"github.com/vinodismyname/mcpvariance/internal/runtime"
	"github.com/vinodismyname/mcpvariance/internal/security"
	"github.com/vinodismyname/mcpvariance/internal/telemetry"
	"github.com/vinodismyname/mcpvariance/internal/workspace"
	"github.com/vinodismyname/mcpvariance/pkg/version"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	var (
		configPath      string
		useStdio        bool
		useHTTP         bool
		httpAddr        string
		shutdownTimeout time.Duration
	)

	flag.StringVar(&configPath, "config", "", "Path to a YAML, TOML or JSON config file")
	flag.BoolVar(&useStdio, "stdio", false, "Run the MCP server over stdio transport")
	flag.BoolVar(&useHTTP, "http", false, "Run the REST API")
	flag.StringVar(&httpAddr, "http-addr", "", "REST listen address (overrides config)")
	flag.DurationVar(&shutdownTimeout, "shutdown-timeout", 0, "Graceful shutdown timeout (overrides config)")
	flag.Parse()

	// A missing .env is normal outside local development.
	envErr := godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if httpAddr != "" {
		cfg.HTTPAddr = httpAddr
	}
	if shutdownTimeout > 0 {
		cfg.ShutdownTimeout = shutdownTimeout
	}

	logger := newLogger(cfg)
	if envErr != nil && !errors.Is(envErr, os.ErrNotExist) {
		logger.Warn().Err(envErr).Msg("failed to load .env")
	}

	if !useStdio && !useHTTP {
		fmt.Fprintln(os.Stderr, "no transport selected; use --stdio and/or --http")
		os.Exit(2)
	}

	secMgr, err := security.NewManager(cfg.AllowedDirs, nil)
	if err != nil {
		logger.Error().Err(err).Msg("security: failed to initialize manager")
		fmt.Fprintln(os.Stderr, "invalid security configuration; check MCPVARIANCE_ALLOWED_DIRS")
		os.Exit(1)
	}
	if err := secMgr.ValidateConfig(); err != nil && useStdio {
		logger.Error().Err(err).Msg("security: invalid allow-list configuration")
		fmt.Fprintln(os.Stderr, "no allowed directories configured; set MCPVARIANCE_ALLOWED_DIRS")
		os.Exit(1)
	}
	limits := runtime.LimitsFromConfig(cfg)
	secMgr.WithMaxFileBytes(limits.MaxFileBytes)

	runtimeController := runtime.NewController(limits)
	runtimeMW := runtime.NewMiddleware(runtimeController, logger)

	workspaces := workspace.NewManager(cfg.WorkspaceIdleTTL, 0, runtimeController, nil).WithValidator(secMgr)
	workspaces.Start()

	toolRegistry := registry.New()
	toolFilter := registry.NewToolFilter(cfg.DisabledTools)

	srv := server.NewMCPServer(
		"MCP Variance Analysis Server",
		version.Version(),
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithHooks(telemetry.BuildHooks(logger)),
		server.WithToolHandlerMiddleware(runtimeMW.ToolMiddleware),
		server.WithToolFilter(toolFilter.FilterTools),
	)
	registry.RegisterVarianceTools(srv, toolRegistry, toolFilter, &registry.Tools{
		Limits:        limits,
		Mgr:           workspaces,
		DefaultSheet:  cfg.DefaultSheet,
		StrictColumns: cfg.StrictColumns,
	})

	snapshot := runtimeController.LimitsSnapshot()
	logger.Info().
		Str("version", version.Version()).
		Strs("allowed_dirs", secMgr.AllowedDirectories()).
		Strs("tools", toolRegistry.Names()).
		Int("max_concurrent_requests", snapshot.MaxConcurrentRequests).
		Int("max_open_workspaces", snapshot.MaxOpenWorkspaces).
		Int64("max_file_bytes", snapshot.MaxFileBytes).
		Int("model_context_size", toolRegistry.ModelContextSize(cfg.ContextModel)).
		Bool("stdio", useStdio).
		Bool("http", useHTTP).
		Msg("server bootstrap configured")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 2)
	var httpSrv *http.Server
	if useHTTP {
		httpSrv = &http.Server{
			Addr: cfg.HTTPAddr,
			Handler: httpapi.NewHandler(httpapi.Options{
				Logger:        logger,
				Limits:        limits,
				DefaultSheet:  cfg.DefaultSheet,
				StrictColumns: cfg.StrictColumns,
				Workspaces:    workspaces,
			}),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info().Str("addr", cfg.HTTPAddr).Msg("REST API listening")
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("http: %w", err)
				return
			}
			errCh <- nil
		}()
	}
	if useStdio {
		go func() {
			// stdout belongs to the transport; logs go to stderr
			errCh <- server.ServeStdio(srv)
		}()
	}

	exitCode := 0
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
			exitCode = 1
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if httpSrv != nil {
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("http shutdown failed")
		}
	}
	if err := workspaces.Close(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("workspace shutdown failed")
	}
	logger.Info().Msg("server stopped")
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}

// newLogger builds the service logger on stderr from the configured level
// and format.
func newLogger(cfg *config.Config) zerolog.Logger {
	base := zlog.Logger
	if strings.EqualFold(cfg.LogFormat, "console") {
		base = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		base = base.Level(lvl)
	}
	return base.With().Str("service", "mcpvariance-server").Logger()
}
