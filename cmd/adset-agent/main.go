package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"adte.com/adte/adset-agent/internal/auth"
	"adte.com/adte/adset-agent/internal/callback"
	"adte.com/adte/adset-agent/internal/config"
	"adte.com/adte/adset-agent/internal/confirm"
	internalDB "adte.com/adte/adset-agent/internal/db"
	"adte.com/adte/adset-agent/internal/gen/db"
	"adte.com/adte/adset-agent/internal/graph"
	httpHandlers "adte.com/adte/adset-agent/internal/http"
	mcpHandlers "adte.com/adte/adset-agent/internal/mcp"
	"adte.com/adte/adset-agent/internal/middleware"
	"adte.com/adte/adset-agent/internal/server"
	"adte.com/adte/adset-agent/internal/tools"
	mcpSdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

const version = "0.1.0"

func main() {
	config, err := config.NewConfig()
	if err != nil {
		logs := slog.New(slog.NewTextHandler(os.Stderr, nil))
		logs.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(config.Log)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbConn, err := internalDB.Open(ctx, config.DB.DSN)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer dbConn.Close()
	queries := db.New(dbConn)

	tokens := auth.NewTokenCache(queries)
	if config.Meta.AccessToken != "" {
		if err := tokens.Store(ctx, config.Meta.AccessToken); err != nil {
			logger.Error("failed to seed token cache", "error", err)
			os.Exit(1)
		}
	}

	graphClient := graph.NewClient(graph.Options{
		BaseURL:    config.Meta.GraphURL,
		Timeout:    config.Meta.Timeout,
		RatePerSec: config.Meta.RatePerSec,
		Retries:    config.Meta.Retries,
		Logger:     logger,
	})

	confirmations := confirm.NewService(queries, graphClient, config.Callback.ConfirmationTTL, logger)
	go confirmations.RunSweeper(ctx, time.Minute)

	callbackServer := callback.New(confirmations, callback.Options{
		BindHost: config.Callback.BindHost,
		Port:     config.Callback.Port,
		Logger:   logger,
	})

	srv := &server.Server{
		Graph:         graphClient,
		Accounts:      graphClient,
		Confirmations: confirmations,
		Callback:      callbackServer,
		CallbackHost:  config.Callback.Host,
		DefaultsFile:  config.Callback.UpdateDefaultsFile,
		Logger:        logger,
	}
	toolset := tools.NewToolset(srv, tokens, logger)
	mcpServer := mcpHandlers.NewServer(toolset, version)

	if !config.MCP.Enabled && !config.HttpEnabled {
		logger.Error("nothing to serve: set MCP_TRANSPORT or unset HTTP_DISABLED")
		os.Exit(1)
	}

	done := make(chan error, 2)
	if config.MCP.Enabled {
		go func() { done <- runMCPServer(ctx, mcpServer, logger, config.MCP.Transport) }()
	}

	var httpServer *http.Server
	if config.HttpEnabled {
		httpServer = newHTTPServer(toolset, dbConn, mcpServer, logger, config)
		go func() {
			logger.Info("Ad set agent is running",
				"address", config.HttpAddress,
				"mcp_endpoint", "/mcp",
				"mcp_transport", config.MCP.Transport)
			err := httpServer.ListenAndServe()
			if errors.Is(err, http.ErrServerClosed) {
				err = nil
			}
			done <- err
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-done:
		if err != nil {
			logger.Error("server stopped", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", "error", err)
		}
	}
	if err := callbackServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("confirmation server shutdown failed", "error", err)
	}
}

// newLogger writes to stderr so the stdio MCP transport keeps stdout.
func newLogger(cfg *config.LogConfig) *slog.Logger {
	logLevel := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "trace":
		logLevel = slog.LevelDebug - 4
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	opts := &slog.HandlerOptions{AddSource: true, Level: logLevel}
	if cfg.Human {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

func runMCPServer(ctx context.Context, mcpServer *mcpSdk.Server, logger *slog.Logger, transport string) error {
	logger.Info("Starting MCP server", "transport", transport)

	var mcpTransport mcpSdk.Transport
	switch transport {
	case "stdio":
		mcpTransport = &mcpSdk.StdioTransport{}
	default:
		return errors.New("unsupported MCP transport: " + transport)
	}

	return mcpServer.Run(ctx, mcpTransport)
}

func newHTTPServer(toolset *tools.Toolset, dbConn *sql.DB, mcpServer *mcpSdk.Server, logger *slog.Logger, config *config.Config) *http.Server {
	apiKeyStore := auth.NewAPIKeyStore()
	if config.ApiKey != "" {
		apiKeyStore.AddKey(config.ApiKey, auth.OperatorPrincipal("principal_env"))
	}

	// MCP sessions can call every tool, so they need full ad set access.
	mcpEndpoint := middleware.RequirePermission(auth.ResourceAdSets, auth.PermissionRead, auth.PermissionWrite)(
		mcpHandlers.NewStreamableHandler(mcpServer),
	)
	routes := httpHandlers.NewHTTPHandler(toolset, dbConn, mcpEndpoint, logger, version).Routes()

	limiterStore := middleware.NewRateLimiterStore(10, 20, 10*time.Minute)
	authMiddleware := middleware.ExcludePathsMiddleware(
		middleware.UnifiedAuthMiddleware(config.JwtSecretKey, apiKeyStore, logger),
		[]string{"/", "/health"},
	)

	handler := middleware.Chain(routes,
		middleware.LoggingMiddleware(logger),
		middleware.CORSMiddleware,
		authMiddleware,
		middleware.RateLimitMiddleware(limiterStore),
		middleware.LimitBodySize(1<<20),
	)

	return &http.Server{
		Addr:              config.HttpAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}
}
