package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"agent-architect/backend/internal/api"
	"agent-architect/backend/internal/auth"
	"agent-architect/backend/internal/config"
	"agent-architect/backend/internal/engine"
	"agent-architect/backend/internal/executions"
	"agent-architect/backend/internal/logging"
	"agent-architect/backend/internal/mcp"
	"agent-architect/backend/internal/repository"
	"agent-architect/backend/internal/services"
	"agent-architect/backend/internal/tls"
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and MCP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	logger.Info("configuration loaded",
		"config_file", cfg.ConfigFile,
		"environment", cfg.Environment,
		"db_driver", cfg.DB.Driver,
		"llm_model", cfg.LLM.Model,
		"parallelism", cfg.Execution.Parallelism,
		"okta_domain", cfg.Auth.OktaDomain,
	)
	cfg.WatchLogLevel(func(level string) {
		logger.SetLevel(level)
		logger.Info("log level changed", "level", level)
	})
	if cfg.Auth.SwaggerClientID != "" && cfg.Auth.SwaggerClientID == cfg.Auth.ClientID {
		logger.Warn("swagger client id matches the backend client id; PKCE login from Swagger UI will fail if the backend app requires a secret")
	}

	repo, err := repository.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("database initialization failed: %w", err)
	}
	defer repo.Close()
	logger.Info("database connected", "driver", cfg.DB.Driver)

	model, err := newModel(ctx, cfg, logger)
	if err != nil {
		return err
	}
	invoker := engine.NewInvoker(model, logger)
	registry := executions.NewRegistry(invoker, executions.Config{
		Retention:   cfg.Execution.Retention,
		Parallelism: cfg.Execution.Parallelism,
	}, logger)
	janitorCtx, stopJanitor := context.WithCancel(context.WithoutCancel(ctx))
	defer stopJanitor()
	go registry.Run(janitorCtx, cfg.Execution.SweepInterval)

	workflows := services.NewWorkflowService(repo, services.NewArchitect(model, logger), invoker, registry, logger)

	authz, err := auth.New(ctx, cfg, repo, logger)
	if err != nil {
		return fmt.Errorf("auth initialization failed: %w", err)
	}
	if authz.Bypassed() {
		logger.Warn("authentication bypassed, every request runs as " + auth.DevEmail)
	}

	e := newEcho(cfg, logger, repo, workflows, authz)

	addr := cfg.Server.Addr
	server := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server starting", "address", addr, "tls", cfg.TLS.Enable)
		serverErrors <- listen(server, cfg, logger)
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
		if err := server.Close(); err != nil {
			logger.Error("server close error", "error", err)
		}
	}

	stopJanitor()
	drained := make(chan struct{})
	go func() {
		registry.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-shutdownCtx.Done():
		logger.Warn("executions still running at shutdown", "count", registry.Len())
	}

	logger.Info("server stopped gracefully")
	return nil
}

func newEcho(cfg *config.Config, logger *logging.Logger, repo repository.Repository, workflows *services.WorkflowService, authz *auth.Auth) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	api.Configure(e, logger)

	e.Use(middleware.Recover())
	e.Use(otelecho.Middleware(api.ServiceName))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			args := []any{"method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency}
			if v.Error != nil {
				args = append(args, "error", v.Error)
			}
			logger.Debug("request", args...)
			return nil
		},
	}))

	e.GET("/health", api.NewHandler(version, repo).HandleHealth)

	e.GET("/login", echo.WrapHandler(http.HandlerFunc(authz.LoginHandler)))
	e.GET("/auth/callback", echo.WrapHandler(http.HandlerFunc(authz.CallbackHandler)))
	e.GET("/logout", echo.WrapHandler(http.HandlerFunc(authz.LogoutHandler)))

	apiGroup := e.Group("/api/v1")
	apiGroup.Use(echo.WrapMiddleware(authz.RequireAuth))
	api.RegisterHandlers(apiGroup, api.NewServer(workflows, logger))

	mcpServer := mcp.NewServer(workflows, version)
	mcpHandlers := http.NewServeMux()
	mcp.MountHTTPHandlers(mcpHandlers, mcpServer.GetMCPServer())
	mcpHandler := echo.WrapHandler(authz.RequireAuth(mcpHandlers))
	e.Any("/mcp", mcpHandler)
	e.Any("/mcp/*", mcpHandler)

	e.GET("/openapi.yaml", echo.WrapHandler(api.SpecHandler(cfg.Auth.OktaDomain)))
	e.GET("/docs", echo.WrapHandler(api.SwaggerHandler(cfg.Auth.OktaDomain, cfg.Auth.SwaggerClientID)))
	e.GET("/docs/oauth2-redirect.html", echo.WrapHandler(http.HandlerFunc(api.OAuthRedirectHandler)))

	return e
}

// listen serves plain HTTP or TLS. A missing certificate is generated when
// hostnames are configured.
func listen(server *http.Server, cfg *config.Config, logger *logging.Logger) error {
	if !cfg.TLS.Enable {
		return server.ListenAndServe()
	}
	if cfg.TLS.CertFile == "" || cfg.TLS.KeyFile == "" {
		return errors.New("tls enabled but cert_file or key_file is not set")
	}
	if len(cfg.TLS.Hostnames) > 0 {
		generated, err := tls.EnsureCert(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.TLS.Hostnames)
		if err != nil {
			return fmt.Errorf("failed to generate self-signed cert: %w", err)
		}
		if generated {
			logger.Info("generated self-signed certificate", "cert", cfg.TLS.CertFile, "hosts", cfg.TLS.Hostnames)
		}
	}
	return server.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
}
