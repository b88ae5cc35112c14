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

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/ashureev/multitool-assistant/internal/api"
	"github.com/ashureev/multitool-assistant/internal/chatws"
	"github.com/ashureev/multitool-assistant/internal/config"
	"github.com/ashureev/multitool-assistant/internal/health"
	"github.com/ashureev/multitool-assistant/internal/identity"
	"github.com/ashureev/multitool-assistant/internal/metrics"
	"github.com/ashureev/multitool-assistant/internal/middleware"
	"github.com/ashureev/multitool-assistant/internal/session"
	"github.com/ashureev/multitool-assistant/internal/store"
	"github.com/ashureev/multitool-assistant/web"
)

func newServeCmd() *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the chat server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if port != "" {
				cfg.Port = port
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg)
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "", "HTTP port (overrides PORT)")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger := slog.Default()

	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			logger.Error("Failed to close database", "error", err)
		}
	}()
	if err := repo.Ping(ctx); err != nil {
		return fmt.Errorf("database ping: %w", err)
	}
	logger.Info("Database initialized", "path", cfg.DBPath)

	m := metrics.New()
	c := buildCore(cfg, logger)
	if c.status.Degraded() {
		logger.Warn("Starting in degraded mode", "issues", c.status.Issues)
	}

	sessions := session.NewManager(c.runnerFactory(cfg, logger, m), session.Options{
		Repository: repo,
		Recorder:   m,
		Logger:     logger,
	})

	sweeper, err := session.StartSweeper(ctx, sessions, cfg.Session.TTL, cfg.Session.SweepInterval)
	if err != nil {
		return fmt.Errorf("start session sweeper: %w", err)
	}
	defer sweeper.Stop()

	var healthSrv *health.Server
	if cfg.GRPCHealthPort != "" {
		healthSrv = health.NewServer()
		healthSrv.SetAgentReady(c.status.AgentReady)
		go func() {
			if err := healthSrv.ListenAndServe(":" + cfg.GRPCHealthPort); err != nil {
				logger.Error("gRPC health server failed", "error", err)
			}
		}()
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Heartbeat("/ping"))

	allowedOrigins := []string{"http://localhost:5173", "http://localhost:3000"}
	if cfg.FrontendURL != "" {
		allowedOrigins = append(allowedOrigins, cfg.FrontendURL)
	}
	r.Use(middleware.CORS(allowedOrigins))
	r.Use(identity.Middleware(repo, cfg.IsDevelopment()))

	base := api.NewHandler(repo, sessions, c.status)
	api.NewHealthHandler(base).RegisterHealth(r)
	api.NewChatHandler(base).RegisterRoutes(r)
	r.Handle("/metrics", m.Handler())

	conns := chatws.NewRegistry()
	ws := chatws.NewHandler(sessions, conns, cfg.FrontendURL, cfg.IsDevelopment())
	ws.SetGauge(m.WebSocketConnections)
	r.Handle("/ws/chat", ws)

	spa, err := web.SPAHandler()
	if err != nil {
		return fmt.Errorf("load frontend: %w", err)
	}
	r.Handle("/*", spa)

	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     r,
		ReadTimeout: 30 * time.Second,
		// Disabled so SSE replies can stream for the whole query.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Server starting", "port", cfg.Port, "agent_ready", c.status.AgentReady)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if healthSrv != nil {
		healthSrv.Stop()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}
	// Destroy hooks also close any open chat sockets.
	sessions.DestroyAll(shutdownCtx)

	logger.Info("Server exited")
	return nil
}
