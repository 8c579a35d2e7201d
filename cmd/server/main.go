// Interview Chat web server.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/interview-chat/internal/api"
	"github.com/ashureev/interview-chat/internal/config"
	"github.com/ashureev/interview-chat/internal/identity"
	"github.com/ashureev/interview-chat/internal/interview"
	"github.com/ashureev/interview-chat/internal/interviewer"
	"github.com/ashureev/interview-chat/internal/live"
	"github.com/ashureev/interview-chat/internal/middleware"
	"github.com/ashureev/interview-chat/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	client, err := interviewer.NewClient(interviewer.Config{
		BaseURL: cfg.Interviewer.BaseURL,
		Timeout: cfg.Interviewer.Timeout,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize interviewer client", "error", err)
		os.Exit(1)
	}
	slog.Info("Interviewer client initialized", "endpoint", client.Endpoint(), "timeout", cfg.Interviewer.Timeout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Interviewer calls outlive their request but not the process.
	turnCtx, cancelTurns := context.WithCancel(context.Background())
	defer cancelTurns()

	registry := interview.NewRegistry()
	hub := live.NewHub()
	hub.Attach(registry)
	registry.StartSweeper(ctx, cfg.Session.SweepInterval, cfg.Session.TTL)

	limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.WindowDuration)
	defer limiter.Close()

	interviewHandler := api.NewInterviewHandler(turnCtx, registry, client, limiter.Middleware)
	liveHandler := live.NewHandler(hub, registry, cfg.FrontendURL, cfg.IsDevelopment())

	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(identity.Middleware(cfg.IsDevelopment()))

	interviewHandler.RegisterRoutes(r)

	r.Get("/ws/interview", liveHandler.ServeHTTP)

	r.Handle("/*", web.SPAHandler())

	// WebSocket connections are long-lived, so no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		hub.Close()
		err := srv.Shutdown(shutdownCtx)

		cancelTurns()
		interviewHandler.Close()
		return err
	})

	if err := g.Wait(); err != nil {
		slog.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
