package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/joho/godotenv"
	"github.com/tendant/chi-demo/app"
	"github.com/tendant/simple-posts/pkg/simpleposts/api"
	"github.com/tendant/simple-posts/pkg/simpleposts/config"
)

func main() {
	showEnv := flag.Bool("env", false, "print the environment variables the server reads and exit")
	flag.Parse()

	if *showEnv {
		desc, err := config.EnvDescription()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(desc)
		return
	}

	// .env is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to load .env file", "err", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	serverConfig, err := config.Load(config.WithEnv())
	if err != nil {
		slog.Error("Failed to load server configuration", "err", err)
		os.Exit(1)
	}

	ctx := context.Background()
	comps, err := serverConfig.Build(ctx, logger)
	if err != nil {
		slog.Error("Failed to build service", "err", err)
		os.Exit(1)
	}
	defer comps.Close()

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%s", serverConfig.Port),
		Handler:           Routes(comps, serverConfig),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("Simple Posts server starting",
			"port", serverConfig.Port,
			"env", serverConfig.Environment,
			"database", serverConfig.DatabaseType,
			"storage", serverConfig.StorageType)

		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server error", "err", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Closing the bus first ends every open subscription stream
	comps.Bus.Close()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "err", err)
	}

	slog.Info("Server exiting")
}

// Routes sets up the HTTP routes
func Routes(comps *config.Components, serverConfig *config.ServerConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	var subscriptionOpts []api.SubscriptionOption
	if serverConfig.Environment == "development" {
		r.Use(devCORS)
		subscriptionOpts = append(subscriptionOpts, api.WithAnyOrigin())
	}

	app.RoutesHealthz(r)
	RoutesHealthzReady(r, comps.Ready)

	postHandler := api.NewPostHandler(comps.Service)
	userHandler := api.NewUserHandler(comps.Users)
	imageHandler := api.NewImageHandler(comps.Users)
	subscriptionHandler := api.NewSubscriptionHandler(comps.Service, slog.Default(), subscriptionOpts...)

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))
			r.Mount("/posts", postHandler.Routes())
			r.Mount("/users", userHandler.Routes())
			r.Mount("/images", imageHandler.Routes())
		})

		// long-lived websocket streams stay outside the request timeout
		r.Mount("/subscriptions", subscriptionHandler.Routes())
	})

	if comps.Media != nil {
		r.Mount("/media", api.NewMediaHandler(comps.Media).Routes())
	}

	return r
}

// RoutesHealthzReady reports 503 while the backing store is unreachable
func RoutesHealthzReady(r *chi.Mux, ready func(ctx context.Context) error) {
	r.Get("/healthz/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := ready(ctx); err != nil {
			slog.Warn("Readiness check failed", "err", err)
			render.Status(r, http.StatusServiceUnavailable)
			render.PlainText(w, r, http.StatusText(http.StatusServiceUnavailable))
			return
		}
		render.PlainText(w, r, http.StatusText(http.StatusOK))
	})
}

func devCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
