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
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/jwtauth"
	"github.com/spf13/cobra"
	"github.com/tendant/chi-demo/app"
	"github.com/tendant/chi-demo/middleware"
	"github.com/tendant/simple-cms/pkg/simplecms/api"
	"github.com/tendant/simple-cms/pkg/simplecms/config"
)

var portFlag string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&portFlag, "port", "p", "", "port to listen on (overrides PORT)")
}

func runServe(cmd *cobra.Command, args []string) error {
	var opts []config.Option
	if portFlag != "" {
		opts = append(opts, config.WithPort(portFlag))
	}
	cfg, err := loadConfig(opts...)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := newLogger(cfg.Environment)
	slog.SetDefault(logger)

	ctx := context.Background()
	built, err := cfg.BuildService(ctx, logger)
	if err != nil {
		return fmt.Errorf("failed to build service: %w", err)
	}
	defer built.Close()

	// Sync declarations before accepting traffic so startup fails fast.
	if _, err := built.Service.ListContentTypes(ctx); err != nil {
		return fmt.Errorf("failed to sync content types: %w", err)
	}

	handler, err := routes(cfg, built, logger)
	if err != nil {
		return err
	}
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: handler,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("simple-cms server starting", "port", cfg.Port, "env", cfg.Environment,
			"database", cfg.DatabaseType, "cache", cfg.CacheType)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-quit:
	}
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("Server exiting")
	return nil
}

func routes(cfg *config.ServerConfig, built *config.Components, logger *slog.Logger) (http.Handler, error) {
	r := chi.NewRouter()

	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Timeout(60 * time.Second))

	app.RoutesHealthz(r)
	app.RoutesHealthzReady(r)
	if built.Metrics != nil {
		r.Handle("/metrics", built.Metrics.Handler())
	}

	var guards []func(http.Handler) http.Handler
	if cfg.APIKeySHA256 != "" {
		apiKeyMiddleware, err := middleware.ApiKeyMiddleware(middleware.ApiKeyConfig{
			APIKeys: map[string]string{"default": cfg.APIKeySHA256},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize API key middleware: %w", err)
		}
		guards = append(guards, apiKeyMiddleware)
	}
	if cfg.JWTSecret != "" {
		guards = append(guards, api.RequireJWT(jwtauth.New("HS256", []byte(cfg.JWTSecret), nil)))
	}

	contentHandler := api.NewContentHandler(built.Service, logger)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(guards...)
		r.Use(api.CallerMiddleware)
		r.Mount("/", contentHandler.Routes())
	})

	return r, nil
}
