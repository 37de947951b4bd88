package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"sap-protocol/api/pkg/db"
	"sap-protocol/api/services/workflow"
)

func main() {
	ctx := context.Background()
	logHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})
	slog.SetDefault(slog.New(logHandler))

	var storage workflow.Storage
	if dbURL, ok := os.LookupEnv("DATABASE_URL"); ok {
		pool, err := db.Connect(ctx, dbURL)
		if err != nil {
			slog.Error("Failed to connect to database", "error", err)
			return
		}
		defer pool.Close()

		repo := workflow.NewRepository(pool)
		if err := repo.InitSchema(ctx); err != nil {
			slog.Error("Failed to initialize database schema", "error", err)
			return
		}
		storage = repo
	} else {
		slog.Warn("DATABASE_URL is not set; workflows will not survive restarts")
		storage = workflow.NewMemoryStorage()
	}

	workflowService := workflow.NewService(storage)
	if err := workflowService.Initialize(ctx); err != nil {
		slog.Error("Failed to initialize workflow service", "error", err)
		return
	}

	// setup router
	mainRouter := mux.NewRouter()
	apiRouter := mainRouter.PathPrefix("/api/v1").Subrouter()
	workflowService.LoadRoutes(apiRouter)

	corsHandler := handlers.CORS(
		// Frontend URL
		handlers.AllowedOrigins([]string{"http://localhost:3003"}),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		handlers.AllowCredentials(),
	)(mainRouter)

	addr := ":8080"
	if port, ok := os.LookupEnv("PORT"); ok {
		addr = ":" + port
	}

	srv := &http.Server{
		Addr:    addr,
		Handler: corsHandler,
	}

	serverErrors := make(chan error, 1)

	go func() {
		slog.Info("Starting server", "addr", addr)
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		slog.Error("Server error", "error", err)

	case sig := <-shutdown:
		slog.Info("Shutdown signal received", "signal", sig)

		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("Could not stop server gracefully", "error", err)
			srv.Close()
		}
	}
}
