package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"sonexa/logger"
)

// Start runs the HTTP API until SIGINT/SIGTERM, then shuts down gracefully.
// hub serves the websocket event stream the core's notifier feeds.
func Start(addr string, handler *APIHandler, hub *Hub) error {
	router := mux.NewRouter()

	// CORS middleware for the local UI.
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/library", handler.ListLibraryHandler).Methods("GET")
	api.HandleFunc("/library", handler.ClearLibraryHandler).Methods("DELETE")
	api.HandleFunc("/library/stats", handler.LibraryStatsHandler).Methods("GET")
	api.HandleFunc("/library/{id}", handler.GetEntryHandler).Methods("GET")
	api.HandleFunc("/library/{id}", handler.UpdateEntryHandler).Methods("PUT")
	api.HandleFunc("/library/{id}", handler.DeleteEntryHandler).Methods("DELETE")
	api.HandleFunc("/import", handler.ImportHandler).Methods("POST")
	api.HandleFunc("/sync", handler.SyncHandler).Methods("POST")
	api.HandleFunc("/sync/status", handler.SyncStatusHandler).Methods("GET")
	api.HandleFunc("/queue/stats", handler.QueueStatsHandler).Methods("GET")
	api.HandleFunc("/queue/failed", handler.QueueClearFailedHandler).Methods("DELETE")
	api.HandleFunc("/settings", handler.GetSettingsHandler).Methods("GET")
	api.HandleFunc("/settings", handler.PutSettingsHandler).Methods("PUT")
	api.HandleFunc("/secret", handler.PutSecretHandler).Methods("PUT")
	api.HandleFunc("/secret", handler.DeleteSecretHandler).Methods("DELETE")

	router.HandleFunc("/ws", hub.HandleWS)

	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", logger.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutting down", logger.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
