// Package web serves the annotation store and study documents as a JSON API.
package web

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hpungsan/margin/internal/config"
	"github.com/hpungsan/margin/internal/logger"
)

// NewHandler builds the routed API handler with its middleware.
func NewHandler(db *sql.DB, cfg *config.Config, log *logger.Logger) http.Handler {
	h := &Handlers{
		db:  db,
		cfg: cfg,
		log: logger.OrNop(log),
	}

	mux := http.NewServeMux()

	// Routes using Go 1.22+ pattern syntax
	mux.HandleFunc("GET /summaries/{subjectId}/annotations", h.HandleList)
	mux.HandleFunc("POST /summaries/{subjectId}/annotations", h.HandleCreate)
	mux.HandleFunc("GET /annotations/{id}", h.HandleGet)
	mux.HandleFunc("PUT /annotations/{id}", h.HandleUpdate)
	mux.HandleFunc("PATCH /annotations/{id}/soft-delete", h.HandleSoftDelete)
	mux.HandleFunc("PATCH /annotations/{id}/restore", h.HandleRestore)
	mux.HandleFunc("GET /students/{studentId}/summaries/{subjectId}/study-document", h.HandleGetDocument)
	mux.HandleFunc("PUT /students/{studentId}/summaries/{subjectId}/study-document", h.HandlePutDocument)
	mux.HandleFunc("POST /keywords/tokenize", h.HandleTokenize)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		renderJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("GET /metrics", promhttp.Handler())

	return securityHeaders(instrument(h.log, mux))
}

// NewServer creates and configures the HTTP server.
func NewServer(db *sql.DB, cfg *config.Config, log *logger.Logger) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Bind, cfg.Port),
		Handler:           NewHandler(db, cfg, log),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// securityHeaders adds security-related HTTP headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		next.ServeHTTP(w, r)
	})
}

// Run starts the HTTP server and handles graceful shutdown on SIGINT/SIGTERM.
func Run(srv *http.Server, log *logger.Logger) error {
	log = logger.OrNop(log)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	log.Info("margin API listening", "addr", "http://"+srv.Addr)

	if strings.Contains(srv.Addr, "0.0.0.0") || strings.Contains(srv.Addr, "::") {
		log.Warn("server is binding to all interfaces and may be accessible from the network")
	}

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		log.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}
