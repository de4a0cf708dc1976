// Package gateway is the localhost REST control plane served in serve mode:
// scan triggering and history, cross-target comparison, and baseline
// management.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/CosmoTheDev/procwatch/internal/baseline"
	"github.com/CosmoTheDev/procwatch/internal/comparator"
	"github.com/CosmoTheDev/procwatch/internal/config"
	"github.com/CosmoTheDev/procwatch/internal/queue"
	"github.com/CosmoTheDev/procwatch/internal/repository"
)

const defaultPort = 6390

// Gateway serves the REST API over one Store and the serve-mode scan queue.
type Gateway struct {
	cfg       *config.Config
	store     *repository.Store
	queue     *queue.Queue
	comp      *comparator.Comparator
	baselines *baseline.Manager
	startedAt time.Time
}

// New creates a Gateway. Call Start to begin serving.
func New(cfg *config.Config, store *repository.Store, q *queue.Queue) *Gateway {
	return &Gateway{
		cfg:       cfg,
		store:     store,
		queue:     q,
		comp:      comparator.New(store),
		baselines: baseline.NewManager(cfg, store),
		startedAt: time.Now(),
	}
}

// Start binds the HTTP server on localhost and blocks until ctx is cancelled.
func (gw *Gateway) Start(ctx context.Context) error {
	port := gw.cfg.Gateway.Port
	if port == 0 {
		port = defaultPort
	}
	addr := fmt.Sprintf("127.0.0.1:%d", port)

	srv := &http.Server{
		Addr:    addr,
		Handler: gw.handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("gateway: listening", "addr", "http://"+addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// handler wires all REST routes onto a new ServeMux using Go 1.22+
// method-prefixed patterns.
func (gw *Gateway) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", gw.handleHealth)
	mux.HandleFunc("GET /api/status", gw.handleStatus)

	// Scans
	mux.HandleFunc("POST /api/scans", gw.handleEnqueueScan)
	mux.HandleFunc("GET /api/scans", gw.handleListScans)
	mux.HandleFunc("GET /api/scans/{id}", gw.handleGetScan)
	mux.HandleFunc("GET /api/scans/{id}/changes", gw.handleScanChanges)

	// Comparison
	mux.HandleFunc("GET /api/compare", gw.handleCompare)
	mux.HandleFunc("GET /api/diff", gw.handleDiff)

	// Baselines
	mux.HandleFunc("GET /api/baselines", gw.handleListBaselines)
	mux.HandleFunc("POST /api/baselines", gw.handleCreateBaseline)
	mux.HandleFunc("GET /api/baselines/{id}", gw.handleGetBaseline)
	mux.HandleFunc("DELETE /api/baselines/{id}", gw.handleDeleteBaseline)
	mux.HandleFunc("GET /api/baselines/{id}/compare", gw.handleCompareBaseline)

	return mux
}
