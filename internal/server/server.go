// Package server provides HTTP server initialization and lifecycle management
// for the notouch device API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/scrypster/notouch/internal/config"
	"github.com/scrypster/notouch/web/handlers"
)

// Version is reported by /health.
const Version = "0.1.0"

// Start initializes the HTTP server and serves it in the background until ctx
// is cancelled. It returns the actual address being listened on (useful for
// testing with port 0).
//
// hub is run by Start and stopped on shutdown; it should be the same hub the
// device publishes its UI state to.
func Start(ctx context.Context, cfg *config.Config, device handlers.Device, hub *handlers.WebSocketHub) (string, error) {
	if device == nil {
		return "", errors.New("server: device is required")
	}
	if hub == nil {
		hub = handlers.NewWebSocketHub()
	}
	go hub.Run()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		hub.Stop()
		return "", fmt.Errorf("server: failed to listen on %s: %w", addr, err)
	}

	server := &http.Server{
		Addr:         addr,
		Handler:      NewHandler(cfg, device, hub),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Printf("server: ERROR - %v", err)
		}
	}()

	// Handle graceful shutdown
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("server: shutdown error: %v", err)
		}
		hub.Stop()
	}()

	return listener.Addr().String(), nil
}

// NewHandler builds the full middleware-wrapped route tree.
func NewHandler(cfg *config.Config, device handlers.Device, hub *handlers.WebSocketHub) http.Handler {
	api := handlers.NewAPIHandlers(device, cfg.Training.Samples,
		cfg.Alert.NeutralLabel, cfg.Alert.FlaggedLabel)

	// API routes (require auth in production mode)
	apiMux := http.NewServeMux()
	apiMux.HandleFunc("/api/train", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			api.StartTraining(w, r)
		case http.MethodDelete:
			api.CancelTraining(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	apiMux.HandleFunc("/api/examples", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			api.ListExamples(w, r)
		case http.MethodDelete:
			api.ClearExamples(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	apiMux.HandleFunc("POST /api/monitor/start", api.StartMonitoring)
	apiMux.HandleFunc("POST /api/monitor/stop", api.StopMonitoring)
	apiMux.HandleFunc("GET /api/status", api.GetStatus)

	mux := http.NewServeMux()
	mux.Handle("/api/", handlers.RequireAuth(apiMux, cfg))

	// Health endpoint - no auth required
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, `{"status":"healthy","version":%q}`, Version)
	})

	// WebSocket endpoint (origin validation instead of auth)
	mux.Handle("/ws", hub)

	rateLimiter := handlers.NewRateLimiter(cfg.Security.RateLimit, cfg.Security.RateBurst)
	handler := handlers.RateLimitMiddleware(mux, rateLimiter)
	return handlers.SecurityHeaders(handler)
}
