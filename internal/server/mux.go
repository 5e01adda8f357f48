// Package server provides HTTP server construction for chat-sync.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/alexjbarnes/chat-sync/internal/config"
	"github.com/alexjbarnes/chat-sync/internal/connection"
	"github.com/alexjbarnes/chat-sync/internal/metrics"
)

// MuxConfig holds dependencies for building the HTTP mux.
type MuxConfig struct {
	Keys []config.APIKeyEntry
	// MCPHandler is mounted at /mcp when set.
	MCPHandler http.Handler
	Metrics    *metrics.Metrics
	// Status reports the chat connection for /health.
	Status func() connection.Status
	Logger *slog.Logger
}

type healthResponse struct {
	Status     string `json:"status"`
	Connection string `json:"connection"`
}

// NewMux builds the HTTP mux with health, metrics and MCP endpoints.
// The MCP endpoint is protected by API key middleware.
func NewMux(cfg MuxConfig) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", handleHealth(cfg.Status))
	mux.Handle("GET /metrics", cfg.Metrics.Handler())

	if cfg.MCPHandler != nil {
		authMiddleware := Middleware(cfg.Keys, cfg.Logger)
		mux.Handle("/mcp", authMiddleware(cfg.MCPHandler))
	}

	return mux
}

// handleHealth always answers 200 while the process runs. A lost chat
// connection is reported in the body, it is not a failed health check.
func handleHealth(status func() connection.Status) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := healthResponse{Status: "ok", Connection: "unknown"}
		if status != nil {
			resp.Connection = status().Kind.String()
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}
