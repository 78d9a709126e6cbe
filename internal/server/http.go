package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dgellow/vaultlink/internal/log"
)

// HTTPServer manages the HTTP server lifecycle
type HTTPServer struct {
	server *http.Server
}

// NewHTTPServer creates a new HTTP server with the given handler and address
func NewHTTPServer(handler http.Handler, addr string) *HTTPServer {
	return &HTTPServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// HealthHandler handles health check requests
type HealthHandler struct{}

// NewHealthHandler creates a new health handler
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

// ServeHTTP implements http.Handler for health checks
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// NewMux registers every route. callbackPath is the path of the registered
// redirect URI; it serves the page like "/".
func NewMux(h *Handlers, callbackPath string) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", h.IndexHandler)
	if callbackPath != "" && callbackPath != "/" {
		mux.HandleFunc("GET "+callbackPath, h.IndexHandler)
	}
	mux.HandleFunc("GET /login", h.LoginHandler)
	mux.HandleFunc("POST /download", h.DownloadHandler)
	mux.HandleFunc("POST /send-link", h.SendLinkHandler)
	mux.HandleFunc("GET /api/session", h.SessionHandler)
	mux.HandleFunc("GET /static/app.js", h.ScriptHandler)
	mux.Handle("GET /health", NewHealthHandler())

	return ChainMiddleware(mux,
		NewRecoverMiddleware("vaultlink"),
		NewLoggerMiddleware("http"),
		NewSecurityHeadersMiddleware(),
	)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	log.LogInfoWithFields("http", "HTTP server starting", map[string]any{
		"addr": h.server.Addr,
	})

	if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	log.LogInfoWithFields("http", "HTTP server stopping", map[string]any{
		"addr": h.server.Addr,
	})

	if err := h.server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	log.LogInfoWithFields("http", "HTTP server stopped", map[string]any{
		"addr": h.server.Addr,
	})
	return nil
}
