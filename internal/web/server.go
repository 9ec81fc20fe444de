package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/hpungsan/whispr/internal/logging"
	"github.com/hpungsan/whispr/internal/ops"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

// Host is the only interface the UI listens on.
const Host = "127.0.0.1"

// NewServer creates and configures the HTTP server for the Whispr web UI.
func NewServer(engine *ops.Engine, version string, port int, logger *zap.Logger) (*http.Server, error) {
	logger = logging.OrNop(logger)

	// Create sub-FS for templates (strip "templates/" prefix)
	templateSub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		return nil, fmt.Errorf("template sub-FS: %w", err)
	}

	// Create sub-FS for static files (strip "static/" prefix)
	staticSub, err := fs.Sub(staticFS, "static")
	if err != nil {
		return nil, fmt.Errorf("static sub-FS: %w", err)
	}

	h := &Handlers{
		engine:   engine,
		renderer: NewRenderer(templateSub, version, logger),
	}

	mux := http.NewServeMux()
	h.routes(mux)
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(staticSub)))

	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", Host, port),
		Handler:           securityHeaders(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}, nil
}

// routes registers the UI routes using Go 1.22+ pattern syntax.
func (h *Handlers) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/history", http.StatusFound)
	})
	mux.HandleFunc("GET /history", h.HandleHistory)
	mux.HandleFunc("GET /history/{id}", h.HandleDetail)
	mux.HandleFunc("POST /history/{id}/pin", h.HandlePin)
	mux.HandleFunc("POST /history/{id}/ai", h.HandleAction)
	mux.HandleFunc("POST /history/{id}/ai/clear", h.HandleClearAI)
	mux.HandleFunc("POST /history/{id}/folder", h.HandleAddToFolder)
	mux.HandleFunc("DELETE /history/{id}", h.HandleDelete)
	mux.HandleFunc("POST /history/{id}/delete", h.HandleDelete)
	mux.HandleFunc("POST /settings/pause", h.HandlePause)
	mux.HandleFunc("POST /settings/capacity", h.HandleCapacity)
	mux.HandleFunc("GET /folders", h.HandleFolders)
	mux.HandleFunc("POST /folders", h.HandleCreateFolder)
	mux.HandleFunc("GET /folders/{id}", h.HandleFolder)
	mux.HandleFunc("POST /folders/{id}/select", h.HandleSelectFolder)
}

// securityHeaders adds security-related HTTP headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self'; style-src 'self'")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

// Run serves srv until ctx is cancelled, then shuts it down gracefully.
func Run(ctx context.Context, srv *http.Server, logger *zap.Logger) error {
	logger = logging.OrNop(logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info("web UI listening", zap.String("url", "http://"+srv.Addr))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		logger.Info("shutting down web UI")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
