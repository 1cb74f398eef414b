package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"ctxmemoryd/internal/config"
	"ctxmemoryd/internal/logging"
	"ctxmemoryd/internal/version"
)

// httpServer is the optional read-only side-channel: GET /health and
// GET /info. It never accepts mutations and is gated by cfg.APIKey
// when set.
type httpServer struct {
	cfg       *config.Config
	toolNames []string
	srv       *http.Server
	access    zerolog.Logger
}

func newHTTPServer(cfg *config.Config, toolNames []string) *httpServer {
	analyticsDir := filepath.Join(cfg.ContextDir, "analytics")
	if err := os.MkdirAll(analyticsDir, 0o755); err != nil {
		logging.Log.WithError(err).Warn("failed to create analytics directory, access log disabled")
	}

	logPath := filepath.Join(analyticsDir, "api-calls-"+time.Now().Format("2006-01-02")+".json")
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	var accessLog zerolog.Logger
	if err != nil {
		logging.Log.WithError(err).Warn("failed to open access log, discarding entries")
		accessLog = zerolog.New(io.Discard)
	} else {
		accessLog = zerolog.New(f).With().Timestamp().Logger()
	}

	h := &httpServer{cfg: cfg, toolNames: toolNames, access: accessLog}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.withAccessLog(h.requireAPIKey(h.handleHealth)))
	mux.HandleFunc("/info", h.withAccessLog(h.requireAPIKey(h.handleInfo)))

	h.srv = &http.Server{
		Addr:    ":" + strconv.Itoa(cfg.HTTPPort),
		Handler: mux,
	}
	return h
}

func (h *httpServer) Start() {
	go func() {
		if err := h.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Log.WithError(err).Error("http side-channel failed")
		}
	}()
}

func (h *httpServer) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.srv.Shutdown(ctx); err != nil {
		logging.Log.WithError(err).Warn("http side-channel shutdown error")
	}
}

// withAccessLog writes one access-log line per request, stamped with a
// fresh correlation id. The id is not passed to the handler, so lines
// the handler logs through logging.Log do not carry it.
func (h *httpServer) withAccessLog(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		next(w, r)
		h.access.Info().
			Str("requestId", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remoteAddr", r.RemoteAddr).
			Msg("http request")
	}
}

func (h *httpServer) requireAPIKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.cfg.APIKey != "" && r.Header.Get("Authorization") != "Bearer "+h.cfg.APIKey {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
			return
		}
		next(w, r)
	}
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

func (h *httpServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(healthResponse{Status: "ok", Version: version.Version})
}

type infoResponse struct {
	Name    string        `json:"name"`
	Version string        `json:"version"`
	Tools   []string      `json:"tools"`
	Config  config.Config `json:"config"`
}

func (h *httpServer) handleInfo(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(infoResponse{
		Name:    "ctxmemoryd",
		Version: version.Version,
		Tools:   h.toolNames,
		Config:  h.cfg.Redacted(),
	})
}
