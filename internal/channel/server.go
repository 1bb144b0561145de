package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"chatbridge/internal/domain"
)

// HistoryStore is the conversation view served by the history endpoint.
type HistoryStore interface {
	History() ([]domain.Entry, error)
	Clear(ctx context.Context)
}

type ServerConfig struct {
	Host string
	Port int

	Line         *Line // nil disables the callback route
	CallbackPath string
	History      HistoryStore // nil disables the history routes
	HistoryPath  string
	Metrics      http.Handler // nil disables the metrics route
	MetricsPath  string
	Logger       *slog.Logger
}

// Server is the HTTP front end shared by the LINE callback, the history admin
// routes and the metrics endpoint.
type Server struct {
	cfg    ServerConfig
	logger *slog.Logger
	server *http.Server
}

func NewServer(cfg ServerConfig) *Server {
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.CallbackPath == "" {
		cfg.CallbackPath = "/line/callback"
	}
	if cfg.HistoryPath == "" {
		cfg.HistoryPath = "/line/history"
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Server{cfg: cfg, logger: cfg.Logger}
}

// Handler builds the route table. Unsupported methods on a known path get 405.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = rw.Write([]byte("chatbridge"))
	})
	if s.cfg.Line != nil {
		mux.Handle("POST "+s.cfg.CallbackPath, s.cfg.Line.CallbackHandler())
	}
	if s.cfg.History != nil {
		mux.HandleFunc("GET "+s.cfg.HistoryPath, s.handleHistory)
		mux.HandleFunc("DELETE "+s.cfg.HistoryPath, s.handleClear)
	}
	if s.cfg.Metrics != nil {
		mux.Handle("GET "+s.cfg.MetricsPath, s.cfg.Metrics)
	}
	return mux
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info("http server starting", "addr", addr, "callback", s.cfg.CallbackPath, "history", s.cfg.HistoryPath)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("http server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}
}

func (s *Server) handleHistory(rw http.ResponseWriter, r *http.Request) {
	entries, err := s.cfg.History.History()
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrMalformedHistory) {
			status = http.StatusBadRequest
		}
		s.logger.Warn("history read failed", "err", err)
		writeJSON(rw, status, map[string]string{"error": err.Error()})
		return
	}
	if entries == nil {
		entries = []domain.Entry{}
	}
	writeJSON(rw, http.StatusOK, entries)
}

func (s *Server) handleClear(rw http.ResponseWriter, r *http.Request) {
	s.cfg.History.Clear(r.Context())
	s.logger.Info("conversation cleared", "remote", r.RemoteAddr)
	writeJSON(rw, http.StatusOK, map[string]string{"status": "cleared"})
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}
