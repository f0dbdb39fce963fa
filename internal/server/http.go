package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// NewHTTPHandler builds the liveness surface: /health, /ready and /metrics.
func NewHTTPHandler(h *Health, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/ready", func(w http.ResponseWriter, _ *http.Request) {
		if !h.Ready() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Server runs the optional HTTP and gRPC health listeners.
type Server struct {
	logger *slog.Logger
	http   *http.Server
	httpLn net.Listener
	grpc   *grpc.Server
	grpcLn net.Listener
}

// New binds the listeners. An empty address disables that listener.
func New(httpAddr, grpcAddr string, h *Health, gatherer prometheus.Gatherer, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{logger: logger}

	if httpAddr != "" {
		ln, err := net.Listen("tcp", httpAddr)
		if err != nil {
			return nil, err
		}
		s.httpLn = ln
		s.http = &http.Server{
			Handler:           NewHTTPHandler(h, gatherer),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	if grpcAddr != "" {
		ln, err := net.Listen("tcp", grpcAddr)
		if err != nil {
			if s.httpLn != nil {
				_ = s.httpLn.Close()
			}
			return nil, err
		}
		s.grpcLn = ln
		s.grpc = grpc.NewServer()
		hs := health.NewServer()
		healthpb.RegisterHealthServer(s.grpc, hs)
		h.AttachGRPC(hs)
	}
	return s, nil
}

// HTTPAddr is the bound HTTP address, or "" when HTTP is disabled.
func (s *Server) HTTPAddr() string {
	if s.httpLn == nil {
		return ""
	}
	return s.httpLn.Addr().String()
}

// Start serves in the background.
func (s *Server) Start() {
	if s.http != nil {
		go func() {
			s.logger.Info("http health serving", "addr", s.HTTPAddr())
			if err := s.http.Serve(s.httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error("http serve failed", "error", err)
			}
		}()
	}
	if s.grpc != nil {
		go func() {
			s.logger.Info("grpc health serving", "addr", s.grpcLn.Addr().String())
			if err := s.grpc.Serve(s.grpcLn); err != nil {
				s.logger.Error("grpc serve failed", "error", err)
			}
		}()
	}
}

// Shutdown stops both listeners.
func (s *Server) Shutdown(ctx context.Context) {
	if s.http != nil {
		if err := s.http.Shutdown(ctx); err != nil {
			s.logger.Warn("http shutdown", "error", err)
		}
	}
	if s.grpc != nil {
		s.grpc.GracefulStop()
	}
}
