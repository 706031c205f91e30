package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/playperu/fivehints/internal/engine"
	"github.com/playperu/fivehints/internal/fivehints"
	"github.com/playperu/fivehints/internal/handler/health"
	"github.com/playperu/fivehints/internal/ratelimit"
	"github.com/playperu/fivehints/internal/token"
)

// Judge is the guess-check and enrichment surface the handlers call.
type Judge interface {
	engine.Judge
	engine.Enricher
}

// Options carries everything the HTTP layer needs from main.
type Options struct {
	Store    *SQLStore
	Codec    *token.Codec
	Judge    Judge
	Engine   *engine.Engine
	Broker   *Broker
	Limiter  ratelimit.Limiter
	Checks   map[string]health.Checker
	Sessions *Sessions

	PublicBaseURL  string
	AllowedOrigins []string
	SPADir         string

	PlayerTokenTTL    time.Duration
	DailyWindow       time.Duration
	EnrichmentTimeout time.Duration
	GuessRateLimit    int
	CreateRateLimit   int
}

type Server struct {
	srv    *http.Server
	logger *slog.Logger

	store    *SQLStore
	codec    *token.Codec
	judge    Judge
	engine   *engine.Engine
	broker   *Broker
	limiter  ratelimit.Limiter
	sessions *Sessions
	opts     Options
	now      func() time.Time
}

func New(addr string, logger *slog.Logger, opts Options) *Server {
	s := &Server{
		logger:   logger,
		store:    opts.Store,
		codec:    opts.Codec,
		judge:    opts.Judge,
		engine:   opts.Engine,
		broker:   opts.Broker,
		limiter:  opts.Limiter,
		sessions: opts.Sessions,
		opts:     opts,
		now:      time.Now,
	}
	if s.broker == nil {
		s.broker = NewBroker()
	}
	if s.limiter == nil {
		s.limiter = ratelimit.NewMemoryLimiter()
	}
	if s.sessions == nil {
		s.sessions = NewSessions()
	}
	if s.opts.EnrichmentTimeout <= 0 {
		s.opts.EnrichmentTimeout = engine.DefaultEnrichmentTimeout
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(newStructuredLogger(logger))
	r.Use(middleware.Recoverer)
	if len(opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   opts.AllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Content-Type", fingerprintHeader},
			ExposedHeaders:   []string{"Retry-After"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	s.addRoutes(r)

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler { return s.srv.Handler }

func (s *Server) Run(_ context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.srv.Addr, err)
	}

	err = s.srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		return err
	}
	// Let enrichment calls that already started land in their sessions.
	if err := s.engine.Wait(ctx); err != nil {
		s.logger.Warn("enrichment still running at shutdown", "error", err)
	}
	return nil
}

func newStructuredLogger(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				logger.Info("http request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"duration_ms", time.Since(start).Milliseconds(),
					"request_id", middleware.GetReqID(r.Context()),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// verify checks a raw token and maps failures to the error taxonomy.
func (s *Server) verify(raw string) (token.Payload, error) {
	if raw == "" {
		return token.Payload{}, fivehints.Errorf(fivehints.CodeValidation, "token is required")
	}
	return s.codec.Verify(raw)
}
