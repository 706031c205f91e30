package server

import (
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/swaggest/swgui/v5emb"

	"github.com/playperu/fivehints/internal/handler/health"
)

func (s *Server) addRoutes(r chi.Router) {
	guessLimit := s.rateLimit("guess", s.opts.GuessRateLimit, time.Minute)
	createLimit := s.rateLimit("create", s.opts.CreateRateLimit, time.Hour)

	r.Get("/openapi.json", handleOpenAPI())
	r.Mount("/docs", v5emb.New("Five Hints API", "/openapi.json", "/docs"))
	r.Mount("/healthz", health.NewHandler(s.logger, s.opts.Checks).Routes())

	r.Route("/api", func(r chi.Router) {
		// Token-only endpoints.
		r.Post("/resolve", s.handleResolve())
		r.Get("/resolve", s.handleResolve())
		r.Get("/daily", s.handleDaily())
		r.Get("/c/{code}", s.handleShortCode())
		r.Get("/c/{code}/qr.png", s.handleShortCodeQR())
		r.Get("/challenges/{id}/stats", s.handleStats())
		r.With(createLimit).Post("/challenges", s.handleCreateChallenge())

		r.Group(func(r chi.Router) {
			r.Use(guessLimit)
			r.Post("/guess", s.handleGuess())
			r.Post("/nudge", s.handleNudge())
			r.Post("/analysis", s.handleAnalysis())
		})

		r.Route("/play", func(r chi.Router) {
			r.With(guessLimit).Post("/start", s.handlePlayStart())
			r.With(guessLimit).Post("/guess", s.handlePlayGuess())
			r.With(guessLimit).Post("/confirm", s.handlePlayConfirm())
			r.Delete("/sessions/{id}", s.handlePlayAbandon())
			r.Get("/sessions/{id}/events", s.handleEvents())
			r.Get("/sessions/{id}/ws", s.handleEventsWS())
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/login", s.handleAdminLogin())
			r.Post("/logout", s.handleAdminLogout())

			r.Group(func(r chi.Router) {
				r.Use(s.requireAdmin)
				r.Get("/me", s.handleAdminMe())
				r.Put("/daily/{day}", s.handleScheduleDaily())
			})
		})
	})

	if dir := s.opts.SPADir; dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			s.logger.Info("serving SPA", "dir", dir)
			r.NotFound(handleSPA(dir))
		}
	}
}
