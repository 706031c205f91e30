package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/playperu/fivehints/internal/fivehints"
)

// fingerprint prefers the value in the body and falls back to the header.
func fingerprint(r *http.Request, body string) string {
	if fp := strings.TrimSpace(body); fp != "" {
		return fp
	}
	return strings.TrimSpace(r.Header.Get(fingerprintHeader))
}

func (s *Server) handleGuess() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req fivehints.GuessCheck
		if err := readJSON(r, &req); err != nil {
			writeAppError(w, s.logger, err)
			return
		}
		req.Fingerprint = fingerprint(r, req.Fingerprint)

		v, err := s.judge.Check(r.Context(), req)
		if err != nil {
			writeAppError(w, s.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

// The provider boundary: unlike the play flow these endpoints surface
// UPSTREAM_* errors to the caller.
func (s *Server) handleNudge() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req fivehints.EnrichmentRequest
		if err := readJSON(r, &req); err != nil {
			writeAppError(w, s.logger, err)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), s.opts.EnrichmentTimeout)
		defer cancel()

		n, err := s.judge.Nudge(ctx, req)
		if err != nil {
			writeAppError(w, s.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, n)
	}
}

func (s *Server) handleAnalysis() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req fivehints.EnrichmentRequest
		if err := readJSON(r, &req); err != nil {
			writeAppError(w, s.logger, err)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), s.opts.EnrichmentTimeout)
		defer cancel()

		a, err := s.judge.Analyze(ctx, req)
		if err != nil {
			writeAppError(w, s.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}
