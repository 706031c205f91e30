package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/playperu/fivehints/internal/engine"
	"github.com/playperu/fivehints/internal/fivehints"
	"github.com/playperu/fivehints/internal/token"
)

// PlayStartRequest is the request body for POST /api/play/start.
type PlayStartRequest struct {
	Token string `json:"token"`
}

// PlayStartResponse carries a fresh session snapshot the client persists.
type PlayStartResponse struct {
	Session   engine.Snapshot           `json:"session"`
	Challenge fivehints.PublicChallenge `json:"challenge"`
}

// PlayGuessRequest is the request body for POST /api/play/guess.
type PlayGuessRequest struct {
	Token       string          `json:"token"`
	Session     engine.Snapshot `json:"session"`
	Guess       string          `json:"guess"`
	Fingerprint string          `json:"player_fingerprint"`
}

// PlayConfirmRequest is the request body for POST /api/play/confirm.
type PlayConfirmRequest struct {
	Token       string          `json:"token"`
	Session     engine.Snapshot `json:"session"`
	Accept      bool            `json:"accept"`
	Fingerprint string          `json:"player_fingerprint"`
}

// AbandonResponse is the response for DELETE /api/play/sessions/{id}.
type AbandonResponse struct {
	Status   string `json:"status"`
	InFlight bool   `json:"in_flight"`
}

// trackGrace keeps an abandoned-but-running session reachable slightly
// longer than its enrichment deadline.
const trackGrace = 5 * time.Second

func (s *Server) handlePlayStart() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PlayStartRequest
		if err := readJSON(r, &req); err != nil {
			writeAppError(w, s.logger, err)
			return
		}

		p, err := s.verify(req.Token)
		if err != nil {
			writeAppError(w, s.logger, err)
			return
		}

		sess := s.engine.Start(p.ID)
		writeJSON(w, http.StatusOK, PlayStartResponse{
			Session:   sess.Snapshot(),
			Challenge: token.PublicView(p),
		})
	}
}

// restore verifies the token, checks the snapshot belongs to it and locks
// the session id for the duration of the request.
func (s *Server) restore(tok string, snap engine.Snapshot) (*engine.Session, func(), error) {
	p, err := s.verify(tok)
	if err != nil {
		return nil, nil, err
	}
	if snap.ChallengeID != p.ID {
		return nil, nil, fivehints.Errorf(fivehints.CodeValidation, "session belongs to another challenge")
	}

	sess, err := s.engine.Restore(snap)
	if err != nil {
		return nil, nil, err
	}
	if !s.sessions.Acquire(snap.ID) {
		return nil, nil, fivehints.Errorf(fivehints.CodeConflict, "a guess for this session is already being processed")
	}
	return sess, func() { s.sessions.Release(snap.ID) }, nil
}

func (s *Server) afterTransition(sess *engine.Session, out engine.Outcome) {
	if out.Enrichment != "" {
		s.sessions.Track(sess, out.Enrichment, s.opts.EnrichmentTimeout+trackGrace)
	}
	if out.Snapshot.State.Terminal() && out.Result != "" {
		s.logger.Info("session finished",
			"session_id", out.Snapshot.ID,
			"challenge_id", out.Snapshot.ChallengeID,
			"state", out.Snapshot.State,
			"rank", out.Snapshot.Rank,
			"guesses", out.Snapshot.GuessCount,
		)
	}
}

func (s *Server) handlePlayGuess() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PlayGuessRequest
		if err := readJSON(r, &req); err != nil {
			writeAppError(w, s.logger, err)
			return
		}

		sess, release, err := s.restore(req.Token, req.Session)
		if err != nil {
			writeAppError(w, s.logger, err)
			return
		}
		defer release()

		out, err := s.engine.Submit(r.Context(), sess, req.Token, req.Guess, fingerprint(r, req.Fingerprint))
		if err != nil {
			writeAppError(w, s.logger, err)
			return
		}
		s.afterTransition(sess, out)
		writeJSON(w, http.StatusOK, out)
	}
}

func (s *Server) handlePlayConfirm() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PlayConfirmRequest
		if err := readJSON(r, &req); err != nil {
			writeAppError(w, s.logger, err)
			return
		}

		sess, release, err := s.restore(req.Token, req.Session)
		if err != nil {
			writeAppError(w, s.logger, err)
			return
		}
		defer release()

		out, err := s.engine.Confirm(r.Context(), sess, req.Token, req.Accept, fingerprint(r, req.Fingerprint))
		if err != nil {
			writeAppError(w, s.logger, err)
			return
		}
		s.afterTransition(sess, out)
		writeJSON(w, http.StatusOK, out)
	}
}

func (s *Server) handlePlayAbandon() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		inFlight := s.sessions.Abandon(id)
		s.broker.Forget(id)
		s.logger.Info("session abandoned", "session_id", id, "in_flight", inFlight)
		writeJSON(w, http.StatusOK, AbandonResponse{Status: "abandoned", InFlight: inFlight})
	}
}
