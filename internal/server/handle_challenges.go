package server

import (
	"crypto/rand"
	"encoding/base32"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/playperu/fivehints/internal/fivehints"
	"github.com/playperu/fivehints/internal/match"
	"github.com/playperu/fivehints/internal/token"
)

// AuthoringRequest is an authored challenge before it gets an id and a token.
type AuthoringRequest struct {
	Type       fivehints.ChallengeType `json:"type"`
	Target     string                  `json:"target"`
	Aliases    []string                `json:"aliases"`
	Hints      fivehints.Hints         `json:"hints"`
	FameScore  int                     `json:"fame_score"`
	Category   string                  `json:"category,omitempty"`
	Difficulty string                  `json:"difficulty,omitempty"`
}

// CreateChallengeResponse is the response for POST /api/challenges.
type CreateChallengeResponse struct {
	ID        string `json:"id"`
	Code      string `json:"code"`
	Token     string `json:"token"`
	ShareURL  string `json:"share_url"`
	ExpiresAt int64  `json:"expires_at"`
}

// ShortCodeResponse is the response for GET /api/c/{code}.
type ShortCodeResponse struct {
	Token     string                    `json:"token"`
	Challenge fivehints.PublicChallenge `json:"challenge"`
}

const codeAttempts = 3

var codeEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// newCode returns 8 base32 characters from 40 random bits.
func newCode() string {
	b := make([]byte, 5)
	rand.Read(b)
	return codeEncoding.EncodeToString(b)
}

// challengeFrom assigns identity and normalizes aliases. Validation happens
// when the token is minted.
func challengeFrom(req AuthoringRequest, now time.Time) fivehints.Challenge {
	return fivehints.Challenge{
		ID:         uuid.NewString(),
		Type:       req.Type,
		Target:     strings.TrimSpace(req.Target),
		Aliases:    match.EnsureAliases(req.Target, req.Aliases),
		Hints:      req.Hints,
		FameScore:  req.FameScore,
		CreatedAt:  now.Unix(),
		Category:   strings.TrimSpace(req.Category),
		Difficulty: strings.TrimSpace(req.Difficulty),
	}
}

func (s *Server) shareURL(code string) string {
	return strings.TrimRight(s.opts.PublicBaseURL, "/") + "/c/" + code
}

func (s *Server) handleCreateChallenge() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AuthoringRequest
		if err := readJSON(r, &req); err != nil {
			writeAppError(w, s.logger, err)
			return
		}

		now := s.now()
		ch := challengeFrom(req, now)
		exp := now.Add(s.opts.PlayerTokenTTL)

		tok, err := s.codec.Mint(ch, exp)
		if err != nil {
			writeAppError(w, s.logger, err)
			return
		}

		rec := ChallengeRecord{
			ID:        ch.ID,
			Type:      ch.Type,
			Token:     tok,
			CreatedAt: ch.CreatedAt,
			ExpiresAt: exp.Unix(),
		}
		for range codeAttempts {
			rec.Code = newCode()
			if err = s.store.CreateChallenge(r.Context(), rec); !errors.Is(err, fivehints.ErrConflict) {
				break
			}
		}
		if err != nil {
			writeAppError(w, s.logger, err)
			return
		}

		s.logger.Info("challenge created", "challenge_id", ch.ID, "type", ch.Type, "code", rec.Code)
		writeJSON(w, http.StatusCreated, CreateChallengeResponse{
			ID:        ch.ID,
			Code:      rec.Code,
			Token:     tok,
			ShareURL:  s.shareURL(rec.Code),
			ExpiresAt: rec.ExpiresAt,
		})
	}
}

func (s *Server) handleShortCode() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := s.store.ChallengeByCode(r.Context(), strings.ToUpper(chi.URLParam(r, "code")))
		if err != nil {
			writeAppError(w, s.logger, err)
			return
		}

		p, err := s.codec.Verify(rec.Token)
		if err != nil {
			writeAppError(w, s.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, ShortCodeResponse{Token: rec.Token, Challenge: token.PublicView(p)})
	}
}

func (s *Server) handleShortCodeQR() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := s.store.ChallengeByCode(r.Context(), strings.ToUpper(chi.URLParam(r, "code")))
		if err != nil {
			writeAppError(w, s.logger, err)
			return
		}

		png, err := qrcode.Encode(s.shareURL(rec.Code), qrcode.Medium, 256)
		if err != nil {
			writeAppError(w, s.logger, err)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "public, max-age=86400")
		w.WriteHeader(http.StatusOK)
		w.Write(png)
	}
}

func (s *Server) handleStats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := s.store.Stats(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeAppError(w, s.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}
