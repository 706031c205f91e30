package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/playperu/fivehints/internal/fivehints"
	"github.com/playperu/fivehints/internal/token"
)

const dayLayout = "2006-01-02"

// DailyResponse is the response for GET /api/daily and PUT /api/admin/daily/{day}.
type DailyResponse struct {
	Day       string                    `json:"day"`
	Token     string                    `json:"token"`
	Challenge fivehints.PublicChallenge `json:"challenge"`
}

// handleDaily serves today's (UTC) challenge. Daily tokens carry no exp;
// the window is reported from the schedule instead.
func (s *Server) handleDaily() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := s.now().UTC().Truncate(24 * time.Hour)
		day := start.Format(dayLayout)

		rec, err := s.store.Daily(r.Context(), day)
		if err != nil {
			writeAppError(w, s.logger, err)
			return
		}
		p, err := s.codec.Verify(rec.Token)
		if err != nil {
			writeAppError(w, s.logger, err)
			return
		}

		view := token.PublicView(p)
		exp := start.Add(s.opts.DailyWindow).Unix()
		view.ExpiresAt = &exp
		writeJSON(w, http.StatusOK, DailyResponse{Day: day, Token: rec.Token, Challenge: view})
	}
}

func (s *Server) handleScheduleDaily() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		day := chi.URLParam(r, "day")
		if _, err := time.Parse(dayLayout, day); err != nil {
			writeError(w, http.StatusBadRequest, fivehints.CodeValidation, "day must be YYYY-MM-DD")
			return
		}

		var req AuthoringRequest
		if err := readJSON(r, &req); err != nil {
			writeAppError(w, s.logger, err)
			return
		}

		ch := challengeFrom(req, s.now())
		ch.IsDaily = true
		tok, err := s.codec.Mint(ch, time.Time{})
		if err != nil {
			writeAppError(w, s.logger, err)
			return
		}

		admin := adminFrom(r)
		if err := s.store.SetDaily(r.Context(), DailyRecord{
			Day:         day,
			ChallengeID: ch.ID,
			Token:       tok,
			CreatedBy:   admin.Email,
		}); err != nil {
			writeAppError(w, s.logger, err)
			return
		}

		s.logger.Info("daily challenge scheduled", "day", day, "challenge_id", ch.ID, "admin", admin.Email)
		view := token.PublicView(token.Payload{Version: fivehints.SchemaVersion, Challenge: ch})
		writeJSON(w, http.StatusOK, DailyResponse{Day: day, Token: tok, Challenge: view})
	}
}
