package server

import (
	"net/http"

	"github.com/playperu/fivehints/internal/token"
)

// ResolveRequest is the request body for POST /api/resolve.
type ResolveRequest struct {
	Token string `json:"token"`
}

// handleResolve returns the public view of a token: everything a player may
// see before guessing, never the answer.
func (s *Server) handleResolve() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ResolveRequest
		if r.Method == http.MethodGet {
			req.Token = r.URL.Query().Get("token")
		} else if err := readJSON(r, &req); err != nil {
			writeAppError(w, s.logger, err)
			return
		}

		p, err := s.verify(req.Token)
		if err != nil {
			writeAppError(w, s.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, token.PublicView(p))
	}
}
