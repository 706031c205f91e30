package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/playperu/fivehints/internal/fivehints"
)

const (
	adminCookieName = "admin_session"
	adminSessionTTL = 7 * 24 * time.Hour
)

type AdminLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AdminMeResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

var errBadCredentials = fivehints.Errorf(fivehints.CodeAuthInvalid, "invalid credentials")

// setAdminCookie writes the session cookie; an empty id expires it.
func (s *Server) setAdminCookie(w http.ResponseWriter, id string) {
	maxAge := int(adminSessionTTL.Seconds())
	if id == "" {
		maxAge = -1
	}
	http.SetCookie(w, &http.Cookie{
		Name:     adminCookieName,
		Value:    id,
		Path:     "/api/admin",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   strings.HasPrefix(s.opts.PublicBaseURL, "https://"),
		SameSite: http.SameSiteStrictMode,
	})
}

func adminSessionID(r *http.Request) string {
	c, err := r.Cookie(adminCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

func (s *Server) authenticate(ctx context.Context, email, password string) (string, error) {
	id, hash, err := s.store.AdminByEmail(ctx, email)
	if errors.Is(err, fivehints.ErrNotFound) {
		return "", errBadCredentials
	}
	if err != nil {
		return "", err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return "", errBadCredentials
	}
	return id, nil
}

func (s *Server) handleAdminLogin() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AdminLoginRequest
		if err := readJSON(r, &req); err != nil {
			writeAppError(w, s.logger, err)
			return
		}
		email := strings.ToLower(strings.TrimSpace(req.Email))
		if email == "" || req.Password == "" {
			writeError(w, http.StatusBadRequest, fivehints.CodeValidation, "email and password are required")
			return
		}

		adminID, err := s.authenticate(r.Context(), email, req.Password)
		if err != nil {
			if errors.Is(err, errBadCredentials) {
				s.logger.Warn("admin login rejected", "email", email)
			}
			writeAppError(w, s.logger, err)
			return
		}

		// Rotate: a login never reuses the session the browser presented.
		if old := adminSessionID(r); old != "" {
			s.store.DeleteAdminSession(r.Context(), old)
		}
		if n, err := s.store.PurgeAdminSessions(r.Context()); err != nil {
			s.logger.Warn("purging admin sessions", "error", err)
		} else if n > 0 {
			s.logger.Debug("purged expired admin sessions", "count", n)
		}

		sid, err := s.store.CreateAdminSession(r.Context(), adminID)
		if err != nil {
			writeAppError(w, s.logger, err)
			return
		}
		s.setAdminCookie(w, sid)
		s.logger.Info("admin logged in", "email", email)
		writeJSON(w, http.StatusOK, AdminMeResponse{ID: adminID, Email: email})
	}
}

func (s *Server) handleAdminLogout() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if sid := adminSessionID(r); sid != "" {
			if err := s.store.DeleteAdminSession(r.Context(), sid); err != nil {
				s.logger.Warn("deleting admin session", "error", err)
			}
		}
		s.setAdminCookie(w, "")
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleAdminMe() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a := adminFrom(r)
		writeJSON(w, http.StatusOK, AdminMeResponse{ID: a.AdminID, Email: a.Email})
	}
}

// requireAdmin rejects requests without a live admin session and stores the
// session in the request context.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sid := adminSessionID(r)
		if sid == "" {
			writeError(w, http.StatusUnauthorized, fivehints.CodeAuthInvalid, "not authenticated")
			return
		}
		a, err := s.store.AdminFromSession(r.Context(), sid)
		if errors.Is(err, errNoAdminSession) {
			writeError(w, http.StatusUnauthorized, fivehints.CodeAuthInvalid, "session expired")
			return
		}
		if err != nil {
			writeAppError(w, s.logger, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKeyAdmin, a)))
	})
}

func adminFrom(r *http.Request) adminSession {
	return r.Context().Value(ctxKeyAdmin).(adminSession)
}
