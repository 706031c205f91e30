package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/playperu/fivehints/internal/fivehints"
)

const maxBodyBytes = 64 << 10

// ErrorResponse is returned for all error responses.
type ErrorResponse struct {
	Error string         `json:"error"`
	Code  fivehints.Code `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func readJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fivehints.Wrap(fivehints.CodeValidation, "invalid request body", err)
	}
	return nil
}

func writeError(w http.ResponseWriter, status int, code fivehints.Code, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg, Code: code})
}

var statusByCode = map[fivehints.Code]int{
	fivehints.CodeAuthInvalid:     http.StatusUnauthorized,
	fivehints.CodeAuthExpired:     http.StatusUnauthorized,
	fivehints.CodeValidation:      http.StatusBadRequest,
	fivehints.CodeNotFound:        http.StatusNotFound,
	fivehints.CodeConflict:        http.StatusConflict,
	fivehints.CodeRateLimited:     http.StatusTooManyRequests,
	fivehints.CodeUpstreamTimeout: http.StatusGatewayTimeout,
	fivehints.CodeUpstreamFailure: http.StatusBadGateway,
}

// writeAppError maps a typed error to its HTTP status. Untyped errors are
// logged and answered with a generic 500.
func writeAppError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var e *fivehints.Error
	if !errors.As(err, &e) {
		logger.Error("internal error", "error", err)
		writeError(w, http.StatusInternalServerError, fivehints.CodeInternal, "internal error")
		return
	}

	status, ok := statusByCode[e.Code]
	if !ok {
		logger.Error("internal error", "error", err)
		writeError(w, http.StatusInternalServerError, fivehints.CodeInternal, "internal error")
		return
	}
	if e.Code == fivehints.CodeRateLimited && e.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(e.RetryAfter.Seconds()))))
	}
	if status >= http.StatusInternalServerError {
		logger.Warn("upstream error", "code", e.Code, "error", err)
	}

	msg := e.Message
	if msg == "" {
		msg = string(e.Code)
	}
	writeError(w, status, e.Code, msg)
}
