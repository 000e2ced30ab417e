package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/spigell/mutual-match/internal/matching"
	"github.com/spigell/mutual-match/internal/payment"
	"github.com/spigell/mutual-match/internal/referral"
	"github.com/spigell/mutual-match/internal/results"
	"github.com/spigell/mutual-match/internal/session"
	"github.com/spigell/mutual-match/internal/utils"
)

const (
	maxBodyBytes = 1 << 20
	maxLogLength = 200
)

var errUnauthorized = errors.New("unauthorized")

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: malformed body: %w", session.ErrInvalidRequest, err)
	}
	return nil
}

// statusFor maps domain errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, session.ErrNotFound), errors.Is(err, referral.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrAlreadySubmitted),
		errors.Is(err, session.ErrPartnerAPending),
		errors.Is(err, session.ErrAlreadyPaid),
		errors.Is(err, referral.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, session.ErrInvalidRequest),
		errors.Is(err, matching.ErrInvalidValue),
		errors.Is(err, referral.ErrInvalid),
		errors.Is(err, results.ErrIncomplete),
		errors.Is(err, payment.ErrIncomplete),
		errors.Is(err, payment.ErrSignature):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeError replies with the mapped status. Internal errors are logged and
// replaced by a generic message.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeJSON(w, status, errorResponse{Error: "internal error"})
		return
	}

	s.logger.Debug("request rejected",
		zap.String("path", r.URL.Path),
		zap.Int("status", status),
		zap.String("reason", utils.TruncateForLog(err.Error(), maxLogLength)),
	)
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
