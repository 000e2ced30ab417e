package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/spigell/mutual-match/internal/catalog"
	"github.com/spigell/mutual-match/internal/logger"
	"github.com/spigell/mutual-match/internal/matching"
	"github.com/spigell/mutual-match/internal/payment"
	"github.com/spigell/mutual-match/internal/referral"
	"github.com/spigell/mutual-match/internal/session"
)

const signatureHeader = "Stripe-Signature"

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health != nil {
		if err := s.deps.Health(r.Context()); err != nil {
			s.logger.Warn("health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

type catalogResponse struct {
	Mode       string             `json:"mode"`
	Total      int                `json:"total"`
	Categories []catalog.Category `json:"categories"`
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	mode := strings.ToLower(r.URL.Query().Get("mode"))
	c := s.deps.Catalog
	switch mode {
	case "", "full":
		mode = "full"
	case "quick":
		c = s.deps.Quick
	default:
		s.writeError(w, r, fmt.Errorf("%w: unknown catalog mode %q", session.ErrInvalidRequest, mode))
		return
	}

	writeJSON(w, http.StatusOK, catalogResponse{Mode: mode, Total: c.Len(), Categories: c.Categories()})
}

func (s *Server) handleCreateQuiz(w http.ResponseWriter, r *http.Request) {
	var req session.CreateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	sess, err := s.deps.Sessions.Create(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": sess.ID})
}

func (s *Server) handleQuizStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.deps.Sessions.Status(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

type submitRequest struct {
	Partner string           `json:"partner"`
	Answers matching.Answers `json:"answers"`
	Email   string           `json:"email"`
	Name    string           `json:"partnerBName"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	partner, err := session.ParsePartner(req.Partner)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	err = s.deps.Sessions.Submit(r.Context(), mux.Vars(r)["id"], session.SubmitRequest{
		Partner: partner,
		Answers: req.Answers,
		Email:   req.Email,
		Name:    req.Name,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Results.Results(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type checkoutRequest struct {
	QuizID       string `json:"quizId"`
	ReferralCode string `json:"referralCode"`
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.QuizID) == "" {
		s.writeError(w, r, fmt.Errorf("%w: quiz id is required", session.ErrInvalidRequest))
		return
	}

	quote, err := s.deps.Payments.Checkout(r.Context(), req.QuizID, req.ReferralCode)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

// handleWebhook applies verified checkout events. Event ids are remembered
// only after a successful apply so the provider's retries still get through.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: reading body: %w", session.ErrInvalidRequest, err))
		return
	}

	ev, err := payment.ParseWebhook(payload, r.Header.Get(signatureHeader), s.deps.WebhookSecret)
	if err != nil {
		s.observeWebhook("invalid")
		s.writeError(w, r, err)
		return
	}

	if s.seen.Contains(ev.ID) {
		s.observeWebhook("duplicate")
		writeJSON(w, http.StatusOK, map[string]bool{"received": true})
		return
	}

	if ev.Checkout == nil {
		s.observeWebhook("ignored")
		writeJSON(w, http.StatusOK, map[string]bool{"received": true})
		return
	}

	if err := s.deps.Payments.Complete(r.Context(), ev.Checkout); err != nil {
		s.observeWebhook("failed")
		logger.WithFields(s.logger, logger.QuizFields(ev.Checkout.Metadata[payment.MetadataQuizID], "")...).Error(
			"applying checkout", zap.String("event_id", ev.ID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "database error"})
		return
	}

	s.seen.Add(ev.ID, struct{}{})
	s.observeWebhook("applied")
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func (s *Server) observeWebhook(outcome string) {
	if s.deps.Recorder != nil {
		s.deps.Recorder.ObserveWebhook(outcome)
	}
}

type validateRequest struct {
	Code string `json:"code"`
}

type validateResponse struct {
	Valid           bool   `json:"valid"`
	Code            string `json:"code,omitempty"`
	InfluencerName  string `json:"influencer_name,omitempty"`
	DiscountPercent int    `json:"discount_percent,omitempty"`
	Error           string `json:"error,omitempty"`
}

func (s *Server) handleValidateReferral(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	code, err := s.deps.Referrals.Validate(r.Context(), req.Code)
	if errors.Is(err, referral.ErrNotFound) {
		writeJSON(w, http.StatusOK, validateResponse{Error: "Invalid or inactive referral code"})
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, validateResponse{
		Valid:           true,
		Code:            code.Code,
		InfluencerName:  code.InfluencerName,
		DiscountPercent: code.DiscountPercent,
	})
}
