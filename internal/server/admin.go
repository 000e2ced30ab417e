package server

import (
	"net/http"

	"github.com/spigell/mutual-match/internal/referral"
)

type createReferralRequest struct {
	Code            string `json:"code"`
	InfluencerName  string `json:"influencer_name"`
	DiscountPercent int    `json:"discount_percent"`
}

type updateReferralRequest struct {
	ID string `json:"id"`
	referral.Update
}

func (s *Server) handleListReferrals(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.Referrals.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]referral.Stats{"referrals": stats})
}

func (s *Server) handleCreateReferral(w http.ResponseWriter, r *http.Request) {
	var req createReferralRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	code, err := s.deps.Referrals.Create(r.Context(), req.Code, req.InfluencerName, req.DiscountPercent)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]*referral.Code{"referral": code})
}

func (s *Server) handleUpdateReferral(w http.ResponseWriter, r *http.Request) {
	var req updateReferralRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	code, err := s.deps.Referrals.Update(r.Context(), req.ID, req.Update)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]*referral.Code{"referral": code})
}

func (s *Server) handleDeleteReferral(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Referrals.Delete(r.Context(), r.URL.Query().Get("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
