package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/flagdeck/flagdeck/internal/engine"
)

type evaluateRequest struct {
	FlagKey string          `json:"flagKey"`
	Context *engine.Context `json:"context,omitempty"`
}

type evaluateResponse struct {
	FlagKey string `json:"flagKey"`
	Enabled bool   `json:"enabled"`
	Value   any    `json:"value,omitempty"`
	Variant string `json:"variant,omitempty"`
	Reason  string `json:"reason"`
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequestError(w, r, ErrCodeInvalidJSON, "invalid JSON")
		return
	}
	if strings.TrimSpace(req.FlagKey) == "" {
		BadRequestError(w, r, ErrCodeBadRequest, "flagKey is required")
		return
	}

	result, err := s.coord.Evaluate(r.Context(), req.FlagKey, req.Context)
	if err != nil {
		respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, evaluateResponse{
		FlagKey: req.FlagKey,
		Enabled: result.Enabled,
		Value:   result.Value,
		Variant: result.Variant,
		Reason:  result.Reason,
	})
}
