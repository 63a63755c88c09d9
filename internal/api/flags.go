package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/flagdeck/flagdeck/internal/store"
)

type variantRequest struct {
	Key    string `json:"key"`
	Value  string `json:"value"`
	Weight int    `json:"weight"`
}

type targetRequest struct {
	Type       string  `json:"targetType"`
	Value      string  `json:"targetValue"`
	Enabled    *bool   `json:"enabled,omitempty"`
	Percentage *int    `json:"percentage,omitempty"`
	VariantKey *string `json:"variantKey,omitempty"`
	Priority   int     `json:"priority"`
}

type createFlagRequest struct {
	Key               string           `json:"key"`
	Description       string           `json:"description"`
	Enabled           bool             `json:"enabled"`
	Type              string           `json:"type"`
	RolloutPercentage int              `json:"rolloutPercentage"`
	Variants          []variantRequest `json:"variants,omitempty"`
	Targets           []targetRequest  `json:"targets,omitempty"`
}

type updateFlagRequest struct {
	Description       *string `json:"description,omitempty"`
	Enabled           *bool   `json:"enabled,omitempty"`
	Type              *string `json:"type,omitempty"`
	RolloutPercentage *int    `json:"rolloutPercentage,omitempty"`
}

type toggleRequest struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) handleListFlags(w http.ResponseWriter, r *http.Request) {
	includeDeleted := r.URL.Query().Get("includeDeleted") == "true"

	flags, err := s.coord.ListFlags(r.Context(), includeDeleted)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"flags": flags})
}

func (s *Server) handleGetFlag(w http.ResponseWriter, r *http.Request) {
	flag, err := s.coord.GetFlag(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, flag)
}

func (s *Server) handleCreateFlag(w http.ResponseWriter, r *http.Request) {
	var req createFlagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequestError(w, r, ErrCodeInvalidJSON, "invalid JSON")
		return
	}

	flag := store.Flag{
		Key:               req.Key,
		Description:       req.Description,
		Enabled:           req.Enabled,
		Type:              store.FlagType(req.Type),
		RolloutPercentage: req.RolloutPercentage,
	}
	for _, v := range req.Variants {
		flag.Variants = append(flag.Variants, store.Variant{Key: v.Key, Value: v.Value, Weight: v.Weight})
	}
	for _, t := range req.Targets {
		flag.Targets = append(flag.Targets, toStoreTarget(t))
	}

	created, err := s.coord.CreateFlag(r.Context(), flag, requestMeta(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdateFlag(w http.ResponseWriter, r *http.Request) {
	var req updateFlagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequestError(w, r, ErrCodeInvalidJSON, "invalid JSON")
		return
	}

	params := store.UpdateParams{
		Key:               chi.URLParam(r, "key"),
		Description:       req.Description,
		Enabled:           req.Enabled,
		RolloutPercentage: req.RolloutPercentage,
	}
	if req.Type != nil {
		flagType := store.FlagType(*req.Type)
		params.Type = &flagType
	}

	updated, err := s.coord.UpdateFlag(r.Context(), params, requestMeta(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleToggleFlag(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequestError(w, r, ErrCodeInvalidJSON, "invalid JSON")
		return
	}

	updated, err := s.coord.ToggleFlag(r.Context(), chi.URLParam(r, "key"), req.Enabled, requestMeta(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteFlag(w http.ResponseWriter, r *http.Request) {
	if err := s.coord.DeleteFlag(r.Context(), chi.URLParam(r, "key"), requestMeta(r)); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAddVariant(w http.ResponseWriter, r *http.Request) {
	var req variantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequestError(w, r, ErrCodeInvalidJSON, "invalid JSON")
		return
	}

	variant := store.Variant{Key: req.Key, Value: req.Value, Weight: req.Weight}
	created, err := s.coord.AddVariant(r.Context(), chi.URLParam(r, "key"), variant, requestMeta(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleAddTarget(w http.ResponseWriter, r *http.Request) {
	var req targetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequestError(w, r, ErrCodeInvalidJSON, "invalid JSON")
		return
	}

	created, err := s.coord.AddTarget(r.Context(), chi.URLParam(r, "key"), toStoreTarget(req), requestMeta(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// toStoreTarget converts the wire representation. Targets default to enabled
// when the field is omitted.
func toStoreTarget(req targetRequest) store.Target {
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	return store.Target{
		Type:       store.TargetType(req.Type),
		Value:      req.Value,
		Enabled:    enabled,
		Percentage: req.Percentage,
		VariantKey: req.VariantKey,
		Priority:   req.Priority,
	}
}
