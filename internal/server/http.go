// Package server exposes the dealz HTTP API: fact ingestion, deal
// management, condition validation, and activation reads and overrides.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/j-hartley/dealz/internal/activation"
	"github.com/j-hartley/dealz/internal/authz"
	"github.com/j-hartley/dealz/internal/condition"
	"github.com/j-hartley/dealz/internal/middleware"
	"github.com/j-hartley/dealz/internal/repository"
	"github.com/j-hartley/dealz/internal/service"
)

// Service is the application surface the HTTP layer depends on. It is
// satisfied by [service.Service].
type Service interface {
	ProcessFact(ctx context.Context, teamID string, fact condition.FactRecord) ([]service.DealResult, error)
	ValidateCondition(raw string) (string, error)

	CreateDeal(ctx context.Context, principal authz.Principal, deal repository.Deal) (repository.Deal, error)
	GetDeal(ctx context.Context, principal authz.Principal, id string) (repository.Deal, error)
	ListDeals(ctx context.Context, principal authz.Principal) ([]repository.Deal, error)
	UpdateDealStatus(ctx context.Context, principal authz.Principal, id string, status repository.DealStatus) (repository.Deal, error)

	GetActivation(ctx context.Context, principal authz.Principal, key string) (activation.Activation, error)
	ListActivations(ctx context.Context, principal authz.Principal, activeOnly bool) ([]activation.Activation, error)
	ReverseActivation(ctx context.Context, principal authz.Principal, key string) (activation.Activation, error)
	ForceActivate(ctx context.Context, principal authz.Principal, dealID, gameID string) (bool, activation.Activation, error)
}

// Server wires the HTTP routes to the service.
type Server struct {
	svc             Service
	logger          *slog.Logger
	maxJSONBodySize int64
}

// New creates a Server. A maxJSONBodySize of 0 disables the body limit.
func New(svc Service, logger *slog.Logger, maxJSONBodySize int64) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{svc: svc, logger: logger, maxJSONBodySize: maxJSONBodySize}
}

// Routes returns the API mux. Authentication middleware is applied by the
// caller; every handler here assumes a principal in the request context.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/facts", s.handleProcessFact)
	mux.HandleFunc("POST /v1/conditions/validate", s.handleValidateCondition)

	mux.HandleFunc("POST /v1/deals", s.handleCreateDeal)
	mux.HandleFunc("GET /v1/deals", s.handleListDeals)
	mux.HandleFunc("GET /v1/deals/{id}", s.handleGetDeal)
	mux.HandleFunc("PUT /v1/deals/{id}/status", s.handleUpdateDealStatus)
	mux.HandleFunc("POST /v1/deals/{id}/force-activate", s.handleForceActivate)

	mux.HandleFunc("GET /v1/activations", s.handleListActivations)
	mux.HandleFunc("GET /v1/activations/{key}", s.handleGetActivation)
	mux.HandleFunc("POST /v1/activations/{key}/reverse", s.handleReverseActivation)

	return mux
}

type processFactRequest struct {
	TeamID string               `json:"teamId"`
	Fact   condition.FactRecord `json:"fact"`
}

type processFactResponse struct {
	Results []service.DealResult `json:"results"`
}

func (s *Server) handleProcessFact(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing principal")
		return
	}
	if err := authz.Require(principal, authz.PermissionValidate); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	var req processFactRequest
	if !s.decodeJSONBody(w, r, &req) {
		return
	}
	if req.TeamID == "" {
		writeError(w, http.StatusBadRequest, "teamId is required")
		return
	}
	if req.Fact.GameID == "" {
		writeError(w, http.StatusBadRequest, "fact.gameId is required")
		return
	}

	results, err := s.svc.ProcessFact(r.Context(), req.TeamID, req.Fact)
	if err != nil && len(results) == 0 {
		s.writeServiceError(w, r, err)
		return
	}
	if err != nil {
		// Partial failure: some deals evaluated, others hit storage or data
		// errors. Report what succeeded; the rest is logged upstream.
		s.logger.WarnContext(r.Context(), "fact processed with errors",
			slog.String("game_id", req.Fact.GameID),
			slog.String("error", err.Error()),
		)
	}

	writeJSON(w, http.StatusOK, processFactResponse{Results: results})
}

type validateConditionRequest struct {
	Condition string `json:"condition"`
}

type validateConditionResponse struct {
	Valid      bool   `json:"valid"`
	Normalized string `json:"normalized,omitempty"`
	Token      string `json:"token,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

func (s *Server) handleValidateCondition(w http.ResponseWriter, r *http.Request) {
	var req validateConditionRequest
	if !s.decodeJSONBody(w, r, &req) {
		return
	}

	normalized, err := s.svc.ValidateCondition(req.Condition)
	if err != nil {
		var parseErr *condition.ParseError
		if errors.As(err, &parseErr) {
			// Invalid input is a successful validation request; the verdict
			// goes in the body, not the status code.
			writeJSON(w, http.StatusOK, validateConditionResponse{
				Valid:  false,
				Token:  parseErr.Token,
				Reason: parseErr.Reason,
			})
			return
		}
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, validateConditionResponse{Valid: true, Normalized: normalized})
}

type createDealRequest struct {
	RestaurantID    string `json:"restaurantId"`
	TeamID          string `json:"teamId"`
	ConditionString string `json:"conditionString"`
	Status          string `json:"status,omitempty"`
}

func (s *Server) handleCreateDeal(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing principal")
		return
	}

	var req createDealRequest
	if !s.decodeJSONBody(w, r, &req) {
		return
	}
	if req.TeamID == "" {
		writeError(w, http.StatusBadRequest, "teamId is required")
		return
	}

	created, err := s.svc.CreateDeal(r.Context(), principal, repository.Deal{
		RestaurantID:    req.RestaurantID,
		TeamID:          req.TeamID,
		ConditionString: req.ConditionString,
		Status:          repository.DealStatus(req.Status),
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleListDeals(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing principal")
		return
	}

	deals, err := s.svc.ListDeals(r.Context(), principal)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string][]repository.Deal{"deals": deals})
}

func (s *Server) handleGetDeal(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing principal")
		return
	}

	deal, err := s.svc.GetDeal(r.Context(), principal, r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, deal)
}

type updateDealStatusRequest struct {
	Status string `json:"status"`
}

func (s *Server) handleUpdateDealStatus(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing principal")
		return
	}

	var req updateDealStatusRequest
	if !s.decodeJSONBody(w, r, &req) {
		return
	}
	switch repository.DealStatus(req.Status) {
	case repository.DealStatusDraft, repository.DealStatusPublished, repository.DealStatusRetired:
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid status %q", req.Status))
		return
	}

	updated, err := s.svc.UpdateDealStatus(r.Context(), principal, r.PathValue("id"), repository.DealStatus(req.Status))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

type forceActivateRequest struct {
	GameID string `json:"gameId"`
}

type forceActivateResponse struct {
	Created    bool                  `json:"created"`
	Activation activation.Activation `json:"activation"`
}

func (s *Server) handleForceActivate(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing principal")
		return
	}

	var req forceActivateRequest
	if !s.decodeJSONBody(w, r, &req) {
		return
	}
	if req.GameID == "" {
		writeError(w, http.StatusBadRequest, "gameId is required")
		return
	}

	created, act, err := s.svc.ForceActivate(r.Context(), principal, r.PathValue("id"), req.GameID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, forceActivateResponse{Created: created, Activation: act})
}

func (s *Server) handleListActivations(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing principal")
		return
	}

	activeOnly := r.URL.Query().Get("active") == "true"
	activations, err := s.svc.ListActivations(r.Context(), principal, activeOnly)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string][]activation.Activation{"activations": activations})
}

func (s *Server) handleGetActivation(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing principal")
		return
	}

	act, err := s.svc.GetActivation(r.Context(), principal, r.PathValue("key"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, act)
}

func (s *Server) handleReverseActivation(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing principal")
		return
	}

	reversed, err := s.svc.ReverseActivation(r.Context(), principal, r.PathValue("key"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, reversed)
}

// writeServiceError maps domain errors to HTTP status codes. Permission
// denials are 403 so callers can tell a refusal from a missing resource.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var parseErr *condition.ParseError
	switch {
	case errors.As(err, &parseErr):
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":  "invalid condition",
			"token":  parseErr.Token,
			"reason": parseErr.Reason,
		})
	case errors.Is(err, authz.ErrPermissionDenied):
		writeError(w, http.StatusForbidden, "permission denied")
	case errors.Is(err, service.ErrDealNotFound), errors.Is(err, activation.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, activation.ErrNotReversible):
		writeError(w, http.StatusConflict, "activation is not reversible")
	case errors.Is(err, activation.ErrInvalidTTL):
		writeError(w, http.StatusBadRequest, "invalid activation ttl")
	default:
		s.logger.ErrorContext(r.Context(), "request failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := r.Body
	if s.maxJSONBodySize > 0 {
		body = http.MaxBytesReader(w, r.Body, s.maxJSONBodySize)
	}
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
