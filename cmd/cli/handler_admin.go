package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/petnica-meteor-group/meteornet-server/pkg/ingest"
	"github.com/petnica-meteor-group/meteornet-server/pkg/models"
	"github.com/petnica-meteor-group/meteornet-server/pkg/repository"
	"github.com/petnica-meteor-group/meteornet-server/pkg/rules"
)

// AddRuleRequest is the body of a rule creation
type AddRuleRequest struct {
	Expression string `json:"expression"`
	Message    string `json:"message"`
	// Status defaults to "Rule(s) broken"
	Status string `json:"status"`
}

// writeServiceError maps service errors to status codes
func (rm *RouteManager) writeServiceError(w http.ResponseWriter, err error, action string) {
	switch {
	case errors.Is(err, ingest.ErrUnknownStation), errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ingest.ErrAlreadyApproved):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, rules.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		rm.logger.Error().Err(err).Msg("Failed to " + action)
		writeError(w, http.StatusInternalServerError, "Failed to "+action)
	}
}

func (rm *RouteManager) approveStationHandler(w http.ResponseWriter, r *http.Request) {
	networkID := mux.Vars(r)["network_id"]
	if err := rm.Engine.Approve(r.Context(), networkID); err != nil {
		rm.writeServiceError(w, err, "approve station")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (rm *RouteManager) rejectStationHandler(w http.ResponseWriter, r *http.Request) {
	networkID := mux.Vars(r)["network_id"]
	if err := rm.Engine.Reject(r.Context(), networkID); err != nil {
		rm.writeServiceError(w, err, "reject station")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (rm *RouteManager) deleteStationHandler(w http.ResponseWriter, r *http.Request) {
	networkID := mux.Vars(r)["network_id"]
	if err := rm.Engine.DeleteStation(r.Context(), networkID); err != nil {
		rm.writeServiceError(w, err, "delete station")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rm *RouteManager) resolveErrorHandler(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid error id format")
		return
	}
	if err := rm.Engine.ResolveError(r.Context(), id); err != nil {
		rm.writeServiceError(w, err, "resolve error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rm *RouteManager) listRulesHandler(w http.ResponseWriter, r *http.Request) {
	list, err := rm.Rules.List(r.Context())
	if err != nil {
		rm.writeServiceError(w, err, "list rules")
		return
	}
	if list == nil {
		list = []models.StatusRule{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (rm *RouteManager) addRuleHandler(w http.ResponseWriter, r *http.Request) {
	var req AddRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	rule, err := rm.Rules.Add(r.Context(), req.Expression, req.Message, req.Status)
	if err != nil {
		rm.writeServiceError(w, err, "add rule")
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}

func (rm *RouteManager) deleteRuleHandler(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid rule id format")
		return
	}
	if err := rm.Rules.Delete(r.Context(), id); err != nil {
		rm.writeServiceError(w, err, "delete rule")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
