package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"lodestone/internal/loader"
	"lodestone/internal/repository"
	"lodestone/internal/service"
)

// DesignHandler handles design application and deployment lifecycle
// requests.
type DesignHandler struct {
	svc *service.DesignService
}

// NewDesignHandler creates a new design handler
func NewDesignHandler(svc *service.DesignService) *DesignHandler {
	return &DesignHandler{svc: svc}
}

// ApplyRequest carries a design document to apply. Source is the YAML text
// of the design or fixture file.
type ApplyRequest struct {
	Design     string `json:"design"`
	Deployment string `json:"deployment"`
	Source     string `json:"source"`
	DryRun     bool   `json:"dry_run"`
}

// Apply runs a design as a deployment
func (h *DesignHandler) Apply(w http.ResponseWriter, r *http.Request) {
	var req ApplyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}
	if req.Source == "" {
		writeError(w, "A design source is required", "", http.StatusBadRequest)
		return
	}

	fixture, err := loader.Parse([]byte(req.Source))
	if err != nil {
		writeError(w, "Invalid design document", err.Error(), http.StatusBadRequest)
		return
	}
	if fixture.DependsOn != "" {
		writeError(w, "Inline designs cannot use depends_on", "", http.StatusBadRequest)
		return
	}

	result, err := h.svc.Apply(r.Context(), req.Design, req.Deployment, fixture, req.DryRun)
	if err != nil {
		log.Printf("Failed to apply design %s: %v", req.Design, err)
		writeError(w, "Failed to apply design", err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, result, http.StatusCreated)
}

// ListDeployments returns deployments, optionally filtered by status
func (h *DesignHandler) ListDeployments(w http.ResponseWriter, r *http.Request) {
	deployments, err := h.svc.Deployments(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		log.Printf("Failed to list deployments: %v", err)
		writeError(w, "Failed to list deployments", err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, deployments, http.StatusOK)
}

// GetDeployment returns one deployment with its change sets
func (h *DesignHandler) GetDeployment(w http.ResponseWriter, r *http.Request) {
	id := deploymentID(r.URL.Path)
	if id == "" {
		writeError(w, "Invalid deployment ID", "Deployment ID is required", http.StatusBadRequest)
		return
	}

	deployment, changeSets, err := h.svc.Deployment(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, "Not found", err.Error(), http.StatusNotFound)
			return
		}
		log.Printf("Failed to get deployment %s: %v", id, err)
		writeError(w, "Failed to get deployment", err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]any{
		"deployment":  deployment,
		"change_sets": changeSets,
	}, http.StatusOK)
}

// Decommission reverts a deployment's changes
func (h *DesignHandler) Decommission(w http.ResponseWriter, r *http.Request) {
	id := deploymentID(r.URL.Path)
	if id == "" {
		writeError(w, "Invalid deployment ID", "Deployment ID is required", http.StatusBadRequest)
		return
	}

	if err := h.svc.Decommission(r.Context(), id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, "Not found", err.Error(), http.StatusNotFound)
			return
		}
		log.Printf("Failed to decommission deployment %s: %v", id, err)
		writeError(w, "Failed to decommission deployment", err.Error(), http.StatusConflict)
		return
	}

	writeJSON(w, map[string]string{"status": "decommissioned", "deployment": id}, http.StatusOK)
}

// ListChangeRecords returns a change set's records in application order
func (h *DesignHandler) ListChangeRecords(w http.ResponseWriter, r *http.Request) {
	id := extractPathParam(r.URL.Path, "/api/change-sets/")
	id = strings.TrimSuffix(id, "/records")
	if id == "" {
		writeError(w, "Invalid change set ID", "Change set ID is required", http.StatusBadRequest)
		return
	}

	records, err := h.svc.ChangeRecords(r.Context(), id)
	if err != nil {
		log.Printf("Failed to list change records for %s: %v", id, err)
		writeError(w, "Failed to list change records", err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, records, http.StatusOK)
}

// deploymentID pulls the deployment ID out of both /api/deployments/{id}
// and /api/deployments/{id}/decommission.
func deploymentID(path string) string {
	id := extractPathParam(path, "/api/deployments/")
	return strings.TrimSuffix(id, "/decommission")
}
