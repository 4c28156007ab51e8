package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"lodestone/internal/domain"
	"lodestone/internal/repository"
	"lodestone/internal/service"
)

// RecordHandler handles CRUD requests for one model collection. The same
// handler type serves prefixes, VLANs, locations, devices, statuses and
// relationships; the model path decides which.
type RecordHandler struct {
	svc   *service.RecordService
	model string
	base  string
}

// NewRecordHandler creates a handler for one model collection rooted at
// base (e.g. "/api/prefixes/").
func NewRecordHandler(svc *service.RecordService, model, base string) *RecordHandler {
	return &RecordHandler{svc: svc, model: model, base: base}
}

// Error response structure
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// List returns all records of the collection. Query parameters filter by
// field value.
func (h *RecordHandler) List(w http.ResponseWriter, r *http.Request) {
	query := map[string]any{}
	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			query[key] = values[0]
		}
	}

	records, err := h.svc.List(r.Context(), h.model, query)
	if err != nil {
		log.Printf("Failed to list %s: %v", h.model, err)
		writeError(w, "Failed to list records", err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, records, http.StatusOK)
}

// Get returns a single record
func (h *RecordHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := extractPathParam(r.URL.Path, h.base)
	if id == "" {
		writeError(w, "Invalid record ID", "Record ID is required", http.StatusBadRequest)
		return
	}

	record, err := h.svc.Get(r.Context(), h.model, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, "Not found", err.Error(), http.StatusNotFound)
			return
		}
		log.Printf("Failed to get %s %s: %v", h.model, id, err)
		writeError(w, "Failed to get record", err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, record, http.StatusOK)
}

// Create inserts a new record
func (h *RecordHandler) Create(w http.ResponseWriter, r *http.Request) {
	var fields domain.Record
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}

	record, err := h.svc.Create(r.Context(), h.model, fields)
	if err != nil {
		log.Printf("Failed to create %s: %v", h.model, err)
		writeError(w, "Failed to create record", err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, record, http.StatusCreated)
}

// Update modifies an existing record
func (h *RecordHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := extractPathParam(r.URL.Path, h.base)
	if id == "" {
		writeError(w, "Invalid record ID", "Record ID is required", http.StatusBadRequest)
		return
	}

	var fields domain.Record
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}

	record, err := h.svc.Update(r.Context(), h.model, id, fields)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, "Not found", err.Error(), http.StatusNotFound)
			return
		}
		log.Printf("Failed to update %s %s: %v", h.model, id, err)
		writeError(w, "Failed to update record", err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, record, http.StatusOK)
}

// Delete removes a record
func (h *RecordHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := extractPathParam(r.URL.Path, h.base)
	if id == "" {
		writeError(w, "Invalid record ID", "Record ID is required", http.StatusBadRequest)
		return
	}

	if err := h.svc.Delete(r.Context(), h.model, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, "Not found", err.Error(), http.StatusNotFound)
			return
		}
		log.Printf("Failed to delete %s %s: %v", h.model, id, err)
		writeError(w, "Failed to delete record", err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ExportHandler serves store exports
type ExportHandler struct {
	svc *service.RecordService
}

// NewExportHandler creates a new export handler
func NewExportHandler(svc *service.RecordService) *ExportHandler {
	return &ExportHandler{svc: svc}
}

// Export writes the store in the format named by the path suffix
// (/api/export/{format}).
func (h *ExportHandler) Export(w http.ResponseWriter, r *http.Request) {
	format := extractPathParam(r.URL.Path, "/api/export/")
	switch format {
	case "json":
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", "attachment; filename=records.json")
	case "yaml":
		w.Header().Set("Content-Type", "application/x-yaml")
		w.Header().Set("Content-Disposition", "attachment; filename=records.yml")
	case "ansible-inventory":
		w.Header().Set("Content-Type", "application/x-yaml")
		w.Header().Set("Content-Disposition", "attachment; filename=inventory.yml")
	default:
		writeError(w, "Unknown export format", format, http.StatusNotFound)
		return
	}

	if err := h.svc.Export(r.Context(), format, w); err != nil {
		log.Printf("Failed to export %s: %v", format, err)
		// Can't write error response as we already set headers
		return
	}
}

// Helper functions

func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Failed to encode JSON: %v", err)
	}
}

func writeError(w http.ResponseWriter, error, details string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Details: details,
	}); err != nil {
		log.Printf("Failed to encode error response: %v", err)
	}
}

func extractPathParam(path, prefix string) string {
	if strings.HasPrefix(path, prefix) {
		return strings.TrimSuffix(strings.TrimPrefix(path, prefix), "/")
	}
	return ""
}
