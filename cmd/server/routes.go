package main

import (
	"context"
	"log"
	"net/http"
	"path/filepath"
	"strings"

	"lodestone/internal/adapter"
	"lodestone/internal/domain"
	"lodestone/internal/handler"
	"lodestone/internal/hub"
	"lodestone/internal/service"
)

// collections maps API path segments to the models they expose.
var collections = map[string]string{
	"statuses":      domain.ModelStatus,
	"locations":     domain.ModelLocation,
	"vlans":         domain.ModelVLAN,
	"prefixes":      domain.ModelPrefix,
	"devices":       domain.ModelDevice,
	"relationships": domain.ModelRelationship,
}

func registerRoutes(mux *http.ServeMux, recordSvc *service.RecordService, designSvc *service.DesignService, sseHub *hub.Hub, adapters *adapter.Registry) {
	for segment, model := range collections {
		base := "/api/" + segment + "/"
		h := handler.NewRecordHandler(recordSvc, model, base)

		mux.HandleFunc("GET /api/"+segment, h.List)
		mux.HandleFunc("POST /api/"+segment, h.Create)
		mux.HandleFunc("GET "+base+"{id}", h.Get)
		mux.HandleFunc("PUT "+base+"{id}", h.Update)
		mux.HandleFunc("DELETE "+base+"{id}", h.Delete)
	}

	designHandler := handler.NewDesignHandler(designSvc)
	mux.HandleFunc("POST /api/designs/apply", designHandler.Apply)
	mux.HandleFunc("GET /api/deployments", designHandler.ListDeployments)
	mux.HandleFunc("GET /api/deployments/{id}", designHandler.GetDeployment)
	mux.HandleFunc("POST /api/deployments/{id}/decommission", designHandler.Decommission)
	mux.HandleFunc("GET /api/change-sets/{id}/records", designHandler.ListChangeRecords)

	exportHandler := handler.NewExportHandler(recordSvc)
	mux.HandleFunc("GET /api/export/{format}", exportHandler.Export)

	mux.HandleFunc("POST /api/discover", func(w http.ResponseWriter, r *http.Request) {
		// Run in the background; the request returns immediately.
		go func() {
			if err := adapters.TriggerSyncAll(context.Background()); err != nil {
				log.Printf("Discovery sync failed: %v", err)
			}
		}()
		w.WriteHeader(http.StatusAccepted)
	})

	mux.Handle("GET /events", sseHub)

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
}

// designName derives a design name from a file path: the base name without
// extension.
func designName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
