package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/aseofsmartice/surveillance-orchestrator/internal/gpu"
	"github.com/aseofsmartice/surveillance-orchestrator/internal/orchestrator"
	"github.com/aseofsmartice/surveillance-orchestrator/internal/scheduler"
)

// Handlers serves the local status endpoints. Read-only: the daemon is
// driven by the wall clock, not by HTTP.
type Handlers struct {
	service   *scheduler.Service
	orch      *orchestrator.Orchestrator
	telemetry gpu.Source
}

func NewHandlers(service *scheduler.Service, orch *orchestrator.Orchestrator, telemetry gpu.Source) *Handlers {
	return &Handlers{service: service, orch: orch, telemetry: telemetry}
}

// Router registers all endpoints.
func (h *Handlers) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/status", h.GetStatusHandler).Methods("GET")
	r.HandleFunc("/queue", h.GetQueueHandler).Methods("GET")
	r.HandleFunc("/gpu", h.GetGPUHandler).Methods("GET")
	return r
}

type statusResponse struct {
	Time            string `json:"time"`
	CaptureActive   bool   `json:"capture_active"`
	CaptureWindow   string `json:"capture_window,omitempty"`
	ProcessingAlive bool   `json:"processing_alive"`
}

// GetStatusHandler reports the daemon's subprocess state.
func (h *Handlers) GetStatusHandler(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Time:            time.Now().Format("2006-01-02 15:04:05"),
		CaptureActive:   h.service.CaptureAlive(),
		CaptureWindow:   h.service.CurrentWindow(),
		ProcessingAlive: h.service.ProcessingAlive(),
	}

	writeJSON(w, resp)
}

// GetQueueHandler reports the live or most recent processing run.
func (h *Handlers) GetQueueHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.orch.Status())
}

// GetGPUHandler reports a fresh telemetry snapshot.
func (h *Handlers) GetGPUHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	metrics, err := h.telemetry.Metrics(ctx)
	if err != nil {
		http.Error(w, "GPU telemetry unavailable", http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, metrics)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("API: failed to encode response: %v", err)
	}
}
