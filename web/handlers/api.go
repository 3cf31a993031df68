package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/scrypster/notouch/internal/services"
	"github.com/scrypster/notouch/internal/storage"
	"github.com/scrypster/notouch/pkg/types"
)

// maxRequestBody bounds JSON request bodies.
const maxRequestBody = 1 << 20

// Device is the part of services.Device the API drives.
type Device interface {
	StartTraining(ctx context.Context, label types.Label, samples int) error
	CancelTraining() error
	StartMonitoring(ctx context.Context) error
	StopMonitoring() error
	ClearExamples(ctx context.Context, label types.Label) (int, error)
	Status() services.Status
}

// APIHandlers contains HTTP handlers for the device REST API.
type APIHandlers struct {
	device         Device
	defaultSamples int
	labels         map[types.Label]bool
}

// NewAPIHandlers creates handlers driving device. Training requests are
// accepted only for the given labels; defaultSamples is reported when a
// request leaves samples unset.
func NewAPIHandlers(device Device, defaultSamples int, labels ...types.Label) *APIHandlers {
	allowed := make(map[types.Label]bool, len(labels))
	for _, l := range labels {
		allowed[l] = true
	}
	return &APIHandlers{
		device:         device,
		defaultSamples: defaultSamples,
		labels:         allowed,
	}
}

// StartTraining handles POST /api/train - start a background training session.
func (h *APIHandlers) StartTraining(w http.ResponseWriter, r *http.Request) {
	var req TrainRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if req.Label == "" {
		respondError(w, http.StatusBadRequest, "label is required", nil)
		return
	}
	if len(h.labels) > 0 && !h.labels[req.Label] {
		respondError(w, http.StatusBadRequest, "unknown label", nil)
		return
	}
	if req.Samples < 0 {
		respondError(w, http.StatusBadRequest, "samples must be positive", nil)
		return
	}

	if err := h.device.StartTraining(r.Context(), req.Label, req.Samples); err != nil {
		respondDeviceError(w, "failed to start training", err)
		return
	}

	samples := req.Samples
	if samples == 0 {
		samples = h.defaultSamples
	}
	respondJSON(w, http.StatusAccepted, TrainResponse{
		Status:  "training",
		Label:   req.Label,
		Samples: samples,
	})
}

// CancelTraining handles DELETE /api/train - stop the running session.
func (h *APIHandlers) CancelTraining(w http.ResponseWriter, r *http.Request) {
	if err := h.device.CancelTraining(); err != nil {
		respondDeviceError(w, "failed to cancel training", err)
		return
	}
	respondJSON(w, http.StatusOK, StatusMessage{Status: "cancelled"})
}

// ListExamples handles GET /api/examples - example counts per label.
func (h *APIHandlers) ListExamples(w http.ResponseWriter, r *http.Request) {
	status := h.device.Status()

	total := 0
	for _, n := range status.Examples {
		total += n
	}
	respondJSON(w, http.StatusOK, ExamplesResponse{
		Counts:    status.Examples,
		Total:     total,
		Dimension: status.Dimension,
	})
}

// ClearExamples handles DELETE /api/examples?label= - clear one label, or
// every example when label is omitted.
func (h *APIHandlers) ClearExamples(w http.ResponseWriter, r *http.Request) {
	label := types.Label(r.URL.Query().Get("label"))

	removed, err := h.device.ClearExamples(r.Context(), label)
	if err != nil {
		respondDeviceError(w, "failed to clear examples", err)
		return
	}
	respondJSON(w, http.StatusOK, ClearResponse{Label: label, Removed: removed})
}

// StartMonitoring handles POST /api/monitor/start.
func (h *APIHandlers) StartMonitoring(w http.ResponseWriter, r *http.Request) {
	if err := h.device.StartMonitoring(r.Context()); err != nil {
		respondDeviceError(w, "failed to start monitoring", err)
		return
	}
	respondJSON(w, http.StatusAccepted, StatusMessage{Status: "monitoring"})
}

// StopMonitoring handles POST /api/monitor/stop.
func (h *APIHandlers) StopMonitoring(w http.ResponseWriter, r *http.Request) {
	if err := h.device.StopMonitoring(); err != nil {
		respondDeviceError(w, "failed to stop monitoring", err)
		return
	}
	respondJSON(w, http.StatusOK, StatusMessage{Status: "idle"})
}

// GetStatus handles GET /api/status.
func (h *APIHandlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.device.Status())
}

// respondDeviceError maps device errors to status codes.
func respondDeviceError(w http.ResponseWriter, message string, err error) {
	switch {
	case errors.Is(err, services.ErrBusy), errors.Is(err, services.ErrNotMonitoring):
		respondError(w, http.StatusConflict, message, err)
	case errors.Is(err, storage.ErrInvalidInput):
		respondError(w, http.StatusBadRequest, message, err)
	default:
		log.Printf("handlers: ERROR - %s: %v", message, err)
		respondError(w, http.StatusInternalServerError, message, err)
	}
}

// respondJSON writes a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are already sent.
		log.Printf("handlers: failed to encode JSON response: %v", err)
	}
}

// respondError writes an error response with the given status code.
func respondError(w http.ResponseWriter, statusCode int, message string, err error) {
	errResp := ErrorResponse{
		Error: message,
		Code:  http.StatusText(statusCode),
	}

	if err != nil {
		errResp.Details = map[string]interface{}{
			"error": err.Error(),
		}
	}

	respondJSON(w, statusCode, errResp)
}
