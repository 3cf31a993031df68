package handlers

import (
	"github.com/scrypster/notouch/pkg/types"
)

// ErrorResponse is the standard error response format for the API.
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// TrainRequest is the request body of POST /api/train.
type TrainRequest struct {
	Label types.Label `json:"label"`

	// Samples defaults to the configured training.samples when zero.
	Samples int `json:"samples,omitempty"`
}

// TrainResponse acknowledges a training session that has started.
type TrainResponse struct {
	Status  string      `json:"status"`
	Label   types.Label `json:"label"`
	Samples int         `json:"samples"`
}

// ExamplesResponse is the response of GET /api/examples.
type ExamplesResponse struct {
	Counts    map[types.Label]int `json:"counts"`
	Total     int                 `json:"total"`
	Dimension int                 `json:"dimension"`
}

// ClearResponse is the response of DELETE /api/examples.
type ClearResponse struct {
	Label   types.Label `json:"label,omitempty"`
	Removed int         `json:"removed"`
}

// StatusMessage is a minimal {"status": ...} acknowledgement.
type StatusMessage struct {
	Status string `json:"status"`
}

// WSMessage is the envelope of every message pushed over /ws.
type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}
