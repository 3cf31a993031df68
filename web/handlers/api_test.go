package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/notouch/internal/services"
	"github.com/scrypster/notouch/internal/storage"
	"github.com/scrypster/notouch/pkg/types"
	"github.com/scrypster/notouch/web/handlers"
)

// mockDevice is a testify mock of handlers.Device.
type mockDevice struct {
	mock.Mock
}

func (m *mockDevice) StartTraining(ctx context.Context, label types.Label, samples int) error {
	return m.Called(label, samples).Error(0)
}

func (m *mockDevice) CancelTraining() error {
	return m.Called().Error(0)
}

func (m *mockDevice) StartMonitoring(ctx context.Context) error {
	return m.Called().Error(0)
}

func (m *mockDevice) StopMonitoring() error {
	return m.Called().Error(0)
}

func (m *mockDevice) ClearExamples(ctx context.Context, label types.Label) (int, error) {
	args := m.Called(label)
	return args.Int(0), args.Error(1)
}

func (m *mockDevice) Status() services.Status {
	return m.Called().Get(0).(services.Status)
}

func newAPI(device handlers.Device) *handlers.APIHandlers {
	return handlers.NewAPIHandlers(device, 50, types.LabelNeutral, types.LabelFlagged)
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) handlers.ErrorResponse {
	t.Helper()
	var resp handlers.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestAPIHandlers_StartTraining(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		setup      func(*mockDevice)
		wantStatus int
		check      func(*testing.T, *httptest.ResponseRecorder)
	}{
		{
			name: "accepted with default samples",
			body: `{"label":"1"}`,
			setup: func(d *mockDevice) {
				d.On("StartTraining", types.Label("1"), 0).Return(nil)
			},
			wantStatus: http.StatusAccepted,
			check: func(t *testing.T, w *httptest.ResponseRecorder) {
				var resp handlers.TrainResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				assert.Equal(t, "training", resp.Status)
				assert.Equal(t, types.Label("1"), resp.Label)
				assert.Equal(t, 50, resp.Samples)
			},
		},
		{
			name: "explicit samples",
			body: `{"label":"0","samples":10}`,
			setup: func(d *mockDevice) {
				d.On("StartTraining", types.Label("0"), 10).Return(nil)
			},
			wantStatus: http.StatusAccepted,
		},
		{
			name:       "malformed body",
			body:       `{"label":`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing label",
			body:       `{"samples":3}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown label",
			body:       `{"label":"7"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "negative samples",
			body:       `{"label":"1","samples":-1}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "busy",
			body: `{"label":"1"}`,
			setup: func(d *mockDevice) {
				d.On("StartTraining", types.Label("1"), 0).
					Return(fmt.Errorf("%w: cannot train while monitoring", services.ErrBusy))
			},
			wantStatus: http.StatusConflict,
			check: func(t *testing.T, w *httptest.ResponseRecorder) {
				resp := decodeError(t, w)
				assert.Equal(t, "Conflict", resp.Code)
				assert.Contains(t, resp.Details["error"], "monitoring")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			device := &mockDevice{}
			if tt.setup != nil {
				tt.setup(device)
			}

			req := httptest.NewRequest(http.MethodPost, "/api/train", bytes.NewBufferString(tt.body))
			w := httptest.NewRecorder()
			newAPI(device).StartTraining(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			if tt.check != nil {
				tt.check(t, w)
			}
			device.AssertExpectations(t)
		})
	}
}

func TestAPIHandlers_CancelTraining(t *testing.T) {
	device := &mockDevice{}
	device.On("CancelTraining").Return(nil).Once()
	device.On("CancelTraining").Return(fmt.Errorf("%w: not training", services.ErrBusy)).Once()
	api := newAPI(device)

	w := httptest.NewRecorder()
	api.CancelTraining(w, httptest.NewRequest(http.MethodDelete, "/api/train", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	api.CancelTraining(w, httptest.NewRequest(http.MethodDelete, "/api/train", nil))
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAPIHandlers_ListExamples(t *testing.T) {
	device := &mockDevice{}
	device.On("Status").Return(services.Status{
		Examples:  map[types.Label]int{"0": 50, "1": 30},
		Dimension: 1024,
	})

	w := httptest.NewRecorder()
	newAPI(device).ListExamples(w, httptest.NewRequest(http.MethodGet, "/api/examples", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var resp handlers.ExamplesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 80, resp.Total)
	assert.Equal(t, 1024, resp.Dimension)
	assert.Equal(t, 30, resp.Counts["1"])
}

func TestAPIHandlers_ClearExamples(t *testing.T) {
	tests := []struct {
		name       string
		url        string
		label      types.Label
		removed    int
		err        error
		wantStatus int
	}{
		{"one label", "/api/examples?label=1", "1", 30, nil, http.StatusOK},
		{"all labels", "/api/examples", "", 80, nil, http.StatusOK},
		{"while training", "/api/examples", "", 0, services.ErrBusy, http.StatusConflict},
		{"repository failure", "/api/examples?label=0", "0", 50, errors.New("disk full"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			device := &mockDevice{}
			device.On("ClearExamples", tt.label).Return(tt.removed, tt.err)

			w := httptest.NewRecorder()
			newAPI(device).ClearExamples(w, httptest.NewRequest(http.MethodDelete, tt.url, nil))

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.err == nil {
				var resp handlers.ClearResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				assert.Equal(t, tt.removed, resp.Removed)
				assert.Equal(t, tt.label, resp.Label)
			}
			device.AssertExpectations(t)
		})
	}
}

func TestAPIHandlers_Monitoring(t *testing.T) {
	device := &mockDevice{}
	device.On("StartMonitoring").Return(nil).Once()
	device.On("StartMonitoring").Return(services.ErrBusy).Once()
	device.On("StopMonitoring").Return(nil).Once()
	device.On("StopMonitoring").Return(services.ErrNotMonitoring).Once()
	api := newAPI(device)

	codes := []int{}
	for _, h := range []http.HandlerFunc{api.StartMonitoring, api.StartMonitoring, api.StopMonitoring, api.StopMonitoring} {
		w := httptest.NewRecorder()
		h(w, httptest.NewRequest(http.MethodPost, "/api/monitor", nil))
		codes = append(codes, w.Code)
	}

	assert.Equal(t, []int{http.StatusAccepted, http.StatusConflict, http.StatusOK, http.StatusConflict}, codes)
	device.AssertExpectations(t)
}

func TestAPIHandlers_InvalidInputIsBadRequest(t *testing.T) {
	device := &mockDevice{}
	device.On("StartMonitoring").Return(fmt.Errorf("%w: nope", storage.ErrInvalidInput))

	w := httptest.NewRecorder()
	newAPI(device).StartMonitoring(w, httptest.NewRequest(http.MethodPost, "/api/monitor/start", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAPIHandlers_GetStatus(t *testing.T) {
	device := &mockDevice{}
	device.On("Status").Return(services.Status{
		Phase: types.PhaseMonitoring,
		UI:    types.UIState{Ready: true, Touched: true, Message: "hands off your face!"},
	})

	w := httptest.NewRecorder()
	newAPI(device).GetStatus(w, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var resp services.Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, types.PhaseMonitoring, resp.Phase)
	assert.True(t, resp.UI.Touched)
}
