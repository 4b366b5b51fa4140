package app

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/samvad-xr/samvad/internal/recording"
	"github.com/samvad-xr/samvad/internal/turn"
	"github.com/samvad-xr/samvad/pkg/types"
)

// stateResponse is the body of GET /api/state.
type stateResponse struct {
	types.Snapshot
	Recording string `json:"recording"`
	InFlight  bool   `json:"in_flight"`
}

type toggleResponse struct {
	Recording string `json:"recording"`
	TurnID    string `json:"turn_id,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// registerControl adds the JSON control API used by scripts and the
// operator console. The headset drives the same operations over /ui.
func (a *App) registerControl(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/state", a.handleState)
	mux.HandleFunc("POST /api/toggle", a.handleToggle)
	mux.HandleFunc("POST /api/cancel", a.handleCancel)
	mux.HandleFunc("PUT /api/object", a.handleSelect)
	mux.HandleFunc("DELETE /api/object", a.handleClear)
	mux.HandleFunc("PUT /api/languages", a.handleLanguages)
	mux.HandleFunc("POST /api/reset", a.handleReset)
}

func (a *App) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, stateResponse{
		Snapshot:  a.orch.Snapshot(),
		Recording: a.orch.RecordingState().String(),
		InFlight:  a.orch.InFlight(),
	})
}

func (a *App) handleToggle(w http.ResponseWriter, r *http.Request) {
	t, err := a.orch.Toggle(r.Context())
	if err != nil {
		writeError(w, controlStatus(err), err)
		return
	}
	res := toggleResponse{Recording: a.orch.RecordingState().String()}
	status := http.StatusOK
	if t != nil {
		res.TurnID = t.ID
		status = http.StatusAccepted
	}
	writeJSON(w, status, res)
}

func (a *App) handleCancel(w http.ResponseWriter, r *http.Request) {
	if err := a.orch.Cancel(r.Context()); err != nil {
		writeError(w, controlStatus(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Object string `json:"object"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := a.orch.SelectObject(req.Object); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) handleClear(w http.ResponseWriter, _ *http.Request) {
	a.orch.ClearObject()
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) handleLanguages(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Input  string `json:"input"`
		Target string `json:"target"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := a.orch.SetLanguages(req.Input, req.Target); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) handleReset(w http.ResponseWriter, _ *http.Request) {
	a.orch.Reset()
	w.WriteHeader(http.StatusNoContent)
}

// controlStatus maps an orchestrator error to an HTTP status.
func controlStatus(err error) int {
	var ise *recording.InvalidStateError
	switch {
	case errors.As(err, &ise), errors.Is(err, turn.ErrTurnInFlight):
		return http.StatusConflict
	case errors.Is(err, recording.ErrNoCaptureDevice):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
