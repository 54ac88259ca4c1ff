package server

import (
	"net/http"

	"github.com/sunrudder/sunrudder/pkg/types"
)

type stateResponse struct {
	types.SystemState
	TotalConsumption float64 `json:"totalConsumption"`
	AvailableSurplus float64 `json:"availableSurplus"`
}

func newStateResponse(s types.SystemState) stateResponse {
	return stateResponse{
		SystemState:      s,
		TotalConsumption: s.TotalConsumption(),
		AvailableSurplus: s.AvailableSurplus(),
	}
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, newStateResponse(s.loop.State(r.Context())))
}

// handleDecision returns what the next cycle would do without doing it.
func (s *Server) handleDecision(w http.ResponseWriter, r *http.Request) {
	state, decision := s.loop.DryRun(r.Context())
	writeJSON(w, struct {
		State    stateResponse  `json:"state"`
		Decision types.Decision `json:"decision"`
	}{
		State:    newStateResponse(state),
		Decision: decision,
	})
}

// handleControl runs one control cycle immediately.
func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.loop.RunOnce(r.Context()))
}
