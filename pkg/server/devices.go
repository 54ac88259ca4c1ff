package server

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/sunrudder/sunrudder/pkg/log"
	"github.com/sunrudder/sunrudder/pkg/types"
)

// parseAction maps the path action to a device action. "power" needs a
// watts query parameter.
func parseAction(r *http.Request, device types.DeviceType) (types.DeviceAction, bool) {
	action := types.DeviceAction{
		Device: device,
		Reason: "Manual control",
	}
	switch strings.ToLower(r.PathValue("action")) {
	case "on":
		action.Action = types.ActionTurnOn
	case "off":
		action.Action = types.ActionTurnOff
	case "power":
		watts, err := strconv.ParseFloat(r.URL.Query().Get("watts"), 64)
		if err != nil || watts < 0 {
			return types.DeviceAction{}, false
		}
		action.Action = types.ActionSetPower
		action.TargetPower = &watts
	default:
		return types.DeviceAction{}, false
	}
	return action, true
}

func (s *Server) handleDeviceControl(w http.ResponseWriter, r *http.Request) {
	device, ok := types.ParseDeviceType(r.PathValue("device"))
	if !ok {
		writeJSONError(w, "unknown device", http.StatusNotFound)
		return
	}
	action, ok := parseAction(r, device)
	if !ok {
		writeJSONError(w, "action must be on, off or power?watts=<n>", http.StatusBadRequest)
		return
	}
	s.actuate(w, r, action)
}

// handleSmartPlug keeps the plain on/off routes for the smart plug.
func (s *Server) handleSmartPlug(a types.ActionType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.actuate(w, r, types.DeviceAction{
			Device: types.DeviceSmartPlug,
			Action: a,
			Reason: "Manual control",
		})
	}
}

func (s *Server) actuate(w http.ResponseWriter, r *http.Request, action types.DeviceAction) {
	ctx := r.Context()
	m := s.loop.Actuate(ctx, action)
	switch {
	case m.Result.Unsupported > 0:
		writeJSONError(w, "action not supported for "+string(action.Device), http.StatusBadRequest)
	case m.Result.Failed > 0:
		log.Ctx(ctx).WarnContext(ctx, "manual action failed",
			slog.String("device", string(action.Device)),
			slog.String("action", string(action.Action)),
		)
		writeJSONError(w, "failed to control "+string(action.Device), http.StatusBadGateway)
	default:
		writeJSON(w, m)
	}
}
