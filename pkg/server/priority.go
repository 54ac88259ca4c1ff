package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sunrudder/sunrudder/pkg/log"
	"github.com/sunrudder/sunrudder/pkg/types"
)

type customPriorityRequest struct {
	Enabled    bool           `json:"enabled"`
	Priorities map[string]int `json:"priorities"`
}

func (s *Server) handlePriorityConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.settings.Priority())
}

func (s *Server) handleSetCustomPriority(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req customPriorityRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	cfg, err := s.settings.SetCustomPriority(ctx, req.Enabled, req.Priorities)
	if errors.Is(err, types.ErrInvalidPriorities) {
		log.Ctx(ctx).WarnContext(ctx, "rejected custom priorities", slog.Any("priorities", req.Priorities), slog.Any("error", err))
		writeJSONError(w, "Invalid priorities. Must include all 4 devices with priorities 1-4", http.StatusBadRequest)
		return
	}
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to set custom priorities", slog.Any("error", err))
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, cfg)
}

func (s *Server) handleToggleCustom(w http.ResponseWriter, r *http.Request) {
	enabled, err := strconv.ParseBool(r.URL.Query().Get("enabled"))
	if err != nil {
		writeJSONError(w, "enabled must be true or false", http.StatusBadRequest)
		return
	}

	cfg := s.settings.ToggleCustom(r.Context(), enabled)
	mode := "AUTO (MAX_USAGE/COMFORT)"
	if cfg.CustomEnabled {
		mode = types.ModeCustom.String()
	}
	writeJSON(w, struct {
		CustomEnabled     bool               `json:"customEnabled"`
		Mode              string             `json:"mode"`
		CurrentPriorities []types.DeviceType `json:"currentPriorities"`
	}{
		CustomEnabled:     cfg.CustomEnabled,
		Mode:              mode,
		CurrentPriorities: cfg.PriorityOrder,
	})
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, types.DeviceCatalog())
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.settings.Snapshot())
}
