package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/gorilla/handlers"
	"github.com/levenlabs/go-lflag"
	"github.com/sunrudder/sunrudder/pkg/common"
	"github.com/sunrudder/sunrudder/pkg/log"
	"github.com/sunrudder/sunrudder/pkg/loop"
	"github.com/sunrudder/sunrudder/pkg/types"
)

type controlLoop interface {
	State(ctx context.Context) types.SystemState
	DryRun(ctx context.Context) (types.SystemState, types.Decision)
	RunOnce(ctx context.Context) loop.Tick
	Actuate(ctx context.Context, action types.DeviceAction) loop.Manual
}

type settingsStore interface {
	Snapshot() types.Settings
	Priority() types.PriorityConfig
	SetCustomPriority(ctx context.Context, enabled bool, priorities map[string]int) (types.PriorityConfig, error)
	ToggleCustom(ctx context.Context, enabled bool) types.PriorityConfig
}

// Server exposes the control surface over HTTP: current state, decisions,
// manual control and the custom priority configuration.
type Server struct {
	loop     controlLoop
	settings settingsStore
	metrics  http.Handler

	listenAddr  string
	corsOrigins []string
	accessLog   bool
	serverName  string
	httpServer  *http.Server
}

// Configured initializes the Server with dependencies.
// It uses lflag to register command-line flags for configuration.
func Configured(l controlLoop, s settingsStore, metrics http.Handler) *Server {
	srv := &Server{
		loop:       l,
		settings:   s,
		metrics:    metrics,
		serverName: "sunrudder/" + common.Version(),
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	listenAddr := lflag.String("http-listen", ":"+port, "HTTP server listen address")
	corsOrigins := lflag.String("cors-origins", "", "comma-delimited list of origins allowed to call the API from a browser")
	accessLog := lflag.Bool("http-access-log", false, "Write an access log line for every request to stdout")

	lflag.Do(func() {
		srv.listenAddr = *listenAddr
		srv.accessLog = *accessLog
		if *corsOrigins != "" {
			for _, o := range strings.Split(*corsOrigins, ",") {
				if o = strings.TrimSpace(o); o != "" {
					srv.corsOrigins = append(srv.corsOrigins, o)
				}
			}
		}
	})

	return srv
}

func (s *Server) setupHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/energy/state", s.handleState)
	mux.HandleFunc("GET /api/v1/energy/decision", s.handleDecision)
	mux.HandleFunc("POST /api/v1/energy/control", s.handleControl)
	mux.HandleFunc("GET /api/v1/priority/config", s.handlePriorityConfig)
	mux.HandleFunc("POST /api/v1/priority/custom", s.handleSetCustomPriority)
	mux.HandleFunc("POST /api/v1/priority/custom/toggle", s.handleToggleCustom)
	mux.HandleFunc("GET /api/v1/priority/devices", s.handleDevices)
	mux.HandleFunc("POST /api/v1/devices/{device}/{action}", s.handleDeviceControl)
	mux.HandleFunc("POST /api/v1/on", s.handleSmartPlug(types.ActionTurnOn))
	mux.HandleFunc("POST /api/v1/off", s.handleSmartPlug(types.ActionTurnOff))
	mux.HandleFunc("GET /api/v1/settings", s.handleGetSettings)
	mux.HandleFunc("/healthz", s.handleHealthz)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}

	var h http.Handler = s.securityHeadersMiddleware(mux)
	if len(s.corsOrigins) > 0 {
		h = handlers.CORS(
			handlers.AllowedOrigins(s.corsOrigins),
			handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
			handlers.AllowedHeaders([]string{"Content-Type"}),
		)(h)
	}
	h = s.revisionMiddleware(gziphandler.GzipHandler(h))
	if s.accessLog {
		h = handlers.CombinedLoggingHandler(os.Stdout, h)
	}
	return h
}

// Run starts the HTTP server and blocks until the context is canceled or an error occurs.
// It also handles graceful shutdown when the context is done.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.listenAddr,
		Handler:      s.setupHandler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	// use a channel to capturing server errors
	errChan := make(chan error, 1)
	go func() {
		defer close(errChan)
		log.Ctx(ctx).InfoContext(ctx, "starting server", slog.String("addr", s.listenAddr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Ctx(ctx).InfoContext(ctx, "shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", slog.Any("error", err))
		panic(http.ErrAbortHandler)
	}
}

func writeJSONError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(struct {
		Error string `json:"error"`
	}{Error: msg}); err != nil {
		slog.Warn("failed to write error response", slog.Any("error", err))
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok")); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) revisionMiddleware(next http.Handler) http.Handler {
	if s.serverName == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", s.serverName)
		next.ServeHTTP(w, r)
	})
}
