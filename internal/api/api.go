package api

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	goahttp "goa.design/goa/v3/http"

	"sylph/internal/auth"
	"sylph/internal/middleware"
	"sylph/internal/session"
	"sylph/internal/store"
	"sylph/internal/ws"
)

// Server hosts the REST surface over the session registry, the calibration
// store and the snapshot hub.
type Server struct {
	registry *session.Registry
	hub      *ws.Hub
	authn    *auth.Authenticator
	store    *store.Store
	logger   *log.Logger
	started  time.Time

	// Mounts lists the endpoints registered by Mount, in order.
	Mounts []*MountPoint

	mux goahttp.Muxer
}

// MountPoint holds information about a mounted endpoint.
type MountPoint struct {
	// Method is the name of the method served by the mounted handler.
	Method string
	// Verb is the HTTP method used to match requests to the mounted handler.
	Verb string
	// Pattern is the HTTP request path pattern used to match requests to the
	// mounted handler.
	Pattern string
}

// New wires the server together. When a hub is given, session shutdowns
// push the final summary to subscribers before their connections close.
func New(registry *session.Registry, hub *ws.Hub, authn *auth.Authenticator, st *store.Store, logger *log.Logger) *Server {
	s := &Server{
		registry: registry,
		hub:      hub,
		authn:    authn,
		store:    st,
		logger:   logger,
		started:  time.Now(),
	}
	if hub != nil {
		registry.OnShutdown(func(id string, sum *session.Summary) {
			hub.BroadcastSummary(id, sum)
			hub.CloseSession(id)
		})
	}
	return s
}

// Mount registers every route on the muxer. Health probes and login stay
// open; the rest sits behind the bearer-token guard.
func (s *Server) Mount(mux goahttp.Muxer) {
	s.mux = mux

	guard := middleware.Auth(s.authn)
	protected := func(h http.HandlerFunc) http.HandlerFunc {
		return guard(h).ServeHTTP
	}
	handle := func(method, verb, pattern string, h http.HandlerFunc) {
		mux.Handle(verb, pattern, h)
		s.Mounts = append(s.Mounts, &MountPoint{Method: method, Verb: verb, Pattern: pattern})
	}

	handle("Healthz", "GET", "/healthz", s.handleHealthz)
	handle("Readyz", "GET", "/readyz", s.handleReadyz)
	handle("Ping", "GET", "/ping", s.handlePing)
	handle("Login", "POST", "/api/auth/login", s.handleLogin)

	handle("SystemStatus", "GET", "/api/system/status", protected(s.handleSystemStatus))

	handle("StartSession", "POST", "/api/vision/sessions", protected(s.handleStartSession))
	handle("ListSessions", "GET", "/api/vision/sessions", protected(s.handleListSessions))
	handle("StopSession", "DELETE", "/api/vision/sessions/{id}", protected(s.handleStopSession))
	handle("IngestFrame", "POST", "/api/vision/sessions/{id}/frames", protected(s.handleIngestFrame))
	handle("SessionSummary", "GET", "/api/vision/sessions/{id}/summary", protected(s.handleSummary))
	handle("SessionPerformance", "GET", "/api/vision/sessions/{id}/performance", protected(s.handlePerformance))

	handle("ListCalibrations", "GET", "/api/vision/calibration", protected(s.handleListCalibrations))
	handle("GetCalibration", "GET", "/api/vision/calibration/{profile}", protected(s.handleGetCalibration))
	handle("PutCalibration", "PUT", "/api/vision/calibration/{profile}", protected(s.handlePutCalibration))
	handle("DeleteCalibration", "DELETE", "/api/vision/calibration/{profile}", protected(s.handleDeleteCalibration))

	handle("ListPresets", "GET", "/api/vision/presets", protected(s.handleListPresets))
	handle("GetPreset", "GET", "/api/vision/presets/{name}", protected(s.handleGetPreset))
	handle("PutPreset", "PUT", "/api/vision/presets/{name}", protected(s.handlePutPreset))
	handle("DeletePreset", "DELETE", "/api/vision/presets/{name}", protected(s.handleDeletePreset))
}

// pathVar reads one captured segment from the mounted muxer.
func (s *Server) pathVar(r *http.Request, name string) string {
	return s.mux.Vars(r)[name]
}

func (s *Server) respond(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Printf("[API] response encode failed: %v", err)
	}
}

func (s *Server) fail(w http.ResponseWriter, code int, msg string) {
	s.respond(w, code, map[string]string{"error": msg})
}
