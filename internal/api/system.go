package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"sylph/internal/auth"
)

// Version is reported by /api/system/status and the landing endpoints.
const Version = "1.0.0"

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expiresAt"`
}

type systemStatus struct {
	Status        string  `json:"status"`
	Version       string  `json:"version"`
	UptimeSeconds float64 `json:"uptimeSeconds"`
	Sessions      int     `json:"sessions"`
	WSClients     int     `json:"wsClients"`
	AuthEnabled   bool    `json:"authEnabled"`
}

// handleHealthz is the liveness probe.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadyz is the readiness probe. The service is ready once the store
// answers.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.store != nil {
		if err := s.store.Ping(); err != nil {
			s.logger.Printf("[API] readiness check failed: %v", err)
			s.fail(w, http.StatusServiceUnavailable, "store unavailable")
			return
		}
	}
	s.respond(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, map[string]interface{}{
		"message":   "pong",
		"timestamp": time.Now().UTC(),
	})
}

// handleLogin exchanges credentials for a bearer token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, expiresAt, err := s.authn.Authenticate(req.Username, req.Password)
	switch {
	case err == nil:
		s.respond(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: expiresAt})
	case errors.Is(err, auth.ErrAuthDisabled):
		s.fail(w, http.StatusUnauthorized, "authentication is disabled")
	case errors.Is(err, auth.ErrInvalidCredentials):
		s.fail(w, http.StatusUnauthorized, "invalid username or password")
	default:
		s.logger.Printf("[API] login failed: %v", err)
		s.fail(w, http.StatusInternalServerError, "login failed")
	}
}

func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	status := systemStatus{
		Status:        "ok",
		Version:       Version,
		UptimeSeconds: time.Since(s.started).Seconds(),
		Sessions:      s.registry.Count(),
		AuthEnabled:   s.authn.Enabled(),
	}
	if s.hub != nil {
		status.WSClients = s.hub.ClientCount()
	}
	s.respond(w, http.StatusOK, status)
}
