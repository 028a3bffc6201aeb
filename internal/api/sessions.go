package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"sylph/internal/landmark"
	"sylph/internal/perf"
	"sylph/internal/session"
	"sylph/internal/vision"
)

var tracer = otel.Tracer("sylph/api")

type startSessionResponse struct {
	SessionID string         `json:"sessionId"`
	CreatedAt time.Time      `json:"createdAt"`
	Options   vision.Options `json:"options"`
}

type listSessionsResponse struct {
	Sessions []session.Info `json:"sessions"`
	Count    int            `json:"count"`
}

type performanceResponse struct {
	Performance perf.Metrics  `json:"performance"`
	Health      vision.Health `json:"health"`
}

// handleStartSession starts a session. The optional body carries per-session
// option overrides on top of the server's base configuration.
func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var ov vision.Overrides
	if err := json.NewDecoder(r.Body).Decode(&ov); err != nil && err != io.EOF {
		s.fail(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess, err := s.registry.Start(r.Context(), &ov)
	if errors.Is(err, session.ErrLimitReached) {
		s.fail(w, http.StatusServiceUnavailable, "maximum concurrent sessions reached")
		return
	}
	if err != nil {
		s.logger.Printf("[API] session start failed: %v", err)
		s.fail(w, http.StatusInternalServerError, "failed to start session")
		return
	}

	if s.hub != nil {
		id := sess.ID()
		sess.Engine().Subscribe(func(snap *vision.Snapshot) {
			s.hub.BroadcastSnapshot(id, *snap)
		})
	}

	s.respond(w, http.StatusCreated, startSessionResponse{
		SessionID: sess.ID(),
		CreatedAt: sess.CreatedAt(),
		Options:   sess.Engine().Options(),
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	infos := s.registry.List()
	s.respond(w, http.StatusOK, listSessionsResponse{Sessions: infos, Count: len(infos)})
}

// handleStopSession ends a session and returns its final summary.
func (s *Server) handleStopSession(w http.ResponseWriter, r *http.Request) {
	sum, err := s.registry.Stop(s.pathVar(r, "id"))
	if errors.Is(err, session.ErrNotFound) {
		s.fail(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		s.fail(w, http.StatusInternalServerError, "failed to stop session")
		return
	}
	s.respond(w, http.StatusOK, sum)
}

// handleIngestFrame pushes one landmark frame through the session's engine
// and returns the resulting tick.
func (s *Server) handleIngestFrame(w http.ResponseWriter, r *http.Request) {
	sess, err := s.registry.Get(s.pathVar(r, "id"))
	if err != nil {
		s.fail(w, http.StatusNotFound, "session not found")
		return
	}

	var frame landmark.Frame
	if err := json.NewDecoder(r.Body).Decode(&frame); err != nil {
		s.fail(w, http.StatusBadRequest, "invalid frame payload")
		return
	}

	ctx, span := tracer.Start(r.Context(), "vision.process_frame",
		trace.WithAttributes(
			attribute.String("session.id", sess.ID()),
			attribute.Int64("frame.seq", int64(frame.Seq)),
		))
	snap, err := sess.Ingest(ctx, &frame)
	span.End()
	switch {
	case err == nil:
		s.respond(w, http.StatusOK, snap)
	case errors.Is(err, vision.ErrFrameInvalid):
		s.fail(w, http.StatusBadRequest, "frame failed validation")
	case errors.Is(err, vision.ErrThrottled), errors.Is(err, vision.ErrBusy):
		s.fail(w, http.StatusTooManyRequests, "frame rate limit")
	case errors.Is(err, vision.ErrNotRunning):
		s.fail(w, http.StatusConflict, "session not running")
	default:
		s.logger.Printf("[API] frame ingest failed: %v", err)
		s.fail(w, http.StatusInternalServerError, "failed to process frame")
	}
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	sess, err := s.registry.Get(s.pathVar(r, "id"))
	if err != nil {
		s.fail(w, http.StatusNotFound, "session not found")
		return
	}
	s.respond(w, http.StatusOK, sess.Summary())
}

func (s *Server) handlePerformance(w http.ResponseWriter, r *http.Request) {
	sess, err := s.registry.Get(s.pathVar(r, "id"))
	if err != nil {
		s.fail(w, http.StatusNotFound, "session not found")
		return
	}
	s.respond(w, http.StatusOK, performanceResponse{
		Performance: sess.Engine().PerformanceReport(),
		Health:      sess.Engine().Health(),
	})
}
