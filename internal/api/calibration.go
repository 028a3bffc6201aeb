package api

import (
	"encoding/json"
	"net/http"
	"time"

	"sylph/internal/store"
	"sylph/internal/vision"
)

type calibrationDTO struct {
	Profile               string    `json:"profile"`
	NeutralEAR            float64   `json:"neutralEar"`
	NeutralMouthWidth     float64   `json:"neutralMouthWidth"`
	NeutralBrowHeight     float64   `json:"neutralBrowHeight"`
	ShoulderTiltOffsetDeg float64   `json:"shoulderTiltOffsetDeg"`
	UpdatedAt             time.Time `json:"updatedAt"`
}

func calibrationFromStore(p *store.CalibrationProfile) calibrationDTO {
	return calibrationDTO{
		Profile:               p.Name,
		NeutralEAR:            p.NeutralEAR,
		NeutralMouthWidth:     p.NeutralMouthWidth,
		NeutralBrowHeight:     p.NeutralBrowHeight,
		ShoulderTiltOffsetDeg: p.ShoulderTiltOffsetDeg,
		UpdatedAt:             p.UpdatedAt,
	}
}

func (s *Server) handleListCalibrations(w http.ResponseWriter, r *http.Request) {
	profiles, err := s.store.ListCalibrations()
	if err != nil {
		s.logger.Printf("[API] calibration list failed: %v", err)
		s.fail(w, http.StatusInternalServerError, "failed to list calibration profiles")
		return
	}
	out := make([]calibrationDTO, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, calibrationFromStore(p))
	}
	s.respond(w, http.StatusOK, map[string]interface{}{"profiles": out, "count": len(out)})
}

func (s *Server) handleGetCalibration(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.GetCalibration(s.pathVar(r, "profile"))
	if err != nil {
		s.logger.Printf("[API] calibration get failed: %v", err)
		s.fail(w, http.StatusInternalServerError, "failed to load calibration profile")
		return
	}
	if p == nil {
		s.fail(w, http.StatusNotFound, "calibration profile not found")
		return
	}
	s.respond(w, http.StatusOK, calibrationFromStore(p))
}

func (s *Server) handlePutCalibration(w http.ResponseWriter, r *http.Request) {
	var dto calibrationDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		s.fail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if dto.NeutralEAR < 0 || dto.NeutralEAR > 1 ||
		dto.NeutralMouthWidth < 0 || dto.NeutralMouthWidth > 1 ||
		dto.NeutralBrowHeight < 0 || dto.NeutralBrowHeight > 1 {
		s.fail(w, http.StatusBadRequest, "neutral references out of range")
		return
	}

	p := &store.CalibrationProfile{
		Name:                  s.pathVar(r, "profile"),
		NeutralEAR:            dto.NeutralEAR,
		NeutralMouthWidth:     dto.NeutralMouthWidth,
		NeutralBrowHeight:     dto.NeutralBrowHeight,
		ShoulderTiltOffsetDeg: dto.ShoulderTiltOffsetDeg,
	}
	if err := s.store.SaveCalibration(p); err != nil {
		s.logger.Printf("[API] calibration save failed: %v", err)
		s.fail(w, http.StatusInternalServerError, "failed to save calibration profile")
		return
	}
	s.respond(w, http.StatusOK, calibrationFromStore(p))
}

func (s *Server) handleDeleteCalibration(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteCalibration(s.pathVar(r, "profile")); err != nil {
		s.logger.Printf("[API] calibration delete failed: %v", err)
		s.fail(w, http.StatusInternalServerError, "failed to delete calibration profile")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type presetDTO struct {
	Name      string         `json:"name"`
	Options   vision.Options `json:"options"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

func (s *Server) handleListPresets(w http.ResponseWriter, r *http.Request) {
	presets, err := s.store.ListPresets()
	if err != nil {
		s.logger.Printf("[API] preset list failed: %v", err)
		s.fail(w, http.StatusInternalServerError, "failed to list presets")
		return
	}
	out := make([]presetDTO, 0, len(presets))
	for _, p := range presets {
		out = append(out, presetDTO{Name: p.Name, Options: p.Options, UpdatedAt: p.UpdatedAt})
	}
	s.respond(w, http.StatusOK, map[string]interface{}{"presets": out, "count": len(out)})
}

func (s *Server) handleGetPreset(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.GetPreset(s.pathVar(r, "name"))
	if err != nil {
		s.logger.Printf("[API] preset get failed: %v", err)
		s.fail(w, http.StatusInternalServerError, "failed to load preset")
		return
	}
	if p == nil {
		s.fail(w, http.StatusNotFound, "preset not found")
		return
	}
	s.respond(w, http.StatusOK, presetDTO{Name: p.Name, Options: p.Options, UpdatedAt: p.UpdatedAt})
}

func (s *Server) handlePutPreset(w http.ResponseWriter, r *http.Request) {
	var opts vision.Options
	if err := json.NewDecoder(r.Body).Decode(&opts); err != nil {
		s.fail(w, http.StatusBadRequest, "invalid request body")
		return
	}

	name := s.pathVar(r, "name")
	if err := s.store.SavePreset(name, opts); err != nil {
		s.logger.Printf("[API] preset save failed: %v", err)
		s.fail(w, http.StatusInternalServerError, "failed to save preset")
		return
	}

	p, err := s.store.GetPreset(name)
	if err != nil || p == nil {
		s.fail(w, http.StatusInternalServerError, "failed to load saved preset")
		return
	}
	s.respond(w, http.StatusOK, presetDTO{Name: p.Name, Options: p.Options, UpdatedAt: p.UpdatedAt})
}

func (s *Server) handleDeletePreset(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeletePreset(s.pathVar(r, "name")); err != nil {
		s.logger.Printf("[API] preset delete failed: %v", err)
		s.fail(w, http.StatusInternalServerError, "failed to delete preset")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
