package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/WIPtitle/gpio-monitor/config"
	"github.com/WIPtitle/gpio-monitor/internal/pin"
	"github.com/WIPtitle/gpio-monitor/internal/store"
)

func marshalEvent(ev pin.Event) ([]byte, error) {
	return json.Marshal(ev)
}

func parsePin(ps httprouter.Params) (int, error) {
	raw := ps.ByName("pin")
	p, err := strconv.Atoi(raw)
	if err != nil {
		return 0, badRequest("invalid pin number %q", raw)
	}
	if p < 0 || p > pin.MaxNumber {
		return 0, badRequest("pin %d out of range 0..%d", p, pin.MaxNumber)
	}
	return p, nil
}

// decodeBody parses an optional JSON request body into v. An empty body
// is allowed and leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	data, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
	if err != nil {
		return badRequest("failed to read request body: %v", err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return badRequest("invalid JSON body: %v", err)
	}
	return nil
}

type listResponse struct {
	Port            int            `json:"port"`
	Pins            []store.Status `json:"pins"`
	Reserved        map[int]string `json:"reserved"`
	RestartRequired bool           `json:"restart_required"`
}

func (s *Server) handleListPins(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	s.writeJSON(w, http.StatusOK, listResponse{
		Port:            s.port,
		Pins:            s.store.Snapshot(),
		Reserved:        pin.Reserved(),
		RestartRequired: s.store.RestartRequired(),
	})
}

func (s *Server) handlePinState(w http.ResponseWriter, _ *http.Request, ps httprouter.Params) {
	p, err := parsePin(ps)
	if err != nil {
		s.writeError(w, err)
		return
	}

	st, ok := s.store.Get(p)
	if !ok {
		s.writeError(w, notFound("pin %d is not monitored", p))
		return
	}
	s.writeJSON(w, http.StatusOK, st)
}

type addPinRequest struct {
	Pull         pin.Pull `json:"pull"`
	DebounceLow  int      `json:"debounce_low"`
	DebounceHigh int      `json:"debounce_high"`
}

type mutationResponse struct {
	Message string `json:"message"`
	Warning string `json:"warning,omitempty"`
}

func (s *Server) handleAddPin(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	p, err := parsePin(ps)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var req addPinRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	cfg := pin.Config{
		Pin:          p,
		Pull:         req.Pull,
		DebounceLow:  req.DebounceLow,
		DebounceHigh: req.DebounceHigh,
	}
	if cfg.Pull == "" {
		cfg.Pull = pin.PullNone
	}
	if err := cfg.Validate(); err != nil {
		s.writeError(w, badRequest("%v", err))
		return
	}

	err = s.file.Mutate(func(sc *config.Service) error {
		if _, exists := sc.FindPin(p); exists {
			return conflict("pin %d is already monitored", p)
		}
		sc.SetPin(cfg)
		return nil
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	warning, err := s.store.Upsert(cfg)
	if err != nil {
		s.writeError(w, fmt.Errorf("failed to apply pin %d: %w", p, err))
		return
	}

	s.logger.Info("pin added", "pin", p, "pull", cfg.Pull)
	s.writeJSON(w, http.StatusOK, mutationResponse{
		Message: fmt.Sprintf("pin %d added to monitoring", p),
		Warning: warning,
	})
}

func (s *Server) handleRemovePin(w http.ResponseWriter, _ *http.Request, ps httprouter.Params) {
	p, err := parsePin(ps)
	if err != nil {
		s.writeError(w, err)
		return
	}

	err = s.file.Mutate(func(sc *config.Service) error {
		if !sc.RemovePin(p) {
			return notFound("pin %d is not monitored", p)
		}
		return nil
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.store.Remove(p)
	s.logger.Info("pin removed", "pin", p)
	s.writeJSON(w, http.StatusOK, mutationResponse{
		Message: fmt.Sprintf("pin %d removed from monitoring", p),
	})
}

func (s *Server) handleClearPins(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	err := s.file.Mutate(func(sc *config.Service) error {
		sc.Pins = []pin.Config{}
		return nil
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.store.Clear()
	s.logger.Info("all pins cleared")
	s.writeJSON(w, http.StatusOK, mutationResponse{Message: "all pins removed from monitoring"})
}

type setPullRequest struct {
	Mode pin.Pull `json:"mode"`
}

func (s *Server) handleSetPull(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	p, err := parsePin(ps)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var req setPullRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	switch req.Mode {
	case pin.PullUp, pin.PullDown, pin.PullNone:
	default:
		s.writeError(w, badRequest("mode must be %q, %q or %q", pin.PullUp, pin.PullDown, pin.PullNone))
		return
	}

	if _, err := s.updatePin(p, func(cfg *pin.Config) {
		cfg.Pull = req.Mode
	}); err != nil {
		s.writeError(w, err)
		return
	}

	s.logger.Info("pull mode set", "pin", p, "mode", req.Mode)
	s.writeJSON(w, http.StatusOK, mutationResponse{
		Message: fmt.Sprintf("pin %d pull set to %s", p, req.Mode),
	})
}

type setDebounceRequest struct {
	Low  *int `json:"low"`
	High *int `json:"high"`
}

func (s *Server) handleSetDebounce(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	p, err := parsePin(ps)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var req setDebounceRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.Low == nil || req.High == nil {
		s.writeError(w, badRequest("both low and high thresholds are required"))
		return
	}
	if *req.Low < 0 || *req.Low > pin.WindowSize || *req.High < 0 || *req.High > pin.WindowSize {
		s.writeError(w, badRequest("thresholds must be 0..%d", pin.WindowSize))
		return
	}

	if _, err := s.updatePin(p, func(cfg *pin.Config) {
		cfg.DebounceLow = *req.Low
		cfg.DebounceHigh = *req.High
	}); err != nil {
		s.writeError(w, err)
		return
	}

	s.logger.Info("debounce set", "pin", p, "low", *req.Low, "high", *req.High)
	s.writeJSON(w, http.StatusOK, mutationResponse{
		Message: fmt.Sprintf("pin %d debounce set to low %d/%d, high %d/%d", p, *req.Low, pin.WindowSize, *req.High, pin.WindowSize),
	})
}

func (s *Server) handleRemoveDebounce(w http.ResponseWriter, _ *http.Request, ps httprouter.Params) {
	p, err := parsePin(ps)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if _, err := s.updatePin(p, func(cfg *pin.Config) {
		cfg.DebounceLow = 0
		cfg.DebounceHigh = 0
	}); err != nil {
		s.writeError(w, err)
		return
	}

	s.logger.Info("debounce removed", "pin", p)
	s.writeJSON(w, http.StatusOK, mutationResponse{
		Message: fmt.Sprintf("pin %d debouncing removed", p),
	})
}

// updatePin applies a field mutation to a monitored pin, writing through
// to the file first and then resetting the pin's runtime state in the
// store via upsert.
func (s *Server) updatePin(p int, mutate func(*pin.Config)) (pin.Config, error) {
	var updated pin.Config
	err := s.file.Mutate(func(sc *config.Service) error {
		cfg, ok := sc.FindPin(p)
		if !ok {
			return notFound("pin %d is not monitored", p)
		}
		mutate(&cfg)
		if err := cfg.Validate(); err != nil {
			return badRequest("%v", err)
		}
		sc.SetPin(cfg)
		updated = cfg
		return nil
	})
	if err != nil {
		return pin.Config{}, err
	}

	if _, err := s.store.Upsert(updated); err != nil {
		return pin.Config{}, fmt.Errorf("failed to apply pin %d: %w", p, err)
	}
	return updated, nil
}

type setPortRequest struct {
	Port int `json:"port"`
}

type setPortResponse struct {
	Message         string `json:"message"`
	RestartRequired bool   `json:"restart_required"`
}

// handleSetPort persists a new listen port. The change is accepted into
// the config file but never applied live; the response and the status
// endpoint flag that a restart is required.
func (s *Server) handleSetPort(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req setPortRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.Port < 1 || req.Port > 65535 {
		s.writeError(w, badRequest("port must be between 1 and 65535, got %d", req.Port))
		return
	}

	err := s.file.Mutate(func(sc *config.Service) error {
		sc.Port = req.Port
		return nil
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	restart := req.Port != s.port
	if restart {
		s.store.SetRestartRequired(true)
		s.store.Warn("port changed to %d, restart required (running on %d)", req.Port, s.port)
		s.logger.Warn("port change persisted, restart required", "new_port", req.Port, "running_port", s.port)
	} else {
		s.store.SetRestartRequired(false)
	}

	s.writeJSON(w, http.StatusOK, setPortResponse{
		Message:         fmt.Sprintf("port set to %d", req.Port),
		RestartRequired: restart,
	})
}

type statusResponse struct {
	UptimeSeconds   int64           `json:"uptime_seconds"`
	Port            int             `json:"port"`
	RestartRequired bool            `json:"restart_required"`
	Subscribers     int             `json:"subscribers"`
	Pins            []store.Status  `json:"pins"`
	Warnings        []store.Warning `json:"warnings"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	s.writeJSON(w, http.StatusOK, statusResponse{
		UptimeSeconds:   int64(time.Since(s.startedAt).Seconds()),
		Port:            s.port,
		RestartRequired: s.store.RestartRequired(),
		Subscribers:     s.hub.Len(),
		Pins:            s.store.Snapshot(),
		Warnings:        s.store.Warnings(),
	})
}
