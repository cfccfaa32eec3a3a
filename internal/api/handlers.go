// internal/api/handlers.go
package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tamzrod/freshair-modbus/internal/device"
)

type stateResponse struct {
	DeviceID  string       `json:"device_id"`
	Available bool         `json:"available"`
	State     device.State `json:"state"`
}

type propertyResponse struct {
	DeviceID string `json:"device_id"`
	Property string `json:"property"`
	Value    any    `json:"value"`
}

type setRequest struct {
	Value json.RawMessage `json:"value"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.health.Snapshot())
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	st := s.dev.State(r.Context())
	writeJSON(w, http.StatusOK, stateResponse{
		DeviceID:  s.dev.ID(),
		Available: st.Available(),
		State:     st,
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.dev.Refresh(r.Context(), true); err != nil {
		writeError(w, http.StatusBadGateway, ErrCodeDevice, err.Error())
		return
	}
	s.handleState(w, r)
}

func (s *Server) handleGetProperty(w http.ResponseWriter, r *http.Request) {
	p, err := device.ParseProperty(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
		return
	}

	v, ok := s.dev.Get(r.Context(), p)
	if !ok {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, fmt.Sprintf("%s is unknown", p))
		return
	}
	writeJSON(w, http.StatusOK, propertyResponse{DeviceID: s.dev.ID(), Property: string(p), Value: v})
}

func (s *Server) handleSetProperty(w http.ResponseWriter, r *http.Request) {
	p, err := device.ParseProperty(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
		return
	}

	v, err := decodeValue(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}

	err = s.dev.Set(r.Context(), p, v)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, device.ErrInvalidValue):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, device.ErrReadOnly):
		writeError(w, http.StatusMethodNotAllowed, ErrCodeReadOnly, err.Error())
	default:
		s.log.Warn().Err(err).Str("property", string(p)).Msg("set failed")
		writeError(w, http.StatusBadGateway, ErrCodeDevice, err.Error())
	}
}

// decodeValue reads {"value": ...}. Numbers stay json.Number so integers are exact.
func decodeValue(body io.Reader) (any, error) {
	var req setRequest
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		return nil, fmt.Errorf("invalid body: %w", err)
	}
	if len(req.Value) == 0 || bytes.Equal(req.Value, []byte("null")) {
		return nil, errors.New(`body must be {"value": ...}`)
	}

	dec := json.NewDecoder(bytes.NewReader(req.Value))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("invalid value: %w", err)
	}
	return v, nil
}
