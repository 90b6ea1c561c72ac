package server

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"
)

// notifyRequest is the body of the internal notify endpoint, the bridge the
// CRUD layer uses to hand already-decided domain events to the broadcaster.
type notifyRequest struct {
	Target  string          `json:"target"`
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func (s *Server) handleNotify(c echo.Context) error {
	if s.cfg.NotifySecret != "" {
		provided := c.Request().Header.Get("X-Internal-Token")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(s.cfg.NotifySecret)) != 1 {
			return c.String(http.StatusUnauthorized, "invalid internal token")
		}
	}

	var req notifyRequest
	if err := c.Bind(&req); err != nil {
		return c.String(http.StatusBadRequest, "invalid request body")
	}
	if req.Target == "" || req.Kind == "" {
		return c.String(http.StatusBadRequest, "target and kind are required")
	}

	var payload any
	if len(req.Payload) > 0 {
		payload = req.Payload
	}
	if err := s.broadcaster.Notify(req.Target, req.Kind, payload); err != nil {
		return c.String(http.StatusInternalServerError, "failed to broadcast")
	}
	return c.NoContent(http.StatusAccepted)
}
