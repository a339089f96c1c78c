package robot

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// StatusResponse is the body served by StatusHandler.
type StatusResponse struct {
	SessionID       string    `json:"session_id"`
	Config          string    `json:"config"`
	Session         string    `json:"session"`
	Task            string    `json:"task"`
	PendingRequests int       `json:"pending_requests"`
	LastActivity    time.Time `json:"last_activity"`
}

// StatusHandler reports the health of the client for a local probe. It
// always answers 200; the body says what is wrong.
func (c *Client) StatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		handlerLogger := c.logger.With(zap.String("handler", "StatusHandler"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)

		response := StatusResponse{
			SessionID:       c.Session.GetID(),
			Config:          "ok",
			Session:         c.Session.GetStatus().String(),
			Task:            string(c.Task.Status()),
			PendingRequests: c.Session.GetRequestManager().Pending(),
			LastActivity:    c.Session.GetLastActivity(),
		}
		if err := c.cfg.Status(r.Context()); err != nil {
			handlerLogger.Error("Failed to get config status", zap.Error(err))
			response.Config = "error"
		}

		if err := json.NewEncoder(w).Encode(response); err != nil {
			handlerLogger.Error("Failed to encode status response", zap.Error(err))
		}
	}
}
