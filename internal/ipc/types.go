package ipc

import (
	"time"

	"aerial/internal/scheduler"
)

// DaemonStatus is the response of GET /api/status.
type DaemonStatus struct {
	Running   bool             `json:"running"`
	PID       int              `json:"pid"`
	Version   string           `json:"version"`
	StartedAt time.Time        `json:"started_at"`
	NextCheck time.Time        `json:"next_check,omitzero"`
	Scheduler scheduler.Status `json:"scheduler"`
}

// QueueResponse is the response of GET /api/queue.
type QueueResponse struct {
	Scheduler scheduler.Status `json:"scheduler"`
}

// CheckResponse is the response of POST /api/check.
type CheckResponse struct {
	Triggered bool `json:"triggered"`
}

// CancelResponse is the response of POST /api/cancel/{id}.
type CancelResponse struct {
	Cancelled bool `json:"cancelled"`
}

// LimitRequest is the body of POST /api/limit.
type LimitRequest struct {
	Limit int `json:"limit"`
}

// LimitResponse is the response of GET and POST /api/limit.
type LimitResponse struct {
	Limit int `json:"limit"`
}

// ErrorResponse carries a non-2xx error message.
type ErrorResponse struct {
	Error string `json:"error"`
}
