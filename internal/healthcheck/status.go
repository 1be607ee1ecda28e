package healthcheck

import "time"

// Status is the outcome of the most recent self-ping.
type Status struct {
	Target              string    `json:"target"`
	Reachable           bool      `json:"reachable"`
	LastPing            time.Time `json:"last_ping"`
	LastSuccess         time.Time `json:"last_success"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastError           string    `json:"last_error,omitempty"`
}
