package circuitbreaker

import "time"

type State int

const (
	// StateClosed lets every attempt through.
	StateClosed State = iota

	// StateOpen fails attempts immediately until the timeout passes.
	StateOpen

	// StateHalfOpen admits trial attempts; one failure reopens.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Metrics is a point-in-time copy of the breaker counters.
type Metrics struct {
	State           State     `json:"state"`
	FailureCount    int       `json:"failure_count"`
	SuccessCount    int       `json:"success_count"`
	LastFailureTime time.Time `json:"last_failure_time"`
	LastStateChange time.Time `json:"last_state_change"`
}
