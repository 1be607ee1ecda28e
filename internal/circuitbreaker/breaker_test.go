package circuitbreaker

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

type manualClock struct{ t time.Time }

func (m *manualClock) Now() time.Time          { return m.t }
func (m *manualClock) Advance(d time.Duration) { m.t = m.t.Add(d) }

func TestBreakerOpensAfterMaxFailures(t *testing.T) {
	clock := &manualClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	var transitions []string
	cb := New(Config{
		MaxFailures: 3,
		Timeout:     time.Minute,
		Now:         clock.Now,
		OnStateChange: func(from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.Call(func() error { return errBoom }), errBoom)
	}
	require.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Call(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called, "open circuit must not run the call")

	clock.Advance(time.Minute)
	require.NoError(t, cb.Call(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	clock := &manualClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	cb := New(Config{MaxFailures: 1, Timeout: 30 * time.Second, Now: clock.Now})

	_ = cb.Call(func() error { return errBoom })
	require.Equal(t, StateOpen, cb.State())

	clock.Advance(31 * time.Second)
	assert.ErrorIs(t, cb.Call(func() error { return errBoom }), errBoom)
	assert.Equal(t, StateOpen, cb.State())

	clock.Advance(10 * time.Second)
	assert.ErrorIs(t, cb.Call(func() error { return nil }), ErrCircuitOpen)
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	cb := New(Config{MaxFailures: 2})

	_ = cb.Call(func() error { return errBoom })
	require.NoError(t, cb.Call(func() error { return nil }))
	_ = cb.Call(func() error { return errBoom })

	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 1, cb.Metrics().FailureCount)

	cb.Reset()
	assert.Equal(t, 0, cb.Metrics().FailureCount)
}

func TestMetricsJSON(t *testing.T) {
	clock := &manualClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	cb := New(Config{MaxFailures: 1, Now: clock.Now})
	_ = cb.Call(func() error { return errBoom })

	raw, err := json.Marshal(cb.Metrics())
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "open", decoded["state"])
	assert.Equal(t, float64(1), decoded["failure_count"])
	assert.Equal(t, "2026-03-01T10:00:00Z", decoded["last_failure_time"])
}
