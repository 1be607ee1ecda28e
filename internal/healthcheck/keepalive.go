package healthcheck

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultInterval = 13 * time.Minute
	DefaultTimeout  = 8 * time.Second
	DefaultEndpoint = "/api/health"
)

// KeepAlive pings the server's own health endpoint so free-tier hosts do not
// idle the process. Failures are logged and never propagate.
type KeepAlive struct {
	mu       sync.RWMutex
	target   string
	interval time.Duration
	timeout  time.Duration
	client   *http.Client
	log      *zap.SugaredLogger
	status   Status
	stopChan chan struct{}
	done     chan struct{}
	running  bool
}

// Holds keep-alive configuration
type Config struct {
	BaseURL  string        // e.g. "http://127.0.0.1:5001"
	Endpoint string        // default "/api/health"
	Interval time.Duration // default 13m
	Timeout  time.Duration // default 8s
	Client   *http.Client
}

// LocalConfig targets the loopback listener on port.
func LocalConfig(port string) Config {
	return Config{BaseURL: fmt.Sprintf("http://127.0.0.1:%s", port)}
}

func NewKeepAlive(cfg Config, log *zap.SugaredLogger) *KeepAlive {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{}
	}

	return &KeepAlive{
		target:   cfg.BaseURL + cfg.Endpoint,
		interval: cfg.Interval,
		timeout:  cfg.Timeout,
		client:   cfg.Client,
		log:      log.Named("keepalive"),
		status:   Status{Target: cfg.BaseURL + cfg.Endpoint},
	}
}

// Begins periodic pings
func (k *KeepAlive) Start() {
	k.mu.Lock()
	if k.running {
		k.mu.Unlock()
		return
	}
	k.running = true
	k.stopChan = make(chan struct{})
	k.done = make(chan struct{})
	k.mu.Unlock()

	k.log.Infow("Self-ping enabled", "target", k.target, "interval", k.interval.String())

	go func() {
		defer close(k.done)
		ticker := time.NewTicker(k.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				k.Ping()
			case <-k.stopChan:
				return
			}
		}
	}()
}

// Stops the pinger
func (k *KeepAlive) Stop() {
	k.mu.Lock()
	if !k.running {
		k.mu.Unlock()
		return
	}
	k.running = false
	close(k.stopChan)
	done := k.done
	k.mu.Unlock()

	<-done
}

// Ping performs one request and records the outcome.
func (k *KeepAlive) Ping() {
	ctx, cancel := context.WithTimeout(context.Background(), k.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.target, nil)
	if err != nil {
		k.recordFailure(err)
		return
	}

	resp, err := k.client.Do(req)
	if err != nil {
		k.recordFailure(err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 400 {
		k.recordSuccess()
		return
	}
	k.recordFailure(fmt.Errorf("unexpected status %d", resp.StatusCode))
}

func (k *KeepAlive) recordSuccess() {
	k.mu.Lock()
	defer k.mu.Unlock()

	now := time.Now()
	k.status.LastPing = now
	k.status.LastSuccess = now
	k.status.ConsecutiveFailures = 0
	k.status.Reachable = true
	k.status.LastError = ""
}

func (k *KeepAlive) recordFailure(err error) {
	k.mu.Lock()
	k.status.LastPing = time.Now()
	k.status.ConsecutiveFailures++
	k.status.Reachable = false
	k.status.LastError = err.Error()
	failures := k.status.ConsecutiveFailures
	k.mu.Unlock()

	k.log.Warnw("Self-ping failed", "target", k.target, "failures", failures, "error", err)
}

// Status returns a copy of the last outcome.
func (k *KeepAlive) Status() Status {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.status
}
