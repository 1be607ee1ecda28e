package mail

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/aman-churiwal/crm-gateway/internal/circuitbreaker"
	"github.com/aman-churiwal/crm-gateway/internal/metrics"
)

// deliverTimeout bounds a detached send, including any re-initialisation it triggers.
const deliverTimeout = 2 * time.Minute

// reinitKey is the single-flight key shared by boot and lazy initialisation.
const reinitKey = "init"

var ErrNoProvider = errors.New("no mail provider could be verified")

// session is the published transport. It is never mutated after publication.
type session struct {
	transport Transport
	provider  string
	kind      ProviderKind
	port      int
}

// Supervisor owns the single current SMTP transport. It picks a provider at
// startup, re-initialises lazily when sends find no transport, and dispatches
// messages without blocking the caller.
type Supervisor struct {
	settings Settings
	factory  Factory
	log      *zap.SugaredLogger

	current  atomic.Pointer[session]
	reinit   singleflight.Group
	breaker  *circuitbreaker.CircuitBreaker
	inflight sync.WaitGroup
}

type Option func(*Supervisor)

// WithFactory replaces the gomail transport, for tests.
func WithFactory(f Factory) Option {
	return func(s *Supervisor) { s.factory = f }
}

// WithBreaker replaces the re-init circuit breaker.
func WithBreaker(cb *circuitbreaker.CircuitBreaker) Option {
	return func(s *Supervisor) { s.breaker = cb }
}

func NewSupervisor(settings Settings, log *zap.SugaredLogger, opts ...Option) *Supervisor {
	s := &Supervisor{
		settings: settings,
		factory:  NewSMTPTransport,
		log:      log.Named("mail"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.breaker == nil {
		s.breaker = circuitbreaker.New(circuitbreaker.Config{
			MaxFailures: 3,
			Timeout:     60 * time.Second,
			OnStateChange: func(from, to circuitbreaker.State) {
				s.log.Warnw("Mail re-init breaker changed state", "from", from.String(), "to", to.String())
			},
		})
	}
	return s
}

// Init runs the provider selection protocol and publishes the first transport
// that verifies. It returns ErrNoProvider when nothing verified; the server keeps
// running and sends will retry initialisation.
func (s *Supervisor) Init(ctx context.Context) error {
	for _, p := range s.settings.Providers {
		if !p.hasCredentials() {
			s.log.Errorw("Mail credentials missing, skipping provider", "provider", p.Name)
			continue
		}

		sess, err := s.probe(ctx, p)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}
		s.publish(sess)
		return nil
	}

	s.log.Errorw("CRITICAL: all mail providers failed, email sending is disabled")
	return ErrNoProvider
}

// Start runs Init behind the same single-flight gate as lazy re-initialisation,
// so sends that find no transport while boot probing runs wait for it instead
// of probing again.
func (s *Supervisor) Start(ctx context.Context) error {
	_, err, _ := s.reinit.Do(reinitKey, func() (interface{}, error) {
		if sess := s.current.Load(); sess != nil {
			return sess, nil
		}
		err := s.Init(ctx)
		return s.current.Load(), err
	})
	if err == nil && !s.Ready() {
		err = ErrNoProvider
	}
	return err
}

// probe tries each port of p in order and returns a verified session.
func (s *Supervisor) probe(ctx context.Context, p ProviderConfig) (*session, error) {
	var lastErr error
	for _, port := range p.Ports {
		opts := probeOptions(p, port, s.settings.From)
		t := s.factory(opts)

		if s.settings.Debug {
			s.log.Debugw("Probing mail relay", "provider", p.Name, "host", p.Host, "port", port, "ssl", opts.SSL)
		}

		if err := t.Verify(ctx); err != nil {
			_ = t.Close()
			lastErr = err
			s.log.Warnw("Mail port probe failed", "provider", p.Name, "port", port, "error", err)
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}

		if p.Kind == Primary {
			// Swap the probe transport for one with the steady-state timeouts.
			_ = t.Close()
			t = s.factory(steadyOptions(opts))
			s.log.Infof("SUCCESS: Connected to %s on Port %d", p.Name, port)
		} else {
			s.log.Infof("SUCCESS: Connected to %s (fallback) on Port %d", p.Name, port)
		}

		return &session{transport: t, provider: p.Name, kind: p.Kind, port: port}, nil
	}
	if lastErr == nil {
		lastErr = errors.Errorf("%s: no ports configured", p.Name)
	}
	return nil, lastErr
}

// publish swaps in sess and closes the transport it replaced.
func (s *Supervisor) publish(sess *session) {
	if old := s.current.Swap(sess); old != nil && old.transport != sess.transport {
		_ = old.transport.Close()
	}
}

// Ready reports whether a verified transport is published.
func (s *Supervisor) Ready() bool {
	return s.current.Load() != nil
}

// Current returns the provider name and port of the published transport.
func (s *Supervisor) Current() (provider string, port int, ok bool) {
	sess := s.current.Load()
	if sess == nil {
		return "", 0, false
	}
	return sess.provider, sess.port, true
}

// BreakerMetrics reports the state of the re-init circuit breaker.
func (s *Supervisor) BreakerMetrics() circuitbreaker.Metrics {
	return s.breaker.Metrics()
}

// ResetBreaker closes the re-init breaker so the next send may probe again.
func (s *Supervisor) ResetBreaker() {
	s.breaker.Reset()
}

// Send queues msg and returns immediately. The outcome is only logged.
func (s *Supervisor) Send(msg Message) {
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()

		ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
		defer cancel()

		// Deliver logs both outcomes.
		_, _ = s.Deliver(ctx, msg)
	}()
}

// Deliver sends msg synchronously on the current transport, re-initialising
// first if none is published.
func (s *Supervisor) Deliver(ctx context.Context, msg Message) (string, error) {
	sess := s.current.Load()
	if sess == nil {
		sess = s.ensure(ctx)
	}
	if sess == nil {
		s.log.Errorw("Email not sent", "error", ErrNotInitialized, "to", msg.To, "subject", msg.Subject)
		return "", ErrNotInitialized
	}

	id, err := sess.transport.Send(ctx, msg)
	if err != nil {
		metrics.MailFailed.WithLabelValues(sess.provider).Inc()
		s.log.Errorw("Email send failed",
			"provider", sess.provider,
			"port", sess.port,
			"to", msg.To,
			"subject", msg.Subject,
			"error", err)
		return "", err
	}

	metrics.MailSent.WithLabelValues(sess.provider).Inc()
	s.log.Infow("Email sent", "messageId", id, "provider", sess.provider, "to", msg.To)
	return id, nil
}

// ensure re-initialises once per outage no matter how many senders observe it.
func (s *Supervisor) ensure(ctx context.Context) *session {
	v, _, _ := s.reinit.Do(reinitKey, func() (interface{}, error) {
		if sess := s.current.Load(); sess != nil {
			return sess, nil
		}

		initCtx := context.WithoutCancel(ctx)
		err := s.breaker.Call(func() error { return s.Init(initCtx) })
		switch {
		case err == nil:
			metrics.MailReinit.WithLabelValues("success").Inc()
			s.log.Infow("Mail transport re-initialised")
		case errors.Is(err, circuitbreaker.ErrCircuitOpen):
			metrics.MailReinit.WithLabelValues("breaker_open").Inc()
			s.log.Warnw("Mail re-init skipped, breaker open")
		default:
			metrics.MailReinit.WithLabelValues("failed").Inc()
		}
		return s.current.Load(), nil
	})

	sess, _ := v.(*session)
	return sess
}

// Close waits for detached sends, bounded by ctx, then closes the transport.
func (s *Supervisor) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = errors.Wrap(ctx.Err(), "waiting for pending mail")
	}

	if sess := s.current.Swap(nil); sess != nil {
		if cerr := sess.transport.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
