package mail

import (
	"context"
	"crypto/tls"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"
	"gopkg.in/gomail.v2"
)

var (
	ErrNotInitialized  = errors.New("transporter not initialized")
	ErrNoRecipients    = errors.New("message has no recipients")
	ErrTransportClosed = errors.New("transport closed")
	ErrTimeout         = errors.New("smtp timeout")
)

// Transport is a pooled SMTP session bound to one host and port.
type Transport interface {
	// Verify opens and authenticates one connection, then closes it.
	Verify(ctx context.Context) error
	// Send delivers msg and returns the Message-ID it was sent with.
	Send(ctx context.Context, msg Message) (string, error)
	Close() error
	Provider() string
	Port() int
}

// Factory builds a transport; tests substitute a fake.
type Factory func(opts Options) Transport

// NewSMTPTransport is the production Factory.
func NewSMTPTransport(opts Options) Transport {
	d := gomail.NewDialer(opts.Host, opts.Port, opts.User, opts.Password)
	d.SSL = opts.SSL
	d.TLSConfig = &tls.Config{ServerName: opts.Host, MinVersion: tls.VersionTLS12}

	if opts.MaxConnections <= 0 {
		opts.MaxConnections = 1
	}
	if opts.MaxMessages <= 0 {
		opts.MaxMessages = maxMessagesPerConn
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = rate.Inf
	}

	return &smtpTransport{
		opts:    opts,
		dialer:  d,
		slots:   make(chan struct{}, opts.MaxConnections),
		idle:    make(chan *pooledConn, opts.MaxConnections),
		limiter: rate.NewLimiter(opts.RateLimit, sendRatePerSecond),
	}
}

type pooledConn struct {
	sc   gomail.SendCloser
	sent int
}

type smtpTransport struct {
	opts    Options
	dialer  *gomail.Dialer
	slots   chan struct{}    // one token per in-use connection
	idle    chan *pooledConn // connections ready for reuse
	limiter *rate.Limiter

	mu     sync.Mutex
	closed bool
}

func (t *smtpTransport) Provider() string { return t.opts.Provider }
func (t *smtpTransport) Port() int        { return t.opts.Port }

func (t *smtpTransport) Verify(ctx context.Context) error {
	sc, err := t.dial(ctx)
	if err != nil {
		return err
	}
	return sc.Close()
}

func (t *smtpTransport) Send(ctx context.Context, msg Message) (string, error) {
	if err := msg.validate(); err != nil {
		return "", err
	}
	if t.isClosed() {
		return "", ErrTransportClosed
	}
	if err := t.limiter.Wait(ctx); err != nil {
		return "", errors.Wrap(err, "send rate")
	}

	select {
	case t.slots <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	m, id := msg.build(t.opts.From, t.opts.Host)

	// The slot is released by the worker, so a timed-out send keeps its
	// connection reserved until the relay answers or the socket dies.
	acquired := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		defer func() { <-t.slots }()
		done <- t.deliver(ctx, m, acquired)
	}()

	// A fresh dial is bounded by its own budget; the socket timer starts once a
	// connection is in hand.
	select {
	case <-acquired:
	case err := <-done:
		return sendResult(id, err)
	case <-ctx.Done():
		return "", ctx.Err()
	}

	timer := time.NewTimer(t.socketTimeout())
	defer timer.Stop()

	select {
	case err := <-done:
		return sendResult(id, err)
	case <-timer.C:
		return "", errors.Wrapf(ErrTimeout, "no reply from %s:%d within %s", t.opts.Host, t.opts.Port, t.socketTimeout())
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func sendResult(id string, err error) (string, error) {
	if err != nil {
		return "", err
	}
	return id, nil
}

// deliver closes acquired once it holds a connection.
func (t *smtpTransport) deliver(ctx context.Context, m *gomail.Message, acquired chan<- struct{}) error {
	pc, err := t.acquire(ctx)
	if err != nil {
		return err
	}
	close(acquired)

	err = gomail.Send(pc.sc, m)
	if err != nil && pc.sent > 0 {
		// A pooled connection may have been dropped by the relay while idle.
		_ = pc.sc.Close()
		sc, dialErr := t.dial(ctx)
		if dialErr != nil {
			return dialErr
		}
		pc = &pooledConn{sc: sc}
		err = gomail.Send(pc.sc, m)
	}
	if err != nil {
		_ = pc.sc.Close()
		return errors.Wrapf(err, "send via %s:%d", t.opts.Host, t.opts.Port)
	}

	pc.sent++
	t.release(pc)
	return nil
}

func (t *smtpTransport) acquire(ctx context.Context) (*pooledConn, error) {
	select {
	case pc := <-t.idle:
		return pc, nil
	default:
	}

	sc, err := t.dial(ctx)
	if err != nil {
		return nil, err
	}
	return &pooledConn{sc: sc}, nil
}

func (t *smtpTransport) release(pc *pooledConn) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if pc.sent >= t.opts.MaxMessages || t.closed {
		_ = pc.sc.Close()
		return
	}
	select {
	case t.idle <- pc:
	default:
		_ = pc.sc.Close()
	}
}

type dialResult struct {
	sc  gomail.SendCloser
	err error
}

// dial bounds gomail's connect, greeting, STARTTLS and AUTH exchange by the
// connect and greeting timeouts combined.
func (t *smtpTransport) dial(ctx context.Context) (gomail.SendCloser, error) {
	budget := t.opts.ConnectTimeout + t.opts.GreetingTimeout
	if budget <= 0 {
		budget = probeConnectTimeout + probeGreetingTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	ch := make(chan dialResult, 1)
	go func() {
		sc, err := t.dialer.Dial()
		ch <- dialResult{sc: sc, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, errors.Wrapf(r.err, "dial %s:%d", t.opts.Host, t.opts.Port)
		}
		return r.sc, nil
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.sc != nil {
				_ = r.sc.Close()
			}
		}()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, errors.Wrapf(ErrTimeout, "dial %s:%d after %s", t.opts.Host, t.opts.Port, budget)
		}
		return nil, ctx.Err()
	}
}

func (t *smtpTransport) socketTimeout() time.Duration {
	if t.opts.SocketTimeout > 0 {
		return t.opts.SocketTimeout
	}
	return socketTimeout
}

func (t *smtpTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Close drops idle connections. Sends already in flight finish and then close
// their own connection.
func (t *smtpTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	var firstErr error
	for {
		select {
		case pc := <-t.idle:
			if err := pc.sc.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		default:
			return firstErr
		}
	}
}
