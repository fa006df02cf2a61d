// Package upstreamtest provides an in-memory upstream.Transport for tests.
package upstreamtest

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"geminivoice-go/internal/upstream"
)

// OpenFunc decides the outcome of the n-th Open call (0-based) made with secret.
type OpenFunc func(n int, secret string) error

// Transport is a scriptable fake. It counts Open calls and hands out Sessions whose
// inbound messages are fed by the test.
type Transport struct {
	opens  atomic.Int64
	openFn OpenFunc

	mu       sync.Mutex
	secrets  []string
	configs  []upstream.SessionConfig
	sessions []*Session
}

// NewTransport builds a fake whose Open outcome is chosen by fn. A nil fn always succeeds.
func NewTransport(fn OpenFunc) *Transport {
	return &Transport{openFn: fn}
}

// AlwaysFail returns an OpenFunc that fails every call with err.
func AlwaysFail(err error) OpenFunc {
	return func(int, string) error { return err }
}

// FailSecret fails calls made with secret and lets other secrets through.
func FailSecret(secret string, err error) OpenFunc {
	return func(_ int, s string) error {
		if s == secret {
			return err
		}
		return nil
	}
}

func (t *Transport) Open(ctx context.Context, secret string, cfg upstream.SessionConfig) (upstream.Session, error) {
	n := int(t.opens.Add(1)) - 1
	t.mu.Lock()
	t.secrets = append(t.secrets, secret)
	t.configs = append(t.configs, cfg)
	t.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if t.openFn != nil {
		if err := t.openFn(n, secret); err != nil {
			return nil, err
		}
	}
	s := NewSession()
	t.mu.Lock()
	t.sessions = append(t.sessions, s)
	t.mu.Unlock()
	return s, nil
}

// Opens reports how many times Open was called.
func (t *Transport) Opens() int { return int(t.opens.Load()) }

// Secrets lists the secret passed to each Open call.
func (t *Transport) Secrets() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.secrets...)
}

// Configs lists the session config passed to each Open call.
func (t *Transport) Configs() []upstream.SessionConfig {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]upstream.SessionConfig(nil), t.configs...)
}

// LastSession returns the most recently opened session.
func (t *Transport) LastSession() *Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.sessions) == 0 {
		return nil
	}
	return t.sessions[len(t.sessions)-1]
}

// ErrSessionClosed is returned by Send and Recv after Close.
var ErrSessionClosed = errors.New("fake session closed")

// Session is a fake upstream session.
type Session struct {
	inbound chan result
	done    chan struct{}
	once    sync.Once

	mu      sync.Mutex
	sent    []upstream.Message
	sendErr error
}

type result struct {
	resp *upstream.Response
	err  error
}

// NewSession creates an open session.
func NewSession() *Session {
	return &Session{inbound: make(chan result, 64), done: make(chan struct{})}
}

// Push queues an inbound response.
func (s *Session) Push(resp *upstream.Response) { s.inbound <- result{resp: resp} }

// Fail queues an inbound transport error.
func (s *Session) Fail(err error) { s.inbound <- result{err: err} }

// End queues a normal end of stream.
func (s *Session) End() { s.inbound <- result{err: io.EOF} }

// FailSends makes every following Send return err. Nil restores success.
func (s *Session) FailSends(err error) {
	s.mu.Lock()
	s.sendErr = err
	s.mu.Unlock()
}

// Sent returns the messages sent so far.
func (s *Session) Sent() []upstream.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]upstream.Message(nil), s.sent...)
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *Session) Send(ctx context.Context, msg upstream.Message) error {
	if s.Closed() {
		return ErrSessionClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *Session) Recv(ctx context.Context) (*upstream.Response, error) {
	select {
	case r := <-s.inbound:
		return r.resp, r.err
	case <-s.done:
		return nil, ErrSessionClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Session) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}
