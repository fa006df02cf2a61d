// Package session keeps one upstream streaming session alive on top of the credential
// pool: retries with backoff, rotation on credential failures and a circuit breaker.
package session

import (
	"context"
	"sync"
	"time"

	"geminivoice-go/internal/credential"
	"geminivoice-go/internal/events"
	"geminivoice-go/internal/monitoring"
	"geminivoice-go/internal/upstream"

	log "github.com/sirupsen/logrus"
)

// Pool is the part of the credential pool the controller relies on.
type Pool interface {
	Current() (*credential.Record, error)
	Rotate() (*credential.Record, error)
	CurrentLabel() string
	MarkUsed(label string, success bool) error
	HandleRateLimit(label string, resetAt time.Time) error
	HandleInvalid(label string) error
	Stats() credential.Stats
}

// Defaults applied to zero Options fields.
const (
	DefaultMaxRetries            = 3
	DefaultBaseBackoff           = time.Second
	DefaultMaxBackoff            = 30 * time.Second
	DefaultRotationCooldown      = 30 * time.Second
	DefaultMaxConsecutiveErrors  = 5
	DefaultActivityCheckInterval = 30 * time.Second
	minCircuitOpen               = 60 * time.Second
)

// Options configure a Controller.
type Options struct {
	Pool      Pool
	Transport upstream.Transport
	Resume    *ResumeStore
	Publisher events.Publisher

	MaxRetries            int
	BaseBackoff           time.Duration
	MaxBackoff            time.Duration
	RotationCooldown      time.Duration
	MaxConsecutiveErrors  int
	ActivityCheckInterval time.Duration

	// Hooks for tests.
	Now   func() time.Time
	Rand  func() float64
	Sleep func(ctx context.Context, d time.Duration) error
}

func (o *Options) applyDefaults() {
	if o.MaxRetries <= 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.BaseBackoff <= 0 {
		o.BaseBackoff = DefaultBaseBackoff
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = DefaultMaxBackoff
	}
	if o.RotationCooldown <= 0 {
		o.RotationCooldown = DefaultRotationCooldown
	}
	if o.MaxConsecutiveErrors <= 0 {
		o.MaxConsecutiveErrors = DefaultMaxConsecutiveErrors
	}
	if o.ActivityCheckInterval <= 0 {
		o.ActivityCheckInterval = DefaultActivityCheckInterval
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Sleep == nil {
		o.Sleep = sleepContext
	}
}

// Controller owns at most one upstream session at a time.
//
// mu guards the session state below and is never held across a pool call or network
// I/O. reconnectMu serializes Connect and reconnects so only one dial is in flight.
type Controller struct {
	opts    Options
	backoff Backoff

	reconnectMu sync.Mutex

	mu                sync.Mutex
	state             State
	session           upstream.Session
	sessionID         string
	generation        uint64
	activeLabel       string
	cfg               upstream.SessionConfig
	hasConfig         bool
	closed            bool
	consecutiveErrors int
	lastActivity      time.Time
	circuitOpenUntil  time.Time
	lastRotation      time.Time
	resumeHandle      string
}

// New builds a disconnected controller.
func New(opts Options) *Controller {
	opts.applyDefaults()
	c := &Controller{
		opts: opts,
		backoff: Backoff{
			Base: opts.BaseBackoff,
			Max:  opts.MaxBackoff,
			Rand: opts.Rand,
		},
		state: StateDisconnected,
	}
	monitoring.SetSessionState(c.state.String(), stateNames)
	return c
}

// circuitWindow is how long the breaker stays open.
func (c *Controller) circuitWindow() time.Duration {
	if c.opts.RotationCooldown > minCircuitOpen {
		return c.opts.RotationCooldown
	}
	return minCircuitOpen
}

// setStateLocked records a transition; the caller holds c.mu and must call
// announce with the returned state after unlocking.
func (c *Controller) setStateLocked(s State) (State, bool) {
	if c.state == s {
		return s, false
	}
	c.state = s
	return s, true
}

// announce publishes a state transition. Called without c.mu.
func (c *Controller) announce(s State, changed bool, label string) {
	if !changed {
		return
	}
	monitoring.SetSessionState(s.String(), stateNames)
	log.WithFields(log.Fields{"state": s.String(), "credential": label}).Debug("session state changed")
	if c.opts.Publisher != nil {
		c.opts.Publisher.Publish(context.Background(), events.TopicSessionState, map[string]any{
			"state":      s.String(),
			"credential": label,
		}, map[string]string{"source": "session_controller"})
	}
}

// State returns the current connection state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected reports whether a session is open.
func (c *Controller) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateConnected && c.session != nil
}

// CredentialStats exposes the pool statistics.
func (c *Controller) CredentialStats() credential.Stats {
	return c.opts.Pool.Stats()
}

// activeSession returns the open session together with its generation.
func (c *Controller) activeSession() (upstream.Session, uint64, string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnected || c.session == nil {
		return nil, c.generation, c.activeLabel, false
	}
	return c.session, c.generation, c.activeLabel, true
}

// touch marks a successful exchange on session generation gen.
func (c *Controller) touch(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen {
		return
	}
	c.consecutiveErrors = 0
	c.lastActivity = c.opts.Now()
}
