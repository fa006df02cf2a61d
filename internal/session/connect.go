package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"geminivoice-go/internal/credential"
	apperrors "geminivoice-go/internal/errors"
	"geminivoice-go/internal/monitoring"
	"geminivoice-go/internal/monitoring/tracing"
	"geminivoice-go/internal/upstream"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// Connect opens a session with cfg, trying up to maxRetries times (Options.MaxRetries
// when <= 0). While the breaker is open it returns *CircuitOpenError without dialing.
func (c *Controller) Connect(ctx context.Context, cfg upstream.SessionConfig, maxRetries int) error {
	c.reconnectMu.Lock()
	defer c.reconnectMu.Unlock()

	c.mu.Lock()
	c.closed = false
	stale := c.session
	c.session = nil
	c.mu.Unlock()
	if stale != nil {
		_ = stale.Close()
	}
	return c.connectLocked(ctx, cfg, maxRetries, StateConnecting)
}

// connectLocked runs the retry loop, reporting phase while it dials. The caller holds
// reconnectMu.
func (c *Controller) connectLocked(ctx context.Context, cfg upstream.SessionConfig, maxRetries int, phase State) (err error) {
	if maxRetries <= 0 {
		maxRetries = c.opts.MaxRetries
	}

	c.mu.Lock()
	now := c.opts.Now()
	if !c.circuitOpenUntil.IsZero() && now.Before(c.circuitOpenUntil) {
		until := c.circuitOpenUntil
		s, changed := c.setStateLocked(StateCircuitOpen)
		c.mu.Unlock()
		c.announce(s, changed, "")
		monitoring.ConnectAttemptsTotal.WithLabelValues("circuit_open").Inc()
		return &CircuitOpenError{Until: until}
	}
	c.cfg = cfg
	c.hasConfig = true
	s, changed := c.setStateLocked(phase)
	c.mu.Unlock()
	c.announce(s, changed, "")

	ctx, span := tracing.StartSpan(ctx, "session", "connect")
	span.SetAttributes(attribute.String("session.model", cfg.Model), attribute.Int("session.max_retries", maxRetries))
	start := time.Now()
	defer func() {
		monitoring.ConnectDuration.Observe(time.Since(start).Seconds())
		tracing.EndSpan(span, err)
	}()

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if c.isClosed() {
			return ErrClosed
		}
		rec, perr := c.opts.Pool.Current()
		if perr != nil {
			c.settleDisconnected()
			log.WithError(perr).Error("no usable credential for upstream session")
			return fmt.Errorf("connect: %w", perr)
		}

		sess, oerr := c.open(ctx, rec, cfg)
		span.SetAttributes(attribute.Int("session.attempts", attempt+1))
		if oerr == nil {
			return c.installSession(sess, rec.Label, cfg)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			c.settleDisconnected()
			return ctxErr
		}

		lastErr = oerr
		class := c.recordFailure(rec.Label, oerr, "connect")
		monitoring.ConnectAttemptsTotal.WithLabelValues("error").Inc()
		log.WithError(oerr).WithFields(log.Fields{
			"credential": rec.Label,
			"attempt":    attempt + 1,
			"class":      class.String(),
		}).Warn("upstream connect failed")

		if until, open := c.noteError(); open {
			c.openCircuit(until)
			return &CircuitOpenError{Until: until}
		}
		if attempt == maxRetries-1 {
			break
		}

		delay := c.backoff.Delay(attempt)
		log.WithField("credential", rec.Label).Debugf("retrying upstream connect in %s", delay)
		if serr := c.opts.Sleep(ctx, delay); serr != nil {
			c.settleDisconnected()
			return serr
		}
		c.maybeRotate(rec.Label)
	}

	c.settleDisconnected()
	monitoring.ConnectAttemptsTotal.WithLabelValues("exhausted").Inc()
	return &ConnectionFailedError{Attempts: maxRetries, Last: lastErr}
}

// open reveals the secret only for the duration of the dial.
func (c *Controller) open(ctx context.Context, rec *credential.Record, cfg upstream.SessionConfig) (upstream.Session, error) {
	secret, err := rec.Secret.Reveal()
	if err != nil {
		return nil, fmt.Errorf("credential %s: %w", rec.Label, err)
	}
	if cfg.ResumeHandle == "" {
		cfg.ResumeHandle = c.currentResumeHandle(ctx)
	}
	return c.opts.Transport.Open(ctx, secret, cfg)
}

// installSession adopts a freshly opened session unless Close ran during the dial.
func (c *Controller) installSession(sess upstream.Session, label string, cfg upstream.SessionConfig) error {
	if err := c.opts.Pool.MarkUsed(label, true); err != nil {
		log.WithError(err).WithField("credential", label).Warn("failed to record credential use")
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = sess.Close()
		return ErrClosed
	}
	c.session = sess
	c.generation++
	c.sessionID = uuid.NewString()
	c.activeLabel = label
	c.consecutiveErrors = 0
	c.circuitOpenUntil = time.Time{}
	c.lastActivity = c.opts.Now()
	id := c.sessionID
	s, changed := c.setStateLocked(StateConnected)
	c.mu.Unlock()

	monitoring.ConnectAttemptsTotal.WithLabelValues("ok").Inc()
	log.WithFields(log.Fields{"credential": label, "session_id": id, "model": cfg.Model}).Info("upstream session connected")
	c.announce(s, changed, label)
	return nil
}

// recordFailure classifies err and applies the matching pool action.
func (c *Controller) recordFailure(label string, err error, op string) apperrors.Class {
	class := apperrors.Classify(err)
	var perr error
	switch class {
	case apperrors.ClassRateLimit:
		perr = c.opts.Pool.HandleRateLimit(label, time.Time{})
	case apperrors.ClassInvalidCredential:
		perr = c.opts.Pool.HandleInvalid(label)
	default:
		// transient and unknown failures do not condemn the credential
		perr = c.opts.Pool.MarkUsed(label, false)
	}
	if perr != nil && !errors.Is(perr, credential.ErrCredentialNotFound) {
		log.WithError(perr).WithField("credential", label).Warn("failed to update credential state")
	}
	monitoring.CredentialErrors.WithLabelValues(label, class.String()).Inc()
	monitoring.SessionErrors.WithLabelValues(op, class.String()).Inc()
	return class
}

// noteError counts one failure and reports whether the breaker must open.
func (c *Controller) noteError() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.consecutiveErrors++
	if c.consecutiveErrors < c.opts.MaxConsecutiveErrors {
		return time.Time{}, false
	}
	return c.opts.Now().Add(c.circuitWindow()), true
}

// openCircuit drops any session and fast-fails connects until until.
func (c *Controller) openCircuit(until time.Time) {
	c.mu.Lock()
	c.circuitOpenUntil = until
	stale := c.session
	c.session = nil
	label := c.activeLabel
	errs := c.consecutiveErrors
	s, changed := c.setStateLocked(StateCircuitOpen)
	c.mu.Unlock()

	if stale != nil {
		_ = stale.Close()
	}
	monitoring.CircuitOpensTotal.Inc()
	log.WithFields(log.Fields{"until": until.Format(time.RFC3339), "consecutive_errors": errs}).Error("circuit breaker opened")
	c.announce(s, changed, label)
}

func (c *Controller) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Controller) settleDisconnected() {
	c.mu.Lock()
	if c.state == StateCircuitOpen {
		c.mu.Unlock()
		return
	}
	s, changed := c.setStateLocked(StateDisconnected)
	label := c.activeLabel
	c.mu.Unlock()
	c.announce(s, changed, label)
}

// maybeRotate moves off the failed credential once the rotation cooldown has passed.
// If the pool already moved on by itself, that counts as the rotation. The pool's
// rotation switch only governs rate limits; the cooldown alone limits this path.
func (c *Controller) maybeRotate(failed string) {
	now := c.opts.Now()
	if c.opts.Pool.CurrentLabel() != failed {
		c.mu.Lock()
		c.lastRotation = now
		c.mu.Unlock()
		return
	}
	c.mu.Lock()
	last := c.lastRotation
	c.mu.Unlock()
	if !last.IsZero() && now.Sub(last) < c.opts.RotationCooldown {
		log.WithField("credential", failed).Debug("rotation cooldown active, retrying same credential")
		return
	}

	rec, err := c.opts.Pool.Rotate()
	if err != nil || rec == nil || rec.Label == failed {
		return
	}
	c.mu.Lock()
	c.lastRotation = now
	c.mu.Unlock()
	log.WithFields(log.Fields{"credential": rec.Label, "previous": failed}).Info("rotated to next credential")
}

func (c *Controller) currentResumeHandle(ctx context.Context) string {
	c.mu.Lock()
	handle := c.resumeHandle
	c.mu.Unlock()
	if handle != "" || c.opts.Resume == nil {
		return handle
	}
	stored, err := c.opts.Resume.Load(ctx)
	if err != nil {
		log.WithError(err).Debug("resume handle unavailable")
		return ""
	}
	return stored
}
