package session

import (
	"context"
	"errors"

	"geminivoice-go/internal/monitoring"

	log "github.com/sirupsen/logrus"
)

// AutoReconnect restores the session with the last configuration. Callers racing into
// it wait on the reconnect lock and return as soon as the winner has connected.
func (c *Controller) AutoReconnect(ctx context.Context) error {
	return c.reconnect(ctx, false)
}

// Reconnect replaces the current session even if it is still healthy.
func (c *Controller) Reconnect(ctx context.Context) error {
	return c.reconnect(ctx, true)
}

func (c *Controller) reconnect(ctx context.Context, force bool) error {
	c.reconnectMu.Lock()
	defer c.reconnectMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if !force && c.state == StateConnected && c.session != nil {
		c.mu.Unlock()
		return nil
	}
	if !c.hasConfig {
		c.mu.Unlock()
		return ErrNotConnected
	}
	cfg := c.cfg
	stale := c.session
	c.session = nil
	c.mu.Unlock()

	if stale != nil {
		_ = stale.Close()
	}

	log.WithField("forced", force).Info("reconnecting upstream session")
	err := c.connectLocked(ctx, cfg, 0, StateReconnecting)
	switch {
	case err == nil:
		monitoring.ReconnectsTotal.WithLabelValues("ok").Inc()
	case IsCircuitOpen(err):
		monitoring.ReconnectsTotal.WithLabelValues("circuit_open").Inc()
	case errors.Is(err, context.Canceled), errors.Is(err, ErrClosed):
		monitoring.ReconnectsTotal.WithLabelValues("aborted").Inc()
	default:
		monitoring.ReconnectsTotal.WithLabelValues("error").Inc()
		log.WithError(err).Error("upstream reconnect failed")
	}
	return err
}

// ForceRotate moves the pool to the next available credential and, when a session is
// open, reconnects on it. It returns the label now in use.
func (c *Controller) ForceRotate(ctx context.Context) (string, error) {
	rec, err := c.opts.Pool.Rotate()
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	c.lastRotation = c.opts.Now()
	connected := c.state == StateConnected && c.session != nil
	c.mu.Unlock()

	log.WithField("credential", rec.Label).Info("manual credential rotation")
	if !connected {
		return rec.Label, nil
	}
	if err := c.Reconnect(ctx); err != nil {
		return rec.Label, err
	}
	return rec.Label, nil
}

// Close ends the session. Pending and future reconnects fail with ErrClosed until the
// next Connect.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	stale := c.session
	c.session = nil
	c.generation++
	label := c.activeLabel
	s, changed := c.setStateLocked(StateDisconnected)
	c.mu.Unlock()

	c.announce(s, changed, label)
	if stale == nil {
		return nil
	}
	log.WithField("credential", label).Info("closing upstream session")
	return stale.Close()
}
