package session

import (
	"context"
	"time"

	"geminivoice-go/internal/credential"

	log "github.com/sirupsen/logrus"
)

// Status is the caller-facing view of the connection.
type Status struct {
	Connected         bool              `json:"connected"`
	State             string            `json:"state"`
	SessionID         string            `json:"session_id,omitempty"`
	Model             string            `json:"model,omitempty"`
	Voice             string            `json:"voice,omitempty"`
	Credential        string            `json:"credential,omitempty"`
	CredentialStatus  credential.Status `json:"credential_status,omitempty"`
	ConsecutiveErrors int               `json:"consecutive_errors"`
	IdleSeconds       float64           `json:"idle_seconds"`
	Healthy           bool              `json:"healthy"`
	CircuitOpenUntil  *time.Time        `json:"circuit_open_until,omitempty"`
	ResumeAvailable   bool              `json:"resume_available"`
	Credentials       credential.Stats  `json:"credentials"`
}

// CheckHealth is false when disconnected, idle for more than twice the activity check
// interval, or after half the error budget has been used.
func (c *Controller) CheckHealth() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.healthyLocked(c.opts.Now())
}

func (c *Controller) healthyLocked(now time.Time) bool {
	if c.state != StateConnected || c.session == nil {
		return false
	}
	if now.Sub(c.lastActivity) > 2*c.opts.ActivityCheckInterval {
		return false
	}
	return c.consecutiveErrors < c.opts.MaxConsecutiveErrors/2
}

// Status snapshots the connection and the pool.
func (c *Controller) Status() Status {
	stats := c.opts.Pool.Stats()

	c.mu.Lock()
	now := c.opts.Now()
	st := Status{
		Connected:         c.state == StateConnected && c.session != nil,
		State:             c.state.String(),
		SessionID:         c.sessionID,
		Model:             c.cfg.Model,
		Voice:             c.cfg.VoiceName,
		Credential:        c.activeLabel,
		ConsecutiveErrors: c.consecutiveErrors,
		Healthy:           c.healthyLocked(now),
		ResumeAvailable:   c.resumeHandle != "",
		Credentials:       stats,
	}
	if !c.lastActivity.IsZero() {
		st.IdleSeconds = now.Sub(c.lastActivity).Seconds()
	}
	if !c.circuitOpenUntil.IsZero() && now.Before(c.circuitOpenUntil) {
		until := c.circuitOpenUntil
		st.CircuitOpenUntil = &until
	}
	c.mu.Unlock()

	for _, k := range stats.Keys {
		if k.Label == st.Credential {
			st.CredentialStatus = k.Status
			break
		}
	}
	return st
}

// RunWatchdog reconnects an unhealthy open session every activity check interval until
// ctx is cancelled.
func (c *Controller) RunWatchdog(ctx context.Context) error {
	ticker := time.NewTicker(c.opts.ActivityCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.watchdogTick(ctx)
		}
	}
}

func (c *Controller) watchdogTick(ctx context.Context) {
	c.mu.Lock()
	open := c.state == StateConnected && c.session != nil
	healthy := c.healthyLocked(c.opts.Now())
	c.mu.Unlock()
	if !open || healthy {
		return
	}
	log.Warn("upstream session unhealthy, reconnecting")
	if err := c.Reconnect(ctx); err != nil && ctx.Err() == nil {
		log.WithError(err).Error("watchdog reconnect failed")
	}
}
