package credential

import (
	"time"
)

// update runs fn on the named record under the pool lock and persists the result.
func (p *Pool) update(label string, m mutation, fn func(i int, r *Record) error) error {
	p.mu.Lock()
	i, r, err := p.findLocked(label)
	if err == nil {
		err = fn(i, r)
	}
	if err != nil {
		p.mu.Unlock()
		return err
	}
	snap := p.commitLocked()
	p.mu.Unlock()
	if m.label == "" {
		m.label = label
	}
	p.publish(snap, m)
	return nil
}

// MarkUsed records a use attempt. Success forgives one error, failure adds one,
// capped at the record's threshold.
func (p *Pool) MarkUsed(label string, success bool) error {
	action := "used"
	if !success {
		action = "failed"
	}
	return p.update(label, mutation{action: action}, func(_ int, r *Record) error {
		r.LastUsedAt = timePtr(p.now())
		r.UsageCount++
		if success {
			r.recordSuccess()
			return nil
		}
		r.recordFailure()
		logCredential(label).Warnf("credential error count: %d/%d", r.ErrorCount, r.maxErrors())
		return nil
	})
}

// HandleRateLimit marks the credential rate limited until resetAt, or for
// DefaultRateLimitWindow when resetAt is zero. If it was the current credential and
// rotation is enabled, the rotation index moves on.
func (p *Pool) HandleRateLimit(label string, resetAt time.Time) error {
	return p.update(label, mutation{action: "rate_limited", reason: "rate_limit"}, func(i int, r *Record) error {
		if resetAt.IsZero() {
			resetAt = p.now().Add(DefaultRateLimitWindow)
		}
		r.Status = StatusRateLimited
		r.RateLimitResetAt = timePtr(resetAt)
		logCredential(label).Warnf("credential rate limited until %s", resetAt.Format(time.RFC3339))
		if p.rotationEnabled && i == p.index {
			p.advanceLocked("rate_limit")
		}
		return nil
	})
}

// HandleInvalid marks the credential invalid, which Enable refuses to undo. If it was
// the current credential the rotation index moves on.
func (p *Pool) HandleInvalid(label string) error {
	return p.update(label, mutation{action: "invalidated", reason: "invalid"}, func(i int, r *Record) error {
		r.Status = StatusInvalid
		r.RateLimitResetAt = nil
		logCredential(label).Error("credential rejected by upstream, marked invalid")
		if i == p.index {
			p.advanceLocked("invalid")
		}
		return nil
	})
}

// ResetErrors clears the error counter and lifts an automatic disable.
func (p *Pool) ResetErrors(label string) error {
	return p.update(label, mutation{action: "errors_reset"}, func(_ int, r *Record) error {
		r.ErrorCount = 0
		if r.Status == StatusDisabled {
			r.Status = StatusActive
		}
		logCredential(label).Info("reset credential errors")
		return nil
	})
}

// Disable takes the credential out of rotation until Enable or ResetErrors.
func (p *Pool) Disable(label string) error {
	return p.update(label, mutation{action: "disabled"}, func(_ int, r *Record) error {
		r.Status = StatusDisabled
		logCredential(label).Info("disabled credential")
		return nil
	})
}

// Enable reactivates a credential and clears its errors. Invalid credentials are refused.
func (p *Pool) Enable(label string) error {
	return p.update(label, mutation{action: "enabled"}, func(_ int, r *Record) error {
		if r.Status == StatusInvalid {
			return ErrCredentialInvalid
		}
		r.Status = StatusActive
		r.ErrorCount = 0
		r.RateLimitResetAt = nil
		logCredential(label).Info("enabled credential")
		return nil
	})
}

// SetRotationEnabled switches automatic rotation on rate limits.
func (p *Pool) SetRotationEnabled(enabled bool) {
	p.mu.Lock()
	if p.rotationEnabled == enabled {
		p.mu.Unlock()
		return
	}
	p.rotationEnabled = enabled
	snap := p.commitLocked()
	p.mu.Unlock()
	p.publish(snap, mutation{action: "rotation_toggled"})
}

// HealthCheck is the periodic sweep: expired rate limits are lifted, and disabled
// credentials idle for over an hour are forgiven one error, coming back once below
// their threshold. Invalid credentials are left alone. It returns how many records changed.
func (p *Pool) HealthCheck() int {
	p.mu.Lock()
	now := p.now()
	updated := 0
	for _, r := range p.records {
		switch r.Status {
		case StatusRateLimited:
			if r.RateLimitResetAt != nil && !now.Before(*r.RateLimitResetAt) {
				r.Status = StatusActive
				r.RateLimitResetAt = nil
				logCredential(r.Label).Info("rate limit expired, credential reactivated")
				updated++
			}
		case StatusDisabled:
			if r.LastUsedAt == nil || now.Sub(*r.LastUsedAt) <= disabledDecayAfter {
				continue
			}
			if r.ErrorCount > 0 {
				r.ErrorCount--
			}
			if r.ErrorCount < r.maxErrors() {
				r.Status = StatusActive
				logCredential(r.Label).Info("credential error count decayed, reactivated")
			}
			updated++
		}
	}
	if updated == 0 {
		p.mu.Unlock()
		return 0
	}
	snap := p.commitLocked()
	p.mu.Unlock()
	p.publish(snap, mutation{action: "health_sweep"})
	return updated
}
