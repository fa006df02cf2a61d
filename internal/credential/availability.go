package credential

import (
	"time"

	log "github.com/sirupsen/logrus"
)

// isAvailable decides whether r may be used at now. It corrects the record in place:
// an expired rate limit is lifted and a record at its error threshold is disabled.
// The caller must hold the pool lock. The return value reports availability and
// whether the record was modified.
func isAvailable(r *Record, now time.Time) (available bool, changed bool) {
	switch r.Status {
	case StatusDisabled, StatusInvalid, StatusExpired:
		return false, false
	case StatusRateLimited:
		if r.RateLimitResetAt == nil || now.Before(*r.RateLimitResetAt) {
			return false, false
		}
		r.Status = StatusActive
		r.RateLimitResetAt = nil
		changed = true
		log.WithField("credential", r.Label).Info("rate limit window passed, credential reactivated")
	}

	if r.ErrorCount >= r.maxErrors() {
		r.Status = StatusDisabled
		log.WithField("credential", r.Label).Warnf("credential disabled after %d errors", r.ErrorCount)
		return false, true
	}
	return true, changed
}
