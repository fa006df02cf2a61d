package credential

import (
	"geminivoice-go/internal/monitoring"
)

// Current returns the credential at the rotation index when it is available, otherwise
// the next available one. At most one full pass over the pool is made. The returned
// record is a copy; report outcomes back by label.
func (p *Pool) Current() (*Record, error) {
	p.mu.Lock()
	rec, changed, err := p.currentLocked()
	return p.unlockWith(rec, changed, err, mutation{action: "refreshed"})
}

// currentLocked walks forward from the rotation index, visiting each record once.
func (p *Pool) currentLocked() (*Record, bool, error) {
	n := len(p.records)
	if n == 0 {
		return nil, false, ErrNoCredentials
	}
	now := p.now()
	start := p.index
	changed := false
	for i := 0; i < n; i++ {
		r := p.records[p.index]
		ok, corrected := isAvailable(r, now)
		changed = changed || corrected
		if ok {
			if p.index != start {
				changed = true
				monitoring.CredentialRotationsTotal.WithLabelValues("unavailable").Inc()
			}
			return r, changed, nil
		}
		p.index = (p.index + 1) % n
	}
	return nil, changed || p.index != start, ErrNoAvailableCredential
}

// Rotate moves past the current credential to the next available one without touching
// the current record. With one credential, or when nothing else is available, it
// behaves like Current.
func (p *Pool) Rotate() (*Record, error) {
	p.mu.Lock()
	n := len(p.records)
	if n <= 1 {
		rec, changed, err := p.currentLocked()
		return p.unlockWith(rec, changed, err, mutation{action: "refreshed"})
	}

	start := p.index
	now := p.now()
	changed := false
	for step := 1; step < n; step++ {
		i := (start + step) % n
		ok, corrected := isAvailable(p.records[i], now)
		changed = changed || corrected
		if !ok {
			continue
		}
		p.index = i
		from, to := p.records[start].Label, p.records[i].Label
		monitoring.CredentialRotationsTotal.WithLabelValues("rotate").Inc()
		logCredential(to).WithField("previous", from).Info("rotated credential")
		return p.unlockWith(p.records[i], true, nil, mutation{action: "rotated", label: to})
	}

	logCredential(p.records[start].Label).Debug("no other credential available, keeping current")
	rec, corrected, err := p.currentLocked()
	return p.unlockWith(rec, changed || corrected, err, mutation{action: "refreshed"})
}

// advanceLocked steps the rotation index by one.
func (p *Pool) advanceLocked(reason string) {
	if len(p.records) <= 1 {
		return
	}
	p.index = (p.index + 1) % len(p.records)
	monitoring.CredentialRotationsTotal.WithLabelValues(reason).Inc()
}

// unlockWith releases p.mu, persists when something changed and returns a copy of rec.
func (p *Pool) unlockWith(rec *Record, changed bool, err error, m mutation) (*Record, error) {
	var snap *snapshot
	if changed {
		snap = p.commitLocked()
	}
	out := rec.Clone()
	p.mu.Unlock()
	p.publish(snap, m)
	return out, err
}
