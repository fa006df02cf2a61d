package credential

import "time"

// RecordStats is the per-credential part of Stats. Secrets appear only masked.
type RecordStats struct {
	Label            string     `json:"name"`
	Masked           string     `json:"key"`
	Status           Status     `json:"status"`
	Origin           Origin     `json:"source"`
	UsageCount       int64      `json:"usage_count"`
	ErrorCount       int        `json:"error_count"`
	MaxErrors        int        `json:"max_errors"`
	LastUsedAt       *time.Time `json:"last_used"`
	RateLimitResetAt *time.Time `json:"rate_limit_reset"`
	Current          bool       `json:"current"`
}

// Stats is a read-only view of the pool.
type Stats struct {
	Total           int            `json:"total_keys"`
	Active          int            `json:"active_keys"`
	RateLimited     int            `json:"rate_limited_keys"`
	Disabled        int            `json:"disabled_keys"`
	Invalid         int            `json:"invalid_keys"`
	Expired         int            `json:"expired_keys"`
	CurrentLabel    string         `json:"current_key,omitempty"`
	RotationEnabled bool           `json:"rotation_enabled"`
	Keys            []RecordStats  `json:"keys"`
	ByStatus        map[Status]int `json:"-"`
}

// Stats reports counts per status and per-record counters without mutating anything.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := Stats{
		Total:           len(p.records),
		RotationEnabled: p.rotationEnabled,
		Keys:            make([]RecordStats, 0, len(p.records)),
		ByStatus:        make(map[Status]int, len(AllStatuses)),
	}
	for i, r := range p.records {
		st.ByStatus[r.Status]++
		current := i == p.index
		if current {
			st.CurrentLabel = r.Label
		}
		st.Keys = append(st.Keys, RecordStats{
			Label:            r.Label,
			Masked:           r.Secret.String(),
			Status:           r.Status,
			Origin:           r.Origin,
			UsageCount:       r.UsageCount,
			ErrorCount:       r.ErrorCount,
			MaxErrors:        r.maxErrors(),
			LastUsedAt:       cloneTime(r.LastUsedAt),
			RateLimitResetAt: cloneTime(r.RateLimitResetAt),
			Current:          current,
		})
	}
	st.Active = st.ByStatus[StatusActive]
	st.RateLimited = st.ByStatus[StatusRateLimited]
	st.Disabled = st.ByStatus[StatusDisabled]
	st.Invalid = st.ByStatus[StatusInvalid]
	st.Expired = st.ByStatus[StatusExpired]
	return st
}

// Get returns a copy of the named record.
func (p *Pool) Get(label string) (*Record, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, r, err := p.findLocked(label)
	if err != nil {
		return nil, err
	}
	return r.Clone(), nil
}

// CurrentLabel names the record at the rotation index without evaluating it.
func (p *Pool) CurrentLabel() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.records) == 0 {
		return ""
	}
	return p.records[p.index].Label
}
