package credential

import (
	"context"
	"fmt"

	"geminivoice-go/internal/events"

	log "github.com/sirupsen/logrus"
)

// Load merges trusted sources with the persisted metadata document. Source records come
// first and win over document records holding the same secret. Load may be called
// again to reload; the previous in-memory state is replaced.
func (p *Pool) Load(ctx context.Context) error {
	merged := make([]*Record, 0)
	secrets := make(map[string]struct{})
	labels := make(map[string]struct{})

	accept := func(r *Record, from string) bool {
		if r == nil || r.Secret.IsEmpty() || r.Label == "" {
			return false
		}
		if _, dup := secrets[r.Secret.Fingerprint()]; dup {
			log.WithField("credential", r.Label).Debugf("skipping %s credential already loaded", from)
			return false
		}
		if _, dup := labels[r.Label]; dup {
			log.WithField("credential", r.Label).Warnf("duplicate credential label from %s, skipping", from)
			return false
		}
		secrets[r.Secret.Fingerprint()] = struct{}{}
		labels[r.Label] = struct{}{}
		merged = append(merged, r)
		return true
	}

	for _, src := range p.sources {
		recs, err := src.Load(ctx)
		if err != nil {
			log.WithError(err).Warnf("credential source %s load failed", src.Name())
		}
		for _, r := range recs {
			accept(r, src.Name())
		}
	}

	var md *Metadata
	if p.store != nil {
		var err error
		md, err = p.store.LoadMetadata(ctx)
		if err != nil {
			// a broken document must not hide trusted credentials
			log.WithError(err).Error("failed to load credential metadata")
			md = nil
		}
	}
	if md != nil {
		for _, entry := range md.Keys {
			r, err := recordFromEntry(entry)
			if err != nil {
				log.WithError(err).WithField("credential", entry.Name).Warn("skipping unreadable credential entry")
				continue
			}
			accept(r, "metadata")
		}
	}

	if len(merged) == 0 {
		log.Error("no credentials loaded; set GEMINI_API_KEY or add a key with voicectl")
		return ErrNoCredentials
	}

	p.mu.Lock()
	p.records = merged
	p.index = 0
	if md != nil {
		p.rotationEnabled = md.RotationEnabled
		if md.CurrentIndex >= 0 {
			p.index = md.CurrentIndex % len(merged)
		}
	}
	labelsOut := make([]string, 0, len(merged))
	for _, r := range merged {
		labelsOut = append(labelsOut, r.Label)
	}
	p.refreshGaugesLocked()
	p.mu.Unlock()

	log.Infof("Loaded %d credential(s)", len(merged))
	if p.publisher != nil {
		p.publisher.Publish(ctx, events.TopicCredentialsSynced, map[string]any{
			"count":  len(merged),
			"labels": labelsOut,
		}, map[string]string{"source": "credential_pool"})
	}
	return nil
}

// AddKey pools a new administrator-supplied credential and persists it.
func (p *Pool) AddKey(label, secret string) error {
	if label == "" || secret == "" {
		return fmt.Errorf("label and secret are required")
	}
	rec := NewRecord(label, secret, OriginAdmin)

	p.mu.Lock()
	for _, r := range p.records {
		if r.Label == label || r.Secret.Equal(rec.Secret) {
			p.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrDuplicate, label)
		}
	}
	p.records = append(p.records, rec)
	snap := p.commitLocked()
	p.mu.Unlock()

	logCredential(label).Info("added credential")
	p.publish(snap, mutation{action: "added", label: label})
	return nil
}
