package credential

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"geminivoice-go/internal/events"
	"geminivoice-go/internal/monitoring"

	log "github.com/sirupsen/logrus"
)

var (
	// ErrNoCredentials means load found nothing in any source or in the metadata document.
	ErrNoCredentials = errors.New("no credentials configured")
	// ErrNoAvailableCredential means every pooled credential is currently unusable.
	ErrNoAvailableCredential = errors.New("no available credential")
	// ErrCredentialNotFound is returned for an unknown label.
	ErrCredentialNotFound = errors.New("credential not found")
	// ErrCredentialInvalid is returned when enabling a credential the upstream rejected.
	ErrCredentialInvalid = errors.New("credential is invalid and cannot be re-enabled")
	// ErrDuplicate is returned when adding a label or secret that is already pooled.
	ErrDuplicate = errors.New("credential already exists")
)

// Options configure a Pool.
type Options struct {
	// Sources are trusted origins (environment, keychain) consulted in order.
	Sources []Source
	// Store persists file and admin credentials. Nil disables persistence.
	Store MetadataStore
	// Publisher receives credential events. Optional.
	Publisher events.Publisher
	// DisableRotation starts with rotation switched off. A persisted setting wins.
	DisableRotation bool
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Pool owns the credential records and the rotation index. A single mutex guards
// every read-modify-write; persistence happens after the lock is released.
type Pool struct {
	mu              sync.Mutex
	records         []*Record
	index           int
	rotationEnabled bool
	version         uint64

	sources   []Source
	store     MetadataStore
	persister *persister
	publisher events.Publisher
	now       func() time.Time
}

// NewPool builds an empty pool. Call Load before use.
func NewPool(opts Options) *Pool {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	p := &Pool{
		rotationEnabled: !opts.DisableRotation,
		store:           opts.Store,
		publisher:       opts.Publisher,
		now:             now,
	}
	for _, src := range opts.Sources {
		if src != nil {
			p.sources = append(p.sources, src)
		}
	}
	if p.store != nil {
		p.persister = newPersister(p.store, now)
	}
	return p
}

// mutation describes one state change for logging and events.
type mutation struct {
	action string
	label  string
	reason string
}

// commitLocked bumps the version and captures the state for the persister. It must be
// called with p.mu held; the returned snapshot is handed to publish after unlocking.
func (p *Pool) commitLocked() *snapshot {
	p.version++
	records := make([]*Record, len(p.records))
	for i, r := range p.records {
		records[i] = r.Clone()
	}
	return &snapshot{
		version:  p.version,
		records:  records,
		index:    p.index,
		rotation: p.rotationEnabled,
	}
}

// publish runs outside the lock: queue the write, refresh gauges, emit the event.
func (p *Pool) publish(snap *snapshot, m mutation) {
	if snap == nil {
		return
	}
	if p.persister != nil {
		p.persister.submit(snap)
	}
	monitoring.SetCredentialCounts(statusCounts(snap.records))

	var changed *Record
	for _, r := range snap.records {
		if r.Label == m.label {
			changed = r
		}
	}

	if p.publisher == nil || m.action == "" {
		return
	}
	payload := map[string]any{"action": m.action}
	if changed != nil {
		payload["label"] = changed.Label
		payload["status"] = string(changed.Status)
		payload["usage_count"] = changed.UsageCount
		payload["error_count"] = changed.ErrorCount
	}
	meta := map[string]string{"source": "credential_pool"}
	if m.reason != "" {
		meta["reason"] = m.reason
	}
	p.publisher.Publish(context.Background(), events.TopicCredentialChanged, payload, meta)
}

func statusCounts(records []*Record) map[string]int {
	counts := make(map[string]int, len(AllStatuses))
	for _, st := range AllStatuses {
		counts[string(st)] = 0
	}
	for _, r := range records {
		counts[string(r.Status)]++
	}
	return counts
}

func (p *Pool) refreshGaugesLocked() {
	monitoring.SetCredentialCounts(statusCounts(p.records))
}

// Flush writes pending metadata synchronously.
func (p *Pool) Flush(ctx context.Context) error {
	if p.persister == nil {
		return nil
	}
	return p.persister.flush(ctx)
}

// Close stops the persister after a final write.
func (p *Pool) Close(ctx context.Context) error {
	if p.persister == nil {
		return nil
	}
	return p.persister.close(ctx)
}

// Len returns the number of pooled credentials.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.records)
}

// RotationEnabled reports whether rate limits advance the rotation index.
func (p *Pool) RotationEnabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rotationEnabled
}

func (p *Pool) findLocked(label string) (int, *Record, error) {
	for i, r := range p.records {
		if r.Label == label {
			return i, r, nil
		}
	}
	return -1, nil, fmt.Errorf("%w: %s", ErrCredentialNotFound, label)
}

func logCredential(label string) *log.Entry {
	return log.WithField("credential", label)
}
