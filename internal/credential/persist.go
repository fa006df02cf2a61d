package credential

import (
	"context"
	"sync"
	"time"

	"geminivoice-go/internal/monitoring"

	log "github.com/sirupsen/logrus"
)

const (
	persistTimeout    = 10 * time.Second
	persistRetryDelay = 2 * time.Second
)

// snapshot is an immutable copy of the pool state taken under the pool lock.
type snapshot struct {
	version  uint64
	records  []*Record
	index    int
	rotation bool
}

func (s *snapshot) metadata(now time.Time) (*Metadata, error) {
	md := &Metadata{
		Keys:            make([]KeyEntry, 0, len(s.records)),
		CurrentIndex:    s.index,
		RotationEnabled: s.rotation,
		LastUpdated:     now.Format(time.RFC3339Nano),
	}
	for _, r := range s.records {
		if !r.Origin.Persisted() {
			continue
		}
		entry, err := entryFromRecord(r)
		if err != nil {
			return nil, err
		}
		md.Keys = append(md.Keys, entry)
	}
	return md, nil
}

// persister is the single writer for the metadata document. Submitting never blocks:
// only the newest snapshot is kept, and a wake-up signal is dropped if one is
// already pending. Writes are serialized by writeMu and never go backwards in version.
type persister struct {
	store      MetadataStore
	now        func() time.Time
	retryDelay time.Duration

	mu      sync.Mutex
	pending *snapshot

	writeMu sync.Mutex
	written uint64

	signal chan struct{}
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once
}

func newPersister(store MetadataStore, now func() time.Time) *persister {
	p := &persister{
		store:      store,
		now:        now,
		retryDelay: persistRetryDelay,
		signal:     make(chan struct{}, 1),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *persister) submit(s *snapshot) {
	if s == nil {
		return
	}
	p.mu.Lock()
	if p.pending == nil || s.version > p.pending.version {
		p.pending = s
	}
	p.mu.Unlock()
	p.wake()
}

// wake nudges the writer loop; a pending nudge is enough.
func (p *persister) wake() {
	select {
	case p.signal <- struct{}{}:
	default:
	}
}

func (p *persister) run() {
	defer close(p.done)
	for {
		select {
		case <-p.stop:
			return
		case <-p.signal:
			ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
			if err := p.writePending(ctx); err != nil {
				log.WithError(err).Warnf("credential metadata persist failed, retrying in %s", p.retryDelay)
				time.AfterFunc(p.retryDelay, p.wake)
			}
			cancel()
		}
	}
}

func (p *persister) writePending(ctx context.Context) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	p.mu.Lock()
	snap := p.pending
	p.pending = nil
	p.mu.Unlock()

	if snap == nil || snap.version <= p.written {
		return nil
	}

	md, err := snap.metadata(p.now())
	if err == nil {
		err = p.store.SaveMetadata(ctx, md)
	}
	if err != nil {
		monitoring.PersistWritesTotal.WithLabelValues("error").Inc()
		// keep the snapshot for the next attempt unless something newer arrived
		p.mu.Lock()
		if p.pending == nil {
			p.pending = snap
		}
		p.mu.Unlock()
		return err
	}
	p.written = snap.version
	monitoring.PersistWritesTotal.WithLabelValues("ok").Inc()
	return nil
}

// flush writes whatever is pending on the caller's goroutine.
func (p *persister) flush(ctx context.Context) error {
	return p.writePending(ctx)
}

// close stops the background loop and performs a final flush.
func (p *persister) close(ctx context.Context) error {
	p.once.Do(func() { close(p.stop) })
	select {
	case <-p.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return p.flush(ctx)
}
