package credential

import (
	"context"
	"sync"
	"testing"
	"time"

	"geminivoice-go/internal/storage"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type staticSource struct {
	name    string
	records []*Record
}

func (s *staticSource) Name() string { return s.name }

func (s *staticSource) Load(ctx context.Context) ([]*Record, error) {
	out := make([]*Record, len(s.records))
	for i, r := range s.records {
		out[i] = r.Clone()
	}
	return out, nil
}

func envRecords(labels ...string) *staticSource {
	src := &staticSource{name: "env"}
	for _, l := range labels {
		src.records = append(src.records, NewRecord(l, "secret-for-"+l+"-0123456789", OriginEnv))
	}
	return src
}

// countingStore records every saved document.
type countingStore struct {
	mu       sync.Mutex
	saved    []*Metadata
	doc      *Metadata
	err      error
	attempts int
}

func (s *countingStore) LoadMetadata(ctx context.Context) (*Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc, nil
}

func (s *countingStore) SaveMetadata(ctx context.Context, md *Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, md)
	s.doc = md
	return nil
}

func (s *countingStore) tries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

func (s *countingStore) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *countingStore) writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved)
}

func newFileStore(t *testing.T) (*DocumentStore, *storage.FileBackend) {
	t.Helper()
	fb := storage.NewFileBackend(t.TempDir())
	require.NoError(t, fb.Initialize(context.Background()))
	return NewDocumentStore(fb), fb
}

// newTestPool loads a pool from env-style labels and stops the persister on cleanup.
func newTestPool(t *testing.T, clock *fakeClock, store MetadataStore, labels ...string) *Pool {
	t.Helper()
	opts := Options{Sources: []Source{envRecords(labels...)}, Now: clock.Now}
	if store != nil {
		opts.Store = store
	}
	p := NewPool(opts)
	t.Cleanup(func() { _ = p.Close(context.Background()) })
	require.NoError(t, p.Load(context.Background()))
	return p
}
