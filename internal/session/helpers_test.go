package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"geminivoice-go/internal/credential"
	"geminivoice-go/internal/upstream"
	"geminivoice-go/internal/upstream/upstreamtest"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 5, 2, 18, 0, 0, 0, time.UTC)}
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

type labelSource []string

func (s labelSource) Name() string { return "env" }

func (s labelSource) Load(ctx context.Context) ([]*credential.Record, error) {
	out := make([]*credential.Record, 0, len(s))
	for _, l := range s {
		out = append(out, credential.NewRecord(l, secretFor(l), credential.OriginEnv))
	}
	return out, nil
}

func secretFor(label string) string { return "secret-for-" + label + "-0123456789" }

type harness struct {
	c     *Controller
	pool  *credential.Pool
	tr    *upstreamtest.Transport
	clock *fakeClock

	mu     sync.Mutex
	sleeps []time.Duration
}

// newHarness wires a controller to an in-memory pool and a fake transport. Backoff
// sleeps advance the fake clock instead of blocking.
func newHarness(t *testing.T, fn upstreamtest.OpenFunc, tweak func(*Options), labels ...string) *harness {
	t.Helper()
	h := &harness{clock: newFakeClock(), tr: upstreamtest.NewTransport(fn)}
	h.pool = credential.NewPool(credential.Options{
		Sources: []credential.Source{labelSource(labels)},
		Now:     h.clock.Now,
	})
	require.NoError(t, h.pool.Load(context.Background()))
	t.Cleanup(func() { _ = h.pool.Close(context.Background()) })

	opts := Options{
		Pool:      h.pool,
		Transport: h.tr,
		Now:       h.clock.Now,
		Rand:      func() float64 { return 0 },
		Sleep: func(ctx context.Context, d time.Duration) error {
			h.mu.Lock()
			h.sleeps = append(h.sleeps, d)
			h.mu.Unlock()
			h.clock.Advance(d)
			return ctx.Err()
		},
	}
	if tweak != nil {
		tweak(&opts)
	}
	h.c = New(opts)
	t.Cleanup(func() { _ = h.c.Close(context.Background()) })
	return h
}

func (h *harness) slept() []time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]time.Duration(nil), h.sleeps...)
}

func (h *harness) record(t *testing.T, label string) *credential.Record {
	t.Helper()
	rec, err := h.pool.Get(label)
	require.NoError(t, err)
	return rec
}

func testConfig() upstream.SessionConfig {
	return upstream.SessionConfig{Model: "models/test-live", VoiceName: "Puck"}
}
