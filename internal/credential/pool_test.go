package credential

import (
	"context"
	"errors"
	"testing"
	"time"

	"geminivoice-go/internal/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFailsWithoutCredentials(t *testing.T) {
	p := NewPool(Options{Sources: []Source{&staticSource{name: "env"}}})
	err := p.Load(context.Background())
	require.ErrorIs(t, err, ErrNoCredentials)
}

func TestCurrentSkipsUnavailableInOnePass(t *testing.T) {
	clock := newFakeClock()
	p := newTestPool(t, clock, nil, "a", "b", "c")

	require.NoError(t, p.Disable("a"))
	require.NoError(t, p.HandleInvalid("b"))

	rec, err := p.Current()
	require.NoError(t, err)
	assert.Equal(t, "c", rec.Label)
	assert.Equal(t, "c", p.Stats().CurrentLabel)
}

func TestCurrentFailsAfterVisitingEveryRecordOnce(t *testing.T) {
	clock := newFakeClock()
	p := newTestPool(t, clock, nil, "a", "b", "c", "d")
	for _, l := range []string{"a", "b", "c", "d"} {
		require.NoError(t, p.Disable(l))
	}

	done := make(chan error, 1)
	go func() {
		_, err := p.Current()
		done <- err
	}()
	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrNoAvailableCredential)
	case <-time.After(2 * time.Second):
		t.Fatal("Current did not terminate")
	}
	// a full pass lands back where it started
	assert.Equal(t, "a", p.Stats().CurrentLabel)
}

func TestErrorCountIsBoundedAndDisablesLazily(t *testing.T) {
	clock := newFakeClock()
	p := newTestPool(t, clock, nil, "solo")

	for i := 0; i < DefaultMaxErrors+3; i++ {
		require.NoError(t, p.MarkUsed("solo", false))
	}
	rec, err := p.Get("solo")
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxErrors, rec.ErrorCount)
	// the threshold alone does not flip status; the next availability check does
	assert.Equal(t, StatusActive, rec.Status)

	_, err = p.Current()
	require.ErrorIs(t, err, ErrNoAvailableCredential)
	rec, _ = p.Get("solo")
	assert.Equal(t, StatusDisabled, rec.Status)
}

func TestSuccessDecrementsErrorCountByOne(t *testing.T) {
	clock := newFakeClock()
	p := newTestPool(t, clock, nil, "solo")

	require.NoError(t, p.MarkUsed("solo", true))
	rec, _ := p.Get("solo")
	assert.Equal(t, 0, rec.ErrorCount, "never below zero")

	require.NoError(t, p.MarkUsed("solo", false))
	require.NoError(t, p.MarkUsed("solo", false))
	require.NoError(t, p.MarkUsed("solo", true))
	rec, _ = p.Get("solo")
	assert.Equal(t, 1, rec.ErrorCount)
	assert.EqualValues(t, 4, rec.UsageCount)
	require.NotNil(t, rec.LastUsedAt)
	assert.True(t, rec.LastUsedAt.Equal(clock.Now()))
}

func TestDisabledAfterMaxErrorsThenResetErrors(t *testing.T) {
	clock := newFakeClock()
	p := newTestPool(t, clock, nil, "solo")

	for i := 0; i < 5; i++ {
		require.NoError(t, p.MarkUsed("solo", false))
	}
	_, err := p.Current()
	require.ErrorIs(t, err, ErrNoAvailableCredential)
	rec, _ := p.Get("solo")
	require.Equal(t, StatusDisabled, rec.Status)

	require.NoError(t, p.ResetErrors("solo"))
	rec, _ = p.Get("solo")
	assert.Equal(t, StatusActive, rec.Status)
	assert.Equal(t, 0, rec.ErrorCount)

	cur, err := p.Current()
	require.NoError(t, err)
	assert.Equal(t, "solo", cur.Label)
}

func TestExpiredRateLimitReactivatesOnCurrent(t *testing.T) {
	clock := newFakeClock()
	p := newTestPool(t, clock, nil, "solo")

	require.NoError(t, p.HandleRateLimit("solo", clock.Now().Add(-time.Second)))
	rec, _ := p.Get("solo")
	require.Equal(t, StatusRateLimited, rec.Status)

	cur, err := p.Current()
	require.NoError(t, err)
	assert.Equal(t, StatusActive, cur.Status)
	assert.Nil(t, cur.RateLimitResetAt)
}

func TestRateLimitWindowExpiresWithClock(t *testing.T) {
	clock := newFakeClock()
	p := newTestPool(t, clock, nil, "solo")

	require.NoError(t, p.HandleRateLimit("solo", time.Time{}))
	rec, _ := p.Get("solo")
	require.NotNil(t, rec.RateLimitResetAt)
	assert.True(t, rec.RateLimitResetAt.Equal(clock.Now().Add(60*time.Minute)))

	_, err := p.Current()
	require.ErrorIs(t, err, ErrNoAvailableCredential)

	clock.Advance(60 * time.Minute)
	cur, err := p.Current()
	require.NoError(t, err)
	assert.Equal(t, StatusActive, cur.Status)
}

func TestHandleRateLimitRotatesWhenEnabled(t *testing.T) {
	clock := newFakeClock()
	p := newTestPool(t, clock, nil, "a", "b")

	require.NoError(t, p.HandleRateLimit("a", time.Time{}))
	assert.Equal(t, "b", p.Stats().CurrentLabel)

	cur, err := p.Current()
	require.NoError(t, err)
	assert.Equal(t, "b", cur.Label)
}

func TestHandleRateLimitKeepsIndexWhenRotationDisabled(t *testing.T) {
	clock := newFakeClock()
	p := newTestPool(t, clock, nil, "a", "b")
	p.SetRotationEnabled(false)

	require.NoError(t, p.HandleRateLimit("a", time.Time{}))
	assert.Equal(t, "a", p.Stats().CurrentLabel)

	// selection still walks past the unavailable record
	cur, err := p.Current()
	require.NoError(t, err)
	assert.Equal(t, "b", cur.Label)
}

func TestHandleInvalidAndEnableRefusal(t *testing.T) {
	clock := newFakeClock()
	p := newTestPool(t, clock, nil, "a", "b")

	require.NoError(t, p.HandleInvalid("a"))
	assert.Equal(t, "b", p.Stats().CurrentLabel)

	err := p.Enable("a")
	require.ErrorIs(t, err, ErrCredentialInvalid)
	rec, _ := p.Get("a")
	assert.Equal(t, StatusInvalid, rec.Status)

	require.NoError(t, p.Disable("b"))
	require.NoError(t, p.Enable("b"))
	rec, _ = p.Get("b")
	assert.Equal(t, StatusActive, rec.Status)
}

func TestRotateIsNoOpForSingleCredential(t *testing.T) {
	clock := newFakeClock()
	p := newTestPool(t, clock, nil, "solo")

	rec, err := p.Rotate()
	require.NoError(t, err)
	assert.Equal(t, "solo", rec.Label)
}

func TestRotateSkipsUnavailableAndLeavesCurrentAlone(t *testing.T) {
	clock := newFakeClock()
	p := newTestPool(t, clock, nil, "a", "b", "c")
	require.NoError(t, p.Disable("b"))
	for i := 0; i < DefaultMaxErrors; i++ {
		require.NoError(t, p.MarkUsed("a", false))
	}

	rec, err := p.Rotate()
	require.NoError(t, err)
	assert.Equal(t, "c", rec.Label)

	a, _ := p.Get("a")
	assert.Equal(t, StatusActive, a.Status, "rotate must not evaluate the record it leaves")

	rec, err = p.Rotate()
	require.NoError(t, err)
	assert.Equal(t, "c", rec.Label, "a is over its threshold and b is disabled")
}

func TestUnknownLabel(t *testing.T) {
	clock := newFakeClock()
	p := newTestPool(t, clock, nil, "a")
	require.ErrorIs(t, p.MarkUsed("nope", true), ErrCredentialNotFound)
	require.ErrorIs(t, p.Disable("nope"), ErrCredentialNotFound)
}

func TestAddKeyRejectsDuplicates(t *testing.T) {
	clock := newFakeClock()
	p := newTestPool(t, clock, nil, "a")

	require.ErrorIs(t, p.AddKey("a", "something-else-entirely"), ErrDuplicate)
	require.ErrorIs(t, p.AddKey("other", "secret-for-a-0123456789"), ErrDuplicate)
	require.NoError(t, p.AddKey("b", "fresh-secret-value-xyz"))
	assert.Equal(t, 2, p.Len())

	rec, _ := p.Get("b")
	assert.Equal(t, OriginAdmin, rec.Origin)
}

func TestHealthCheckSweep(t *testing.T) {
	clock := newFakeClock()
	p := newTestPool(t, clock, nil, "limited", "tired", "bad")

	require.NoError(t, p.HandleRateLimit("limited", clock.Now().Add(10*time.Minute)))
	for i := 0; i < DefaultMaxErrors; i++ {
		require.NoError(t, p.MarkUsed("tired", false))
	}
	require.NoError(t, p.Disable("tired"))
	require.NoError(t, p.HandleInvalid("bad"))

	assert.Equal(t, 0, p.HealthCheck())

	clock.Advance(61 * time.Minute)
	assert.Equal(t, 2, p.HealthCheck())

	limited, _ := p.Get("limited")
	assert.Equal(t, StatusActive, limited.Status)
	tired, _ := p.Get("tired")
	assert.Equal(t, StatusActive, tired.Status)
	assert.Equal(t, DefaultMaxErrors-1, tired.ErrorCount)
	bad, _ := p.Get("bad")
	assert.Equal(t, StatusInvalid, bad.Status)
}

func TestStatsCountsWithoutSecrets(t *testing.T) {
	clock := newFakeClock()
	p := newTestPool(t, clock, nil, "a", "b", "c")
	require.NoError(t, p.HandleRateLimit("b", time.Time{}))
	require.NoError(t, p.Disable("c"))

	st := p.Stats()
	assert.Equal(t, 3, st.Total)
	assert.Equal(t, 1, st.Active)
	assert.Equal(t, 1, st.RateLimited)
	assert.Equal(t, 1, st.Disabled)
	assert.Equal(t, "a", st.CurrentLabel)
	for _, k := range st.Keys {
		assert.NotContains(t, k.Masked, "0123456789")
	}
}

func TestMutationsPublishEvents(t *testing.T) {
	hub := events.NewHub()
	var got []events.Event
	hub.Subscribe(events.TopicCredentialChanged, func(_ context.Context, ev events.Event) {
		got = append(got, ev)
	})
	synced := 0
	hub.Subscribe(events.TopicCredentialsSynced, func(context.Context, events.Event) { synced++ })

	clock := newFakeClock()
	p := NewPool(Options{Sources: []Source{envRecords("a")}, Publisher: hub, Now: clock.Now})
	require.NoError(t, p.Load(context.Background()))
	require.NoError(t, p.MarkUsed("a", false))

	assert.Equal(t, 1, synced)
	require.Len(t, got, 1)
	payload := got[0].Payload.(map[string]any)
	assert.Equal(t, "failed", payload["action"])
	assert.Equal(t, "a", payload["label"])
	assert.Equal(t, 1, payload["error_count"])
}

func TestConcurrentMarkUsedLosesNoUpdates(t *testing.T) {
	clock := newFakeClock()
	p := newTestPool(t, clock, &countingStore{}, "a")

	const workers, each = 8, 50
	errs := make(chan error, workers)
	for w := 0; w < workers; w++ {
		go func() {
			for i := 0; i < each; i++ {
				if err := p.MarkUsed("a", true); err != nil {
					errs <- err
					return
				}
			}
			errs <- nil
		}()
	}
	for w := 0; w < workers; w++ {
		require.NoError(t, <-errs)
	}
	rec, _ := p.Get("a")
	assert.EqualValues(t, workers*each, rec.UsageCount)
}

func TestErrorsAreDistinct(t *testing.T) {
	assert.False(t, errors.Is(ErrNoCredentials, ErrNoAvailableCredential))
}
