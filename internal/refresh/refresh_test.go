package refresh_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/KerimSelki/crypto-vault/internal/logger"
	"github.com/KerimSelki/crypto-vault/internal/refresh"
	"github.com/KerimSelki/crypto-vault/internal/scheduler"
)

type fakeTarget struct {
	mu       sync.Mutex
	state    scheduler.State
	interval time.Duration
	triggers chan struct{}
}

func newTarget() *fakeTarget {
	return &fakeTarget{state: scheduler.Connected, triggers: make(chan struct{}, 16)}
}

func (f *fakeTarget) Status() scheduler.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return scheduler.Status{State: f.state, RefreshInterval: f.interval}
}

func (f *fakeTarget) Trigger(context.Context) error {
	f.triggers <- struct{}{}
	return nil
}

func (f *fakeTarget) SetRefreshInterval(d time.Duration) {
	f.mu.Lock()
	f.interval = d
	f.mu.Unlock()
}

func (f *fakeTarget) setState(s scheduler.State) {
	f.mu.Lock()
	f.state = s
	f.mu.Unlock()
}

func expectTrigger(t *testing.T, f *fakeTarget) {
	t.Helper()
	select {
	case <-f.triggers:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a trigger")
	}
}

func expectNoTrigger(t *testing.T, f *fakeTarget) {
	t.Helper()
	select {
	case <-f.triggers:
		t.Fatal("unexpected trigger")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDriver_TicksAtInterval(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	f := newTarget()
	d := refresh.New(f, clock, logger.Discard())
	d.Start(t.Context())
	t.Cleanup(d.Stop)

	expectNoTrigger(t, f)
	require.NoError(t, clock.BlockUntilContext(t.Context(), 1))
	clock.Advance(refresh.DefaultInterval)
	expectTrigger(t, f)
	require.Equal(t, refresh.DefaultInterval, f.Status().RefreshInterval)
}

func TestDriver_SkipsWhileRetrying(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	f := newTarget()
	f.setState(scheduler.Retrying)
	d := refresh.New(f, clock, logger.Discard())
	d.Start(t.Context())
	t.Cleanup(d.Stop)

	require.NoError(t, clock.BlockUntilContext(t.Context(), 1))
	clock.Advance(refresh.DefaultInterval)
	expectNoTrigger(t, f)
}

func TestSetInterval_ReschedulesWithoutTriggering(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	f := newTarget()
	d := refresh.New(f, clock, logger.Discard())
	d.Start(t.Context())
	t.Cleanup(d.Stop)

	require.NoError(t, d.SetInterval(t.Context(), time.Minute))
	expectNoTrigger(t, f)
	require.Equal(t, time.Minute, d.Interval())

	require.NoError(t, clock.BlockUntilContext(t.Context(), 1))
	clock.Advance(time.Minute)
	expectTrigger(t, f)
}

func TestSetInterval_RejectsUnknown(t *testing.T) {
	t.Parallel()

	d := refresh.New(newTarget(), clockwork.NewFakeClock(), logger.Discard())
	require.ErrorIs(t, d.SetInterval(t.Context(), 7*time.Minute), refresh.ErrUnknownInterval)
	require.Equal(t, refresh.DefaultInterval, d.Interval())
}

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"1m", time.Minute, false},
		{"300s", 5 * time.Minute, false},
		{"10", 10 * time.Minute, false},
		{"30m", 30 * time.Minute, false},
		{"2m", 0, true},
		{"soon", 0, true},
	}
	for _, tc := range tests {
		got, err := refresh.Parse(tc.in)
		if tc.wantErr {
			require.ErrorIs(t, err, refresh.ErrUnknownInterval, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.want, got)
	}
}
