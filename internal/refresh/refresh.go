// Package refresh triggers fetch cycles on a fixed interval.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/KerimSelki/crypto-vault/internal/logger"
	"github.com/KerimSelki/crypto-vault/internal/scheduler"
)

// ErrUnknownInterval is returned for intervals outside Presets.
var ErrUnknownInterval = errors.New("unknown refresh interval")

// Presets are the allowed refresh intervals.
var Presets = []time.Duration{time.Minute, 5 * time.Minute, 10 * time.Minute, 30 * time.Minute}

const DefaultInterval = 5 * time.Minute

// Target is what the driver triggers.
type Target interface {
	Status() scheduler.Status
	Trigger(ctx context.Context) error
	SetRefreshInterval(d time.Duration)
}

type Driver struct {
	target Target
	clock  clockwork.Clock
	log    *logger.Entry

	mu       sync.Mutex
	interval time.Duration
	ticker   clockwork.Ticker
	stop     chan struct{}
	done     chan struct{}
}

func New(target Target, clock clockwork.Clock, log *logger.Log) *Driver {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &Driver{target: target, clock: clock, log: log.WithComponent("refresh"), interval: DefaultInterval}
}

// Parse accepts "5m", "300s" or a bare number of minutes and validates it
// against Presets.
func Parse(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		var m int
		if _, serr := fmt.Sscanf(s, "%d", &m); serr != nil || fmt.Sprint(m) != s {
			return 0, fmt.Errorf("%w: %q", ErrUnknownInterval, s)
		}
		d = time.Duration(m) * time.Minute
	}
	if !valid(d) {
		return 0, fmt.Errorf("%w: %s", ErrUnknownInterval, d)
	}
	return d, nil
}

func valid(d time.Duration) bool {
	for _, p := range Presets {
		if p == d {
			return true
		}
	}
	return false
}

func (d *Driver) Interval() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.interval
}

// Start begins ticking at the current interval until ctx is done or Stop
// is called. It does not trigger immediately.
func (d *Driver) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.startLocked(ctx)
}

// SetInterval validates d, then cancels the running ticker and starts a new
// one. It never triggers immediately.
func (d *Driver) SetInterval(ctx context.Context, iv time.Duration) error {
	if !valid(iv) {
		return fmt.Errorf("%w: %s", ErrUnknownInterval, iv)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.interval = iv
	d.target.SetRefreshInterval(iv)
	if d.ticker != nil {
		d.stopLocked()
		d.startLocked(ctx)
	}
	d.log.WithField("interval", iv.String()).Info("refresh interval changed")
	return nil
}

func (d *Driver) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
}

func (d *Driver) startLocked(ctx context.Context) {
	if d.ticker != nil {
		return
	}
	d.target.SetRefreshInterval(d.interval)
	d.ticker = d.clock.NewTicker(d.interval)
	d.stop = make(chan struct{})
	d.done = make(chan struct{})
	go d.loop(ctx, d.ticker, d.stop, d.done)
}

func (d *Driver) stopLocked() {
	if d.ticker == nil {
		return
	}
	d.ticker.Stop()
	close(d.stop)
	<-d.done
	d.ticker = nil
}

func (d *Driver) loop(ctx context.Context, t clockwork.Ticker, stop, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-t.Chan():
			d.tick(ctx)
		}
	}
}

// tick skips while a retry is pending; otherwise it triggers a cycle.
func (d *Driver) tick(ctx context.Context) {
	st := d.target.Status().State
	if st == scheduler.Retrying || st == scheduler.Demo {
		d.log.WithField("state", st).Debug("tick skipped")
		return
	}
	if err := d.target.Trigger(ctx); err != nil && !errors.Is(err, scheduler.ErrSkipped) {
		d.log.WithError(err).Warn("refresh cycle failed")
	}
}
