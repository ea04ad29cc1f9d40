// Package scheduler owns the unified price map and drives fetch cycles
// through an explicit state machine:
//
//	idle|connected|error --Trigger--> connecting
//	connecting --ok--> connected
//	connecting --fail, retries < max--> retrying --timer--> connecting
//	connecting --fail, retries == max--> demo (or error without demo)
//	any --Retry/SetCredentials--> connecting
//
// Demo mode makes no automatic calls; only Retry leaves it.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/KerimSelki/crypto-vault/internal/logger"
	"github.com/KerimSelki/crypto-vault/internal/pipeline"
	"github.com/KerimSelki/crypto-vault/internal/provider"
)

type State string

const (
	Idle       State = "idle"
	Connecting State = "connecting"
	Retrying   State = "retrying"
	Error      State = "error"
	Demo       State = "demo"
	Connected  State = "connected"
)

type Mode string

const (
	Live     Mode = "live"
	DemoMode Mode = "demo"
)

// ErrSkipped is returned by Trigger while a retry is pending or the
// scheduler is in demo mode.
var ErrSkipped = errors.New("trigger skipped")

// DefaultBackoff is the delay before each retry, by retry number.
var DefaultBackoff = []time.Duration{2 * time.Second, 5 * time.Second, 10 * time.Second, 30 * time.Second, 60 * time.Second}

// Status is a snapshot of the fetch cycle state.
type Status struct {
	State           State         `json:"state"`
	Mode            Mode          `json:"mode"`
	RetryCount      int           `json:"retry_count"`
	MaxRetries      int           `json:"max_retries"`
	LastUpdate      time.Time     `json:"last_update,omitempty"`
	NextRetryAt     time.Time     `json:"next_retry_at,omitempty"`
	RefreshInterval time.Duration `json:"refresh_interval"`
	LastError       string        `json:"last_error,omitempty"`
	CycleID         string        `json:"cycle_id,omitempty"`
}

// Event is published on every state transition. Prices is set when the map
// changed; Result is set after a completed cycle.
type Event struct {
	Status Status
	Prices provider.PriceMap
	Result *pipeline.Result
}

// Runner runs one fetch cycle on top of the previous map.
type Runner interface {
	Run(ctx context.Context, prev provider.PriceMap) (pipeline.Result, error)
}

type Config struct {
	Backoff    []time.Duration
	MaxRetries int
	// DisableDemo ends in the error state instead of demo mode.
	DisableDemo bool
}

type Option func(*Scheduler)

func WithClock(c clockwork.Clock) Option { return func(s *Scheduler) { s.clock = c } }

// WithDemo sets the source of demo prices.
func WithDemo(fn func() provider.PriceMap) Option { return func(s *Scheduler) { s.demo = fn } }

func WithLogger(l *logger.Log) Option { return func(s *Scheduler) { s.log = l.WithComponent("scheduler") } }

// WithInitialPrices seeds the unified map, e.g. from the price cache.
func WithInitialPrices(m provider.PriceMap) Option {
	return func(s *Scheduler) { s.prices = m.Clone() }
}

type Scheduler struct {
	cfg    Config
	runner Runner
	clock  clockwork.Clock
	demo   func() provider.PriceMap
	log    *logger.Entry
	sf     singleflight.Group

	mu      sync.Mutex
	status  Status
	prices  provider.PriceMap
	timer   clockwork.Timer
	gen     uint64
	baseCtx context.Context

	subsMu sync.Mutex
	subs   map[int]chan Event
	nextID int
}

func New(cfg Config, runner Runner, opts ...Option) *Scheduler {
	if len(cfg.Backoff) == 0 {
		cfg.Backoff = DefaultBackoff
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = len(DefaultBackoff)
	}
	s := &Scheduler{
		cfg:     cfg,
		runner:  runner,
		clock:   clockwork.NewRealClock(),
		log:     logger.GetLogger().WithComponent("scheduler"),
		prices:  provider.PriceMap{},
		subs:    make(map[int]chan Event),
		baseCtx: context.Background(),
	}
	for _, o := range opts {
		o(s)
	}
	s.status = Status{State: Idle, Mode: Live, MaxRetries: cfg.MaxRetries}
	return s
}

// Backoff returns the delay before retry n (0-based). The last entry is
// reused beyond the table.
func (s *Scheduler) Backoff(n int) time.Duration {
	if n < 0 {
		n = 0
	}
	if n >= len(s.cfg.Backoff) {
		n = len(s.cfg.Backoff) - 1
	}
	return s.cfg.Backoff[n]
}

// Start records ctx for timer-driven cycles and runs the first cycle.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()
	return s.Trigger(ctx)
}

// Stop cancels a pending retry.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelTimerLocked()
}

// Trigger runs a cycle unless a retry is pending or demo mode is active.
// A trigger while a cycle is in flight joins that cycle.
func (s *Scheduler) Trigger(ctx context.Context) error {
	s.mu.Lock()
	st := s.status.State
	s.mu.Unlock()
	if st == Retrying || st == Demo {
		return ErrSkipped
	}
	return s.run(ctx)
}

// Retry resets the retry counter, cancels a pending retry and runs a cycle
// now. It is the only way out of demo mode.
func (s *Scheduler) Retry(ctx context.Context) error {
	s.mu.Lock()
	s.cancelTimerLocked()
	s.status.RetryCount = 0
	s.status.NextRetryAt = time.Time{}
	s.mu.Unlock()
	s.log.Info("manual retry")
	return s.run(ctx)
}

// SetCredentials applies a credential change and retries immediately.
func (s *Scheduler) SetCredentials(ctx context.Context, apply func() error) error {
	if apply != nil {
		if err := apply(); err != nil {
			return err
		}
	}
	s.log.Info("credentials changed")
	return s.Retry(ctx)
}

// SetRefreshInterval records the interval shown in Status.
func (s *Scheduler) SetRefreshInterval(d time.Duration) {
	s.mu.Lock()
	s.status.RefreshInterval = d
	st := s.status
	s.mu.Unlock()
	s.publish(Event{Status: st})
}

func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Prices returns a copy of the unified map.
func (s *Scheduler) Prices() provider.PriceMap {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prices.Clone()
}

// Upsert layers records onto the unified map outside a cycle, e.g. a
// newly added asset priced on its own. State and counters are untouched.
func (s *Scheduler) Upsert(m provider.PriceMap) {
	if len(m) == 0 {
		return
	}
	s.mu.Lock()
	for id, r := range m {
		s.prices[id] = r.Clone()
	}
	ev := Event{Status: s.status, Prices: s.prices.Clone()}
	s.mu.Unlock()
	s.publish(ev)
}

// Subscribe returns a channel of events and a function that closes it.
// Slow subscribers miss events rather than block the scheduler.
func (s *Scheduler) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)
	s.subsMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	s.subsMu.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subsMu.Lock()
			delete(s.subs, id)
			s.subsMu.Unlock()
			close(ch)
		})
	}
}

func (s *Scheduler) publish(ev Event) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
			s.log.WithField("state", ev.Status.State).Debug("subscriber behind, event dropped")
		}
	}
}

func (s *Scheduler) run(ctx context.Context) error {
	_, err, _ := s.sf.Do("cycle", func() (any, error) {
		return nil, s.cycle(ctx)
	})
	return err
}

func (s *Scheduler) cycle(ctx context.Context) error {
	s.mu.Lock()
	s.cancelTimerLocked()
	s.transitionLocked(Connecting)
	prev := s.prices.Clone()
	st := s.status
	s.mu.Unlock()
	s.publish(Event{Status: st})

	res, err := s.runner.Run(ctx, prev)

	s.mu.Lock()
	s.status.CycleID = res.CycleID
	if err == nil {
		s.prices = res.Prices.Clone()
		s.status.RetryCount = 0
		s.status.NextRetryAt = time.Time{}
		s.status.LastUpdate = s.clock.Now()
		s.status.LastError = ""
		s.status.Mode = Live
		s.transitionLocked(Connected)
		ev := Event{Status: s.status, Prices: s.prices.Clone(), Result: &res}
		s.mu.Unlock()
		s.publish(ev)
		return nil
	}

	s.status.LastError = err.Error()
	ev := s.failLocked()
	ev.Result = &res
	s.mu.Unlock()
	s.publish(ev)
	return err
}

// failLocked schedules the next retry or gives up.
func (s *Scheduler) failLocked() Event {
	if s.status.RetryCount < s.cfg.MaxRetries {
		delay := s.Backoff(s.status.RetryCount)
		s.status.RetryCount++
		s.status.NextRetryAt = s.clock.Now().Add(delay)
		s.transitionLocked(Retrying)
		s.gen++
		gen := s.gen
		ctx := s.baseCtx
		s.timer = s.clock.AfterFunc(delay, func() { s.fire(ctx, gen) })
		s.log.WithFields(logger.Fields{"retry": s.status.RetryCount, "delay": delay.String()}).Warn("cycle failed, retry scheduled")
		return Event{Status: s.status}
	}

	s.status.NextRetryAt = time.Time{}
	if s.cfg.DisableDemo || s.demo == nil {
		s.transitionLocked(Error)
		s.log.Error("retries exhausted")
		return Event{Status: s.status}
	}
	s.prices = s.demo()
	s.status.Mode = DemoMode
	s.status.RetryCount = 0
	s.status.LastUpdate = s.clock.Now()
	s.transitionLocked(Demo)
	s.log.Warn("retries exhausted, showing demo prices")
	return Event{Status: s.status, Prices: s.prices.Clone()}
}

func (s *Scheduler) fire(ctx context.Context, gen uint64) {
	s.mu.Lock()
	stale := gen != s.gen || s.status.State != Retrying
	if !stale {
		s.timer = nil
	}
	s.mu.Unlock()
	if stale {
		return
	}
	_ = s.run(ctx)
}

func (s *Scheduler) cancelTimerLocked() {
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Scheduler) transitionLocked(to State) {
	from := s.status.State
	s.status.State = to
	if from != to {
		s.log.WithFields(logger.Fields{"from": from, "to": to, "retry": s.status.RetryCount}).Info("state change")
	}
}
