// Package scheduler drives the periodic refresh loop. One goroutine owns the
// polling cadence; timer ticks and manual refresh requests are serialized so
// that at most one fetch is ever in flight.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/zsprackett/quota-tray/internal/config"
	"github.com/zsprackett/quota-tray/internal/quota"
	"github.com/zsprackett/quota-tray/internal/state"
)

// ErrStopped is returned by ManualRefresh once the scheduler has stopped.
var ErrStopped = errors.New("scheduler stopped")

// errAbandoned marks a cycle whose fetch was cut short by shutdown.
var errAbandoned = errors.New("cycle abandoned")

// ConfigSource returns the current config. It is consulted at the start of
// every cycle; config.ErrNotFound means no config exists.
type ConfigSource interface {
	Load() (config.Config, error)
}

// Fetcher performs one usage request.
type Fetcher interface {
	Fetch(ctx context.Context, cfg config.Config) (*quota.Snapshot, error)
}

// Trigger names what started a cycle.
type Trigger string

const (
	TriggerTimer  Trigger = "timer"
	TriggerManual Trigger = "manual"
)

type Phase int32

const (
	Idle Phase = iota
	Fetching
	Publishing
	Stopped
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Fetching:
		return "fetching"
	case Publishing:
		return "publishing"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// CycleObserver is notified after every published cycle.
type CycleObserver interface {
	ObserveCycle(trigger Trigger, o state.Outcome, fetchDuration time.Duration)
}

type result struct {
	usage *quota.Snapshot
	err   error
}

type Scheduler struct {
	configs  ConfigSource
	fetcher  Fetcher
	state    *state.State
	logger   *slog.Logger
	observer CycleObserver

	unit     time.Duration
	interval int // seconds, owned by the loop goroutine

	trigger chan struct{} // single slot: a pending manual cycle
	stop    chan struct{}
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc

	cycleMu sync.Mutex // held for the duration of a cycle

	mu      sync.Mutex
	waiters []chan result
	started bool
	stopped bool

	phase atomic.Int32
}

func New(configs ConfigSource, fetcher Fetcher, st *state.State, logger *slog.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		configs: configs,
		fetcher: fetcher,
		state:   st,
		logger:  logger,
		unit:    time.Second,
		trigger: make(chan struct{}, 1),
		stop:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// SetIntervalUnit replaces the unit refreshInterval is measured in. Used in
// tests only; must be called before Start.
func (s *Scheduler) SetIntervalUnit(d time.Duration) {
	s.unit = d
}

// SetObserver installs o; must be called before Start.
func (s *Scheduler) SetObserver(o CycleObserver) {
	s.observer = o
}

func (s *Scheduler) Phase() Phase {
	return Phase(s.phase.Load())
}

// Start launches the refresh loop. The first automatic cycle runs after one
// full interval.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	s.interval = s.currentInterval(config.DefaultRefreshInterval)
	s.logger.Info("scheduler: started", "interval_s", s.interval)

	s.wg.Add(1)
	go s.run()
}

// Stop cancels any in-flight fetch and ends the loop. It does not wait for an
// abandoned fetch to return. Pending ManualRefresh callers get ErrStopped.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	waiters := s.waiters
	s.waiters = nil
	s.mu.Unlock()

	s.cancel()
	close(s.stop)
	s.wg.Wait()
	s.phase.Store(int32(Stopped))

	for _, w := range waiters {
		w <- result{err: ErrStopped}
	}
}

func (s *Scheduler) run() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.period(s.interval))
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.cycle(TriggerTimer)
		case <-s.trigger:
			waiters := s.takeWaiters()
			res := s.cycle(TriggerManual)
			for _, w := range waiters {
				w <- res
			}
		}

		if s.ctx.Err() != nil {
			return
		}
		if next := s.currentInterval(s.interval); next != s.interval {
			s.logger.Info("scheduler: interval changed", "from_s", s.interval, "to_s", next)
			s.interval = next
			ticker.Reset(s.period(next))
		}
	}
}

// ManualRefresh requests an out-of-band cycle and waits for its outcome.
// Requests arriving while a cycle is in flight are coalesced: they all share
// one follow-up cycle that starts as soon as the current one publishes.
func (s *Scheduler) ManualRefresh(ctx context.Context) (*quota.Snapshot, error) {
	ch := make(chan result, 1)

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil, ErrStopped
	}
	s.waiters = append(s.waiters, ch)
	s.mu.Unlock()

	select {
	case s.trigger <- struct{}{}:
	default:
		// A manual cycle is already pending; it will pick up this waiter.
	}

	select {
	case r := <-ch:
		return r.usage, r.err
	case <-ctx.Done():
		s.dropWaiter(ch)
		return nil, ctx.Err()
	}
}

// Tick runs one cycle synchronously, serialized with the loop. It does not
// require Start.
func (s *Scheduler) Tick(ctx context.Context) (*quota.Snapshot, error) {
	stopCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.ctx.Done():
			cancel()
		case <-stopCtx.Done():
		}
	}()
	r := s.runCycle(stopCtx, TriggerTimer)
	return r.usage, r.err
}

func (s *Scheduler) takeWaiters() []chan result {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := s.waiters
	s.waiters = nil
	return w
}

func (s *Scheduler) dropWaiter(ch chan result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, w := range s.waiters {
		if w == ch {
			s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
			return
		}
	}
}

func (s *Scheduler) cycle(trigger Trigger) result {
	return s.runCycle(s.ctx, trigger)
}

func (s *Scheduler) runCycle(ctx context.Context, trigger Trigger) result {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	cycleID := uuid.NewString()
	logger := s.logger.With("cycle", cycleID, "trigger", string(trigger))

	var (
		usage   *quota.Snapshot
		rerr    *quota.RefreshError
		elapsed time.Duration
	)

	cfg, err := s.configs.Load()
	switch {
	case errors.Is(err, config.ErrNotFound):
		rerr = quota.NewNotConfigured()
	case err != nil:
		logger.Warn("scheduler: config unreadable", "err", err)
		rerr = quota.NewNotConfigured()
	case cfg.Validate() != nil:
		rerr = quota.NewInvalidConfiguration()
	default:
		s.phase.Store(int32(Fetching))
		start := time.Now()
		usage, err = s.fetch(ctx, cfg)
		elapsed = time.Since(start)
		if errors.Is(err, errAbandoned) {
			logger.Debug("scheduler: fetch abandoned")
			return result{err: ErrStopped}
		}
		rerr = quota.AsRefreshError(err)
	}

	s.phase.Store(int32(Publishing))
	o := state.Outcome{CycleID: cycleID, Trigger: string(trigger)}
	if rerr != nil {
		o.Err = rerr
		logger.Warn("scheduler: refresh failed", "kind", string(rerr.Kind), "err", rerr.Message)
	} else {
		o.Usage = usage
		logger.Debug("scheduler: refresh ok", "used", usage.UsedQuota, "total", usage.TotalQuota, "pct", usage.UsagePercentage)
	}
	s.state.Publish(o)
	if s.observer != nil {
		s.observer.ObserveCycle(trigger, o, elapsed)
	}
	s.phase.Store(int32(Idle))

	if rerr != nil {
		return result{err: rerr}
	}
	return result{usage: usage}
}

// fetch runs the fetcher in its own goroutine so that cancellation never
// waits on a fetcher that ignores its context. A result arriving after
// cancellation is dropped.
func (s *Scheduler) fetch(ctx context.Context, cfg config.Config) (*quota.Snapshot, error) {
	ch := make(chan result, 1)
	go func() {
		usage, err := s.fetcher.Fetch(ctx, cfg)
		ch <- result{usage: usage, err: err}
	}()
	select {
	case r := <-ch:
		if ctx.Err() != nil {
			return nil, errAbandoned
		}
		if r.err == nil && r.usage == nil {
			return nil, quota.NewParseFailure(errors.New("empty response"))
		}
		return r.usage, r.err
	case <-ctx.Done():
		return nil, errAbandoned
	}
}

// currentInterval re-reads the refresh interval, falling back to fallback
// when the config is absent or unusable.
func (s *Scheduler) currentInterval(fallback int) int {
	cfg, err := s.configs.Load()
	if err != nil || cfg.RefreshInterval < 1 {
		return fallback
	}
	return cfg.RefreshInterval
}

func (s *Scheduler) period(interval int) time.Duration {
	return time.Duration(interval) * s.unit
}

// TestConnection validates cfg and fetches once without publishing, so a
// candidate config can be tried before it is saved.
func TestConnection(ctx context.Context, f Fetcher, cfg config.Config) (*quota.Snapshot, *quota.RefreshError) {
	if cfg.Validate() != nil {
		return nil, quota.NewInvalidConfiguration()
	}
	usage, err := f.Fetch(ctx, cfg)
	if err != nil {
		return nil, quota.AsRefreshError(err)
	}
	if usage == nil {
		return nil, quota.NewParseFailure(errors.New("empty response"))
	}
	return usage, nil
}
