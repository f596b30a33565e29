package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"example.com/attendance/internal/clock"
	"example.com/attendance/internal/observability"
)

// Trigger names used by the attendance service.
const (
	TriggerWeeklyMid    = "weekly-mid"
	TriggerWeeklyFinal  = "weekly-final"
	TriggerMonthlyFinal = "monthly-final"
)

// Action runs a trigger. now is the tick instant in the configured zone.
type Action func(ctx context.Context, now time.Time) error

// Trigger is a named action that fires at most once per day inside its window.
type Trigger struct {
	Name   string
	Window Window
	Action Action
}

// State remembers the last day each trigger fired.
type State interface {
	LastFired(ctx context.Context, trigger string) (clock.Date, bool, error)
	MarkFired(ctx context.Context, trigger string, day clock.Date) error
}

// MemoryState keeps trigger state in process memory.
type MemoryState struct {
	mu    sync.Mutex
	fired map[string]clock.Date
}

// NewMemoryState constructs an empty MemoryState.
func NewMemoryState() *MemoryState {
	return &MemoryState{fired: map[string]clock.Date{}}
}

// LastFired implements State.
func (s *MemoryState) LastFired(_ context.Context, trigger string) (clock.Date, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	day, ok := s.fired[trigger]
	return day, ok, nil
}

// MarkFired implements State.
func (s *MemoryState) MarkFired(_ context.Context, trigger string, day clock.Date) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fired[trigger] = day
	return nil
}

// Option configures optional behaviour for the Driver.
type Option func(*Driver)

// WithLogger overrides the logger used to report trigger failures.
func WithLogger(logger *log.Logger) Option {
	return func(d *Driver) {
		d.logger = logger
	}
}

// Driver evaluates triggers on every tick.
type Driver struct {
	clock    *clock.Local
	state    State
	triggers []Trigger
	logger   *log.Logger
	mu       sync.Mutex
}

// NewDriver constructs a Driver.
func NewDriver(local *clock.Local, state State, triggers []Trigger, opts ...Option) *Driver {
	d := &Driver{
		clock:    local,
		state:    state,
		triggers: triggers,
		logger:   log.New(log.Writer(), "[scheduler] ", log.LstdFlags|log.Lshortfile),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Tick fires every trigger whose window contains now and which has not fired
// today. A trigger is marked before its action runs, so a failing action waits
// for the next window instead of retrying. It returns the fired names.
func (d *Driver) Tick(ctx context.Context) []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.clock.Now()
	today := clock.DateOf(now)

	var fired []string
	for _, trigger := range d.triggers {
		if !trigger.Window.Contains(now) {
			continue
		}
		last, ok, err := d.state.LastFired(ctx, trigger.Name)
		if err != nil {
			d.logger.Printf("load state for %s: %v", trigger.Name, err)
			continue
		}
		if ok && last == today {
			continue
		}
		if err := d.state.MarkFired(ctx, trigger.Name, today); err != nil {
			d.logger.Printf("mark %s fired: %v", trigger.Name, err)
			continue
		}

		fired = append(fired, trigger.Name)
		err = trigger.Action(ctx, now)
		observability.RecordTriggerRun(trigger.Name, err != nil)
		if err != nil {
			d.logger.Printf("trigger %s failed: %v", trigger.Name, err)
		}
	}
	return fired
}

// Run ticks immediately and then every interval until ctx is cancelled.
func (d *Driver) Run(ctx context.Context, interval time.Duration) error {
	d.Tick(ctx)
	waiter := d.clock.Clock().TickerFunc(ctx, interval, func() error {
		d.Tick(ctx)
		return nil
	}, "scheduler")
	return waiter.Wait()
}
