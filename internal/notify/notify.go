// Package notify delivers progression notifications after the state change
// that triggered them has been committed. Delivery failures are logged and
// never reach the caller.
package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"sidequest/internal/logger"
)

const (
	KindLevelUp    = "level_up"
	KindDailyRecap = "daily_recap"
)

type Event interface {
	Kind() string
}

type LevelUp struct {
	AdventurerID string    `json:"adventurer_id"`
	OldLevel     int       `json:"old_level"`
	NewLevel     int       `json:"new_level"`
	At           time.Time `json:"at"`
}

func (LevelUp) Kind() string { return KindLevelUp }

// Milestone reports whether the new level is a multiple of five.
func (e LevelUp) Milestone() bool { return e.NewLevel%5 == 0 }

type DailyRecap struct {
	UserID      string    `json:"user_id"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
}

func (DailyRecap) Kind() string { return KindDailyRecap }

// Sink delivers a single event. Retry policy, if any, belongs to the sink.
type Sink interface {
	Deliver(ctx context.Context, evt Event) error
}

type SinkFunc func(ctx context.Context, evt Event) error

func (f SinkFunc) Deliver(ctx context.Context, evt Event) error { return f(ctx, evt) }

// Emitter is what the progression engine depends on.
type Emitter interface {
	Emit(evt Event)
}

// Nop discards events.
type Nop struct{}

func (Nop) Emit(Event) {}

// Notifier hands events to a sink on a background goroutine.
type Notifier struct {
	sink    Sink
	log     *logger.Logger
	timeout time.Duration

	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

func New(sink Sink, log *logger.Logger, timeout time.Duration) *Notifier {
	if log == nil {
		log = logger.Nop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Notifier{sink: sink, log: log.With("component", "notify"), timeout: timeout}
}

// Emit schedules delivery and returns immediately.
func (n *Notifier) Emit(evt Event) {
	if n == nil || n.sink == nil || evt == nil {
		return
	}
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		n.log.Warn("notification dropped after close", "kind", evt.Kind())
		return
	}
	n.wg.Add(1)
	n.mu.Unlock()

	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()
		if err := n.sink.Deliver(ctx, evt); err != nil {
			n.log.Error("notification delivery failed", "kind", evt.Kind(), "error", err)
			return
		}
		n.log.Debug("notification delivered", "kind", evt.Kind())
	}()
}

// Wait blocks until in-flight deliveries finish.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

// Close stops accepting events and waits for in-flight deliveries.
func (n *Notifier) Close() {
	n.mu.Lock()
	n.closed = true
	n.mu.Unlock()
	n.wg.Wait()
}

// Multi fans an event out to every sink and joins their errors.
type Multi []Sink

func (m Multi) Deliver(ctx context.Context, evt Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Deliver(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink writes events to the structured log.
type LogSink struct {
	Log *logger.Logger
}

func (s LogSink) Deliver(_ context.Context, evt Event) error {
	switch e := evt.(type) {
	case LevelUp:
		s.Log.Info("adventurer leveled up", "adventurer_id", e.AdventurerID, "old_level", e.OldLevel, "new_level", e.NewLevel, "milestone", e.Milestone())
	case DailyRecap:
		s.Log.Info("daily recap", "user_id", e.UserID, "period_start", e.PeriodStart, "period_end", e.PeriodEnd)
	default:
		s.Log.Info("notification", "kind", evt.Kind())
	}
	return nil
}
