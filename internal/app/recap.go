package app

import (
	"context"
	"time"

	"sidequest/internal/engine"
	"sidequest/internal/logger"
)

// RecapScheduler sends the previous day's recaps once a day at HourUTC.
type RecapScheduler struct {
	Engine  engine.Engine
	HourUTC int
	Log     *logger.Logger
	Now     func() time.Time
}

func (s *RecapScheduler) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Next returns the first firing time strictly after now.
func (s *RecapScheduler) Next(now time.Time) time.Time {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), s.HourUTC, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next
}

// Run blocks until ctx is done. A failed run is logged and retried the next day.
func (s *RecapScheduler) Run(ctx context.Context) error {
	log := s.Log
	if log == nil {
		log = logger.Nop()
	}
	log = log.With("component", "recaps")
	for {
		next := s.Next(s.now())
		log.Debug("next recap run", "at", next.Format(time.RFC3339))
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		if _, err := s.RunOnce(ctx); err != nil {
			log.Error("daily recap failed", "error", err)
		}
	}
}

// RunOnce sends recaps for the UTC day before now.
func (s *RecapScheduler) RunOnce(ctx context.Context) (int, error) {
	start, _ := engine.RecapWindow(s.now())
	return s.Engine.SendDailyRecaps(ctx, start)
}
