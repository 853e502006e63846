package engine

import (
	"context"
	"time"

	"sidequest/internal/domain"
	"sidequest/internal/notify"
)

// RecapWindow returns the UTC day before now as [start, end).
func RecapWindow(now time.Time) (time.Time, time.Time) {
	now = now.UTC()
	end := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return end.Add(-24 * time.Hour), end
}

// DayWindow returns the UTC day containing day as [start, end).
func DayWindow(day time.Time) (time.Time, time.Time) {
	day = day.UTC()
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.Add(24 * time.Hour)
}

// Recaps lists the recaps of every user with completions in the UTC day
// containing day.
func (e Engine) Recaps(ctx context.Context, day time.Time) ([]domain.Recap, error) {
	start, end := DayWindow(day)
	return e.Repo.Recaps(ctx, start.Format(time.RFC3339), end.Format(time.RFC3339), "")
}

// SendDailyRecaps emits a DailyRecap for each user active during the UTC day
// containing day and returns how many were emitted.
func (e Engine) SendDailyRecaps(ctx context.Context, day time.Time) (int, error) {
	start, end := DayWindow(day)
	recaps, err := e.Repo.Recaps(ctx, start.Format(time.RFC3339), end.Format(time.RFC3339), "")
	if err != nil {
		return 0, err
	}
	for _, r := range recaps {
		e.emit(notify.DailyRecap{UserID: r.UserID, PeriodStart: start, PeriodEnd: end})
	}
	e.log().Info("daily recaps queued", "day", start.Format("2006-01-02"), "users", len(recaps))
	return len(recaps), nil
}
