package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"sidequest/internal/config"
	"sidequest/internal/events"
	"sidequest/internal/level"
	"sidequest/internal/logger"
	"sidequest/internal/notify"
	"sidequest/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Notify notify.Emitter
	Config *config.Config
	Log    *logger.Logger
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Notify: notify.Nop{},
		Config: cfg,
		Log:    logger.Nop(),
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) log() *logger.Logger {
	if e.Log != nil {
		return e.Log
	}
	return logger.Nop()
}

func (e Engine) emit(evt notify.Event) {
	if e.Notify != nil {
		e.Notify.Emit(evt)
	}
}

func (e Engine) appendEvent(ctx context.Context, tx *sql.Tx, evtType, userID, entityKind, entityID, actorID string, payload events.EventPayload) error {
	w := e.Events
	if w.Now == nil {
		w.Now = e.now
	}
	return w.Append(ctx, tx, evtType, userID, entityKind, entityID, actorID, payload)
}

func (e Engine) defaultReward() int {
	if e.Config != nil {
		return e.Config.Game.DefaultReward
	}
	return 100
}

func newID() string {
	return ulid.Make().String()
}

// ValidationError reports a rejected input before any write happened.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// checkReward bounds an experience reward to [0, level.MaxReward].
func checkReward(reward int) error {
	if reward < 0 {
		return invalid("experience_reward", "cannot be negative")
	}
	if reward > level.MaxReward {
		return invalid("experience_reward", fmt.Sprintf("must be at most %d", level.MaxReward))
	}
	return nil
}

func required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return invalid(field, "is required")
	}
	return nil
}
