package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const (
	AdventurerCreated   = "adventurer.created"
	AdventurerUpdated   = "adventurer.updated"
	AdventurerDeleted   = "adventurer.deleted"
	AdventurerLeveledUp = "adventurer.leveled_up"
	QuestCreated        = "quest.created"
	QuestUpdated        = "quest.updated"
	QuestDeleted        = "quest.deleted"
	QuestCompleted      = "quest.completed"
	QuestReverted       = "quest.reverted"
	UserRegistered      = "user.registered"
	UserDeleted         = "user.deleted"
)

// Writer appends to the events table inside the caller's transaction, so an
// event exists iff the change it describes was committed.
type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, userID, entityKind, entityID, actorID string, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	if actorID == "" {
		actorID = "system"
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,user_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		ts, evtType, nullable(userID), entityKind, nullable(entityID), actorID, string(data))
	if err != nil {
		return fmt.Errorf("append %s event: %w", evtType, err)
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
