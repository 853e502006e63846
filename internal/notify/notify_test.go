package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sidequest/internal/domain"
	"sidequest/internal/logger"
	"sidequest/internal/repo"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (s *recordingSink) Deliver(_ context.Context, evt Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
	return s.err
}

func TestNotifierDeliversInBackground(t *testing.T) {
	sink := &recordingSink{}
	n := New(sink, logger.Nop(), time.Second)

	n.Emit(LevelUp{AdventurerID: "a1", OldLevel: 1, NewLevel: 2})
	n.Emit(DailyRecap{UserID: "u1"})
	n.Wait()

	require.Len(t, sink.events, 2)
}

func TestNotifierSwallowsSinkErrors(t *testing.T) {
	sink := &recordingSink{err: errors.New("smtp down")}
	n := New(sink, logger.Nop(), time.Second)
	n.Emit(LevelUp{AdventurerID: "a1", OldLevel: 4, NewLevel: 5})
	n.Close()
	assert.Len(t, sink.events, 1)

	// closed notifiers drop events
	n.Emit(LevelUp{AdventurerID: "a1", OldLevel: 5, NewLevel: 6})
	n.Wait()
	assert.Len(t, sink.events, 1)
}

func TestMultiJoinsErrors(t *testing.T) {
	ok := &recordingSink{}
	bad := &recordingSink{err: errors.New("boom")}
	err := Multi{ok, bad}.Deliver(context.Background(), LevelUp{NewLevel: 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Len(t, ok.events, 1)
}

func TestMilestone(t *testing.T) {
	assert.True(t, LevelUp{NewLevel: 5}.Milestone())
	assert.True(t, LevelUp{NewLevel: 10}.Milestone())
	assert.False(t, LevelUp{NewLevel: 6}.Milestone())
}

type fakePublisher struct {
	channel string
	payload []byte
}

func (f *fakePublisher) Publish(ctx context.Context, channel string, message interface{}) *goredis.IntCmd {
	f.channel = channel
	f.payload, _ = message.([]byte)
	cmd := goredis.NewIntCmd(ctx)
	cmd.SetVal(1)
	return cmd
}

func TestRedisSinkPublishesEnvelope(t *testing.T) {
	pub := &fakePublisher{}
	sink := RedisSink{Client: pub, Channel: "quests"}
	require.NoError(t, sink.Deliver(context.Background(), LevelUp{AdventurerID: "a1", OldLevel: 1, NewLevel: 2}))

	assert.Equal(t, "quests", pub.channel)
	var got struct {
		Kind    string         `json:"kind"`
		Payload map[string]any `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(pub.payload, &got))
	assert.Equal(t, KindLevelUp, got.Kind)
	assert.Equal(t, "a1", got.Payload["adventurer_id"])
	assert.EqualValues(t, 2, got.Payload["new_level"])
}

type fakeDirectory struct {
	recap *domain.Recap
}

func (fakeDirectory) GetAdventurer(_ context.Context, id string) (domain.Adventurer, error) {
	return domain.Adventurer{ID: id, Name: "Brom", OwnerUserID: "u1"}, nil
}

func (fakeDirectory) GetUser(_ context.Context, id string) (domain.User, error) {
	return domain.User{ID: id, Username: "ada", Email: "ada@example.com"}, nil
}

func (d fakeDirectory) UserRecap(_ context.Context, userID, start, end string) (domain.Recap, error) {
	if d.recap == nil {
		return domain.Recap{}, repo.ErrNotFound
	}
	return *d.recap, nil
}

type captureMailer struct {
	sent []Message
}

func (m *captureMailer) Send(_ context.Context, msg Message) error {
	m.sent = append(m.sent, msg)
	return nil
}

func TestMailSinkLevelUp(t *testing.T) {
	mailer := &captureMailer{}
	sink := MailSink{Directory: fakeDirectory{}, Mailer: mailer, From: "noreply@test"}

	require.NoError(t, sink.Deliver(context.Background(), LevelUp{AdventurerID: "a1", OldLevel: 3, NewLevel: 4}))
	require.NoError(t, sink.Deliver(context.Background(), LevelUp{AdventurerID: "a1", OldLevel: 4, NewLevel: 5}))
	require.Len(t, mailer.sent, 2)

	assert.Equal(t, "ada@example.com", mailer.sent[0].To)
	assert.Equal(t, "Brom reached level 4!", mailer.sent[0].Subject)
	assert.NotContains(t, mailer.sent[0].HTML, "milestone")
	assert.Contains(t, mailer.sent[1].HTML, "milestone")
}

func TestMailSinkDailyRecap(t *testing.T) {
	start := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	evt := DailyRecap{UserID: "u1", PeriodStart: start, PeriodEnd: start.Add(24 * time.Hour)}

	mailer := &captureMailer{}
	sink := MailSink{Directory: fakeDirectory{}, Mailer: mailer}
	require.NoError(t, sink.Deliver(context.Background(), evt))
	assert.Empty(t, mailer.sent, "no activity means no email")

	recap := &domain.Recap{
		UserID: "u1", Username: "ada", Email: "ada@example.com",
		Adventurers: []domain.RecapEntry{{AdventurerName: "Brom", Level: 2, QuestTitles: []string{"Slay rats"}, QuestCount: 1, ExperienceGain: 100}},
		TotalQuests: 1, TotalXP: 100,
	}
	sink.Directory = fakeDirectory{recap: recap}
	require.NoError(t, sink.Deliver(context.Background(), evt))
	require.Len(t, mailer.sent, 1)
	assert.Contains(t, mailer.sent[0].Subject, "March 4, 2024")
	assert.Contains(t, mailer.sent[0].HTML, "Slay rats")
	assert.Contains(t, mailer.sent[0].HTML, "Total: 1 quests, 100 XP")
}
