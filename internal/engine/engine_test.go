package engine_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"sidequest/internal/config"
	"sidequest/internal/db"
	"sidequest/internal/domain"
	"sidequest/internal/engine"
	"sidequest/internal/engine/auth"
	"sidequest/internal/level"
	"sidequest/internal/migrate"
	"sidequest/internal/notify"
	"sidequest/internal/repo"
)

type recorder struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recorder) Emit(evt notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recorder) levelUps() []notify.LevelUp {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notify.LevelUp
	for _, evt := range r.events {
		if lu, ok := evt.(notify.LevelUp); ok {
			out = append(out, lu)
		}
	}
	return out
}

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
	Sent   *recorder
	User   domain.User
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default())
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC) }
	rec := &recorder{}
	eng.Notify = rec
	ctx := context.Background()
	u, err := eng.RegisterUser(ctx, engine.RegisterOptions{Username: "ada", Email: "ada@example.com", Password: "hunter2hunter2"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx, Sent: rec, User: u}
}

func (env testEnv) adventurer(t *testing.T, name string) domain.Adventurer {
	t.Helper()
	a, err := env.Engine.CreateAdventurer(env.Ctx, engine.AdventurerCreateOptions{
		OwnerUserID: env.User.ID,
		Name:        name,
		Type:        "warrior",
	})
	if err != nil {
		t.Fatalf("create adventurer: %v", err)
	}
	return a
}

func (env testEnv) quest(t *testing.T, adventurerID string, reward int) domain.Quest {
	t.Helper()
	q, err := env.Engine.CreateQuest(env.Ctx, engine.QuestCreateOptions{
		AdventurerID: adventurerID,
		Title:        "Clear the cellar",
		Reward:       &reward,
	})
	if err != nil {
		t.Fatalf("create quest: %v", err)
	}
	return q
}

func (env testEnv) complete(t *testing.T, a domain.Adventurer, q domain.Quest) engine.CompletionResult {
	t.Helper()
	res, err := env.Engine.CompleteQuest(env.Ctx, engine.CompleteQuestOptions{AdventurerID: a.ID, QuestID: q.ID})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	return res
}

func TestCompletionLevelsUpAndResetsExperience(t *testing.T) {
	env := newTestEnv(t)
	a := env.adventurer(t, "Brom")
	q := env.quest(t, a.ID, 100)

	res := env.complete(t, a, q)
	if !res.WasNewCompletion || !res.LeveledUp {
		t.Fatalf("expected new completion with level up, got %+v", res)
	}
	if res.OldLevel != 1 || res.Adventurer.Level != 2 || res.Adventurer.Experience != 0 {
		t.Fatalf("unexpected progress: %+v", res)
	}
	stored, err := env.Engine.Repo.GetQuest(env.Ctx, q.ID)
	if err != nil || !stored.Completed {
		t.Fatalf("quest should be completed: %+v %v", stored, err)
	}
	ups := env.Sent.levelUps()
	if len(ups) != 1 || ups[0].OldLevel != 1 || ups[0].NewLevel != 2 || ups[0].AdventurerID != a.ID {
		t.Fatalf("unexpected notifications: %+v", ups)
	}
}

func TestCompletionAccumulatesBelowThreshold(t *testing.T) {
	env := newTestEnv(t)
	a := env.adventurer(t, "Brom")
	first := env.quest(t, a.ID, 60)
	second := env.quest(t, a.ID, 50)

	res := env.complete(t, a, first)
	if res.LeveledUp || res.Adventurer.Level != 1 || res.Adventurer.Experience != 60 {
		t.Fatalf("unexpected progress after 60: %+v", res)
	}
	if len(env.Sent.levelUps()) != 0 {
		t.Fatalf("no notification expected below threshold")
	}
	res = env.complete(t, a, second)
	if !res.LeveledUp || res.Adventurer.Level != 2 || res.Adventurer.Experience != 0 {
		t.Fatalf("excess experience should be discarded: %+v", res)
	}
}

func TestDuplicateCompletionIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	a := env.adventurer(t, "Brom")
	q := env.quest(t, a.ID, 40)

	env.complete(t, a, q)
	res := env.complete(t, a, q)
	if res.WasNewCompletion || res.LeveledUp {
		t.Fatalf("replay should report no change: %+v", res)
	}
	if res.Adventurer.Experience != 40 {
		t.Fatalf("experience awarded twice: %+v", res.Adventurer)
	}
	// a different override on replay is ignored too
	override := 500
	res, err := env.Engine.CompleteQuest(env.Ctx, engine.CompleteQuestOptions{AdventurerID: a.ID, QuestID: q.ID, ExperienceReward: &override})
	if err != nil {
		t.Fatal(err)
	}
	if res.WasNewCompletion || res.LeveledUp || res.Adventurer.Level != 1 || res.Adventurer.Experience != 40 {
		t.Fatalf("override replay changed progress: %+v", res)
	}
	n, err := env.Engine.Repo.CountCompletions(env.Ctx, a.ID)
	if err != nil || n != 1 {
		t.Fatalf("expected one ledger row, got %d (%v)", n, err)
	}
}

func TestCompletionRollsBackOnStorageFailure(t *testing.T) {
	env := newTestEnv(t)
	a := env.adventurer(t, "Brom")
	q := env.quest(t, a.ID, 100)

	// fail the last write of the completion transaction
	if _, err := env.Engine.DB.Exec(`CREATE TRIGGER fail_quest_flag BEFORE UPDATE OF completed ON quests
BEGIN SELECT RAISE(ABORT, 'quest flag write failed'); END`); err != nil {
		t.Fatalf("create trigger: %v", err)
	}
	if _, err := env.Engine.CompleteQuest(env.Ctx, engine.CompleteQuestOptions{AdventurerID: a.ID, QuestID: q.ID}); err == nil {
		t.Fatalf("expected storage error")
	}

	got, err := env.Engine.Repo.GetAdventurer(env.Ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Level != 1 || got.Experience != 0 {
		t.Fatalf("progress survived a rolled back completion: %+v", got)
	}
	if n, err := env.Engine.Repo.CountCompletions(env.Ctx, a.ID); err != nil || n != 0 {
		t.Fatalf("ledger row survived a rolled back completion: %d (%v)", n, err)
	}
	if len(env.Sent.levelUps()) != 0 {
		t.Fatalf("level-up emitted for a rolled back completion")
	}

	// the pair is still completable once storage recovers
	if _, err := env.Engine.DB.Exec(`DROP TRIGGER fail_quest_flag`); err != nil {
		t.Fatal(err)
	}
	res := env.complete(t, a, q)
	if !res.WasNewCompletion || !res.LeveledUp || res.Adventurer.Level != 2 {
		t.Fatalf("retry after rollback: %+v", res)
	}
}

func TestRewardUpperBound(t *testing.T) {
	env := newTestEnv(t)
	a := env.adventurer(t, "Brom")
	q := env.quest(t, a.ID, 10)

	huge := math.MaxInt
	_, err := env.Engine.CompleteQuest(env.Ctx, engine.CompleteQuestOptions{AdventurerID: a.ID, QuestID: q.ID, ExperienceReward: &huge})
	var verr *engine.ValidationError
	if !errors.As(err, &verr) || verr.Field != "experience_reward" {
		t.Fatalf("expected experience_reward validation error, got %v", err)
	}
	_, err = env.Engine.CreateQuest(env.Ctx, engine.QuestCreateOptions{AdventurerID: a.ID, Title: "Slay", Reward: &huge})
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error on create, got %v", err)
	}
	over := level.MaxReward + 1
	_, err = env.Engine.UpdateQuest(env.Ctx, engine.QuestUpdate{ID: q.ID, Reward: &over})
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error on update, got %v", err)
	}
	if n, _ := env.Engine.Repo.CountCompletions(env.Ctx, a.ID); n != 0 {
		t.Fatalf("rejected reward must not record a completion")
	}
}

func TestConcurrentCompletionsAwardOnce(t *testing.T) {
	env := newTestEnv(t)
	a := env.adventurer(t, "Brom")
	q := env.quest(t, a.ID, 100)

	const workers = 8
	var wg sync.WaitGroup
	results := make([]engine.CompletionResult, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = env.Engine.CompleteQuest(env.Ctx, engine.CompleteQuestOptions{AdventurerID: a.ID, QuestID: q.ID})
		}(i)
	}
	wg.Wait()

	fresh := 0
	for i := range results {
		if errs[i] != nil {
			t.Fatalf("worker %d: %v", i, errs[i])
		}
		if results[i].WasNewCompletion {
			fresh++
		}
	}
	if fresh != 1 {
		t.Fatalf("expected exactly one new completion, got %d", fresh)
	}
	got, err := env.Engine.Repo.GetAdventurer(env.Ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Level != 2 || got.Experience != 0 {
		t.Fatalf("reward applied more than once: %+v", got)
	}
	if len(env.Sent.levelUps()) != 1 {
		t.Fatalf("expected one level-up notification, got %d", len(env.Sent.levelUps()))
	}
}

func TestRevertKeepsExperience(t *testing.T) {
	env := newTestEnv(t)
	a := env.adventurer(t, "Brom")
	q := env.quest(t, a.ID, 100)
	env.complete(t, a, q)

	removed, err := env.Engine.RevertCompletion(env.Ctx, engine.RevertOptions{AdventurerID: a.ID, QuestID: q.ID})
	if err != nil || !removed {
		t.Fatalf("revert: removed=%v err=%v", removed, err)
	}
	got, _ := env.Engine.Repo.GetAdventurer(env.Ctx, a.ID)
	if got.Level != 2 || got.Experience != 0 {
		t.Fatalf("revert must not touch progress: %+v", got)
	}
	stored, _ := env.Engine.Repo.GetQuest(env.Ctx, q.ID)
	if stored.Completed {
		t.Fatalf("quest flag should be cleared")
	}
	// nothing left to remove
	removed, err = env.Engine.RevertCompletion(env.Ctx, engine.RevertOptions{AdventurerID: a.ID, QuestID: q.ID})
	if err != nil || removed {
		t.Fatalf("second revert: removed=%v err=%v", removed, err)
	}
	// completing again is a fresh award against the level 2 threshold of 200
	res := env.complete(t, a, q)
	if !res.WasNewCompletion || res.LeveledUp || res.Adventurer.Level != 2 || res.Adventurer.Experience != 100 {
		t.Fatalf("re-completion after revert: %+v", res)
	}
}

func TestCompletionValidation(t *testing.T) {
	env := newTestEnv(t)
	a := env.adventurer(t, "Brom")
	b := env.adventurer(t, "Cass")
	q := env.quest(t, b.ID, 10)

	var ve *engine.ValidationError
	_, err := env.Engine.CompleteQuest(env.Ctx, engine.CompleteQuestOptions{AdventurerID: a.ID, QuestID: q.ID})
	if !errors.As(err, &ve) || ve.Field != "quest_id" {
		t.Fatalf("expected validation error for unassigned quest, got %v", err)
	}
	neg := -5
	_, err = env.Engine.CompleteQuest(env.Ctx, engine.CompleteQuestOptions{AdventurerID: b.ID, QuestID: q.ID, ExperienceReward: &neg})
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error for negative reward, got %v", err)
	}
	_, err = env.Engine.CompleteQuest(env.Ctx, engine.CompleteQuestOptions{AdventurerID: "missing", QuestID: q.ID})
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	_, err = env.Engine.CompleteQuest(env.Ctx, engine.CompleteQuestOptions{AdventurerID: b.ID, QuestID: q.ID, ActorID: "someone-else"})
	var fe auth.ForbiddenError
	if !errors.As(err, &fe) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestCreateAdventurerValidation(t *testing.T) {
	env := newTestEnv(t)
	var ve *engine.ValidationError
	lvl, exp := 2, 200
	_, err := env.Engine.CreateAdventurer(env.Ctx, engine.AdventurerCreateOptions{
		OwnerUserID: env.User.ID, Name: "Brom", Type: "warrior", Level: &lvl, Experience: &exp,
	})
	if !errors.As(err, &ve) || ve.Field != "experience" {
		t.Fatalf("expected experience validation error, got %v", err)
	}
	_, err = env.Engine.CreateAdventurer(env.Ctx, engine.AdventurerCreateOptions{OwnerUserID: "nobody", Name: "Brom", Type: "warrior"})
	if !errors.As(err, &ve) || ve.Field != "owner_user_id" {
		t.Fatalf("expected owner validation error, got %v", err)
	}
	env.adventurer(t, "Brom")
	_, err = env.Engine.CreateAdventurer(env.Ctx, engine.AdventurerCreateOptions{OwnerUserID: env.User.ID, Name: "Brom", Type: "mage"})
	if !errors.Is(err, repo.ErrConflict) {
		t.Fatalf("expected conflict for duplicate name, got %v", err)
	}
}

func TestUpdateQuestCompletedFlag(t *testing.T) {
	env := newTestEnv(t)
	a := env.adventurer(t, "Brom")
	q := env.quest(t, a.ID, 30)

	yes, no := true, false
	got, err := env.Engine.UpdateQuest(env.Ctx, engine.QuestUpdate{ID: q.ID, Completed: &yes})
	if err != nil || !got.Completed {
		t.Fatalf("complete via update: %+v %v", got, err)
	}
	adv, _ := env.Engine.Repo.GetAdventurer(env.Ctx, a.ID)
	if adv.Experience != 30 {
		t.Fatalf("expected reward applied, got %+v", adv)
	}
	// repeated true is a replay
	if _, err := env.Engine.UpdateQuest(env.Ctx, engine.QuestUpdate{ID: q.ID, Completed: &yes}); err != nil {
		t.Fatal(err)
	}
	adv, _ = env.Engine.Repo.GetAdventurer(env.Ctx, a.ID)
	if adv.Experience != 30 {
		t.Fatalf("reward applied twice: %+v", adv)
	}
	got, err = env.Engine.UpdateQuest(env.Ctx, engine.QuestUpdate{ID: q.ID, Completed: &no})
	if err != nil || got.Completed {
		t.Fatalf("revert via update: %+v %v", got, err)
	}
	if ok, _ := env.Engine.Repo.HasCompletion(env.Ctx, nil, a.ID, q.ID); ok {
		t.Fatalf("ledger row should be gone")
	}
}

func TestReassignQuestFollowsLedger(t *testing.T) {
	env := newTestEnv(t)
	a := env.adventurer(t, "Brom")
	b := env.adventurer(t, "Cass")
	q := env.quest(t, a.ID, 30)
	env.complete(t, a, q)

	got, err := env.Engine.UpdateQuest(env.Ctx, engine.QuestUpdate{ID: q.ID, AdventurerID: &b.ID})
	if err != nil {
		t.Fatalf("reassign: %v", err)
	}
	if got.AdventurerID != b.ID || got.Completed {
		t.Fatalf("reassigned quest should be open for the new adventurer: %+v", got)
	}
	res := env.complete(t, b, got)
	if !res.WasNewCompletion || res.Adventurer.Experience != 30 {
		t.Fatalf("new assignee should earn the reward: %+v", res)
	}

	missing := "nope"
	var ve *engine.ValidationError
	if _, err := env.Engine.UpdateQuest(env.Ctx, engine.QuestUpdate{ID: q.ID, AdventurerID: &missing}); !errors.As(err, &ve) {
		t.Fatalf("expected validation error for unknown adventurer, got %v", err)
	}
}

func TestDeleteAdventurerCascades(t *testing.T) {
	env := newTestEnv(t)
	a := env.adventurer(t, "Brom")
	q := env.quest(t, a.ID, 10)
	env.complete(t, a, q)

	ok, err := env.Engine.DeleteAdventurer(env.Ctx, a.ID, "")
	if err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	if _, err := env.Engine.Repo.GetQuest(env.Ctx, q.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("quest should cascade, got %v", err)
	}
	ok, err = env.Engine.DeleteAdventurer(env.Ctx, a.ID, "")
	if err != nil || ok {
		t.Fatalf("second delete should report false: %v %v", ok, err)
	}
}

func TestDescribeIncludesProgress(t *testing.T) {
	env := newTestEnv(t)
	a := env.adventurer(t, "Brom")
	q := env.quest(t, a.ID, 50)
	res := env.complete(t, a, q)

	d, err := env.Engine.Describe(env.Ctx, res.Adventurer)
	if err != nil {
		t.Fatal(err)
	}
	if d.ExperienceForNextLevel != 100 || d.Percentage != 50 || d.CompletedQuestsCount != 1 {
		t.Fatalf("unexpected details: %+v", d)
	}
}

func TestRegisterAndAuthenticate(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.RegisterUser(env.Ctx, engine.RegisterOptions{Username: "ada", Email: "other@example.com", Password: "hunter2hunter2"}); !errors.Is(err, repo.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	u, err := env.Engine.Authenticate(env.Ctx, "ada", "hunter2hunter2")
	if err != nil || u.ID != env.User.ID {
		t.Fatalf("authenticate: %v", err)
	}
	if _, err := env.Engine.Authenticate(env.Ctx, "ada", "wrong-password"); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if _, err := env.Engine.Authenticate(env.Ctx, "ghost", "whatever1"); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for unknown user, got %v", err)
	}
	raw, key, err := env.Engine.CreateAPIKey(env.Ctx, u.ID, "ci")
	if err != nil {
		t.Fatal(err)
	}
	stored, err := env.Engine.Repo.GetAPIKeyByHash(env.Ctx, repo.HashAPIKey(raw))
	if err != nil || stored.ID != key.ID || stored.UserID != u.ID {
		t.Fatalf("api key lookup: %+v %v", stored, err)
	}
}

func TestSendDailyRecaps(t *testing.T) {
	env := newTestEnv(t)
	a := env.adventurer(t, "Brom")
	env.complete(t, a, env.quest(t, a.ID, 10))

	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	n, err := env.Engine.SendDailyRecaps(env.Ctx, day)
	if err != nil || n != 1 {
		t.Fatalf("send recaps: n=%d err=%v", n, err)
	}
	var recap notify.DailyRecap
	for _, evt := range env.Sent.events {
		if r, ok := evt.(notify.DailyRecap); ok {
			recap = r
		}
	}
	if recap.UserID != env.User.ID || !recap.PeriodStart.Equal(day) {
		t.Fatalf("unexpected recap event: %+v", recap)
	}
	n, err = env.Engine.SendDailyRecaps(env.Ctx, day.AddDate(0, 0, 1))
	if err != nil || n != 0 {
		t.Fatalf("empty day: n=%d err=%v", n, err)
	}

	start, end := engine.RecapWindow(time.Date(2024, 1, 2, 1, 30, 0, 0, time.UTC))
	if !start.Equal(day) || !end.Equal(day.AddDate(0, 0, 1)) {
		t.Fatalf("unexpected window: %v %v", start, end)
	}
}

func TestRevokeAPIKeyScopedToOwner(t *testing.T) {
	env := newTestEnv(t)
	_, key, err := env.Engine.CreateAPIKey(env.Ctx, env.User.ID, "ci")
	if err != nil {
		t.Fatal(err)
	}
	other, err := env.Engine.RegisterUser(env.Ctx, engine.RegisterOptions{Username: "bob", Email: "bob@example.com", Password: "hunter2hunter2"})
	if err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.RevokeAPIKey(env.Ctx, other.ID, key.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found for foreign key, got %v", err)
	}
	if err := env.Engine.RevokeAPIKey(env.Ctx, env.User.ID, key.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	keys, err := env.Engine.ListAPIKeys(env.Ctx, env.User.ID)
	if err != nil || len(keys) != 0 {
		t.Fatalf("expected no keys, got %d (%v)", len(keys), err)
	}
}

func TestDeleteUserCascades(t *testing.T) {
	env := newTestEnv(t)
	a := env.adventurer(t, "Brom")
	env.complete(t, a, env.quest(t, a.ID, 10))

	if err := env.Engine.DeleteUser(env.Ctx, env.User.ID); err != nil {
		t.Fatalf("delete user: %v", err)
	}
	if _, err := env.Engine.Repo.GetAdventurer(env.Ctx, a.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("adventurer should be gone, got %v", err)
	}
	if err := env.Engine.DeleteUser(env.Ctx, env.User.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}
