package server

import (
	"encoding/json"

	"sidequest/internal/domain"
	"sidequest/internal/engine"
	"sidequest/internal/level"
	"sidequest/internal/repo"
)

// Request payloads

type RegisterRequest struct {
	Username string `json:"username" minLength:"1"`
	Email    string `json:"email" format:"email"`
	Password string `json:"password" minLength:"8"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CreateAPIKeyRequest struct {
	Name string `json:"name,omitempty"`
}

type CreateAdventurerRequest struct {
	Name       string `json:"name"`
	Type       string `json:"adventurer_type"`
	Level      *int   `json:"level,omitempty" minimum:"1"`
	Experience *int   `json:"experience,omitempty" minimum:"0"`
}

// UpdateAdventurerRequest only carries profile fields; level and experience
// change through quest completion.
type UpdateAdventurerRequest struct {
	Name *string `json:"name,omitempty"`
	Type *string `json:"adventurer_type,omitempty"`
}

type CreateQuestRequest struct {
	AdventurerID     string `json:"adventurer_id"`
	Title            string `json:"title"`
	ExperienceReward *int   `json:"experience_reward,omitempty" minimum:"0" maximum:"1000000"`
}

type UpdateQuestRequest struct {
	Title            *string `json:"title,omitempty"`
	ExperienceReward *int    `json:"experience_reward,omitempty" minimum:"0" maximum:"1000000"`
	AdventurerID     *string `json:"adventurer_id,omitempty"`
	Completed        *bool   `json:"completed,omitempty"`
}

type CompleteQuestRequest struct {
	AdventurerID     string `json:"adventurer_id"`
	QuestID          string `json:"quest_id"`
	ExperienceReward *int   `json:"experience_reward,omitempty" minimum:"0" maximum:"1000000"`
}

// Responses

type UserResponse struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type TokenResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type" example:"bearer"`
	ExpiresAt   string       `json:"expires_at" format:"date-time"`
	User        UserResponse `json:"user"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	Key       string `json:"key,omitempty" doc:"Only returned when the key is minted; a hash is stored."`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type AdventurerResponse struct {
	ID                     string                `json:"id"`
	OwnerUserID            string                `json:"owner_user_id"`
	Name                   string                `json:"name"`
	Type                   string                `json:"adventurer_type"`
	Level                  int                   `json:"level"`
	Experience             int                   `json:"experience"`
	ExperienceForNextLevel int                   `json:"experience_for_next_level"`
	ProgressPercentage     float64               `json:"progress_percentage"`
	CompletedQuestsCount   *int                  `json:"completed_quests_count,omitempty"`
	CompletedQuests        []repo.CompletedQuest `json:"completed_quests,omitempty"`
	CreatedAt              string                `json:"created_at" format:"date-time"`
	UpdatedAt              string                `json:"updated_at" format:"date-time"`
}

type QuestResponse struct {
	ID               string `json:"id"`
	AdventurerID     string `json:"adventurer_id"`
	Title            string `json:"title"`
	ExperienceReward int    `json:"experience_reward"`
	Completed        bool   `json:"completed"`
	CreatedAt        string `json:"created_at" format:"date-time"`
	UpdatedAt        string `json:"updated_at" format:"date-time"`
}

type CompletionResponse struct {
	WasNewCompletion bool               `json:"was_new_completion"`
	LeveledUp        bool               `json:"leveled_up"`
	OldLevel         int                `json:"old_level"`
	Adventurer       AdventurerResponse `json:"adventurer"`
}

type RevertResponse struct {
	Removed bool `json:"removed"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload,omitempty"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// Mapping helpers

func userResponse(u domain.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
	}
}

func adventurerResponse(a domain.Adventurer) AdventurerResponse {
	res := AdventurerResponse{
		ID:          a.ID,
		OwnerUserID: a.OwnerUserID,
		Name:        a.Name,
		Type:        a.Type,
		Level:       a.Level,
		Experience:  a.Experience,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
	if p, err := level.ProgressOf(a.Level, a.Experience); err == nil {
		res.ExperienceForNextLevel = p.ExperienceForNextLevel
		res.ProgressPercentage = p.Percentage
	}
	return res
}

func detailsResponse(d engine.AdventurerDetails) AdventurerResponse {
	res := adventurerResponse(d.Adventurer)
	res.ExperienceForNextLevel = d.ExperienceForNextLevel
	res.ProgressPercentage = d.Percentage
	count := d.CompletedQuestsCount
	res.CompletedQuestsCount = &count
	res.CompletedQuests = nonNilSlice(d.CompletedQuests)
	return res
}

func questResponse(q domain.Quest) QuestResponse {
	return QuestResponse{
		ID:               q.ID,
		AdventurerID:     q.AdventurerID,
		Title:            q.Title,
		ExperienceReward: q.ExperienceReward,
		Completed:        q.Completed,
		CreatedAt:        q.CreatedAt,
		UpdatedAt:        q.UpdatedAt,
	}
}

func completionResponse(r engine.CompletionResult) CompletionResponse {
	return CompletionResponse{
		WasNewCompletion: r.WasNewCompletion,
		LeveledUp:        r.LeveledUp,
		OldLevel:         r.OldLevel,
		Adventurer:       adventurerResponse(r.Adventurer),
	}
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func mapAdventurers(items []domain.Adventurer) []AdventurerResponse {
	res := make([]AdventurerResponse, 0, len(items))
	for _, a := range items {
		res = append(res, adventurerResponse(a))
	}
	return res
}

func mapQuests(items []domain.Quest) []QuestResponse {
	res := make([]QuestResponse, 0, len(items))
	for _, q := range items {
		res = append(res, questResponse(q))
	}
	return res
}

// JSON helpers

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil
	}
	return obj
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
