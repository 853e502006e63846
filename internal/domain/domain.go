package domain

type User struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
	CreatedAt    string `json:"created_at" format:"date-time"`
	UpdatedAt    string `json:"updated_at" format:"date-time"`
}

// Adventurer is a user-owned character. Level and Experience change only
// through quest completion.
type Adventurer struct {
	ID          string `json:"id"`
	OwnerUserID string `json:"owner_user_id"`
	Name        string `json:"name"`
	Type        string `json:"adventurer_type"`
	Level       int    `json:"level"`
	Experience  int    `json:"experience"`
	CreatedAt   string `json:"created_at" format:"date-time"`
	UpdatedAt   string `json:"updated_at" format:"date-time"`
}

type Quest struct {
	ID               string `json:"id"`
	AdventurerID     string `json:"adventurer_id"`
	Title            string `json:"title"`
	ExperienceReward int    `json:"experience_reward"`
	Completed        bool   `json:"completed"`
	CreatedAt        string `json:"created_at" format:"date-time"`
	UpdatedAt        string `json:"updated_at" format:"date-time"`
}

// QuestCompletion is a ledger row. At most one exists per (AdventurerID, QuestID).
type QuestCompletion struct {
	ID                string `json:"id"`
	AdventurerID      string `json:"adventurer_id"`
	QuestID           string `json:"quest_id"`
	ExperienceAwarded int    `json:"experience_awarded"`
	CreatedAt         string `json:"created_at" format:"date-time"`
	UpdatedAt         string `json:"updated_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	UserID     string `json:"user_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload,omitempty"`
}

type APIKey struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"-"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// RecapEntry aggregates one adventurer's completions inside a recap window.
type RecapEntry struct {
	AdventurerID   string   `json:"adventurer_id"`
	AdventurerName string   `json:"adventurer_name"`
	Level          int      `json:"level"`
	QuestTitles    []string `json:"quest_titles"`
	QuestCount     int      `json:"quest_count"`
	ExperienceGain int      `json:"experience_gain"`
}

// Recap is a user's activity summary for a window.
type Recap struct {
	UserID      string       `json:"user_id"`
	Username    string       `json:"username"`
	Email       string       `json:"email"`
	PeriodStart string       `json:"period_start" format:"date-time"`
	PeriodEnd   string       `json:"period_end" format:"date-time"`
	Adventurers []RecapEntry `json:"adventurers"`
	TotalQuests int          `json:"total_quests"`
	TotalXP     int          `json:"total_xp"`
}
