package sidequestsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Sidequest HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/api/v1",
		Timeout:  10 * time.Second,
	}
}

type User struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	CreatedAt string `json:"created_at"`
}

type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresAt   string `json:"expires_at"`
	User        User   `json:"user"`
}

type APIKey struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Key  string `json:"key"`
}

type CompletedQuest struct {
	QuestID           string `json:"quest_id"`
	Title             string `json:"title"`
	ExperienceAwarded int    `json:"experience_awarded"`
	CompletedAt       string `json:"completed_at"`
}

// Adventurer is the API adventurer view. The completed quest fields are only
// filled by GetAdventurer.
type Adventurer struct {
	ID                     string           `json:"id"`
	OwnerUserID            string           `json:"owner_user_id"`
	Name                   string           `json:"name"`
	Type                   string           `json:"adventurer_type"`
	Level                  int              `json:"level"`
	Experience             int              `json:"experience"`
	ExperienceForNextLevel int              `json:"experience_for_next_level"`
	ProgressPercentage     float64          `json:"progress_percentage"`
	CompletedQuestsCount   int              `json:"completed_quests_count"`
	CompletedQuests        []CompletedQuest `json:"completed_quests"`
}

type Quest struct {
	ID               string `json:"id"`
	AdventurerID     string `json:"adventurer_id"`
	Title            string `json:"title"`
	ExperienceReward int    `json:"experience_reward"`
	Completed        bool   `json:"completed"`
}

// Completion is the outcome of CompleteQuest.
type Completion struct {
	WasNewCompletion bool       `json:"was_new_completion"`
	LeveledUp        bool       `json:"leveled_up"`
	OldLevel         int        `json:"old_level"`
	Adventurer       Adventurer `json:"adventurer"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityID   string         `json:"entity_id"`
	EntityKind string         `json:"entity_kind"`
	Payload    map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

func (c *Client) Register(ctx context.Context, username, email, password string) (User, error) {
	body := map[string]any{"username": username, "email": email, "password": password}
	var resp User
	err := c.do(ctx, http.MethodPost, "auth/register", body, &resp)
	return resp, err
}

// Login exchanges credentials for a token and keeps it for later calls.
func (c *Client) Login(ctx context.Context, username, password string) (Token, error) {
	body := map[string]any{"username": username, "password": password}
	var resp Token
	if err := c.do(ctx, http.MethodPost, "auth/login", body, &resp); err != nil {
		return resp, err
	}
	c.BearerToken = resp.AccessToken
	return resp, nil
}

func (c *Client) Me(ctx context.Context) (User, error) {
	var resp User
	err := c.do(ctx, http.MethodGet, "me", nil, &resp)
	return resp, err
}

func (c *Client) CreateAPIKey(ctx context.Context, name string) (APIKey, error) {
	var resp APIKey
	err := c.do(ctx, http.MethodPost, "api-keys", map[string]any{"name": name}, &resp)
	return resp, err
}

func (c *Client) CreateAdventurer(ctx context.Context, name, adventurerType string) (Adventurer, error) {
	body := map[string]any{"name": name, "adventurer_type": adventurerType}
	var resp Adventurer
	err := c.do(ctx, http.MethodPost, "adventurers", body, &resp)
	return resp, err
}

func (c *Client) ListAdventurers(ctx context.Context) ([]Adventurer, error) {
	var resp []Adventurer
	err := c.do(ctx, http.MethodGet, "adventurers", nil, &resp)
	return resp, err
}

func (c *Client) GetAdventurer(ctx context.Context, id string) (Adventurer, error) {
	var resp Adventurer
	err := c.do(ctx, http.MethodGet, "adventurers/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

func (c *Client) DeleteAdventurer(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "adventurers/"+url.PathEscape(id), nil, nil)
}

// CreateQuest creates a quest. A nil reward uses the server default.
func (c *Client) CreateQuest(ctx context.Context, adventurerID, title string, reward *int) (Quest, error) {
	body := map[string]any{"adventurer_id": adventurerID, "title": title}
	if reward != nil {
		body["experience_reward"] = *reward
	}
	var resp Quest
	err := c.do(ctx, http.MethodPost, "quests", body, &resp)
	return resp, err
}

// OpenQuests lists the caller's quests that are not completed.
func (c *Client) OpenQuests(ctx context.Context) ([]Quest, error) {
	var resp []Quest
	err := c.do(ctx, http.MethodGet, "quests?completed=false", nil, &resp)
	return resp, err
}

// SetQuestCompleted toggles completion through PATCH /quests/{id}.
func (c *Client) SetQuestCompleted(ctx context.Context, id string, completed bool) (Quest, error) {
	var resp Quest
	err := c.do(ctx, http.MethodPatch, "quests/"+url.PathEscape(id), map[string]any{"completed": completed}, &resp)
	return resp, err
}

func (c *Client) CompleteQuest(ctx context.Context, adventurerID, questID string) (Completion, error) {
	body := map[string]any{"adventurer_id": adventurerID, "quest_id": questID}
	var resp Completion
	err := c.do(ctx, http.MethodPost, "completions", body, &resp)
	return resp, err
}

// RevertCompletion reports whether a completion was removed.
func (c *Client) RevertCompletion(ctx context.Context, adventurerID, questID string) (bool, error) {
	var resp struct {
		Removed bool `json:"removed"`
	}
	endpoint := fmt.Sprintf("adventurers/%s/completions/%s", url.PathEscape(adventurerID), url.PathEscape(questID))
	err := c.do(ctx, http.MethodDelete, endpoint, nil, &resp)
	return resp.Removed, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var envelope struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &envelope) == nil {
			apiErr.Code = envelope.Error.Code
		}
		return apiErr
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if p := strings.Trim(c.BasePath, "/"); p != "" {
		base += "/" + p
	}
	return base
}
