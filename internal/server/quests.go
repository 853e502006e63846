package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"sidequest/internal/engine"
	"sidequest/internal/repo"
)

type questPath struct {
	ID string `path:"id"`
}

func registerQuests(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-quest",
		Method:        http.MethodPost,
		Path:          "/quests",
		Summary:       "Create quest",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateQuestRequest `json:"body"`
	}) (*struct {
		Body QuestResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		q, err := e.CreateQuest(ctx, engine.QuestCreateOptions{
			AdventurerID: input.Body.AdventurerID,
			Title:        input.Body.Title,
			Reward:       input.Body.ExperienceReward,
			ActorID:      userID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body QuestResponse `json:"body"`
		}{Body: questResponse(q)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-quests",
		Method:      http.MethodGet,
		Path:        "/quests",
		Summary:     "List the caller's quests",
		Description: "Pass completed=false to list open quests across all of the caller's adventurers.",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		AdventurerID string `query:"adventurer_id"`
		Completed    string `query:"completed"`
	}) (*struct {
		Body []QuestResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		completed, perr := parseCompleted(input.Completed)
		if perr != nil {
			return nil, perr
		}
		items, err := e.ListQuests(ctx, repo.QuestFilters{AdventurerID: input.AdventurerID, Completed: completed}, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []QuestResponse `json:"body"`
		}{Body: mapQuests(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-quest",
		Method:      http.MethodGet,
		Path:        "/quests/{id}",
		Summary:     "Get quest",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *questPath) (*struct {
		Body QuestResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		q, _, err := e.GetQuest(ctx, input.ID, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body QuestResponse `json:"body"`
		}{Body: questResponse(q)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-quest",
		Method:      http.MethodPatch,
		Path:        "/quests/{id}",
		Summary:     "Update quest",
		Description: "Setting completed to true runs the full completion path and awards experience once. Setting it to false reverts the completion.",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ID   string             `path:"id"`
		Body UpdateQuestRequest `json:"body"`
	}) (*struct {
		Body QuestResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		q, err := e.UpdateQuest(ctx, engine.QuestUpdate{
			ID:           input.ID,
			Title:        input.Body.Title,
			Reward:       input.Body.ExperienceReward,
			AdventurerID: input.Body.AdventurerID,
			Completed:    input.Body.Completed,
			ActorID:      userID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body QuestResponse `json:"body"`
		}{Body: questResponse(q)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-quest",
		Method:        http.MethodDelete,
		Path:          "/quests/{id}",
		Summary:       "Delete quest",
		DefaultStatus: http.StatusNoContent,
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *questPath) (*struct{}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		deleted, err := e.DeleteQuest(ctx, input.ID, userID)
		if err != nil {
			return nil, handleError(err)
		}
		if !deleted {
			return nil, newAPIError(http.StatusNotFound, "not_found", "quest not found", map[string]any{"id": input.ID})
		}
		return &struct{}{}, nil
	})
}

func registerCompletions(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "complete-quest",
		Method:      http.MethodPost,
		Path:        "/completions",
		Summary:     "Complete a quest for an adventurer",
		Description: "Idempotent: repeating the call for the same pair returns was_new_completion=false and changes nothing.",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		Body CompleteQuestRequest `json:"body"`
	}) (*struct {
		Body CompletionResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		res, err := e.CompleteQuest(ctx, engine.CompleteQuestOptions{
			AdventurerID:     input.Body.AdventurerID,
			QuestID:          input.Body.QuestID,
			ExperienceReward: input.Body.ExperienceReward,
			ActorID:          userID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CompletionResponse `json:"body"`
		}{Body: completionResponse(res)}, nil
	})
}
