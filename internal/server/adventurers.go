package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"sidequest/internal/engine"
	"sidequest/internal/repo"
)

type adventurerPath struct {
	ID string `path:"id"`
}

func registerAdventurers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-adventurer",
		Method:        http.MethodPost,
		Path:          "/adventurers",
		Summary:       "Create adventurer",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateAdventurerRequest `json:"body"`
	}) (*struct {
		Body AdventurerResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		a, err := e.CreateAdventurer(ctx, engine.AdventurerCreateOptions{
			OwnerUserID: userID,
			Name:        input.Body.Name,
			Type:        input.Body.Type,
			Level:       input.Body.Level,
			Experience:  input.Body.Experience,
			ActorID:     userID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AdventurerResponse `json:"body"`
		}{Body: adventurerResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-adventurers",
		Method:      http.MethodGet,
		Path:        "/adventurers",
		Summary:     "List the caller's adventurers",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []AdventurerResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListAdventurers(ctx, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []AdventurerResponse `json:"body"`
		}{Body: mapAdventurers(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-adventurer",
		Method:      http.MethodGet,
		Path:        "/adventurers/{id}",
		Summary:     "Get adventurer with progress and completed quests",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *adventurerPath) (*struct {
		Body AdventurerResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.GetAdventurer(ctx, input.ID, userID)
		if err != nil {
			return nil, handleError(err)
		}
		details, err := e.Describe(ctx, a)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AdventurerResponse `json:"body"`
		}{Body: detailsResponse(details)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-adventurer",
		Method:      http.MethodPatch,
		Path:        "/adventurers/{id}",
		Summary:     "Update adventurer name or type",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ID   string                  `path:"id"`
		Body UpdateAdventurerRequest `json:"body"`
	}) (*struct {
		Body AdventurerResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.UpdateAdventurer(ctx, engine.AdventurerUpdate{
			ID:      input.ID,
			Name:    input.Body.Name,
			Type:    input.Body.Type,
			ActorID: userID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AdventurerResponse `json:"body"`
		}{Body: adventurerResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-adventurer",
		Method:        http.MethodDelete,
		Path:          "/adventurers/{id}",
		Summary:       "Delete adventurer with its quests and completions",
		DefaultStatus: http.StatusNoContent,
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *adventurerPath) (*struct{}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		deleted, err := e.DeleteAdventurer(ctx, input.ID, userID)
		if err != nil {
			return nil, handleError(err)
		}
		if !deleted {
			return nil, newAPIError(http.StatusNotFound, "not_found", "adventurer not found", map[string]any{"id": input.ID})
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-adventurer-quests",
		Method:      http.MethodGet,
		Path:        "/adventurers/{id}/quests",
		Summary:     "List quests assigned to an adventurer",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ID        string `path:"id"`
		Completed string `query:"completed"`
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
		items, err := e.ListQuests(ctx, repo.QuestFilters{AdventurerID: input.ID, Completed: completed}, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []QuestResponse `json:"body"`
		}{Body: mapQuests(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "revert-completion",
		Method:      http.MethodDelete,
		Path:        "/adventurers/{id}/completions/{quest_id}",
		Summary:     "Revert a quest completion",
		Description: "Removes the ledger row and clears the quest's completed flag. Experience and level already awarded are kept.",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ID      string `path:"id"`
		QuestID string `path:"quest_id"`
	}) (*struct {
		Body RevertResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		removed, err := e.RevertCompletion(ctx, engine.RevertOptions{
			AdventurerID: input.ID,
			QuestID:      input.QuestID,
			ActorID:      userID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RevertResponse `json:"body"`
		}{Body: RevertResponse{Removed: removed}}, nil
	})
}
