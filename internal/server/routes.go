package server

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"slotswap/internal/auth"
	"slotswap/internal/engine"
)

var writeErrors = []int{
	http.StatusBadRequest,
	http.StatusUnauthorized,
	http.StatusForbidden,
	http.StatusNotFound,
	http.StatusConflict,
	http.StatusServiceUnavailable,
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerMe(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Authenticated party",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body PartyResponse `json:"body"`
	}, error) {
		partyID, authErr := partyIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.GetParty(ctx, partyID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body PartyResponse `json:"body"`
		}{Body: mapParty(p)}, nil
	})
}

func registerDevAuth(api huma.API, e engine.Engine, cfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-token",
		Method:      http.MethodPost,
		Path:        "/auth/dev/token",
		Summary:     "Mint a token for an existing party (development only)",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body DevTokenRequest `json:"body"`
	}) (*struct {
		Body DevTokenResponse `json:"body"`
	}, error) {
		p, err := e.GetParty(ctx, input.Body.PartyID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		token, expires, err := auth.IssueToken(cfg.JWTSecret, p.ID, p.DisplayName, time.Now(), cfg.TokenTTL)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body DevTokenResponse `json:"body"`
		}{Body: DevTokenResponse{Token: token, ExpiresAt: expires}}, nil
	})
}

func registerSlots(api huma.API, e engine.Engine) {
	type slotPath struct {
		SlotID string `path:"slot_id"`
	}

	huma.Register(api, huma.Operation{
		OperationID: "list-my-slots",
		Method:      http.MethodGet,
		Path:        "/slots",
		Summary:     "List the caller's slots",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []SlotResponse `json:"body"`
	}, error) {
		partyID, authErr := partyIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListMySlots(ctx, partyID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body []SlotResponse `json:"body"`
		}{Body: mapSlots(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-slot",
		Method:        http.MethodPost,
		Path:          "/slots",
		Summary:       "Create slot",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateSlotRequest `json:"body"`
	}) (*struct {
		Body SlotResponse `json:"body"`
	}, error) {
		partyID, authErr := partyIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		status, err := parseSlotStatus(input.Body.Status)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		opts := engine.SlotCreateOptions{
			OwnerID: partyID,
			Title:   input.Body.Title,
			Start:   input.Body.Start,
			End:     input.Body.End,
		}
		if status != nil {
			opts.Status = *status
		}
		s, err := e.CreateSlot(ctx, opts)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body SlotResponse `json:"body"`
		}{Body: mapSlot(s)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-slot",
		Method:      http.MethodPatch,
		Path:        "/slots/{slot_id}",
		Summary:     "Update slot",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		SlotID string            `path:"slot_id"`
		Body   UpdateSlotRequest `json:"body"`
	}) (*struct {
		Body SlotResponse `json:"body"`
	}, error) {
		partyID, authErr := partyIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		status, err := parseSlotStatus(input.Body.Status)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		s, err := e.UpdateSlot(ctx, partyID, input.SlotID, engine.SlotPatch{
			Title:  input.Body.Title,
			Start:  input.Body.Start,
			End:    input.Body.End,
			Status: status,
		})
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body SlotResponse `json:"body"`
		}{Body: mapSlot(s)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-slot",
		Method:        http.MethodDelete,
		Path:          "/slots/{slot_id}",
		Summary:       "Delete slot",
		DefaultStatus: http.StatusNoContent,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *slotPath) (*struct{}, error) {
		partyID, authErr := partyIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteSlot(ctx, partyID, input.SlotID); err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct{}{}, nil
	})
}

func registerMarketplace(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-marketplace",
		Method:      http.MethodGet,
		Path:        "/marketplace",
		Summary:     "Offered slots owned by other parties",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []MarketplaceSlotResponse `json:"body"`
	}, error) {
		partyID, authErr := partyIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListMarketplace(ctx, partyID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body []MarketplaceSlotResponse `json:"body"`
		}{Body: mapMarketplace(items)}, nil
	})
}

func registerSwapRequests(api huma.API, e engine.Engine) {
	type requestPath struct {
		RequestID string `path:"request_id"`
	}
	type listOutput struct {
		Body []SwapRequestResponse `json:"body"`
	}
	type itemOutput struct {
		Body SwapRequestResponse `json:"body"`
	}

	huma.Register(api, huma.Operation{
		OperationID:   "create-swap-request",
		Method:        http.MethodPost,
		Path:          "/swap-requests",
		Summary:       "Propose a swap",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateSwapRequest `json:"body"`
	}) (*itemOutput, error) {
		partyID, authErr := partyIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		d, err := e.Propose(ctx, partyID, input.Body.MySlotID, input.Body.TheirSlotID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &itemOutput{Body: mapSwapRequest(d)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-incoming-swap-requests",
		Method:      http.MethodGet,
		Path:        "/swap-requests/incoming",
		Summary:     "Swap requests addressed to the caller",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*listOutput, error) {
		partyID, authErr := partyIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListIncoming(ctx, partyID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &listOutput{Body: mapSwapRequests(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-outgoing-swap-requests",
		Method:      http.MethodGet,
		Path:        "/swap-requests/outgoing",
		Summary:     "Swap requests made by the caller",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*listOutput, error) {
		partyID, authErr := partyIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListOutgoing(ctx, partyID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &listOutput{Body: mapSwapRequests(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-swap-request",
		Method:      http.MethodGet,
		Path:        "/swap-requests/{request_id}",
		Summary:     "Get swap request",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *requestPath) (*itemOutput, error) {
		partyID, authErr := partyIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		d, err := e.GetProposal(ctx, partyID, input.RequestID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &itemOutput{Body: mapSwapRequest(d)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "respond-swap-request",
		Method:      http.MethodPost,
		Path:        "/swap-requests/{request_id}/respond",
		Summary:     "Accept or reject a swap request",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		RequestID string         `path:"request_id"`
		Body      RespondRequest `json:"body"`
	}) (*itemOutput, error) {
		partyID, authErr := partyIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		d, err := e.Respond(ctx, partyID, input.RequestID, input.Body.Accept)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &itemOutput{Body: mapSwapRequest(d)}, nil
	})
}
