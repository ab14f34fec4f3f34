package engine

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"slotswap/internal/auth"
	"slotswap/internal/domain"
)

func (e Engine) RegisterParty(ctx context.Context, displayName string) (domain.Party, error) {
	name := strings.TrimSpace(displayName)
	if name == "" {
		return domain.Party{}, fmt.Errorf("%w: display name required", domain.ErrInvalidParty)
	}
	p := domain.Party{ID: e.newID(), DisplayName: name, CreatedAt: e.now()}
	if err := e.inTx(ctx, "register_party", func(ctx context.Context, tx Tx) error {
		return tx.InsertParty(ctx, p)
	}); err != nil {
		return domain.Party{}, err
	}
	e.logger().Info("party registered", zap.String("party_id", p.ID))
	return p, nil
}

func (e Engine) GetParty(ctx context.Context, id string) (domain.Party, error) {
	var out domain.Party
	err := e.inTx(ctx, "get_party", func(ctx context.Context, tx Tx) error {
		var err error
		out, err = tx.GetParty(ctx, id)
		return err
	})
	return out, err
}

// IssueAPIKey creates a key for the party and returns the raw value. The raw
// key is not recoverable afterwards.
func (e Engine) IssueAPIKey(ctx context.Context, partyID, name string) (string, domain.APIKey, error) {
	raw, err := auth.GenerateAPIKey()
	if err != nil {
		return "", domain.APIKey{}, fmt.Errorf("generate api key: %w", err)
	}
	key := domain.APIKey{
		ID:        e.newID(),
		PartyID:   partyID,
		Name:      strings.TrimSpace(name),
		KeyHash:   auth.HashAPIKey(raw),
		CreatedAt: e.now(),
	}
	err = e.inTx(ctx, "issue_api_key", func(ctx context.Context, tx Tx) error {
		if _, err := tx.GetParty(ctx, partyID); err != nil {
			return err
		}
		return tx.InsertAPIKey(ctx, key)
	})
	if err != nil {
		return "", domain.APIKey{}, err
	}
	return raw, key, nil
}

// PartyByAPIKey resolves the party owning a raw API key. Unknown keys report
// domain.ErrPartyNotFound.
func (e Engine) PartyByAPIKey(ctx context.Context, raw string) (domain.Party, error) {
	if strings.TrimSpace(raw) == "" {
		return domain.Party{}, domain.ErrPartyNotFound
	}
	var out domain.Party
	err := e.inTx(ctx, "party_by_api_key", func(ctx context.Context, tx Tx) error {
		key, err := tx.GetAPIKeyByHash(ctx, auth.HashAPIKey(raw))
		if err != nil {
			return err
		}
		out, err = tx.GetParty(ctx, key.PartyID)
		return err
	})
	return out, err
}
