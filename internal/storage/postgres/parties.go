package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"slotswap/internal/domain"
)

func (t Tx) InsertParty(ctx context.Context, p domain.Party) error {
	const stmt = `INSERT INTO parties (id, display_name, created_at) VALUES ($1, $2, $3)`
	if _, err := t.exec(ctx, stmt, p.ID, p.DisplayName, p.CreatedAt); err != nil {
		return fmt.Errorf("insert party: %w", err)
	}
	return nil
}

func (t Tx) GetParty(ctx context.Context, id string) (domain.Party, error) {
	var p domain.Party
	err := t.tx.QueryRow(ctx, `SELECT id, display_name, created_at FROM parties WHERE id = $1`, id).
		Scan(&p.ID, &p.DisplayName, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Party{}, domain.ErrPartyNotFound
	}
	if err != nil {
		return domain.Party{}, fmt.Errorf("get party: %w", err)
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return p, nil
}

func (t Tx) InsertAPIKey(ctx context.Context, key domain.APIKey) error {
	const stmt = `INSERT INTO api_keys (id, party_id, name, key_hash, created_at) VALUES ($1, $2, NULLIF($3, ''), $4, $5)`
	if _, err := t.exec(ctx, stmt, key.ID, key.PartyID, key.Name, key.KeyHash, key.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert api key: duplicate key hash")
		}
		return fmt.Errorf("insert api key: %w", err)
	}
	return nil
}

func (t Tx) GetAPIKeyByHash(ctx context.Context, hash string) (domain.APIKey, error) {
	var key domain.APIKey
	err := t.tx.QueryRow(ctx, `SELECT id, party_id, COALESCE(name, ''), key_hash, created_at FROM api_keys WHERE key_hash = $1`, hash).
		Scan(&key.ID, &key.PartyID, &key.Name, &key.KeyHash, &key.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.APIKey{}, domain.ErrPartyNotFound
	}
	if err != nil {
		return domain.APIKey{}, fmt.Errorf("get api key: %w", err)
	}
	key.CreatedAt = key.CreatedAt.UTC()
	return key, nil
}
