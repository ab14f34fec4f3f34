package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"slotswap/internal/domain"
)

func (t Tx) InsertParty(ctx context.Context, p domain.Party) error {
	if p.ID == "" {
		return errors.New("id required")
	}
	_, err := t.exec(ctx, `INSERT INTO parties(id, display_name, created_at) VALUES (?,?,?)`,
		p.ID, p.DisplayName, formatTime(p.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert party: %w", err)
	}
	return nil
}

func (t Tx) GetParty(ctx context.Context, id string) (domain.Party, error) {
	var (
		p         domain.Party
		createdAt string
	)
	err := t.tx.QueryRowContext(ctx, `SELECT id, display_name, created_at FROM parties WHERE id=?`, id).
		Scan(&p.ID, &p.DisplayName, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Party{}, domain.ErrPartyNotFound
	}
	if err != nil {
		return domain.Party{}, fmt.Errorf("get party: %w", err)
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return domain.Party{}, err
	}
	return p, nil
}

// InsertAPIKey stores a hashed API key. KeyHash must already contain the hashed value.
func (t Tx) InsertAPIKey(ctx context.Context, key domain.APIKey) error {
	if key.ID == "" {
		return errors.New("id required")
	}
	if key.PartyID == "" {
		return errors.New("party_id required")
	}
	if key.KeyHash == "" {
		return errors.New("key_hash required")
	}
	_, err := t.exec(ctx, `INSERT INTO api_keys(id, party_id, name, key_hash, created_at) VALUES (?,?,?,?,?)`,
		key.ID, key.PartyID, nullable(key.Name), key.KeyHash, formatTime(key.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert api key: %w", err)
	}
	return nil
}

// GetAPIKeyByHash returns an API key by its hashed value.
func (t Tx) GetAPIKeyByHash(ctx context.Context, hash string) (domain.APIKey, error) {
	var (
		key       domain.APIKey
		createdAt string
	)
	err := t.tx.QueryRowContext(ctx, `SELECT id, party_id, COALESCE(name,''), key_hash, created_at FROM api_keys WHERE key_hash=? LIMIT 1`, hash).
		Scan(&key.ID, &key.PartyID, &key.Name, &key.KeyHash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.APIKey{}, domain.ErrPartyNotFound
	}
	if err != nil {
		return domain.APIKey{}, fmt.Errorf("get api key: %w", err)
	}
	if key.CreatedAt, err = parseTime(createdAt); err != nil {
		return domain.APIKey{}, err
	}
	return key, nil
}
