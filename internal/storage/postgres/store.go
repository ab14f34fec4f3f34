package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"slotswap/internal/domain"
	"slotswap/internal/engine"
)

// Store is the Postgres store. Every transaction runs SERIALIZABLE and
// engine reads that precede a write take row locks.
type Store struct {
	pool *pgxpool.Pool
}

var _ engine.Store = (*Store)(nil)

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Connect parses dsn, opens a pool and pings it.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx engine.Tx) error) error {
	return withTx(ctx, s.pool, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, Tx{tx: tx})
	})
}

// Tx implements engine.Tx on a pgx.Tx.
type Tx struct {
	tx pgx.Tx
}

func (t Tx) exec(ctx context.Context, sql string, args ...any) (int64, error) {
	tag, err := t.tx.Exec(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const slotColumns = `id, owner_id, title, start_at, end_at, status, created_at`

func scanSlot(row pgx.Row) (domain.Slot, error) {
	var (
		s      domain.Slot
		status string
	)
	if err := row.Scan(&s.ID, &s.OwnerID, &s.Title, &s.Start, &s.End, &status, &s.CreatedAt); err != nil {
		return domain.Slot{}, err
	}
	return normalizeSlot(s, status)
}

func normalizeSlot(s domain.Slot, status string) (domain.Slot, error) {
	var err error
	if s.Status, err = domain.ParseSlotStatus(status); err != nil {
		return domain.Slot{}, err
	}
	s.Start = s.Start.UTC()
	s.End = s.End.UTC()
	s.CreatedAt = s.CreatedAt.UTC()
	return s, nil
}

func (t Tx) getSlot(ctx context.Context, query, id string) (domain.Slot, error) {
	s, err := scanSlot(t.tx.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Slot{}, domain.ErrSlotNotFound
	}
	if err != nil {
		return domain.Slot{}, fmt.Errorf("get slot: %w", err)
	}
	return s, nil
}

func (t Tx) GetSlot(ctx context.Context, id string) (domain.Slot, error) {
	return t.getSlot(ctx, `SELECT `+slotColumns+` FROM slots WHERE id = $1`, id)
}

func (t Tx) GetSlotForUpdate(ctx context.Context, id string) (domain.Slot, error) {
	return t.getSlot(ctx, `SELECT `+slotColumns+` FROM slots WHERE id = $1 FOR UPDATE`, id)
}

func (t Tx) InsertSlot(ctx context.Context, s domain.Slot) error {
	const stmt = `INSERT INTO slots (` + slotColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := t.exec(ctx, stmt, s.ID, s.OwnerID, s.Title, s.Start, s.End, s.Status.String(), s.CreatedAt); err != nil {
		return fmt.Errorf("insert slot: %w", err)
	}
	return nil
}

func (t Tx) UpdateSlot(ctx context.Context, s domain.Slot) error {
	const stmt = `UPDATE slots SET title = $2, start_at = $3, end_at = $4, status = $5 WHERE id = $1`
	n, err := t.exec(ctx, stmt, s.ID, s.Title, s.Start, s.End, s.Status.String())
	if err != nil {
		return fmt.Errorf("update slot: %w", err)
	}
	if n == 0 {
		return domain.ErrSlotNotFound
	}
	return nil
}

func (t Tx) DeleteSlot(ctx context.Context, id string) error {
	n, err := t.exec(ctx, `DELETE FROM slots WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete slot: %w", err)
	}
	if n == 0 {
		return domain.ErrSlotNotFound
	}
	return nil
}

func (t Tx) SetSlotStatus(ctx context.Context, id string, status domain.SlotStatus) error {
	if !status.Valid() {
		return domain.ErrInvalidStatus
	}
	n, err := t.exec(ctx, `UPDATE slots SET status = $2 WHERE id = $1`, id, status.String())
	if err != nil {
		return fmt.Errorf("set slot status: %w", err)
	}
	if n == 0 {
		return domain.ErrSlotNotFound
	}
	return nil
}

func (t Tx) ReserveSlot(ctx context.Context, id string, expected domain.SlotStatus) (bool, error) {
	n, err := t.exec(ctx, `UPDATE slots SET status = $2 WHERE id = $1 AND status = $3`,
		id, domain.SlotReserved.String(), expected.String())
	if err != nil {
		return false, fmt.Errorf("reserve slot: %w", err)
	}
	return n == 1, nil
}

func (t Tx) TransferOwnership(ctx context.Context, id, newOwnerID string) error {
	n, err := t.exec(ctx, `UPDATE slots SET owner_id = $2 WHERE id = $1`, id, newOwnerID)
	if err != nil {
		return fmt.Errorf("transfer slot: %w", err)
	}
	if n == 0 {
		return domain.ErrSlotNotFound
	}
	return nil
}

func (t Tx) ListSlotsByOwner(ctx context.Context, ownerID string) ([]domain.Slot, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+slotColumns+` FROM slots WHERE owner_id = $1 ORDER BY start_at, id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	defer rows.Close()
	res := []domain.Slot{}
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func (t Tx) Marketplace(ctx context.Context, partyID string) ([]domain.MarketplaceSlot, error) {
	const query = `
SELECT s.id, s.owner_id, s.title, s.start_at, s.end_at, s.status, s.created_at, p.display_name
FROM slots s
JOIN parties p ON p.id = s.owner_id
WHERE s.status = $1 AND s.owner_id <> $2
ORDER BY s.start_at, s.id`
	rows, err := t.tx.Query(ctx, query, domain.SlotOffered.String(), partyID)
	if err != nil {
		return nil, fmt.Errorf("marketplace: %w", err)
	}
	defer rows.Close()
	res := []domain.MarketplaceSlot{}
	for rows.Next() {
		var (
			s         domain.Slot
			status    string
			ownerName string
		)
		if err := rows.Scan(&s.ID, &s.OwnerID, &s.Title, &s.Start, &s.End, &status, &s.CreatedAt, &ownerName); err != nil {
			return nil, err
		}
		s, err := normalizeSlot(s, status)
		if err != nil {
			return nil, err
		}
		res = append(res, domain.MarketplaceSlot{Slot: s, OwnerName: ownerName})
	}
	return res, rows.Err()
}
