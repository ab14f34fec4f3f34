package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"slotswap/internal/domain"
)

const slotColumns = `id,owner_id,title,start_at,end_at,status,created_at`

func scanSlot(row rowScanner) (domain.Slot, error) {
	var (
		s                     domain.Slot
		start, end, createdAt string
		status                string
	)
	if err := row.Scan(&s.ID, &s.OwnerID, &s.Title, &start, &end, &status, &createdAt); err != nil {
		return domain.Slot{}, err
	}
	return fillSlot(s, start, end, status, createdAt)
}

func fillSlot(s domain.Slot, start, end, status, createdAt string) (domain.Slot, error) {
	var err error
	if s.Status, err = domain.ParseSlotStatus(status); err != nil {
		return domain.Slot{}, err
	}
	if s.Start, err = parseTime(start); err != nil {
		return domain.Slot{}, fmt.Errorf("slot %s start: %w", s.ID, err)
	}
	if s.End, err = parseTime(end); err != nil {
		return domain.Slot{}, fmt.Errorf("slot %s end: %w", s.ID, err)
	}
	if s.CreatedAt, err = parseTime(createdAt); err != nil {
		return domain.Slot{}, fmt.Errorf("slot %s created_at: %w", s.ID, err)
	}
	return s, nil
}

func (t Tx) GetSlot(ctx context.Context, id string) (domain.Slot, error) {
	s, err := scanSlot(t.tx.QueryRowContext(ctx, `SELECT `+slotColumns+` FROM slots WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Slot{}, domain.ErrSlotNotFound
	}
	if err != nil {
		return domain.Slot{}, fmt.Errorf("get slot: %w", err)
	}
	return s, nil
}

// GetSlotForUpdate is a plain read: the IMMEDIATE transaction already holds
// the database write lock.
func (t Tx) GetSlotForUpdate(ctx context.Context, id string) (domain.Slot, error) {
	return t.GetSlot(ctx, id)
}

func (t Tx) InsertSlot(ctx context.Context, s domain.Slot) error {
	_, err := t.exec(ctx, `INSERT INTO slots(`+slotColumns+`) VALUES (?,?,?,?,?,?,?)`,
		s.ID, s.OwnerID, s.Title, formatTime(s.Start), formatTime(s.End), s.Status.String(), formatTime(s.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert slot: %w", err)
	}
	return nil
}

func (t Tx) UpdateSlot(ctx context.Context, s domain.Slot) error {
	n, err := t.exec(ctx, `UPDATE slots SET title=?, start_at=?, end_at=?, status=? WHERE id=?`,
		s.Title, formatTime(s.Start), formatTime(s.End), s.Status.String(), s.ID)
	if err != nil {
		return fmt.Errorf("update slot: %w", err)
	}
	if n == 0 {
		return domain.ErrSlotNotFound
	}
	return nil
}

func (t Tx) DeleteSlot(ctx context.Context, id string) error {
	n, err := t.exec(ctx, `DELETE FROM slots WHERE id=?`, id)
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
	n, err := t.exec(ctx, `UPDATE slots SET status=? WHERE id=?`, status.String(), id)
	if err != nil {
		return fmt.Errorf("set slot status: %w", err)
	}
	if n == 0 {
		return domain.ErrSlotNotFound
	}
	return nil
}

func (t Tx) ReserveSlot(ctx context.Context, id string, expected domain.SlotStatus) (bool, error) {
	n, err := t.exec(ctx, `UPDATE slots SET status=? WHERE id=? AND status=?`,
		domain.SlotReserved.String(), id, expected.String())
	if err != nil {
		return false, fmt.Errorf("reserve slot: %w", err)
	}
	return n == 1, nil
}

func (t Tx) TransferOwnership(ctx context.Context, id, newOwnerID string) error {
	n, err := t.exec(ctx, `UPDATE slots SET owner_id=? WHERE id=?`, newOwnerID, id)
	if err != nil {
		return fmt.Errorf("transfer slot: %w", err)
	}
	if n == 0 {
		return domain.ErrSlotNotFound
	}
	return nil
}

func (t Tx) ListSlotsByOwner(ctx context.Context, ownerID string) ([]domain.Slot, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT `+slotColumns+` FROM slots WHERE owner_id=? ORDER BY start_at, id`, ownerID)
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
	rows, err := t.tx.QueryContext(ctx, `
SELECT s.id,s.owner_id,s.title,s.start_at,s.end_at,s.status,s.created_at,p.display_name
FROM slots s
JOIN parties p ON p.id = s.owner_id
WHERE s.status = ? AND s.owner_id <> ?
ORDER BY s.start_at, s.id`, domain.SlotOffered.String(), partyID)
	if err != nil {
		return nil, fmt.Errorf("marketplace: %w", err)
	}
	defer rows.Close()
	res := []domain.MarketplaceSlot{}
	for rows.Next() {
		var (
			s                             domain.Slot
			start, end, status, createdAt string
			ownerName                     string
		)
		if err := rows.Scan(&s.ID, &s.OwnerID, &s.Title, &start, &end, &status, &createdAt, &ownerName); err != nil {
			return nil, err
		}
		s, err := fillSlot(s, start, end, status, createdAt)
		if err != nil {
			return nil, err
		}
		res = append(res, domain.MarketplaceSlot{Slot: s, OwnerName: ownerName})
	}
	return res, rows.Err()
}
