package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"slotswap/internal/domain"
)

const proposalColumns = `id,initiator_id,target_id,my_slot_id,their_slot_id,status,created_at`

// Slot columns come from LEFT JOINs: a proposal outlives a slot deleted
// after the proposal reached a terminal status.
const detailsSelect = `
SELECT pr.id,pr.initiator_id,pr.target_id,pr.my_slot_id,pr.their_slot_id,pr.status,pr.created_at,
  ip.display_name, tp.display_name,
  COALESCE(ms.title,''), COALESCE(ms.start_at,''), COALESCE(ms.end_at,''),
  COALESCE(ts.title,''), COALESCE(ts.start_at,''), COALESCE(ts.end_at,'')
FROM proposals pr
JOIN parties ip ON ip.id = pr.initiator_id
JOIN parties tp ON tp.id = pr.target_id
LEFT JOIN slots ms ON ms.id = pr.my_slot_id
LEFT JOIN slots ts ON ts.id = pr.their_slot_id`

func scanProposal(row rowScanner) (domain.Proposal, error) {
	var (
		p                 domain.Proposal
		status, createdAt string
	)
	if err := row.Scan(&p.ID, &p.InitiatorID, &p.TargetID, &p.MySlotID, &p.TheirSlotID, &status, &createdAt); err != nil {
		return domain.Proposal{}, err
	}
	var err error
	if p.Status, err = domain.ParseProposalStatus(status); err != nil {
		return domain.Proposal{}, err
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return domain.Proposal{}, fmt.Errorf("proposal %s created_at: %w", p.ID, err)
	}
	return p, nil
}

func scanDetails(row rowScanner) (domain.ProposalDetails, error) {
	var (
		d                              domain.ProposalDetails
		status, createdAt              string
		myStart, myEnd, thStart, thEnd string
	)
	p := &d.Proposal
	err := row.Scan(&p.ID, &p.InitiatorID, &p.TargetID, &p.MySlotID, &p.TheirSlotID, &status, &createdAt,
		&d.InitiatorName, &d.TargetName,
		&d.MySlot.Title, &myStart, &myEnd,
		&d.TheirSlot.Title, &thStart, &thEnd)
	if err != nil {
		return domain.ProposalDetails{}, err
	}
	if p.Status, err = domain.ParseProposalStatus(status); err != nil {
		return domain.ProposalDetails{}, err
	}
	d.MySlot.ID = p.MySlotID
	d.TheirSlot.ID = p.TheirSlotID
	for _, f := range []struct {
		dst *time.Time
		src string
	}{
		{&p.CreatedAt, createdAt},
		{&d.MySlot.Start, myStart},
		{&d.MySlot.End, myEnd},
		{&d.TheirSlot.Start, thStart},
		{&d.TheirSlot.End, thEnd},
	} {
		if *f.dst, err = parseTime(f.src); err != nil {
			return domain.ProposalDetails{}, fmt.Errorf("proposal %s: %w", p.ID, err)
		}
	}
	return d, nil
}

func (t Tx) CreateProposal(ctx context.Context, p domain.Proposal) error {
	_, err := t.exec(ctx, `INSERT INTO proposals(`+proposalColumns+`) VALUES (?,?,?,?,?,?,?)`,
		p.ID, p.InitiatorID, p.TargetID, p.MySlotID, p.TheirSlotID, domain.ProposalPending.String(), formatTime(p.CreatedAt))
	if err != nil {
		return fmt.Errorf("create proposal: %w", err)
	}
	return nil
}

func (t Tx) GetProposal(ctx context.Context, id string) (domain.Proposal, error) {
	p, err := scanProposal(t.tx.QueryRowContext(ctx, `SELECT `+proposalColumns+` FROM proposals WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Proposal{}, domain.ErrProposalNotFound
	}
	if err != nil {
		return domain.Proposal{}, fmt.Errorf("get proposal: %w", err)
	}
	return p, nil
}

func (t Tx) GetProposalForUpdate(ctx context.Context, id string) (domain.Proposal, error) {
	return t.GetProposal(ctx, id)
}

func (t Tx) SetProposalStatus(ctx context.Context, id string, status domain.ProposalStatus) error {
	if !status.Terminal() {
		return domain.ErrInvalidTransition
	}
	n, err := t.exec(ctx, `UPDATE proposals SET status=? WHERE id=? AND status=?`,
		status.String(), id, domain.ProposalPending.String())
	if err != nil {
		return fmt.Errorf("set proposal status: %w", err)
	}
	if n == 1 {
		return nil
	}
	if _, err := t.GetProposal(ctx, id); err != nil {
		return err
	}
	return domain.ErrInvalidTransition
}

func (t Tx) ProposalDetails(ctx context.Context, id string) (domain.ProposalDetails, error) {
	d, err := scanDetails(t.tx.QueryRowContext(ctx, detailsSelect+` WHERE pr.id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ProposalDetails{}, domain.ErrProposalNotFound
	}
	if err != nil {
		return domain.ProposalDetails{}, fmt.Errorf("proposal details: %w", err)
	}
	return d, nil
}

func (t Tx) ListIncoming(ctx context.Context, partyID string) ([]domain.ProposalDetails, error) {
	return t.listDetails(ctx, `pr.target_id=?`, partyID)
}

func (t Tx) ListOutgoing(ctx context.Context, partyID string) ([]domain.ProposalDetails, error) {
	return t.listDetails(ctx, `pr.initiator_id=?`, partyID)
}

// listDetails orders newest first. Proposals are never deleted, so rowid
// follows insertion order and breaks created_at ties.
func (t Tx) listDetails(ctx context.Context, where, partyID string) ([]domain.ProposalDetails, error) {
	rows, err := t.tx.QueryContext(ctx, detailsSelect+` WHERE `+where+` ORDER BY pr.created_at DESC, pr.rowid DESC`, partyID)
	if err != nil {
		return nil, fmt.Errorf("list proposals: %w", err)
	}
	defer rows.Close()
	res := []domain.ProposalDetails{}
	for rows.Next() {
		d, err := scanDetails(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}
