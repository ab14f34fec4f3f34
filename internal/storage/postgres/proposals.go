package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"slotswap/internal/domain"
)

const proposalColumns = `id, initiator_id, target_id, my_slot_id, their_slot_id, status, created_at`

const detailsSelect = `
SELECT pr.id, pr.initiator_id, pr.target_id, pr.my_slot_id, pr.their_slot_id, pr.status, pr.created_at,
	ip.display_name, tp.display_name,
	COALESCE(ms.title, ''), ms.start_at, ms.end_at,
	COALESCE(ts.title, ''), ts.start_at, ts.end_at
FROM proposals pr
JOIN parties ip ON ip.id = pr.initiator_id
JOIN parties tp ON tp.id = pr.target_id
LEFT JOIN slots ms ON ms.id = pr.my_slot_id
LEFT JOIN slots ts ON ts.id = pr.their_slot_id`

func scanProposal(row pgx.Row) (domain.Proposal, error) {
	var (
		p      domain.Proposal
		status string
	)
	if err := row.Scan(&p.ID, &p.InitiatorID, &p.TargetID, &p.MySlotID, &p.TheirSlotID, &status, &p.CreatedAt); err != nil {
		return domain.Proposal{}, err
	}
	var err error
	if p.Status, err = domain.ParseProposalStatus(status); err != nil {
		return domain.Proposal{}, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return p, nil
}

func utcOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.UTC()
}

func scanDetails(row pgx.Row) (domain.ProposalDetails, error) {
	var (
		d                              domain.ProposalDetails
		status                         string
		myStart, myEnd, thStart, thEnd *time.Time
	)
	p := &d.Proposal
	err := row.Scan(&p.ID, &p.InitiatorID, &p.TargetID, &p.MySlotID, &p.TheirSlotID, &status, &p.CreatedAt,
		&d.InitiatorName, &d.TargetName,
		&d.MySlot.Title, &myStart, &myEnd,
		&d.TheirSlot.Title, &thStart, &thEnd)
	if err != nil {
		return domain.ProposalDetails{}, err
	}
	if p.Status, err = domain.ParseProposalStatus(status); err != nil {
		return domain.ProposalDetails{}, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	d.MySlot.ID, d.MySlot.Start, d.MySlot.End = p.MySlotID, utcOrZero(myStart), utcOrZero(myEnd)
	d.TheirSlot.ID, d.TheirSlot.Start, d.TheirSlot.End = p.TheirSlotID, utcOrZero(thStart), utcOrZero(thEnd)
	return d, nil
}

// CreateProposal maps a pending-slot unique violation to ErrTransient: it
// only happens when a concurrent transaction reserved the same slot, and the
// retried attempt then reports the business error.
func (t Tx) CreateProposal(ctx context.Context, p domain.Proposal) error {
	const stmt = `INSERT INTO proposals (` + proposalColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := t.exec(ctx, stmt, p.ID, p.InitiatorID, p.TargetID, p.MySlotID, p.TheirSlotID, domain.ProposalPending.String(), p.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: create proposal: %v", domain.ErrTransient, err)
		}
		return fmt.Errorf("create proposal: %w", err)
	}
	return nil
}

func (t Tx) getProposal(ctx context.Context, query, id string) (domain.Proposal, error) {
	p, err := scanProposal(t.tx.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Proposal{}, domain.ErrProposalNotFound
	}
	if err != nil {
		return domain.Proposal{}, fmt.Errorf("get proposal: %w", err)
	}
	return p, nil
}

func (t Tx) GetProposal(ctx context.Context, id string) (domain.Proposal, error) {
	return t.getProposal(ctx, `SELECT `+proposalColumns+` FROM proposals WHERE id = $1`, id)
}

func (t Tx) GetProposalForUpdate(ctx context.Context, id string) (domain.Proposal, error) {
	return t.getProposal(ctx, `SELECT `+proposalColumns+` FROM proposals WHERE id = $1 FOR UPDATE`, id)
}

func (t Tx) SetProposalStatus(ctx context.Context, id string, status domain.ProposalStatus) error {
	if !status.Terminal() {
		return domain.ErrInvalidTransition
	}
	n, err := t.exec(ctx, `UPDATE proposals SET status = $2 WHERE id = $1 AND status = $3`,
		id, status.String(), domain.ProposalPending.String())
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
	d, err := scanDetails(t.tx.QueryRow(ctx, detailsSelect+` WHERE pr.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ProposalDetails{}, domain.ErrProposalNotFound
	}
	if err != nil {
		return domain.ProposalDetails{}, fmt.Errorf("proposal details: %w", err)
	}
	return d, nil
}

func (t Tx) ListIncoming(ctx context.Context, partyID string) ([]domain.ProposalDetails, error) {
	return t.listDetails(ctx, `pr.target_id = $1`, partyID)
}

func (t Tx) ListOutgoing(ctx context.Context, partyID string) ([]domain.ProposalDetails, error) {
	return t.listDetails(ctx, `pr.initiator_id = $1`, partyID)
}

func (t Tx) listDetails(ctx context.Context, where, partyID string) ([]domain.ProposalDetails, error) {
	rows, err := t.tx.Query(ctx, detailsSelect+` WHERE `+where+` ORDER BY pr.created_at DESC, pr.seq DESC`, partyID)
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
