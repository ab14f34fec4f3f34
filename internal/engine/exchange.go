package engine

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"slotswap/internal/domain"
)

// Propose offers mySlot in exchange for theirSlot. The first failing check
// wins: both slots exist, the initiator owns mySlot, the initiator does not
// own theirSlot, theirSlot is Offered. mySlot may be Locked or Offered but not
// already Reserved. On success the pending proposal is created and both slots
// are Reserved in the same transaction.
func (e Engine) Propose(ctx context.Context, initiatorID, mySlotID, theirSlotID string) (domain.ProposalDetails, error) {
	var out domain.ProposalDetails
	err := e.inTx(ctx, "propose", func(ctx context.Context, tx Tx) error {
		mySlot, theirSlot, err := lockPair(ctx, tx, mySlotID, theirSlotID)
		if err != nil {
			return err
		}
		if mySlot.OwnerID != initiatorID {
			return domain.ErrNotOwner
		}
		if theirSlot.OwnerID == initiatorID {
			return domain.ErrSelfTrade
		}
		if theirSlot.Status != domain.SlotOffered {
			return domain.ErrSlotNotTradeable
		}
		if mySlot.Status == domain.SlotReserved {
			return domain.ErrSlotReserved
		}

		p := domain.Proposal{
			ID:          e.newID(),
			InitiatorID: initiatorID,
			TargetID:    theirSlot.OwnerID,
			MySlotID:    mySlot.ID,
			TheirSlotID: theirSlot.ID,
			Status:      domain.ProposalPending,
			CreatedAt:   e.now(),
		}
		if err := tx.CreateProposal(ctx, p); err != nil {
			return err
		}
		ok, err := tx.ReserveSlot(ctx, theirSlot.ID, domain.SlotOffered)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrSlotNotTradeable
		}
		if ok, err = tx.ReserveSlot(ctx, mySlot.ID, mySlot.Status); err != nil {
			return err
		}
		if !ok {
			return domain.ErrSlotReserved
		}
		out, err = tx.ProposalDetails(ctx, p.ID)
		return err
	})
	if err != nil {
		return domain.ProposalDetails{}, err
	}
	e.logger().Info("swap proposed",
		zap.String("proposal_id", out.Proposal.ID),
		zap.String("initiator_id", initiatorID),
		zap.String("target_id", out.Proposal.TargetID),
	)
	return out, nil
}

// lockPair reads both slots for update in id order so that two transactions
// touching the same pair never wait on each other in a cycle.
func lockPair(ctx context.Context, tx Tx, mySlotID, theirSlotID string) (domain.Slot, domain.Slot, error) {
	if mySlotID == theirSlotID {
		s, err := tx.GetSlotForUpdate(ctx, mySlotID)
		return s, s, err
	}
	first, second := mySlotID, theirSlotID
	if second < first {
		first, second = second, first
	}
	a, err := tx.GetSlotForUpdate(ctx, first)
	if err != nil {
		return domain.Slot{}, domain.Slot{}, err
	}
	b, err := tx.GetSlotForUpdate(ctx, second)
	if err != nil {
		return domain.Slot{}, domain.Slot{}, err
	}
	if a.ID == mySlotID {
		return a, b, nil
	}
	return b, a, nil
}

// Respond resolves a pending proposal. Only the target may respond, and only
// once. Accepting swaps the owners of both slots and locks them; rejecting
// leaves ownership alone and offers both slots again.
func (e Engine) Respond(ctx context.Context, responderID, proposalID string, accept bool) (domain.ProposalDetails, error) {
	var out domain.ProposalDetails
	err := e.inTx(ctx, "respond", func(ctx context.Context, tx Tx) error {
		p, err := tx.GetProposalForUpdate(ctx, proposalID)
		if err != nil {
			return err
		}
		if p.TargetID != responderID {
			return domain.ErrNotAuthorized
		}
		if p.Status != domain.ProposalPending {
			return domain.ErrAlreadyActioned
		}

		status, slotStatus := domain.Resolution(accept)
		if err := tx.SetProposalStatus(ctx, p.ID, status); err != nil {
			if errors.Is(err, domain.ErrInvalidTransition) {
				return domain.ErrAlreadyActioned
			}
			return err
		}
		if accept {
			if err := tx.TransferOwnership(ctx, p.TheirSlotID, p.InitiatorID); err != nil {
				return err
			}
			if err := tx.TransferOwnership(ctx, p.MySlotID, p.TargetID); err != nil {
				return err
			}
		}
		for _, id := range []string{p.MySlotID, p.TheirSlotID} {
			if err := tx.SetSlotStatus(ctx, id, slotStatus); err != nil {
				return err
			}
		}
		out, err = tx.ProposalDetails(ctx, p.ID)
		return err
	})
	if err != nil {
		return domain.ProposalDetails{}, err
	}
	e.logger().Info("swap resolved",
		zap.String("proposal_id", proposalID),
		zap.String("responder_id", responderID),
		zap.Stringer("status", out.Proposal.Status),
	)
	return out, nil
}

// GetProposal returns a proposal visible to the party as initiator or target.
func (e Engine) GetProposal(ctx context.Context, partyID, proposalID string) (domain.ProposalDetails, error) {
	var out domain.ProposalDetails
	err := e.inTx(ctx, "get_proposal", func(ctx context.Context, tx Tx) error {
		d, err := tx.ProposalDetails(ctx, proposalID)
		if err != nil {
			return err
		}
		if d.Proposal.InitiatorID != partyID && d.Proposal.TargetID != partyID {
			return domain.ErrNotAuthorized
		}
		out = d
		return nil
	})
	return out, err
}

// ListMarketplace returns Offered slots the party does not own.
func (e Engine) ListMarketplace(ctx context.Context, partyID string) ([]domain.MarketplaceSlot, error) {
	var out []domain.MarketplaceSlot
	err := e.inTx(ctx, "list_marketplace", func(ctx context.Context, tx Tx) error {
		var err error
		out, err = tx.Marketplace(ctx, partyID)
		return err
	})
	return out, err
}

func (e Engine) ListIncoming(ctx context.Context, partyID string) ([]domain.ProposalDetails, error) {
	var out []domain.ProposalDetails
	err := e.inTx(ctx, "list_incoming", func(ctx context.Context, tx Tx) error {
		var err error
		out, err = tx.ListIncoming(ctx, partyID)
		return err
	})
	return out, err
}

func (e Engine) ListOutgoing(ctx context.Context, partyID string) ([]domain.ProposalDetails, error) {
	var out []domain.ProposalDetails
	err := e.inTx(ctx, "list_outgoing", func(ctx context.Context, tx Tx) error {
		var err error
		out, err = tx.ListOutgoing(ctx, partyID)
		return err
	})
	return out, err
}
