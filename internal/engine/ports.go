package engine

import (
	"context"

	"slotswap/internal/domain"
)

// SlotRegistry owns slot records. Writes here are unconditional except
// ReserveSlot; cross-slot invariants are enforced by the Engine.
type SlotRegistry interface {
	GetSlot(ctx context.Context, id string) (domain.Slot, error)
	// GetSlotForUpdate reads the slot and holds it against concurrent
	// writers until the transaction ends.
	GetSlotForUpdate(ctx context.Context, id string) (domain.Slot, error)
	InsertSlot(ctx context.Context, s domain.Slot) error
	UpdateSlot(ctx context.Context, s domain.Slot) error
	DeleteSlot(ctx context.Context, id string) error
	SetSlotStatus(ctx context.Context, id string, status domain.SlotStatus) error
	// ReserveSlot moves the slot from expected to Reserved and reports
	// whether a row changed.
	ReserveSlot(ctx context.Context, id string, expected domain.SlotStatus) (bool, error)
	TransferOwnership(ctx context.Context, id, newOwnerID string) error
	ListSlotsByOwner(ctx context.Context, ownerID string) ([]domain.Slot, error)
	Marketplace(ctx context.Context, partyID string) ([]domain.MarketplaceSlot, error)
}

// ExchangeLedger owns proposal records.
type ExchangeLedger interface {
	CreateProposal(ctx context.Context, p domain.Proposal) error
	GetProposal(ctx context.Context, id string) (domain.Proposal, error)
	GetProposalForUpdate(ctx context.Context, id string) (domain.Proposal, error)
	// SetProposalStatus moves a pending proposal to a terminal status and
	// fails with domain.ErrInvalidTransition otherwise.
	SetProposalStatus(ctx context.Context, id string, status domain.ProposalStatus) error
	ProposalDetails(ctx context.Context, id string) (domain.ProposalDetails, error)
	ListIncoming(ctx context.Context, partyID string) ([]domain.ProposalDetails, error)
	ListOutgoing(ctx context.Context, partyID string) ([]domain.ProposalDetails, error)
}

// PartyDirectory owns parties and their API keys.
type PartyDirectory interface {
	InsertParty(ctx context.Context, p domain.Party) error
	GetParty(ctx context.Context, id string) (domain.Party, error)
	InsertAPIKey(ctx context.Context, key domain.APIKey) error
	GetAPIKeyByHash(ctx context.Context, hash string) (domain.APIKey, error)
}

// Tx is the view of the store inside one transaction.
type Tx interface {
	SlotRegistry
	ExchangeLedger
	PartyDirectory
}

// Store runs fn in a single transaction. It commits when fn returns nil and
// rolls back otherwise. Store conflicts that may succeed on retry are
// returned wrapping domain.ErrTransient.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
