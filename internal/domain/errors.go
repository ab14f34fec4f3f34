package domain

import "errors"

var (
	ErrSlotNotFound     = errors.New("slot not found")
	ErrProposalNotFound = errors.New("proposal not found")
	ErrPartyNotFound    = errors.New("party not found")

	ErrNotOwner      = errors.New("cannot trade or edit a slot you do not own")
	ErrNotAuthorized = errors.New("not authorized to act on this proposal")

	ErrSelfTrade         = errors.New("cannot trade with yourself")
	ErrSlotNotTradeable  = errors.New("target slot is not offered")
	ErrSlotReserved      = errors.New("slot is reserved by a pending proposal")
	ErrAlreadyActioned   = errors.New("proposal already actioned")
	ErrInvalidTransition = errors.New("invalid proposal status transition")

	ErrInvalidSlot   = errors.New("invalid slot")
	ErrInvalidStatus = errors.New("invalid status")
	ErrInvalidParty  = errors.New("invalid party")

	// ErrTransient marks a store conflict (serialization failure, busy
	// database) that may succeed when retried with the same input.
	ErrTransient = errors.New("temporarily unavailable")
)
