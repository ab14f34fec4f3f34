package domain

import "time"

type Party struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at" format:"date-time"`
}

// Slot is a time-bound resource owned by exactly one party.
type Slot struct {
	ID      string     `json:"id"`
	OwnerID string     `json:"owner_id"`
	Title   string     `json:"title"`
	Start   time.Time  `json:"start" format:"date-time"`
	End     time.Time  `json:"end" format:"date-time"`
	Status  SlotStatus `json:"status"`

	CreatedAt time.Time `json:"created_at" format:"date-time"`
}

// Proposal is a directed trade request: the initiator gives MySlotID and
// receives TheirSlotID from the target.
type Proposal struct {
	ID          string         `json:"id"`
	InitiatorID string         `json:"initiator_id"`
	TargetID    string         `json:"target_id"`
	MySlotID    string         `json:"my_slot_id"`
	TheirSlotID string         `json:"their_slot_id"`
	Status      ProposalStatus `json:"status"`
	CreatedAt   time.Time      `json:"created_at" format:"date-time"`
}

type APIKey struct {
	ID        string    `json:"id"`
	PartyID   string    `json:"party_id"`
	Name      string    `json:"name,omitempty"`
	KeyHash   string    `json:"key_hash"`
	CreatedAt time.Time `json:"created_at" format:"date-time"`
}

// MarketplaceSlot is an offered slot joined with its owner's display name.
type MarketplaceSlot struct {
	Slot      `json:"slot"`
	OwnerName string `json:"owner_name"`
}

// SlotSummary carries the slot fields denormalized into proposal listings.
type SlotSummary struct {
	ID    string    `json:"id"`
	Title string    `json:"title"`
	Start time.Time `json:"start" format:"date-time"`
	End   time.Time `json:"end" format:"date-time"`
}

// ProposalDetails is a proposal with both parties' names and both slots'
// summaries, as shown in incoming and outgoing listings.
type ProposalDetails struct {
	Proposal      `json:"proposal"`
	InitiatorName string      `json:"initiator_name"`
	TargetName    string      `json:"target_name"`
	MySlot        SlotSummary `json:"my_slot"`
	TheirSlot     SlotSummary `json:"their_slot"`
}
