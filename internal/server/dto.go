package server

import (
	"time"

	"slotswap/internal/domain"
)

// Request payloads

type CreateSlotRequest struct {
	Title  string    `json:"title" minLength:"1"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Status *string   `json:"status,omitempty" enum:"locked,offered"`
}

type UpdateSlotRequest struct {
	Title  *string    `json:"title,omitempty"`
	Start  *time.Time `json:"start,omitempty"`
	End    *time.Time `json:"end,omitempty"`
	Status *string    `json:"status,omitempty" enum:"locked,offered"`
}

type CreateSwapRequest struct {
	MySlotID    string `json:"my_slot_id" minLength:"1"`
	TheirSlotID string `json:"their_slot_id" minLength:"1"`
}

type RespondRequest struct {
	Accept bool `json:"accept"`
}

type DevTokenRequest struct {
	PartyID string `json:"party_id" minLength:"1"`
}

// Response payloads

type PartyResponse struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

type SlotResponse struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Title     string    `json:"title"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Status    string    `json:"status" enum:"locked,offered,reserved"`
	CreatedAt time.Time `json:"created_at"`
}

type MarketplaceSlotResponse struct {
	SlotResponse
	OwnerName string `json:"owner_name"`
}

type SwapRequestResponse struct {
	ID             string    `json:"id"`
	Status         string    `json:"status" enum:"pending,accepted,rejected"`
	CreatedAt      time.Time `json:"created_at"`
	RequesterID    string    `json:"requester_id"`
	RequesterName  string    `json:"requester_name"`
	ResponderID    string    `json:"responder_id"`
	ResponderName  string    `json:"responder_name"`
	MySlotID       string    `json:"my_slot_id"`
	MySlotTitle    string    `json:"my_slot_title"`
	MySlotStart    time.Time `json:"my_slot_start"`
	MySlotEnd      time.Time `json:"my_slot_end"`
	TheirSlotID    string    `json:"their_slot_id"`
	TheirSlotTitle string    `json:"their_slot_title"`
	TheirSlotStart time.Time `json:"their_slot_start"`
	TheirSlotEnd   time.Time `json:"their_slot_end"`
}

type DevTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func mapParty(p domain.Party) PartyResponse {
	return PartyResponse{ID: p.ID, DisplayName: p.DisplayName, CreatedAt: p.CreatedAt}
}

func mapSlot(s domain.Slot) SlotResponse {
	return SlotResponse{
		ID:        s.ID,
		OwnerID:   s.OwnerID,
		Title:     s.Title,
		Start:     s.Start,
		End:       s.End,
		Status:    s.Status.String(),
		CreatedAt: s.CreatedAt,
	}
}

func mapSlots(items []domain.Slot) []SlotResponse {
	out := make([]SlotResponse, 0, len(items))
	for _, s := range items {
		out = append(out, mapSlot(s))
	}
	return out
}

func mapMarketplace(items []domain.MarketplaceSlot) []MarketplaceSlotResponse {
	out := make([]MarketplaceSlotResponse, 0, len(items))
	for _, m := range items {
		out = append(out, MarketplaceSlotResponse{SlotResponse: mapSlot(m.Slot), OwnerName: m.OwnerName})
	}
	return out
}

func mapSwapRequest(d domain.ProposalDetails) SwapRequestResponse {
	return SwapRequestResponse{
		ID:             d.ID,
		Status:         d.Status.String(),
		CreatedAt:      d.CreatedAt,
		RequesterID:    d.InitiatorID,
		RequesterName:  d.InitiatorName,
		ResponderID:    d.TargetID,
		ResponderName:  d.TargetName,
		MySlotID:       d.MySlotID,
		MySlotTitle:    d.MySlot.Title,
		MySlotStart:    d.MySlot.Start,
		MySlotEnd:      d.MySlot.End,
		TheirSlotID:    d.TheirSlotID,
		TheirSlotTitle: d.TheirSlot.Title,
		TheirSlotStart: d.TheirSlot.Start,
		TheirSlotEnd:   d.TheirSlot.End,
	}
}

func mapSwapRequests(items []domain.ProposalDetails) []SwapRequestResponse {
	out := make([]SwapRequestResponse, 0, len(items))
	for _, d := range items {
		out = append(out, mapSwapRequest(d))
	}
	return out
}

// parseSlotStatus maps an optional wire status to the domain value; nil stays nil.
func parseSlotStatus(raw *string) (*domain.SlotStatus, error) {
	if raw == nil {
		return nil, nil
	}
	st, err := domain.ParseSlotStatus(*raw)
	if err != nil {
		return nil, err
	}
	return &st, nil
}
