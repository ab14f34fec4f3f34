package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"slotswap/internal/domain"
)

// SlotCreateOptions are parameters for creating a slot. Status defaults to
// Locked.
type SlotCreateOptions struct {
	OwnerID string
	Title   string
	Start   time.Time
	End     time.Time
	Status  domain.SlotStatus
}

// SlotPatch lists the fields an owner may change. Nil fields are kept.
type SlotPatch struct {
	Title  *string
	Start  *time.Time
	End    *time.Time
	Status *domain.SlotStatus
}

func validateSlot(s domain.Slot) error {
	if strings.TrimSpace(s.Title) == "" {
		return fmt.Errorf("%w: title required", domain.ErrInvalidSlot)
	}
	if s.Start.IsZero() || s.End.IsZero() {
		return fmt.Errorf("%w: start and end required", domain.ErrInvalidSlot)
	}
	if !s.End.After(s.Start) {
		return fmt.Errorf("%w: end must be after start", domain.ErrInvalidSlot)
	}
	return nil
}

func (e Engine) CreateSlot(ctx context.Context, opts SlotCreateOptions) (domain.Slot, error) {
	status := opts.Status
	if status == 0 {
		status = domain.SlotLocked
	}
	if !status.OwnerEditable() {
		return domain.Slot{}, fmt.Errorf("%w: new slots must be locked or offered", domain.ErrInvalidStatus)
	}
	s := domain.Slot{
		ID:        e.newID(),
		OwnerID:   opts.OwnerID,
		Title:     strings.TrimSpace(opts.Title),
		Start:     opts.Start.UTC(),
		End:       opts.End.UTC(),
		Status:    status,
		CreatedAt: e.now(),
	}
	if err := validateSlot(s); err != nil {
		return domain.Slot{}, err
	}
	err := e.inTx(ctx, "create_slot", func(ctx context.Context, tx Tx) error {
		if _, err := tx.GetParty(ctx, s.OwnerID); err != nil {
			return err
		}
		return tx.InsertSlot(ctx, s)
	})
	if err != nil {
		return domain.Slot{}, err
	}
	return s, nil
}

// UpdateSlot applies an owner edit. Reserved slots are frozen until their
// proposal is resolved, and an edit can never set Reserved.
func (e Engine) UpdateSlot(ctx context.Context, ownerID, slotID string, patch SlotPatch) (domain.Slot, error) {
	var out domain.Slot
	err := e.inTx(ctx, "update_slot", func(ctx context.Context, tx Tx) error {
		s, err := tx.GetSlotForUpdate(ctx, slotID)
		if err != nil {
			return err
		}
		if s.OwnerID != ownerID {
			return domain.ErrNotOwner
		}
		if s.Status == domain.SlotReserved {
			return domain.ErrSlotReserved
		}
		if patch.Title != nil {
			s.Title = strings.TrimSpace(*patch.Title)
		}
		if patch.Start != nil {
			s.Start = patch.Start.UTC()
		}
		if patch.End != nil {
			s.End = patch.End.UTC()
		}
		if patch.Status != nil {
			if !patch.Status.OwnerEditable() {
				return fmt.Errorf("%w: owners may only set locked or offered", domain.ErrInvalidStatus)
			}
			s.Status = *patch.Status
		}
		if err := validateSlot(s); err != nil {
			return err
		}
		if err := tx.UpdateSlot(ctx, s); err != nil {
			return err
		}
		out = s
		return nil
	})
	if err != nil {
		return domain.Slot{}, err
	}
	return out, nil
}

func (e Engine) DeleteSlot(ctx context.Context, ownerID, slotID string) error {
	err := e.inTx(ctx, "delete_slot", func(ctx context.Context, tx Tx) error {
		s, err := tx.GetSlotForUpdate(ctx, slotID)
		if err != nil {
			return err
		}
		if s.OwnerID != ownerID {
			return domain.ErrNotOwner
		}
		if s.Status == domain.SlotReserved {
			return domain.ErrSlotReserved
		}
		return tx.DeleteSlot(ctx, slotID)
	})
	if err != nil {
		return err
	}
	e.logger().Debug("slot deleted", zap.String("slot_id", slotID), zap.String("owner_id", ownerID))
	return nil
}

// ListMySlots returns the party's slots ordered by start.
func (e Engine) ListMySlots(ctx context.Context, ownerID string) ([]domain.Slot, error) {
	var out []domain.Slot
	err := e.inTx(ctx, "list_slots", func(ctx context.Context, tx Tx) error {
		var err error
		out, err = tx.ListSlotsByOwner(ctx, ownerID)
		return err
	})
	return out, err
}
