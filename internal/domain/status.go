package domain

import "fmt"

// SlotStatus is the availability of a slot. The zero value is not a valid
// status so an unset field is caught by Valid.
type SlotStatus uint8

const (
	SlotLocked SlotStatus = iota + 1
	SlotOffered
	SlotReserved
)

var slotStatusNames = map[SlotStatus]string{
	SlotLocked:   "locked",
	SlotOffered:  "offered",
	SlotReserved: "reserved",
}

func (s SlotStatus) Valid() bool {
	_, ok := slotStatusNames[s]
	return ok
}

func (s SlotStatus) String() string {
	if name, ok := slotStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("SlotStatus(%d)", uint8(s))
}

// OwnerEditable reports whether an owner may set a slot to this status
// directly. Reserved is reachable only through a proposal.
func (s SlotStatus) OwnerEditable() bool {
	return s == SlotLocked || s == SlotOffered
}

func (s SlotStatus) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidStatus, uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *SlotStatus) UnmarshalText(b []byte) error {
	parsed, err := ParseSlotStatus(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func ParseSlotStatus(v string) (SlotStatus, error) {
	for status, name := range slotStatusNames {
		if name == v {
			return status, nil
		}
	}
	return 0, fmt.Errorf("%w: slot status %q", ErrInvalidStatus, v)
}

// ProposalStatus is the lifecycle state of a proposal. Accepted and Rejected
// are terminal.
type ProposalStatus uint8

const (
	ProposalPending ProposalStatus = iota + 1
	ProposalAccepted
	ProposalRejected
)

var proposalStatusNames = map[ProposalStatus]string{
	ProposalPending:  "pending",
	ProposalAccepted: "accepted",
	ProposalRejected: "rejected",
}

func (s ProposalStatus) Valid() bool {
	_, ok := proposalStatusNames[s]
	return ok
}

func (s ProposalStatus) Terminal() bool {
	return s == ProposalAccepted || s == ProposalRejected
}

func (s ProposalStatus) String() string {
	if name, ok := proposalStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("ProposalStatus(%d)", uint8(s))
}

func (s ProposalStatus) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidStatus, uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *ProposalStatus) UnmarshalText(b []byte) error {
	parsed, err := ParseProposalStatus(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func ParseProposalStatus(v string) (ProposalStatus, error) {
	for status, name := range proposalStatusNames {
		if name == v {
			return status, nil
		}
	}
	return 0, fmt.Errorf("%w: proposal status %q", ErrInvalidStatus, v)
}

// Resolution returns the terminal proposal status for a response and the
// status both slots land in.
func Resolution(accept bool) (ProposalStatus, SlotStatus) {
	if accept {
		return ProposalAccepted, SlotLocked
	}
	return ProposalRejected, SlotOffered
}
