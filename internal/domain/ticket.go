package domain

type TicketStatus string

const (
	TicketPending  TicketStatus = "PENDING"
	TicketPaid     TicketStatus = "PAID"
	TicketFailed   TicketStatus = "FAILED"
	TicketUsed     TicketStatus = "USED"
	TicketCanceled TicketStatus = "CANCELED"
	TicketExpired  TicketStatus = "EXPIRED"
)

func ParseTicketStatus(s string) (TicketStatus, bool) {
	st := TicketStatus(s)
	switch st {
	case TicketPending, TicketPaid, TicketFailed, TicketUsed, TicketCanceled, TicketExpired:
		return st, true
	}
	return "", false
}

// Terminal statuses never transition again.
func (s TicketStatus) Terminal() bool {
	switch s {
	case TicketFailed, TicketUsed, TicketCanceled, TicketExpired:
		return true
	}
	return false
}

// HoldsSeat reports whether a ticket in this status keeps its seat unavailable.
func (s TicketStatus) HoldsSeat() bool {
	return s == TicketPending || s == TicketPaid
}

// ReleasesSeat reports whether entering this status gives the seat back.
func (s TicketStatus) ReleasesSeat() bool {
	switch s {
	case TicketFailed, TicketCanceled, TicketExpired:
		return true
	}
	return false
}

// OverrideAllowed lists the statuses an administrator may set directly.
func OverrideAllowed(s TicketStatus) bool {
	switch s {
	case TicketPaid, TicketUsed, TicketCanceled, TicketExpired:
		return true
	}
	return false
}
