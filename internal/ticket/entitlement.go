package ticket

// DefaultUnit is the wager volume, in currency units, that earns one ticket.
const DefaultUnit int64 = 1000

// Entitlement is an account's ticket position derived from its wager volume.
type Entitlement struct {
	TicketsTotal     int64 `json:"tickets_total"`
	TicketsUsed      int64 `json:"tickets_used"`
	TicketsRemaining int64 `json:"tickets_remaining"`
}

// Compute converts a wagered amount into tickets. Stale wager data can report
// fewer tickets than were already used; remaining is clamped to zero in that
// case rather than treated as an error.
func Compute(wageredAmount, ticketsUsed, unit int64) Entitlement {
	if wageredAmount < 0 {
		wageredAmount = 0
	}
	if ticketsUsed < 0 {
		ticketsUsed = 0
	}
	var total int64
	if unit > 0 {
		total = wageredAmount / unit
	}
	return Entitlement{
		TicketsTotal:     total,
		TicketsUsed:      ticketsUsed,
		TicketsRemaining: max(0, total-ticketsUsed),
	}
}

// CanSpin reports whether at least one ticket is available.
func (e Entitlement) CanSpin() bool {
	return e.TicketsRemaining >= 1
}

// Consume returns the entitlement after one ticket is spent.
func (e Entitlement) Consume() Entitlement {
	e.TicketsUsed++
	e.TicketsRemaining = max(0, e.TicketsTotal-e.TicketsUsed)
	return e
}
