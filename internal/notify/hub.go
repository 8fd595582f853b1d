// Package notify fans settled spins out to live subscribers, such as a
// player's open rewards page.
package notify

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

const subscriberBuffer = 10

type Event struct {
	Kind             string          `json:"kind"` // "ticket" or "bonus"
	AccountID        string          `json:"account_id"`
	SpinID           string          `json:"spin_id"`
	Result           string          `json:"result"`
	PrizeLabel       string          `json:"prize_label"`
	PrizeValue       decimal.Decimal `json:"prize_value"`
	TicketsRemaining int64           `json:"tickets_remaining"`
	WalletBalance    decimal.Decimal `json:"wallet_balance"`
	At               time.Time       `json:"at"`
}

// Notifier receives an event after its spin has committed.
type Notifier interface {
	Notify(e Event)
}

type Hub struct {
	mu          sync.RWMutex
	subscribers map[string][]chan Event
}

func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[string][]chan Event),
	}
}

// Subscribe returns a channel of the account's events and a func that
// unsubscribes and closes it.
func (h *Hub) Subscribe(accountID string) (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	h.subscribers[accountID] = append(h.subscribers[accountID], ch)

	var once sync.Once
	cancel := func() {
		once.Do(func() { h.unsubscribe(accountID, ch) })
	}
	return ch, cancel
}

func (h *Hub) unsubscribe(accountID string, ch chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.subscribers[accountID]
	for i, c := range subs {
		if c == ch {
			subs = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(subs) == 0 {
		delete(h.subscribers, accountID)
	} else {
		h.subscribers[accountID] = subs
	}
	close(ch)
}

func (h *Hub) Notify(e Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.subscribers[e.AccountID] {
		select {
		case ch <- e:
		default:
			// Channel full, skip (don't block)
		}
	}
}

func (h *Hub) Subscribers(accountID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[accountID])
}

type nop struct{}

func (nop) Notify(Event) {}

// Nop discards every event.
var Nop Notifier = nop{}
