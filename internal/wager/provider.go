// Package wager reads per-account wagering totals maintained by the external
// wager-sheet refresh job.
package wager

import (
	"context"
	"sync"
	"time"
)

// Snapshot is the wagering total observed for an account at a point in time.
type Snapshot struct {
	AccountID     string    `json:"account_id"`
	WageredAmount int64     `json:"wagered_amount"`
	ObservedAt    time.Time `json:"observed_at"`
}

type Provider interface {
	GetWagerSnapshot(ctx context.Context, accountID string) (Snapshot, error)
}

// StaticProvider serves snapshots from memory. Accounts without an entry read
// as zero wagered.
type StaticProvider struct {
	mu      sync.RWMutex
	amounts map[string]int64
	now     func() time.Time
}

func NewStaticProvider(amounts map[string]int64) *StaticProvider {
	p := &StaticProvider{amounts: make(map[string]int64, len(amounts)), now: time.Now}
	for id, amount := range amounts {
		p.amounts[id] = amount
	}
	return p
}

func (p *StaticProvider) Set(accountID string, wagered int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.amounts[accountID] = wagered
}

func (p *StaticProvider) GetWagerSnapshot(ctx context.Context, accountID string) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return Snapshot{AccountID: accountID, WageredAmount: p.amounts[accountID], ObservedAt: p.now()}, nil
}
