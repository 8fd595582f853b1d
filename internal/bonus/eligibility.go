package bonus

import (
	"errors"
	"fmt"
	"time"
)

// DefaultCooldown is the wait between daily bonus spins.
const DefaultCooldown = 24 * time.Hour

var ErrOnCooldown = errors.New("bonus spin on cooldown")

// CooldownError carries how long the account still has to wait.
type CooldownError struct {
	Remaining   time.Duration
	NextBonusAt time.Time
}

func (e *CooldownError) Error() string {
	hours := int(e.Remaining.Hours())
	minutes := int(e.Remaining.Minutes()) % 60
	if hours > 0 {
		return fmt.Sprintf("bonus spin on cooldown: %dh %dm remaining", hours, minutes)
	}
	seconds := int(e.Remaining.Seconds()) % 60
	return fmt.Sprintf("bonus spin on cooldown: %dm %ds remaining", minutes, seconds)
}

// Is allows errors.Is(err, ErrOnCooldown).
func (e *CooldownError) Is(target error) bool {
	return target == ErrOnCooldown
}

type Status struct {
	Available   bool          `json:"available"`
	Remaining   time.Duration `json:"-"`
	RemainingMS int64         `json:"remaining_ms"`
	NextBonusAt *time.Time    `json:"next_bonus_at,omitempty"`
}

// CheckEligible reports whether a bonus spin is allowed at now. An account
// that never spun is always eligible. A clock that moved backwards keeps the
// account on cooldown for the full remaining span rather than more.
func CheckEligible(lastBonusSpinAt *time.Time, now time.Time, cooldown time.Duration) Status {
	if lastBonusSpinAt == nil {
		return Status{Available: true}
	}
	next := lastBonusSpinAt.Add(cooldown)
	if !now.Before(next) {
		return Status{Available: true, NextBonusAt: &next}
	}
	remaining := min(next.Sub(now), cooldown)
	return Status{
		Available:   false,
		Remaining:   remaining,
		RemainingMS: remaining.Milliseconds(),
		NextBonusAt: &next,
	}
}
