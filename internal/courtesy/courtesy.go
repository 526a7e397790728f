// Package courtesy implements the loyalty bonus added on top of a credit
// pack's base credits.
package courtesy

type Mode string

const (
	// ModeFlat grants the same bonus on every purchase.
	ModeFlat Mode = "flat"
	// ModeProgressive grows the bonus with purchase history, capped.
	ModeProgressive Mode = "progressive"
)

const (
	progressiveBase = 2
	progressiveCap  = 5
)

type Policy struct {
	mode Mode
	flat int
}

// NewPolicy selects the bonus mode at construction time. Unknown modes and
// negative flat bonuses fall back to the flat default of 3.
func NewPolicy(mode Mode, flatBonus int) Policy {
	if mode != ModeProgressive {
		mode = ModeFlat
	}
	if flatBonus < 0 {
		flatBonus = 3
	}
	return Policy{mode: mode, flat: flatBonus}
}

// Bonus returns the extra credits for a purchase given the payer's prior
// successful purchase count.
func (p Policy) Bonus(priorPurchases int) int {
	if priorPurchases < 0 {
		priorPurchases = 0
	}
	if p.mode == ModeProgressive {
		b := progressiveBase + priorPurchases
		if b > progressiveCap {
			return progressiveCap
		}
		return b
	}
	return p.flat
}
