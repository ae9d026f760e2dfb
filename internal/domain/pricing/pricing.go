package pricing

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	ErrChildCount    = errors.New("child count must be at least 1")
	ErrSessionCount  = errors.New("session count must be at least 1")
	ErrNegativeMoney = errors.New("price and discount amounts cannot be negative")
)

// Ladder is the sibling-discount schedule for one program.
type Ladder struct {
	BasePriceCents    int
	DiscountStepCents int
	DiscountCapCents  int
}

// Line is the priced breakdown for a single child.
type Line struct {
	Position      int `json:"position"`
	DiscountCents int `json:"discount_cents"`
	PriceCents    int `json:"price_cents"`
}

// Quote is the full price breakdown for one submission.
type Quote struct {
	Lines                []Line `json:"lines"`
	PerSessionTotalCents int    `json:"per_session_total_cents"`
	SessionCount         int    `json:"session_count"`
	TotalCents           int    `json:"total_cents"`
}

// Validate checks the ladder amounts.
// PRE: none
// POST: Returns ErrNegativeMoney if any amount is negative
func (l Ladder) Validate() error {
	if l.BasePriceCents < 0 || l.DiscountStepCents < 0 || l.DiscountCapCents < 0 {
		return ErrNegativeMoney
	}
	return nil
}

// DiscountAt returns the ladder discount for the child at 0-indexed position i.
// Position is registration order; no other attribute affects it.
// INVARIANT: result is in [0, DiscountCapCents]
func (l Ladder) DiscountAt(i int) int {
	if i <= 0 {
		return 0
	}
	d := i * l.DiscountStepCents
	if d > l.DiscountCapCents {
		return l.DiscountCapCents
	}
	return d
}

// PriceAt returns the per-child price at position i, floored at zero.
func (l Ladder) PriceAt(i int) int {
	p := l.BasePriceCents - l.DiscountAt(i)
	if p < 0 {
		return 0
	}
	return p
}

// Quote prices childCount children across sessionCount sessions.
// PRE: childCount >= 1, sessionCount >= 1, ladder amounts >= 0
// POST: TotalCents == PerSessionTotalCents * sessionCount
// INVARIANT: pure; identical inputs yield identical output
func (l Ladder) Quote(childCount, sessionCount int) (Quote, error) {
	if err := l.check(childCount, sessionCount); err != nil {
		return Quote{}, err
	}
	q := Quote{Lines: make([]Line, childCount), SessionCount: sessionCount}
	for i := 0; i < childCount; i++ {
		price := l.PriceAt(i)
		q.Lines[i] = Line{
			Position:      i,
			DiscountCents: l.BasePriceCents - price,
			PriceCents:    price,
		}
		q.PerSessionTotalCents += price
	}
	q.TotalCents = q.PerSessionTotalCents * sessionCount
	return q, nil
}

// Discounts returns the effective per-child discounts to store with each child.
// The effective discount never exceeds the base price, so base minus discount
// always equals the charged per-child price.
func (l Ladder) Discounts(childCount int) ([]int, error) {
	q, err := l.Quote(childCount, 1)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(q.Lines))
	for i, line := range q.Lines {
		out[i] = line.DiscountCents
	}
	return out, nil
}

func (l Ladder) check(childCount, sessionCount int) error {
	if childCount < 1 {
		return ErrChildCount
	}
	if sessionCount < 1 {
		return ErrSessionCount
	}
	return l.Validate()
}

// ComputeTotal is the authoritative price for a registration.
// PRE: childCount >= 1, sessionCount >= 1, all money amounts >= 0
// POST: Returns Σ max(0, base − min(i*step, cap)) * sessionCount
func ComputeTotal(childCount, sessionCount, basePriceCents, discountStepCents, discountCapCents int) (int, error) {
	l := Ladder{
		BasePriceCents:    basePriceCents,
		DiscountStepCents: discountStepCents,
		DiscountCapCents:  discountCapCents,
	}
	q, err := l.Quote(childCount, sessionCount)
	if err != nil {
		return 0, err
	}
	return q.TotalCents, nil
}

// TotalFromStored re-derives a registration total from the values stored at
// submission time: the base price, each child's discount, and the session count.
// PRE: discounts holds one entry per child in position order
// POST: Returns Σ(base − discount) * sessionCount
func TotalFromStored(basePriceCents int, discounts []int, sessionCount int) (int, error) {
	if len(discounts) == 0 {
		return 0, ErrChildCount
	}
	if sessionCount < 1 {
		return 0, ErrSessionCount
	}
	sum := 0
	for i, d := range discounts {
		if d < 0 || d > basePriceCents {
			return 0, fmt.Errorf("child %d discount %d outside [0, %d]", i, d, basePriceCents)
		}
		sum += basePriceCents - d
	}
	return sum * sessionCount, nil
}
