package pricing

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var ErrValidation = errors.New("invalid pricing input")

// DefaultDepositRate is the system-wide deposit fraction used when no
// rate is configured.
const DefaultDepositRate = 0.10

// Quote is the resolved per-unit price for an order.
type Quote struct {
	UnitPrice  int64 `json:"unit_price"`
	Total      int64 `json:"total"`
	MinApplied bool  `json:"min_applied"`
}

// ResolveUnitPrice applies the urgent surcharge and the courier minimum
// total to a base per-box price. Rounding is always up: the payer's price
// never under-covers the minimum or the surcharge.
//
// A non-positive boxCount cannot be priced against a minimum, so the base
// price is returned unmodified.
func ResolveUnitPrice(basePrice, boxCount, minTotal, urgentRate int64, urgent bool) (Quote, error) {
	if basePrice <= 0 {
		return Quote{}, fmt.Errorf("%w: base price must be positive, got %d", ErrValidation, basePrice)
	}
	if minTotal < 0 {
		return Quote{}, fmt.Errorf("%w: negative minimum total %d", ErrValidation, minTotal)
	}
	if urgentRate < 0 {
		return Quote{}, fmt.Errorf("%w: negative urgent surcharge rate %d", ErrValidation, urgentRate)
	}

	if boxCount <= 0 {
		return Quote{UnitPrice: basePrice}, nil
	}

	unit := basePrice
	if urgent && urgentRate > 0 {
		unit = ceilDiv(basePrice*(100+urgentRate), 100)
	}

	q := Quote{UnitPrice: unit}
	if raw := unit * boxCount; minTotal > 0 && raw < minTotal {
		if required := ceilDiv(minTotal, boxCount); required > unit {
			q.UnitPrice = required
		}
		q.MinApplied = true
	}
	q.Total = q.UnitPrice * boxCount
	return q, nil
}

// Deposit derives the up-front payment from an order total.
func Deposit(total int64, rate float64) int64 {
	return int64(math.Round(float64(total) * rate))
}

// BalanceDueDate is scheduled end + 7 calendar days; without a known end
// date it falls back to now + 14 days.
func BalanceDueDate(scheduledEnd *time.Time, now time.Time) time.Time {
	if scheduledEnd != nil {
		return scheduledEnd.AddDate(0, 0, 7)
	}
	return now.AddDate(0, 0, 14)
}

// RefundAmount is the refunded share of a captured deposit for a given
// refund percentage.
func RefundAmount(deposit int64, rate int) int64 {
	return deposit * int64(rate) / 100
}

func ceilDiv(a, b int64) int64 {
	return (a + b - 1) / b
}
