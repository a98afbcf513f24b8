package circulation

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Method selects how a building total is split between properties.
type Method string

const (
	MethodEqual Method = "equal"
	MethodArea  Method = "area"
)

// ParseMethod validates a distribution method.
func ParseMethod(value string) (Method, error) {
	switch Method(value) {
	case MethodEqual, MethodArea:
		return Method(value), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMethod, value)
	}
}

// Recipient is a property taking part in a distribution.
type Recipient struct {
	PropertyID string
	Area       decimal.Decimal
}

// Share is one property's part of the building cost.
type Share struct {
	PropertyID string
	Area       decimal.Decimal
	Amount     decimal.Decimal
}

// Distribute splits total (rounded to cents) across recipients.
// Shares are whole cents and always sum to the rounded total; leftover cents
// go to the largest fractional remainders, earlier recipients first on ties.
func Distribute(total decimal.Decimal, recipients []Recipient, method Method) ([]Share, error) {
	if len(recipients) == 0 {
		return nil, ErrNoProperties
	}
	if total.IsNegative() {
		return nil, ErrNegativeTotal
	}
	weights := make([]decimal.Decimal, len(recipients))
	switch method {
	case MethodEqual:
		for i := range weights {
			weights[i] = decimal.NewFromInt(1)
		}
	case MethodArea:
		for i, r := range recipients {
			if r.Area.IsNegative() {
				return nil, fmt.Errorf("%w: property=%s", ErrNegativeArea, r.PropertyID)
			}
			weights[i] = r.Area
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}

	weightSum := decimal.Zero
	for _, w := range weights {
		weightSum = weightSum.Add(w)
	}
	if weightSum.IsZero() {
		return nil, ErrZeroTotalArea
	}

	totalCents := total.Round(2).Shift(2)
	cents := make([]decimal.Decimal, len(recipients))
	remainders := make([]decimal.Decimal, len(recipients))
	assigned := decimal.Zero
	for i, w := range weights {
		raw := totalCents.Mul(w).Div(weightSum)
		cents[i] = raw.Floor()
		remainders[i] = raw.Sub(cents[i])
		assigned = assigned.Add(cents[i])
	}

	order := make([]int, len(recipients))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return remainders[order[a]].GreaterThan(remainders[order[b]])
	})
	left := totalCents.Sub(assigned).IntPart()
	for i := 0; int64(i) < left; i++ {
		idx := order[i%len(order)]
		cents[idx] = cents[idx].Add(decimal.NewFromInt(1))
	}

	shares := make([]Share, len(recipients))
	for i, r := range recipients {
		shares[i] = Share{
			PropertyID: r.PropertyID,
			Area:       r.Area,
			Amount:     cents[i].Shift(-2),
		}
	}
	return shares, nil
}
