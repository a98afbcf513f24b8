package circulation

import (
	"time"

	"github.com/shopspring/decimal"
)

// Allocation is the circulation cost of one building for one month and its split.
// There is at most one per (BuildingID, Month); recalculation replaces it whole.
type Allocation struct {
	BuildingID     string
	Month          time.Time
	Season         SeasonKind
	CirculationKWh decimal.Decimal
	UnitPrice      decimal.Decimal
	TotalCost      decimal.Decimal
	Currency       string
	Method         Method
	Shares         []Share
	CalculatedAt   time.Time
}

// ShareFor returns the share of a property.
func (a *Allocation) ShareFor(propertyID string) (Share, error) {
	for _, s := range a.Shares {
		if s.PropertyID == propertyID {
			return s, nil
		}
	}
	return Share{}, ErrPropertyNotAllocated
}

// Allocated sums the shares.
func (a *Allocation) Allocated() decimal.Decimal {
	sum := decimal.Zero
	for _, s := range a.Shares {
		sum = sum.Add(s.Amount)
	}
	return sum
}

// Clone returns a deep copy.
func (a *Allocation) Clone() *Allocation {
	if a == nil {
		return nil
	}
	clone := *a
	clone.Shares = append([]Share(nil), a.Shares...)
	return &clone
}
