package tariffs

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

type zoneDoc struct {
	ID    string          `json:"id"`
	Start string          `json:"start"`
	End   string          `json:"end"`
	Rate  decimal.Decimal `json:"rate"`
}

type pricingDoc struct {
	Type          Kind                `json:"type"`
	Rate          *decimal.Decimal    `json:"rate,omitempty"`
	Zones         []zoneDoc           `json:"zones,omitempty"`
	WeekendPolicy WeekendPolicy       `json:"weekend_policy,omitempty"`
	WeekendRate   decimal.NullDecimal `json:"weekend_rate"`
}

// MarshalPricing encodes pricing as a JSON document with a "type" discriminator.
func MarshalPricing(p Pricing) ([]byte, error) {
	var doc pricingDoc
	switch v := clonePricing(p).(type) {
	case FlatPricing:
		rate := v.Rate
		doc = pricingDoc{Type: KindFlat, Rate: &rate}
	case TimeOfUsePricing:
		doc = pricingDoc{Type: KindTimeOfUse, WeekendPolicy: v.Weekend, WeekendRate: v.WeekendRate}
		for _, z := range v.Zones {
			doc.Zones = append(doc.Zones, zoneDoc{
				ID:    z.ID,
				Start: FormatClock(z.StartMinute),
				End:   FormatClock(z.EndMinute),
				Rate:  z.Rate,
			})
		}
	default:
		return nil, ErrUnknownPricing
	}
	return json.Marshal(doc)
}

// UnmarshalPricing decodes and validates a pricing document.
func UnmarshalPricing(data []byte) (Pricing, error) {
	var doc pricingDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("tariffs: decode pricing: %w", err)
	}
	var p Pricing
	switch doc.Type {
	case KindFlat:
		if doc.Rate == nil {
			return nil, fmt.Errorf("%w: flat pricing without rate", ErrUnknownPricing)
		}
		p = FlatPricing{Rate: *doc.Rate}
	case KindTimeOfUse:
		tou := TimeOfUsePricing{Weekend: doc.WeekendPolicy, WeekendRate: doc.WeekendRate}
		for _, z := range doc.Zones {
			start, err := ParseClock(z.Start)
			if err != nil {
				return nil, err
			}
			end, err := ParseClock(z.End)
			if err != nil {
				return nil, err
			}
			if end == MinutesPerDay && start == 0 {
				end = 0
			}
			tou.Zones = append(tou.Zones, Zone{ID: z.ID, StartMinute: start, EndMinute: end, Rate: z.Rate})
		}
		p = tou
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPricing, doc.Type)
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}
