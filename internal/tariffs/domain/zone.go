package tariffs

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// MinutesPerDay is the length of the zone clock.
const MinutesPerDay = 24 * 60

// Well-known zone ids.
const (
	ZoneDay     = "day"
	ZoneNight   = "night"
	ZoneWeekend = "weekend"
)

// Zone is a daily time band [StartMinute, EndMinute) with its own rate.
// EndMinute <= StartMinute wraps past midnight; equal bounds cover the whole day.
type Zone struct {
	ID          string
	StartMinute int
	EndMinute   int
	Rate        decimal.Decimal
}

// Contains reports whether minute of day falls in the zone.
func (z Zone) Contains(minute int) bool {
	switch {
	case z.StartMinute == z.EndMinute:
		return true
	case z.StartMinute < z.EndMinute:
		return minute >= z.StartMinute && minute < z.EndMinute
	default:
		return minute >= z.StartMinute || minute < z.EndMinute
	}
}

// ParseClock parses "HH:MM" into minutes since midnight. "24:00" is accepted as an end bound.
func ParseClock(value string) (int, error) {
	parts := strings.Split(value, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, value)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, value)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, value)
	}
	if h < 0 || h > 24 || m < 0 || m > 59 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, value)
	}
	return h*60 + m, nil
}

// FormatClock renders minutes since midnight as "HH:MM".
func FormatClock(minute int) string {
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}

type segment struct {
	zone       string
	start, end int
}

func segmentsOf(z Zone) []segment {
	switch {
	case z.StartMinute == z.EndMinute:
		return []segment{{z.ID, 0, MinutesPerDay}}
	case z.StartMinute < z.EndMinute:
		return []segment{{z.ID, z.StartMinute, z.EndMinute}}
	default:
		out := []segment{{z.ID, z.StartMinute, MinutesPerDay}}
		if z.EndMinute > 0 {
			out = append(out, segment{z.ID, 0, z.EndMinute})
		}
		return out
	}
}

// validateTiling checks zones cover every minute of the day exactly once.
func validateTiling(zones []Zone) error {
	if len(zones) == 0 {
		return ErrEmptyZones
	}
	seen := make(map[string]struct{}, len(zones))
	var segs []segment
	for _, z := range zones {
		if z.ID == "" {
			return fmt.Errorf("%w: empty id", ErrDuplicateZone)
		}
		if _, ok := seen[z.ID]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateZone, z.ID)
		}
		seen[z.ID] = struct{}{}
		if z.StartMinute < 0 || z.StartMinute >= MinutesPerDay || z.EndMinute < 0 || z.EndMinute > MinutesPerDay {
			return fmt.Errorf("%w: zone %s %d-%d", ErrInvalidClock, z.ID, z.StartMinute, z.EndMinute)
		}
		if z.Rate.IsNegative() {
			return fmt.Errorf("%w: zone %s", ErrNegativeRate, z.ID)
		}
		segs = append(segs, segmentsOf(z)...)
	}
	sort.Slice(segs, func(i, j int) bool { return segs[i].start < segs[j].start })
	cursor := 0
	for _, s := range segs {
		if s.start > cursor {
			return fmt.Errorf("%w: %s-%s uncovered", ErrZoneGap, FormatClock(cursor), FormatClock(s.start))
		}
		if s.start < cursor {
			return fmt.Errorf("%w: zone %s at %s", ErrZoneOverlap, s.zone, FormatClock(s.start))
		}
		cursor = s.end
	}
	if cursor < MinutesPerDay {
		return fmt.Errorf("%w: %s-24:00 uncovered", ErrZoneGap, FormatClock(cursor))
	}
	return nil
}
