package circulation

import (
	"fmt"
	"time"
)

// SeasonKind labels a month as heating or summer.
type SeasonKind string

const (
	SeasonHeating SeasonKind = "heating"
	SeasonSummer  SeasonKind = "summer"
)

// DefaultHeatingMonths is October through April.
var DefaultHeatingMonths = []time.Month{
	time.October, time.November, time.December,
	time.January, time.February, time.March, time.April,
}

// Season is a calendar predicate over months.
type Season struct {
	heating [13]bool
}

// NewSeason builds a season from the months that count as heating season.
func NewSeason(heatingMonths []time.Month) (Season, error) {
	var s Season
	if len(heatingMonths) == 0 || len(heatingMonths) >= 12 {
		return Season{}, fmt.Errorf("%w: need between 1 and 11 heating months", ErrInvalidSeason)
	}
	for _, m := range heatingMonths {
		if m < time.January || m > time.December {
			return Season{}, fmt.Errorf("%w: month %d", ErrInvalidSeason, m)
		}
		s.heating[m] = true
	}
	return s, nil
}

// DefaultSeason returns the Oct-Apr heating season.
func DefaultSeason() Season {
	s, _ := NewSeason(DefaultHeatingMonths)
	return s
}

// IsHeatingSeason reports whether date falls in a heating month.
func (s Season) IsHeatingSeason(date time.Time) bool {
	return s.heating[date.Month()]
}

// KindOf classifies date.
func (s Season) KindOf(date time.Time) SeasonKind {
	if s.IsHeatingSeason(date) {
		return SeasonHeating
	}
	return SeasonSummer
}

// SummerMonths lists the non-heating months in calendar order.
func (s Season) SummerMonths() []time.Month {
	out := make([]time.Month, 0, 12)
	for m := time.January; m <= time.December; m++ {
		if !s.heating[m] {
			out = append(out, m)
		}
	}
	return out
}

// IsHeatingSeason uses the default season.
func IsHeatingSeason(date time.Time) bool {
	return DefaultSeason().IsHeatingSeason(date)
}

// MonthStart truncates t to the first day of its month in UTC.
func MonthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
