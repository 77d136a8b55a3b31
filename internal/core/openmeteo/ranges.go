// Package openmeteo loads historical daily weather from the Open-Meteo archive API.
package openmeteo

import (
	"time"

	"github.com/mohammed-shakir/geo-resolver/internal/core/model"
)

// HistoricalRanges projects anchor onto the year of now and returns years
// ranges of the same day span, most recent first, each ending before now's date.
// years is floored to 1.
func HistoricalRanges(anchor model.DateRange, now time.Time, years int) []model.DateRange {
	today := dateOf(now)
	start, end := dateOf(anchor.Start), dateOf(anchor.End)
	if end.Before(start) {
		start, end = end, start
	}
	span := daysBetween(start, end)

	// each range is projected from the anchor itself, so a clamped Feb 29
	// comes back in leap years
	rangeOn := func(year int) model.DateRange {
		s := onYear(start, year)
		return model.DateRange{Start: s, End: s.AddDate(0, 0, span)}
	}

	year := today.Year()
	// roll back until the whole range is in the past
	for !rangeOn(year).End.Before(today) {
		year--
	}

	years = max(years, 1)
	out := make([]model.DateRange, 0, years)
	for k := range years {
		out = append(out, rangeOn(year-k))
	}
	return out
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func daysBetween(a, b time.Time) int {
	return int(b.Sub(a).Hours() / 24)
}

// onYear moves t to year, mapping Feb 29 to Feb 28 in non-leap years.
func onYear(t time.Time, year int) time.Time {
	m, d := t.Month(), t.Day()
	if m == time.February && d == 29 && !isLeap(year) {
		d = 28
	}
	return time.Date(year, m, d, 0, 0, 0, 0, time.UTC)
}

func isLeap(y int) bool {
	return y%4 == 0 && (y%100 != 0 || y%400 == 0)
}
