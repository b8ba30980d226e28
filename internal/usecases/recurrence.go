package usecases

import (
	"fmt"
	"modpod/internal/models"
	"slices"
	"time"
)

const (
	// ExpansionHorizon is the number of cycles generated per recurring definition.
	ExpansionHorizon = 100
	// MaxOccurrences is the hard ceiling on a single expansion result.
	MaxOccurrences = 50
)

// ClampLimit maps a requested result size onto (0, MaxOccurrences].
func ClampLimit(limit int) int {
	if limit <= 0 || limit > MaxOccurrences {
		return MaxOccurrences
	}
	return limit
}

// ExpandOccurrences materializes every definition into concrete occurrences, keeps those
// on or after today, orders them by date and returns at most ClampLimit(limit) of them.
// Occurrences sharing a date keep the relative order of their definitions in events.
func ExpandOccurrences(events []models.CalendarEvent, today time.Time, limit int) []models.Occurrence {
	today = models.CivilDate(today)

	var occurrences []models.Occurrence
	for _, ev := range events {
		for _, d := range occurrenceDates(ev) {
			if d.Before(today) {
				continue
			}
			occurrences = append(occurrences, models.Occurrence{Event: ev, Date: d})
		}
	}

	slices.SortStableFunc(occurrences, func(a, b models.Occurrence) int {
		return a.Date.Compare(b.Date)
	})

	if n := ClampLimit(limit); len(occurrences) > n {
		occurrences = occurrences[:n]
	}
	if occurrences == nil {
		occurrences = []models.Occurrence{}
	}
	return occurrences
}

func occurrenceDates(ev models.CalendarEvent) []time.Time {
	first := models.CivilDate(ev.FirstDate)

	switch ev.RepeatConfiguration {
	case models.RepeatOnce:
		return []time.Time{first}
	case models.RepeatWeekly:
		return everyNDays(first, 7)
	case models.RepeatFortnightly:
		return everyNDays(first, 14)
	case models.RepeatMonthly:
		dates := make([]time.Time, ExpansionHorizon)
		for i := range dates {
			dates[i] = AddMonths(first, i)
		}
		return dates
	}
	// Definitions are validated when constructed or scanned.
	panic(fmt.Sprintf("usecases: %v: %q", models.ErrInvalidRecurrenceKind, ev.RepeatConfiguration))
}

func everyNDays(first time.Time, n int) []time.Time {
	dates := make([]time.Time, ExpansionHorizon)
	for i := range dates {
		dates[i] = first.AddDate(0, 0, n*i)
	}
	return dates
}

// AddMonths advances d by n calendar months, clamping the day to the end of the target
// month: Jan 31 + 1 month is Feb 29 in a leap year and Feb 28 otherwise.
func AddMonths(d time.Time, n int) time.Time {
	y, m, day := d.Date()
	target := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	if last := target.AddDate(0, 1, -1).Day(); day > last {
		day = last
	}
	return time.Date(target.Year(), target.Month(), day, 0, 0, 0, 0, time.UTC)
}
