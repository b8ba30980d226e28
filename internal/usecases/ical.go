package usecases

import (
	"modpod/internal/models"
	"slices"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"
)

const ICalProductID = "-//Modcast Podcast//ModPod Admin 1.0//EN"

// Floating local time: subscribers see the event on its calendar day in their own zone.
const icalFloatingLayout = "20060102T150405"

type ICalOptions struct {
	// LegacyMonthlyRule exports monthly events with the weekly rule older calendar
	// subscribers were given, instead of a monthly one.
	LegacyMonthlyRule bool
}

// RecurrenceRule returns the RRULE value for a repeat kind, or "" for one-off events.
func RecurrenceRule(rc models.RepeatConfiguration, opts ICalOptions) string {
	var opt rrule.ROption
	switch rc {
	case models.RepeatWeekly:
		opt = rrule.ROption{Freq: rrule.WEEKLY, Interval: 1}
	case models.RepeatFortnightly:
		opt = rrule.ROption{Freq: rrule.WEEKLY, Interval: 2}
	case models.RepeatMonthly:
		opt = rrule.ROption{Freq: rrule.MONTHLY, Interval: 1}
		if opts.LegacyMonthlyRule {
			opt.Freq = rrule.WEEKLY
		}
	default:
		return ""
	}
	return opt.RRuleString()
}

// GenerateICal renders every definition as an all-day VEVENT, ordered by first date.
func GenerateICal(events []models.CalendarEvent, opts ICalOptions) string {
	sorted := slices.Clone(events)
	slices.SortStableFunc(sorted, func(a, b models.CalendarEvent) int {
		return a.FirstDate.Compare(b.FirstDate)
	})

	cal := ics.NewCalendar()
	cal.SetProductId(ICalProductID)

	for _, event := range sorted {
		start := models.CivilDate(event.FirstDate)
		end := start.Add(24*time.Hour - time.Second)

		ev := cal.AddEvent(event.ID)
		ev.SetSummary(event.Title)
		ev.SetProperty(ics.ComponentPropertyDtStart, start.Format(icalFloatingLayout))
		ev.SetProperty(ics.ComponentPropertyDtEnd, end.Format(icalFloatingLayout))
		ev.SetDtStampTime(end)

		if rule := RecurrenceRule(event.RepeatConfiguration, opts); rule != "" {
			ev.AddProperty(ics.ComponentPropertyRrule, rule)
		}
	}

	return cal.Serialize()
}
