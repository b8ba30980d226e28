package models

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-json"
)

// ErrInvalidRecurrenceKind is returned for repeat configurations outside the four known kinds.
var ErrInvalidRecurrenceKind = errors.New("invalid recurrence kind")

type RepeatConfiguration string

const (
	RepeatOnce        RepeatConfiguration = "once"
	RepeatWeekly      RepeatConfiguration = "weekly"
	RepeatFortnightly RepeatConfiguration = "fortnightly"
	RepeatMonthly     RepeatConfiguration = "monthly"
)

func ParseRepeatConfiguration(s string) (RepeatConfiguration, error) {
	switch rc := RepeatConfiguration(s); rc {
	case RepeatOnce, RepeatWeekly, RepeatFortnightly, RepeatMonthly:
		return rc, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRecurrenceKind, s)
}

func (rc RepeatConfiguration) Valid() bool {
	_, err := ParseRepeatConfiguration(string(rc))
	return err == nil
}

func (rc *RepeatConfiguration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("repeat_configuration must be a string: %w", err)
	}
	parsed, err := ParseRepeatConfiguration(s)
	if err != nil {
		return err
	}
	*rc = parsed
	return nil
}

// Scan implements sql.Scanner so a text column scans straight into the enum, rejecting unknown values.
func (rc *RepeatConfiguration) Scan(src any) error {
	var s string
	switch v := src.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return fmt.Errorf("%w: unsupported source %T", ErrInvalidRecurrenceKind, src)
	}
	parsed, err := ParseRepeatConfiguration(s)
	if err != nil {
		return err
	}
	*rc = parsed
	return nil
}

// CalendarEvent is a recurring event definition within the Modcast calendar.
type CalendarEvent struct {
	ID                  string
	Title               string
	FirstDate           time.Time
	RepeatConfiguration RepeatConfiguration
	Creator             int64
}

// NewCalendarEvent validates the repeat kind and truncates firstDate to a calendar date.
func NewCalendarEvent(id, title string, firstDate time.Time, repeat string, creator int64) (CalendarEvent, error) {
	rc, err := ParseRepeatConfiguration(repeat)
	if err != nil {
		return CalendarEvent{}, err
	}
	return CalendarEvent{
		ID:                  id,
		Title:               title,
		FirstDate:           CivilDate(firstDate),
		RepeatConfiguration: rc,
		Creator:             creator,
	}, nil
}

type calendarEventJSON struct {
	ID                  string              `json:"id"`
	Title               string              `json:"title"`
	FirstDate           string              `json:"first_date"`
	RepeatConfiguration RepeatConfiguration `json:"repeat_configuration"`
	Creator             string              `json:"creator"`
}

func (e CalendarEvent) toJSON() calendarEventJSON {
	return calendarEventJSON{
		ID:                  e.ID,
		Title:               e.Title,
		FirstDate:           FormatDate(e.FirstDate),
		RepeatConfiguration: e.RepeatConfiguration,
		Creator:             strconv.FormatInt(e.Creator, 10),
	}
}

func (e CalendarEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.toJSON())
}

// Occurrence is one concrete dated instance of a CalendarEvent. It is never persisted.
type Occurrence struct {
	Event CalendarEvent
	Date  time.Time
}

func (o Occurrence) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		calendarEventJSON
		Date string `json:"date"`
	}{
		calendarEventJSON: o.Event.toJSON(),
		Date:              FormatDate(o.Date),
	})
}
