// Package civiltime projects class date/time values, stored as civil time in the
// reference zone, into the wall clock of an arbitrary viewer timezone.
package civiltime

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // zone lookups must not depend on the host tz database
)

const (
	// ReferenceZone is the IANA identifier whose wall clock all class times are stored in.
	ReferenceZone = "Asia/Kolkata"
	// ReferenceOffset is the fixed UTC offset of ReferenceZone.
	ReferenceOffset = 5*time.Hour + 30*time.Minute

	dateLayout = "2006-01-02"
	timeLayout = "15:04"

	// PlaceholderTime is rendered when no class time was recorded.
	PlaceholderTime = "Time TBD"
)

// ErrInvalidTimeInput is returned when a class date or time is absent or malformed.
var ErrInvalidTimeInput = errors.New("invalid time input")

var referenceLocation = time.FixedZone("IST", int(ReferenceOffset/time.Second))

// Civil is a wall-clock reading without an attached zone.
type Civil struct {
	Year   int
	Month  time.Month
	Day    int
	Hour   int
	Minute int
}

// Date renders the civil date as YYYY-MM-DD.
func (c Civil) Date() string {
	return fmt.Sprintf("%04d-%02d-%02d", c.Year, int(c.Month), c.Day)
}

// Clock renders the civil time as 24-hour HH:MM.
func (c Civil) Clock() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// ReferenceLocation returns the fixed-offset location of the reference zone.
func ReferenceLocation() *time.Location {
	return referenceLocation
}

// ParseDate validates a YYYY-MM-DD calendar date.
func ParseDate(classDate string) (time.Time, error) {
	classDate = strings.TrimSpace(classDate)
	if classDate == "" {
		return time.Time{}, fmt.Errorf("%w: date is empty", ErrInvalidTimeInput)
	}
	d, err := time.ParseInLocation(dateLayout, classDate, referenceLocation)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q", ErrInvalidTimeInput, classDate)
	}
	return d, nil
}

// ParseClock validates a 24-hour HH:MM time of day and returns hour and minute.
func ParseClock(classTime string) (int, int, error) {
	classTime = strings.TrimSpace(classTime)
	if classTime == "" {
		return 0, 0, fmt.Errorf("%w: time is empty", ErrInvalidTimeInput)
	}
	t, err := time.Parse(timeLayout, classTime)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: time %q", ErrInvalidTimeInput, classTime)
	}
	return t.Hour(), t.Minute(), nil
}

// ToReferenceInstant composes a stored date and time into an instant at the reference offset.
func ToReferenceInstant(classDate, classTime string) (time.Time, error) {
	d, err := ParseDate(classDate)
	if err != nil {
		return time.Time{}, err
	}
	hour, minute, err := ParseClock(classTime)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(d.Year(), d.Month(), d.Day(), hour, minute, 0, 0, referenceLocation), nil
}

// ProjectCivilTime returns the wall clock observed in targetZone at the given instant.
// DST rules of the target zone in effect on that date are applied.
func ProjectCivilTime(instant time.Time, targetZone string) (Civil, error) {
	loc, err := LoadZone(targetZone)
	if err != nil {
		return Civil{}, err
	}
	local := instant.In(loc)
	return Civil{
		Year:   local.Year(),
		Month:  local.Month(),
		Day:    local.Day(),
		Hour:   local.Hour(),
		Minute: local.Minute(),
	}, nil
}

// FormatDisplayTime renders the class time as a viewer in targetZone sees it, in 12-hour form.
// It never fails: malformed input is returned as-is.
func FormatDisplayTime(classDate, classTime, targetZone string) string {
	if isReferenceZone(targetZone) {
		return To12Hour(classTime)
	}
	civil, ok := project(classDate, classTime, targetZone)
	if !ok {
		return To12Hour(classTime)
	}
	return To12Hour(civil.Clock())
}

// DisplayDate returns the projected calendar date for a viewer in targetZone.
// The result may differ from classDate when the projection crosses midnight.
func DisplayDate(classDate, classTime, targetZone string) string {
	if isReferenceZone(targetZone) {
		return classDate
	}
	civil, ok := project(classDate, classTime, targetZone)
	if !ok {
		return classDate
	}
	return civil.Date()
}

// To12Hour reformats a 24-hour HH:MM clock into "H:MM AM/PM".
func To12Hour(classTime string) string {
	if strings.TrimSpace(classTime) == "" {
		return PlaceholderTime
	}
	parts := strings.SplitN(strings.TrimSpace(classTime), ":", 2)
	if len(parts) != 2 {
		return classTime
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil || hours < 0 || hours > 23 {
		return classTime
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil || minutes < 0 || minutes > 59 {
		return classTime
	}
	period := "AM"
	if hours >= 12 {
		period = "PM"
	}
	h12 := hours % 12
	if h12 == 0 {
		h12 = 12
	}
	return fmt.Sprintf("%d:%02d %s", h12, minutes, period)
}

// IsDue reports whether a session still awaiting attendance has already started.
// Malformed date/time never counts as due.
func IsDue(classDate, classTime string, awaitingAttendance bool, now time.Time) bool {
	if !awaitingAttendance {
		return false
	}
	instant, err := ToReferenceInstant(classDate, classTime)
	if err != nil {
		return false
	}
	return instant.Before(now)
}

func project(classDate, classTime, targetZone string) (Civil, bool) {
	instant, err := ToReferenceInstant(classDate, classTime)
	if err != nil {
		return Civil{}, false
	}
	civil, err := ProjectCivilTime(instant, targetZone)
	if err != nil {
		return Civil{}, false
	}
	return civil, true
}

func isReferenceZone(zone string) bool {
	zone = strings.TrimSpace(zone)
	return zone == "" || zone == ReferenceZone
}
