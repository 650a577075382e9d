// Package delivery computes the allowed window for a scheduled delivery date.
package delivery

import "time"

// Calendar defaults.
const (
	DefaultLeadDays   = 3
	DefaultWindowDays = 60
)

// Calendar bounds scheduled delivery dates. Dates are compared at day granularity
// in the calendar's location.
type Calendar struct {
	Now        func() time.Time
	Location   *time.Location
	LeadDays   int // business days
	WindowDays int // calendar days
	Weekend    map[time.Weekday]bool
}

// NewCalendar returns a calendar with the Israeli weekend (Friday, Saturday).
func NewCalendar(now func() time.Time, loc *time.Location) *Calendar {
	if now == nil {
		now = time.Now
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Calendar{
		Now:        now,
		Location:   loc,
		LeadDays:   DefaultLeadDays,
		WindowDays: DefaultWindowDays,
		Weekend:    map[time.Weekday]bool{time.Friday: true, time.Saturday: true},
	}
}

func (c *Calendar) today() time.Time {
	return day(c.Now(), c.Location)
}

func day(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// MinDate is the first deliverable day: LeadDays business days after today.
func (c *Calendar) MinDate() time.Time {
	d := c.today()
	for n := 0; n < c.LeadDays; {
		d = d.AddDate(0, 0, 1)
		if !c.Weekend[d.Weekday()] {
			n++
		}
	}
	return d
}

// MaxDate is the last day a delivery may be scheduled for.
func (c *Calendar) MaxDate() time.Time {
	return c.today().AddDate(0, 0, c.WindowDays)
}

// IsValid reports whether t falls on a deliverable day inside the window.
func (c *Calendar) IsValid(t time.Time) bool {
	if t.IsZero() {
		return false
	}
	d := day(t, c.Location)
	if c.Weekend[d.Weekday()] {
		return false
	}
	return !d.Before(c.MinDate()) && !d.After(c.MaxDate())
}
