// Package holiday answers which configured holidays fall on a given day.
//
// Two rule kinds are supported: fixed calendar dates (the year is ignored)
// and nth-weekday-of-month rules such as "fourth Thursday of November" or
// "last Monday of May".
package holiday

import (
	"fmt"
	"sort"
	"time"
)

// Holiday is a rule that yields at most one date per year.
type Holiday interface {
	HolidayName() string
	TierName() string
	// DateIn returns the holiday's date in the given year. ok is false when
	// the rule has no occurrence that year (Feb 29 in a common year, a fifth
	// weekday that does not exist).
	DateIn(year int, loc *time.Location) (date time.Time, ok bool)
}

// Fixed is a holiday on the same month and day every year.
type Fixed struct {
	Name  string
	Month time.Month
	Day   int
	Tier  string
}

func (f Fixed) HolidayName() string { return f.Name }
func (f Fixed) TierName() string    { return f.Tier }

func (f Fixed) DateIn(year int, loc *time.Location) (time.Time, bool) {
	if f.Day < 1 || f.Day > daysInMonth(year, f.Month) {
		return time.Time{}, false
	}
	return time.Date(year, f.Month, f.Day, 0, 0, 0, 0, loc), true
}

func (f Fixed) String() string {
	return fmt.Sprintf("%s: %s %02d", f.Name, f.Month, f.Day)
}

// Weekday is a holiday on the nth given weekday of a month. Week 1 (or 0) is
// the first occurrence, 2 the second; -1 is the last occurrence, -2 the
// second to last.
type Weekday struct {
	Name  string
	Month time.Month
	Week  int
	Day   time.Weekday
	Tier  string
}

func (w Weekday) HolidayName() string { return w.Name }
func (w Weekday) TierName() string    { return w.Tier }

func (w Weekday) DateIn(year int, loc *time.Location) (time.Time, bool) {
	last := daysInMonth(year, w.Month)
	var day int
	if w.Week >= 0 {
		first := time.Date(year, w.Month, 1, 0, 0, 0, 0, loc)
		offset := (int(w.Day) - int(first.Weekday()) + 7) % 7
		n := w.Week
		if n == 0 {
			n = 1
		}
		day = 1 + offset + (n-1)*7
	} else {
		end := time.Date(year, w.Month, last, 0, 0, 0, 0, loc)
		offset := (int(end.Weekday()) - int(w.Day) + 7) % 7
		day = last - offset - (-w.Week-1)*7
	}
	if day < 1 || day > last {
		return time.Time{}, false
	}
	return time.Date(year, w.Month, day, 0, 0, 0, 0, loc), true
}

func (w Weekday) String() string {
	var week string
	switch {
	case w.Week == 0 || w.Week == 1:
		week = "First"
	case w.Week == -1:
		week = "Last"
	case w.Week < -1:
		week = fmt.Sprintf("%s to last", ordinal(-w.Week))
	default:
		week = ordinal(w.Week)
	}
	return fmt.Sprintf("%s: %s %s of %s", w.Name, week, w.Day, w.Month)
}

// Match is a holiday active on the queried day together with its tier.
type Match struct {
	Holiday string
	Tier    string
	Date    time.Time
}

// Set is the collection of holidays configured for one controller.
type Set struct {
	Fixed    []Fixed
	Weekdays []Weekday
}

// All returns every rule in the set.
func (s Set) All() []Holiday {
	out := make([]Holiday, 0, len(s.Fixed)+len(s.Weekdays))
	for _, f := range s.Fixed {
		out = append(out, f)
	}
	for _, w := range s.Weekdays {
		out = append(out, w)
	}
	return out
}

// ActiveOn lists the holidays falling on day's calendar date, ordered by
// holiday name.
func (s Set) ActiveOn(day time.Time) []Match {
	y, m, dd := day.Date()
	var out []Match
	for _, h := range s.All() {
		date, ok := h.DateIn(y, day.Location())
		if !ok {
			continue
		}
		if date.Month() == m && date.Day() == dd {
			out = append(out, Match{Holiday: h.HolidayName(), Tier: h.TierName(), Date: date})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Holiday < out[j].Holiday })
	return out
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func ordinal(n int) string {
	switch {
	case n%100 >= 11 && n%100 <= 13:
		return fmt.Sprintf("%dth", n)
	case n%10 == 1:
		return fmt.Sprintf("%dst", n)
	case n%10 == 2:
		return fmt.Sprintf("%dnd", n)
	case n%10 == 3:
		return fmt.Sprintf("%drd", n)
	}
	return fmt.Sprintf("%dth", n)
}
