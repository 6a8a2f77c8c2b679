package cronexpr

import (
	"strings"
	"time"
)

// searchYears bounds how far past the starting year Next looks before
// declaring a schedule unsatisfiable. Eight years covers the longest gap
// between two February 29ths (2096 to 2104).
const searchYears = 8

// Schedule is a parsed cron expression. It is immutable once built.
type Schedule struct {
	Second     Field
	Minute     Field
	Hour       Field
	DayOfMonth Field
	Month      Field
	DayOfWeek  Field

	domWildcard bool
	dowWildcard bool
	expression  string
}

// Expression returns the source expression with normalised spacing.
func (s *Schedule) Expression() string {
	return s.expression
}

// String renders the resolved sets so that parsing the result matches
// exactly the same instants as s.
func (s *Schedule) String() string {
	return strings.Join([]string{
		render(s.Second, secondBounds, false),
		render(s.Minute, minuteBounds, false),
		render(s.Hour, hourBounds, false),
		render(s.DayOfMonth, domBounds, s.domWildcard),
		render(s.Month, monthBounds, false),
		render(s.DayOfWeek, dowBounds, s.dowWildcard),
	}, " ")
}

func render(f Field, b bounds, wildcard bool) string {
	// A full day-of-month or day-of-week list is not the same as "*" because
	// of the OR rule between the two, so only the recorded flag decides there.
	if wildcard || (b.name != domBounds.name && b.name != dowBounds.name && f == b.full()) {
		return "*"
	}
	return f.String()
}

// Matches reports whether t, truncated to the second, satisfies every field.
func (s *Schedule) Matches(t time.Time) bool {
	return s.Second.Has(t.Second()) &&
		s.Minute.Has(t.Minute()) &&
		s.Hour.Has(t.Hour()) &&
		s.Month.Has(int(t.Month())) &&
		s.dayMatches(t.Year(), int(t.Month()), t.Day())
}

// dayMatches applies the day-of-month / day-of-week rule: when both are
// restricted either one is enough, otherwise both must hold.
func (s *Schedule) dayMatches(year, month, day int) bool {
	domOK := s.DayOfMonth.Has(day)
	dowOK := s.DayOfWeek.Has(int(time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC).Weekday()))
	if s.domWildcard || s.dowWildcard {
		return domOK && dowOK
	}
	return domOK || dowOK
}

// Next returns the earliest instant strictly after after, in after's
// location, that matches the schedule. Fractional seconds of after are
// dropped first. The second result is false when no match exists within
// the search horizon.
//
// Local times skipped by a daylight saving transition never fire. When the
// clocks go back, a schedule whose hour field is "*" keeps firing through
// the repeated wall clock span; any other schedule fires there only once.
func (s *Schedule) Next(after time.Time) (time.Time, bool) {
	loc := after.Location()
	after = after.Add(-time.Duration(after.Nanosecond()))
	lastYear := after.Year() + searchYears
	everyHour := s.Hour == hourBounds.full()

	// Each pass searches one zone period, where the offset is fixed and
	// wall clock readings map one to one onto instants.
	next := after.Add(time.Second)
	for {
		start, end := next.ZoneBounds()
		name, offset := next.Zone()
		zone := time.FixedZone(name, offset)

		match, ok := s.search(civilOf(next), lastYear)
		if !ok {
			return time.Time{}, false
		}
		t := match.in(zone)
		if !end.IsZero() && !t.Before(end) {
			next = end
			continue
		}
		if repeated := repeatedUntil(start); !everyHour && t.Before(repeated) {
			next = repeated
			continue
		}
		return t.In(loc), true
	}
}

// repeatedUntil returns the end of the span at the beginning of the zone
// period starting at start whose wall clock readings already occurred in
// the previous period. It is start itself unless the clocks went back.
func repeatedUntil(start time.Time) time.Time {
	if start.IsZero() {
		return start
	}
	_, before := start.Add(-time.Second).Zone()
	_, after := start.Zone()
	if before <= after {
		return start
	}
	return start.Add(time.Duration(before-after) * time.Second)
}

// Upcoming returns up to n successive occurrences after after.
func (s *Schedule) Upcoming(after time.Time, n int) []time.Time {
	var times []time.Time
	for len(times) < n {
		next, ok := s.Next(after)
		if !ok {
			break
		}
		times = append(times, next)
		after = next
	}
	return times
}

// search finds the first wall clock time >= c that matches. Each level jumps
// straight to its next accepted value; when a level has none left the next
// larger unit is advanced and every smaller one reset to its minimum.
func (s *Schedule) search(c civil, lastYear int) (civil, bool) {
	for c.year <= lastYear {
		month, ok := s.Month.next(c.month)
		if !ok {
			c = civil{year: c.year + 1, month: 1, day: 1}
			continue
		}
		if month != c.month {
			c = civil{year: c.year, month: month, day: 1}
		}

		day, ok := s.nextDay(c.year, c.month, c.day)
		if !ok {
			c.nextMonth()
			continue
		}
		if day != c.day {
			c.day = day
			c.hour, c.minute, c.second = 0, 0, 0
		}

		hour, ok := s.Hour.next(c.hour)
		if !ok {
			c.nextDay()
			continue
		}
		if hour != c.hour {
			c.hour = hour
			c.minute, c.second = 0, 0
		}

		minute, ok := s.Minute.next(c.minute)
		if !ok {
			c.nextHour()
			continue
		}
		if minute != c.minute {
			c.minute = minute
			c.second = 0
		}

		second, ok := s.Second.next(c.second)
		if !ok {
			c.nextMinute()
			continue
		}
		c.second = second
		return c, true
	}
	return civil{}, false
}

func (s *Schedule) nextDay(year, month, from int) (int, bool) {
	last := daysIn(year, month)
	for day := from; day <= last; day++ {
		if s.dayMatches(year, month, day) {
			return day, true
		}
	}
	return 0, false
}

// civil is a wall clock reading independent of any time zone.
type civil struct {
	year, month, day, hour, minute, second int
}

func civilOf(t time.Time) civil {
	return civil{
		year:   t.Year(),
		month:  int(t.Month()),
		day:    t.Day(),
		hour:   t.Hour(),
		minute: t.Minute(),
		second: t.Second(),
	}
}

func (c civil) in(loc *time.Location) time.Time {
	return time.Date(c.year, time.Month(c.month), c.day, c.hour, c.minute, c.second, 0, loc)
}

func (c *civil) nextMonth() {
	c.month++
	c.day = 1
	c.hour, c.minute, c.second = 0, 0, 0
	if c.month > 12 {
		c.month = 1
		c.year++
	}
}

func (c *civil) nextDay() {
	c.day++
	c.hour, c.minute, c.second = 0, 0, 0
	if c.day > daysIn(c.year, c.month) {
		c.nextMonth()
	}
}

func (c *civil) nextHour() {
	c.hour++
	c.minute, c.second = 0, 0
	if c.hour > 23 {
		c.nextDay()
	}
}

func (c *civil) nextMinute() {
	c.minute++
	c.second = 0
	if c.minute > 59 {
		c.nextHour()
	}
}

func (c *civil) nextSecond() {
	c.second++
	if c.second > 59 {
		c.nextMinute()
	}
}

func daysIn(year, month int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
