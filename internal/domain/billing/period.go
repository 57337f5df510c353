package billing

import (
	"fmt"
	"sort"
	"time"
)

const monthKeyLayout = "2006-01"

// FirstOfMonth truncates t to midnight UTC on the first day of its month.
// The calendar date is taken from t as given, before any zone conversion.
func FirstOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// AddMonths moves a first-of-month date by n calendar months
func AddMonths(month time.Time, n int) time.Time {
	return FirstOfMonth(month).AddDate(0, n, 0)
}

// MonthRange returns every first-of-month from from to to, both inclusive.
// It is empty when to is before from.
func MonthRange(from, to time.Time) []time.Time {
	from, to = FirstOfMonth(from), FirstOfMonth(to)
	var months []time.Time
	for m := from; !m.After(to); m = m.AddDate(0, 1, 0) {
		months = append(months, m)
	}
	return months
}

// MonthKey formats a month as YYYY-MM
func MonthKey(t time.Time) string {
	return FirstOfMonth(t).Format(monthKeyLayout)
}

// ParseMonth accepts YYYY-MM or YYYY-MM-DD and returns the first of that month
func ParseMonth(s string) (time.Time, error) {
	for _, layout := range []string{monthKeyLayout, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return FirstOfMonth(t), nil
		}
	}
	return time.Time{}, invalidInput("invalid month %q, expected YYYY-MM or YYYY-MM-DD", s)
}

// PeriodSet is a lookup set of billed months
type PeriodSet map[string]struct{}

// NewPeriodSet builds a set from months
func NewPeriodSet(months ...time.Time) PeriodSet {
	s := make(PeriodSet, len(months))
	for _, m := range months {
		s.Add(m)
	}
	return s
}

// Add inserts the month containing t
func (s PeriodSet) Add(t time.Time) {
	s[MonthKey(t)] = struct{}{}
}

// Has reports whether the month containing t is present
func (s PeriodSet) Has(t time.Time) bool {
	_, ok := s[MonthKey(t)]
	return ok
}

// Sorted returns the months in ascending order
func (s PeriodSet) Sorted() []time.Time {
	months := make([]time.Time, 0, len(s))
	for key := range s {
		m, err := time.Parse(monthKeyLayout, key)
		if err != nil {
			panic(fmt.Sprintf("billing: corrupt period key %q", key))
		}
		months = append(months, m)
	}
	sort.Slice(months, func(i, j int) bool { return months[i].Before(months[j]) })
	return months
}
