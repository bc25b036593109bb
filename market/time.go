package market

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// MONTH - Calendar month bucket (UTC)
// =============================================================================

type Month struct {
	Year  int
	Month time.Month
}

func MonthOf(t time.Time) Month {
	u := t.UTC()
	return Month{Year: u.Year(), Month: u.Month()}
}

// ParseMonth parses "YYYY-MM".
func ParseMonth(s string) (Month, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Month{}, fmt.Errorf("invalid month %q: %w", s, err)
	}
	return MonthOf(t), nil
}

func (m Month) Start() time.Time { return time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC) }
func (m Month) Next() Month       { return MonthOf(m.Start().AddDate(0, 1, 0)) }
func (m Month) AddMonths(n int) Month {
	return MonthOf(m.Start().AddDate(0, n, 0))
}
func (m Month) Before(o Month) bool {
	return m.Year < o.Year || (m.Year == o.Year && m.Month < o.Month)
}
func (m Month) String() string { return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month)) }

// MonthsBetween returns every month in [from, to], chronologically.
// It returns nil when to is before from.
func MonthsBetween(from, to Month) []Month {
	var months []Month
	for m := from; !to.Before(m); m = m.Next() {
		months = append(months, m)
	}
	return months
}

func isBlank(s string) bool { return strings.TrimSpace(s) == "" }
