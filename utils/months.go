// utils/months.go
package utils

import (
	"fmt"
	"time"

	apperrors "github.com/petshop/backend/errors"
)

// Window is a half-open time range [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) String() string {
	return fmt.Sprintf("[%s, %s)", w.Start.Format(time.DateOnly), w.End.Format(time.DateOnly))
}

// StartOfMonth truncates t to the first instant of its month in UTC.
func StartOfMonth(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// DaysIn returns the number of days of the given month.
func DaysIn(year int, month time.Month) int {
	// day 0 of the next month is the last day of this one
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// MonthList returns the first instant of every month starting with the month
// of start, as long as that instant is before end.
func MonthList(start, end time.Time) []time.Time {
	var months []time.Time
	for month := StartOfMonth(start); month.Before(end); month = month.AddDate(0, 1, 0) {
		months = append(months, month)
	}
	return months
}

// SplitMonth partitions a calendar month into numberOfSplits contiguous
// windows. Boundary i lies on day floor(i*daysInMonth/numberOfSplits); day 0
// is clamped to day 1 and the last boundary is the first of the next month.
func SplitMonth(year int, month time.Month, numberOfSplits int) ([]Window, error) {
	if numberOfSplits < 1 {
		return nil, apperrors.New(apperrors.ErrCodeInvalidInput, "number of splits must be >= 1, got %d", numberOfSplits)
	}
	if month < time.January || month > time.December {
		return nil, apperrors.New(apperrors.ErrCodeInvalidMonth, "month out of range: %d", month)
	}

	days := DaysIn(year, month)
	endOfMonth := time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC)

	boundary := func(i int) time.Time {
		if i == numberOfSplits {
			return endOfMonth
		}
		day := i * days / numberOfSplits
		if day < 1 {
			day = 1
		}
		return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	}

	windows := make([]Window, 0, numberOfSplits)
	for i := 0; i < numberOfSplits; i++ {
		windows = append(windows, Window{Start: boundary(i), End: boundary(i + 1)})
	}
	return windows, nil
}

// ParseMonth accepts "2006-01" or "2006-01-02" and returns the start of that month.
func ParseMonth(s string) (time.Time, error) {
	for _, layout := range []string{"2006-01", time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return StartOfMonth(t), nil
		}
	}
	return time.Time{}, apperrors.New(apperrors.ErrCodeInvalidMonth, "cannot parse month %q, use YYYY-MM or YYYY-MM-DD", s)
}
