package ingest

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidTimestamp is returned for timestamps whose date or time parts are
// not integers in range. Rows carrying one are dropped, never fatal.
var ErrInvalidTimestamp = errors.New("invalid timestamp")

// CanonicalLayout is how timestamps are stored in the cache; it sorts
// lexically in chronological order.
const CanonicalLayout = "2006-01-02 15:04:05"

// ParseTimestamp parses vendor timestamps in the shapes "YYYY/M/D H:MM[:SS]",
// "YYYY-MM-DDTHH:MM[:SS]" and "YYYY-MM-DD HH:MM[:SS]". The result is calendar
// naive: wall-clock fields are kept as-is in UTC, with no zone or DST applied.
// A missing time of day means midnight.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrInvalidTimestamp)
	}

	datePart, timePart := s, ""
	if i := strings.IndexAny(s, "T "); i >= 0 {
		datePart, timePart = s[:i], strings.TrimSpace(s[i+1:])
	}

	sep := "/"
	if strings.Contains(datePart, "-") {
		sep = "-"
	}
	dateFields := strings.Split(datePart, sep)
	if len(dateFields) != 3 {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
	}
	var ymd [3]int
	for i, f := range dateFields {
		n, err := strconv.Atoi(f)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
		}
		ymd[i] = n
	}

	var hms [3]int
	if timePart != "" {
		// Drop fractional seconds and a trailing zone marker if present.
		timePart = strings.TrimSuffix(timePart, "Z")
		if i := strings.IndexByte(timePart, '.'); i >= 0 {
			timePart = timePart[:i]
		}
		timeFields := strings.Split(timePart, ":")
		if len(timeFields) > 3 {
			return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
		}
		for i, f := range timeFields {
			n, err := strconv.Atoi(f)
			if err != nil {
				return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
			}
			hms[i] = n
		}
	}

	year, month, day := ymd[0], ymd[1], ymd[2]
	if month < 1 || month > 12 || day < 1 || day > daysIn(year, month) ||
		hms[0] < 0 || hms[0] > 23 || hms[1] < 0 || hms[1] > 59 || hms[2] < 0 || hms[2] > 59 {
		return time.Time{}, fmt.Errorf("%w: %q out of range", ErrInvalidTimestamp, s)
	}

	return time.Date(year, time.Month(month), day, hms[0], hms[1], hms[2], 0, time.UTC), nil
}

// FormatCanonical renders t in CanonicalLayout.
func FormatCanonical(t time.Time) string {
	return t.Format(CanonicalLayout)
}

func daysIn(year, month int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
