package order

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

var durationUnits = map[string]time.Duration{
	"second":  time.Second,
	"seconds": time.Second,
	"minute":  time.Minute,
	"minutes": time.Minute,
	"hour":    time.Hour,
	"hours":   time.Hour,
	"day":     24 * time.Hour,
	"days":    24 * time.Hour,
	"week":    7 * 24 * time.Hour,
	"weeks":   7 * 24 * time.Hour,
}

// MaxDuration bounds relative expirations.
const MaxDuration = 10 * 365 * 24 * time.Hour

// ParseDuration parses a relative expiration of the form "<N> <unit>".
func ParseDuration(s string) (time.Duration, error) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return 0, fmt.Errorf("duration %q: want \"<N> <unit>\"", s)
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("duration %q: count must be a positive integer", s)
	}
	unit, ok := durationUnits[strings.ToLower(fields[1])]
	if !ok {
		return 0, fmt.Errorf("duration %q: unknown unit %q", s, fields[1])
	}
	if int64(n) > int64(MaxDuration/unit) {
		return 0, fmt.Errorf("duration %q: exceeds %d days", s, int64(MaxDuration/(24*time.Hour)))
	}
	return time.Duration(n) * unit, nil
}

// FormatDuration renders n units in the relative form ParseDuration reads.
func FormatDuration(n int, unit string) string {
	return fmt.Sprintf("%d %s", n, unit)
}
