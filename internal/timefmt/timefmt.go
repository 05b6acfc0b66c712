// Package timefmt renders playback positions for display.
package timefmt

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var ErrInvalidClock = errors.New("invalid clock string")

// Clock formats seconds as M:SS, or H:MM:SS once the value reaches an hour.
// Negative and non-finite values render as 0:00.
func Clock(seconds float64) string {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		seconds = 0
	}
	total := int64(math.Floor(seconds))
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// ParseClock is the inverse of Clock for M:SS and H:MM:SS strings.
func ParseClock(s string) (float64, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}

	var total int64
	for i, p := range parts {
		if p == "" {
			return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
		}
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
		}
		// everything after the leading field is a base-60 digit pair
		if i > 0 && (n > 59 || len(p) != 2) {
			return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
		}
		total = total*60 + n
	}
	return float64(total), nil
}

// Percent returns part/whole as a percentage clamped to [0,100].
func Percent(part, whole float64) float64 {
	if whole <= 0 || math.IsNaN(whole) || math.IsNaN(part) || math.IsInf(whole, 0) {
		return 0
	}
	p := part / whole * 100
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
