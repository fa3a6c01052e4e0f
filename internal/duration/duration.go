// Package duration parses the human duration tokens users type in commands
// ("1h30m", "45s", "2 hours 5 min") and formats durations back.
package duration

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// ErrInvalid is returned for input that is not a duration.
var ErrInvalid = errors.New("invalid duration")

var units = map[string]time.Duration{
	"d": 24 * time.Hour, "day": 24 * time.Hour, "days": 24 * time.Hour,
	"h": time.Hour, "hr": time.Hour, "hour": time.Hour, "hours": time.Hour,
	"m": time.Minute, "min": time.Minute, "mins": time.Minute, "minute": time.Minute, "minutes": time.Minute,
	"s": time.Second, "sec": time.Second, "secs": time.Second, "second": time.Second, "seconds": time.Second,
}

// Parse converts s into a duration. A bare number is seconds. The result is
// always positive.
func Parse(s string) (time.Duration, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalid)
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n <= 0 {
			return 0, fmt.Errorf("%w: %q is not positive", ErrInvalid, s)
		}
		if n > math.MaxInt64/int64(time.Second) {
			return 0, fmt.Errorf("%w: %q is too long", ErrInvalid, s)
		}
		return time.Duration(n) * time.Second, nil
	}

	var total time.Duration
	rest := s
	for {
		rest = strings.TrimLeftFunc(rest, unicode.IsSpace)
		if rest == "" {
			break
		}
		i := strings.IndexFunc(rest, func(r rune) bool { return !unicode.IsDigit(r) })
		if i <= 0 {
			return 0, fmt.Errorf("%w: %q", ErrInvalid, s)
		}
		n, err := strconv.ParseInt(rest[:i], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalid, s)
		}
		rest = strings.TrimLeftFunc(rest[i:], unicode.IsSpace)
		j := strings.IndexFunc(rest, func(r rune) bool { return !unicode.IsLetter(r) })
		if j < 0 {
			j = len(rest)
		}
		unit, ok := units[rest[:j]]
		if !ok {
			return 0, fmt.Errorf("%w: unknown unit in %q", ErrInvalid, s)
		}
		if n > int64(math.MaxInt64-total)/int64(unit) {
			return 0, fmt.Errorf("%w: %q is too long", ErrInvalid, s)
		}
		total += time.Duration(n) * unit
		rest = rest[j:]
	}
	if total <= 0 {
		return 0, fmt.Errorf("%w: %q is not positive", ErrInvalid, s)
	}
	return total, nil
}

// Format renders d the way users type it, e.g. "1h 30m 0s".
func Format(d time.Duration) string {
	secs := int64(d.Round(time.Second) / time.Second)
	days := secs / 86400
	hours := secs % 86400 / 3600
	minutes := secs % 3600 / 60
	secs %= 60
	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, secs)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, secs)
	default:
		return fmt.Sprintf("%ds", secs)
	}
}

// ParseConfig accepts both Go syntax ("1m30s", "500ms") and Parse syntax.
// Config files use it so operators can write either.
func ParseConfig(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(strings.TrimSpace(s)); err == nil {
		if d <= 0 {
			return 0, fmt.Errorf("%w: %q is not positive", ErrInvalid, s)
		}
		return d, nil
	}
	return Parse(s)
}
