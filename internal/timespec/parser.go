package timespec

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Day and Week are the units accepted in addition to Go duration units.
const (
	Day  = 24 * time.Hour
	Week = 7 * Day
)

// ParseAge parses an age such as "1d", "2w", "36h" or "1d12h".
// Supports Go duration units plus "d" (days) and "w" (weeks).
// Ages must be positive.
func ParseAge(spec string) (time.Duration, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return 0, fmt.Errorf("empty age specification")
	}

	var total time.Duration
	rest := spec
	for {
		i := strings.IndexAny(rest, "dw")
		if i < 0 {
			break
		}
		n, err := strconv.Atoi(rest[:i])
		if err != nil || n < 0 {
			return 0, invalidAge(spec)
		}
		unit := Day
		if rest[i] == 'w' {
			unit = Week
		}
		total += time.Duration(n) * unit
		rest = rest[i+1:]
	}

	if rest != "" {
		d, err := time.ParseDuration(rest)
		if err != nil {
			return 0, invalidAge(spec)
		}
		total += d
	}

	if total <= 0 {
		return 0, fmt.Errorf("age must be positive: %s", spec)
	}
	return total, nil
}

func invalidAge(spec string) error {
	return fmt.Errorf("invalid age: %s (use a duration like '1d', '2w' or '36h')", spec)
}
