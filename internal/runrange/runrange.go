package runrange

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrInvalidRange is returned when the first run of a range is after the last.
	ErrInvalidRange = errors.New("invalid run range")

	// ErrInvalidRunNumber is returned when a run number is not a positive integer.
	ErrInvalidRunNumber = errors.New("invalid run number")
)

// MaxRangeSize is the largest number of runs one range may expand to.
const MaxRangeSize = 100000

// Expand returns the inclusive, ascending list of run numbers between first and last.
// A nil last means the range holds only first.
//
// The result is a fresh slice on every call, so callers can re-derive the same
// range from the same inputs at any time.
func Expand(first int, last *int) ([]int, error) {
	end := first
	if last != nil {
		end = *last
	}

	if first > end {
		return nil, fmt.Errorf("%w: first run %d is greater than last run %d", ErrInvalidRange, first, end)
	}

	// Unsigned subtraction gives the exact span even when end-first overflows int.
	if span := uint(end) - uint(first); span >= MaxRangeSize {
		return nil, fmt.Errorf("%w: %d to %d covers more than %d runs", ErrInvalidRange, first, end, MaxRangeSize)
	}

	runs := make([]int, 0, end-first+1)
	for run := first; ; run++ {
		runs = append(runs, run)
		if run == end {
			break
		}
	}
	return runs, nil
}

// ParseRunNumber converts command-line text into a run number.
// Only positive integers are accepted.
func ParseRunNumber(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: cannot cast %q as an integer", ErrInvalidRunNumber, s)
	}
	if err := ValidateRunNumber(n); err != nil {
		return 0, err
	}
	return n, nil
}

// ValidateRunNumber rejects zero and negative run numbers.
func ValidateRunNumber(n int) error {
	if n <= 0 {
		return fmt.Errorf("%w: %d is not positive", ErrInvalidRunNumber, n)
	}
	return nil
}
