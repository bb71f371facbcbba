// Package sizelist parses buffer-size specifications given in mebibytes.
//
// A size list is written as one of:
//
//	512              single value
//	128,512,1024     comma-separated list, duplicates dropped, order kept
//	64-256           every ladder size inside the range, ascending
package sizelist

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// MaxSizes is the largest number of distinct sizes one run may sweep.
const MaxSizes = 18

// DefaultSizeMB is used when no sizes are given.
const DefaultSizeMB = 512

// Ladder is the ascending list of standard sizes ranges expand against.
var Ladder = [...]int{
	1, 2, 4, 8, 16, 32, 64, 128, 256, 512,
	1024, 2048, 4096, 8192, 16384, 32768, 65536, 131072,
}

var (
	// ErrEmpty is returned for a blank specification.
	ErrEmpty = errors.New("sizelist: empty size list")
	// ErrTooManySizes is returned when more than MaxSizes distinct sizes result.
	ErrTooManySizes = fmt.Errorf("sizelist: too many sizes (max %d)", MaxSizes)
	// ErrInvalidSize is returned for non-numeric or non-positive values.
	ErrInvalidSize = errors.New("sizelist: invalid size")
	// ErrInvalidRange is returned for inverted ranges or ranges with no ladder size.
	ErrInvalidRange = errors.New("sizelist: invalid range")
)

// List is an ordered sequence of distinct positive sizes in MB.
type List []int

// Default returns the single-size list used when nothing was requested.
func Default() List {
	return List{DefaultSizeMB}
}

// Bytes returns the byte length of a size in MB.
func Bytes(mb int) int {
	return mb << 20
}

// String renders the list in the comma-separated form Parse accepts.
func (l List) String() string {
	parts := make([]string, len(l))
	for i, mb := range l {
		parts[i] = strconv.Itoa(mb)
	}
	return strings.Join(parts, ",")
}

// Parse turns a size expression into a List.
func Parse(spec string) (List, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, ErrEmpty
	}

	var l List
	switch {
	case strings.Contains(spec, "-"):
		start, end, ok := strings.Cut(spec, "-")
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidRange, spec)
		}
		lo, err := parseValue(start)
		if err != nil {
			return nil, fmt.Errorf("range start: %w", err)
		}
		hi, err := parseValue(end)
		if err != nil {
			return nil, fmt.Errorf("range end: %w", err)
		}
		if err := l.addRange(lo, hi); err != nil {
			return nil, err
		}
	default:
		for _, tok := range strings.Split(spec, ",") {
			v, err := parseValue(tok)
			if err != nil {
				return nil, err
			}
			if err := l.add(v); err != nil {
				return nil, err
			}
		}
	}
	return l, nil
}

func (l *List) addRange(lo, hi int) error {
	if lo > hi {
		return fmt.Errorf("%w: start %d is greater than end %d", ErrInvalidRange, lo, hi)
	}

	first, last := -1, -1
	for i, mb := range Ladder {
		if mb >= lo && first == -1 {
			first = i
		}
		if mb <= hi {
			last = i
		}
	}
	if first == -1 || last == -1 || first > last {
		return fmt.Errorf("%w: no standard size in %d-%d (valid %d to %d MB)",
			ErrInvalidRange, lo, hi, Ladder[0], Ladder[len(Ladder)-1])
	}

	for _, mb := range Ladder[first : last+1] {
		if err := l.add(mb); err != nil {
			return err
		}
	}
	return nil
}

func (l *List) add(mb int) error {
	for _, have := range *l {
		if have == mb {
			return nil
		}
	}
	if len(*l) >= MaxSizes {
		return ErrTooManySizes
	}
	*l = append(*l, mb)
	return nil
}

func parseValue(s string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSize, s)
	}
	return v, nil
}
