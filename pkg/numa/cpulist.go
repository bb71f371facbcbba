package numa

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ParseCPUList parses the kernel's list format ("0-3,8,10-11") into a
// sorted, de-duplicated slice.
func ParseCPUList(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	seen := make(map[int]struct{})
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi, isRange := strings.Cut(part, "-")
		first, err := strconv.Atoi(lo)
		if err != nil || first < 0 {
			return nil, fmt.Errorf("invalid cpu list entry %q", part)
		}
		last := first
		if isRange {
			last, err = strconv.Atoi(hi)
			if err != nil || last < first {
				return nil, fmt.Errorf("invalid cpu list range %q", part)
			}
		}
		for c := first; c <= last; c++ {
			seen[c] = struct{}{}
		}
	}

	out := make([]int, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Ints(out)
	return out, nil
}

// FormatCPUList renders a sorted CPU slice in list format, collapsing runs.
func FormatCPUList(cpus []int) string {
	if len(cpus) == 0 {
		return ""
	}
	var b strings.Builder
	start, prev := cpus[0], cpus[0]
	flush := func() {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		if start == prev {
			b.WriteString(strconv.Itoa(start))
		} else {
			fmt.Fprintf(&b, "%d-%d", start, prev)
		}
	}
	for _, c := range cpus[1:] {
		if c == prev+1 {
			prev = c
			continue
		}
		flush()
		start, prev = c, c
	}
	flush()
	return b.String()
}

// CoresLabel renders an allowed CPU set for the Cores column: a
// hyperthread pair as "first,last", any other non-empty set as its first
// CPU, and an empty set as "N/A".
func CoresLabel(cpus []int) string {
	switch {
	case len(cpus) == 2:
		return fmt.Sprintf("%d,%d", cpus[0], cpus[1])
	case len(cpus) > 0:
		return strconv.Itoa(cpus[0])
	default:
		return "N/A"
	}
}
