package report

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/eunmann/numabench/pkg/humanfmt"
)

// Fixed column widths, excluding the '|' separators.
const (
	colRanks     = 7
	colCores     = 9
	colCPUNuma   = 6
	colAddress   = 10
	colMemNuma   = 7
	colLatency   = 8
	latencyTitle = "LATENCY (ns)"
)

// WriteTable renders the leader's results table: one row per worker, one
// latency column per size.
func WriteTable(w io.Writer, sizes []int, rows []WorkerResult) error {
	bw := bufio.NewWriter(w)

	fixed := []int{colRanks, colCores, colCPUNuma, colAddress, colMemNuma}
	latencyWidth := len(sizes)*(colLatency+1) - 1
	if latencyWidth < 0 {
		latencyWidth = 0
	}
	width := 1
	for _, c := range fixed {
		width += c + 1
	}
	width += latencyWidth + 1
	rule := " " + strings.Repeat("=", width-1) + "\n"

	sep := separator(fixed, len(sizes))

	bw.WriteString("\n")
	bw.WriteString(rule)
	fmt.Fprintf(bw, "|%s|%s|%s|%s|\n",
		center("MPI", colRanks),
		center("CPU", colCores+1+colCPUNuma),
		center("MEMORY", colAddress+1+colMemNuma),
		center(latencyTitle, latencyWidth))
	bw.WriteString(sep)
	bw.WriteString("| Ranks | Cores   | NUMA | Address  | NUMA  |")
	for _, mb := range sizes {
		fmt.Fprintf(bw, " %-7s|", humanfmt.SizeMB(mb))
	}
	bw.WriteString("\n")
	bw.WriteString(sep)

	for _, row := range rows {
		a := row.Affinity
		fmt.Fprintf(bw, "|  %03d  | %-7s |   %-2d | %-8s |   %-2s  |",
			row.Rank, a.CPUList, a.CPUDomain, a.AddrLabel(), a.MemoryDomainLabel())
		for i := range sizes {
			fmt.Fprintf(bw, " %-6.2f |", latencyAt(row, i))
		}
		bw.WriteString("\n")
	}

	bw.WriteString(rule)
	return bw.Flush()
}

func separator(fixed []int, sizes int) string {
	var b strings.Builder
	b.WriteByte('|')
	for _, c := range fixed {
		b.WriteString(strings.Repeat("-", c))
		b.WriteByte('|')
	}
	for range sizes {
		b.WriteString(strings.Repeat("-", colLatency))
		b.WriteByte('|')
	}
	b.WriteByte('\n')
	return b.String()
}

// center pads s to width, putting any odd space on the right. Text wider
// than width is returned as is.
func center(s string, width int) string {
	pad := width - len(s)
	if pad <= 0 {
		return s
	}
	left := pad / 2
	return strings.Repeat(" ", left) + s + strings.Repeat(" ", pad-left)
}
