package report

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eunmann/numabench/pkg/group"
	"github.com/eunmann/numabench/pkg/numa"
	"github.com/eunmann/numabench/pkg/sweep"
)

func sampleRows() []WorkerResult {
	return []WorkerResult{
		{
			Rank:      0,
			Mode:      "parallel",
			Latencies: []float64{88.1, 131.427},
			Affinity:  numa.Affinity{Rank: 0, CPU: 2, CPUDomain: 0, MemoryDomain: 1, CPUList: "2,3", BufferAddr: 0x7f0000},
			Affinities: []numa.Affinity{
				{Rank: 0, CPU: 2, CPUDomain: 0, MemoryDomain: 0, CPUList: "2,3"},
				{Rank: 0, CPU: 2, CPUDomain: 0, MemoryDomain: 1, CPUList: "2,3", BufferAddr: 0x7f0000},
			},
		},
		{
			Rank:      1,
			Mode:      "parallel",
			Latencies: []float64{90, -1},
			Affinity:  numa.Affinity{Rank: 1, CPU: 17, CPUDomain: 1, MemoryDomain: numa.UnknownDomain, CPUList: "17"},
		},
	}
}

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, []int{512, 1024}, sampleRows()))

	rule := " " + strings.Repeat("=", 62)
	want := []string{
		"",
		rule,
		"|  MPI  |      CPU       |      MEMORY      |  LATENCY (ns)   |",
		"|-------|---------|------|----------|-------|--------|--------|",
		"| Ranks | Cores   | NUMA | Address  | NUMA  | 512MB  | 1024MB |",
		"|-------|---------|------|----------|-------|--------|--------|",
		"|  000  | 2,3     |   0  | 0x7f0000 |   1   | 88.10  | 131.43 |",
		"|  001  | 17      |   1  | (nil)    |   N/A  | 90.00  | -1.00  |",
		rule,
		"",
	}
	assert.Equal(t, want, strings.Split(buf.String(), "\n"))
}

func TestWriteTableLinesAligned(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, []int{1, 2, 4, 8, 16}, sampleRows()))

	// Rule, group header, separators, column header and the first row.
	lines := strings.Split(buf.String(), "\n")[1:7]
	for _, l := range lines {
		assert.Len(t, l, len(lines[0]), "line %q", l)
	}
}

func TestWriteResultsCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteResultsCSV(&buf, []int{512, 1024}, sampleRows()))
	assert.Equal(t, "size (MB),0,1\n512,88.10,90.00\n1024,131.43,-1.00\n", buf.String())
}

func TestWriteMappingCSV(t *testing.T) {
	var buf bytes.Buffer
	affs := []numa.Affinity{
		{Rank: 0, CPU: 0, CPUDomain: 0, MemoryDomain: 0},
		{Rank: 1, CPU: 64, CPUDomain: 1, MemoryDomain: numa.UnknownDomain},
	}
	require.NoError(t, WriteMappingCSV(&buf, affs))
	assert.Equal(t, "rank,cpu_id,cpu_numa,memory_numa\n0,0,0,0\n1,64,1,-1\n", buf.String())
}

func TestLongRowsAndParquet(t *testing.T) {
	sizes := []int{512, 1024}
	rows := LongRows(sizes, sampleRows())
	require.Len(t, rows, 4)
	assert.Equal(t, Row{Rank: 0, SizeMB: 512, LatencyNs: 88.1, CPU: 2, MemoryNuma: 0, Mode: "parallel", CPUList: "2,3"}, rows[0])
	// Rank 1 has no per-size snapshots and falls back to its last placement.
	assert.Equal(t, int32(-1), rows[3].MemoryNuma)
	assert.Equal(t, -1.0, rows[3].LatencyNs)

	var buf bytes.Buffer
	require.NoError(t, WriteParquet(&buf, sizes, sampleRows()))
	got, err := parquet.Read[Row](bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	assert.Equal(t, rows, got)
}

func TestFromSweep(t *testing.T) {
	res := &sweep.Result{
		Mode:      sweep.ModeSerial,
		Latencies: []float64{1, 2},
		Affinities: []numa.Affinity{
			{Rank: 3, CPU: 1},
			{Rank: 3, CPU: 5},
		},
	}
	wr := FromSweep(3, res)
	assert.Equal(t, 3, wr.Rank)
	assert.Equal(t, "serial", wr.Mode)
	assert.Equal(t, 5, wr.Affinity.CPU)
	assert.Equal(t, []float64{1, 2}, wr.Latencies)
}

func runGroup(t *testing.T, n int, fn func(ch group.Channel) error) {
	t.Helper()
	locals, err := group.NewLocal(n)
	require.NoError(t, err)
	chans := group.Channels(locals)

	errs := make([]error, n)
	var wg sync.WaitGroup
	for r := range chans {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[r] = fn(chans[r])
		}()
	}
	wg.Wait()
	for r, err := range errs {
		require.NoError(t, err, "rank %d", r)
	}
}

func TestCollect(t *testing.T) {
	var mu sync.Mutex
	got := make(map[int][]WorkerResult)

	runGroup(t, 3, func(ch group.Channel) error {
		own := WorkerResult{Rank: ch.Rank(), Latencies: []float64{float64(100 + ch.Rank())}}
		rows, err := Collect(context.Background(), ch, own)
		mu.Lock()
		got[ch.Rank()] = rows
		mu.Unlock()
		return err
	})

	require.Len(t, got[0], 3)
	for r, row := range got[0] {
		assert.Equal(t, r, row.Rank)
		assert.Equal(t, []float64{float64(100 + r)}, row.Latencies)
	}
	assert.Nil(t, got[1])
	assert.Nil(t, got[2])
}

func TestExportMapping(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "mapping.csv")

	runGroup(t, 3, func(ch group.Channel) error {
		aff := numa.Affinity{Rank: ch.Rank(), CPU: ch.Rank() * 8, CPUDomain: ch.Rank() % 2, MemoryDomain: ch.Rank() % 2}
		return ExportMapping(context.Background(), ch, aff, dest, nil)
	})

	raw, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "rank,cpu_id,cpu_numa,memory_numa\n0,0,0,0\n1,8,1,1\n2,16,0,0\n", string(raw))
}
