package report

import (
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"
)

// Row is one (rank, size) measurement in long format.
type Row struct {
	Rank       int32   `parquet:"rank"`
	SizeMB     int32   `parquet:"size_mb"`
	LatencyNs  float64 `parquet:"latency_ns"`
	CPU        int32   `parquet:"cpu"`
	CPUNuma    int32   `parquet:"cpu_numa"`
	MemoryNuma int32   `parquet:"memory_numa"`
	Mode       string  `parquet:"mode,dict"`
	CPUList    string  `parquet:"cpu_list,dict"`
}

// LongRows flattens the gathered results, ordered by size then rank.
func LongRows(sizes []int, rows []WorkerResult) []Row {
	out := make([]Row, 0, len(sizes)*len(rows))
	for i, mb := range sizes {
		for _, wr := range rows {
			a := affinityAt(wr, i)
			out = append(out, Row{
				Rank:       int32(wr.Rank),
				SizeMB:     int32(mb),
				LatencyNs:  latencyAt(wr, i),
				CPU:        int32(a.CPU),
				CPUNuma:    int32(a.CPUDomain),
				MemoryNuma: int32(a.MemoryDomain),
				Mode:       wr.Mode,
				CPUList:    a.CPUList,
			})
		}
	}
	return out
}

// WriteParquet writes the results as a single parquet file in long format.
func WriteParquet(w io.Writer, sizes []int, rows []WorkerResult) error {
	pw := parquet.NewGenericWriter[Row](w)
	if _, err := pw.Write(LongRows(sizes, rows)); err != nil {
		pw.Close()
		return fmt.Errorf("write parquet rows: %w", err)
	}
	if err := pw.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return nil
}
