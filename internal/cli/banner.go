package cli

import (
	"strings"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v4/cpu"

	"github.com/eunmann/numabench/pkg/humanfmt"
	"github.com/eunmann/numabench/pkg/numa"
	"github.com/eunmann/numabench/pkg/sysmem"
)

// logBanner logs the group and host description at debug level.
func logBanner(log zerolog.Logger, cfg *Config, topo *numa.Topology, argv []string) {
	curCPU, curNode := topo.Current()
	ev := log.Debug().
		Int("world_size", cfg.WorldSize).
		Str("argv", strings.Join(argv, " ")).
		Int("page_size", sysmem.PageSize()).
		Int("numa_nodes", len(topo.Nodes())).
		Bool("numa_available", topo.Available()).
		Int("current_cpu", curCPU).
		Int("current_node", curNode).
		Str("total_memory", humanfmt.BytesUint64(sysmem.TotalBytes()))

	if n, err := cpu.Counts(true); err == nil {
		ev = ev.Int("cpus", n)
	}
	if infos, err := cpu.Info(); err == nil && len(infos) > 0 {
		ev = ev.Str("cpu_model", infos[0].ModelName)
	}
	ev.Msg("system information")

	if cfg.Bench.Policy.Kind == numa.PolicyNone {
		log.Debug().Msg("memory placement left to the kernel; use --membind or numactl --membind to bind")
	}
}
