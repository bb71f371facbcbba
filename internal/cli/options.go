package cli

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"github.com/eunmann/numabench/pkg/bench"
	"github.com/eunmann/numabench/pkg/latency"
	"github.com/eunmann/numabench/pkg/membudget"
	"github.com/eunmann/numabench/pkg/numa"
	"github.com/eunmann/numabench/pkg/sizelist"
	"github.com/eunmann/numabench/pkg/sweep"
)

// Environment variables that provide flag defaults.
const (
	EnvSize        = "NUMABENCH_SIZE"
	EnvWorkers     = "NUMABENCH_WORKERS"
	EnvCoordinator = "NUMABENCH_COORDINATOR"
	EnvMembind     = "NUMABENCH_MEMBIND"
	EnvMemBudget   = "NUMABENCH_MEM_BUDGET"
	EnvDebug       = "NUMABENCH_DEBUG"
)

const (
	logFormatJSON  = "json"
	logFormatHuman = "human"
)

// flags holds the raw command-line values before validation.
type flags struct {
	size        string
	serial      bool
	csv         string
	mapping     string
	parquet     string
	metrics     string
	workers     int
	pin         string
	coordinator string
	rank        int
	worldSize   int
	membind     string
	warmup      int
	hops        int
	seed        uint64
	memBudget   string
	numastat    bool
	debug       bool
	logFormat   string
}

func (f *flags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.size, "size", os.Getenv(EnvSize), "buffer sizes in MB: 512, 128,512 or 64-256")
	fs.BoolVar(&f.serial, "serial", false, "measure one worker at a time")
	fs.StringVar(&f.csv, "csv", "", "results CSV destination (path, .zst, s3://)")
	fs.StringVar(&f.mapping, "mapping", "", "rank to CPU and memory domain CSV destination")
	fs.StringVar(&f.parquet, "parquet", "", "long-format parquet destination")
	fs.StringVar(&f.metrics, "metrics-textfile", "", "Prometheus textfile output path")
	fs.IntVar(&f.workers, "workers", envInt(EnvWorkers, 1), "in-process worker count")
	fs.StringVar(&f.pin, "pin", "", "CPU list for in-process workers, e.g. 0-3,16")
	fs.StringVar(&f.coordinator, "coordinator", os.Getenv(EnvCoordinator), "host:port of the rendezvous served by rank 0")
	fs.IntVar(&f.rank, "rank", -1, "this process's rank (default: launcher environment)")
	fs.IntVar(&f.worldSize, "world-size", 0, "number of processes (default: launcher environment)")
	fs.StringVar(&f.membind, "membind", os.Getenv(EnvMembind), "placement: none, node:N, round-robin, rank-mod:K")
	fs.IntVar(&f.warmup, "warmup", latency.DefaultWarmupHops, "untimed hops before each measurement")
	fs.IntVar(&f.hops, "hops", latency.DefaultTimedHops, "timed hops per measurement")
	fs.Uint64Var(&f.seed, "seed", 0, "shuffle seed (0 = wall clock)")
	fs.StringVar(&f.memBudget, "mem-budget", "", "memory budget, e.g. 64GiB (default: 90% of RAM)")
	fs.BoolVar(&f.numastat, "numastat", false, "report page placement of the last rank's final buffer")
	fs.BoolVar(&f.debug, "debug", envBool(EnvDebug), "enable debug logging and the system banner")
	fs.StringVar(&f.logFormat, "log-format", logFormatJSON, "log format: json or human")
}

// Config is the validated configuration of one process.
type Config struct {
	Bench bench.Options

	// Workers is the number of in-process workers; 1 in multi-process mode.
	Workers int
	Pin     []int

	// MultiProcess is set when ranks come from a launcher.
	MultiProcess bool
	Coordinator  string
	Rank         int
	WorldSize    int
	Launcher     string

	Budget *membudget.Budget

	Debug bool
	Human bool
}

// resolve validates f against the environment and builds the Config.
// Nothing here touches the group.
func (f *flags) resolve(getenv func(string) string) (*Config, error) {
	cfg := &Config{Workers: 1, Debug: f.debug}

	switch f.logFormat {
	case logFormatJSON:
	case logFormatHuman:
		cfg.Human = true
	default:
		return nil, fmt.Errorf("--log-format: unknown format %q (want json or human)", f.logFormat)
	}

	sizes := sizelist.Default()
	if strings.TrimSpace(f.size) != "" {
		var err error
		if sizes, err = sizelist.Parse(f.size); err != nil {
			return nil, fmt.Errorf("--size: %w", err)
		}
	}

	policy, err := numa.ParsePolicy(f.membind)
	if err != nil {
		return nil, fmt.Errorf("--membind: %w", err)
	}

	if f.warmup < 0 {
		return nil, errors.New("--warmup must not be negative")
	}
	if f.hops <= 0 {
		return nil, errors.New("--hops must be positive")
	}

	mode := sweep.ModeParallel
	if f.serial {
		mode = sweep.ModeSerial
	}
	cfg.Bench = bench.Options{
		Sizes:       sizes,
		Mode:        mode,
		Policy:      policy,
		WarmupHops:  f.warmup,
		TimedHops:   f.hops,
		Seed:        f.seed,
		CSVPath:     f.csv,
		MappingPath: f.mapping,
		ParquetPath: f.parquet,
		MetricsPath: f.metrics,
		NumaStat:    f.numastat,
	}

	if err := f.resolveGroup(cfg, getenv); err != nil {
		return nil, err
	}

	cfg.Budget, err = determineMemoryBudget(f.memBudget, getenv)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func (f *flags) resolveGroup(cfg *Config, getenv func(string) string) error {
	rank, size := f.rank, f.worldSize
	if rank < 0 || size <= 0 {
		id, ok, err := launcherIdentity(getenv)
		if err != nil {
			return err
		}
		if ok {
			if rank < 0 {
				rank = id.Rank
			}
			if size <= 0 {
				size = id.Size
			}
			cfg.Launcher = id.Source
		}
	}

	if size > 1 || f.worldSize > 0 {
		if f.workers > 1 {
			return errors.New("--workers cannot be combined with a multi-process launch")
		}
		if f.pin != "" {
			return errors.New("--pin applies to in-process workers only")
		}
		if rank < 0 || rank >= size {
			return fmt.Errorf("--rank %d out of range for world size %d", rank, size)
		}
		if f.coordinator == "" {
			return fmt.Errorf("--coordinator (or %s) is required for a multi-process launch", EnvCoordinator)
		}
		cfg.MultiProcess = true
		cfg.Coordinator = f.coordinator
		cfg.Rank = rank
		cfg.WorldSize = size
		return nil
	}

	if f.workers <= 0 {
		return fmt.Errorf("--workers must be positive, got %d", f.workers)
	}
	cfg.Workers = f.workers
	cfg.WorldSize = f.workers
	if f.pin != "" {
		cpus, err := numa.ParseCPUList(f.pin)
		if err != nil {
			return fmt.Errorf("--pin: %w", err)
		}
		cfg.Pin = cpus
	}
	return nil
}

// determineMemoryBudget picks the budget from the flag, then the
// environment, then the detected RAM.
func determineMemoryBudget(cliValue string, getenv func(string) string) (*membudget.Budget, error) {
	if cliValue != "" {
		n, err := membudget.ParseHumanSize(cliValue)
		if err != nil {
			return nil, fmt.Errorf("invalid --mem-budget: %w", err)
		}
		return membudget.New(membudget.Config{TotalBytes: n, Source: membudget.BudgetSourceCLI}), nil
	}
	if v := getenv(EnvMemBudget); v != "" {
		n, err := membudget.ParseHumanSize(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvMemBudget, err)
		}
		return membudget.New(membudget.Config{TotalBytes: n, Source: membudget.BudgetSourceEnv}), nil
	}
	return membudget.NewFromSystemRAM(), nil
}

func envInt(name string, def int) int {
	if v, err := strconv.Atoi(os.Getenv(name)); err == nil {
		return v
	}
	return def
}

func envBool(name string) bool {
	v, _ := strconv.ParseBool(os.Getenv(name))
	return v
}
