package numa

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/eunmann/numabench/pkg/logging"
)

// DefaultNodeRoot is where the kernel exposes NUMA nodes.
const DefaultNodeRoot = "/sys/devices/system/node"

// Topology resolves CPU and memory domains for the calling thread.
// Callers that want a stable answer must have locked their goroutine to an
// OS thread.
type Topology struct {
	// NodeRoot overrides DefaultNodeRoot (tests point it at a fake tree).
	NodeRoot string

	// getcpu and allowed default to the platform syscalls.
	getcpu  func() (cpu, node int, err error)
	allowed func() ([]int, error)
}

// NewTopology returns a Topology backed by the running kernel.
func NewTopology() *Topology {
	return &Topology{
		NodeRoot: DefaultNodeRoot,
		getcpu:   getcpu,
		allowed:  allowedCPUs,
	}
}

func (t *Topology) root() string {
	if t.NodeRoot == "" {
		return DefaultNodeRoot
	}
	return t.NodeRoot
}

// Current returns the CPU the thread is on and that CPU's domain. getcpu is
// tried first; on failure the first allowed CPU and the sysfs node map are
// used; if both fail the values are UnknownDomain.
func (t *Topology) Current() (cpu, node int) {
	if t.getcpu != nil {
		c, n, err := t.getcpu()
		if err == nil {
			return c, n
		}
		logging.L().Debug().Err(err).Msg("getcpu failed, falling back to affinity mask")
	}

	cpus := t.AllowedCPUs()
	if len(cpus) == 0 {
		return UnknownDomain, UnknownDomain
	}
	return cpus[0], t.NodeOfCPU(cpus[0])
}

// AllowedCPUs returns the calling thread's affinity mask as a sorted slice.
func (t *Topology) AllowedCPUs() []int {
	if t.allowed == nil {
		return nil
	}
	cpus, err := t.allowed()
	if err != nil {
		logging.L().Debug().Err(err).Msg("sched_getaffinity failed")
		return nil
	}
	return cpus
}

// NodeOfCPU finds the node whose cpulist contains cpu.
func (t *Topology) NodeOfCPU(cpu int) int {
	if cpu < 0 {
		return UnknownDomain
	}
	for _, node := range t.Nodes() {
		raw, err := os.ReadFile(filepath.Join(t.root(), "node"+strconv.Itoa(node), "cpulist"))
		if err != nil {
			continue
		}
		cpus, err := ParseCPUList(string(raw))
		if err != nil {
			continue
		}
		for _, c := range cpus {
			if c == cpu {
				return node
			}
		}
	}
	return UnknownDomain
}

// Nodes returns the online NUMA nodes, or nil when the machine exposes none.
func (t *Topology) Nodes() []int {
	raw, err := os.ReadFile(filepath.Join(t.root(), "online"))
	if err == nil {
		if nodes, err := ParseCPUList(string(raw)); err == nil && len(nodes) > 0 {
			return nodes
		}
	}

	// Older kernels: enumerate nodeN directories.
	entries, err := os.ReadDir(t.root())
	if err != nil {
		return nil
	}
	var nodes []int
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "node") {
			continue
		}
		if n, err := strconv.Atoi(strings.TrimPrefix(name, "node")); err == nil {
			nodes = append(nodes, n)
		}
	}
	return nodes
}

// Available reports whether NUMA placement can be observed at all.
func (t *Topology) Available() bool {
	return runtime.GOOS == "linux" && len(t.Nodes()) > 0
}

// Snapshot captures the calling worker's placement together with the
// domain its buffer resolves to. A nil buffer records UnknownDomain.
func (t *Topology) Snapshot(rank int, buf *Buffer) Affinity {
	cpu, node := t.Current()
	a := Affinity{
		Rank:         rank,
		CPU:          cpu,
		CPUDomain:    node,
		MemoryDomain: UnknownDomain,
		CPUList:      CoresLabel(t.AllowedCPUs()),
	}
	if buf != nil {
		a.BufferAddr = buf.Addr()
		a.MemoryDomain = DomainOf(buf)
	}
	return a
}
