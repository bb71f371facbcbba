//go:build !linux

package numa

import "runtime"

func getcpu() (cpu, node int, err error) {
	return UnknownDomain, UnknownDomain, ErrUnsupported
}

// Without an affinity syscall every CPU the runtime sees is allowed.
func allowedCPUs() ([]int, error) {
	cpus := make([]int, runtime.NumCPU())
	for i := range cpus {
		cpus[i] = i
	}
	return cpus, nil
}

// Pin is unsupported off Linux; the request is ignored only when empty.
func Pin(cpus []int) error {
	if len(cpus) == 0 {
		return nil
	}
	return ErrUnsupported
}
