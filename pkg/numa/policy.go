package numa

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidPolicy is returned by ParsePolicy.
var ErrInvalidPolicy = errors.New("numa: invalid placement policy")

// PolicyKind selects how a rank's buffer domain is chosen.
type PolicyKind string

const (
	// PolicyNone leaves placement to the kernel or an outer numactl.
	PolicyNone PolicyKind = "none"
	// PolicyNode binds every rank to one node.
	PolicyNode PolicyKind = "node"
	// PolicyRoundRobin spreads ranks over the online nodes.
	PolicyRoundRobin PolicyKind = "round-robin"
	// PolicyRankMod binds rank r to the (r mod K)-th online node.
	PolicyRankMod PolicyKind = "rank-mod"
)

// Policy maps ranks to memory domains.
type Policy struct {
	Kind PolicyKind
	// Node is the target of PolicyNode; Mod is K for PolicyRankMod.
	Node int
	Mod  int
}

// ParsePolicy accepts "none", "node:N", "round-robin" and "rank-mod:K".
// The empty string is "none".
func ParsePolicy(s string) (Policy, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	kind, arg, hasArg := strings.Cut(s, ":")

	switch PolicyKind(kind) {
	case "", PolicyNone:
		if hasArg {
			return Policy{}, fmt.Errorf("%w: %q takes no argument", ErrInvalidPolicy, s)
		}
		return Policy{Kind: PolicyNone}, nil
	case PolicyRoundRobin:
		if hasArg {
			return Policy{}, fmt.Errorf("%w: %q takes no argument", ErrInvalidPolicy, s)
		}
		return Policy{Kind: PolicyRoundRobin}, nil
	case PolicyNode:
		n, err := strconv.Atoi(arg)
		if !hasArg || err != nil || n < 0 {
			return Policy{}, fmt.Errorf("%w: %q needs a node number", ErrInvalidPolicy, s)
		}
		return Policy{Kind: PolicyNode, Node: n}, nil
	case PolicyRankMod:
		k, err := strconv.Atoi(arg)
		if !hasArg || err != nil || k <= 0 {
			return Policy{}, fmt.Errorf("%w: %q needs a positive modulus", ErrInvalidPolicy, s)
		}
		return Policy{Kind: PolicyRankMod, Mod: k}, nil
	default:
		return Policy{}, fmt.Errorf("%w: %q", ErrInvalidPolicy, s)
	}
}

// String renders the policy in ParsePolicy syntax.
func (p Policy) String() string {
	switch p.Kind {
	case PolicyNode:
		return fmt.Sprintf("node:%d", p.Node)
	case PolicyRankMod:
		return fmt.Sprintf("rank-mod:%d", p.Mod)
	case PolicyRoundRobin:
		return string(PolicyRoundRobin)
	default:
		return string(PolicyNone)
	}
}

// Domain returns the node for rank, or NoDomain. nodes are the online nodes
// in ascending order; round-robin and rank-mod pick from them and degrade to
// NoDomain when there are none. A modulus larger than the node count wraps.
func (p Policy) Domain(rank int, nodes []int) int {
	switch p.Kind {
	case PolicyNode:
		return p.Node
	case PolicyRankMod:
		if len(nodes) == 0 || p.Mod <= 0 {
			return NoDomain
		}
		return nodes[(rank%p.Mod)%len(nodes)]
	case PolicyRoundRobin:
		if len(nodes) == 0 {
			return NoDomain
		}
		return nodes[rank%len(nodes)]
	default:
		return NoDomain
	}
}
