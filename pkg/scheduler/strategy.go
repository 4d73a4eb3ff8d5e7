package scheduler

import (
	"fmt"
	"math/rand"

	"taskmesh/pkg/node"
	"taskmesh/pkg/task"
)

// Strategy picks a placement for a task among the nodes that can currently
// accept one. Pick returns nil when no eligible node exists. The eligible
// slice preserves registry insertion order.
type Strategy interface {
	Name() string
	Pick(eligible []*node.Node, t *task.Task) *node.Node
}

// Strategy names accepted in configuration.
const (
	StrategyRoundRobin = "round-robin"
	StrategyLeastLoad  = "least-loaded"
	StrategyRandom     = "random"
	StrategyCapability = "capability"
)

// ByName resolves a strategy from its configured name.
func ByName(name string) (Strategy, error) {
	switch name {
	case StrategyRoundRobin, "":
		return &RoundRobin{}, nil
	case StrategyLeastLoad:
		return LeastLoaded{}, nil
	case StrategyRandom:
		return Random{}, nil
	case StrategyCapability:
		return Capability{}, nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", name)
	}
}

// RoundRobin rotates over eligible nodes. The cursor grows monotonically and
// is indexed modulo the eligible count at call time; it is never reset or
// remapped when the node set changes, so registration churn can skew the
// rotation.
type RoundRobin struct {
	cursor uint64
}

func (r *RoundRobin) Name() string { return StrategyRoundRobin }

func (r *RoundRobin) Pick(eligible []*node.Node, _ *task.Task) *node.Node {
	if len(eligible) == 0 {
		return nil
	}
	n := eligible[r.cursor%uint64(len(eligible))]
	r.cursor++
	return n
}

// LeastLoaded picks the node with the smallest load; ties resolve to the
// earlier node in registry order.
type LeastLoaded struct{}

func (LeastLoaded) Name() string { return StrategyLeastLoad }

func (LeastLoaded) Pick(eligible []*node.Node, _ *task.Task) *node.Node {
	return argminLoad(eligible)
}

// Random picks uniformly among eligible nodes.
type Random struct{}

func (Random) Name() string { return StrategyRandom }

func (Random) Pick(eligible []*node.Node, _ *task.Task) *node.Node {
	if len(eligible) == 0 {
		return nil
	}
	return eligible[rand.Intn(len(eligible))]
}

// Capability filters to nodes declaring the task type. When at least one
// matches, the least-loaded match wins; with no match the first eligible
// node is the fallback.
type Capability struct{}

func (Capability) Name() string { return StrategyCapability }

func (Capability) Pick(eligible []*node.Node, t *task.Task) *node.Node {
	if len(eligible) == 0 {
		return nil
	}
	var matches []*node.Node
	for _, n := range eligible {
		if n.HasCapability(t.Type) {
			matches = append(matches, n)
		}
	}
	if len(matches) == 0 {
		return eligible[0]
	}
	return argminLoad(matches)
}

func argminLoad(nodes []*node.Node) *node.Node {
	if len(nodes) == 0 {
		return nil
	}
	best := nodes[0]
	bestLoad := best.Load()
	for _, n := range nodes[1:] {
		if l := n.Load(); l < bestLoad {
			best, bestLoad = n, l
		}
	}
	return best
}
