package scheduler

import (
	"testing"

	"taskmesh/pkg/node"
	"taskmesh/pkg/task"
)

func nodes(ids ...string) []*node.Node {
	out := make([]*node.Node, 0, len(ids))
	for _, id := range ids {
		out = append(out, node.New(id, "127.0.0.1", 9000, 4))
	}
	return out
}

func TestRoundRobinCyclicOrder(t *testing.T) {
	rr := &RoundRobin{}
	ns := nodes("a", "b", "c")
	tk := task.New("", "w", nil, 0)
	want := []string{"a", "b", "c", "a", "b"}
	for i, w := range want {
		got := rr.Pick(ns, tk)
		if got.ID() != w {
			t.Fatalf("pick %d = %s, want %s", i, got.ID(), w)
		}
	}
}

func TestRoundRobinCursorSurvivesSetChange(t *testing.T) {
	rr := &RoundRobin{}
	tk := task.New("", "w", nil, 0)
	ns := nodes("a", "b", "c")
	rr.Pick(ns, tk) // a
	rr.Pick(ns, tk) // b
	// Node set shrinks; cursor keeps counting and indexes modulo the new size.
	shrunk := ns[:2]
	if got := rr.Pick(shrunk, tk); got.ID() != "a" {
		t.Fatalf("pick after shrink = %s, want a (cursor 2 %% 2)", got.ID())
	}
}

func TestRoundRobinEmpty(t *testing.T) {
	rr := &RoundRobin{}
	if got := rr.Pick(nil, task.New("", "w", nil, 0)); got != nil {
		t.Fatalf("pick on empty = %v, want nil", got)
	}
}

func TestLeastLoadedPicksArgmin(t *testing.T) {
	ns := nodes("a", "b", "c")
	ns[0].Assign(task.New("", "w", nil, 0))
	ns[0].Assign(task.New("", "w", nil, 0))
	ns[2].Assign(task.New("", "w", nil, 0))
	got := LeastLoaded{}.Pick(ns, task.New("", "w", nil, 0))
	if got.ID() != "b" {
		t.Fatalf("pick = %s, want b", got.ID())
	}
	// Never a node whose load strictly exceeds another eligible node's.
	for _, n := range ns {
		if got.Load() > n.Load() {
			t.Fatalf("picked load %v exceeds %s load %v", got.Load(), n.ID(), n.Load())
		}
	}
}

func TestLeastLoadedTieBreaksByOrder(t *testing.T) {
	ns := nodes("a", "b")
	got := LeastLoaded{}.Pick(ns, task.New("", "w", nil, 0))
	if got.ID() != "a" {
		t.Fatalf("tie pick = %s, want a (registry order)", got.ID())
	}
}

func TestRandomPicksWithinSet(t *testing.T) {
	ns := nodes("a", "b", "c")
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		got := Random{}.Pick(ns, task.New("", "w", nil, 0))
		if got == nil {
			t.Fatalf("nil pick from non-empty set")
		}
		seen[got.ID()] = true
	}
	if len(seen) < 2 {
		t.Fatalf("random strategy stuck on one node: %v", seen)
	}
}

func TestCapabilityPrefersMatchRegardlessOfLoad(t *testing.T) {
	ns := nodes("a", "b", "c")
	ns[2].AddCapability("training")
	// The capable node carries more load than the others.
	ns[2].Assign(task.New("", "w", nil, 0))
	ns[2].Assign(task.New("", "w", nil, 0))
	got := Capability{}.Pick(ns, task.New("", "training", nil, 0))
	if got.ID() != "c" {
		t.Fatalf("pick = %s, want capable node c", got.ID())
	}
}

func TestCapabilityLeastLoadedAmongMatches(t *testing.T) {
	ns := nodes("a", "b", "c")
	ns[0].AddCapability("training")
	ns[1].AddCapability("training")
	ns[0].Assign(task.New("", "w", nil, 0))
	got := Capability{}.Pick(ns, task.New("", "training", nil, 0))
	if got.ID() != "b" {
		t.Fatalf("pick = %s, want least-loaded match b", got.ID())
	}
}

func TestCapabilityFallbackFirstEligible(t *testing.T) {
	ns := nodes("a", "b")
	// No node declares the type; fallback is the first eligible node,
	// not the least loaded one.
	ns[0].Assign(task.New("", "w", nil, 0))
	got := Capability{}.Pick(ns, task.New("", "training", nil, 0))
	if got.ID() != "a" {
		t.Fatalf("fallback pick = %s, want first eligible a", got.ID())
	}
}

func TestByName(t *testing.T) {
	for _, name := range []string{StrategyRoundRobin, StrategyLeastLoad, StrategyRandom, StrategyCapability, ""} {
		if _, err := ByName(name); err != nil {
			t.Fatalf("ByName(%q): %v", name, err)
		}
	}
	if _, err := ByName("bogus"); err == nil {
		t.Fatalf("expected error for unknown strategy")
	}
}
