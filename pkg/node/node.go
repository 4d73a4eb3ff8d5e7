// Package node implements a compute participant with bounded execution
// capacity and type-keyed task handlers.
package node

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"taskmesh/pkg/task"
)

// Handler processes one task payload and returns the result bytes.
type Handler func(ctx context.Context, t *task.Task) ([]byte, error)

// Status is the node availability state.
type Status int

const (
	StatusIdle Status = iota
	StatusBusy
	StatusOffline
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusBusy:
		return "busy"
	case StatusOffline:
		return "offline"
	default:
		return "unknown"
	}
}

// Node owns a disjoint set of in-flight tasks up to a concurrency ceiling.
// All methods are safe for concurrent use.
type Node struct {
	mu       sync.RWMutex
	id       string
	address  string
	port     int
	status   Status
	caps     map[string]struct{}
	ceiling  int
	active   map[string]*task.Task
	handlers map[string]Handler
	fallback Handler
}

// Info is an immutable snapshot of node state. It shares no memory with the
// node; readers cannot corrupt internal state through it.
type Info struct {
	ID           string
	Address      string
	Port         int
	Status       Status
	Capabilities []string
	Ceiling      int
	ActiveTasks  []string
	Load         float64
}

// New constructs an idle node. Ceiling values below 1 are clamped to 1.
// Handlers for task types are registered via Handle; tasks of an unknown
// type run through a no-op fallback that echoes the payload.
func New(id, address string, port, ceiling int, capabilities ...string) *Node {
	if ceiling < 1 {
		ceiling = 1
	}
	caps := make(map[string]struct{}, len(capabilities))
	for _, c := range capabilities {
		caps[c] = struct{}{}
	}
	return &Node{
		id:       id,
		address:  address,
		port:     port,
		status:   StatusIdle,
		caps:     caps,
		ceiling:  ceiling,
		active:   make(map[string]*task.Task),
		handlers: make(map[string]Handler),
		fallback: func(_ context.Context, t *task.Task) ([]byte, error) { return t.Payload, nil },
	}
}

// ID returns the node identifier.
func (n *Node) ID() string { return n.id }

// Handle registers the handler for a task type, replacing any previous one.
func (n *Node) Handle(typ string, h Handler) {
	if h == nil {
		return
	}
	n.mu.Lock()
	n.handlers[typ] = h
	n.mu.Unlock()
}

// HandleDefault replaces the fallback handler used for unknown task types.
func (n *Node) HandleDefault(h Handler) {
	if h == nil {
		return
	}
	n.mu.Lock()
	n.fallback = h
	n.mu.Unlock()
}

// AddCapability declares that the node can service a task type. Idempotent.
func (n *Node) AddCapability(c string) {
	n.mu.Lock()
	n.caps[c] = struct{}{}
	n.mu.Unlock()
}

// RemoveCapability retracts a capability. Idempotent.
func (n *Node) RemoveCapability(c string) {
	n.mu.Lock()
	delete(n.caps, c)
	n.mu.Unlock()
}

// HasCapability reports whether the node declares the given task type.
func (n *Node) HasCapability(c string) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	_, ok := n.caps[c]
	return ok
}

// MarkOffline takes the node out of rotation. In-flight tasks keep running.
func (n *Node) MarkOffline() {
	n.mu.Lock()
	n.status = StatusOffline
	n.mu.Unlock()
}

// MarkOnline returns the node to rotation, restoring idle or busy from the
// active set.
func (n *Node) MarkOnline() {
	n.mu.Lock()
	n.status = StatusIdle
	n.recomputeStatus()
	n.mu.Unlock()
}

// CanAccept reports whether a new task may be assigned: the node is not
// offline and the active set is below the ceiling.
func (n *Node) CanAccept() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.status != StatusOffline && len(n.active) < n.ceiling
}

// Assign stores the task in the active set. Returns false with no side
// effect when the node cannot accept.
func (n *Node) Assign(t *task.Task) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.status == StatusOffline || len(n.active) >= n.ceiling {
		return false
	}
	n.active[t.ID] = t
	t.AssignedNode = n.id
	t.Status = task.StatusAssigned
	n.status = StatusBusy
	return true
}

// Execute runs the task through its type handler. The task is removed from
// the active set whether the handler succeeds or fails; a handler error
// never leaks the capacity slot. A missing task fails fast with
// task.ErrTaskNotFound and is not retried.
func (n *Node) Execute(ctx context.Context, taskID string) ([]byte, error) {
	n.mu.Lock()
	t, ok := n.active[taskID]
	if !ok {
		n.mu.Unlock()
		return nil, fmt.Errorf("%w: %s on node %s", task.ErrTaskNotFound, taskID, n.id)
	}
	h, ok := n.handlers[t.Type]
	if !ok {
		h = n.fallback
	}
	t.Status = task.StatusExecuting
	n.mu.Unlock()

	defer func() {
		n.mu.Lock()
		delete(n.active, taskID)
		n.recomputeStatus()
		n.mu.Unlock()
	}()

	out, err := h(ctx, t)
	if err != nil {
		zap.L().Debug("task handler failed",
			zap.String("node", n.id),
			zap.String("task", taskID),
			zap.String("type", t.Type),
			zap.Error(err))
		return nil, fmt.Errorf("execute %s: %w", taskID, err)
	}
	return out, nil
}

// Load is the active task count divided by the ceiling, in [0,1].
func (n *Node) Load() float64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return float64(len(n.active)) / float64(n.ceiling)
}

// ActiveTasks returns a snapshot of in-flight task ids.
func (n *Node) ActiveTasks() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	ids := make([]string, 0, len(n.active))
	for id := range n.active {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Info returns an independent copy of the node state.
func (n *Node) Info() Info {
	n.mu.RLock()
	defer n.mu.RUnlock()
	caps := make([]string, 0, len(n.caps))
	for c := range n.caps {
		caps = append(caps, c)
	}
	sort.Strings(caps)
	ids := make([]string, 0, len(n.active))
	for id := range n.active {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return Info{
		ID:           n.id,
		Address:      n.address,
		Port:         n.port,
		Status:       n.status,
		Capabilities: caps,
		Ceiling:      n.ceiling,
		ActiveTasks:  ids,
		Load:         float64(len(n.active)) / float64(n.ceiling),
	}
}

// recomputeStatus restores idle/busy from the active set. Caller holds mu.
// Offline is sticky: only MarkOnline clears it.
func (n *Node) recomputeStatus() {
	if n.status == StatusOffline {
		return
	}
	if len(n.active) == 0 {
		n.status = StatusIdle
	} else {
		n.status = StatusBusy
	}
}
