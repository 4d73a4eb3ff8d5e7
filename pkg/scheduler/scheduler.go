// Package scheduler places tasks onto registered nodes using a pluggable
// strategy and supervises execution with a timeout and bounded retry.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"taskmesh/pkg/node"
	"taskmesh/pkg/observability"
	"taskmesh/pkg/task"
)

// Config controls scheduling behavior.
type Config struct {
	Strategy   string        // see strategy names; empty means round-robin
	MaxRetries int           // retry budget per task (default 3)
	Timeout    time.Duration // per-attempt execution timeout (default 30s)
}

func (c Config) withDefaults() Config {
	res := c
	if res.MaxRetries <= 0 {
		res.MaxRetries = 3
	}
	if res.Timeout <= 0 {
		res.Timeout = 30 * time.Second
	}
	return res
}

// Stats is a read-only view of scheduler state.
type Stats struct {
	TotalNodes     int
	QueuedTasks    int
	CompletedTasks int
	Nodes          []node.Info
	Strategy       string
}

// Scheduler owns the node registry, the pending queue and the result table.
// Submission and the scheduling pass mutate state under one mutex; execution
// runs asynchronously and re-enters through finish.
type Scheduler struct {
	mu        sync.Mutex
	cfg       Config
	strategy  Strategy
	nodes     map[string]*node.Node
	order     []string // registry insertion order
	queue     []*task.Task
	results   map[string]*task.Result
	completed int
	seq       uint64
}

// New constructs a scheduler. An unknown strategy name is an error.
func New(cfg Config) (*Scheduler, error) {
	cfg = cfg.withDefaults()
	st, err := ByName(cfg.Strategy)
	if err != nil {
		return nil, err
	}
	return &Scheduler{
		cfg:      cfg,
		strategy: st,
		nodes:    make(map[string]*node.Node),
		results:  make(map[string]*task.Result),
	}, nil
}

// RegisterNode adds a node to the registry and runs a scheduling pass, since
// queued tasks may now have a placement.
func (s *Scheduler) RegisterNode(n *node.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nodes[n.ID()]; ok {
		return fmt.Errorf("node %s already registered", n.ID())
	}
	s.nodes[n.ID()] = n
	s.order = append(s.order, n.ID())
	observability.RegisteredNodes.Set(float64(len(s.nodes)))
	zap.L().Info("node registered", zap.String("node", n.ID()))
	s.schedule()
	return nil
}

// UnregisterNode removes a node. Tasks still held by the node are orphaned:
// their ids are returned and logged, and they are not requeued. In-flight
// executions drain on their own; a completed orphan still records a result.
func (s *Scheduler) UnregisterNode(id string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", task.ErrNodeNotFound, id)
	}
	delete(s.nodes, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	observability.RegisteredNodes.Set(float64(len(s.nodes)))
	orphaned := n.ActiveTasks()
	if len(orphaned) > 0 {
		zap.L().Warn("node unregistered with active tasks; tasks orphaned",
			zap.String("node", id),
			zap.Strings("tasks", orphaned))
	} else {
		zap.L().Info("node unregistered", zap.String("node", id))
	}
	return orphaned, nil
}

// SubmitTask enqueues one task and runs a scheduling pass synchronously.
// Execution outcomes are observed via Result/IsComplete, never as a call
// error here.
func (s *Scheduler) SubmitTask(t *task.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enqueue(t)
	s.schedule()
}

// SubmitTasks enqueues a batch, then runs one scheduling pass.
func (s *Scheduler) SubmitTasks(ts []*task.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range ts {
		s.enqueue(t)
	}
	s.schedule()
}

// enqueue stamps arrival order and appends. Caller holds mu.
func (s *Scheduler) enqueue(t *task.Task) {
	s.seq++
	t.SetSeq(s.seq)
	t.Status = task.StatusPending
	s.queue = append(s.queue, t)
	observability.TasksSubmitted.Inc()
}

// schedule runs one placement pass over the pending queue. Caller holds mu.
// Tasks with no eligible node stay queued for the next pass.
func (s *Scheduler) schedule() {
	defer func() { observability.QueueDepth.Set(float64(len(s.queue))) }()
	if len(s.queue) == 0 {
		return
	}
	sort.SliceStable(s.queue, func(i, j int) bool {
		if s.queue[i].Priority != s.queue[j].Priority {
			return s.queue[i].Priority > s.queue[j].Priority
		}
		return s.queue[i].Seq() < s.queue[j].Seq()
	})

	var keep []*task.Task
	for _, t := range s.queue {
		eligible := s.eligibleNodes()
		if len(eligible) == 0 {
			keep = append(keep, t)
			continue
		}
		n := s.strategy.Pick(eligible, t)
		if n == nil {
			keep = append(keep, t)
			continue
		}
		if !n.Assign(t) {
			// Node filled up between the eligibility snapshot and now.
			zap.L().Debug("placement refused",
				zap.String("task", t.ID),
				zap.String("node", n.ID()),
				zap.Error(task.ErrTaskRejected))
			keep = append(keep, t)
			continue
		}
		zap.L().Debug("task placed",
			zap.String("task", t.ID),
			zap.String("type", t.Type),
			zap.String("node", n.ID()),
			zap.Int("attempt", t.Retries+1))
		s.dispatch(n, t)
	}
	if len(keep) > 0 {
		zap.L().Debug("tasks remain queued",
			zap.Int("count", len(keep)),
			zap.Error(task.ErrNoEligibleNode))
	}
	s.queue = keep
}

// eligibleNodes snapshots nodes that can accept a task, in registry order.
// Caller holds mu.
func (s *Scheduler) eligibleNodes() []*node.Node {
	out := make([]*node.Node, 0, len(s.order))
	for _, id := range s.order {
		if n := s.nodes[id]; n != nil && n.CanAccept() {
			out = append(out, n)
		}
	}
	return out
}

// dispatch races node execution against the configured timeout. Exactly one
// outcome is applied; a timed-out execution is drained before the timeout is
// recorded, so the node has released the task by the time it is requeued.
func (s *Scheduler) dispatch(n *node.Node, t *task.Task) {
	timeout := s.cfg.Timeout
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		type outcome struct {
			payload []byte
			err     error
		}
		done := make(chan outcome, 1)
		go func() {
			p, err := n.Execute(ctx, t.ID)
			done <- outcome{p, err}
		}()

		select {
		case o := <-done:
			s.finish(n.ID(), t, o.payload, o.err)
		case <-ctx.Done():
			// The node holds the task in its active set until the execution
			// returns. Requeueing before that could re-assign the task to
			// the same node under the same id. Wait for the release, then
			// discard the late outcome.
			<-done
			s.finish(n.ID(), t, nil, fmt.Errorf("%w: task %s on node %s after %s",
				task.ErrSchedulingTimeout, t.ID, n.ID(), timeout))
		}
	}()
}

// finish applies one execution outcome: record success, requeue within the
// retry budget, or finalize as failed. It retriggers a scheduling pass since
// a slot freed up or the queue grew.
func (s *Scheduler) finish(nodeID string, t *task.Task, payload []byte, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case err == nil:
		t.Status = task.StatusCompleted
		s.results[t.ID] = &task.Result{
			TaskID:     t.ID,
			NodeID:     nodeID,
			Payload:    payload,
			Attempts:   t.Retries + 1,
			FinishedAt: time.Now(),
		}
		s.completed++
		observability.TasksCompleted.Inc()

	case errors.Is(err, task.ErrTaskNotFound):
		// Caller misuse, never retried.
		t.Status = task.StatusFailedFinal
		s.results[t.ID] = &task.Result{
			TaskID: t.ID, NodeID: nodeID, Err: err,
			Attempts: t.Retries + 1, FinishedAt: time.Now(),
		}
		observability.TasksFailed.WithLabelValues("not_found").Inc()
		zap.L().Error("task lookup failed on node", zap.String("task", t.ID), zap.Error(err))

	case t.Retries < s.cfg.MaxRetries:
		t.Retries++
		t.Status = task.StatusPending
		t.AssignedNode = ""
		s.queue = append(s.queue, t)
		observability.TaskRetries.Inc()
		zap.L().Warn("task attempt failed, requeued",
			zap.String("task", t.ID),
			zap.String("node", nodeID),
			zap.Int("retries", t.Retries),
			zap.Error(err))

	default:
		t.Status = task.StatusFailedFinal
		s.results[t.ID] = &task.Result{
			TaskID: t.ID, NodeID: nodeID,
			Err:        fmt.Errorf("%w (%d attempts): %v", task.ErrMaxRetriesExceeded, t.Retries+1, err),
			Attempts:   t.Retries + 1,
			FinishedAt: time.Now(),
		}
		reason := "error"
		if errors.Is(err, task.ErrSchedulingTimeout) {
			reason = "timeout"
		}
		observability.TasksFailed.WithLabelValues(reason).Inc()
		zap.L().Error("task failed permanently",
			zap.String("task", t.ID),
			zap.Int("attempts", t.Retries+1),
			zap.Error(err))
	}

	s.schedule()
}

// Result returns a copy of the terminal outcome for a task, if any.
func (s *Scheduler) Result(id string) (task.Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.results[id]
	if !ok {
		return task.Result{}, false
	}
	return *r, true
}

// IsComplete reports whether the task has a terminal outcome.
func (s *Scheduler) IsComplete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.results[id]
	return ok
}

// Nodes returns snapshots of all registered nodes in registry order.
func (s *Scheduler) Nodes() []node.Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nodeInfos()
}

// Stats returns a read-only summary of current state.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		TotalNodes:     len(s.nodes),
		QueuedTasks:    len(s.queue),
		CompletedTasks: s.completed,
		Nodes:          s.nodeInfos(),
		Strategy:       s.strategy.Name(),
	}
}

func (s *Scheduler) nodeInfos() []node.Info {
	out := make([]node.Info, 0, len(s.order))
	for _, id := range s.order {
		if n := s.nodes[id]; n != nil {
			out = append(out, n.Info())
		}
	}
	return out
}
