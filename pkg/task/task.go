// Package task defines the unit of work exchanged between submitters,
// the scheduler and nodes.
package task

import (
	"time"

	"github.com/google/uuid"
)

// Status tracks a task through its lifecycle.
// Pending → Assigned → Executing → {Completed | Pending (retry) | FailedFinal}.
type Status int

const (
	StatusPending Status = iota
	StatusAssigned
	StatusExecuting
	StatusCompleted
	StatusFailedFinal
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusAssigned:
		return "assigned"
	case StatusExecuting:
		return "executing"
	case StatusCompleted:
		return "completed"
	case StatusFailedFinal:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusFailedFinal }

// Task is a typed, prioritized unit of work with an opaque payload.
// Retries counts delivery attempts and is kept separate from Priority;
// retrying a task never changes its place in the priority order.
type Task struct {
	ID           string
	Type         string // matched against node capability sets
	Payload      []byte
	Priority     int // higher is scheduled first
	CreatedAt    time.Time
	AssignedNode string
	Retries      int
	Status       Status

	seq uint64 // arrival order, assigned by the scheduler
}

// New constructs a pending task. An empty id is replaced with a generated one.
func New(id, typ string, payload []byte, priority int) *Task {
	if id == "" {
		id = uuid.NewString()
	}
	return &Task{
		ID:        id,
		Type:      typ,
		Payload:   payload,
		Priority:  priority,
		CreatedAt: time.Now(),
		Status:    StatusPending,
	}
}

// Seq returns the arrival sequence number used as the priority tie-break.
func (t *Task) Seq() uint64 { return t.seq }

// SetSeq stamps the arrival order. Called once on first submission.
func (t *Task) SetSeq(n uint64) {
	if t.seq == 0 {
		t.seq = n
	}
}

// Result is the terminal outcome of a task, queryable by submitters.
type Result struct {
	TaskID     string
	NodeID     string
	Payload    []byte
	Err        error
	Attempts   int
	FinishedAt time.Time
}

// Failed reports whether the task terminated without a successful execution.
func (r *Result) Failed() bool { return r.Err != nil }
