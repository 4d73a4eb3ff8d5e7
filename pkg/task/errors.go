package task

import "errors"

// Error kinds surfaced by nodes and the scheduler. Callers are expected to
// test with errors.Is; wrapped forms carry the offending id.
var (
	// ErrNodeNotFound means the referenced node is not in the registry.
	ErrNodeNotFound = errors.New("node not found")

	// ErrTaskNotFound means a node was asked to execute a task it does not
	// hold. Fail-fast: signals caller misuse and is never retried.
	ErrTaskNotFound = errors.New("task not found")

	// ErrTaskRejected means the node is offline or at its concurrency ceiling.
	ErrTaskRejected = errors.New("task rejected")

	// ErrSchedulingTimeout means execution exceeded the configured timeout.
	ErrSchedulingTimeout = errors.New("scheduling timeout")

	// ErrMaxRetriesExceeded is the terminal error after the retry budget is
	// exhausted. The underlying failure is wrapped.
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")

	// ErrNoEligibleNode means no node could take the task this pass. The
	// task stays queued; submitters never observe this as a call error.
	ErrNoEligibleNode = errors.New("no eligible node")
)
