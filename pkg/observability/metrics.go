package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueueDepth tracks the number of pending tasks in the scheduler queue.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "taskmesh_queue_depth",
		Help: "Current number of tasks waiting for placement",
	})

	// RegisteredNodes tracks the size of the node registry.
	RegisteredNodes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "taskmesh_registered_nodes",
		Help: "Current number of registered nodes",
	})

	// TasksSubmitted counts tasks accepted for scheduling.
	TasksSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "taskmesh_tasks_submitted_total",
		Help: "Total number of tasks submitted",
	})

	// TasksCompleted counts tasks that finished successfully.
	TasksCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "taskmesh_tasks_completed_total",
		Help: "Total number of tasks completed successfully",
	})

	// TasksFailed counts terminal failures by reason.
	TasksFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskmesh_tasks_failed_total",
		Help: "Total number of tasks that terminated as failed",
	}, []string{"reason"})

	// TaskRetries counts requeues after a failed or timed-out attempt.
	TaskRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "taskmesh_task_retries_total",
		Help: "Total number of task retry requeues",
	})

	// PeersOnline tracks peers currently considered alive.
	PeersOnline = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "taskmesh_peers_online",
		Help: "Current number of peers marked online",
	})

	// HeartbeatsSent counts outbound heartbeat messages.
	HeartbeatsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "taskmesh_heartbeats_sent_total",
		Help: "Total number of heartbeat messages sent",
	})
)
