// Package taskrunner defines the task-queue adapter contract the
// orchestrator uses to enqueue and consume pipeline work, plus a NATS
// JetStream binding and an in-memory fake for tests. Grounded on
// C360Studio-semspec's processor/task-dispatcher/component.go, generalized
// from a single fan-out consumer into a named-task-type dispatcher.
package taskrunner

import (
	"context"
	"time"
)

// Task is one unit of enqueued pipeline work: a named task type plus a
// JSON-serializable payload, delivered at-least-once with late ack.
type Task struct {
	Type    string
	Payload []byte
	// Attempt is the 1-based delivery count; the handler can use it to
	// decide whether to give up early instead of exhausting MaxDeliver.
	Attempt int
}

// Handler processes one delivered Task. Returning a nil error acks the
// message; a non-nil error naks it for redelivery up to the queue's retry
// budget.
type Handler func(ctx context.Context, task Task) error

// Runner is the task-queue port the orchestrator and cmd/worker depend on.
// Implementations provide at-least-once delivery, per-task-type retry
// budgets, and bounded per-queue concurrency.
type Runner interface {
	// Enqueue submits a task of the given type for immediate delivery.
	Enqueue(ctx context.Context, taskType string, payload []byte) error
	// EnqueueDelayed submits a task that becomes eligible for delivery
	// only after countdown has elapsed, per spec.md's finalize-after-delay
	// requirement (generation_service.py's countdown=30 finalize enqueue).
	EnqueueDelayed(ctx context.Context, taskType string, payload []byte, countdown time.Duration) error
	// Register binds a Handler to a task type with a given max concurrency
	// and max delivery attempts. Must be called before Run.
	Register(taskType string, concurrency, maxAttempts int, handler Handler) error
	// Run blocks, dispatching delivered tasks to their registered handlers
	// until ctx is canceled.
	Run(ctx context.Context) error
}

// Task type names shared between the orchestrator (enqueue side) and
// cmd/worker (registration side).
const (
	TaskExtractText        = "guideforge.extract_text"
	TaskParseMatrix        = "guideforge.parse_matrix"
	TaskKickoffGeneration  = "guideforge.kickoff_generation"
	TaskGenerateCells      = "guideforge.generate_cells"
	TaskFinalizeGeneration = "guideforge.finalize_generation"
)
