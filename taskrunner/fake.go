package taskrunner

import (
	"context"
	"sync"
	"time"
)

// FakeRunner is an in-memory Runner double for tests: Enqueue calls run
// the registered handler synchronously (EnqueueDelayed only records the
// call and its countdown; it never runs the handler), so tests can assert on pipeline
// wiring without a real broker.
type FakeRunner struct {
	mu    sync.Mutex
	regs  map[string]registration
	calls []FakeCall
}

// FakeCall records one Enqueue/EnqueueDelayed invocation for assertions.
type FakeCall struct {
	TaskType  string
	Payload   []byte
	Countdown time.Duration
}

func NewFakeRunner() *FakeRunner {
	return &FakeRunner{regs: make(map[string]registration)}
}

func (f *FakeRunner) Register(taskType string, concurrency, maxAttempts int, handler Handler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.regs[taskType] = registration{handler: handler, concurrency: concurrency, maxAttempts: maxAttempts}
	return nil
}

func (f *FakeRunner) Enqueue(ctx context.Context, taskType string, payload []byte) error {
	f.mu.Lock()
	f.calls = append(f.calls, FakeCall{TaskType: taskType, Payload: payload})
	reg, ok := f.regs[taskType]
	f.mu.Unlock()
	if !ok {
		return nil
	}
	return reg.handler(ctx, Task{Type: taskType, Payload: payload, Attempt: 1})
}

func (f *FakeRunner) EnqueueDelayed(ctx context.Context, taskType string, payload []byte, countdown time.Duration) error {
	f.mu.Lock()
	f.calls = append(f.calls, FakeCall{TaskType: taskType, Payload: payload, Countdown: countdown})
	f.mu.Unlock()
	return nil
}

func (f *FakeRunner) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

// Calls returns a snapshot of every Enqueue/EnqueueDelayed call so far.
func (f *FakeRunner) Calls() []FakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]FakeCall, len(f.calls))
	copy(out, f.calls)
	return out
}

var _ Runner = (*FakeRunner)(nil)
