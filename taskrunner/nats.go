package taskrunner

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// notBeforeHeader carries the delayed-enqueue deadline; the consume loop
// naks and backs off any message whose deadline hasn't passed yet instead
// of delivering it early, standing in for JetStream's lack of native
// per-message delay.
const notBeforeHeader = "Guideforge-Not-Before"

// NATSConfig configures the JetStream-backed Runner.
type NATSConfig struct {
	URL        string
	StreamName string
	Subject    string // wildcard subject tasks are published under, e.g. "guideforge.tasks.>"
}

func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:        nats.DefaultURL,
		StreamName: "GUIDEFORGE_TASKS",
		Subject:    "guideforge.tasks.>",
	}
}

type registration struct {
	handler     Handler
	concurrency int
	maxAttempts int
}

// NATSRunner implements Runner over NATS JetStream: each task type is
// published to "<subject-prefix>.<type>" and consumed by a durable,
// per-type consumer with its own bounded worker pool, grounded on
// task-dispatcher/component.go's consumer-per-stream setup.
type NATSRunner struct {
	cfg    NATSConfig
	nc     *nats.Conn
	js     jetstream.JetStream
	stream jetstream.Stream
	logger *slog.Logger

	mu   sync.Mutex
	regs map[string]registration
}

// NewNATSRunner connects to NATS and ensures the task stream exists.
func NewNATSRunner(ctx context.Context, cfg NATSConfig, logger *slog.Logger) (*NATSRunner, error) {
	if logger == nil {
		logger = slog.Default()
	}

	nc, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     cfg.StreamName,
		Subjects: []string{cfg.Subject},
		Storage:  jetstream.FileStorage,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create or update stream %s: %w", cfg.StreamName, err)
	}

	return &NATSRunner{
		cfg:    cfg,
		nc:     nc,
		js:     js,
		stream: stream,
		logger: logger,
		regs:   make(map[string]registration),
	}, nil
}

func (r *NATSRunner) subjectFor(taskType string) string {
	return "guideforge.tasks." + taskType
}

func (r *NATSRunner) Enqueue(ctx context.Context, taskType string, payload []byte) error {
	_, err := r.js.Publish(ctx, r.subjectFor(taskType), payload)
	return err
}

func (r *NATSRunner) EnqueueDelayed(ctx context.Context, taskType string, payload []byte, countdown time.Duration) error {
	msg := nats.NewMsg(r.subjectFor(taskType))
	msg.Data = payload
	msg.Header.Set(notBeforeHeader, strconv.FormatInt(time.Now().Add(countdown).UnixNano(), 10))
	_, err := r.js.PublishMsg(ctx, msg)
	return err
}

func (r *NATSRunner) Register(taskType string, concurrency, maxAttempts int, handler Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if concurrency <= 0 {
		concurrency = 1
	}
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	r.regs[taskType] = registration{handler: handler, concurrency: concurrency, maxAttempts: maxAttempts}
	return nil
}

// Run creates one durable consumer per registered task type and runs a
// bounded worker pool against each, blocking until ctx is canceled.
func (r *NATSRunner) Run(ctx context.Context) error {
	r.mu.Lock()
	regs := make(map[string]registration, len(r.regs))
	for k, v := range r.regs {
		regs[k] = v
	}
	r.mu.Unlock()

	var wg sync.WaitGroup
	for taskType, reg := range regs {
		taskType, reg := taskType, reg

		consumer, err := r.stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
			Durable:       consumerName(taskType),
			FilterSubject: r.subjectFor(taskType),
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       5 * time.Minute,
			MaxDeliver:    reg.maxAttempts,
		})
		if err != nil {
			return fmt.Errorf("create consumer for %s: %w", taskType, err)
		}

		sem := make(chan struct{}, reg.concurrency)
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.consumeLoop(ctx, taskType, consumer, reg.handler, sem)
		}()
	}

	<-ctx.Done()
	wg.Wait()
	r.nc.Close()
	return nil
}

func (r *NATSRunner) consumeLoop(ctx context.Context, taskType string, consumer jetstream.Consumer, handler Handler, sem chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msgs, err := consumer.Fetch(1, jetstream.FetchMaxWait(5*time.Second))
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}

		for msg := range msgs.Messages() {
			notBefore := parseNotBefore(msg)
			if !notBefore.IsZero() && time.Now().Before(notBefore) {
				_ = msg.NakWithDelay(time.Until(notBefore))
				continue
			}

			meta, err := msg.Metadata()
			attempt := 1
			if err == nil {
				attempt = int(meta.NumDelivered)
			}

			sem <- struct{}{}
			go func(msg jetstream.Msg, attempt int) {
				defer func() { <-sem }()
				err := handler(ctx, Task{Type: taskType, Payload: msg.Data(), Attempt: attempt})
				if err != nil {
					r.logger.Warn("task handler failed", "task_type", taskType, "attempt", attempt, "error", err)
					_ = msg.Nak()
					return
				}
				_ = msg.Ack()
			}(msg, attempt)
		}
	}
}

func parseNotBefore(msg jetstream.Msg) time.Time {
	v := msg.Headers().Get(notBeforeHeader)
	if v == "" {
		return time.Time{}
	}
	nanos, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(0, nanos)
}

func consumerName(taskType string) string {
	return "guideforge-" + taskType
}

var _ Runner = (*NATSRunner)(nil)
