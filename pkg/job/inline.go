package job

import (
	"context"
	"fmt"
	"sync"
)

// Inline runs tasks synchronously in the caller's goroutine. Enqueue options
// other than ScheduledAt are ignored; scheduled jobs are recorded but not run.
type Inline struct {
	registry *taskRegistry

	mu       sync.Mutex
	history  []string
	deferred []string
}

// NewInline builds an Inline runner from the same options as NewManager.
func NewInline(opts ...Option) *Inline {
	cfg := newConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return &Inline{registry: cfg.registry}
}

// Enqueue executes the task immediately and returns its error.
func (i *Inline) Enqueue(ctx context.Context, name string, payload any, opts ...EnqueueOption) error {
	exec, ok := i.registry.get(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}

	args, _, err := buildJobArgs(name, payload, opts...)
	if err != nil {
		return err
	}

	cfg := &enqueueConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	i.mu.Lock()
	if cfg.scheduledAt != nil {
		i.deferred = append(i.deferred, name)
		i.mu.Unlock()
		return nil
	}
	i.history = append(i.history, name)
	i.mu.Unlock()

	return exec.Execute(ctx, args.Payload)
}

// Run executes a registered task without a payload, as the scheduler would.
func (i *Inline) Run(ctx context.Context, name string) error {
	return i.Enqueue(ctx, name, nil)
}

// Executed returns the names of tasks run so far, in order.
func (i *Inline) Executed() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]string(nil), i.history...)
}

// Deferred returns the names of tasks enqueued with a schedule.
func (i *Inline) Deferred() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]string(nil), i.deferred...)
}

var (
	_ Enqueuer = (*Inline)(nil)
	_ Enqueuer = (*Manager)(nil)
)
