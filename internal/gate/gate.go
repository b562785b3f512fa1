package gate

import (
	"context"
	"fmt"
	"sync"
)

// Gate bounds how many tasks run concurrently. Excess submissions queue
// in FIFO order and start as running slots free up. The gate itself never
// fails: a task's error (or panic) is delivered only to that task's own
// result channel, so one task can never fail or stall a sibling.

type Gate struct {
	mu      sync.Mutex
	limit   int
	running int
	queue   []*task
}

type task struct {
	ctx  context.Context
	fn   func(context.Context) error
	done chan error
}

// New creates a gate admitting at most limit concurrent tasks.
// limit < 1 is treated as 1.
func New(limit int) *Gate {
	if limit < 1 {
		limit = 1
	}
	return &Gate{limit: limit}
}

// Limit returns the configured concurrency bound.
func (g *Gate) Limit() int { return g.limit }

// Enqueue submits a task and returns a channel that receives its result
// exactly once. The task starts immediately if a slot is free, otherwise
// when it reaches the head of the queue.
func (g *Gate) Enqueue(ctx context.Context, fn func(context.Context) error) <-chan error {
	t := &task{ctx: ctx, fn: fn, done: make(chan error, 1)}
	g.mu.Lock()
	if g.running < g.limit {
		g.running++
		g.mu.Unlock()
		go g.run(t)
		return t.done
	}
	g.queue = append(g.queue, t)
	g.mu.Unlock()
	return t.done
}

// InFlight returns the number of running plus queued tasks.
func (g *Gate) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running + len(g.queue)
}

func (g *Gate) run(t *task) {
	for t != nil {
		t.done <- g.invoke(t)
		t = g.next()
	}
}

// next releases the caller's slot or hands it the queue head.
func (g *Gate) next() *task {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.queue) == 0 {
		g.running--
		return nil
	}
	t := g.queue[0]
	g.queue = g.queue[1:]
	return t
}

func (g *Gate) invoke(t *task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	// A task whose context died while queued is not started at all.
	if cerr := t.ctx.Err(); cerr != nil {
		return cerr
	}
	return t.fn(t.ctx)
}
