package fetch

import (
	"context"
	"sync"
)

// slotGate is the single request slot with strict FIFO handoff. A plain
// mutex only approximates arrival order under contention; the explicit
// waiter queue makes it literal: the slot passes to waiters in the exact
// order acquire was called.
type slotGate struct {
	mu      sync.Mutex
	busy    bool
	waiters []chan struct{}
}

// acquire claims the slot, queueing behind earlier callers. A cancelled
// waiter leaves the queue without disturbing the order of the others.
func (g *slotGate) acquire(ctx context.Context) error {
	g.mu.Lock()
	if !g.busy {
		g.busy = true
		g.mu.Unlock()
		return nil
	}
	ticket := make(chan struct{})
	g.waiters = append(g.waiters, ticket)
	g.mu.Unlock()

	select {
	case <-ticket:
		return nil
	case <-ctx.Done():
		g.mu.Lock()
		for i, w := range g.waiters {
			if w == ticket {
				g.waiters = append(g.waiters[:i], g.waiters[i+1:]...)
				g.mu.Unlock()
				return ctx.Err()
			}
		}
		g.mu.Unlock()
		// The slot was handed over concurrently with cancellation;
		// pass it to the next waiter.
		g.release()
		return ctx.Err()
	}
}

// release hands the slot to the oldest waiter, or frees it.
func (g *slotGate) release() {
	g.mu.Lock()
	if len(g.waiters) > 0 {
		next := g.waiters[0]
		g.waiters = g.waiters[1:]
		g.mu.Unlock()
		close(next)
		return
	}
	g.busy = false
	g.mu.Unlock()
}

// queued reports the number of waiting callers. Test hook.
func (g *slotGate) queued() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.waiters)
}
