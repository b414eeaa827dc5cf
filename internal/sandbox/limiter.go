package sandbox

import (
	"context"
	"time"

	"github.com/sakif/pairview/internal/apperror"
)

// Limiter caps how many sandboxes run at once. Per-sandbox memory/CPU
// ceilings bound each container; this bounds the whole deployment so a
// burst of submissions cannot oversubscribe the host.
//
// Policy: a request that arrives at the cap queues briefly (up to
// queueWait) for a slot rather than failing immediately. If no slot frees
// up in time it fails with a capacity error. This is a buffered channel
// used as a counting semaphore — the same channel discipline the
// pre-warmed container pool used, with slots instead of container IDs.
type Limiter struct {
	slots     chan struct{}
	queueWait time.Duration
}

// NewLimiter creates a Limiter allowing up to max concurrent executions,
// each waiting at most queueWait for a free slot.
func NewLimiter(max int, queueWait time.Duration) *Limiter {
	l := &Limiter{
		slots:     make(chan struct{}, max),
		queueWait: queueWait,
	}
	for i := 0; i < max; i++ {
		l.slots <- struct{}{}
	}
	return l
}

// Acquire blocks until a slot is available, the queue wait elapses, or
// the caller's context is canceled. Every successful Acquire must be
// paired with exactly one Release.
func (l *Limiter) Acquire(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, l.queueWait)
	defer cancel()

	select {
	case <-l.slots:
		return nil
	case <-waitCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return apperror.Capacity("execution capacity reached, try again shortly")
	}
}

// Release returns a slot to the pool.
func (l *Limiter) Release() {
	select {
	case l.slots <- struct{}{}:
	default:
		// Release without Acquire is a programming error; dropping the
		// extra slot beats blocking the caller.
	}
}

// Available reports the number of free slots. Used by tests and logging.
func (l *Limiter) Available() int {
	return len(l.slots)
}
