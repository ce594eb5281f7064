// Package interrupt bounds the wall-clock execution time of a single script
// invocation. The interpreter checks the controller's context in its
// instruction loop, so even a pure compute loop that never touches I/O is
// aborted once the deadline passes.
package interrupt

import (
	"context"
	"errors"
	"time"
)

// Controller owns the deadline for one invocation. A zero limit means
// unbounded. Controllers are single-use: one per invocation, stopped when the
// invocation ends.
type Controller struct {
	limit  time.Duration
	start  time.Time
	ctx    context.Context
	cancel context.CancelFunc
}

// New derives a deadline context from parent. A limit <= 0 leaves the parent
// context untouched (unbounded is a valid configuration).
func New(parent context.Context, limit time.Duration) *Controller {
	c := &Controller{
		limit: limit,
		start: time.Now(),
	}
	if limit > 0 {
		c.ctx, c.cancel = context.WithDeadline(parent, c.start.Add(limit))
	} else {
		c.ctx, c.cancel = context.WithCancel(parent)
	}
	return c
}

// Context returns the context the interpreter and any outbound request must
// run under.
func (c *Controller) Context() context.Context {
	return c.ctx
}

// Expired reports whether the deadline has passed. The engine consults this
// after the chunk returns so a script cannot mask a timeout by catching the
// in-interpreter abort.
func (c *Controller) Expired() bool {
	return errors.Is(c.ctx.Err(), context.DeadlineExceeded)
}

// Elapsed returns the wall-clock time since the invocation started.
func (c *Controller) Elapsed() time.Duration {
	return time.Since(c.start)
}

// Limit returns the configured limit, zero when unbounded.
func (c *Controller) Limit() time.Duration {
	return c.limit
}

// Stop releases the controller's resources. Safe to call more than once.
func (c *Controller) Stop() {
	c.cancel()
}
