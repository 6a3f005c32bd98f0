package decor

import (
	"context"
	"time"
)

// Conn is the part of a display the event loop drives.
type Conn interface {
	Flush() error
	DispatchTimeout(timeout time.Duration) (bool, error)
}

// HelperDispatcher pumps a helper library context without blocking.
// *Manager implements it.
type HelperDispatcher interface {
	Dispatch() error
}

const drainTimeout = time.Millisecond

// EventLoop interleaves the helper library with the display connection.
// Each iteration pumps the helper first so that sizes it configured are
// committed before anything is flushed to the compositor.
type EventLoop struct {
	conn   Conn
	helper HelperDispatcher
	wait   time.Duration
}

// NewEventLoop creates a loop. helper may be nil; wait bounds how long one
// iteration blocks for the first display event.
func NewEventLoop(conn Conn, helper HelperDispatcher, wait time.Duration) *EventLoop {
	return &EventLoop{conn: conn, helper: helper, wait: wait}
}

// Iterate runs one pass: helper dispatch, flush, wait for events, drain
// whatever else is queued, flush the replies.
func (l *EventLoop) Iterate() error {
	if l.helper != nil {
		if err := l.helper.Dispatch(); err != nil {
			return err
		}
	}
	if err := l.conn.Flush(); err != nil {
		return err
	}

	got, err := l.conn.DispatchTimeout(l.wait)
	if err != nil {
		return err
	}
	for got {
		if got, err = l.conn.DispatchTimeout(drainTimeout); err != nil {
			return err
		}
	}
	return l.conn.Flush()
}

// Run iterates until ctx is done, done reports true, or an iteration fails.
func (l *EventLoop) Run(ctx context.Context, done func() bool) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if done != nil && done() {
			return nil
		}
		if err := l.Iterate(); err != nil {
			return err
		}
	}
}
