package dispatch

import (
	"context"
	"sync/atomic"
)

// Counter is an in-process Sequence starting at 1.
type Counter struct {
	n atomic.Int64
}

// NewCounter returns a Counter whose first ID is start+1.
func NewCounter(start int64) *Counter {
	c := &Counter{}
	c.n.Store(start)
	return c
}

// Next returns the next ID.
func (c *Counter) Next(_ context.Context) (int64, error) {
	return c.n.Add(1), nil
}
