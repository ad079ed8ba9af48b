package concurrent

import (
	"sync/atomic"
)

// Counter tracks the progress of a fixed number of units of work from many goroutines.
type Counter struct {
	total uint64
	count uint64
}

// NewCounter creates a new counter expecting total units of work.
func NewCounter(total int) *Counter {
	return &Counter{
		total: uint64(total),
	}
}

// Track marks one unit of work as done and returns the number of units done so far.
func (c *Counter) Track() int {
	return int(atomic.AddUint64(&c.count, 1))
}

// Get returns the current count.
func (c *Counter) Get() int {
	return int(atomic.LoadUint64(&c.count))
}

// Total returns the expected number of units.
func (c *Counter) Total() int {
	return int(c.total)
}

// Done checks if all units of work have been tracked.
func (c *Counter) Done() bool {
	return atomic.LoadUint64(&c.count) >= c.total
}
