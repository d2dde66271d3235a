package crawler

import "sync/atomic"

// Counters tracks request attempts for the whole run. Safe for concurrent use.
type Counters struct {
	total      atomic.Int64
	successful atomic.Int64
}

// CounterSnapshot is a point-in-time copy of Counters.
type CounterSnapshot struct {
	Total      int64
	Successful int64
}

// NewCounters returns zeroed counters.
func NewCounters() *Counters {
	return &Counters{}
}

// Attempt records that a request is about to be sent.
func (c *Counters) Attempt() int64 {
	return c.total.Add(1)
}

// Succeed records that a response (of any status) was received.
func (c *Counters) Succeed() int64 {
	return c.successful.Add(1)
}

// Total returns the number of attempted requests.
func (c *Counters) Total() int64 {
	return c.total.Load()
}

// Successful returns the number of requests that produced a response.
func (c *Counters) Successful() int64 {
	return c.successful.Load()
}

// Snapshot copies both counters.
func (c *Counters) Snapshot() CounterSnapshot {
	return CounterSnapshot{Total: c.Total(), Successful: c.Successful()}
}
