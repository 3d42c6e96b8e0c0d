package index

import (
	"sync"
	"time"
)

// Coalescing defaults. A burst of upserts during a multi-subzone
// configure collapses into a single batched notification.
const (
	// DefaultCoalesceDelay is how long the coalescer waits after the
	// first buffered event before flushing.
	DefaultCoalesceDelay = 100 * time.Millisecond

	// DefaultMaxBatch flushes immediately once this many events are
	// buffered, bounding memory during sustained bursts.
	DefaultMaxBatch = 64
)

// Event describes one accepted index update, delivered to subscribers
// in coalesced batches.
type Event struct {
	DeviceID  string `json:"device_id"`
	SubzoneID string `json:"subzone_id"`
	Zone      string `json:"zone,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Coalescer buffers index events and delivers them as batches: a timer
// started on the first buffered event flushes after the delay, or the
// buffer flushes immediately at the batch limit. Safe for concurrent use.
type Coalescer struct {
	mu       sync.Mutex
	buf      []Event
	timer    *time.Timer
	delay    time.Duration
	maxBatch int
	subs     []func([]Event)
	closed   bool
}

// NewCoalescer creates a coalescer. Non-positive delay or maxBatch fall
// back to the defaults.
func NewCoalescer(delay time.Duration, maxBatch int) *Coalescer {
	if delay <= 0 {
		delay = DefaultCoalesceDelay
	}
	if maxBatch <= 0 {
		maxBatch = DefaultMaxBatch
	}
	return &Coalescer{
		delay:    delay,
		maxBatch: maxBatch,
	}
}

// Subscribe registers a callback invoked with each flushed batch.
// Callbacks run on the coalescer's flush goroutine and must not block.
func (c *Coalescer) Subscribe(fn func(events []Event)) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs = append(c.subs, fn)
}

// Add buffers one event. The first event arms the flush timer; reaching
// the batch limit flushes immediately. Events added after Close are
// dropped.
func (c *Coalescer) Add(ev Event) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}

	c.buf = append(c.buf, ev)

	if len(c.buf) >= c.maxBatch {
		batch, subs := c.take()
		c.mu.Unlock()
		deliver(subs, batch)
		return
	}

	if c.timer == nil {
		c.timer = time.AfterFunc(c.delay, c.flush)
	}
	c.mu.Unlock()
}

// Flush delivers any buffered events immediately.
func (c *Coalescer) Flush() {
	c.flush()
}

// Close flushes remaining events and stops the coalescer. Further Adds
// are dropped.
func (c *Coalescer) Close() {
	c.mu.Lock()
	c.closed = true
	batch, subs := c.take()
	c.mu.Unlock()
	deliver(subs, batch)
}

// flush is the timer callback.
func (c *Coalescer) flush() {
	c.mu.Lock()
	batch, subs := c.take()
	c.mu.Unlock()
	deliver(subs, batch)
}

// take empties the buffer and disarms the timer. Caller holds the lock.
func (c *Coalescer) take() ([]Event, []func([]Event)) {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	batch := c.buf
	c.buf = nil
	return batch, c.subs
}

func deliver(subs []func([]Event), batch []Event) {
	if len(batch) == 0 {
		return
	}
	for _, fn := range subs {
		fn(batch)
	}
}
