// Package framecache implements the per-camera latest-frame cache.
//
// A Cache holds at most one frame: each publish overwrites the previous frame
// (last-write-wins), so memory stays bounded no matter how far consumers lag
// behind the capture rate. Consumers that want freshness over completeness
// sample the cache non-blocking; consumers that need an initial frame can
// wait a bounded time for the first publish.
package framecache

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrNoFrame is returned by Latest when no frame was published
	// within the wait budget.
	ErrNoFrame = errors.New("framecache: no frame available")

	// ErrClosed is returned on operations against a closed cache.
	ErrClosed = errors.New("framecache: cache closed")
)

// Frame is one timestamped, sequenced image captured from a single camera.
//
// Data is interleaved RGB (RGBRGBRGB...), len = Width * Height * 3.
// Frames are immutable once produced: producers hand ownership to the
// cache, consumers receive copies of the struct sharing the pixel buffer.
type Frame struct {
	CameraID  int
	Seq       uint64
	Timestamp time.Time
	Width     int
	Height    int
	Data      []byte
	TraceID   string
}

// Cache is a single-slot latest-frame holder for one camera.
//
// Written by exactly one producer (the capture loop), read by any number
// of consumers. The stored frame's Seq is non-decreasing over time because
// production is single-threaded per camera.
type Cache struct {
	mu        sync.RWMutex
	frame     *Frame
	published uint64
	closed    bool

	first chan struct{} // closed on first publish
	done  chan struct{} // closed on Close
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{
		first: make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// Publish stores frame, replacing any unread previous frame.
func (c *Cache) Publish(frame Frame) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	initial := c.frame == nil
	c.frame = &frame
	c.published++
	c.mu.Unlock()

	if initial {
		close(c.first)
	}
	return nil
}

// TryLatest returns the most recently published frame without blocking.
func (c *Cache) TryLatest() (Frame, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.frame == nil {
		return Frame{}, false
	}
	return *c.frame, true
}

// Latest returns the most recently published frame. If no frame has ever
// been published it waits up to timeout for the first one; it never blocks
// once a frame exists. Returns ErrNoFrame on timeout and ErrClosed if the
// cache is closed while waiting.
func (c *Cache) Latest(timeout time.Duration) (Frame, error) {
	if f, ok := c.TryLatest(); ok {
		return f, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-c.first:
		f, _ := c.TryLatest()
		return f, nil
	case <-c.done:
		return Frame{}, ErrClosed
	case <-timer.C:
		// Late arrival between the fast path and the timer firing.
		if f, ok := c.TryLatest(); ok {
			return f, nil
		}
		return Frame{}, ErrNoFrame
	}
}

// Published returns the total number of frames published into the cache.
func (c *Cache) Published() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.published
}

// Close shuts down the cache and wakes all waiters. Idempotent.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
}
