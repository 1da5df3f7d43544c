package camrig

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/e7canasta/camrig/internal/framecache"
	"github.com/e7canasta/camrig/internal/fpsmeter"
)

const (
	defaultMaxReadRetries   = 5
	defaultReadRetryBackoff = 50 * time.Millisecond

	// fpsMeterWindow is sized for a few seconds of history at typical rates.
	fpsMeterWindow = 60
)

// Camera owns one capture device and the goroutine that drives it. The
// capture loop publishes every frame to a latest-frame cache; when a
// recorder is attached, frames are also handed to its queue. All methods
// are safe for concurrent use.
type Camera struct {
	cfg      CameraConfig
	provider DeviceProvider

	maxRetries int
	backoff    time.Duration

	mu      sync.Mutex
	state   State
	device  Device
	lastErr error
	cache   *framecache.Cache
	stopCh  chan struct{}

	meter *fpsmeter.Meter
	rec   atomic.Pointer[recorder]

	seq        atomic.Uint64
	frameCount atomic.Uint64
	lastDrops  atomic.Uint64 // drop count of the most recently detached recorder

	wg sync.WaitGroup
}

// NewCamera validates cfg and returns a camera in StateClosed. The device
// is not touched until Open.
func NewCamera(cfg CameraConfig, provider DeviceProvider) (*Camera, error) {
	if provider == nil {
		return nil, &ConfigError{Reason: "nil device provider"}
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, &ConfigError{Reason: fmt.Sprintf("camera %d: invalid resolution %dx%d", cfg.ID, cfg.Width, cfg.Height)}
	}
	if cfg.FPS <= 0 {
		return nil, &ConfigError{Reason: fmt.Sprintf("camera %d: invalid fps %.2f", cfg.ID, cfg.FPS)}
	}
	return &Camera{
		cfg:        cfg,
		provider:   provider,
		maxRetries: defaultMaxReadRetries,
		backoff:    defaultReadRetryBackoff,
		state:      StateClosed,
		cache:      framecache.New(),
		meter:      fpsmeter.New(fpsMeterWindow),
	}, nil
}

// Config returns the camera's configuration.
func (c *Camera) Config() CameraConfig {
	return c.cfg
}

// Open claims the capture device. It is a no-op if the camera is already
// open, and the only way out of StateError.
func (c *Camera) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateOpen, StateCapturing, StateRecording:
		return nil
	}

	if c.device != nil {
		// Recovering from StateError: the failed loop's device is still
		// claimed. Release it before asking the provider for a new one.
		if err := c.device.Close(); err != nil {
			slog.Warn("capture: stale device close failed", "camera", c.cfg.ID, "error", err)
		}
		c.device = nil
	}

	dev, err := c.provider.OpenDevice(c.cfg.ID, c.cfg.Width, c.cfg.Height, c.cfg.FPS)
	if err != nil {
		c.state = StateError
		c.lastErr = &DeviceOpenError{CameraID: c.cfg.ID, Err: err}
		slog.Error("capture: device open failed", "camera", c.cfg.ID, "error", err)
		return c.lastErr
	}

	if c.state == StateClosed {
		// A fresh cache: the previous one was closed to wake its waiters.
		c.cache = framecache.New()
	}
	c.device = dev
	c.state = StateOpen
	c.lastErr = nil
	c.meter.Reset()
	slog.Info("capture: device opened",
		"camera", c.cfg.ID, "width", c.cfg.Width, "height", c.cfg.Height, "fps", c.cfg.FPS)
	return nil
}

// Start launches the capture loop. The camera must be open.
func (c *Camera) Start() error {
	c.mu.Lock()
	if c.state == StateCapturing || c.state == StateRecording {
		c.mu.Unlock()
		return nil
	}
	if c.state != StateOpen {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("camrig: camera %d not open (state %s)", c.cfg.ID, state)
	}
	c.state = StateCapturing
	c.stopCh = make(chan struct{})
	dev, stop, cache := c.device, c.stopCh, c.cache
	c.mu.Unlock()

	c.wg.Add(1)
	go c.captureLoop(dev, cache, stop)
	slog.Info("capture: loop started", "camera", c.cfg.ID, "interval", c.cfg.Interval())
	return nil
}

func (c *Camera) captureLoop(dev Device, cache *framecache.Cache, stop <-chan struct{}) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.Interval())
	defer ticker.Stop()

	retries := 0
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		data, err := dev.ReadFrame()
		if err != nil {
			retries++
			slog.Warn("capture: frame read failed",
				"camera", c.cfg.ID, "attempt", retries, "max", c.maxRetries, "error", err)
			if retries > c.maxRetries {
				c.fail(&CaptureReadError{CameraID: c.cfg.ID, Attempts: retries, Err: err})
				return
			}
			select {
			case <-stop:
				return
			case <-time.After(c.backoff):
			}
			continue
		}
		retries = 0

		now := time.Now()
		frame := Frame{
			CameraID:  c.cfg.ID,
			Seq:       c.seq.Add(1),
			Timestamp: now,
			Width:     c.cfg.Width,
			Height:    c.cfg.Height,
			Data:      data,
			TraceID:   uuid.New().String(),
		}
		if err := cache.Publish(frame); err != nil {
			// Cache closed from under us: the camera is shutting down.
			return
		}
		c.frameCount.Add(1)
		c.meter.Tick(now)

		if r := c.rec.Load(); r != nil {
			if r.failed() {
				if c.rec.CompareAndSwap(r, nil) {
					c.lastDrops.Store(r.drops())
				}
				c.demoteRecording()
				slog.Warn("capture: recorder failed, detached",
					"camera", c.cfg.ID, "error", r.lastErr())
			} else {
				r.submit(frame)
			}
		}
		slog.Debug("capture: frame published",
			"camera", c.cfg.ID, "seq", frame.Seq, "trace_id", frame.TraceID)
	}
}

// fail parks the camera in StateError. The capture loop has already exited
// when this is observed through Status.
func (c *Camera) fail(err error) {
	c.mu.Lock()
	c.state = StateError
	c.lastErr = err
	c.mu.Unlock()
	slog.Error("capture: camera out of service", "camera", c.cfg.ID, "error", err)
}

// Stop halts the capture loop and waits for it to exit. The device stays
// open. Stopping an idle camera is a no-op.
func (c *Camera) Stop() {
	c.mu.Lock()
	if c.stopCh != nil {
		close(c.stopCh)
		c.stopCh = nil
	}
	c.mu.Unlock()

	c.wg.Wait()

	c.mu.Lock()
	if c.state == StateCapturing || c.state == StateRecording {
		c.state = StateOpen
	}
	c.mu.Unlock()
}

// Close stops the loop, releases the device and wakes any frame waiters.
// Closing an already-closed camera returns nil.
func (c *Camera) Close() error {
	c.Stop()

	c.mu.Lock()
	dev := c.device
	cache := c.cache
	c.device = nil
	c.state = StateClosed
	c.mu.Unlock()

	cache.Close()
	if dev == nil {
		return nil
	}
	if err := dev.Close(); err != nil {
		slog.Error("capture: device close failed", "camera", c.cfg.ID, "error", err)
		return fmt.Errorf("camrig: close camera %d: %w", c.cfg.ID, err)
	}
	slog.Info("capture: camera closed", "camera", c.cfg.ID)
	return nil
}

// State returns the current lifecycle state.
func (c *Camera) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Status returns a health snapshot.
func (c *Camera) Status() Status {
	c.mu.Lock()
	state := c.state
	errStr := ""
	if c.lastErr != nil {
		errStr = c.lastErr.Error()
	}
	c.mu.Unlock()

	s := Status{
		CameraID:   c.cfg.ID,
		State:      state,
		FPS:        c.meter.Rate(),
		FrameCount: c.frameCount.Load(),
		Recording:  state == StateRecording,
		Err:        errStr,
	}
	// A detached recorder's drops stay visible until the next session.
	if r := c.rec.Load(); r != nil {
		s.Dropped = r.drops()
	} else {
		s.Dropped = c.lastDrops.Load()
	}
	return s
}

// TryLatest returns the most recent frame without blocking.
func (c *Camera) TryLatest() (Frame, bool) {
	return c.currentCache().TryLatest()
}

// Latest returns the most recent frame, waiting up to timeout for the
// first one after a fresh start. It returns ErrNoFrame on timeout.
func (c *Camera) Latest(timeout time.Duration) (Frame, error) {
	return c.currentCache().Latest(timeout)
}

func (c *Camera) currentCache() *framecache.Cache {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache
}

// attachRecorder wires r into the capture loop. Frames start flowing into
// r's queue once its gate is released.
func (c *Camera) attachRecorder(r *recorder) {
	c.lastDrops.Store(0)
	c.rec.Store(r)
	c.mu.Lock()
	if c.state == StateCapturing {
		c.state = StateRecording
	}
	c.mu.Unlock()
}

// detachRecorder unwires the current recorder, if any, and returns it.
func (c *Camera) detachRecorder() *recorder {
	r := c.rec.Swap(nil)
	if r != nil {
		c.lastDrops.Store(r.drops())
	}
	c.demoteRecording()
	return r
}

func (c *Camera) demoteRecording() {
	c.mu.Lock()
	if c.state == StateRecording {
		c.state = StateCapturing
	}
	c.mu.Unlock()
}
