package camrig

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Options configures a Controller beyond the per-camera settings.
type Options struct {
	// SavePath is the directory receiving recordings and snapshots. It
	// must exist before StartRecording or Snapshot is called.
	SavePath string
	// Encoder opens recording encoders; nil selects MJPEGProvider
	Encoder EncoderProvider
	// Resizer scales frames for composition; nil selects NearestResizer
	Resizer Resizer
	// SnapshotFormat is "png" (default) or "jpeg"
	SnapshotFormat string
	// JPEGQuality applies to jpeg snapshots and defaults to 90
	JPEGQuality int
	// QueueSize is the per-camera recording queue capacity; 0 selects 32
	QueueSize int
	// MaxReadRetries is how many consecutive read failures a capture loop
	// tolerates before parking the camera in StateError; 0 selects 5
	MaxReadRetries int
	// ReadRetryBackoff is the pause between read retries; 0 selects 50ms
	ReadRetryBackoff time.Duration
}

// Controller coordinates a set of cameras as one unit: shared lifecycle,
// synchronized recording sessions, composed visualization. Methods are
// safe for concurrent use.
type Controller struct {
	opts Options
	cams []*Camera // ascending camera id
	byID map[int]*Camera

	mu      sync.Mutex
	session *session

	closed atomic.Bool
}

// session tracks one active recording run.
type session struct {
	info      SessionInfo
	gate      chan struct{}
	cams      []*Camera
	recorders []*recorder
}

// NewController validates the configuration and constructs all cameras.
// No device is opened until Start.
func NewController(provider DeviceProvider, configs []CameraConfig, opts Options) (*Controller, error) {
	if provider == nil {
		return nil, &ConfigError{Reason: "nil device provider"}
	}
	if len(configs) == 0 {
		return nil, &ConfigError{Reason: "at least one camera required"}
	}
	if opts.Encoder == nil {
		opts.Encoder = MJPEGProvider{}
	}
	if opts.Resizer == nil {
		opts.Resizer = NearestResizer()
	}
	switch opts.SnapshotFormat {
	case "":
		opts.SnapshotFormat = "png"
	case "png", "jpeg", "jpg":
	default:
		return nil, &ConfigError{Reason: fmt.Sprintf("unsupported snapshot format %q", opts.SnapshotFormat)}
	}
	if opts.JPEGQuality == 0 {
		opts.JPEGQuality = defaultJPEGQuality
	}
	if opts.JPEGQuality < 1 || opts.JPEGQuality > 100 {
		return nil, &ConfigError{Reason: fmt.Sprintf("jpeg quality %d out of range 1-100", opts.JPEGQuality)}
	}
	if opts.QueueSize == 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.QueueSize < 0 {
		return nil, &ConfigError{Reason: fmt.Sprintf("negative queue size %d", opts.QueueSize)}
	}
	if opts.MaxReadRetries == 0 {
		opts.MaxReadRetries = defaultMaxReadRetries
	}
	if opts.ReadRetryBackoff == 0 {
		opts.ReadRetryBackoff = defaultReadRetryBackoff
	}

	byID := make(map[int]*Camera, len(configs))
	cams := make([]*Camera, 0, len(configs))
	for _, cfg := range configs {
		if _, dup := byID[cfg.ID]; dup {
			return nil, &ConfigError{Reason: fmt.Sprintf("duplicate camera id %d", cfg.ID)}
		}
		cam, err := NewCamera(cfg, provider)
		if err != nil {
			return nil, err
		}
		cam.maxRetries = opts.MaxReadRetries
		cam.backoff = opts.ReadRetryBackoff
		byID[cfg.ID] = cam
		cams = append(cams, cam)
	}
	sort.Slice(cams, func(i, j int) bool { return cams[i].cfg.ID < cams[j].cfg.ID })

	slog.Info("controller: configured", "cameras", len(cams), "save_path", opts.SavePath)
	return &Controller{opts: opts, cams: cams, byID: byID}, nil
}

// Camera returns the camera with the given id.
func (c *Controller) Camera(id int) (*Camera, bool) {
	cam, ok := c.byID[id]
	return cam, ok
}

// Start opens every camera and launches its capture loop. Cameras that
// fail to open are parked in StateError; the rest keep running. The
// returned error joins all per-camera failures, so a nil error means the
// whole set is capturing.
func (c *Controller) Start(ctx context.Context) error {
	if c.closed.Load() {
		return ErrControllerClosed
	}
	var errs []error
	for _, cam := range c.cams {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := cam.Open(); err != nil {
			errs = append(errs, err)
			continue
		}
		if err := cam.Start(); err != nil {
			errs = append(errs, err)
		}
	}
	slog.Info("controller: started", "cameras", len(c.cams), "failed", len(errs))
	return errors.Join(errs...)
}

// StartRecording begins a synchronized recording session across every
// capturing camera. All recorders are attached behind a shared barrier
// that is released once, so the first recorded frames of all cameras lie
// within one frame interval of each other; each recording is seeded with
// its camera's newest cached frame. Cameras not in StateCapturing are
// skipped and listed in the returned SessionInfo.
func (c *Controller) StartRecording(sessionName string) (*SessionInfo, error) {
	if c.closed.Load() {
		return nil, ErrControllerClosed
	}
	if sessionName == "" {
		return nil, &ConfigError{Reason: "empty session name"}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		return nil, ErrSessionActive
	}

	// Failing on a bad directory here beats failing on every frame later.
	fi, err := os.Stat(c.opts.SavePath)
	if err != nil || !fi.IsDir() {
		return nil, &ConfigError{Reason: fmt.Sprintf("save path %q is not a directory", c.opts.SavePath)}
	}

	sess := &session{
		gate: make(chan struct{}),
		info: SessionInfo{
			ID:        uuid.New().String(),
			Name:      sessionName,
			Container: c.opts.Encoder.Container(),
		},
	}

	for _, cam := range c.cams {
		if state := cam.State(); state != StateCapturing {
			sess.info.Skipped = append(sess.info.Skipped, SkippedCamera{
				CameraID: cam.cfg.ID,
				Reason:   fmt.Sprintf("state %s", state),
			})
			slog.Warn("controller: camera skipped for session",
				"session", sessionName, "camera", cam.cfg.ID, "state", state)
			continue
		}
		name := fmt.Sprintf("%s_cam%d.%s", sessionName, cam.cfg.ID, sess.info.Container)
		path := filepath.Join(c.opts.SavePath, name)
		enc, err := c.opts.Encoder.NewEncoder(path, cam.cfg.Width, cam.cfg.Height, cam.cfg.FPS)
		if err != nil {
			sess.info.Skipped = append(sess.info.Skipped, SkippedCamera{
				CameraID: cam.cfg.ID,
				Reason:   fmt.Sprintf("open encoder: %v", err),
			})
			slog.Error("controller: encoder open failed",
				"session", sessionName, "camera", cam.cfg.ID, "path", path, "error", err)
			continue
		}
		rec := newRecorder(cam.cfg.ID, path, enc, sess.gate, c.opts.QueueSize)
		cam.attachRecorder(rec)
		sess.cams = append(sess.cams, cam)
		sess.recorders = append(sess.recorders, rec)
		sess.info.Cameras = append(sess.info.Cameras, cam.cfg.ID)
	}

	if len(sess.recorders) == 0 {
		return nil, fmt.Errorf("camrig: no camera available to record session %q", sessionName)
	}

	// Every recorder is armed; release them together. Each file is then
	// seeded with its camera's newest cached frame, so even a session
	// stopped before the next capture tick holds one frame per camera.
	sess.info.StartedAt = time.Now()
	close(sess.gate)
	for i, cam := range sess.cams {
		if f, ok := cam.TryLatest(); ok {
			sess.recorders[i].submit(f)
		}
	}
	c.session = sess

	slog.Info("controller: recording started",
		"session", sessionName, "id", sess.info.ID,
		"cameras", len(sess.info.Cameras), "skipped", len(sess.info.Skipped))
	info := sess.info
	return &info, nil
}

// StopRecording ends the active session, flushes every queue and
// finalizes every file. It blocks until all recordings are durable and
// returns one result per camera. Without an active session it returns
// (nil, nil).
func (c *Controller) StopRecording() (*SessionSummary, error) {
	c.mu.Lock()
	sess := c.session
	c.session = nil
	c.mu.Unlock()
	if sess == nil {
		return nil, nil
	}

	for _, cam := range sess.cams {
		cam.detachRecorder()
	}

	summary := &SessionSummary{
		Name:     sess.info.Name,
		Duration: time.Since(sess.info.StartedAt),
	}
	var errs []error
	for _, rec := range sess.recorders {
		if err := rec.stop(); err != nil {
			errs = append(errs, err)
		}
		summary.Cameras = append(summary.Cameras, rec.result())
	}
	slog.Info("controller: recording stopped",
		"session", sess.info.Name, "duration", summary.Duration, "failed", len(errs))
	return summary, errors.Join(errs...)
}

// Snapshot writes the latest frame of every camera as an image file named
// base_cam<id>_<timestamp>.<format> under SavePath. Cameras without a
// frame are silently skipped.
func (c *Controller) Snapshot(base string) error {
	if c.closed.Load() {
		return ErrControllerClosed
	}
	if base == "" {
		base = "snapshot"
	}
	fi, err := os.Stat(c.opts.SavePath)
	if err != nil || !fi.IsDir() {
		return &ConfigError{Reason: fmt.Sprintf("save path %q is not a directory", c.opts.SavePath)}
	}

	stamp := time.Now().Format(frameTimestampFormat)
	var errs []error
	saved := 0
	for _, cam := range c.cams {
		f, ok := cam.TryLatest()
		if !ok {
			continue
		}
		name := fmt.Sprintf("%s_cam%d_%s.%s", base, cam.cfg.ID, stamp, c.opts.SnapshotFormat)
		path := filepath.Join(c.opts.SavePath, name)
		if err := SaveFrame(path, f, c.opts.SnapshotFormat, c.opts.JPEGQuality); err != nil {
			errs = append(errs, fmt.Errorf("camera %d: %w", cam.cfg.ID, err))
			continue
		}
		saved++
	}
	slog.Info("controller: snapshot saved", "base", base, "cameras", saved)
	return errors.Join(errs...)
}

// Visualize runs a display loop composing all cameras into a grid and
// pushing frames to view.Sink until ctx is done or the sink fails. It
// blocks for the duration of the loop.
func (c *Controller) Visualize(ctx context.Context, view View) error {
	if c.closed.Load() {
		return ErrControllerClosed
	}
	if view.Sink == nil {
		return &ConfigError{Reason: "visualize requires a frame sink"}
	}
	layout := view.Layout
	if layout == (Layout{}) {
		layout = AutoLayout(len(c.cams))
	}
	scale := view.Scale
	if scale == 0 {
		scale = defaultScale
	}
	interval := view.Interval
	if interval <= 0 {
		interval = defaultDisplayInterval
	}

	comp, err := NewCompositor(c.cams, layout, scale, c.opts.Resizer)
	if err != nil {
		return err
	}
	w, h := comp.Bounds()
	slog.Info("controller: visualize loop started",
		"rows", layout.Rows, "cols", layout.Cols, "output", fmt.Sprintf("%dx%d", w, h), "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("controller: visualize loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := view.Sink.Display(comp.Render()); err != nil {
				return fmt.Errorf("camrig: display sink: %w", err)
			}
		}
	}
}

// Status returns one snapshot per camera, in ascending id order.
func (c *Controller) Status() []Status {
	out := make([]Status, 0, len(c.cams))
	for _, cam := range c.cams {
		out = append(out, cam.Status())
	}
	return out
}

// Close stops any active session, then stops and releases every camera.
// Per-camera teardown failures are collected, never short-circuited, so
// one stuck device cannot leak the others. Close is idempotent; repeated
// calls return nil.
func (c *Controller) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	slog.Info("controller: closing")

	var errs []error
	if _, err := c.StopRecording(); err != nil {
		errs = append(errs, err)
	}
	for _, cam := range c.cams {
		if err := cam.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	err := errors.Join(errs...)
	if err != nil {
		slog.Warn("controller: closed with errors", "error", err)
	} else {
		slog.Info("controller: closed")
	}
	return err
}
