package camrig

import (
	"math"
	"time"

	"github.com/e7canasta/camrig/internal/framecache"
)

// Frame is one timestamped, sequenced image captured from a single camera.
//
// Data is interleaved RGB (RGBRGBRGB...), len = Width * Height * 3.
// Composite frames produced by the Compositor use CameraID -1.
type Frame = framecache.Frame

// CameraConfig describes one capture device.
type CameraConfig struct {
	// ID is the device identifier, unique across the set
	ID int
	// Width in pixels
	Width int
	// Height in pixels
	Height int
	// FPS is the target capture rate in frames per second
	FPS float64
}

// Interval returns the capture period derived from FPS.
func (c CameraConfig) Interval() time.Duration {
	if c.FPS <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / c.FPS)
}

// State is the lifecycle state of a camera.
type State int32

const (
	// StateClosed means the device is released
	StateClosed State = iota
	// StateOpen means the device is claimed but the capture loop is not running
	StateOpen
	// StateCapturing means the capture loop is producing frames
	StateCapturing
	// StateRecording means captured frames are also being persisted
	StateRecording
	// StateError means the camera is out of service until explicitly re-opened
	StateError
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateCapturing:
		return "capturing"
	case StateRecording:
		return "recording"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Status is a read-only health snapshot of one camera.
type Status struct {
	// CameraID identifies the camera
	CameraID int
	// State is the current lifecycle state
	State State
	// FPS is the measured capture rate over a recent window
	FPS float64
	// FrameCount is the total number of frames captured
	FrameCount uint64
	// Recording reports whether a recording is active for this camera
	Recording bool
	// Dropped is the number of frames evicted from the active recording queue
	Dropped uint64
	// Err describes the failure for cameras in StateError, empty otherwise
	Err string
}

// Layout is the grid shape of the composed view.
type Layout struct {
	// Rows in the grid
	Rows int
	// Cols in the grid
	Cols int
}

// Capacity returns the number of cells in the grid.
func (l Layout) Capacity() int {
	return l.Rows * l.Cols
}

// AutoLayout returns a near-square grid holding n cameras, with at most as
// many rows as columns: 2 cameras fit 1x2, 3 fit 2x2, 5 fit 2x3.
func AutoLayout(n int) Layout {
	if n <= 0 {
		return Layout{Rows: 1, Cols: 1}
	}
	cols := int(math.Ceil(math.Sqrt(float64(n))))
	rows := (n + cols - 1) / cols
	return Layout{Rows: rows, Cols: cols}
}

// FrameSink receives composed frames from a visualize loop.
type FrameSink interface {
	// Display consumes one composite frame. Returning an error ends the loop.
	Display(Frame) error
}

// FrameSinkFunc adapts a function to the FrameSink interface.
type FrameSinkFunc func(Frame) error

// Display calls f.
func (f FrameSinkFunc) Display(frame Frame) error {
	return f(frame)
}

// View configures a visualize loop.
type View struct {
	// Layout is the grid shape; the zero value selects AutoLayout
	Layout Layout
	// Scale resizes each camera cell; 0 selects the default (0.5)
	Scale float64
	// Interval is the display cadence; 0 selects the default (100ms)
	Interval time.Duration
	// Sink receives the composed frames (required)
	Sink FrameSink
}

// SessionInfo describes a recording session at start time.
type SessionInfo struct {
	// ID is a unique session identifier
	ID string
	// Name is the caller-provided session name used in output filenames
	Name string
	// StartedAt is when the start barrier was released
	StartedAt time.Time
	// Container is the output container extension (e.g. "avi", "mp4")
	Container string
	// Cameras lists the ids actually recording
	Cameras []int
	// Skipped lists cameras excluded from the session and why
	Skipped []SkippedCamera
}

// SkippedCamera reports a camera excluded from a recording session.
type SkippedCamera struct {
	// CameraID identifies the camera
	CameraID int
	// Reason describes why it was skipped
	Reason string
}

// RecordingResult is the per-camera outcome of a finished session.
type RecordingResult struct {
	// CameraID identifies the camera
	CameraID int
	// Path is the output file
	Path string
	// Frames is the number of frames written
	Frames uint64
	// Dropped is the number of frames evicted from the queue
	Dropped uint64
	// Err is the encode failure that ended this camera's recording, if any
	Err error
}

// SessionSummary is returned by StopRecording once all data is durable.
type SessionSummary struct {
	// Name is the session name
	Name string
	// Duration is the time between barrier release and stop
	Duration time.Duration
	// Cameras holds one result per recording camera
	Cameras []RecordingResult
}
