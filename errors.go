package camrig

import (
	"errors"
	"fmt"

	"github.com/e7canasta/camrig/internal/framecache"
)

var (
	// ErrNoFrame is returned when a camera has not produced a frame yet.
	ErrNoFrame = framecache.ErrNoFrame

	// ErrCacheClosed is returned by frame reads on a closed camera.
	ErrCacheClosed = framecache.ErrClosed

	// ErrSessionActive is returned by StartRecording while a session is running.
	ErrSessionActive = errors.New("camrig: recording session already active")

	// ErrControllerClosed is returned by operations on a closed controller.
	ErrControllerClosed = errors.New("camrig: controller closed")
)

// DeviceOpenError reports a camera whose device could not be opened.
type DeviceOpenError struct {
	// CameraID identifies the camera
	CameraID int
	// Err is the underlying backend error
	Err error
}

func (e *DeviceOpenError) Error() string {
	return fmt.Sprintf("camrig: open camera %d: %v", e.CameraID, e.Err)
}

func (e *DeviceOpenError) Unwrap() error { return e.Err }

// CaptureReadError reports a capture loop that gave up after repeated
// failed reads. The camera is in StateError when this is observed.
type CaptureReadError struct {
	// CameraID identifies the camera
	CameraID int
	// Attempts is the number of consecutive reads that failed
	Attempts int
	// Err is the last read error
	Err error
}

func (e *CaptureReadError) Error() string {
	return fmt.Sprintf("camrig: camera %d read failed after %d attempts: %v", e.CameraID, e.Attempts, e.Err)
}

func (e *CaptureReadError) Unwrap() error { return e.Err }

// EncodeError reports a recording that failed while writing frames. Only
// the affected camera's recording stops; capture continues.
type EncodeError struct {
	// CameraID identifies the camera
	CameraID int
	// Path is the output file being written
	Path string
	// Err is the underlying encoder error
	Err error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("camrig: camera %d encode to %s: %v", e.CameraID, e.Path, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// ConfigError reports invalid configuration detected before any device
// or file is touched.
type ConfigError struct {
	// Reason describes what is invalid
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("camrig: invalid configuration: %s", e.Reason)
}
