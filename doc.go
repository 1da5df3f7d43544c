// Package camrig captures, records and visualizes synchronized video from
// multiple cameras.
//
// Each camera runs its own capture goroutine paced at the configured FPS.
// Every captured frame lands in a per-camera latest-frame cache that
// readers sample without ever blocking capture; recording and display are
// fully decoupled consumers of that cache.
//
// # Quick Start
//
//	configs := []camrig.CameraConfig{
//	    {ID: 0, Width: 640, Height: 480, FPS: 30},
//	    {ID: 1, Width: 640, Height: 480, FPS: 30},
//	}
//
//	ctl, err := camrig.NewController(camrig.SyntheticProvider{}, configs, camrig.Options{
//	    SavePath: "/var/lib/camrig",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer ctl.Close()
//
//	if err := ctl.Start(context.Background()); err != nil {
//	    log.Printf("some cameras failed: %v", err)
//	}
//
//	info, err := ctl.StartRecording("experiment-42")
//	// ... capture runs ...
//	summary, err := ctl.StopRecording()
//
// # Recording Sessions
//
// StartRecording arms one recorder per capturing camera behind a shared
// barrier and releases the barrier once, so the first recorded frames of
// all cameras lie within one frame interval of each other. Each recorder
// feeds its encoder from a small bounded queue; when encoding falls
// behind, the oldest queued frame is dropped so recordings stay close to
// live instead of drifting. StopRecording drains every queue and
// finalizes every file before it returns.
//
// One file per camera is produced, named <session>_cam<id>.<container>.
// The default encoder is the pure-Go AVI/MJPEG writer (MJPEGProvider);
// the opencv subpackage provides a VideoWriter-backed alternative behind
// the same EncoderProvider interface. Capture devices come from any
// DeviceProvider: synthetic (built in), opencv, or gstreamer.
//
// # Frame Format
//
// Frames carry raw interleaved RGB bytes (RGBRGBRGB...), with
// len(Data) = Width * Height * 3. Every frame has a monotonically
// increasing per-camera sequence number, a capture timestamp and a trace
// id for log correlation.
//
// # Visualization
//
// Visualize composes the latest frame of every camera into a fixed-size
// grid and pushes the result to a FrameSink at a steady cadence. The
// compositor only samples caches: a slow or failed camera leaves its
// cell black (or stale) and never stalls the loop. With a zero Layout
// the grid shape is chosen automatically (2 cameras render 1x2, 5
// render 2x3).
//
// # Failure Isolation
//
// Cameras fail independently. A device that cannot be opened, or whose
// reads keep failing, is parked in StateError while the rest of the set
// keeps capturing; an encoder error stops only that camera's recording.
// Status() exposes per-camera state, measured FPS, frame counts and drop
// counts for monitoring.
//
// # Thread Safety
//
// All Controller and Camera methods are safe for concurrent use. Close
// is idempotent. The capture hot path is lock-free except for one
// RWMutex-guarded cache slot per camera.
//
// # Limitations
//
//   - RGB frames only (no YUV or compressed capture formats)
//   - One recording session at a time per controller
//   - The AVI/MJPEG writer caps files at 4GB (container limit)
package camrig
