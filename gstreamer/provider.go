// Package gstreamer backs camrig with GStreamer pipelines built through
// go-gst: V4L2 device capture and container recording. It requires the
// gstreamer1.0 runtime (base, good and libav plugin sets).
package gstreamer

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/e7canasta/camrig"
)

// Provider opens V4L2 devices through a GStreamer capture pipeline.
//
// Pipeline structure:
//
//	v4l2src → videoconvert → videoscale → videorate → capsfilter → appsink
//
// The appsink keeps only the newest buffer, so reads always observe a
// frame close to live regardless of consumer pacing.
type Provider struct {
	// DevicePattern expands a camera id into a device path
	// (default "/dev/video%d")
	DevicePattern string
}

// OpenDevice builds and starts the capture pipeline for camera id.
func (p Provider) OpenDevice(id, width, height int, fps float64) (camrig.Device, error) {
	gst.Init(nil)

	pattern := p.DevicePattern
	if pattern == "" {
		pattern = "/dev/video%d"
	}
	path := fmt.Sprintf(pattern, id)

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, fmt.Errorf("gstreamer: create pipeline: %w", err)
	}

	src, err := gst.NewElement("v4l2src")
	if err != nil {
		return nil, fmt.Errorf("gstreamer: create v4l2src: %w", err)
	}
	src.SetProperty("device", path)

	converter, err := gst.NewElement("videoconvert")
	if err != nil {
		return nil, fmt.Errorf("gstreamer: create videoconvert: %w", err)
	}

	scaler, err := gst.NewElement("videoscale")
	if err != nil {
		return nil, fmt.Errorf("gstreamer: create videoscale: %w", err)
	}

	videorate, err := gst.NewElement("videorate")
	if err != nil {
		return nil, fmt.Errorf("gstreamer: create videorate: %w", err)
	}
	videorate.SetProperty("drop-only", true)
	videorate.SetProperty("skip-to-first", true)

	capsfilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return nil, fmt.Errorf("gstreamer: create capsfilter: %w", err)
	}
	capsfilter.SetProperty("caps", gst.NewCapsFromString(buildCaps(width, height, fps)))

	appsink, err := app.NewAppSink()
	if err != nil {
		return nil, fmt.Errorf("gstreamer: create appsink: %w", err)
	}
	appsink.SetProperty("sync", false)    // no clock sync, deliver as fast as produced
	appsink.SetProperty("max-buffers", 1) // keep only the latest frame
	appsink.SetProperty("drop", true)

	pipeline.AddMany(src, converter, scaler, videorate, capsfilter, appsink.Element)
	if err := gst.ElementLinkMany(src, converter, scaler, videorate, capsfilter, appsink.Element); err != nil {
		return nil, fmt.Errorf("gstreamer: link pipeline: %w", err)
	}

	d := &device{
		path:     path,
		width:    width,
		height:   height,
		pipeline: pipeline,
		frames:   make(chan []byte, 1),
		timeout:  readTimeout(fps),
	}
	appsink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: func(sink *app.Sink) gst.FlowReturn {
			return d.onNewSample(sink)
		},
	})

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		pipeline.SetState(gst.StateNull)
		return nil, fmt.Errorf("gstreamer: start pipeline for %s: %w", path, err)
	}
	return d, nil
}

type device struct {
	path     string
	width    int
	height   int
	pipeline *gst.Pipeline
	frames   chan []byte
	timeout  time.Duration
	dropped  atomic.Uint64
	closed   atomic.Bool
}

// onNewSample copies the sample out of GStreamer-owned memory and hands
// it to the reader. With a full channel the new frame is dropped; the
// appsink's own drop=true already keeps the pipeline side fresh.
func (d *device) onNewSample(sink *app.Sink) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		return gst.FlowOK
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		return gst.FlowOK
	}
	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	if len(data) == 0 {
		buffer.Unmap()
		return gst.FlowOK
	}
	out := make([]byte, len(data))
	copy(out, data)
	buffer.Unmap()

	select {
	case d.frames <- out:
	default:
		d.dropped.Add(1)
	}
	return gst.FlowOK
}

func (d *device) ReadFrame() ([]byte, error) {
	if d.closed.Load() {
		return nil, fmt.Errorf("gstreamer: %s closed", d.path)
	}
	select {
	case data := <-d.frames:
		if want := d.width * d.height * 3; len(data) != want {
			return nil, fmt.Errorf("gstreamer: %s: frame size %d, want %d", d.path, len(data), want)
		}
		return data, nil
	case <-time.After(d.timeout):
		return nil, fmt.Errorf("gstreamer: %s: no frame within %v", d.path, d.timeout)
	}
}

func (d *device) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := d.pipeline.SetState(gst.StateNull); err != nil {
		return fmt.Errorf("gstreamer: stop pipeline for %s: %w", d.path, err)
	}
	return nil
}

// readTimeout bounds a single read to a few frame periods so a stalled
// pipeline surfaces as a read error instead of a hang.
func readTimeout(fps float64) time.Duration {
	t := time.Duration(3 * float64(time.Second) / fps)
	if t < time.Second {
		t = time.Second
	}
	return t
}

// buildCaps builds the caps string locking format, geometry and rate.
// Fractional rates map to 1/N: 0.5 fps becomes framerate=1/2.
func buildCaps(width, height int, fps float64) string {
	numerator, denominator := 1, 1
	if fps < 1.0 {
		denominator = int(1.0 / fps)
	} else {
		numerator = int(fps)
	}
	return fmt.Sprintf(
		"video/x-raw,format=RGB,width=%d,height=%d,framerate=%d/%d",
		width, height, numerator, denominator,
	)
}
