// Package opencv backs camrig with OpenCV: local device capture through
// VideoCapture, recording through VideoWriter, bilinear resizing and an
// on-screen preview window. It requires the OpenCV runtime (via gocv).
package opencv

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/e7canasta/camrig"
)

// Provider opens local capture devices (V4L2 on Linux, AVFoundation on
// macOS) through OpenCV.
type Provider struct{}

// OpenDevice claims device id and requests the configured geometry and
// rate. Drivers are free to ignore the request; frames are normalized to
// the requested size on read.
func (Provider) OpenDevice(id, width, height int, fps float64) (camrig.Device, error) {
	cam, err := gocv.VideoCaptureDevice(id)
	if err != nil {
		return nil, fmt.Errorf("opencv: open device %d: %w", id, err)
	}
	cam.Set(gocv.VideoCaptureFrameWidth, float64(width))
	cam.Set(gocv.VideoCaptureFrameHeight, float64(height))
	cam.Set(gocv.VideoCaptureFPS, fps)
	// A one-frame driver buffer keeps reads close to live.
	cam.Set(gocv.VideoCaptureBufferSize, 1)

	if !cam.IsOpened() {
		cam.Close()
		return nil, fmt.Errorf("opencv: device %d did not open", id)
	}
	return &device{
		id:     id,
		width:  width,
		height: height,
		cam:    cam,
		bgr:    gocv.NewMat(),
		rgb:    gocv.NewMat(),
	}, nil
}

type device struct {
	id     int
	width  int
	height int
	cam    *gocv.VideoCapture
	bgr    gocv.Mat
	rgb    gocv.Mat
}

func (d *device) ReadFrame() ([]byte, error) {
	if ok := d.cam.Read(&d.bgr); !ok {
		return nil, fmt.Errorf("opencv: device %d read failed", d.id)
	}
	if d.bgr.Empty() {
		return nil, fmt.Errorf("opencv: device %d delivered an empty frame", d.id)
	}
	if d.bgr.Cols() != d.width || d.bgr.Rows() != d.height {
		gocv.Resize(d.bgr, &d.bgr, image.Pt(d.width, d.height), 0, 0, gocv.InterpolationLinear)
	}
	gocv.CvtColor(d.bgr, &d.rgb, gocv.ColorBGRToRGB)
	data, err := d.rgb.ToBytes()
	if err != nil {
		return nil, fmt.Errorf("opencv: device %d frame export: %w", d.id, err)
	}
	return data, nil
}

func (d *device) Close() error {
	d.bgr.Close()
	d.rgb.Close()
	return d.cam.Close()
}
