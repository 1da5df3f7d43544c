package opencv

import (
	"fmt"

	"gocv.io/x/gocv"

	"github.com/e7canasta/camrig"
)

// WriterProvider records through OpenCV's VideoWriter, which delegates to
// FFmpeg. Any FOURCC the local build supports can be used; the default is
// MJPG in an AVI container, matching the pure-Go fallback.
type WriterProvider struct {
	// Codec is the FOURCC name (default "MJPG")
	Codec string
	// Extension is the container extension without the dot (default "avi")
	Extension string
}

// Container returns the configured container extension.
func (p WriterProvider) Container() string {
	if p.Extension == "" {
		return "avi"
	}
	return p.Extension
}

// NewEncoder creates the output file at path.
func (p WriterProvider) NewEncoder(path string, width, height int, fps float64) (camrig.Encoder, error) {
	codec := p.Codec
	if codec == "" {
		codec = "MJPG"
	}
	w, err := gocv.VideoWriterFile(path, codec, fps, width, height, true)
	if err != nil {
		return nil, fmt.Errorf("opencv: create writer %s: %w", path, err)
	}
	if !w.IsOpened() {
		w.Close()
		return nil, fmt.Errorf("opencv: writer %s did not open (codec %s)", path, codec)
	}
	return &encoder{w: w, path: path, bgr: gocv.NewMat()}, nil
}

type encoder struct {
	w    *gocv.VideoWriter
	path string
	bgr  gocv.Mat
}

func (e *encoder) Append(f camrig.Frame) error {
	rgb, err := gocv.NewMatFromBytes(f.Height, f.Width, gocv.MatTypeCV8UC3, f.Data)
	if err != nil {
		return fmt.Errorf("opencv: frame import: %w", err)
	}
	defer rgb.Close()
	// The channel swap is symmetric; gocv names only the BGR->RGB direction.
	gocv.CvtColor(rgb, &e.bgr, gocv.ColorBGRToRGB)
	if err := e.w.Write(e.bgr); err != nil {
		return fmt.Errorf("opencv: write frame to %s: %w", e.path, err)
	}
	return nil
}

func (e *encoder) Close() error {
	e.bgr.Close()
	return e.w.Close()
}
