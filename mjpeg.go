package camrig

import (
	"bytes"
	"fmt"
	"image/jpeg"
	"math"

	"github.com/e7canasta/camrig/internal/avi"
)

const defaultJPEGQuality = 90

// MJPEGProvider produces pure-Go AVI/MJPEG encoders. It is the default
// recording backend: no cgo, playable output everywhere, at the cost of
// larger files than a real codec.
type MJPEGProvider struct {
	// Quality is the JPEG quality (1-100); 0 selects the default (90)
	Quality int
}

// Container returns "avi".
func (MJPEGProvider) Container() string { return "avi" }

// NewEncoder creates the AVI file at path.
func (p MJPEGProvider) NewEncoder(path string, width, height int, fps float64) (Encoder, error) {
	quality := p.Quality
	if quality == 0 {
		quality = defaultJPEGQuality
	}
	if quality < 1 || quality > 100 {
		return nil, fmt.Errorf("camrig: jpeg quality %d out of range 1-100", quality)
	}
	rate := int(math.Round(fps))
	if rate < 1 {
		rate = 1
	}
	w, err := avi.NewWriter(path, width, height, rate)
	if err != nil {
		return nil, err
	}
	return &mjpegEncoder{w: w, quality: quality}, nil
}

type mjpegEncoder struct {
	w       *avi.Writer
	quality int
	buf     bytes.Buffer
}

func (e *mjpegEncoder) Append(f Frame) error {
	img, err := frameImage(f)
	if err != nil {
		return err
	}
	e.buf.Reset()
	if err := jpeg.Encode(&e.buf, img, &jpeg.Options{Quality: e.quality}); err != nil {
		return fmt.Errorf("camrig: jpeg encode: %w", err)
	}
	return e.w.AddJPEG(e.buf.Bytes())
}

func (e *mjpegEncoder) Close() error {
	return e.w.Close()
}
