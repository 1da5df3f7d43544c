package opencv

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/e7canasta/camrig"
)

// Resizer scales frames with OpenCV bilinear interpolation. Noticeably
// better looking than nearest-neighbor at composition scales below 1.
type Resizer struct{}

// Resize returns f scaled to width x height.
func (Resizer) Resize(f camrig.Frame, width, height int) (camrig.Frame, error) {
	if width <= 0 || height <= 0 {
		return camrig.Frame{}, fmt.Errorf("opencv: invalid resize target %dx%d", width, height)
	}
	if len(f.Data) != f.Width*f.Height*3 {
		return camrig.Frame{}, fmt.Errorf("opencv: frame data size %d, want %d", len(f.Data), f.Width*f.Height*3)
	}
	if width == f.Width && height == f.Height {
		return f, nil
	}

	src, err := gocv.NewMatFromBytes(f.Height, f.Width, gocv.MatTypeCV8UC3, f.Data)
	if err != nil {
		return camrig.Frame{}, fmt.Errorf("opencv: frame import: %w", err)
	}
	defer src.Close()

	dst := gocv.NewMat()
	defer dst.Close()
	gocv.Resize(src, &dst, image.Pt(width, height), 0, 0, gocv.InterpolationLinear)

	data, err := dst.ToBytes()
	if err != nil {
		return camrig.Frame{}, fmt.Errorf("opencv: frame export: %w", err)
	}
	resized := f
	resized.Width = width
	resized.Height = height
	resized.Data = data
	return resized, nil
}
