package camrig

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
)

// frameTimestampFormat names snapshot files down to the millisecond so
// rapid captures do not collide.
const frameTimestampFormat = "20060102_150405.000"

// frameImage converts a frame's interleaved RGB bytes into an image.RGBA.
func frameImage(f Frame) (*image.RGBA, error) {
	expected := f.Width * f.Height * 3
	if len(f.Data) != expected {
		return nil, fmt.Errorf("camrig: frame data size %d, want %d for %dx%d", len(f.Data), expected, f.Width, f.Height)
	}
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for i := 0; i < f.Width*f.Height; i++ {
		img.Pix[i*4] = f.Data[i*3]
		img.Pix[i*4+1] = f.Data[i*3+1]
		img.Pix[i*4+2] = f.Data[i*3+2]
		img.Pix[i*4+3] = 255
	}
	return img, nil
}

// SaveFrame encodes f to path as "png", "jpeg" or "jpg". On failure no
// partial file is left behind.
func SaveFrame(path string, f Frame, format string, jpegQuality int) error {
	img, err := frameImage(f)
	if err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("camrig: create snapshot: %w", err)
	}
	switch format {
	case "png":
		err = png.Encode(file, img)
	case "jpeg", "jpg":
		err = jpeg.Encode(file, img, &jpeg.Options{Quality: jpegQuality})
	default:
		err = fmt.Errorf("camrig: unsupported snapshot format %q", format)
	}
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return err
	}
	return nil
}
