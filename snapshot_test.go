package camrig

import (
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func TestFrameImageRejectsBadSize(t *testing.T) {
	f := Frame{Width: 4, Height: 3, Data: make([]byte, 10)}
	if _, err := frameImage(f); err == nil {
		t.Fatal("expected error for truncated frame data")
	}
}

func TestFrameImagePixelMapping(t *testing.T) {
	f := Frame{Width: 2, Height: 1, Data: []byte{10, 20, 30, 40, 50, 60}}
	img, err := frameImage(f)
	if err != nil {
		t.Fatalf("frameImage: %v", err)
	}
	if got := img.Bounds(); got.Dx() != 2 || got.Dy() != 1 {
		t.Fatalf("bounds = %v, want 2x1", got)
	}
	r, g, b, a := img.At(0, 0).RGBA()
	if r>>8 != 10 || g>>8 != 20 || b>>8 != 30 || a>>8 != 255 {
		t.Errorf("pixel (0,0) = %d,%d,%d,%d, want 10,20,30,255", r>>8, g>>8, b>>8, a>>8)
	}
	r, g, b, _ = img.At(1, 0).RGBA()
	if r>>8 != 40 || g>>8 != 50 || b>>8 != 60 {
		t.Errorf("pixel (1,0) = %d,%d,%d, want 40,50,60", r>>8, g>>8, b>>8)
	}
}

func TestSaveFrameFormats(t *testing.T) {
	dir := t.TempDir()
	f := solidFrame(0, 8, 6, 200, 100, 50)

	pngPath := filepath.Join(dir, "frame.png")
	if err := SaveFrame(pngPath, f, "png", 0); err != nil {
		t.Fatalf("write png: %v", err)
	}
	pf, err := os.Open(pngPath)
	if err != nil {
		t.Fatalf("open png: %v", err)
	}
	defer pf.Close()
	pimg, err := png.Decode(pf)
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	if b := pimg.Bounds(); b.Dx() != 8 || b.Dy() != 6 {
		t.Errorf("png bounds = %v, want 8x6", b)
	}

	jpgPath := filepath.Join(dir, "frame.jpg")
	if err := SaveFrame(jpgPath, f, "jpeg", 90); err != nil {
		t.Fatalf("write jpeg: %v", err)
	}
	jf, err := os.Open(jpgPath)
	if err != nil {
		t.Fatalf("open jpeg: %v", err)
	}
	defer jf.Close()
	jimg, err := jpeg.Decode(jf)
	if err != nil {
		t.Fatalf("decode jpeg: %v", err)
	}
	if b := jimg.Bounds(); b.Dx() != 8 || b.Dy() != 6 {
		t.Errorf("jpeg bounds = %v, want 8x6", b)
	}
}

func TestSaveFrameBadFormatRemovesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "frame.bmp")
	f := solidFrame(0, 4, 4, 1, 2, 3)
	if err := SaveFrame(path, f, "bmp", 0); err == nil {
		t.Fatal("expected error for unsupported format")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("partial file left behind: stat err = %v", err)
	}
}
