package avi

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

// Fixed header offsets for the single-stream layout written by Writer.
const (
	offRIFFSize    = 4
	offAVIHFrames  = 48
	offSTRHLength  = 140
)

func fakeJPEG(n int) []byte {
	// Payload content is opaque to the container; only sizes matter here.
	b := make([]byte, n)
	b[0] = 0xFF
	b[1] = 0xD8
	b[n-2] = 0xFF
	b[n-1] = 0xD9
	return b
}

func u32At(b []byte, off int) uint32 {
	return binary.LittleEndian.Uint32(b[off : off+4])
}

func writeTestAVI(t *testing.T, frames int, frameSize int) []byte {
	t.Helper()

	path := filepath.Join(t.TempDir(), "out.avi")
	w, err := NewWriter(path, 64, 48, 10)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	for i := 0; i < frames; i++ {
		if err := w.AddJPEG(fakeJPEG(frameSize)); err != nil {
			t.Fatalf("AddJPEG %d: %v", i, err)
		}
	}
	if w.Frames() != frames {
		t.Fatalf("Frames() = %d, want %d", w.Frames(), frames)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	return data
}

func TestContainerStructure(t *testing.T) {
	const frames = 5
	data := writeTestAVI(t, frames, 1000)

	if string(data[0:4]) != "RIFF" {
		t.Fatalf("missing RIFF signature, got %q", data[0:4])
	}
	if string(data[8:12]) != "AVI " {
		t.Fatalf("missing AVI signature, got %q", data[8:12])
	}
	if got := u32At(data, offRIFFSize); got != uint32(len(data)-8) {
		t.Errorf("RIFF length = %d, want %d", got, len(data)-8)
	}
	if !bytes.Contains(data, []byte("movi")) {
		t.Error("missing movi list")
	}
	if !bytes.Contains(data, []byte("MJPG")) {
		t.Error("missing MJPG handler")
	}

	if got := u32At(data, offAVIHFrames); got != frames {
		t.Errorf("avih frame count = %d, want %d", got, frames)
	}
	if got := u32At(data, offSTRHLength); got != frames {
		t.Errorf("strh stream length = %d, want %d", got, frames)
	}
}

func TestIndexEntries(t *testing.T) {
	const frames = 7
	data := writeTestAVI(t, frames, 501) // odd size exercises chunk padding

	idxAt := bytes.Index(data, []byte("idx1"))
	if idxAt < 0 {
		t.Fatal("missing idx1 chunk")
	}
	idxSize := u32At(data, idxAt+4)
	if idxSize != frames*16 {
		t.Fatalf("idx1 size = %d, want %d", idxSize, frames*16)
	}

	moviAt := bytes.Index(data, []byte("movi"))
	for i := 0; i < frames; i++ {
		entry := data[idxAt+8+i*16:]
		if string(entry[0:4]) != "00dc" {
			t.Fatalf("index entry %d: bad chunk id %q", i, entry[0:4])
		}
		if flags := u32At(entry, 4); flags != idxKeyFrame {
			t.Errorf("index entry %d: flags = %#x, want %#x", i, flags, idxKeyFrame)
		}
		offset := u32At(entry, 8)
		size := u32At(entry, 12)
		if size != 501 {
			t.Errorf("index entry %d: size = %d, want 501", i, size)
		}
		// The offset is relative to the movi fourcc and must land on a
		// 00dc chunk header.
		chunkAt := moviAt + int(offset)
		if string(data[chunkAt:chunkAt+4]) != "00dc" {
			t.Errorf("index entry %d: offset %d does not point at a frame chunk", i, offset)
		}
		if got := u32At(data, chunkAt+4); got != 501 {
			t.Errorf("chunk %d: recorded size %d, want 501", i, got)
		}
	}
}

func TestEmptyVideo(t *testing.T) {
	data := writeTestAVI(t, 0, 100)

	if got := u32At(data, offAVIHFrames); got != 0 {
		t.Errorf("avih frame count = %d, want 0", got)
	}
	if got := u32At(data, offRIFFSize); got != uint32(len(data)-8) {
		t.Errorf("RIFF length = %d, want %d", got, len(data)-8)
	}
}

func TestCloseIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.avi")
	w, err := NewWriter(path, 32, 32, 5)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := w.AddJPEG(fakeJPEG(64)); err != nil {
		t.Fatalf("AddJPEG: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if err := w.AddJPEG(fakeJPEG(64)); err == nil {
		t.Error("AddJPEG after Close should fail")
	}
}

func TestNewWriterValidation(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name          string
		width, height int
		fps           int
	}{
		{"zero width", 0, 48, 10},
		{"negative height", 64, -1, 10},
		{"zero fps", 64, 48, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewWriter(filepath.Join(dir, "bad.avi"), tt.width, tt.height, tt.fps)
			if err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}
