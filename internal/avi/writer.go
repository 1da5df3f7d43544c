// Package avi writes Motion JPEG video into a minimal RIFF/AVI container.
//
// The layout is the classic single-stream AVI: one hdrl list (avih + strl),
// one movi list holding 00dc compressed-frame chunks, and an idx1 index so
// players can seek. Frame counts and list lengths are back-patched on Close.
package avi

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrTooLarge reports that adding another frame would push the file past
// the 32-bit offsets AVI can address.
var ErrTooLarge = errors.New("avi: video file too large")

// sizeLimit keeps the file safely under 2^32 bytes, index included.
const sizeLimit = 4_000_000_000

const (
	aviFlagHasIndex = 0x10 // AVIF_HASINDEX
	idxKeyFrame     = 0x10 // AVIIF_KEYFRAME: every MJPEG frame is one
)

// Writer appends JPEG-encoded frames to an AVI file.
//
// Not safe for concurrent use; recording pipelines own exactly one Writer
// and feed it from a single goroutine.
type Writer struct {
	f      *os.File
	width  int32
	height int32
	fps    int32

	frames  int
	lengths []int64 // positions of open length fields, LIFO
	avihLen int64   // position of the avih total-frames field
	strhLen int64   // position of the strh length field
	moviPos int64   // position of the "movi" fourcc
	idx     bytes.Buffer

	err    error // sticky: first write failure poisons the writer
	closed bool
}

// NewWriter creates path (truncating any existing file) and writes the AVI
// header for a width x height MJPEG stream at the given frame rate.
func NewWriter(path string, width, height, fps int) (*Writer, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("avi: invalid dimensions %dx%d", width, height)
	}
	if fps <= 0 {
		return nil, fmt.Errorf("avi: invalid fps %d", fps)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("avi: create %s: %w", path, err)
	}

	w := &Writer{
		f:      f,
		width:  int32(width),
		height: int32(height),
		fps:    int32(fps),
	}
	w.writeHeader()
	if w.err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("avi: write header: %w", w.err)
	}
	return w, nil
}

func (w *Writer) writeHeader() {
	w.fcc("RIFF")
	w.pushLength() // total file length
	w.fcc("AVI ")

	w.fcc("LIST")
	w.pushLength() // hdrl list length
	w.fcc("hdrl")

	w.fcc("avih")
	w.u32(56)                        // fixed avih payload size
	w.u32(uint32(1000000 / w.fps))   // microseconds per frame
	w.u32(0)                         // max bytes per second
	w.u32(0)                         // padding granularity
	w.u32(aviFlagHasIndex)           // flags
	w.avihLen = w.pos()              // total frames, patched on Close
	w.u32(0)                         //
	w.u32(0)                         // initial frames
	w.u32(1)                         // stream count: video only
	w.u32(0)                         // suggested buffer size
	w.u32(uint32(w.width))           //
	w.u32(uint32(w.height))          //
	for i := 0; i < 4; i++ {         // reserved
		w.u32(0)
	}

	w.fcc("LIST")
	w.pushLength() // strl list length
	w.fcc("strl")

	w.fcc("strh")
	w.u32(56)           // fixed strh payload size
	w.fcc("vids")       // stream type
	w.fcc("MJPG")       // handler
	w.u32(0)            // flags
	w.u32(0)            // priority + language
	w.u32(0)            // initial frames
	w.u32(1)            // scale
	w.u32(uint32(w.fps)) // rate; fps = rate/scale
	w.u32(0)            // start
	w.strhLen = w.pos() // stream length in frames, patched on Close
	w.u32(0)            //
	w.u32(0)            // suggested buffer size
	w.i32(-1)           // quality: driver default
	w.u32(0)            // sample size: one frame per chunk
	for i := 0; i < 4; i++ { // rcFrame
		w.u16(0)
	}

	w.fcc("strf")
	w.u32(40) // BITMAPINFOHEADER
	w.u32(40)
	w.i32(w.width)
	w.i32(w.height)
	w.u16(1)  // planes
	w.u16(24) // bits per pixel
	w.fcc("MJPG")
	w.u32(uint32(w.width) * uint32(w.height) * 3) // decompressed image size
	w.u32(0)                                      // x pixels per meter
	w.u32(0)                                      // y pixels per meter
	w.u32(0)                                      // colors used
	w.u32(0)                                      // colors important

	w.popLength() // strl
	w.popLength() // hdrl

	w.fcc("LIST")
	w.pushLength() // movi list length
	w.moviPos = w.pos()
	w.fcc("movi")
}

// AddJPEG appends one JPEG-encoded frame.
func (w *Writer) AddJPEG(jpeg []byte) error {
	if w.closed {
		return errors.New("avi: writer closed")
	}
	if w.err != nil {
		return w.err
	}

	framePos := w.pos()
	// 8 bytes chunk header per frame, 16 bytes index entry, 8 for idx1 header.
	if framePos+int64(len(jpeg))+int64(w.idx.Len())+32 > sizeLimit {
		return ErrTooLarge
	}

	w.fcc("00dc")
	w.u32(uint32(len(jpeg)))
	w.raw(jpeg)
	if len(jpeg)%2 == 1 {
		w.raw([]byte{0}) // RIFF chunks are word-aligned
	}
	if w.err != nil {
		return w.err
	}

	var entry [16]byte
	copy(entry[0:4], "00dc")
	binary.LittleEndian.PutUint32(entry[4:8], idxKeyFrame)
	binary.LittleEndian.PutUint32(entry[8:12], uint32(framePos-w.moviPos))
	binary.LittleEndian.PutUint32(entry[12:16], uint32(len(jpeg)))
	w.idx.Write(entry[:])

	w.frames++
	return nil
}

// Frames returns the number of frames appended so far.
func (w *Writer) Frames() int {
	return w.frames
}

// Close writes the index, patches the deferred length and frame-count
// fields, and closes the file. Idempotent.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	w.popLength() // movi

	w.fcc("idx1")
	w.u32(uint32(w.idx.Len()))
	w.raw(w.idx.Bytes())

	w.patchU32(w.avihLen, uint32(w.frames))
	w.patchU32(w.strhLen, uint32(w.frames))

	w.popLength() // RIFF

	err := w.err
	if cerr := w.f.Close(); err == nil {
		err = cerr
	}
	return err
}

// pos returns the current write offset, 0 on a poisoned writer.
func (w *Writer) pos() int64 {
	if w.err != nil {
		return 0
	}
	p, err := w.f.Seek(0, io.SeekCurrent)
	if err != nil {
		w.err = err
		return 0
	}
	return p
}

// pushLength writes a placeholder length field and records its position.
func (w *Writer) pushLength() {
	w.lengths = append(w.lengths, w.pos())
	w.u32(0)
}

// popLength patches the most recent placeholder with the bytes written
// since it, excluding the field itself.
func (w *Writer) popLength() {
	if len(w.lengths) == 0 || w.err != nil {
		return
	}
	at := w.lengths[len(w.lengths)-1]
	w.lengths = w.lengths[:len(w.lengths)-1]
	w.patchU32(at, uint32(w.pos()-at-4))
}

func (w *Writer) patchU32(at int64, v uint32) {
	if w.err != nil {
		return
	}
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	if _, err := w.f.WriteAt(buf[:], at); err != nil {
		w.err = err
	}
}

func (w *Writer) raw(b []byte) {
	if w.err != nil {
		return
	}
	if _, err := w.f.Write(b); err != nil {
		w.err = err
	}
}

func (w *Writer) fcc(s string) {
	w.raw([]byte(s))
}

func (w *Writer) u32(v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	w.raw(buf[:])
}

func (w *Writer) i32(v int32) {
	w.u32(uint32(v))
}

func (w *Writer) u16(v uint16) {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], v)
	w.raw(buf[:])
}
