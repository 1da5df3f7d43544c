package camrig

import (
	"fmt"
	"sync/atomic"
)

// SyntheticProvider opens deterministic test-pattern devices. It needs no
// hardware and is the default backend for tests and dry runs.
type SyntheticProvider struct{}

// OpenDevice returns a device producing a moving gradient pattern tinted
// per camera id.
func (SyntheticProvider) OpenDevice(id, width, height int, fps float64) (Device, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("synthetic: invalid resolution %dx%d", width, height)
	}
	if fps <= 0 {
		return nil, fmt.Errorf("synthetic: invalid fps %.2f", fps)
	}
	return &syntheticDevice{id: id, width: width, height: height}, nil
}

type syntheticDevice struct {
	id     int
	width  int
	height int
	frame  atomic.Uint64
	closed atomic.Bool
}

func (d *syntheticDevice) ReadFrame() ([]byte, error) {
	if d.closed.Load() {
		return nil, fmt.Errorf("synthetic: device %d closed", d.id)
	}
	n := d.frame.Add(1)
	shift := int(n) // the gradient slides one pixel per frame
	tint := byte(d.id * 47)

	buf := make([]byte, d.width*d.height*3)
	for y := 0; y < d.height; y++ {
		row := y * d.width * 3
		g := byte(y + shift)
		for x := 0; x < d.width; x++ {
			p := row + x*3
			buf[p] = byte(x+shift) + tint
			buf[p+1] = g
			buf[p+2] = tint
		}
	}
	return buf, nil
}

func (d *syntheticDevice) Close() error {
	d.closed.Store(true)
	return nil
}
