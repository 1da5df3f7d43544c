package camrig

import (
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"
)

const (
	defaultScale           = 0.5
	defaultDisplayInterval = 100 * time.Millisecond
)

// Compositor assembles the latest frame of every camera into one grid
// image. It only samples caches and never blocks on capture: cameras that
// have not produced a frame yet leave their cell black.
type Compositor struct {
	cams  []*Camera // ascending camera id, at most layout capacity
	grid  Layout
	cellW int
	cellH int
	outW  int
	outH  int

	resizer Resizer
	renders atomic.Uint64
}

// NewCompositor builds a compositor for cams arranged in layout. Cell size
// is the largest configured camera resolution scaled by scale. Cameras
// beyond the grid capacity are left out of the view with a warning.
func NewCompositor(cams []*Camera, layout Layout, scale float64, resizer Resizer) (*Compositor, error) {
	if len(cams) == 0 {
		return nil, &ConfigError{Reason: "compositor needs at least one camera"}
	}
	if layout.Rows <= 0 || layout.Cols <= 0 {
		return nil, &ConfigError{Reason: fmt.Sprintf("invalid layout %dx%d", layout.Rows, layout.Cols)}
	}
	if scale <= 0 || scale > 1 {
		return nil, &ConfigError{Reason: fmt.Sprintf("scale %.2f out of range (0,1]", scale)}
	}
	if resizer == nil {
		resizer = NearestResizer()
	}

	ordered := make([]*Camera, len(cams))
	copy(ordered, cams)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].cfg.ID < ordered[j].cfg.ID
	})
	if cap := layout.Capacity(); len(ordered) > cap {
		slog.Warn("compositor: more cameras than grid cells, truncating",
			"cameras", len(ordered), "rows", layout.Rows, "cols", layout.Cols)
		ordered = ordered[:cap]
	}

	maxW, maxH := 0, 0
	for _, cam := range ordered {
		if cam.cfg.Width > maxW {
			maxW = cam.cfg.Width
		}
		if cam.cfg.Height > maxH {
			maxH = cam.cfg.Height
		}
	}
	cellW := int(float64(maxW) * scale)
	cellH := int(float64(maxH) * scale)
	if cellW < 1 {
		cellW = 1
	}
	if cellH < 1 {
		cellH = 1
	}

	return &Compositor{
		cams:    ordered,
		grid:    layout,
		cellW:   cellW,
		cellH:   cellH,
		outW:    cellW * layout.Cols,
		outH:    cellH * layout.Rows,
		resizer: resizer,
	}, nil
}

// Bounds returns the fixed output dimensions of composed frames.
func (p *Compositor) Bounds() (width, height int) {
	return p.outW, p.outH
}

// Render composes the current view. The result always has the same
// dimensions; cells without a frame stay black. Composite frames carry
// CameraID -1 and their own sequence numbering.
func (p *Compositor) Render() Frame {
	buf := make([]byte, p.outW*p.outH*3)
	for i, cam := range p.cams {
		f, ok := cam.TryLatest()
		if !ok {
			continue
		}
		resized, err := p.resizer.Resize(f, p.cellW, p.cellH)
		if err != nil {
			slog.Warn("compositor: resize failed", "camera", cam.cfg.ID, "error", err)
			continue
		}
		row, col := i/p.grid.Cols, i%p.grid.Cols
		p.blit(buf, resized, col*p.cellW, row*p.cellH)
	}
	return Frame{
		CameraID:  -1,
		Seq:       p.renders.Add(1),
		Timestamp: time.Now(),
		Width:     p.outW,
		Height:    p.outH,
		Data:      buf,
	}
}

func (p *Compositor) blit(dst []byte, f Frame, x0, y0 int) {
	stride := p.outW * 3
	rowLen := f.Width * 3
	for y := 0; y < f.Height; y++ {
		src := y * rowLen
		off := (y0+y)*stride + x0*3
		copy(dst[off:off+rowLen], f.Data[src:src+rowLen])
	}
}

// nearestResizer is the dependency-free fallback Resizer.
type nearestResizer struct{}

// NearestResizer returns a pure-Go nearest-neighbor Resizer. Backends with
// real interpolation (OpenCV) should be preferred for display quality.
func NearestResizer() Resizer {
	return nearestResizer{}
}

func (nearestResizer) Resize(f Frame, width, height int) (Frame, error) {
	if width <= 0 || height <= 0 {
		return Frame{}, fmt.Errorf("camrig: invalid resize target %dx%d", width, height)
	}
	if len(f.Data) != f.Width*f.Height*3 {
		return Frame{}, fmt.Errorf("camrig: frame data size %d, want %d", len(f.Data), f.Width*f.Height*3)
	}
	if width == f.Width && height == f.Height {
		return f, nil
	}
	out := make([]byte, width*height*3)
	for y := 0; y < height; y++ {
		sy := y * f.Height / height
		srcRow := sy * f.Width * 3
		dstRow := y * width * 3
		for x := 0; x < width; x++ {
			s := srcRow + (x*f.Width/width)*3
			d := dstRow + x*3
			out[d] = f.Data[s]
			out[d+1] = f.Data[s+1]
			out[d+2] = f.Data[s+2]
		}
	}
	resized := f
	resized.Width = width
	resized.Height = height
	resized.Data = out
	return resized, nil
}
