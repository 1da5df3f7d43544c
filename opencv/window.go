package opencv

import (
	"fmt"

	"gocv.io/x/gocv"

	"github.com/e7canasta/camrig"
)

// Window shows composed frames in an OpenCV window. It implements
// camrig.FrameSink; closing the window ends the visualize loop.
type Window struct {
	win *gocv.Window
	bgr gocv.Mat
}

// NewWindow opens a named window.
func NewWindow(title string) *Window {
	return &Window{win: gocv.NewWindow(title), bgr: gocv.NewMat()}
}

// Display shows one frame and pumps the GUI event loop.
func (w *Window) Display(f camrig.Frame) error {
	if !w.win.IsOpen() {
		return fmt.Errorf("opencv: window closed")
	}
	rgb, err := gocv.NewMatFromBytes(f.Height, f.Width, gocv.MatTypeCV8UC3, f.Data)
	if err != nil {
		return fmt.Errorf("opencv: frame import: %w", err)
	}
	defer rgb.Close()
	gocv.CvtColor(rgb, &w.bgr, gocv.ColorBGRToRGB)
	w.win.IMShow(w.bgr)
	w.win.WaitKey(1)
	return nil
}

// Close releases the window.
func (w *Window) Close() error {
	w.bgr.Close()
	return w.win.Close()
}
