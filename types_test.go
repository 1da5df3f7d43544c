package camrig

import (
	"errors"
	"testing"
	"time"
)

func TestAutoLayout(t *testing.T) {
	tests := []struct {
		cameras int
		want    Layout
	}{
		{0, Layout{1, 1}},
		{1, Layout{1, 1}},
		{2, Layout{1, 2}},
		{3, Layout{2, 2}},
		{4, Layout{2, 2}},
		{5, Layout{2, 3}},
		{6, Layout{2, 3}},
		{7, Layout{3, 3}},
		{9, Layout{3, 3}},
		{10, Layout{3, 4}},
		{12, Layout{3, 4}},
	}
	for _, tt := range tests {
		got := AutoLayout(tt.cameras)
		if got != tt.want {
			t.Errorf("AutoLayout(%d) = %dx%d, want %dx%d",
				tt.cameras, got.Rows, got.Cols, tt.want.Rows, tt.want.Cols)
		}
		if got.Capacity() < tt.cameras {
			t.Errorf("AutoLayout(%d) capacity %d too small", tt.cameras, got.Capacity())
		}
		if got.Rows > got.Cols {
			t.Errorf("AutoLayout(%d) = %dx%d, rows exceed cols", tt.cameras, got.Rows, got.Cols)
		}
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateCapturing, "capturing"},
		{StateRecording, "recording"},
		{StateError, "error"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestCameraConfigInterval(t *testing.T) {
	tests := []struct {
		fps  float64
		want time.Duration
	}{
		{30, 33333333 * time.Nanosecond},
		{10, 100 * time.Millisecond},
		{0.5, 2 * time.Second},
		{0, 0},
	}
	for _, tt := range tests {
		cfg := CameraConfig{FPS: tt.fps}
		if got := cfg.Interval(); got != tt.want {
			t.Errorf("Interval() at %.1f fps = %v, want %v", tt.fps, got, tt.want)
		}
	}
}

func TestFrameSinkFunc(t *testing.T) {
	var seen Frame
	sink := FrameSinkFunc(func(f Frame) error {
		seen = f
		return nil
	})
	if err := sink.Display(Frame{CameraID: 4}); err != nil {
		t.Fatalf("Display: %v", err)
	}
	if seen.CameraID != 4 {
		t.Errorf("sink saw camera %d, want 4", seen.CameraID)
	}

	boom := errors.New("window closed")
	failing := FrameSinkFunc(func(Frame) error { return boom })
	if err := failing.Display(Frame{}); !errors.Is(err, boom) {
		t.Errorf("Display error = %v, want %v", err, boom)
	}
}
