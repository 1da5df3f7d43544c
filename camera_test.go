package camrig

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

var errFakeRead = errors.New("fake read error")

// fakeProvider is an in-memory DeviceProvider with failure injection.
type fakeProvider struct {
	mu      sync.Mutex
	failIDs map[int]bool
	devices map[int]*fakeDevice
	opened  int
}

func (p *fakeProvider) OpenDevice(id, width, height int, fps float64) (Device, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failIDs[id] {
		return nil, errors.New("no such device")
	}
	d := &fakeDevice{width: width, height: height}
	if p.devices == nil {
		p.devices = make(map[int]*fakeDevice)
	}
	p.devices[id] = d
	p.opened++
	return d, nil
}

func (p *fakeProvider) device(id int) *fakeDevice {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.devices[id]
}

func (p *fakeProvider) allow(id int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.failIDs, id)
}

type fakeDevice struct {
	width   int
	height  int
	reads   atomic.Uint64
	failN   atomic.Int64 // fail this many upcoming reads
	failing atomic.Bool  // fail every read while set
	closed  atomic.Bool
}

func (d *fakeDevice) ReadFrame() ([]byte, error) {
	if d.failing.Load() {
		return nil, errFakeRead
	}
	if n := d.failN.Load(); n > 0 && d.failN.CompareAndSwap(n, n-1) {
		return nil, errFakeRead
	}
	d.reads.Add(1)
	return make([]byte, d.width*d.height*3), nil
}

func (d *fakeDevice) Close() error {
	d.closed.Store(true)
	return nil
}

func testCameraConfig(id int) CameraConfig {
	return CameraConfig{ID: id, Width: 8, Height: 6, FPS: 200}
}

// waitForState polls until the camera reaches want or the deadline passes.
func waitForState(t *testing.T, cam *Camera, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cam.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("camera stuck in state %s, want %s", cam.State(), want)
}

func TestNewCameraValidation(t *testing.T) {
	tests := []struct {
		name     string
		cfg      CameraConfig
		provider DeviceProvider
	}{
		{"nil provider", testCameraConfig(0), nil},
		{"zero width", CameraConfig{ID: 0, Width: 0, Height: 6, FPS: 30}, &fakeProvider{}},
		{"negative height", CameraConfig{ID: 0, Width: 8, Height: -1, FPS: 30}, &fakeProvider{}},
		{"zero fps", CameraConfig{ID: 0, Width: 8, Height: 6, FPS: 0}, &fakeProvider{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCamera(tt.cfg, tt.provider)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Errorf("error %v is not a ConfigError", err)
			}
		})
	}
}

func TestCameraLifecycle(t *testing.T) {
	provider := &fakeProvider{}
	cam, err := NewCamera(testCameraConfig(3), provider)
	if err != nil {
		t.Fatalf("NewCamera: %v", err)
	}
	if got := cam.State(); got != StateClosed {
		t.Fatalf("initial state = %s, want closed", got)
	}

	if err := cam.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got := cam.State(); got != StateOpen {
		t.Fatalf("state after Open = %s, want open", got)
	}

	if err := cam.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := cam.State(); got != StateCapturing {
		t.Fatalf("state after Start = %s, want capturing", got)
	}

	frame, err := cam.Latest(time.Second)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if frame.CameraID != 3 {
		t.Errorf("frame.CameraID = %d, want 3", frame.CameraID)
	}
	if frame.Seq == 0 {
		t.Error("frame.Seq = 0, want > 0")
	}
	if len(frame.Data) != 8*6*3 {
		t.Errorf("frame data size = %d, want %d", len(frame.Data), 8*6*3)
	}

	cam.Stop()
	if got := cam.State(); got != StateOpen {
		t.Fatalf("state after Stop = %s, want open", got)
	}

	if err := cam.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := cam.State(); got != StateClosed {
		t.Fatalf("state after Close = %s, want closed", got)
	}
	if dev := provider.device(3); dev == nil || !dev.closed.Load() {
		t.Error("device not closed after camera Close")
	}
}

func TestCameraOpenFailure(t *testing.T) {
	provider := &fakeProvider{failIDs: map[int]bool{7: true}}
	cam, err := NewCamera(testCameraConfig(7), provider)
	if err != nil {
		t.Fatalf("NewCamera: %v", err)
	}

	err = cam.Open()
	if err == nil {
		t.Fatal("Open succeeded, want error")
	}
	var openErr *DeviceOpenError
	if !errors.As(err, &openErr) {
		t.Fatalf("error %v is not a DeviceOpenError", err)
	}
	if openErr.CameraID != 7 {
		t.Errorf("CameraID = %d, want 7", openErr.CameraID)
	}
	if got := cam.State(); got != StateError {
		t.Fatalf("state after failed Open = %s, want error", got)
	}
	if st := cam.Status(); st.Err == "" {
		t.Error("Status.Err empty for camera in error state")
	}

	if err := cam.Start(); err == nil {
		t.Error("Start succeeded on errored camera, want error")
	}

	// Explicit re-open is the only way back.
	provider.allow(7)
	if err := cam.Open(); err != nil {
		t.Fatalf("re-Open after recovery: %v", err)
	}
	if got := cam.State(); got != StateOpen {
		t.Fatalf("state after re-Open = %s, want open", got)
	}
	if err := cam.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestCameraReadFailuresParkError(t *testing.T) {
	provider := &fakeProvider{}
	cam, err := NewCamera(testCameraConfig(0), provider)
	if err != nil {
		t.Fatalf("NewCamera: %v", err)
	}
	cam.maxRetries = 2
	cam.backoff = time.Millisecond
	defer cam.Close()

	if err := cam.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := cam.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := cam.Latest(time.Second); err != nil {
		t.Fatalf("Latest: %v", err)
	}

	provider.device(0).failing.Store(true)
	waitForState(t, cam, StateError)

	st := cam.Status()
	if st.Err == "" {
		t.Error("Status.Err empty after read failures")
	}
	var readErr *CaptureReadError
	cam.mu.Lock()
	lastErr := cam.lastErr
	cam.mu.Unlock()
	if !errors.As(lastErr, &readErr) {
		t.Fatalf("error %v is not a CaptureReadError", lastErr)
	}
	if readErr.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", readErr.Attempts)
	}
}

func TestCameraRecoversFromTransientReads(t *testing.T) {
	provider := &fakeProvider{}
	cam, err := NewCamera(testCameraConfig(0), provider)
	if err != nil {
		t.Fatalf("NewCamera: %v", err)
	}
	cam.backoff = time.Millisecond
	defer cam.Close()

	if err := cam.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	provider.device(0).failN.Store(3) // under the default retry budget
	if err := cam.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if _, err := cam.Latest(2 * time.Second); err != nil {
		t.Fatalf("no frame after transient failures: %v", err)
	}
	if got := cam.State(); got != StateCapturing {
		t.Fatalf("state = %s, want capturing", got)
	}
}

func TestCameraFrameCountGrows(t *testing.T) {
	provider := &fakeProvider{}
	cam, err := NewCamera(testCameraConfig(0), provider)
	if err != nil {
		t.Fatalf("NewCamera: %v", err)
	}
	defer cam.Close()

	if err := cam.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := cam.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := cam.Latest(time.Second); err != nil {
		t.Fatalf("Latest: %v", err)
	}

	first := cam.Status().FrameCount
	time.Sleep(100 * time.Millisecond)
	second := cam.Status().FrameCount
	if second <= first {
		t.Errorf("frame count did not grow: %d then %d", first, second)
	}
	if fps := cam.Status().FPS; fps <= 0 {
		t.Errorf("measured FPS = %.2f, want > 0", fps)
	}
}

func TestCameraStopBeforeStart(t *testing.T) {
	cam, err := NewCamera(testCameraConfig(0), &fakeProvider{})
	if err != nil {
		t.Fatalf("NewCamera: %v", err)
	}
	cam.Stop() // must not panic or block
	cam.Stop()
	if got := cam.State(); got != StateClosed {
		t.Fatalf("state = %s, want closed", got)
	}
}

func TestCameraCloseIdempotent(t *testing.T) {
	provider := &fakeProvider{}
	cam, err := NewCamera(testCameraConfig(0), provider)
	if err != nil {
		t.Fatalf("NewCamera: %v", err)
	}
	if err := cam.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := cam.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := cam.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := cam.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if got := cam.State(); got != StateClosed {
		t.Fatalf("state = %s, want closed", got)
	}
}

func TestCameraStartWithoutOpen(t *testing.T) {
	cam, err := NewCamera(testCameraConfig(0), &fakeProvider{})
	if err != nil {
		t.Fatalf("NewCamera: %v", err)
	}
	if err := cam.Start(); err == nil {
		t.Fatal("Start on closed camera succeeded, want error")
	}
}

func TestCameraReopenAfterClose(t *testing.T) {
	provider := &fakeProvider{}
	cam, err := NewCamera(testCameraConfig(0), provider)
	if err != nil {
		t.Fatalf("NewCamera: %v", err)
	}
	if err := cam.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := cam.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	f1, err := cam.Latest(time.Second)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if err := cam.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if err := cam.Open(); err != nil {
		t.Fatalf("re-Open: %v", err)
	}
	if err := cam.Start(); err != nil {
		t.Fatalf("re-Start: %v", err)
	}
	defer cam.Close()

	f2, err := cam.Latest(time.Second)
	if err != nil {
		t.Fatalf("Latest after reopen: %v", err)
	}
	// Sequence numbers survive a reopen so downstream ordering holds.
	if f2.Seq <= f1.Seq {
		t.Errorf("seq after reopen = %d, want > %d", f2.Seq, f1.Seq)
	}
}

func TestCameraReopenClosesStaleDevice(t *testing.T) {
	provider := &fakeProvider{}
	cam, err := NewCamera(testCameraConfig(0), provider)
	if err != nil {
		t.Fatalf("NewCamera: %v", err)
	}
	cam.maxRetries = 2
	cam.backoff = time.Millisecond
	defer cam.Close()

	if err := cam.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := cam.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := cam.Latest(time.Second); err != nil {
		t.Fatalf("Latest: %v", err)
	}

	stale := provider.device(0)
	stale.failing.Store(true)
	waitForState(t, cam, StateError)

	// Recovery must release the failed handle before claiming a new one.
	if err := cam.Open(); err != nil {
		t.Fatalf("re-Open after read failures: %v", err)
	}
	if !stale.closed.Load() {
		t.Error("stale device left open after recovery")
	}
	if provider.device(0) == stale {
		t.Error("provider not asked for a fresh device")
	}
	if got := cam.State(); got != StateOpen {
		t.Fatalf("state after re-Open = %s, want open", got)
	}
}

func TestCameraStatusRetainsDropsAfterDetach(t *testing.T) {
	provider := &fakeProvider{}
	cam, err := NewCamera(testCameraConfig(0), provider)
	if err != nil {
		t.Fatalf("NewCamera: %v", err)
	}
	defer cam.Close()

	if err := cam.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := cam.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := cam.Latest(time.Second); err != nil {
		t.Fatalf("Latest: %v", err)
	}

	// A stalled encoder overflows the tiny queue, then its first append
	// fails, so the capture loop detaches the recorder mid-session.
	enc := &fakeEncoder{appendDelay: 50 * time.Millisecond, failOn: 1}
	rec := newRecorder(0, "out.fake", enc, openGate(), 2)
	defer rec.stop()
	cam.attachRecorder(rec)
	waitForState(t, cam, StateCapturing)

	if d := rec.drops(); d == 0 {
		t.Fatal("no drops despite a stalled encoder")
	}
	if got, want := cam.Status().Dropped, rec.drops(); got != want {
		t.Errorf("Status.Dropped = %d after detach, want %d", got, want)
	}

	// A new session starts its accounting from zero.
	rec2 := newRecorder(0, "out2.fake", &fakeEncoder{}, openGate(), 8)
	defer rec2.stop()
	cam.attachRecorder(rec2)
	if got := cam.Status().Dropped; got != 0 {
		t.Errorf("Status.Dropped = %d after fresh attach, want 0", got)
	}
}
