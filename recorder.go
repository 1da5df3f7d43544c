package camrig

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// defaultQueueSize absorbs encode stalls of roughly one second at 30fps.
const defaultQueueSize = 32

// recorder bridges one camera's capture loop to its encoder. A single
// goroutine drains the queue so the encoder never needs locking, and the
// capture loop never blocks on disk.
type recorder struct {
	cameraID int
	path     string
	enc      Encoder

	// gate is shared by every recorder of a session; frames submitted
	// before it is closed are ignored, so all cameras begin within one
	// frame interval of each other.
	gate <-chan struct{}

	queue  chan Frame
	stopCh chan struct{}
	done   chan struct{}

	written    atomic.Uint64
	dropped    atomic.Uint64
	stopped    atomic.Bool
	failedFlag atomic.Bool

	mu      sync.Mutex
	err     error
	lastSeq uint64 // newest Seq accepted into the queue
}

func newRecorder(cameraID int, path string, enc Encoder, gate <-chan struct{}, queueSize int) *recorder {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	r := &recorder{
		cameraID: cameraID,
		path:     path,
		enc:      enc,
		gate:     gate,
		queue:    make(chan Frame, queueSize),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	go r.encodeLoop()
	return r
}

// submit hands a frame to the encoder queue without ever blocking. When the
// queue is full the oldest queued frame is evicted so the recording stays
// close to live. Frames at or behind the newest accepted Seq are ignored,
// keeping the queue in strict Seq order even with a second submitter.
func (r *recorder) submit(f Frame) {
	select {
	case <-r.gate:
	default:
		return // session barrier not released yet
	}
	if r.stopped.Load() || r.failedFlag.Load() {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if f.Seq <= r.lastSeq {
		return
	}
	r.lastSeq = f.Seq

	select {
	case r.queue <- f:
		return
	default:
	}

	// Full: evict the head. The encode goroutine may win the race for it;
	// either way exactly one frame gives way.
	select {
	case <-r.queue:
		r.dropped.Add(1)
	default:
	}
	select {
	case r.queue <- f:
	default:
		r.dropped.Add(1)
	}
}

func (r *recorder) encodeLoop() {
	defer close(r.done)
	for {
		select {
		case f := <-r.queue:
			r.append(f)
		case <-r.stopCh:
			r.drain()
			r.finalize()
			return
		}
	}
}

// drain flushes whatever is queued at stop time.
func (r *recorder) drain() {
	for {
		select {
		case f := <-r.queue:
			r.append(f)
		default:
			return
		}
	}
}

func (r *recorder) append(f Frame) {
	if r.failedFlag.Load() {
		return
	}
	if err := r.enc.Append(f); err != nil {
		r.failWith(&EncodeError{CameraID: r.cameraID, Path: r.path, Err: err})
		return
	}
	r.written.Add(1)
}

func (r *recorder) finalize() {
	if err := r.enc.Close(); err != nil {
		r.failWith(&EncodeError{CameraID: r.cameraID, Path: r.path, Err: err})
		return
	}
	slog.Info("recorder: file finalized",
		"camera", r.cameraID, "path", r.path, "frames", r.written.Load(), "dropped", r.dropped.Load())
}

func (r *recorder) failWith(err error) {
	r.mu.Lock()
	if r.err == nil {
		r.err = err
	}
	r.mu.Unlock()
	r.failedFlag.Store(true)
	slog.Error("recorder: encode failed", "camera", r.cameraID, "path", r.path, "error", err)
}

// stop ends the recording: no further frames are accepted, the queue is
// flushed and the encoder finalized. It blocks until the file is durable
// and is safe to call more than once.
func (r *recorder) stop() error {
	if r.stopped.CompareAndSwap(false, true) {
		close(r.stopCh)
	}
	<-r.done
	return r.lastErr()
}

func (r *recorder) result() RecordingResult {
	return RecordingResult{
		CameraID: r.cameraID,
		Path:     r.path,
		Frames:   r.written.Load(),
		Dropped:  r.dropped.Load(),
		Err:      r.lastErr(),
	}
}

func (r *recorder) drops() uint64 { return r.dropped.Load() }

func (r *recorder) failed() bool { return r.failedFlag.Load() }

func (r *recorder) lastErr() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}
