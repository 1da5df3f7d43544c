package camrig

// DeviceProvider opens capture devices for a backend (synthetic, OpenCV,
// GStreamer). Implementations must be safe for concurrent OpenDevice calls.
type DeviceProvider interface {
	// OpenDevice claims the device identified by id and configures it for
	// the requested geometry and rate. The returned Device is owned by a
	// single camera and is not shared.
	OpenDevice(id, width, height int, fps float64) (Device, error)
}

// Device is one opened capture source. A Device is driven from a single
// goroutine; implementations do not need internal locking for ReadFrame.
type Device interface {
	// ReadFrame returns the next frame as interleaved RGB bytes of length
	// width*height*3. The returned slice is owned by the caller.
	ReadFrame() ([]byte, error)

	// Close releases the device. ReadFrame must not be called after Close.
	Close() error
}

// EncoderProvider opens per-recording encoders for one container format.
type EncoderProvider interface {
	// NewEncoder creates the output file at path and prepares it for
	// frames of the given geometry and nominal rate.
	NewEncoder(path string, width, height int, fps float64) (Encoder, error)

	// Container returns the file extension of the produced container,
	// without the dot (e.g. "avi").
	Container() string
}

// Encoder persists a sequence of frames into one output file. An Encoder is
// driven by a single recording goroutine.
type Encoder interface {
	// Append encodes and writes one frame. Frames arrive in capture order.
	Append(Frame) error

	// Close flushes buffered data and finalizes the container so the file
	// is playable. The file must be durable when Close returns.
	Close() error
}

// Resizer scales frames for composition. Implementations must be safe for
// use from a single render loop.
type Resizer interface {
	// Resize returns f scaled to width x height. The input frame is not
	// modified.
	Resize(f Frame, width, height int) (Frame, error)
}
