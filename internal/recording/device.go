package recording

import (
	"errors"
	"sync"
)

var (
	// ErrDeviceUnavailable indicates the capture device could not be armed.
	ErrDeviceUnavailable = errors.New("capture device unavailable")
	// ErrInvalidState indicates an operation was attempted from a state that
	// does not permit it.
	ErrInvalidState = errors.New("invalid recorder state")
	// ErrEncodingMismatch indicates segments of one session carry different
	// encodings and cannot be safely concatenated.
	ErrEncodingMismatch = errors.New("segment encoding mismatch")
)

// CaptureDevice yields binary chunks as they become available. All segments
// of one session share the device's negotiated encoding.
type CaptureDevice interface {
	Start(onData func(chunk []byte)) error
	Stop() error
	MIMEType() string
}

// BufferDevice is a CaptureDevice fed programmatically. It backs tests and
// server-side capture where chunks arrive over an existing transport.
type BufferDevice struct {
	mime string

	mu     sync.Mutex
	onData func([]byte)
	armed  bool
}

// NewBufferDevice constructs a device reporting the provided MIME type.
func NewBufferDevice(mimeType string) *BufferDevice {
	if mimeType == "" {
		mimeType = "audio/webm"
	}
	return &BufferDevice{mime: mimeType}
}

// Start arms the device with a chunk callback.
func (d *BufferDevice) Start(onData func(chunk []byte)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.armed {
		return ErrDeviceUnavailable
	}
	d.onData = onData
	d.armed = true
	return nil
}

// Stop disarms the device. Chunks emitted afterwards are dropped.
func (d *BufferDevice) Stop() error {
	d.mu.Lock()
	d.armed = false
	d.onData = nil
	d.mu.Unlock()
	return nil
}

// MIMEType reports the negotiated encoding.
func (d *BufferDevice) MIMEType() string {
	return d.mime
}

// Emit delivers a chunk to the armed callback, if any.
func (d *BufferDevice) Emit(chunk []byte) {
	d.mu.Lock()
	onData := d.onData
	armed := d.armed
	d.mu.Unlock()
	if armed && onData != nil {
		onData(chunk)
	}
}

// Armed reports whether the device is currently capturing. Useful for tests.
func (d *BufferDevice) Armed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.armed
}
