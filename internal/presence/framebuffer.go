package presence

import (
	"context"
	"errors"
	"sync"
)

var (
	ErrCameraClosed = errors.New("camera is not open")
	ErrNoFrame      = errors.New("no frame captured yet")
)

// FrameBuffer is a Camera fed by a remote video source: the latest pushed
// frame wins and older frames are dropped.
type FrameBuffer struct {
	mu      sync.Mutex
	open    bool
	latest  *Frame
	openErr error
}

// NewFrameBuffer returns a closed buffer.
func NewFrameBuffer() *FrameBuffer {
	return &FrameBuffer{}
}

// Open acquires the buffer unless the remote side reported the device as
// unavailable.
func (b *FrameBuffer) Open(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.openErr != nil {
		return b.openErr
	}
	b.open = true
	b.latest = nil
	return nil
}

// Fail records that the remote device cannot be used. Later Opens fail with
// err until Recover is called.
func (b *FrameBuffer) Fail(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.openErr = err
}

// Recover clears a previous Fail.
func (b *FrameBuffer) Recover() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.openErr = nil
}

// Push stores a frame. Frames pushed while closed are dropped.
func (b *FrameBuffer) Push(f Frame) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.open {
		return
	}
	b.latest = &f
}

// Capture returns the latest frame.
func (b *FrameBuffer) Capture(ctx context.Context) (Frame, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.open {
		return Frame{}, ErrCameraClosed
	}
	if b.latest == nil {
		return Frame{}, ErrNoFrame
	}
	return *b.latest, nil
}

// Close releases the buffer and drops the held frame.
func (b *FrameBuffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.open = false
	b.latest = nil
	return nil
}

// IsOpen reports whether the buffer is currently acquired.
func (b *FrameBuffer) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open
}
