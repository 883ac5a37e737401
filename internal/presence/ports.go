package presence

import (
	"context"
	"time"
)

// Frame is one still image captured from the candidate's video source.
type Frame struct {
	Data       []byte
	MIME       string
	CapturedAt time.Time
}

// Camera is a live video source. Open acquires the device, Close releases it
// and must be idempotent. Capture after Close returns an error.
type Camera interface {
	Open(ctx context.Context) error
	Capture(ctx context.Context) (Frame, error)
	Close() error
}

// Detection is the raw answer of the face-check capability.
type Detection struct {
	FaceCount int    `json:"face_count"`
	Status    string `json:"status"`
}

// Detector submits one frame to the external face-check capability.
type Detector interface {
	Detect(ctx context.Context, frame Frame) (Detection, error)
}

// DetectorFunc adapts a function to the Detector interface.
type DetectorFunc func(ctx context.Context, frame Frame) (Detection, error)

func (f DetectorFunc) Detect(ctx context.Context, frame Frame) (Detection, error) {
	return f(ctx, frame)
}
