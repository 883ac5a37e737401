package model

import "time"

// Classification is the normalized reading of one detector sample.
type Classification string

const (
	ClassSingle   Classification = "single"
	ClassNone     Classification = "none"
	ClassMultiple Classification = "multiple"
)

// Detector status strings as reported by the face-check endpoint.
const (
	DetectorSingleFace    = "single_face"
	DetectorNoFace        = "no_face"
	DetectorMultipleFaces = "multiple_faces"
)

// Sample is one presence-detector result. It is consumed immediately.
type Sample struct {
	FaceCount      int            `json:"face_count"`
	Classification Classification `json:"classification"`
	Timestamp      time.Time      `json:"timestamp"`
}

// ClassifyFaces normalizes a detector status and face count. The count wins
// when the two disagree, an empty status means single face, and an unknown
// status with one face is treated as clean.
func ClassifyFaces(status string, faceCount int) Classification {
	switch {
	case status == DetectorMultipleFaces || faceCount > 1:
		return ClassMultiple
	case status == DetectorNoFace || faceCount <= 0:
		return ClassNone
	default:
		return ClassSingle
	}
}

// Verdict is the debounced outcome of a sample.
type Verdict string

const (
	VerdictNone           Verdict = "none"
	VerdictConfirmedMulti Verdict = "confirmed_multi"
	VerdictConfirmedNone  Verdict = "confirmed_none"
)

// Reason returns the user-facing reason for a confirmed verdict.
func (v Verdict) Reason() string {
	switch v {
	case VerdictConfirmedMulti:
		return "Multiple faces detected"
	case VerdictConfirmedNone:
		return "No face detected"
	default:
		return ""
	}
}

// Strike is the outcome of one visibility transition.
type Strike string

const (
	StrikeIgnored Strike = "ignored"
	StrikeFirst   Strike = "first_strike"
	StrikeSecond  Strike = "second_strike"
)

// IntegrityState is a point-in-time snapshot of one session's counters.
type IntegrityState struct {
	TabSwitchCount         int  `json:"tab_switch_count"`
	PresenceViolationCount int  `json:"presence_violation_count"`
	MultiFaceStreak        int  `json:"multi_face_streak"`
	NoFaceStreak           int  `json:"no_face_streak"`
	IsFullscreen           bool `json:"is_fullscreen"`
	Terminated             bool `json:"terminated"`
}
