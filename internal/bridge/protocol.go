package bridge

import (
	"encoding/base64"
	"errors"
	"strings"

	"github.com/enftaurus/vidyamitra/internal/presence"
	"github.com/enftaurus/vidyamitra/internal/session"
	"github.com/enftaurus/vidyamitra/pkg/model"
)

// MessageType tags every websocket message in both directions.
type MessageType string

// Inbound, sent by the round view.
const (
	MsgLoaded           MessageType = "loaded"
	MsgFullscreen       MessageType = "fullscreen"
	MsgFullscreenDenied MessageType = "fullscreen_denied"
	MsgVisibility       MessageType = "visibility"
	MsgFrame            MessageType = "frame"
	MsgCameraError      MessageType = "camera_error"
	MsgComplete         MessageType = "complete"
)

// Outbound, sent by the controller.
const (
	MsgState      MessageType = "state"
	MsgWarning    MessageType = "warning"
	MsgNotice     MessageType = "notice"
	MsgBlocked    MessageType = "blocked"
	MsgTerminated MessageType = "terminated"
	MsgCompleted  MessageType = "completed"
)

// Inbound is any message from the view. Only the fields of its Type are set.
type Inbound struct {
	Type   MessageType `json:"type"`
	Loaded *bool       `json:"loaded,omitempty"`
	Active bool        `json:"active,omitempty"`
	Hidden bool        `json:"hidden,omitempty"`
	Image  string      `json:"image,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// Outbound wraps a payload for the view.
type Outbound struct {
	Type    MessageType `json:"type"`
	Payload any         `json:"payload"`
}

type StatePayload struct {
	State     session.State        `json:"state"`
	Integrity model.IntegrityState `json:"integrity"`
}

type NoticePayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type BlockedPayload struct {
	Next    model.RoundKey `json:"next,omitempty"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
}

type TerminatedPayload struct {
	Cause    session.Cause `json:"cause"`
	Message  string        `json:"message"`
	Redirect string        `json:"redirect"`
}

type CompletedPayload struct {
	Round       model.RoundKey `json:"round"`
	CycleClosed bool           `json:"cycle_closed"`
}

var errBadDataURL = errors.New("image is not a base64 data URL")

// parseDataURL decodes "data:<mime>;base64,<payload>".
func parseDataURL(s string) (presence.Frame, error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return presence.Frame{}, errBadDataURL
	}
	meta, data, ok := strings.Cut(rest, ",")
	if !ok {
		return presence.Frame{}, errBadDataURL
	}
	mime, ok := strings.CutSuffix(meta, ";base64")
	if !ok {
		return presence.Frame{}, errBadDataURL
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return presence.Frame{}, errBadDataURL
	}
	return presence.Frame{Data: raw, MIME: mime}, nil
}
