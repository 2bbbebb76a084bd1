package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeClientControl   MessageType = "client_control"
	TypeSessionSnapshot MessageType = "session_snapshot"
	TypeAdvisoryRaised  MessageType = "advisory_raised"
	TypeAdvisoryCleared MessageType = "advisory_cleared"
	TypeSessionEnded    MessageType = "session_ended"
	TypeErrorEvent      MessageType = "error_event"
)

// Client control actions.
const (
	ActionStop     = "stop"
	ActionSnapshot = "snapshot"
	ActionPing     = "ping"
)

var (
	ErrUnsupportedType   = errors.New("unsupported message type")
	ErrUnsupportedAction = errors.New("unsupported control action")
)

type Envelope struct {
	Type MessageType `json:"type"`
}

type ClientControl struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	Action    string      `json:"action"`
	TSMs      int64       `json:"ts_ms,omitempty"`
}

type Advisory struct {
	Kind        string `json:"kind"`
	Message     string `json:"message"`
	RaisedAtMs  int64  `json:"raised_at_ms"`
	ExpiresAtMs int64  `json:"expires_at_ms,omitempty"`
}

type SessionSnapshot struct {
	Type                 MessageType `json:"type"`
	SessionID            string      `json:"session_id"`
	StudentName          string      `json:"student_name"`
	Status               string      `json:"status"`
	Active               bool        `json:"active"`
	ElapsedSeconds       int64       `json:"elapsed_seconds"`
	HeadMovementCount    int         `json:"head_movement_count"`
	DeviceDetectionCount int         `json:"device_detection_count"`
	CheatingPercentage   int         `json:"cheating_percentage"`
	TrustScore           int         `json:"trust_score"`
	Tier                 string      `json:"tier"`
	Gauge                string      `json:"gauge"`
	CameraAvailable      bool        `json:"camera_available"`
	Advisories           []Advisory  `json:"advisories"`
	TSMs                 int64       `json:"ts_ms"`
}

type AdvisoryEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Advisory  Advisory    `json:"advisory"`
	TSMs      int64       `json:"ts_ms"`
}

type SessionEnded struct {
	Type               MessageType `json:"type"`
	SessionID          string      `json:"session_id"`
	Status             string      `json:"status"`
	TrustScore         int         `json:"trust_score"`
	CheatingPercentage int         `json:"cheating_percentage"`
	EndTimeMs          int64       `json:"end_time_ms"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	Code      string      `json:"code"`
	Detail    string      `json:"detail"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientControl:
		var msg ClientControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		switch msg.Action {
		case ActionStop, ActionSnapshot, ActionPing:
			return msg, nil
		case "":
			return nil, errors.New("invalid client_control")
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedAction, msg.Action)
		}
	default:
		return nil, ErrUnsupportedType
	}
}
