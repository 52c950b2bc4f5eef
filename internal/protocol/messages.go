// Package protocol defines the websocket chat messages.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeClientText     MessageType = "client_text"
	TypeClientAudio    MessageType = "client_audio"
	TypeClientControl  MessageType = "client_control"
	TypeAnalysisResult MessageType = "analysis_result"
	TypeSystemEvent    MessageType = "system_event"
	TypeErrorEvent     MessageType = "error_event"
)

// Control actions.
const (
	ActionClearMemory = "clear_memory"
	ActionEndSession  = "end_session"
	ActionPing        = "ping"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

type ClientText struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	Text      string      `json:"text"`
}

type ClientAudio struct {
	Type        MessageType `json:"type"`
	SessionID   string      `json:"session_id,omitempty"`
	AudioBase64 string      `json:"audio_base64"`
	Format      string      `json:"format,omitempty"`
}

type ClientControl struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	Action    string      `json:"action"`
}

// AnalysisResult carries one completed turn back to the client.
type AnalysisResult struct {
	Type            MessageType `json:"type"`
	SessionID       string      `json:"session_id"`
	TranscribedText string      `json:"transcribed_text,omitempty"`
	Intent          string      `json:"intent"`
	Emotion         string      `json:"emotion"`
	Sentiment       string      `json:"sentiment"`
	ResponseText    string      `json:"response_text"`
	AudioBase64     string      `json:"audio_base64,omitempty"`
	AudioFormat     string      `json:"audio_format,omitempty"`
}

type SystemEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Detail    string      `json:"detail,omitempty"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Source    string      `json:"source"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientText:
		var msg ClientText
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if strings.TrimSpace(msg.Text) == "" {
			return nil, errors.New("invalid client_text: text is empty")
		}
		return msg, nil
	case TypeClientAudio:
		var msg ClientAudio
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.AudioBase64 == "" {
			return nil, errors.New("invalid client_audio: audio_base64 is empty")
		}
		return msg, nil
	case TypeClientControl:
		var msg ClientControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		switch msg.Action {
		case ActionClearMemory, ActionEndSession, ActionPing:
			return msg, nil
		default:
			return nil, fmt.Errorf("invalid client_control: unknown action %q", msg.Action)
		}
	default:
		return nil, ErrUnsupportedType
	}
}
