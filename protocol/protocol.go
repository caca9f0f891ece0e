package protocol

import (
	"fmt"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/yessika-commits/realish-time-llm-chat/core"
)

// Turn types accepted on the wire.
const (
	TurnTypeText  = "text"
	TurnTypeAudio = "audio"
)

// Error codes reported to the client in an error envelope.
const (
	ErrInvalidPayload   = "invalid_payload"
	ErrUnsupportedType  = "unsupported_type"
	ErrMissingAudioPath = "missing_audio_path"
	ErrTurnFailed       = "turn_failed"
)

// TurnRequest is one inbound client message starting a conversation turn.
type TurnRequest struct {
	ConversationID string `json:"conversation_id"`
	Type           string `json:"type"`
	Text           string `json:"text,omitempty"`
	AudioPath      string `json:"audio_path,omitempty"`
	ImagePath      string `json:"image_path,omitempty"`
}

// Validate checks the request shape and returns a wire error code on
// failure.
func (r TurnRequest) Validate() string {
	if strings.TrimSpace(r.ConversationID) == "" {
		return ErrInvalidPayload
	}
	switch r.Type {
	case TurnTypeText:
		if strings.TrimSpace(r.Text) == "" && strings.TrimSpace(r.ImagePath) == "" {
			return ErrInvalidPayload
		}
	case TurnTypeAudio:
		if strings.TrimSpace(r.AudioPath) == "" {
			return ErrMissingAudioPath
		}
	case "":
		return ErrInvalidPayload
	default:
		return ErrUnsupportedType
	}
	return ""
}

// DecodeTurnRequest parses one inbound frame.
func DecodeTurnRequest(data []byte) (TurnRequest, error) {
	var req TurnRequest
	if err := sonic.Unmarshal(data, &req); err != nil {
		return TurnRequest{}, fmt.Errorf("protocol: decode turn request: %w", err)
	}
	return req, nil
}

// EncodeChunk serializes one outbound stream chunk.
func EncodeChunk(chunk core.StreamChunk) ([]byte, error) {
	data, err := sonic.Marshal(chunk)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode chunk: %w", err)
	}
	return data, nil
}

// errorEnvelope is the outbound error frame shape.
type errorEnvelope struct {
	Error string `json:"error"`
}

// EncodeError serializes an error code into its envelope.
func EncodeError(code string) []byte {
	data, _ := sonic.Marshal(errorEnvelope{Error: code})
	return data
}
