package core

type StreamChunkType string

const (
	StreamChunkTranscription     StreamChunkType = "transcription"
	StreamChunkAssistantDelta    StreamChunkType = "assistant_delta"
	StreamChunkAssistantAudio    StreamChunkType = "assistant_audio"
	StreamChunkConversationTitle StreamChunkType = "conversation_title"
)

// StreamChunk is one ordered event emitted to the caller while a turn is
// processed. Data is a flat string mapping so transports can forward it
// without knowing the chunk type.
type StreamChunk struct {
	Type StreamChunkType   `json:"type"`
	Data map[string]string `json:"data"`
}

// EmitFunc delivers one chunk to the caller. Returning an error means the
// delivery channel is gone and the turn should be aborted.
type EmitFunc func(StreamChunk) error

func NewTranscriptionChunk(content, audioPath string) StreamChunk {
	return StreamChunk{
		Type: StreamChunkTranscription,
		Data: map[string]string{"content": content, "audio_path": audioPath},
	}
}

func NewAssistantDeltaChunk(content string) StreamChunk {
	return StreamChunk{
		Type: StreamChunkAssistantDelta,
		Data: map[string]string{"content": content},
	}
}

func NewAssistantAudioChunk(audioPath string) StreamChunk {
	return StreamChunk{
		Type: StreamChunkAssistantAudio,
		Data: map[string]string{"audio_path": audioPath},
	}
}

func NewConversationTitleChunk(title, conversationID string) StreamChunk {
	return StreamChunk{
		Type: StreamChunkConversationTitle,
		Data: map[string]string{"title": title, "conversation_id": conversationID},
	}
}
