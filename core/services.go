package core

import "context"

// GenerationStreamer produces a live reply for a message history, delivering
// raw fragments through onFragment in backend emission order. The returned
// error is terminal for the generation; a stream that yields no fragments and
// no error is an empty reply.
type GenerationStreamer interface {
	StreamChat(ctx context.Context, messages []ChatMessage, onFragment func(fragment string) error) error
}

// TitleNamer proposes a short conversation title for a completed exchange.
// It never fails: an empty string means no title is available.
type TitleNamer interface {
	ConversationTitle(ctx context.Context, userText, assistantText string) string
}

// SpeechService is the external transcription/synthesis capability.
type SpeechService interface {
	// Transcribe converts a stored audio artifact to text.
	Transcribe(ctx context.Context, audioPath string) (string, error)
	// Synthesize renders text to a stored audio artifact and returns its
	// absolute path. It returns "" with a nil error when voice output is
	// disabled or the text has nothing to speak.
	Synthesize(ctx context.Context, text string) (string, error)
}
