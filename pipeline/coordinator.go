package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/yessika-commits/realish-time-llm-chat/core"
	"github.com/yessika-commits/realish-time-llm-chat/media"
	"github.com/yessika-commits/realish-time-llm-chat/utils/text"
)

// imagePlaceholderText is the user-visible stand-in content for messages that
// carry only an image.
const imagePlaceholderText = "[image]"

// TextTurn is a user turn arriving as text, optionally with an attached
// image.
type TextTurn struct {
	ConversationID string
	Text           string
	ImagePath      string
	// audioPath links the turn back to a stored capture when it came through
	// the voice path.
	audioPath string
}

// VoiceTurn is a user turn arriving as a stored audio capture.
type VoiceTurn struct {
	ConversationID string
	AudioPath      string
}

// Coordinator runs one conversation turn end to end: persist the user
// message, stream the reply, persist it, infer a title for the opening
// exchange, and synthesize the spoken reply. Progress is delivered through an
// EmitFunc as ordered chunks.
type Coordinator struct {
	store     core.ConversationStore
	generator core.GenerationStreamer
	namer     core.TitleNamer
	speech    core.SpeechService
	paths     media.Paths
	logger    *core.Logger
}

// NewCoordinator wires the turn pipeline together. The namer and speech
// service may be nil; the corresponding phases then become no-ops.
func NewCoordinator(
	store core.ConversationStore,
	generator core.GenerationStreamer,
	namer core.TitleNamer,
	speech core.SpeechService,
	paths media.Paths,
	logger *core.Logger,
) *Coordinator {
	if logger == nil {
		logger = core.GetLogger()
	}
	return &Coordinator{
		store:     store,
		generator: generator,
		namer:     namer,
		speech:    speech,
		paths:     paths,
		logger:    logger,
	}
}

// HandleVoiceTurn transcribes a stored capture, reports the transcription,
// and runs the rest of the turn on the recognized text. An empty
// transcription still runs the turn: the user message is persisted with
// empty content and generation proceeds on the history as-is.
func (c *Coordinator) HandleVoiceTurn(ctx context.Context, turn VoiceTurn, emit core.EmitFunc) error {
	if c.speech == nil {
		return fmt.Errorf("pipeline: voice turn without a speech service")
	}
	audioRef := c.paths.Normalize(turn.AudioPath)

	transcript, err := c.speech.Transcribe(ctx, audioRef)
	if err != nil {
		return fmt.Errorf("pipeline: transcription failed: %w", err)
	}
	transcript = strings.TrimSpace(transcript)

	if err := emit(core.NewTranscriptionChunk(transcript, audioRef)); err != nil {
		return fmt.Errorf("pipeline: emit transcription: %w", err)
	}
	if transcript == "" {
		c.logger.With(map[string]any{"conversation_id": turn.ConversationID}).Info("capture produced no transcription")
	}

	return c.HandleTextTurn(ctx, TextTurn{
		ConversationID: turn.ConversationID,
		Text:           transcript,
		audioPath:      audioRef,
	}, emit)
}

// HandleTextTurn runs one text turn through the full pipeline.
func (c *Coordinator) HandleTextTurn(ctx context.Context, turn TextTurn, emit core.EmitFunc) error {
	tracker := &turnTracker{}
	log := c.logger.With(map[string]any{"conversation_id": turn.ConversationID})

	if err := tracker.to(statePersistingUser); err != nil {
		return err
	}
	userContent := strings.TrimSpace(turn.Text)
	imageRef := c.paths.Normalize(turn.ImagePath)
	if userContent == "" && imageRef != "" {
		userContent = imagePlaceholderText
	}
	// A voice turn may legitimately carry empty text; only a text turn with
	// nothing at all is rejected.
	if userContent == "" && turn.audioPath == "" {
		return fmt.Errorf("pipeline: turn carries neither text nor image")
	}
	userMsg, err := c.store.AppendMessage(ctx, core.Message{
		ConversationID: turn.ConversationID,
		Role:           core.ChatRoleUser,
		Content:        userContent,
		AudioPath:      turn.audioPath,
		ImagePath:      imageRef,
	})
	if err != nil {
		return fmt.Errorf("pipeline: persist user message: %w", err)
	}

	history, err := c.store.Messages(ctx, userMsg.ConversationID)
	if err != nil {
		return fmt.Errorf("pipeline: load history: %w", err)
	}
	firstExchange := true
	for _, msg := range history {
		if msg.Role == core.ChatRoleAssistant {
			firstExchange = false
			break
		}
	}

	if err := tracker.to(stateGenerating); err != nil {
		return err
	}
	var reply strings.Builder
	var emitFailure error
	streamErr := c.generator.StreamChat(ctx, c.buildPrompt(history), func(fragment string) error {
		cleaned := text.CleanModelText(fragment)
		if cleaned == "" {
			return nil
		}
		reply.WriteString(cleaned)
		if err := emit(core.NewAssistantDeltaChunk(cleaned)); err != nil {
			emitFailure = err
			return err
		}
		return nil
	})
	if emitFailure != nil {
		return fmt.Errorf("pipeline: emit reply fragment: %w", emitFailure)
	}
	if streamErr != nil {
		// The user message stays persisted; the turn simply has no reply.
		return fmt.Errorf("pipeline: generation failed: %w", streamErr)
	}

	replyText := strings.TrimSpace(reply.String())
	if replyText == "" {
		log.Info("generation produced an empty reply, ending turn")
		return tracker.to(stateDone)
	}

	if err := tracker.to(statePersistingAssistant); err != nil {
		return err
	}
	assistantMsg, err := c.store.AppendMessage(ctx, core.Message{
		ConversationID: userMsg.ConversationID,
		Role:           core.ChatRoleAssistant,
		Content:        replyText,
	})
	if err != nil {
		return fmt.Errorf("pipeline: persist assistant message: %w", err)
	}

	if firstExchange {
		if err := tracker.to(stateNaming); err != nil {
			return err
		}
		if err := c.nameConversation(ctx, userMsg.ConversationID, userContent, replyText, emit); err != nil {
			return err
		}
	}

	if err := tracker.to(stateSynthesizing); err != nil {
		return err
	}
	if err := c.synthesizeReply(ctx, assistantMsg, replyText, emit, log); err != nil {
		return err
	}

	return tracker.to(stateDone)
}

// buildPrompt maps the stored history into the generation prompt. Images are
// inlined as data URIs; a reference that cannot be read is logged and
// dropped rather than failing the turn.
func (c *Coordinator) buildPrompt(history []core.Message) []core.ChatMessage {
	prompt := make([]core.ChatMessage, 0, len(history))
	for _, msg := range history {
		content := msg.Content
		if content == imagePlaceholderText && msg.ImagePath != "" {
			content = ""
		}

		chatMsg := core.ChatMessage{Role: msg.Role, Content: content}
		if msg.ImagePath != "" {
			dataURI, err := c.paths.ImageDataURI(msg.ImagePath)
			if err != nil {
				c.logger.With(map[string]any{"image_path": msg.ImagePath, "error": err}).Warn("dropping unreadable image from prompt")
			} else {
				chatMsg.Images = []core.ChatImage{{DataURI: dataURI}}
			}
		}
		// Voice messages with an empty transcription stay in the history;
		// only messages with nothing behind them at all are dropped.
		if chatMsg.Content == "" && len(chatMsg.Images) == 0 && msg.AudioPath == "" {
			continue
		}
		prompt = append(prompt, chatMsg)
	}
	return prompt
}

// nameConversation infers a title for the opening exchange and renames the
// conversation when it still carries the placeholder title. Naming is best
// effort; only a failed emit aborts the turn.
func (c *Coordinator) nameConversation(ctx context.Context, conversationID, userText, replyText string, emit core.EmitFunc) error {
	if c.namer == nil {
		return nil
	}
	conv, err := c.store.GetConversation(ctx, conversationID)
	if err != nil {
		c.logger.With(map[string]any{"conversation_id": conversationID, "error": err}).Warn("skipping naming, conversation lookup failed")
		return nil
	}
	if conv.Title != core.DefaultConversationTitle {
		return nil
	}

	title := c.namer.ConversationTitle(ctx, userText, replyText)
	if title == "" {
		return nil
	}
	renamed, err := c.store.RenameConversation(ctx, conversationID, title)
	if err != nil {
		c.logger.With(map[string]any{"conversation_id": conversationID, "error": err}).Warn("renaming conversation failed")
		return nil
	}
	if !renamed {
		return nil
	}
	if err := emit(core.NewConversationTitleChunk(title, conversationID)); err != nil {
		return fmt.Errorf("pipeline: emit title: %w", err)
	}
	return nil
}

// synthesizeReply renders the reply to audio, attaches it to the assistant
// message, and reports it. Synthesis problems never fail the turn; only a
// failed emit does.
func (c *Coordinator) synthesizeReply(ctx context.Context, assistantMsg *core.Message, replyText string, emit core.EmitFunc, log *core.Logger) error {
	if c.speech == nil {
		return nil
	}
	audioPath, err := c.speech.Synthesize(ctx, replyText)
	if err != nil {
		log.With(map[string]any{"error": err}).Warn("reply synthesis failed, continuing without audio")
		return nil
	}
	if audioPath == "" {
		return nil
	}

	audioRef := c.paths.Normalize(audioPath)
	if err := c.store.SetMessageAudioPath(ctx, assistantMsg.ConversationID, assistantMsg.ID, audioRef); err != nil {
		log.With(map[string]any{"error": err}).Warn("attaching reply audio failed")
	}
	if err := emit(core.NewAssistantAudioChunk(audioRef)); err != nil {
		return fmt.Errorf("pipeline: emit reply audio: %w", err)
	}
	return nil
}
