package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/matryer/is"

	"github.com/yessika-commits/realish-time-llm-chat/core"
	"github.com/yessika-commits/realish-time-llm-chat/media"
)

// memoryStore is a minimal in-memory ConversationStore for pipeline tests.
type memoryStore struct {
	mu            sync.Mutex
	conversations map[string]*core.Conversation
	messages      map[string][]core.Message
	nextID        uint64
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		conversations: make(map[string]*core.Conversation),
		messages:      make(map[string][]core.Message),
	}
}

func (s *memoryStore) CreateConversation(ctx context.Context, id, title string) (*core.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked(id, title), nil
}

func (s *memoryStore) createLocked(id, title string) *core.Conversation {
	if existing, ok := s.conversations[id]; ok {
		return existing
	}
	if title == "" {
		title = core.DefaultConversationTitle
	}
	conv := &core.Conversation{ID: id, Title: title}
	s.conversations[id] = conv
	return conv
}

func (s *memoryStore) GetConversation(ctx context.Context, id string) (*core.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[id]
	if !ok {
		return nil, fmt.Errorf("conversation %q not found", id)
	}
	copied := *conv
	return &copied, nil
}

func (s *memoryStore) ListConversations(ctx context.Context) ([]core.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Conversation, 0, len(s.conversations))
	for _, conv := range s.conversations {
		out = append(out, *conv)
	}
	return out, nil
}

func (s *memoryStore) RenameConversation(ctx context.Context, id, title string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[id]
	if !ok {
		return false, nil
	}
	conv.Title = title
	return true, nil
}

func (s *memoryStore) DeleteConversation(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[id]; !ok {
		return false, nil
	}
	delete(s.conversations, id)
	delete(s.messages, id)
	return true, nil
}

func (s *memoryStore) AppendMessage(ctx context.Context, msg core.Message) (*core.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createLocked(msg.ConversationID, "")
	s.nextID++
	msg.ID = s.nextID
	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], msg)
	return &msg, nil
}

func (s *memoryStore) SetMessageAudioPath(ctx context.Context, conversationID string, messageID uint64, audioPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.messages[conversationID]
	for i := range msgs {
		if msgs[i].ID == messageID {
			msgs[i].AudioPath = audioPath
			return nil
		}
	}
	return fmt.Errorf("message %d not found", messageID)
}

func (s *memoryStore) Messages(ctx context.Context, conversationID string) ([]core.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Message(nil), s.messages[conversationID]...), nil
}

// scriptedGenerator replays fixed fragments and records the prompt it saw.
type scriptedGenerator struct {
	fragments []string
	err       error
	prompt    []core.ChatMessage
}

func (g *scriptedGenerator) StreamChat(ctx context.Context, messages []core.ChatMessage, onFragment func(string) error) error {
	g.prompt = messages
	for _, fragment := range g.fragments {
		if err := onFragment(fragment); err != nil {
			return err
		}
	}
	return g.err
}

// fixedNamer returns one title and counts how often it was consulted.
type fixedNamer struct {
	title string
	calls int
}

func (n *fixedNamer) ConversationTitle(ctx context.Context, userText, assistantText string) string {
	n.calls++
	return n.title
}

// fakeSpeech returns canned transcriptions and synthesized paths.
type fakeSpeech struct {
	transcript  string
	audioPath   string
	synthInput  string
	synthCalls  int
	transcribed string
}

func (s *fakeSpeech) Transcribe(ctx context.Context, audioPath string) (string, error) {
	s.transcribed = audioPath
	return s.transcript, nil
}

func (s *fakeSpeech) Synthesize(ctx context.Context, text string) (string, error) {
	s.synthCalls++
	s.synthInput = text
	return s.audioPath, nil
}

// chunkRecorder collects emitted chunks in order.
type chunkRecorder struct {
	chunks []core.StreamChunk
	failOn core.StreamChunkType
}

func (r *chunkRecorder) emit(chunk core.StreamChunk) error {
	if r.failOn != "" && chunk.Type == r.failOn {
		return errors.New("delivery channel gone")
	}
	r.chunks = append(r.chunks, chunk)
	return nil
}

func (r *chunkRecorder) types() []core.StreamChunkType {
	out := make([]core.StreamChunkType, 0, len(r.chunks))
	for _, chunk := range r.chunks {
		out = append(out, chunk.Type)
	}
	return out
}

func newTestCoordinator(store core.ConversationStore, gen core.GenerationStreamer, namer core.TitleNamer, speech core.SpeechService) *Coordinator {
	return NewCoordinator(store, gen, namer, speech, media.NewPaths("/srv/media"), core.GetLogger())
}

func TestTextTurnFullPipeline(t *testing.T) {
	is := is.New(t)
	store := newMemoryStore()
	gen := &scriptedGenerator{fragments: []string{"It's", " sunny."}}
	namer := &fixedNamer{title: "Weather Small Talk"}
	speech := &fakeSpeech{audioPath: "audio/responses/reply.wav"}
	rec := &chunkRecorder{}

	coord := newTestCoordinator(store, gen, namer, speech)
	err := coord.HandleTextTurn(context.Background(), TextTurn{
		ConversationID: "conv-1",
		Text:           "What's the weather?",
	}, rec.emit)
	is.NoErr(err)

	is.Equal(rec.types(), []core.StreamChunkType{
		core.StreamChunkAssistantDelta,
		core.StreamChunkAssistantDelta,
		core.StreamChunkConversationTitle,
		core.StreamChunkAssistantAudio,
	})
	is.Equal(rec.chunks[0].Data["content"], "It's")
	is.Equal(rec.chunks[1].Data["content"], " sunny.")
	is.Equal(rec.chunks[2].Data["title"], "Weather Small Talk")
	is.Equal(rec.chunks[3].Data["audio_path"], "audio/responses/reply.wav")

	msgs, err := store.Messages(context.Background(), "conv-1")
	is.NoErr(err)
	is.Equal(len(msgs), 2)
	is.Equal(msgs[0].Role, core.ChatRoleUser)
	is.Equal(msgs[1].Role, core.ChatRoleAssistant)
	is.Equal(msgs[1].Content, "It's sunny.")
	is.Equal(msgs[1].AudioPath, "audio/responses/reply.wav")

	conv, err := store.GetConversation(context.Background(), "conv-1")
	is.NoErr(err)
	is.Equal(conv.Title, "Weather Small Talk")
	is.Equal(speech.synthInput, "It's sunny.")
}

func TestSecondExchangeIsNotRenamed(t *testing.T) {
	is := is.New(t)
	store := newMemoryStore()
	namer := &fixedNamer{title: "Should Not Appear"}
	speech := &fakeSpeech{}
	rec := &chunkRecorder{}

	coord := newTestCoordinator(store, &scriptedGenerator{fragments: []string{"hello"}}, namer, speech)
	is.NoErr(coord.HandleTextTurn(context.Background(), TextTurn{ConversationID: "conv-1", Text: "hi"}, rec.emit))
	is.Equal(namer.calls, 1)

	is.NoErr(coord.HandleTextTurn(context.Background(), TextTurn{ConversationID: "conv-1", Text: "again"}, rec.emit))
	is.Equal(namer.calls, 1) // no second naming attempt
}

func TestRenamedConversationKeepsManualTitle(t *testing.T) {
	is := is.New(t)
	store := newMemoryStore()
	// Conversation exists with a user-chosen title before the first exchange.
	_, err := store.CreateConversation(context.Background(), "conv-1", "My Notes")
	is.NoErr(err)

	namer := &fixedNamer{title: "Generated Title"}
	rec := &chunkRecorder{}
	coord := newTestCoordinator(store, &scriptedGenerator{fragments: []string{"hello"}}, namer, &fakeSpeech{})
	is.NoErr(coord.HandleTextTurn(context.Background(), TextTurn{ConversationID: "conv-1", Text: "hi"}, rec.emit))

	is.Equal(namer.calls, 0)
	conv, err := store.GetConversation(context.Background(), "conv-1")
	is.NoErr(err)
	is.Equal(conv.Title, "My Notes")
}

func TestEmptyReplyShortCircuits(t *testing.T) {
	is := is.New(t)
	store := newMemoryStore()
	namer := &fixedNamer{title: "Nope"}
	speech := &fakeSpeech{audioPath: "audio/responses/reply.wav"}
	rec := &chunkRecorder{}

	coord := newTestCoordinator(store, &scriptedGenerator{}, namer, speech)
	err := coord.HandleTextTurn(context.Background(), TextTurn{ConversationID: "conv-1", Text: "hi"}, rec.emit)
	is.NoErr(err)

	is.Equal(len(rec.chunks), 0)
	is.Equal(namer.calls, 0)
	is.Equal(speech.synthCalls, 0)

	// The user message is still persisted.
	msgs, err := store.Messages(context.Background(), "conv-1")
	is.NoErr(err)
	is.Equal(len(msgs), 1)
	is.Equal(msgs[0].Role, core.ChatRoleUser)
}

func TestGenerationFailureKeepsUserMessage(t *testing.T) {
	is := is.New(t)
	store := newMemoryStore()
	gen := &scriptedGenerator{fragments: []string{"partial"}, err: errors.New("backend died")}
	rec := &chunkRecorder{}

	coord := newTestCoordinator(store, gen, &fixedNamer{}, &fakeSpeech{})
	err := coord.HandleTextTurn(context.Background(), TextTurn{ConversationID: "conv-1", Text: "hi"}, rec.emit)
	is.True(err != nil)

	msgs, err := store.Messages(context.Background(), "conv-1")
	is.NoErr(err)
	is.Equal(len(msgs), 1) // no assistant message persisted
	is.Equal(msgs[0].Role, core.ChatRoleUser)
}

func TestFragmentsAreCleanedBeforeDelivery(t *testing.T) {
	is := is.New(t)
	store := newMemoryStore()
	gen := &scriptedGenerator{fragments: []string{"<|channel|>", "assistant: hello", " there"}}
	rec := &chunkRecorder{}

	coord := newTestCoordinator(store, gen, nil, nil)
	is.NoErr(coord.HandleTextTurn(context.Background(), TextTurn{ConversationID: "conv-1", Text: "hi"}, rec.emit))

	// The control-token fragment cleans to nothing and is never emitted.
	is.Equal(rec.types(), []core.StreamChunkType{core.StreamChunkAssistantDelta, core.StreamChunkAssistantDelta})
	is.Equal(rec.chunks[0].Data["content"], "hello")

	msgs, err := store.Messages(context.Background(), "conv-1")
	is.NoErr(err)
	is.Equal(msgs[1].Content, "hello there")
}

func TestVoiceTurnEmitsTranscriptionFirst(t *testing.T) {
	is := is.New(t)
	store := newMemoryStore()
	gen := &scriptedGenerator{fragments: []string{"It's sunny."}}
	speech := &fakeSpeech{transcript: "What's the weather?", audioPath: "audio/responses/reply.wav"}
	rec := &chunkRecorder{}

	coord := newTestCoordinator(store, gen, &fixedNamer{title: "Weather Small Talk"}, speech)
	err := coord.HandleVoiceTurn(context.Background(), VoiceTurn{
		ConversationID: "conv-1",
		AudioPath:      "/media/audio/input/capture.wav",
	}, rec.emit)
	is.NoErr(err)

	is.Equal(rec.types(), []core.StreamChunkType{
		core.StreamChunkTranscription,
		core.StreamChunkAssistantDelta,
		core.StreamChunkConversationTitle,
		core.StreamChunkAssistantAudio,
	})
	// The served prefix is stripped from the stored reference.
	is.Equal(rec.chunks[0].Data["audio_path"], "audio/input/capture.wav")
	is.Equal(rec.chunks[0].Data["content"], "What's the weather?")

	msgs, err := store.Messages(context.Background(), "conv-1")
	is.NoErr(err)
	is.Equal(msgs[0].Content, "What's the weather?")
	is.Equal(msgs[0].AudioPath, "audio/input/capture.wav")
}

func TestVoiceTurnEmptyTranscriptionStillRunsTurn(t *testing.T) {
	is := is.New(t)
	store := newMemoryStore()
	speech := &fakeSpeech{transcript: "   "}
	rec := &chunkRecorder{}

	coord := newTestCoordinator(store, &scriptedGenerator{fragments: []string{"I heard nothing."}}, nil, speech)
	err := coord.HandleVoiceTurn(context.Background(), VoiceTurn{ConversationID: "conv-1", AudioPath: "audio/input/capture.wav"}, rec.emit)
	is.NoErr(err)

	// The empty transcription is reported and the turn proceeds regardless.
	is.Equal(rec.types(), []core.StreamChunkType{
		core.StreamChunkTranscription,
		core.StreamChunkAssistantDelta,
	})
	is.Equal(rec.chunks[0].Data["content"], "")

	msgs, err := store.Messages(context.Background(), "conv-1")
	is.NoErr(err)
	is.Equal(len(msgs), 2)
	is.Equal(msgs[0].Role, core.ChatRoleUser)
	is.Equal(msgs[0].Content, "")
	is.Equal(msgs[0].AudioPath, "audio/input/capture.wav")
	is.Equal(msgs[1].Role, core.ChatRoleAssistant)
	is.Equal(msgs[1].Content, "I heard nothing.")
}

func TestImageOnlyTurnGetsPlaceholderContent(t *testing.T) {
	is := is.New(t)
	store := newMemoryStore()
	gen := &scriptedGenerator{fragments: []string{"A cat."}}
	rec := &chunkRecorder{}

	coord := newTestCoordinator(store, gen, nil, nil)
	err := coord.HandleTextTurn(context.Background(), TextTurn{
		ConversationID: "conv-1",
		ImagePath:      "images/cat.png",
	}, rec.emit)
	is.NoErr(err)

	msgs, err := store.Messages(context.Background(), "conv-1")
	is.NoErr(err)
	is.Equal(msgs[0].Content, "[image]")
	is.Equal(msgs[0].ImagePath, "images/cat.png")
}

func TestEmptyTurnIsRejected(t *testing.T) {
	is := is.New(t)
	coord := newTestCoordinator(newMemoryStore(), &scriptedGenerator{}, nil, nil)
	err := coord.HandleTextTurn(context.Background(), TextTurn{ConversationID: "conv-1", Text: "   "}, func(core.StreamChunk) error { return nil })
	is.True(err != nil)
}

func TestEmitFailureAbortsTurn(t *testing.T) {
	is := is.New(t)
	store := newMemoryStore()
	gen := &scriptedGenerator{fragments: []string{"hello", " there"}}
	rec := &chunkRecorder{failOn: core.StreamChunkAssistantDelta}

	coord := newTestCoordinator(store, gen, &fixedNamer{title: "Nope"}, &fakeSpeech{})
	err := coord.HandleTextTurn(context.Background(), TextTurn{ConversationID: "conv-1", Text: "hi"}, rec.emit)
	is.True(err != nil)
	is.True(strings.Contains(err.Error(), "emit reply fragment"))

	// Nothing after the failed delivery was persisted.
	msgs, err := store.Messages(context.Background(), "conv-1")
	is.NoErr(err)
	is.Equal(len(msgs), 1)
}

func TestPromptIncludesHistoryInOrder(t *testing.T) {
	is := is.New(t)
	store := newMemoryStore()
	gen := &scriptedGenerator{fragments: []string{"fine"}}
	coord := newTestCoordinator(store, gen, nil, nil)

	is.NoErr(coord.HandleTextTurn(context.Background(), TextTurn{ConversationID: "conv-1", Text: "first"}, func(core.StreamChunk) error { return nil }))
	is.NoErr(coord.HandleTextTurn(context.Background(), TextTurn{ConversationID: "conv-1", Text: "second"}, func(core.StreamChunk) error { return nil }))

	is.Equal(len(gen.prompt), 3)
	is.Equal(gen.prompt[0].Content, "first")
	is.Equal(gen.prompt[1].Content, "fine")
	is.Equal(gen.prompt[2].Content, "second")
}
