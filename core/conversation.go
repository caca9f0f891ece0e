package core

import (
	"context"
	"time"
)

// DefaultConversationTitle is the placeholder title a conversation carries
// until the first naming attempt succeeds.
const DefaultConversationTitle = "New Conversation"

// Conversation is a persisted conversation thread. The coordinator only ever
// reads it and renames it; everything else belongs to the store.
type Conversation struct {
	ID        string    `msgpack:"id" json:"id"`
	Title     string    `msgpack:"title" json:"title"`
	CreatedAt time.Time `msgpack:"created_at" json:"created_at"`
	UpdatedAt time.Time `msgpack:"updated_at" json:"updated_at"`
}

// Message is a persisted message owned by exactly one conversation. IDs are
// assigned monotonically per conversation; history order is creation order
// with the ID as tie-breaker.
type Message struct {
	ID             uint64    `msgpack:"id" json:"id"`
	ConversationID string    `msgpack:"conversation_id" json:"conversation_id"`
	Role           ChatRole  `msgpack:"role" json:"role"`
	Content        string    `msgpack:"content" json:"content"`
	AudioPath      string    `msgpack:"audio_path,omitempty" json:"audio_path,omitempty"`
	ImagePath      string    `msgpack:"image_path,omitempty" json:"image_path,omitempty"`
	CreatedAt      time.Time `msgpack:"created_at" json:"created_at"`
}

// ConversationStore is the persistence capability the coordinator consumes.
// Every method is a self-contained unit of work: committed on success, rolled
// back on error, never spanning more than one call.
type ConversationStore interface {
	// CreateConversation creates a conversation with the given title, or the
	// placeholder title when empty. A generated ID is assigned when id is "".
	CreateConversation(ctx context.Context, id, title string) (*Conversation, error)
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	ListConversations(ctx context.Context) ([]Conversation, error)
	// RenameConversation reports whether a conversation was actually renamed.
	RenameConversation(ctx context.Context, id, title string) (bool, error)
	// DeleteConversation removes the conversation and all of its messages.
	DeleteConversation(ctx context.Context, id string) (bool, error)

	// AppendMessage inserts a message, creating the conversation with the
	// placeholder title first when it does not exist yet.
	AppendMessage(ctx context.Context, msg Message) (*Message, error)
	// SetMessageAudioPath attaches an audio reference to an existing message.
	SetMessageAudioPath(ctx context.Context, conversationID string, messageID uint64, audioPath string) error
	// Messages returns the conversation history in ascending ID order.
	Messages(ctx context.Context, conversationID string) ([]Message, error)
}
