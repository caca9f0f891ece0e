package core

type ChatRole string

const (
	ChatRoleSystem    ChatRole = "system"
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
)

// ChatImage is an image attached to a chat message, already inlined as a
// base64 data URI so generation backends need no filesystem access.
type ChatImage struct {
	DataURI string `json:"data_uri"`
}

// ChatMessage is one role-tagged entry in the prompt history handed to the
// generation backend.
type ChatMessage struct {
	Role    ChatRole    `json:"role"`
	Content string      `json:"content"`
	Images  []ChatImage `json:"images,omitempty"`
}
