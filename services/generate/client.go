package generate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/yessika-commits/realish-time-llm-chat/core"
)

// Config holds the configuration for the streaming generation client.
type Config struct {
	// Host is the backend base URL; the client derives both protocol
	// endpoints from it.
	Host         string
	APIKey       string
	Model        string
	SystemPrompt string
	// Timeout bounds one whole generation request. Zero means DefaultTimeout.
	Timeout time.Duration
}

// DefaultTimeout bounds a full generation round trip, stream included.
const DefaultTimeout = 120 * time.Second

// Client streams chat replies from the generation backend. It speaks the
// chat-completions streaming protocol first and falls back to the
// line-delimited generate protocol when the primary fails before yielding
// anything.
type Client struct {
	config Config
	openai *openai.Client
	http   *http.Client
	logger *core.Logger
}

// NewClient creates a generation client for an OpenAI-compatible or
// ollama-style backend.
func NewClient(config Config, logger *core.Logger) *Client {
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = core.GetLogger()
	}
	httpClient := &http.Client{Timeout: config.Timeout}

	openaiConfig := openai.DefaultConfig(config.APIKey)
	openaiConfig.BaseURL = strings.TrimRight(config.Host, "/") + "/v1"
	openaiConfig.HTTPClient = httpClient

	return &Client{
		config: config,
		openai: openai.NewClientWithConfig(openaiConfig),
		http:   httpClient,
		logger: logger,
	}
}

// emitError marks a failure of the caller's fragment sink, which must abort
// the generation without trying the fallback protocol.
type emitError struct {
	err error
}

func (e emitError) Error() string { return e.err.Error() }
func (e emitError) Unwrap() error { return e.err }

// StreamChat produces the backend's reply for the message history, invoking
// onFragment for every incremental piece of content in emission order. The
// configured system prompt is prepended unconditionally. A nil return with no
// fragments delivered is an empty reply, not an error.
func (c *Client) StreamChat(ctx context.Context, messages []core.ChatMessage, onFragment func(string) error) error {
	payload := make([]core.ChatMessage, 0, len(messages)+1)
	payload = append(payload, core.ChatMessage{Role: core.ChatRoleSystem, Content: c.config.SystemPrompt})
	payload = append(payload, messages...)

	yielded := false
	err := c.streamChatCompletions(ctx, payload, func(fragment string) error {
		yielded = true
		return onFragment(fragment)
	})
	if err == nil {
		return nil
	}
	var emitErr emitError
	if errors.As(err, &emitErr) {
		return emitErr.err
	}
	if yielded {
		// The primary protocol broke mid-reply; switching protocols now
		// would replay content, so the failure is terminal.
		return fmt.Errorf("generate: stream interrupted: %w", err)
	}

	c.logger.With(map[string]any{"error": err}).Warn("chat-completions streaming failed, falling back to generate protocol")
	if err := c.streamGenerate(ctx, payload, onFragment); err != nil {
		var emitErr emitError
		if errors.As(err, &emitErr) {
			return emitErr.err
		}
		return fmt.Errorf("generate: fallback protocol failed: %w", err)
	}
	return nil
}

// streamChatCompletions drives the primary protocol: newline-delimited
// data:-prefixed JSON events with per-choice content deltas, terminated by a
// sentinel event.
func (c *Client) streamChatCompletions(ctx context.Context, messages []core.ChatMessage, onFragment func(string) error) error {
	req := openai.ChatCompletionRequest{
		Model:    c.config.Model,
		Messages: convertMessages(messages),
		Stream:   true,
	}
	stream, err := c.openai.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return err
	}
	defer stream.Close()

	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if len(response.Choices) == 0 {
			continue
		}
		if content := response.Choices[0].Delta.Content; content != "" {
			if err := onFragment(content); err != nil {
				return emitError{err: err}
			}
		}
	}
}

// convertMessages maps the history into the chat-completions wire shape.
// Messages carrying images become mixed-content messages with the image
// inlined as a data URI.
func convertMessages(messages []core.ChatMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		converted := openai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		}
		if len(msg.Images) > 0 {
			parts := make([]openai.ChatMessagePart, 0, len(msg.Images)+1)
			for _, img := range msg.Images {
				parts = append(parts, openai.ChatMessagePart{
					Type: openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{
						URL:    img.DataURI,
						Detail: openai.ImageURLDetailHigh,
					},
				})
			}
			if msg.Content != "" {
				parts = append(parts, openai.ChatMessagePart{
					Type: openai.ChatMessagePartTypeText,
					Text: msg.Content,
				})
			}
			converted.MultiContent = parts
			converted.Content = "" // multi-content messages carry no flat content
		}
		out = append(out, converted)
	}
	return out
}

// FlattenPrompt joins a role-tagged history into the single prompt string the
// fallback protocol expects.
func FlattenPrompt(messages []core.ChatMessage) string {
	lines := make([]string, 0, len(messages))
	for _, msg := range messages {
		lines = append(lines, fmt.Sprintf("%s: %s", msg.Role, msg.Content))
	}
	return strings.Join(lines, "\n")
}
