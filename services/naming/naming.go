package naming

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	openai "github.com/sashabaranov/go-openai"

	"github.com/yessika-commits/realish-time-llm-chat/core"
)

// Config holds the configuration for the title inference client.
type Config struct {
	Host   string
	APIKey string
	Model  string
	// Timeout bounds each individual naming attempt. Zero means DefaultTimeout.
	Timeout time.Duration
}

// DefaultTimeout bounds one naming attempt; title inference is best effort and
// must never stall a turn.
const DefaultTimeout = 15 * time.Second

const titleInstruction = "Return only a short conversation title in 2 to 5 plain words. " +
	"Do not include explanations, punctuation, quotes, lists, JSON, or reasoning."

// Namer infers short conversation titles from the first exchange. It tries
// three backend protocols in order and treats every failure as "no title".
type Namer struct {
	config Config
	openai *openai.Client
	http   *http.Client
	logger *core.Logger
}

// NewNamer creates a title inference client against the same backend host as
// the generation client.
func NewNamer(config Config, logger *core.Logger) *Namer {
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

	return &Namer{
		config: config,
		openai: openai.NewClientWithConfig(openaiConfig),
		http:   httpClient,
		logger: logger,
	}
}

// ConversationTitle returns a sanitized title for the opening exchange, or ""
// when no usable title could be produced. It never returns an error; callers
// keep the placeholder title on "".
func (n *Namer) ConversationTitle(ctx context.Context, userText, assistantText string) string {
	userText = strings.TrimSpace(userText)
	assistantText = strings.TrimSpace(assistantText)
	if userText == "" || assistantText == "" {
		return ""
	}

	prompt := fmt.Sprintf(
		"The user asked: %s\nYou answered: %s\nGive only a brief descriptive title (2-5 words).",
		userText, assistantText,
	)

	attempts := []func(context.Context, string) (string, error){
		n.viaChatCompletions,
		n.viaGenerate,
		n.viaChat,
	}
	for _, attempt := range attempts {
		attemptCtx, cancel := context.WithTimeout(ctx, n.config.Timeout)
		raw, err := attempt(attemptCtx, prompt)
		cancel()
		if err != nil {
			n.logger.With(map[string]any{"error": err}).Debug("naming attempt failed")
			continue
		}
		if strings.TrimSpace(raw) == "" {
			continue
		}
		// The first attempt that produced anything wins; sanitization runs
		// once on that answer, and a rejected title means no title at all.
		return SanitizeTitle(raw)
	}
	return ""
}

// viaChatCompletions asks for a title over the chat-completions protocol.
func (n *Namer) viaChatCompletions(ctx context.Context, prompt string) (string, error) {
	resp, err := n.openai.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: n.config.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: titleInstruction},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   50,
		Temperature: 0.5,
		N:           1,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty completion")
	}
	return resp.Choices[0].Message.Content, nil
}

type generateTitleRequest struct {
	Model   string               `json:"model"`
	Prompt  string               `json:"prompt"`
	Stream  bool                 `json:"stream"`
	Options generateTitleOptions `json:"options"`
}

// generateTitleOptions carries sampling parameters; the generate protocol
// only honors them nested under options.
type generateTitleOptions struct {
	Temperature float64 `json:"temperature"`
}

type generateTitleResponse struct {
	Response string `json:"response"`
	Message  string `json:"message"`
}

// viaGenerate asks for a title over the non-streaming generate protocol with
// an explicit assistant cue appended to the prompt.
func (n *Namer) viaGenerate(ctx context.Context, prompt string) (string, error) {
	body, err := sonic.Marshal(generateTitleRequest{
		Model:   n.config.Model,
		Prompt:  titleInstruction + "\n\n" + prompt + "\nassistant:",
		Stream:  false,
		Options: generateTitleOptions{Temperature: 0.0},
	})
	if err != nil {
		return "", err
	}
	data, err := n.post(ctx, "/api/generate", body)
	if err != nil {
		return "", err
	}
	var resp generateTitleResponse
	if err := sonic.Unmarshal(data, &resp); err != nil {
		return "", err
	}
	if resp.Response != "" {
		return resp.Response, nil
	}
	return resp.Message, nil
}

type chatTitleRequest struct {
	Model    string             `json:"model"`
	Messages []chatTitleMessage `json:"messages"`
	Stream   bool               `json:"stream"`
}

type chatTitleMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// viaChat asks for a title over the non-streaming chat protocol. The reply's
// message field may be either a plain string or an object with a content key.
func (n *Namer) viaChat(ctx context.Context, prompt string) (string, error) {
	body, err := sonic.Marshal(chatTitleRequest{
		Model: n.config.Model,
		Messages: []chatTitleMessage{
			{Role: "system", Content: titleInstruction},
			{Role: "user", Content: prompt},
		},
		Stream: false,
	})
	if err != nil {
		return "", err
	}
	data, err := n.post(ctx, "/api/chat", body)
	if err != nil {
		return "", err
	}

	var asString struct {
		Message string `json:"message"`
	}
	if err := sonic.Unmarshal(data, &asString); err == nil && asString.Message != "" {
		return asString.Message, nil
	}
	var asObject struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := sonic.Unmarshal(data, &asObject); err != nil {
		return "", err
	}
	return asObject.Message.Content, nil
}

func (n *Namer) post(ctx context.Context, path string, body []byte) ([]byte, error) {
	url := strings.TrimRight(n.config.Host, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
	return io.ReadAll(resp.Body)
}
