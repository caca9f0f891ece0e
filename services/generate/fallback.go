package generate

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/yessika-commits/realish-time-llm-chat/core"
)

// generateRequest is the fallback protocol's request body: the history
// flattened into one prompt string.
type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

// generateFrame is one line of the fallback protocol's response stream.
type generateFrame struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// streamGenerate drives the fallback protocol: line-delimited JSON frames
// with a flattened prompt, terminated by an embedded done flag.
func (c *Client) streamGenerate(ctx context.Context, messages []core.ChatMessage, onFragment func(string) error) error {
	body, err := sonic.Marshal(generateRequest{
		Model:  c.config.Model,
		Prompt: FlattenPrompt(messages),
		Stream: true,
	})
	if err != nil {
		return err
	}

	url := strings.TrimRight(c.config.Host, "/") + "/api/generate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var frame generateFrame
		if err := sonic.Unmarshal(line, &frame); err != nil {
			return fmt.Errorf("malformed stream frame: %w", err)
		}
		if frame.Response != "" {
			if err := onFragment(frame.Response); err != nil {
				return emitError{err: err}
			}
		}
		if frame.Done {
			return nil
		}
	}
	return scanner.Err()
}
