package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Message is one chat-completions message.
type Message struct {
	Role    string
	Content string
}

// ChatRequest carries everything a single completion call needs.
type ChatRequest struct {
	Messages    []Message
	Temperature *float64
}

// Provider generates one assistant completion. Implementations return the
// extracted assistant text; an unrecognized response shape yields "" with a
// nil error so callers can apply their own fallback.
type Provider interface {
	Chat(ctx context.Context, req ChatRequest) (string, error)
}

// Client talks to a CLOVA-Studio-style chat-completions endpoint.
type Client struct {
	Endpoint  string
	APIKey    string
	Secret    string
	RequestID string
	HTTP      *http.Client
}

func NewClient(endpoint, apiKey, secret, requestID string, timeout time.Duration) (*Client, error) {
	if strings.TrimSpace(endpoint) == "" {
		return nil, errors.New("llm: endpoint is required")
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("llm: api key is required")
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		Endpoint:  strings.TrimRight(endpoint, "/"),
		APIKey:    apiKey,
		Secret:    secret,
		RequestID: requestID,
		HTTP:      &http.Client{Timeout: timeout},
	}, nil
}

type chatContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []chatContent `json:"content"`
}

type chatPayload struct {
	Messages         []chatMessage `json:"messages"`
	Temperature      *float64      `json:"temperature,omitempty"`
	IncludeAIFilters bool          `json:"includeAiFilters"`
}

func (c *Client) Chat(ctx context.Context, req ChatRequest) (string, error) {
	payload := chatPayload{
		Messages:         make([]chatMessage, 0, len(req.Messages)),
		Temperature:      req.Temperature,
		IncludeAIFilters: true,
	}
	for _, m := range req.Messages {
		payload.Messages = append(payload.Messages, chatMessage{
			Role:    m.Role,
			Content: []chatContent{{Type: "text", Text: m.Content}},
		})
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	if c.RequestID != "" {
		httpReq.Header.Set("X-NCP-CLOVASTUDIO-REQUEST-ID", c.RequestID)
	}

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return "", fmt.Errorf("llm: %s", msg)
	}

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("llm: decode response: %w", err)
	}
	return ExtractAssistantText(decoded), nil
}

// ExtractAssistantText pulls the assistant message out of a completion
// response. The documented shape is result.message.content; responses that
// hand the result object back directly are tolerated. Anything else yields "".
func ExtractAssistantText(resp map[string]any) string {
	if result, ok := resp["result"].(map[string]any); ok {
		if s := messageContent(result); s != "" {
			return s
		}
	}
	return messageContent(resp)
}

func messageContent(m map[string]any) string {
	message, ok := m["message"].(map[string]any)
	if !ok {
		return ""
	}
	content, ok := message["content"].(string)
	if !ok {
		return ""
	}
	return content
}
