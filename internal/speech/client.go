package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Client calls a CLOVA-Speech-style recognizer over HTTP.
type Client struct {
	Endpoint string
	APIKey   string
	Secret   string
	Language string
	Options  TranscriptOptions
	HTTP     *http.Client
}

func NewClient(endpoint, apiKey, secret, language string, timeout time.Duration, opts TranscriptOptions) (*Client, error) {
	if strings.TrimSpace(endpoint) == "" {
		return nil, errors.New("speech: endpoint is required")
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("speech: api key is required")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if language == "" {
		language = "ko-KR"
	}
	return &Client{
		Endpoint: strings.TrimRight(endpoint, "/"),
		APIKey:   apiKey,
		Secret:   secret,
		Language: language,
		Options:  opts,
		HTTP:     &http.Client{Timeout: timeout},
	}, nil
}

// Transcribe uploads raw audio to the recognizer and returns the normalized
// transcript. An empty transcript is not an error; it means the recognizer
// found no usable speech.
func (c *Client) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if mimeType == "" {
		mimeType = "audio/wav"
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	params, err := json.Marshal(map[string]any{
		"language":   c.Language,
		"completion": "sync",
		"diarization": map[string]any{
			"enable": true,
		},
	})
	if err != nil {
		return "", err
	}
	if err := w.WriteField("params", string(params)); err != nil {
		return "", err
	}
	part, err := w.CreateFormFile("media", "audio")
	if err != nil {
		return "", err
	}
	if _, err := part.Write(audio); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint+"/recognizer/upload", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("X-CLOVASPEECH-API-KEY", c.APIKey)

	return c.recognize(req)
}

// TranscribeURL points the recognizer at an already-uploaded audio object,
// referenced by URL (typically a signed storage URL).
func (c *Client) TranscribeURL(ctx context.Context, audioURL string) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"url":        audioURL,
		"language":   c.Language,
		"completion": "sync",
		"diarization": map[string]any{
			"enable": true,
		},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint+"/recognizer/url", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json;UTF-8")
	req.Header.Set("X-CLOVASPEECH-API-KEY", c.APIKey)

	return c.recognize(req)
}

func (c *Client) recognize(req *http.Request) (string, error) {
	decoded, err := c.doJSON(req)
	if err != nil {
		return "", err
	}
	return ExtractTranscript(decoded, c.Options), nil
}

// doJSON performs the request with exponential backoff on transient (5xx)
// recognizer failures and decodes the response body.
func (c *Client) doJSON(req *http.Request) (map[string]any, error) {
	var raw []byte

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = c.HTTP.Timeout

	op := func() error {
		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return backoff.Permanent(err)
			}
			req.Body = body
		}
		resp, err := c.HTTP.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode >= 500 {
			return fmt.Errorf("speech: server error: status %d: %s", resp.StatusCode, truncate(body))
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("speech: status %d: %s", resp.StatusCode, truncate(body)))
		}
		raw = body
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(bo, req.Context())); err != nil {
		return nil, err
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("speech: decode response: %w", err)
	}
	return decoded, nil
}

func truncate(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 512 {
		return s[:512]
	}
	return s
}
