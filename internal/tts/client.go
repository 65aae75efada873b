// Package tts synthesizes speech audio from reply text through the
// Google Cloud Text-to-Speech REST API.
package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const defaultTimeout = 30 * time.Second

// Client calls the text:synthesize endpoint with an API key.
type Client struct {
	Endpoint      string
	APIKey        string
	LanguageCode  string
	VoiceName     string
	AudioEncoding string
	HTTP          *http.Client
}

// NewClient validates the synthesis configuration up front so a
// misconfigured deployment fails at startup instead of on the first call.
func NewClient(endpoint, apiKey, languageCode, voiceName, audioEncoding string, timeout time.Duration) (*Client, error) {
	if endpoint == "" {
		return nil, errors.New("tts: endpoint is required")
	}
	if apiKey == "" {
		return nil, errors.New("tts: api key is required")
	}
	if voiceName == "" {
		return nil, errors.New("tts: voice name is required")
	}
	if languageCode == "" {
		languageCode = "ko-KR"
	}
	if audioEncoding == "" {
		audioEncoding = "MP3"
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		Endpoint:      endpoint,
		APIKey:        apiKey,
		LanguageCode:  languageCode,
		VoiceName:     voiceName,
		AudioEncoding: audioEncoding,
		HTTP:          &http.Client{Timeout: timeout},
	}, nil
}

type synthesizeRequest struct {
	Input struct {
		Text string `json:"text"`
	} `json:"input"`
	Voice struct {
		LanguageCode string `json:"languageCode"`
		Name         string `json:"name"`
	} `json:"voice"`
	AudioConfig struct {
		AudioEncoding string `json:"audioEncoding"`
	} `json:"audioConfig"`
}

type synthesizeResponse struct {
	AudioContent string `json:"audioContent"`
}

// Synthesize converts text to audio bytes in the configured encoding.
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if text == "" {
		return nil, errors.New("tts: empty text")
	}

	var payload synthesizeRequest
	payload.Input.Text = text
	payload.Voice.LanguageCode = c.LanguageCode
	payload.Voice.Name = c.VoiceName
	payload.AudioConfig.AudioEncoding = c.AudioEncoding

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("tts: marshal request: %w", err)
	}

	url := c.Endpoint + "/text:synthesize?key=" + c.APIKey
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("tts: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var out synthesizeResponse
	operation := func() error {
		if req.GetBody != nil {
			rc, err := req.GetBody()
			if err != nil {
				return backoff.Permanent(err)
			}
			req.Body = rc
		}
		resp, err := c.HTTP.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			io.Copy(io.Discard, resp.Body)
			return fmt.Errorf("tts: server error %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return backoff.Permanent(fmt.Errorf("tts: unexpected status %d: %s", resp.StatusCode, msg))
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return backoff.Permanent(fmt.Errorf("tts: decode response: %w", err))
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = c.HTTP.Timeout
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}

	audio, err := base64.StdEncoding.DecodeString(out.AudioContent)
	if err != nil {
		return nil, fmt.Errorf("tts: decode audio content: %w", err)
	}
	if len(audio) == 0 {
		return nil, errors.New("tts: empty audio content")
	}
	return audio, nil
}
