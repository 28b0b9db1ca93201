// Package speech turns practice passages into audio, using several voices
// when the passage is dialogue.
package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/dukerupert/writinggym/internal/dialogue"
)

const (
	DefaultBaseURL       = "https://api.elevenlabs.io"
	DefaultModel         = "eleven_multilingual_v2"
	DefaultDialogueModel = "eleven_v3"
	outputFormat         = "mp3_44100_128"
)

var ErrNotConfigured = errors.New("speech client not configured: missing API key")

// APIError is a non-2xx response from ElevenLabs.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("elevenlabs API error: status %d", e.StatusCode)
}

type Client struct {
	apiKey        string
	baseURL       string
	model         string
	dialogueModel string
	httpClient    *http.Client
	newBackOff    func() backoff.BackOff
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

func WithBaseURL(u string) Option {
	return func(cl *Client) {
		cl.baseURL = u
	}
}

// WithBackOff sets the retry policy. The function is called once per request.
func WithBackOff(f func() backoff.BackOff) Option {
	return func(cl *Client) {
		cl.newBackOff = f
	}
}

func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:        apiKey,
		baseURL:       DefaultBaseURL,
		model:         DefaultModel,
		dialogueModel: DefaultDialogueModel,
		httpClient:    &http.Client{Timeout: 2 * time.Minute},
		newBackOff: func() backoff.BackOff {
			bo := backoff.NewExponentialBackOff()
			bo.MaxElapsedTime = 30 * time.Second
			return bo
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured returns true if the API key is set.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

type ttsRequest struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id"`
}

type dialogueInput struct {
	Text    string `json:"text"`
	VoiceID string `json:"voice_id"`
}

type dialogueRequest struct {
	Inputs  []dialogueInput `json:"inputs"`
	ModelID string          `json:"model_id"`
}

// TextToSpeech reads text with a single voice and returns MP3 audio.
func (c *Client) TextToSpeech(ctx context.Context, voiceID, text string) ([]byte, error) {
	path := "/v1/text-to-speech/" + url.PathEscape(voiceID)
	return c.post(ctx, path, ttsRequest{Text: text, ModelID: c.model})
}

// Dialogue voices each turn with its own voice and returns one MP3 stream.
func (c *Client) Dialogue(ctx context.Context, turns []dialogue.Turn) ([]byte, error) {
	req := dialogueRequest{ModelID: c.dialogueModel}
	for _, t := range turns {
		req.Inputs = append(req.Inputs, dialogueInput{Text: t.Text, VoiceID: t.VoiceID})
	}
	return c.post(ctx, "/v1/text-to-dialogue", req)
}

func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	endpoint := c.baseURL + path + "?output_format=" + outputFormat

	var audio []byte
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "audio/mpeg")
		req.Header.Set("xi-api-key", c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return fmt.Errorf("send request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
			apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(msg)}
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return apiErr
			}
			return backoff.Permanent(apiErr)
		}

		audio, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read audio: %w", err)
		}
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(c.newBackOff(), ctx)); err != nil {
		return nil, err
	}
	return audio, nil
}
