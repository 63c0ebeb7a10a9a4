// Package ai is the HTTP client for the generative backend. Each method is a
// single JSON request/response call wrapped in bounded exponential backoff;
// the endpoints themselves are dumb text-in/text-out functions and no prompt
// construction happens on this side.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"quill/internal/retry"
)

var (
	errMissingBaseURL = errors.New("ai: base url is required")

	noOpLogger = zap.NewNop()
)

const defaultRequestTimeout = 60 * time.Second

// Config wires the client.
type Config struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Retry      retry.Config
	Logger     *zap.Logger
}

// Client calls the generative backend over HTTP.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	retryCfg   retry.Config
	logger     *zap.Logger
}

// NewClient constructs a client, validating its configuration.
func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errMissingBaseURL
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("ai: invalid base url: %w", err)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Client{
		baseURL:    base,
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
		retryCfg:   cfg.Retry,
		logger:     logger,
	}, nil
}

type textResponse struct {
	Text string `json:"text"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// TranscribeAudio converts a base64 audio payload to text.
func (c *Client) TranscribeAudio(ctx context.Context, base64Data, mimeType string) (string, error) {
	return c.textCall(ctx, "/v1/transcribe/audio", map[string]any{
		"data":     base64Data,
		"mimeType": mimeType,
	})
}

// TranscribeImage converts a base64 image payload to text.
func (c *Client) TranscribeImage(ctx context.Context, base64Data, mimeType string) (string, error) {
	return c.textCall(ctx, "/v1/transcribe/image", map[string]any{
		"data":     base64Data,
		"mimeType": mimeType,
	})
}

// GenerateSummary produces a markdown summary from the transcript and notes.
func (c *Client) GenerateSummary(ctx context.Context, transcript, userNotes string) (string, error) {
	return c.textCall(ctx, "/v1/summary", map[string]any{
		"transcript": transcript,
		"userNotes":  userNotes,
	})
}

// GenerateTitle produces a short title for the given text.
func (c *Client) GenerateTitle(ctx context.Context, text string) (string, error) {
	return c.textCall(ctx, "/v1/title", map[string]any{"text": text})
}

// GenerateTags derives up to ten lowercase tags from the summary and title.
// The backend answers with comma-separated text; parsing happens here.
func (c *Client) GenerateTags(ctx context.Context, summary, title string) ([]string, error) {
	raw, err := c.textCall(ctx, "/v1/tags", map[string]any{
		"summary": summary,
		"title":   title,
	})
	if err != nil {
		return nil, err
	}
	return ParseTags(raw), nil
}

// RefineSummary rewrites the current summary according to the instruction.
func (c *Client) RefineSummary(ctx context.Context, currentSummary, instruction string) (string, error) {
	return c.textCall(ctx, "/v1/refine", map[string]any{
		"summary":     currentSummary,
		"instruction": instruction,
	})
}

// Chat sends a free-form message and returns the reply.
func (c *Client) Chat(ctx context.Context, message string) (string, error) {
	return c.textCall(ctx, "/v1/chat", map[string]any{"message": message})
}

// MaxTags caps the number of tags parsed from a backend response.
const MaxTags = 10

// ParseTags splits a comma-separated response into at most MaxTags lowercase
// tags, dropping empties.
func ParseTags(raw string) []string {
	parts := strings.Split(raw, ",")
	tags := make([]string, 0, len(parts))
	for _, part := range parts {
		tag := strings.ToLower(strings.TrimSpace(part))
		if tag == "" {
			continue
		}
		tags = append(tags, tag)
		if len(tags) == MaxTags {
			break
		}
	}
	return tags
}

func (c *Client) textCall(ctx context.Context, path string, payload map[string]any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("ai: encode request for %s: %w", path, err)
	}

	var text string
	err = retry.DoConfig(ctx, c.retryCfg, func(ctx context.Context) error {
		value, callErr := c.post(ctx, path, body)
		if callErr != nil {
			c.logger.Warn("ai call failed",
				zap.String("path", path),
				zap.Error(callErr))
			return callErr
		}
		text = value
		return nil
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

func (c *Client) post(ctx context.Context, path string, body []byte) (string, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("ai: build request for %s: %w", path, err)
	}
	request.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		request.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return "", fmt.Errorf("ai: call %s: %w", path, err)
	}
	defer response.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(response.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("ai: read response from %s: %w", path, err)
	}
	if response.StatusCode != http.StatusOK {
		var failure errorResponse
		if json.Unmarshal(raw, &failure) == nil && failure.Error != "" {
			return "", fmt.Errorf("ai: %s returned %d: %s", path, response.StatusCode, failure.Error)
		}
		return "", fmt.Errorf("ai: %s returned %d", path, response.StatusCode)
	}

	var decoded textResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("ai: decode response from %s: %w", path, err)
	}
	return decoded.Text, nil
}
