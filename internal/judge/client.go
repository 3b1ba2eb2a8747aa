package judge

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config holds the connection parameters for an OpenAI-compatible vision
// backend. Both hosted APIs and local inference servers exposing the chat
// completions surface are driven through the same client.
type Config struct {
	ID          string
	APIKey      string
	Model       string
	BaseURL     string
	Weight      float64
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// Client implements Judge against an OpenAI-compatible chat completions API.
type Client struct {
	httpClient  *http.Client
	id          string
	apiKey      string
	model       string
	baseURL     string
	weight      float64
	temperature float64
	maxTokens   int
}

// NewClient constructs a Client if the supplied configuration is valid.
func NewClient(cfg Config) (*Client, error) {
	cfg.Model = strings.TrimSpace(cfg.Model)
	if cfg.Model == "" {
		cfg.Model = "gpt-4o"
	}
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrDisabled
	}
	if cfg.ID == "" {
		cfg.ID = cfg.Model
	}
	if cfg.Weight < 0 {
		return nil, fmt.Errorf("judge %s: negative weight %.3f", cfg.ID, cfg.Weight)
	}
	if cfg.Weight == 0 {
		cfg.Weight = 1.0
	}
	temp := cfg.Temperature
	if temp <= 0 {
		temp = 0.1
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 500
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		httpClient:  &http.Client{Timeout: timeout},
		id:          cfg.ID,
		apiKey:      strings.TrimSpace(cfg.APIKey),
		model:       cfg.Model,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		weight:      cfg.Weight,
		temperature: temp,
		maxTokens:   cfg.MaxTokens,
	}, nil
}

// ID returns the judge identifier used for vote bookkeeping.
func (c *Client) ID() string {
	return c.id
}

// Weight returns the judge's vote weight.
func (c *Client) Weight() float64 {
	return c.weight
}

// Enabled reports whether the client can make outbound calls.
func (c *Client) Enabled() bool {
	return c != nil && c.apiKey != ""
}

// Evaluate sends the sample's image(s) and judging prompt to the backend and
// returns the raw text reply.
func (c *Client) Evaluate(ctx context.Context, sample Sample) (Response, error) {
	if c == nil || !c.Enabled() {
		return Response{}, ErrDisabled
	}

	payload, err := c.buildPayload(sample)
	if err != nil {
		return Response{}, err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Response{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("judge %s request: %w", c.id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return Response{}, fmt.Errorf("judge %s status %d: %v", c.id, resp.StatusCode, apiErr)
	}

	var decoded chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Response{}, fmt.Errorf("decode response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return Response{}, errors.New("judge returned empty response")
	}

	text := strings.TrimSpace(decoded.Choices[0].Message.Content)
	if text == "" {
		return Response{}, errors.New("judge returned empty text")
	}
	return Response{Text: text}, nil
}

func (c *Client) buildPayload(sample Sample) (map[string]any, error) {
	content := []map[string]any{}

	source, err := imageDataURL(sample.SourceImageData, sample.SourceImagePath)
	if err != nil {
		return nil, fmt.Errorf("source image: %w", err)
	}
	if source != "" {
		content = append(content, imagePart(source))
	}

	edited, err := imageDataURL(sample.ImageData, sample.ImagePath)
	if err != nil {
		return nil, fmt.Errorf("edited image: %w", err)
	}
	if edited != "" {
		content = append(content, imagePart(edited))
	}

	content = append(content, map[string]any{"type": "text", "text": BuildPrompt(sample)})

	messages := []map[string]any{
		{"role": "system", "content": SystemPrompt},
		{"role": "user", "content": content},
	}
	return map[string]any{
		"model":       c.model,
		"messages":    messages,
		"temperature": c.temperature,
		"max_tokens":  c.maxTokens,
	}, nil
}

func imagePart(dataURL string) map[string]any {
	return map[string]any{
		"type":      "image_url",
		"image_url": map[string]any{"url": dataURL},
	}
}

// imageDataURL prefers inline base64 data and falls back to reading the
// file from disk. Both absent is fine: the sample simply ships no image for
// that slot.
func imageDataURL(data, path string) (string, error) {
	if strings.TrimSpace(data) != "" {
		return "data:image/png;base64," + strings.TrimSpace(data), nil
	}
	if strings.TrimSpace(path) == "" {
		return "", nil
	}
	raw, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(raw), nil
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}
