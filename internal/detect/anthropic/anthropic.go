// Package anthropic locates labels with Anthropic's vision models.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"

	"github.com/printops/labelpress/internal/detect"
	"github.com/printops/labelpress/internal/imaging"
	"github.com/printops/labelpress/internal/label"
)

const (
	defaultModel     = "claude-sonnet-4-20250514"
	defaultMaxTokens = 256
)

// Config carries the Anthropic API credentials and model selection.
type Config struct {
	APIKey    string
	Model     string
	MaxTokens int
}

// Client implements label.Detector against the Anthropic messages API.
type Client struct {
	llm       llms.Model
	maxTokens int
}

var _ label.Detector = (*Client)(nil)

// New builds the client. The zero Model and MaxTokens fall back to the
// package defaults.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic API key is required")
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	llm, err := anthropic.New(
		anthropic.WithModel(model),
		anthropic.WithToken(cfg.APIKey),
	)
	if err != nil {
		return nil, fmt.Errorf("anthropic client: %w", err)
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &Client{llm: llm, maxTokens: maxTokens}, nil
}

// Locate sends the frame as an inline PNG with the extraction prompt and
// returns the model's raw reply text.
func (c *Client) Locate(ctx context.Context, frame *image.RGBA) (string, error) {
	png, err := imaging.EncodePNG(frame)
	if err != nil {
		return "", fmt.Errorf("encode frame: %w", err)
	}

	completion, err := c.llm.GenerateContent(ctx, []llms.MessageContent{
		{
			Role: llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{
				llms.BinaryPart("image/png", png),
				llms.TextPart(detect.Prompt),
			},
		},
	}, llms.WithMaxTokens(c.maxTokens))
	if err != nil {
		return "", fmt.Errorf("anthropic generate: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", errors.New("empty completion from anthropic")
	}
	return completion.Choices[0].Content, nil
}
