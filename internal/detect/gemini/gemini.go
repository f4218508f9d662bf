// Package gemini locates labels with Google's Gemini vision models.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/printops/labelpress/internal/detect"
	"github.com/printops/labelpress/internal/imaging"
	"github.com/printops/labelpress/internal/label"
)

const defaultModel = "gemini-pro-vision"

// Config carries the Gemini API credentials and model selection.
type Config struct {
	APIKey    string
	Model     string
	MaxTokens int
}

// Client implements label.Detector against the Gemini API. Close releases
// the underlying connection.
type Client struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

var _ label.Detector = (*Client)(nil)

// New builds the client. The zero Model falls back to the package default.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini API key is required")
	}
	name := cfg.Model
	if name == "" {
		name = defaultModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	model := client.GenerativeModel(name)
	if cfg.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(cfg.MaxTokens))
	}
	return &Client{client: client, model: model}, nil
}

// Locate sends the frame as an inline PNG with the extraction prompt and
// returns the model's raw reply text.
func (c *Client) Locate(ctx context.Context, frame *image.RGBA) (string, error) {
	png, err := imaging.EncodePNG(frame)
	if err != nil {
		return "", fmt.Errorf("encode frame: %w", err)
	}

	res, err := c.model.GenerateContent(ctx, genai.ImageData("png", png), genai.Text(detect.Prompt))
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	if len(res.Candidates) == 0 || res.Candidates[0].Content == nil || len(res.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("empty response from gemini")
	}

	text, ok := res.Candidates[0].Content.Parts[0].(genai.Text)
	if !ok {
		return "", errors.New("unexpected response format from gemini")
	}
	return string(text), nil
}

// Close releases the API connection.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}
