package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/schema"
)

// Gemini defaults
const (
	DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai"
	DefaultGeminiModel   = "gemini-3-pro-preview"
)

// Writer produces segment text from a full prompt.
type Writer interface {
	Write(ctx context.Context, apiKey, prompt string) (string, error)
}

// GeminiWriter talks to Gemini through its OpenAI-compatible endpoint.
type GeminiWriter struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// NewGeminiWriter creates a writer with the default endpoint and model.
func NewGeminiWriter() *GeminiWriter {
	return &GeminiWriter{
		BaseURL: DefaultGeminiBaseURL,
		Model:   DefaultGeminiModel,
		Timeout: DefaultTimeout,
	}
}

// Write sends prompt as a single user message and returns the reply text.
// The chat model is built per call because the key may change between calls.
func (g *GeminiWriter) Write(ctx context.Context, apiKey, prompt string) (string, error) {
	chatModel, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		BaseURL: g.BaseURL,
		Model:   g.Model,
		APIKey:  apiKey,
		Timeout: g.Timeout,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create chat model: %w", err)
	}

	msg, err := chatModel.Generate(ctx, []*schema.Message{schema.UserMessage(prompt)})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if msg == nil {
		return "", errors.New("chat completion returned no message")
	}
	return msg.Content, nil
}
