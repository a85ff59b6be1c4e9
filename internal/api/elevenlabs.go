package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// ElevenLabs defaults
const (
	DefaultElevenLabsBaseURL = "https://api.elevenlabs.io"
	DefaultSpeechModel       = "eleven_v3"
)

// Voice turns text into MPEG audio.
type Voice interface {
	Speak(ctx context.Context, apiKey, text, voiceID string) ([]byte, error)
}

// ElevenLabsVoice calls the ElevenLabs text-to-speech endpoint.
type ElevenLabsVoice struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

type elevenLabsRequest struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id"`
}

// NewElevenLabsVoice creates a voice client. Empty values select the defaults.
func NewElevenLabsVoice(baseURL, model string, httpClient *http.Client) *ElevenLabsVoice {
	if baseURL == "" {
		baseURL = DefaultElevenLabsBaseURL
	}
	if model == "" {
		model = DefaultSpeechModel
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &ElevenLabsVoice{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: httpClient,
	}
}

// Speak synthesizes text with the given voice and returns the whole body.
func (v *ElevenLabsVoice) Speak(ctx context.Context, apiKey, text, voiceID string) ([]byte, error) {
	body, err := json.Marshal(elevenLabsRequest{Text: text, ModelID: v.model})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := v.baseURL + "/v1/text-to-speech/" + url.PathEscape(voiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("xi-api-key", apiKey)

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("elevenlabs returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio: %w", err)
	}
	return audio, nil
}
