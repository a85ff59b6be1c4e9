package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/agentradio/radio/internal/ttypes"
)

// ClientConfig holds client configuration.
type ClientConfig struct {
	// BaseURL of the server exposing /api/generate and /api/speak
	BaseURL string

	// Timeout per request, DefaultTimeout when zero
	Timeout time.Duration

	// RequestsPerMinute caps calls per route, unlimited when zero
	RequestsPerMinute int

	// HTTPClient overrides the transport, mainly for tests
	HTTPClient *http.Client
}

// Client calls the collaborator routes. It implements both the script
// generator and the speech synthesizer the fetcher needs.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	scriptLimit *rate.Limiter
	speechLimit *rate.Limiter
}

// NewClient creates a client for the server at config.BaseURL.
func NewClient(config ClientConfig) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("client base URL is required")
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}

	limit := rate.Inf
	if config.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(config.RequestsPerMinute))
	}

	return &Client{
		baseURL:     strings.TrimRight(config.BaseURL, "/"),
		httpClient:  httpClient,
		scriptLimit: rate.NewLimiter(limit, 1),
		speechLimit: rate.NewLimiter(limit, 1),
	}, nil
}

// Generate asks the server for the text of one segment.
func (c *Client) Generate(ctx context.Context, instructions string) (string, error) {
	if err := c.scriptLimit.Wait(ctx); err != nil {
		return "", ttypes.NewUpstreamError(ttypes.StepScript, "rate limit wait cancelled", err)
	}

	resp, err := c.post(ctx, "/api/generate", GenerateRequest{Instructions: instructions})
	if err != nil {
		return "", ttypes.NewUpstreamError(ttypes.StepScript, "script request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", statusError(ttypes.StepScript, resp)
	}

	var out GenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", ttypes.NewUpstreamError(ttypes.StepScript, "invalid script response", err)
	}
	return out.Text, nil
}

// Synthesize asks the server for MPEG audio of text.
func (c *Client) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	if err := c.speechLimit.Wait(ctx); err != nil {
		return nil, ttypes.NewUpstreamError(ttypes.StepSpeech, "rate limit wait cancelled", err)
	}

	resp, err := c.post(ctx, "/api/speak", SpeakRequest{Text: text, VoiceID: voiceID})
	if err != nil {
		return nil, ttypes.NewUpstreamError(ttypes.StepSpeech, "speech request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(ttypes.StepSpeech, resp)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ttypes.NewUpstreamError(ttypes.StepSpeech, "failed to read audio", err)
	}
	return audio, nil
}

func (c *Client) post(ctx context.Context, path string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.httpClient.Do(req)
}

// statusError maps a non-2xx response to a radio error carrying the status
// and the server's message. Missing credentials are reported as a
// configuration error so the listener sees what to fix.
func statusError(step ttypes.Step, resp *http.Response) error {
	var body ErrorResponse
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err := json.Unmarshal(raw, &body); err != nil || body.Error == "" {
		body.Error = strings.TrimSpace(string(raw))
		if body.Error == "" {
			body.Error = http.StatusText(resp.StatusCode)
		}
	}

	var e *ttypes.Error
	switch {
	case resp.StatusCode == http.StatusBadRequest:
		e = &ttypes.Error{Kind: ttypes.KindValidation, Step: step, Message: body.Error}
	case strings.HasSuffix(body.Error, "not configured"):
		e = ttypes.NewConfigurationError(body.Error)
		e.Step = step
	default:
		e = ttypes.NewUpstreamError(step, body.Error, nil)
	}
	return e.WithStatus(resp.StatusCode)
}
