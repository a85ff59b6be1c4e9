package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jonboulle/clockwork"

	"github.com/agentradio/radio/internal/api"
	"github.com/agentradio/radio/internal/audio"
	"github.com/agentradio/radio/internal/cache"
	"github.com/agentradio/radio/internal/radio"
)

// silentSegmentLength is how long a segment "plays" without an audio device.
const silentSegmentLength = 20 * time.Second

type collaboratorOptions struct {
	Timeout           time.Duration
	RequestsPerMinute int

	// MemoryCache bounds the in-process speech cache in bytes
	MemoryCache int64
}

// collaborators is the client a session fetches through, plus the loopback
// server behind it when no remote server was given.
type collaborators struct {
	Client *api.Client

	server *http.Server
	speech *cache.SpeechCache
}

// newCollaborators connects to the server at baseURL, or starts one on a
// loopback port when baseURL is empty.
func newCollaborators(ctx context.Context, baseURL string, opts collaboratorOptions) (*collaborators, error) {
	c := &collaborators{}

	if baseURL == "" {
		speechCfg := cache.DefaultConfig()
		speechCfg.MemoryCapacity = opts.MemoryCache
		speech, err := cache.New(speechCfg)
		if err != nil {
			return nil, fmt.Errorf("unable to create speech cache: %w", err)
		}
		c.speech = speech

		srv := api.NewServer(
			api.NewGeminiWriter(),
			api.NewElevenLabsVoice(api.DefaultElevenLabsBaseURL, api.DefaultSpeechModel, nil),
			api.WithSpeechCache(speech),
			api.WithServerLogger(log.Default().WithPrefix("api")),
		)

		var lc net.ListenConfig
		ln, err := lc.Listen(ctx, "tcp", "127.0.0.1:0")
		if err != nil {
			_ = speech.Close()
			return nil, fmt.Errorf("unable to start collaborator server: %w", err)
		}
		c.server = &http.Server{
			Handler:           srv.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			if err := c.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Collaborator server stopped", "err", err)
			}
		}()

		baseURL = "http://" + ln.Addr().String()
		log.Debug("Started collaborator server", "addr", baseURL)
	}

	client, err := api.NewClient(api.ClientConfig{
		BaseURL:           baseURL,
		Timeout:           opts.Timeout,
		RequestsPerMinute: opts.RequestsPerMinute,
	})
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Client = client
	return c, nil
}

// Close stops the loopback server, if any.
func (c *collaborators) Close() {
	if c.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.server.Shutdown(ctx); err != nil {
			log.Warn("Collaborator server forced to shutdown", "err", err)
		}
	}
	if c.speech != nil {
		_ = c.speech.Close()
	}
}

// newSink opens the default audio device. Without one the station keeps
// running on a silent sink so the pipeline and visualizer still work.
func newSink(logger *log.Logger) (radio.Sink, error) {
	player, err := audio.NewPlayer(audio.DefaultPlayerConfig(), audio.WithLogger(logger.WithPrefix("audio")))
	if err == nil {
		return player, nil
	}
	if !errors.Is(err, audio.ErrNoDevice) {
		return nil, fmt.Errorf("unable to open audio device: %w", err)
	}

	logger.Warn("No audio device, playing silently", "err", err)
	silent := audio.DefaultMockPlayer()
	silent.SetAutoFinish(clockwork.NewRealClock(), silentSegmentLength)
	return silent, nil
}
