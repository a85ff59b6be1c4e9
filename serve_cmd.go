package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/agentradio/radio/internal/api"
	"github.com/agentradio/radio/internal/cache"
	"github.com/agentradio/radio/internal/metrics"
	"github.com/agentradio/radio/internal/radio"
	"github.com/agentradio/radio/internal/station"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the script and speech endpoints",
	Long: paragraph(fmt.Sprintf("\n%s the collaborator endpoints used by the player, with health checks and metrics. With --station a headless station runs as well and streams its state over a websocket.", keyword("Serve"))),
	Example: paragraph("radio serve\nradio serve --addr :9090 --station\nradio serve --cache-dir ~/.cache/radio/speech"),
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		// nothing is drawn on the terminal here, so log where it can be seen
		log.SetOutput(os.Stderr)
		return runServer(cmd.Context(), serveOptionsFromConfig())
	},
}

type serveOptions struct {
	Addr          string
	Station       bool
	FrameInterval time.Duration
	Cache         cache.Config
}

func serveOptionsFromConfig() serveOptions {
	cfg := cache.DefaultConfig()
	cfg.MemoryCapacity = viper.GetInt64("serve.cache.memory") << 20
	cfg.DiskCapacity = viper.GetInt64("serve.cache.disk") << 20
	cfg.CompressionLevel = viper.GetInt("serve.cache.compression")
	if dir := viper.GetString("serve.cache.dir"); dir != "" {
		cfg.DiskPath = expandPath(dir)
	}

	return serveOptions{
		Addr:          viper.GetString("serve.addr"),
		Station:       viper.GetBool("serve.station"),
		FrameInterval: viper.GetDuration("serve.frame_interval"),
		Cache:         cfg,
	}
}

// defaultSpeechCacheDir is the disk level location when --cache-dir is given
// without a value.
func defaultSpeechCacheDir() string {
	dir, err := gap.NewScope(gap.User, "radio").CacheDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "radio", "speech")
	}
	return filepath.Join(dir, "speech")
}

func runServer(ctx context.Context, opts serveOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loadDotEnv()
	logger := log.Default()

	speech, err := cache.New(opts.Cache)
	if err != nil {
		return fmt.Errorf("unable to create speech cache: %w", err)
	}
	defer func() { _ = speech.Close() }()

	mux := http.NewServeMux()
	api.NewServer(
		api.NewGeminiWriter(),
		api.NewElevenLabsVoice(api.DefaultElevenLabsBaseURL, api.DefaultSpeechModel, nil),
		api.WithSpeechCache(speech),
		api.WithServerLogger(logger.WithPrefix("api")),
	).Register(mux)
	mux.Handle("GET /metrics", metrics.Handler())

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", opts.Addr)
	if err != nil {
		return fmt.Errorf("unable to listen on %s: %w", opts.Addr, err)
	}

	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	if opts.Station {
		session, err := startStation(ctx, mux, ln.Addr(), opts, logger)
		if err != nil {
			_ = ln.Close()
			return err
		}
		defer func() { _ = session.Close() }()
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("Server listening", "addr", ln.Addr().String(), "station", opts.Station)
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	memory, disk, misses := speech.Hits()
	logger.Info("Server exited gracefully", "cache_memory_hits", memory, "cache_disk_hits", disk, "cache_misses", misses)
	return nil
}

// startStation runs a headless session fetching through this server and
// mounts its feed on mux.
func startStation(ctx context.Context, mux *http.ServeMux, addr net.Addr, opts serveOptions, logger *log.Logger) (*radio.Session, error) {
	client, err := api.NewClient(api.ClientConfig{
		BaseURL:           loopbackURL(addr),
		Timeout:           viper.GetDuration("timeout"),
		RequestsPerMinute: viper.GetInt("rate"),
	})
	if err != nil {
		return nil, err
	}

	sink, err := newSink(logger)
	if err != nil {
		return nil, err
	}

	cfg := radio.DefaultConfig()
	cfg.Settings = settingsFromConfig()
	cfg.Volume = viper.GetFloat64("volume")
	cfg.Logger = logger.WithPrefix("radio")

	session := radio.NewSession(client, client, sink, cfg)
	if err := session.Start(ctx); err != nil {
		_ = session.Close()
		return nil, fmt.Errorf("unable to start station: %w", err)
	}

	st := station.New(session, station.Config{
		FrameInterval: opts.FrameInterval,
		Logger:        logger,
	})
	st.Register(mux)
	go st.Run(ctx)

	watchConfig(session)
	return session, nil
}

// loopbackURL is the base URL reaching a listener from the same host.
func loopbackURL(addr net.Addr) string {
	_, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		return "http://" + addr.String()
	}
	return "http://" + net.JoinHostPort("127.0.0.1", port)
}

func init() {
	serveCmd.Flags().String("addr", ":8080", "address to listen on")
	serveCmd.Flags().Bool("station", false, "run a headless station with a websocket feed")
	serveCmd.Flags().Duration("frame-interval", 100*time.Millisecond, "station amplitude frame period")
	serveCmd.Flags().Int64("cache-size", 64, "in-memory speech cache size in MB (0 disables it)")
	serveCmd.Flags().String("cache-dir", "", "spill cached speech to this directory")
	serveCmd.Flags().Lookup("cache-dir").NoOptDefVal = defaultSpeechCacheDir()
	serveCmd.Flags().Int64("cache-disk-size", 512, "disk speech cache size in MB")

	_ = viper.BindPFlag("serve.addr", serveCmd.Flags().Lookup("addr"))
	_ = viper.BindPFlag("serve.station", serveCmd.Flags().Lookup("station"))
	_ = viper.BindPFlag("serve.frame_interval", serveCmd.Flags().Lookup("frame-interval"))
	_ = viper.BindPFlag("serve.cache.memory", serveCmd.Flags().Lookup("cache-size"))
	_ = viper.BindPFlag("serve.cache.dir", serveCmd.Flags().Lookup("cache-dir"))
	_ = viper.BindPFlag("serve.cache.disk", serveCmd.Flags().Lookup("cache-disk-size"))

	viper.SetDefault("serve.addr", ":8080")
	viper.SetDefault("serve.frame_interval", 100*time.Millisecond)
	viper.SetDefault("serve.cache.memory", 64)
	viper.SetDefault("serve.cache.disk", 512)
	viper.SetDefault("serve.cache.compression", 3)
}
