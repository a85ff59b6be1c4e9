// Package main provides the entry point for the radio CLI application.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/glamour/styles"
	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/agentradio/radio/internal/radio"
	"github.com/agentradio/radio/internal/ttypes"
	"github.com/agentradio/radio/ui"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile   string
	style        string
	width        uint
	mouse        bool
	instructions string
	voice        string
	apiURL       string
	volume       float64
	rpm          int
	timeout      time.Duration

	rootCmd = &cobra.Command{
		Use:   "radio",
		Short: "Talk radio on the CLI, written and voiced by agents",
		Long: paragraph(
			fmt.Sprintf("\nTalk radio on the CLI, %s!", keyword("written and voiced by agents")),
		),
		Example: paragraph("radio\nradio --voice 21m00Tcm4TlvDq8ikWAM\nradio --api http://localhost:8080"),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		Args:             cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return validateOptions(cmd)
		},
		RunE: execute,
	}
)

// validateStyle checks if the style is a default style, if not, checks that
// the custom style exists.
func validateStyle(style string) error {
	if style != styles.AutoStyle && styles.DefaultStyles[style] == nil {
		style = expandPath(style)
		if _, err := os.Stat(style); errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("specified style does not exist: %s", style)
		} else if err != nil {
			return fmt.Errorf("unable to stat file: %w", err)
		}
	}
	return nil
}

func validateOptions(cmd *cobra.Command) error {
	if cmd.Flags().Changed("config") {
		configFile = expandPath(configFile)
		// a missing file is created by the config command
		if _, err := os.Stat(configFile); err == nil {
			viper.SetConfigFile(configFile)
			if err := viper.ReadInConfig(); err != nil {
				return fmt.Errorf("unable to read config file: %w", err)
			}
		}
	}

	// grab config values from Viper
	width = viper.GetUint("width")
	mouse = viper.GetBool("mouse")
	apiURL = strings.TrimSpace(viper.GetString("api"))
	volume = viper.GetFloat64("volume")
	rpm = viper.GetInt("rate")
	timeout = viper.GetDuration("timeout")

	if viper.GetBool("debug") {
		log.SetLevel(log.DebugLevel)
	}

	if volume < 0 || volume > 1 {
		return fmt.Errorf("volume must be between 0 and 1, got %.2f", volume)
	}
	if rpm < 0 {
		return fmt.Errorf("rate must not be negative, got %d", rpm)
	}
	if timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %s", timeout)
	}
	if apiURL != "" && !strings.HasPrefix(apiURL, "http://") && !strings.HasPrefix(apiURL, "https://") {
		return fmt.Errorf("%s is not a supported api address: use http:// or https://", apiURL)
	}

	// validate the glamour style
	style = viper.GetString("style")
	if err := validateStyle(style); err != nil {
		return err
	}

	isTerminal := term.IsTerminal(int(os.Stdout.Fd()))
	// We want to use a special no-TTY style, when stdout is not a terminal
	// and there was no specific style passed by arg
	if !isTerminal && !cmd.Flags().Changed("style") {
		style = "notty"
	}

	// Detect terminal width
	if !cmd.Flags().Changed("width") { //nolint:nestif
		if isTerminal && width == 0 {
			w, _, err := term.GetSize(int(os.Stdout.Fd()))
			if err == nil {
				width = uint(w) //nolint:gosec
			}

			if width > 120 {
				width = 120
			}
		}
		if width == 0 {
			width = 80
		}
	}
	return nil
}

// settingsFromConfig reads the station settings, filling in the defaults.
func settingsFromConfig() ttypes.Settings {
	s := ttypes.Settings{
		Instructions: viper.GetString("instructions"),
		VoiceID:      viper.GetString("voice"),
	}
	if strings.TrimSpace(s.Instructions) == "" {
		s.Instructions = ttypes.DefaultInstructions
	}
	return s.Normalize()
}

func expandPath(path string) string {
	p, err := homedir.Expand(path)
	if err != nil {
		return path
	}
	return p
}

// loadDotEnv reads credentials from .env in the working directory, if any.
func loadDotEnv() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn("Could not read .env file", "err", err)
	}
}

func execute(cmd *cobra.Command, _ []string) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stdout.Fd())) {
		return errors.New("radio needs a terminal: use `radio serve --station` to run headless")
	}
	return runTUI(cmd.Context())
}

func runTUI(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	loadDotEnv()

	// Read environment to get debugging stuff
	cfg, err := env.ParseAs[ui.Config]()
	if err != nil {
		return fmt.Errorf("error parsing config: %v", err)
	}

	// use style set in env, or the flag if unset
	if err := validateStyle(cfg.GlamourStyle); err != nil {
		cfg.GlamourStyle = style
	}
	cfg.GlamourStyle = expandPath(cfg.GlamourStyle)
	cfg.GlamourMaxWidth = width
	cfg.EnableMouse = mouse
	if len(cfg.Voices) == 0 {
		cfg.Voices = viper.GetStringSlice("voices")
	}

	collab, err := newCollaborators(ctx, apiURL, collaboratorOptions{
		Timeout:           timeout,
		RequestsPerMinute: rpm,
		MemoryCache:       viper.GetInt64("cache.memory") << 20,
	})
	if err != nil {
		return err
	}
	defer collab.Close()

	sink, err := newSink(log.Default())
	if err != nil {
		return err
	}

	sessionCfg := radio.DefaultConfig()
	sessionCfg.Settings = settingsFromConfig()
	sessionCfg.Volume = volume
	sessionCfg.Logger = log.Default().WithPrefix("radio")

	session := radio.NewSession(collab.Client, collab.Client, sink, sessionCfg)
	if err := session.Start(ctx); err != nil {
		_ = session.Close()
		return fmt.Errorf("unable to start station: %w", err)
	}
	defer func() { _ = session.Close() }()

	watchConfig(session)

	// Run Bubble Tea program
	if _, err := ui.NewProgram(cfg, session).Run(); err != nil {
		return fmt.Errorf("unable to run tui program: %w", err)
	}

	return nil
}

// settingsApplier is the part of a session a config reload touches.
type settingsApplier interface {
	Settings() ttypes.Settings
	Apply(settings ttypes.Settings) ttypes.Settings
}

// watchConfig applies edited instructions and voice to the running station.
func watchConfig(s settingsApplier) {
	if viper.ConfigFileUsed() == "" {
		return
	}
	viper.OnConfigChange(func(e fsnotify.Event) {
		onConfigChange(s, e)
	})
	viper.WatchConfig()
}

func onConfigChange(s settingsApplier, e fsnotify.Event) {
	if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
		return
	}
	next := settingsFromConfig()
	if next == s.Settings() {
		return
	}
	applied := s.Apply(next)
	log.Info("Applied settings from configuration file", "path", e.Name, "voice", applied.VoiceID)
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.PersistentFlags().Bool("debug", false, "log at debug level")
	rootCmd.PersistentFlags().Duration("timeout", 60*time.Second, "timeout for each collaborator request")
	rootCmd.Flags().StringVarP(&instructions, "instructions", "i", "", "what the host should talk about")
	rootCmd.Flags().StringVar(&voice, "voice", ttypes.DefaultVoiceID, "voice ID used for synthesis")
	rootCmd.Flags().StringVar(&apiURL, "api", "", "collaborator server to use (default runs one in-process)")
	rootCmd.Flags().Float64Var(&volume, "volume", radio.DefaultVolume, "initial volume, 0 to 1")
	rootCmd.Flags().IntVar(&rpm, "rate", 0, "maximum requests per minute to each collaborator (0 is unlimited)")
	rootCmd.Flags().StringVarP(&style, "style", "s", styles.AutoStyle, "transcript style name or JSON path")
	rootCmd.Flags().UintVarP(&width, "width", "w", 0, "word-wrap the transcript at width")
	rootCmd.Flags().BoolVarP(&mouse, "mouse", "m", false, "enable mouse support")
	_ = rootCmd.Flags().MarkHidden("mouse")

	// Config bindings
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("timeout", rootCmd.PersistentFlags().Lookup("timeout"))
	_ = viper.BindPFlag("instructions", rootCmd.Flags().Lookup("instructions"))
	_ = viper.BindPFlag("voice", rootCmd.Flags().Lookup("voice"))
	_ = viper.BindPFlag("api", rootCmd.Flags().Lookup("api"))
	_ = viper.BindPFlag("volume", rootCmd.Flags().Lookup("volume"))
	_ = viper.BindPFlag("rate", rootCmd.Flags().Lookup("rate"))
	_ = viper.BindPFlag("style", rootCmd.Flags().Lookup("style"))
	_ = viper.BindPFlag("width", rootCmd.Flags().Lookup("width"))
	_ = viper.BindPFlag("mouse", rootCmd.Flags().Lookup("mouse"))

	viper.SetDefault("style", styles.AutoStyle)
	viper.SetDefault("width", 0)
	viper.SetDefault("voice", ttypes.DefaultVoiceID)
	viper.SetDefault("volume", radio.DefaultVolume)
	viper.SetDefault("timeout", 60*time.Second)
	viper.SetDefault("cache.memory", 64)

	rootCmd.AddCommand(configCmd, manCmd, serveCmd)
}

func configDirs() ([]string, error) {
	scope := gap.NewScope(gap.User, "radio")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		return nil, err
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "radio")}, dirs...)
	}

	if c := os.Getenv("RADIO_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}
	return dirs, nil
}

func tryLoadConfigFromDefaultPlaces() {
	dirs, err := configDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("radio")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("radio")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", viper.ConfigFileUsed())
		return
	}

	if viper.ConfigFileUsed() == "" {
		configFile = filepath.Join(dirs[0], "radio.yml")
	}
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}
