package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultConfig = `# what the host talks about; empty uses the built-in persona
instructions: ""
# voice ID used for synthesis
voice: "JBFqnCBsd6RMkjVDRZzb"
# presets offered in the settings panel, as Name=voiceID
voices:
  - George=JBFqnCBsd6RMkjVDRZzb
  - Rachel=21m00Tcm4TlvDq8ikWAM
  - Adam=pNInz6obpgDQGcFmaJgB
# initial volume, 0 to 1
volume: 0.8
# collaborator server; empty runs one in-process
api: ""
# maximum requests per minute to each collaborator (0 is unlimited)
rate: 0
# timeout for each collaborator request
timeout: "60s"
# transcript style name or JSON path (default "auto")
style: "auto"
# word-wrap the transcript at width
width: 80
# mouse support
mouse: false

# in-process speech cache size in MB
cache:
  memory: 64

# radio serve
serve:
  addr: ":8080"
  # run a headless station with a websocket feed
  station: false
  frame_interval: "100ms"
  cache:
    memory: 64
    # spill cached speech to this directory; cleared on exit
    dir: ""
    disk: 512
    compression: 3
`

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the radio config file",
	Long:    paragraph(fmt.Sprintf("\n%s the radio config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created. Instructions and voice edited while the radio plays are applied to the next segment.", keyword("Edit"))),
	Example: paragraph("radio config\nradio config --config path/to/radio.yml"),
	Args:    cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("Radio", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
}

func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.GetViper().ConfigFileUsed()
		if err := os.MkdirAll(filepath.Dir(configFile), 0o755); err != nil { //nolint:gosec
			return fmt.Errorf("could not write configuration file: %w", err)
		}
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		// File doesn't exist yet, create all necessary directories and
		// write the default config file
		if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}

		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(defaultConfig); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil { // some other error occurred
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}
