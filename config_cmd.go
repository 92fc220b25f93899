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

const defaultConfig = `# content library: a YAML file or a SQLite database
library: ""
# play without sound
mute: false

playback:
  # how often the position of a recording is published
  tick_interval: "250ms"
  # give up opening a recording after this long
  open_timeout: "20s"
  # play the next recording of the same type when one finishes
  auto_advance: false
  # narration engine: piper, google or none
  narrator: "piper"
  # reading speed: 0.75, 1.0, 1.25, 1.5, 1.75 or 2.0
  default_speed: 1.0
  # auto, sing or read
  preference: "auto"
  # read the text when its recording cannot be played
  auto_fallback: false

  # recorded audio
  stream:
    # directory of bundled recordings
    # assets_dir: "~/recital/assets"
    http_timeout: "30s"
    max_download: 134217728
    user_agent: "recital"
    resample_quality: 4

  # piper narration engine
  piper:
    binary: "piper"
    model: "en_US-lessac-medium"
    # model_path: "/path/to/model.onnx"
    speaker_id: 0
    sample_rate: 22050
    timeout: "30s"

  # network narration engine
  google:
    base_url: "https://translate.google.com/translate_tts"
    language: "en"
    requests_per_minute: 30
    timeout: "10s"

  # synthesized line cache
  cache:
    enabled: true
    # dir: "~/.cache/recital/lines"
    memory_mb: 32
    disk_mb: 256
    ttl: "720h"
`

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the recital config file",
	Long:    paragraph(fmt.Sprintf("\n%s the recital config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("recital config\nrecital config --config path/to/config.yml"),
	Args:    cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("Recital", configFile)
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

		if err := os.WriteFile(configFile, []byte(defaultConfig), 0o600); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil { // some other error occurred
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}
