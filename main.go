// Package main provides the entry point for the recital CLI application.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/mitchellh/go-homedir"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/sadhana/recital/playback"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	library    string
	narrator   string
	preference string
	mute       bool
	debug      bool
	width      int

	logCloser = func() error { return nil }

	rootCmd = &cobra.Command{
		Use:   "recital",
		Short: "Sing or read devotional texts in the terminal",
		Long: paragraph(
			fmt.Sprintf("\nPlay the %s of a prayer, or have it %s line by line when there is none.",
				keyword("recording"), keyword("read aloud")),
		),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return validateOptions(cmd)
		},
	}
)

func validateOptions(cmd *cobra.Command) error {
	if cmd.Flags().Changed("config") {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("unable to read config file: %w", err)
		}
	}

	debug = viper.GetBool("debug") || os.Getenv("RECITAL_DEBUG") != ""
	closer, err := setupLog(debug)
	if err != nil {
		return fmt.Errorf("unable to set up logging: %w", err)
	}
	logCloser = closer

	mute = viper.GetBool("mute")
	library = expandPath(viper.GetString("library"))
	narrator = viper.GetString("narrator")
	preference = viper.GetString("preference")

	if narrator != "" {
		viper.Set("playback.narrator", narrator)
	}
	if preference != "" {
		if _, err := playback.ParsePreference(preference); err != nil {
			return err
		}
		viper.Set("playback.preference", preference)
	}

	// Detect terminal width
	if !cmd.Flags().Changed("width") {
		width = 0
		if fd := int(os.Stdout.Fd()); term.IsTerminal(fd) {
			if w, _, err := term.GetSize(fd); err == nil {
				width = w
			}
		}
		if width == 0 || width > 120 {
			width = 80
		}
	}
	return nil
}

// loadConfig reads the playback section of the configuration and fills in
// the directories that default to the user's cache.
func loadConfig() (playback.Config, error) {
	cfg, err := playback.LoadConfigFromViper()
	if err != nil {
		return cfg, err
	}

	cfg.Stream.AssetsDir = expandPath(cfg.Stream.AssetsDir)
	cfg.Piper.ModelPath = expandPath(cfg.Piper.ModelPath)
	cfg.Cache.Dir = expandPath(cfg.Cache.Dir)
	if cfg.Cache.Dir == "" {
		dir, err := gap.NewScope(gap.User, "recital").CacheDir()
		if err != nil {
			return cfg, fmt.Errorf("unable to find cache directory: %w", err)
		}
		cfg.Cache.Dir = filepath.Join(dir, "lines")
	}
	if library == "" {
		return cfg, errors.New("no library configured: pass --library or set library in the config file")
	}
	return cfg, nil
}

// expandPath expands a leading ~ and environment variables.
func expandPath(path string) string {
	s, err := homedir.Expand(path)
	if err == nil {
		return os.ExpandEnv(s)
	}
	return os.ExpandEnv(path)
}

func main() {
	err := rootCmd.Execute()
	_ = logCloser()
	if err != nil {
		os.Exit(1)
	}
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

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	flags.StringVarP(&library, "library", "L", "", "content library (YAML file or SQLite database)")
	flags.StringVar(&narrator, "narrator", "", "narration engine (piper, google or none)")
	flags.StringVarP(&preference, "preference", "P", "", "sing, read or auto")
	flags.BoolVar(&mute, "mute", false, "play without sound")
	flags.BoolVar(&debug, "debug", false, "write a debug log to the cache directory")
	flags.IntVarP(&width, "width", "w", 0, "output width")

	// Config bindings
	_ = viper.BindPFlag("library", flags.Lookup("library"))
	_ = viper.BindPFlag("narrator", flags.Lookup("narrator"))
	_ = viper.BindPFlag("preference", flags.Lookup("preference"))
	_ = viper.BindPFlag("mute", flags.Lookup("mute"))
	_ = viper.BindPFlag("debug", flags.Lookup("debug"))

	viper.SetDefault("library", "")
	viper.SetDefault("mute", false)

	rootCmd.AddCommand(playCmd, resolveCmd, importCmd, configCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "recital")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "recital")}, dirs...)
	}

	if c := os.Getenv("RECITAL_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("recital")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("recital")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", viper.ConfigFileUsed())
		return
	}

	configFile = filepath.Join(dirs[0], "recital.yml")
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}
