package main

import (
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"

	"github.com/sadhana/recital/playback"
)

func getLogFilePath() (string, error) {
	dir, err := gap.NewScope(gap.User, "recital").CacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "recital.log"), nil
}

// setupLog sends debug logs to a file in the cache dir. Without debug only
// warnings and errors are shown, on stderr.
func setupLog(debug bool) (func() error, error) {
	if !debug {
		log.SetOutput(os.Stderr)
		log.SetLevel(log.WarnLevel)
		playback.SetLogger(log.Default())
		return func() error { return nil }, nil
	}

	logFile, err := getLogFilePath()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil { //nolint:gosec
		return nil, err
	}
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644) //nolint:gosec
	if err != nil {
		return nil, err
	}
	log.SetOutput(f)
	log.SetLevel(log.DebugLevel)
	log.SetReportTimestamp(true)
	playback.SetLogger(log.Default())
	log.Debug("logging to file", "path", logFile)
	return f.Close, nil
}

// quietLog hides stderr logging while the full screen program owns the
// terminal. File logging is left alone.
func quietLog() (restore func()) {
	if debug {
		return func() {}
	}
	log.SetOutput(io.Discard)
	playback.SetLogger(log.Default())
	return func() {
		log.SetOutput(os.Stderr)
		playback.SetLogger(log.Default())
	}
}
