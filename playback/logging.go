package playback

import (
	"sync/atomic"

	"github.com/charmbracelet/log"
)

var current atomic.Pointer[log.Logger]

func init() {
	current.Store(log.Default().WithPrefix("playback"))
}

// SetLogger replaces the logger used by the playback components. Call it
// after the root logger has been pointed at its final output.
func SetLogger(l *log.Logger) {
	if l == nil {
		return
	}
	current.Store(l.WithPrefix("playback"))
}

// Logger returns the playback logger, for engines living in subpackages.
func Logger() *log.Logger {
	return current.Load()
}

type logProxy struct{}

// logger forwards to whatever SetLogger installed last.
var logger logProxy

func (logProxy) Debug(msg any, kv ...any) { current.Load().Debug(msg, kv...) }
func (logProxy) Info(msg any, kv ...any)  { current.Load().Info(msg, kv...) }
func (logProxy) Warn(msg any, kv ...any)  { current.Load().Warn(msg, kv...) }
func (logProxy) Error(msg any, kv ...any) { current.Load().Error(msg, kv...) }

// LogPlaybackEvent records a transport or lifecycle event at debug level.
func LogPlaybackEvent(component, event string, kv ...any) {
	args := append([]any{"component", component, "event", event}, kv...)
	current.Load().Debug("playback event", args...)
}

// LogPlaybackError records a failure surfaced as an Error status.
func LogPlaybackError(component string, err error) {
	if err == nil {
		return
	}
	current.Load().Warn("playback error", "component", component, "error", err)
}
