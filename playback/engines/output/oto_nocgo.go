//go:build nocgo
// +build nocgo

package output

import (
	"errors"
	"time"
)

// OpenDevice always fails in builds without cgo; use --mute.
func OpenDevice(int, time.Duration) (Backend, error) {
	return nil, errors.New("audio output not available in nocgo build")
}
