// Package probe reads titles and durations from local recordings.
package probe

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dhowden/tag"
	"github.com/gopxl/beep/v2/wav"
	"github.com/tcolgate/mp3"

	"github.com/sadhana/recital/playback"
)

// Info describes a local recording.
type Info struct {
	Title    string
	Artist   string
	Album    string
	Duration time.Duration // 0 when unknown
	Size     int64
}

// File probes the recording at path. Missing tags and undecodable audio
// leave fields empty; only an unreadable file is an error.
func File(path string) (Info, error) {
	st, err := os.Stat(path)
	if err != nil {
		return Info{}, err
	}

	info := Info{Size: st.Size()}
	info.Title, info.Artist, info.Album = readTags(path)
	if info.Title == "" {
		info.Title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		info.Duration, _ = mp3Duration(path)
	case ".wav", ".wave":
		info.Duration, _ = wavDuration(path)
	}
	return info, nil
}

// Track fills the title and duration of t from its local file when they
// are not already known.
func Track(t playback.Track) playback.Track {
	if t.Locator == "" || strings.Contains(t.Locator, "://") && !strings.HasPrefix(t.Locator, "file://") {
		return t
	}
	info, err := File(strings.TrimPrefix(t.Locator, "file://"))
	if err != nil {
		return t
	}
	if t.Title == "" {
		t.Title = info.Title
	}
	if t.Subtitle == "" && info.Artist != "" {
		t.Subtitle = info.Artist
	}
	if t.DurationMs == 0 {
		t.DurationMs = info.Duration.Milliseconds()
	}
	return t
}

func readTags(path string) (title, artist, album string) {
	f, err := os.Open(path)
	if err != nil {
		return "", "", ""
	}
	defer f.Close() //nolint:errcheck

	meta, err := tag.ReadFrom(f)
	if err != nil {
		return "", "", ""
	}
	return strings.TrimSpace(meta.Title()), strings.TrimSpace(meta.Artist()), strings.TrimSpace(meta.Album())
}

func mp3Duration(path string) (time.Duration, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close() //nolint:errcheck

	var (
		dec     = mp3.NewDecoder(f)
		frame   mp3.Frame
		skipped int
		total   time.Duration
	)
	for {
		if err := dec.Decode(&frame, &skipped); err != nil {
			if errors.Is(err, io.EOF) {
				return total, nil
			}
			return 0, err
		}
		total += frame.Duration()
	}
}

func wavDuration(path string) (time.Duration, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	s, format, err := wav.Decode(f)
	if err != nil {
		_ = f.Close()
		return 0, err
	}
	defer s.Close() //nolint:errcheck
	return format.SampleRate.D(s.Len()), nil
}
