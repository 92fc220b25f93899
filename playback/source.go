// Package playback renders devotional content as audio: it picks one audio
// source per content item, plays recorded tracks through a single shared
// output and falls back to line-by-line synthesized narration.
package playback

import "strings"

// SourceType identifies which tier an AudioSource was resolved from.
type SourceType int

const (
	// SourceLocal is an asset bundled with the application.
	SourceLocal SourceType = iota
	// SourceCached is a previously downloaded file on local storage.
	SourceCached
	// SourcePrimary is the canonical remote recording.
	SourcePrimary
	// SourceArchive is the archive.org copy of the recording.
	SourceArchive
	// SourceMirror is an alternate mirror of the recording.
	SourceMirror
	// SourceNarration means only narration text is available.
	SourceNarration
	// SourceUnavailable means there is nothing to render.
	SourceUnavailable
)

// String returns the string representation of the source type.
func (t SourceType) String() string {
	switch t {
	case SourceLocal:
		return "local"
	case SourceCached:
		return "cached"
	case SourcePrimary:
		return "primary"
	case SourceArchive:
		return "archive"
	case SourceMirror:
		return "mirror"
	case SourceNarration:
		return "narration"
	case SourceUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Label returns the user facing name of the tier.
func (t SourceType) Label() string {
	switch t {
	case SourceLocal:
		return "Local"
	case SourceCached:
		return "Downloaded"
	case SourcePrimary:
		return "Stream"
	case SourceArchive:
		return "Archive"
	case SourceMirror:
		return "Mirror"
	case SourceNarration:
		return "Narration"
	default:
		return "Unavailable"
	}
}

// ContentAudioFields are the audio related fields of a content record.
// Empty strings mean "absent".
type ContentAudioFields struct {
	PrimaryURL         string
	ArchiveURL         string
	AlternateMirrorURL string
	LocalAssetName     string
	IsCached           bool
	CachedFilePath     string
	HasNarrationText   bool
}

// AudioSource is the result of resolving a content record's audio fields.
// It is an immutable value; a new one is produced on every Resolve call.
type AudioSource struct {
	SourceType      SourceType
	ResolvedLocator string // path or URL, empty when narration only
	IsLocalFile     bool
	IsNarrationOnly bool
	DisplayLabel    string
}

// Playable reports whether the source points at a recording an audio
// engine can open.
func (s AudioSource) Playable() bool {
	return !s.IsNarrationOnly && s.ResolvedLocator != ""
}

// Resolve picks the highest ranked audio source for the given fields.
// It never fails and performs no I/O: cached paths and URLs are not
// validated here, a bad locator surfaces as an open failure at playback.
func Resolve(f ContentAudioFields) AudioSource {
	if name := present(f.LocalAssetName); name != "" {
		return recorded(SourceLocal, name, true)
	}
	if path := present(f.CachedFilePath); f.IsCached && path != "" {
		return recorded(SourceCached, path, true)
	}
	if u := present(f.PrimaryURL); u != "" {
		return recorded(SourcePrimary, u, false)
	}
	if u := present(f.ArchiveURL); u != "" {
		return recorded(SourceArchive, u, false)
	}
	if u := present(f.AlternateMirrorURL); u != "" {
		return recorded(SourceMirror, u, false)
	}
	if f.HasNarrationText {
		return AudioSource{
			SourceType:      SourceNarration,
			IsNarrationOnly: true,
			DisplayLabel:    SourceNarration.Label(),
		}
	}
	return AudioSource{
		SourceType:      SourceUnavailable,
		IsNarrationOnly: true,
		DisplayLabel:    SourceUnavailable.Label(),
	}
}

// NarrationSource returns the source used when a screen downgrades to
// synthesized narration.
func NarrationSource() AudioSource {
	return Resolve(ContentAudioFields{HasNarrationText: true})
}

func recorded(t SourceType, locator string, local bool) AudioSource {
	return AudioSource{
		SourceType:      t,
		ResolvedLocator: locator,
		IsLocalFile:     local,
		DisplayLabel:    t.Label(),
	}
}

func present(s string) string {
	return strings.TrimSpace(s)
}
