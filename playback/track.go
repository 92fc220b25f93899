package playback

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// Track is one playable recording handed to the Coordinator.
type Track struct {
	ID          string
	Title       string
	Subtitle    string
	Locator     string // path or URL, never empty for a valid track
	ContentType string
	ContentID   string
	DurationMs  int64 // known duration, 0 if unknown until prepared
	Language    string
	SourceLabel string
}

// SameContent reports whether both tracks render the same content item.
func (t Track) SameContent(o Track) bool {
	return t.ContentID == o.ContentID && t.ContentType == o.ContentType
}

// NewID returns a new sortable unique identifier.
func NewID() string {
	id, err := ulid.New(ulid.Timestamp(time.Now()), rand.Reader)
	if err != nil {
		return ulid.Make().String()
	}
	return id.String()
}

// NewTrack builds a track for a content item from its resolved source.
func NewTrack(contentType, contentID, title string, src AudioSource) Track {
	return Track{
		ID:          NewID(),
		Title:       title,
		Locator:     src.ResolvedLocator,
		ContentType: contentType,
		ContentID:   contentID,
		SourceLabel: src.DisplayLabel,
	}
}
