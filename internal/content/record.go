// Package content loads devotional content records (aartis, chalisas,
// bhajans, mantras) from a YAML library file or a SQLite database.
package content

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sahilm/fuzzy"

	"github.com/sadhana/recital/playback"
)

// ErrNotFound is returned when no record matches a reference.
var ErrNotFound = errors.New("content not found")

// Record is one content item.
type Record struct {
	Type     string        `yaml:"type"`
	ID       string        `yaml:"id"`
	Title    string        `yaml:"title"`
	Subtitle string        `yaml:"subtitle,omitempty"`
	Language string        `yaml:"language,omitempty"`
	Duration time.Duration `yaml:"duration,omitempty"`
	Text     string        `yaml:"text,omitempty"`
	Audio    Audio         `yaml:"audio,omitempty"`
}

// Audio holds the places a recording of a record may live.
type Audio struct {
	Primary    string `yaml:"primary,omitempty"`
	Archive    string `yaml:"archive,omitempty"`
	Mirror     string `yaml:"mirror,omitempty"`
	Asset      string `yaml:"asset,omitempty"`
	Cached     bool   `yaml:"cached,omitempty"`
	CachedPath string `yaml:"cached_path,omitempty"`
}

// Ref returns the "type/id" reference of the record.
func (r Record) Ref() string {
	return r.Type + "/" + r.ID
}

// Validate checks the fields every record needs.
func (r Record) Validate() error {
	switch {
	case strings.TrimSpace(r.Type) == "":
		return fmt.Errorf("record %q: missing type", r.ID)
	case strings.TrimSpace(r.ID) == "":
		return fmt.Errorf("record of type %q: missing id", r.Type)
	case strings.Contains(r.Type, "/") || strings.Contains(r.ID, "/"):
		return fmt.Errorf("record %s: type and id cannot contain '/'", r.Ref())
	}
	return nil
}

// AudioFields returns the fields the source resolver ranks.
func (r Record) AudioFields() playback.ContentAudioFields {
	return playback.ContentAudioFields{
		PrimaryURL:         r.Audio.Primary,
		ArchiveURL:         r.Audio.Archive,
		AlternateMirrorURL: r.Audio.Mirror,
		LocalAssetName:     r.Audio.Asset,
		IsCached:           r.Audio.Cached,
		CachedFilePath:     r.Audio.CachedPath,
		HasNarrationText:   strings.TrimSpace(r.Text) != "",
	}
}

// Content returns what a screen binds to.
func (r Record) Content() playback.Content {
	return playback.Content{
		Type:          r.Type,
		ID:            r.ID,
		Title:         r.Title,
		Subtitle:      r.Subtitle,
		Language:      r.Language,
		DurationMs:    r.Duration.Milliseconds(),
		Fields:        r.AudioFields(),
		NarrationText: r.Text,
	}
}

// Track returns a track for the record's best recording, if it has one.
func (r Record) Track() (playback.Track, bool) {
	src := playback.Resolve(r.AudioFields())
	if !src.Playable() {
		return playback.Track{}, false
	}
	t := playback.NewTrack(r.Type, r.ID, r.Title, src)
	t.Subtitle = r.Subtitle
	t.Language = r.Language
	t.DurationMs = r.Duration.Milliseconds()
	return t, true
}

// Repository reads content records.
type Repository interface {
	Get(ctx context.Context, typ, id string) (Record, error)
	List(ctx context.Context) ([]Record, error)
	Close() error
}

// Find looks up ref, either "type/id" or a bare id. A bare id must be
// unique across types.
func Find(ctx context.Context, repo Repository, ref string) (Record, error) {
	if typ, id, ok := strings.Cut(ref, "/"); ok {
		rec, err := repo.Get(ctx, typ, id)
		if errors.Is(err, ErrNotFound) {
			if records, lerr := repo.List(ctx); lerr == nil {
				return Record{}, notFound(ref, records)
			}
		}
		return rec, err
	}

	records, err := repo.List(ctx)
	if err != nil {
		return Record{}, err
	}
	var found []Record
	for _, r := range records {
		if r.ID == ref {
			found = append(found, r)
		}
	}
	switch len(found) {
	case 0:
		return Record{}, notFound(ref, records)
	case 1:
		return found[0], nil
	default:
		refs := make([]string, len(found))
		for i, r := range found {
			refs[i] = r.Ref()
		}
		return Record{}, fmt.Errorf("%q is ambiguous: %s", ref, strings.Join(refs, ", "))
	}
}

// maxSuggestions bounds the near matches listed with ErrNotFound.
const maxSuggestions = 3

// notFound wraps ErrNotFound, naming the closest refs when there are any.
func notFound(ref string, records []Record) error {
	refs := make([]string, len(records))
	for i, r := range records {
		refs[i] = r.Ref()
	}
	matches := fuzzy.Find(ref, refs)
	if len(matches) == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	near := make([]string, 0, maxSuggestions)
	for _, m := range matches {
		if len(near) == maxSuggestions {
			break
		}
		near = append(near, m.Str)
	}
	return fmt.Errorf("%w: %s (did you mean %s?)", ErrNotFound, ref, strings.Join(near, ", "))
}

// Queue returns the playable tracks of records of the given type, in
// repository order.
func Queue(records []Record, typ string) *playback.SliceQueue {
	var tracks []playback.Track
	for _, r := range records {
		if r.Type != typ {
			continue
		}
		if t, ok := r.Track(); ok {
			tracks = append(tracks, t)
		}
	}
	return playback.NewSliceQueue(tracks...)
}
