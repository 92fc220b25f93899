// Package stream is the audio engine for recordings: bundled assets,
// downloaded files and remote URLs, decoded with beep and played through
// the shared output session.
package stream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"
	"github.com/klauspost/compress/zstd"

	"github.com/sadhana/recital/playback"
	"github.com/sadhana/recital/playback/engines/output"
)

// ErrUnsupportedFormat is returned for files beep cannot decode.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// Engine implements playback.AudioEngine.
type Engine struct {
	session *output.Session
	cfg     playback.StreamConfig
	client  *http.Client
}

// New creates an engine playing through session.
func New(session *output.Session, cfg playback.StreamConfig) *Engine {
	output.SetResampleQuality(cfg.ResampleQual)
	return &Engine{
		session: session,
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.HTTPTimeout},
	}
}

// Open loads and decodes locator and returns a paused handle.
func (e *Engine) Open(ctx context.Context, locator string, cb playback.AudioCallbacks) (playback.AudioHandle, error) {
	data, name, err := e.load(ctx, locator)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	src, format, err := Decode(name, data)
	if err != nil {
		return nil, err
	}

	st, err := e.session.Play(src, format, func(err error) {
		if err != nil {
			cb.Fail(fmt.Errorf("decoding %s: %w", name, err))
			return
		}
		cb.Complete()
	})
	if err != nil {
		_ = src.Close()
		return nil, err
	}
	log.Debug("stream opened", "locator", locator, "duration_ms", st.Duration(), "sample_rate", format.SampleRate)
	return st, nil
}

// load returns the bytes behind locator and the name used to detect its
// format.
func (e *Engine) load(ctx context.Context, locator string) ([]byte, string, error) {
	var (
		data []byte
		name string
		err  error
	)
	switch {
	case strings.HasPrefix(locator, "http://"), strings.HasPrefix(locator, "https://"):
		data, err = e.download(ctx, locator)
		name = locator
		if u, perr := url.Parse(locator); perr == nil {
			name = path.Base(u.Path)
		}
	default:
		name = e.localPath(locator)
		data, err = e.readFile(name)
	}
	if err != nil {
		return nil, "", err
	}

	if strings.EqualFold(filepath.Ext(name), ".zst") {
		data, err = e.decompress(data)
		if err != nil {
			return nil, "", fmt.Errorf("decompressing %s: %w", name, err)
		}
		name = strings.TrimSuffix(name, filepath.Ext(name))
	}
	return data, name, nil
}

func (e *Engine) localPath(locator string) string {
	p := strings.TrimPrefix(locator, "file://")
	if filepath.IsAbs(p) || e.cfg.AssetsDir == "" {
		return p
	}
	if _, err := os.Stat(p); err == nil {
		return p
	}
	return filepath.Join(e.cfg.AssetsDir, p)
}

func (e *Engine) readFile(name string) ([]byte, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close() //nolint:errcheck
	return e.readLimited(f, name)
}

func (e *Engine) download(ctx context.Context, locator string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return nil, err
	}
	if e.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", e.cfg.UserAgent)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s: %s", locator, resp.Status)
	}
	return e.readLimited(resp.Body, locator)
}

func (e *Engine) readLimited(r io.Reader, name string) ([]byte, error) {
	if e.cfg.MaxDownload <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, e.cfg.MaxDownload+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > e.cfg.MaxDownload {
		return nil, fmt.Errorf("%s is larger than %d bytes", name, e.cfg.MaxDownload)
	}
	return data, nil
}

func (e *Engine) decompress(data []byte) ([]byte, error) {
	opts := []zstd.DOption{}
	if e.cfg.MaxDownload > 0 {
		opts = append(opts, zstd.WithDecoderMaxMemory(uint64(e.cfg.MaxDownload)))
	}
	dec, err := zstd.NewReader(nil, opts...)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(data, nil)
}

// Decode picks a decoder from name's extension, falling back to the
// content's magic bytes.
func Decode(name string, data []byte) (beep.StreamSeekCloser, beep.Format, error) {
	rc := readSeekCloser{bytes.NewReader(data)}

	switch kind := formatOf(name, data); kind {
	case "wav":
		return wav.Decode(rc)
	case "ogg":
		return vorbis.Decode(rc)
	case "mp3":
		return mp3.Decode(rc)
	default:
		return nil, beep.Format{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
	}
}

func formatOf(name string, data []byte) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".wav", ".wave":
		return "wav"
	case ".ogg", ".oga":
		return "ogg"
	case ".mp3":
		return "mp3"
	}

	switch {
	case bytes.HasPrefix(data, []byte("RIFF")):
		return "wav"
	case bytes.HasPrefix(data, []byte("OggS")):
		return "ogg"
	case bytes.HasPrefix(data, []byte("ID3")),
		len(data) > 1 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return "mp3"
	}
	return ""
}

// readSeekCloser lets the decoders seek in an in-memory file.
type readSeekCloser struct {
	*bytes.Reader
}

func (readSeekCloser) Close() error { return nil }
