// Package gtts narrates text with Google Translate's speech endpoint. It
// needs network access but no local voices.
package gtts

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"github.com/gopxl/beep/v2"
	"golang.org/x/time/rate"

	"github.com/sadhana/recital/internal/cache"
	"github.com/sadhana/recital/playback"
	"github.com/sadhana/recital/playback/engines/output"
	"github.com/sadhana/recital/playback/engines/stream"
)

const (
	// Name identifies the engine in logs and cache keys.
	Name = "google"

	// maxChunk is the longest text the endpoint accepts per request.
	maxChunk     = 200
	maxTextSize  = 5000
	maxAudioSize = 5 * 1024 * 1024

	resampleQuality = 4
	userAgent       = "Mozilla/5.0 (X11; Linux x86_64) recital"
)

// Engine implements playback.NarrationEngine.
type Engine struct {
	session *output.Session
	cfg     playback.GoogleConfig
	cache   *cache.Manager
	client  *http.Client
	limiter *rate.Limiter
}

// New creates an engine. lines may be nil to disable caching.
func New(session *output.Session, cfg playback.GoogleConfig, lines *cache.Manager) *Engine {
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = playback.DefaultGoogleConfig().RequestsPerMinute
	}
	return &Engine{
		session: session,
		cfg:     cfg,
		cache:   lines,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1),
	}
}

// Name implements playback.NarrationEngine.
func (e *Engine) Name() string { return Name }

// Narrate implements playback.NarrationEngine.
func (e *Engine) Narrate(ctx context.Context, u playback.Utterance, cb playback.NarrationCallbacks) (playback.Speech, error) {
	if strings.TrimSpace(u.Text) == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}
	if len(u.Text) > maxTextSize {
		return nil, fmt.Errorf("text too long: %d characters (max %d)", len(u.Text), maxTextSize)
	}
	render := func(ctx context.Context) (beep.Streamer, beep.Format, error) {
		return e.Render(ctx, u.Text, u.Speed)
	}
	return e.session.Speak(ctx, render, func(err error) {
		if err != nil {
			cb.Fail(err)
			return
		}
		cb.Done()
	}), nil
}

// Render fetches and decodes text, sped up or slowed down by resampling.
func (e *Engine) Render(ctx context.Context, text string, speed float64) (beep.Streamer, beep.Format, error) {
	var (
		parts  []beep.Streamer
		open   multiCloser
		format beep.Format
	)
	for i, chunk := range chunks(text, maxChunk) {
		audio, err := e.fetch(ctx, chunk)
		if err != nil {
			open.Close() //nolint:errcheck
			return nil, beep.Format{}, err
		}
		src, f, err := stream.Decode("", audio)
		if err != nil {
			open.Close() //nolint:errcheck
			return nil, beep.Format{}, fmt.Errorf("decoding speech: %w", err)
		}
		open = append(open, src)

		if i == 0 {
			format = f
			parts = append(parts, src)
			continue
		}
		if f.SampleRate != format.SampleRate {
			parts = append(parts, beep.Resample(resampleQuality, f.SampleRate, format.SampleRate, src))
			continue
		}
		parts = append(parts, src)
	}

	var out beep.Streamer = beep.Seq(parts...)
	if speed > 0 && speed != 1.0 {
		out = beep.ResampleRatio(resampleQuality, speed, out)
	}
	return &closingStreamer{Streamer: out, closers: open}, format, nil
}

// fetch returns the encoded speech for one chunk, from the cache when
// possible.
func (e *Engine) fetch(ctx context.Context, chunk string) ([]byte, error) {
	key := cache.Key{Engine: Name, Voice: e.cfg.Language, Text: chunk, Speed: 1.0}
	if e.cache != nil {
		if audio, ok := e.cache.Get(key); ok {
			return audio, nil
		}
	}

	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait cancelled: %w", err)
	}

	q := url.Values{}
	q.Set("ie", "UTF-8")
	q.Set("client", "tw-ob")
	q.Set("tl", e.cfg.Language)
	q.Set("q", chunk)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.cfg.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting speech: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("requesting speech: %s", resp.Status)
	}
	audio, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading speech: %w", err)
	}
	switch {
	case len(audio) == 0:
		return nil, fmt.Errorf("speech response was empty")
	case len(audio) > maxAudioSize:
		return nil, fmt.Errorf("speech response too large (max %d bytes)", maxAudioSize)
	}
	log.Debug("google speech fetched", "chars", len(chunk), "bytes", len(audio), "took", time.Since(start))

	if e.cache != nil {
		if err := e.cache.Put(key, audio); err != nil {
			log.Debug("caching google line", "error", err)
		}
	}
	return audio, nil
}

// chunks splits text into pieces of at most limit bytes, breaking between
// words. A single word longer than limit is cut on a rune boundary.
func chunks(text string, limit int) []string {
	var (
		out []string
		cur strings.Builder
	)
	flush := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
		}
	}
	for _, word := range strings.Fields(text) {
		for len(word) > limit {
			flush()
			n := limit
			for n > 0 && !utf8.RuneStart(word[n]) {
				n--
			}
			if n == 0 {
				n = limit
			}
			out = append(out, word[:n])
			word = word[n:]
		}
		if cur.Len() > 0 && cur.Len()+1+len(word) > limit {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(word)
	}
	flush()
	return out
}

type multiCloser []beep.StreamSeekCloser

func (m multiCloser) Close() error {
	var first error
	for _, c := range m {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// closingStreamer closes the decoders behind a composed streamer.
type closingStreamer struct {
	beep.Streamer
	closers multiCloser
}

func (c *closingStreamer) Close() error { return c.closers.Close() }
