package output

import (
	"errors"
	"io"
	"sync"
	"time"
)

// SilentBackend is an output device that consumes audio without making
// sound. With Realtime set it consumes at the output rate, so streams end
// when they would have ended audibly; otherwise as fast as it can. It backs
// --mute and the engine tests.
type SilentBackend struct {
	Realtime bool

	mu         sync.Mutex
	sampleRate int
	players    []*SilentPlayer
	suspended  bool
	suspends   int
}

// Open implements Opener.
func (b *SilentBackend) Open(sampleRate int, _ time.Duration) (Backend, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sampleRate = sampleRate
	return b, nil
}

// NewPlayer implements Backend.
func (b *SilentBackend) NewPlayer(r io.Reader) Player {
	b.mu.Lock()
	defer b.mu.Unlock()

	p := &SilentPlayer{r: r, realtime: b.Realtime, sampleRate: b.sampleRate}
	p.cond = sync.NewCond(&p.mu)
	b.players = append(b.players, p)
	go p.run()
	return p
}

// Suspend implements Backend.
func (b *SilentBackend) Suspend() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.suspended = true
	b.suspends++
	return nil
}

// Resume implements Backend.
func (b *SilentBackend) Resume() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.suspended = false
	return nil
}

// Suspended reports whether the device is suspended.
func (b *SilentBackend) Suspended() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.suspended
}

// Players returns every player created so far.
func (b *SilentBackend) Players() []*SilentPlayer {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*SilentPlayer, len(b.players))
	copy(out, b.players)
	return out
}

// SilentPlayer implements Player for SilentBackend.
type SilentPlayer struct {
	r          io.Reader
	realtime   bool
	sampleRate int

	mu       sync.Mutex
	cond     *sync.Cond
	playing  bool
	eof      bool
	closed   bool
	consumed int64
}

func (p *SilentPlayer) run() {
	buf := make([]byte, 4096)
	for {
		p.mu.Lock()
		for !p.closed && (!p.playing || p.eof) {
			p.cond.Wait()
		}
		if p.closed {
			p.mu.Unlock()
			return
		}
		n, err := p.r.Read(buf)
		p.consumed += int64(n)
		if err != nil {
			p.eof = true
		}
		p.mu.Unlock()

		if p.realtime && n > 0 && p.sampleRate > 0 {
			time.Sleep(time.Duration(n/BytesPerFrame) * time.Second / time.Duration(p.sampleRate))
		}
	}
}

// Play implements Player.
func (p *SilentPlayer) Play() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = true
	p.cond.Broadcast()
}

// Pause implements Player.
func (p *SilentPlayer) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = false
}

// IsPlaying implements Player. Like oto, a player whose source is
// exhausted is not playing.
func (p *SilentPlayer) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing && !p.eof
}

// Seek implements Player.
func (p *SilentPlayer) Seek(offset int64, whence int) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.r.(io.Seeker)
	if !ok {
		return 0, errors.New("source is not seekable")
	}
	n, err := s.Seek(offset, whence)
	if err != nil {
		return 0, err
	}
	p.eof = false
	p.cond.Broadcast()
	return n, nil
}

// BufferedSize implements Player. Nothing is buffered.
func (p *SilentPlayer) BufferedSize() int {
	return 0
}

// Close implements Player.
func (p *SilentPlayer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.playing = false
	p.cond.Broadcast()
	return nil
}

// Consumed returns the number of bytes read from the source.
func (p *SilentPlayer) Consumed() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.consumed
}

// Closed reports whether Close was called.
func (p *SilentPlayer) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
