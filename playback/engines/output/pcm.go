package output

import (
	"encoding/binary"
	"errors"
	"io"
	"math"
	"sync"

	"github.com/gopxl/beep/v2"
)

// resampleQuality is the beep resampler quality used for rate conversion.
var resampleQuality = 4

// SetResampleQuality sets the quality of rate conversion for streams
// created afterwards. beep accepts 1 to 64.
func SetResampleQuality(q int) {
	if q >= 1 && q <= 64 {
		resampleQuality = q
	}
}

// pcmReader renders a beep stream as interleaved little-endian signed
// 16-bit stereo at the output rate.
type pcmReader struct {
	mu      sync.Mutex
	src     beep.Streamer
	out     beep.Streamer
	srcRate beep.SampleRate
	outRate beep.SampleRate
	buf     [][2]float64
	read    int64 // output frames produced since the last seek
	base    int   // source position at the last seek
	eof     bool
	err     error
}

func newPCMReader(src beep.Streamer, srcRate, outRate beep.SampleRate) *pcmReader {
	r := &pcmReader{src: src, srcRate: srcRate, outRate: outRate}
	r.rebuild()
	return r
}

func (r *pcmReader) rebuild() {
	r.out = r.src
	if r.srcRate != r.outRate {
		r.out = beep.Resample(resampleQuality, r.srcRate, r.outRate, r.src)
	}
}

// Read implements io.Reader.
func (r *pcmReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.eof {
		return 0, io.EOF
	}
	frames := len(p) / BytesPerFrame
	if frames == 0 {
		return 0, nil
	}
	if cap(r.buf) < frames {
		r.buf = make([][2]float64, frames)
	}
	buf := r.buf[:frames]

	n, ok := r.out.Stream(buf)
	if !ok || n == 0 {
		r.eof = true
		r.err = r.out.Err()
		return 0, io.EOF
	}
	for i := 0; i < n; i++ {
		for c := 0; c < Channels; c++ {
			v := math.Max(-1, math.Min(1, buf[i][c]))
			binary.LittleEndian.PutUint16(p[i*BytesPerFrame+c*2:], uint16(int16(v*math.MaxInt16)))
		}
	}
	r.read += int64(n)
	return n * BytesPerFrame, nil
}

// Seek implements io.Seeker over output bytes. Only absolute positions
// move the source; a zero relative seek reports the current offset.
func (r *pcmReader) Seek(offset int64, whence int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if whence == io.SeekCurrent && offset == 0 {
		return r.offset(), nil
	}
	if whence != io.SeekStart {
		return 0, errors.New("output: only absolute seeks are supported")
	}
	seeker, ok := r.src.(beep.StreamSeeker)
	if !ok {
		return 0, errors.New("output: source cannot seek")
	}

	frame := offset / BytesPerFrame
	pos := int(frame * int64(r.srcRate) / int64(r.outRate))
	if n := seeker.Len(); pos > n {
		pos = n
	}
	if pos < 0 {
		pos = 0
	}
	if err := seeker.Seek(pos); err != nil {
		return 0, err
	}
	r.base = pos
	r.read = 0
	r.eof = false
	r.err = nil
	r.rebuild()
	return offset, nil
}

// offset returns the current output byte offset. Called with mu held.
func (r *pcmReader) offset() int64 {
	frames := int64(r.base)*int64(r.outRate)/int64(r.srcRate) + r.read
	return frames * BytesPerFrame
}

// position returns the source sample position, or the frames produced so
// far converted to source samples when the source cannot report it.
func (r *pcmReader) position() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.src.(beep.StreamSeeker); ok {
		return s.Position()
	}
	return r.base + int(r.read*int64(r.srcRate)/int64(r.outRate))
}

func (r *pcmReader) length() int {
	if s, ok := r.src.(beep.StreamSeeker); ok {
		return s.Len()
	}
	return 0
}

func (r *pcmReader) ended() (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.eof, r.err
}

func (r *pcmReader) close() error {
	if c, ok := r.src.(beep.StreamCloser); ok {
		return c.Close()
	}
	return nil
}
