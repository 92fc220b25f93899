package output

import (
	"encoding/binary"
	"errors"

	"github.com/gopxl/beep/v2"
)

// RawPCM streams signed 16-bit little-endian mono samples, the output of
// piper's --output-raw.
type RawPCM struct {
	data []byte
	pos  int // frames
}

// NewRawPCM wraps data recorded at sampleRate.
func NewRawPCM(data []byte, sampleRate int) (*RawPCM, beep.Format) {
	return &RawPCM{data: data}, beep.Format{
		SampleRate:  beep.SampleRate(sampleRate),
		NumChannels: 1,
		Precision:   2,
	}
}

// Stream implements beep.Streamer.
func (r *RawPCM) Stream(samples [][2]float64) (int, bool) {
	n := 0
	for n < len(samples) && r.pos < r.Len() {
		v := float64(int16(binary.LittleEndian.Uint16(r.data[r.pos*2:]))) / 32768
		samples[n] = [2]float64{v, v}
		r.pos++
		n++
	}
	return n, n > 0
}

// Err implements beep.Streamer.
func (r *RawPCM) Err() error { return nil }

// Len implements beep.StreamSeeker.
func (r *RawPCM) Len() int { return len(r.data) / 2 }

// Position implements beep.StreamSeeker.
func (r *RawPCM) Position() int { return r.pos }

// Seek implements beep.StreamSeeker.
func (r *RawPCM) Seek(p int) error {
	if p < 0 || p > r.Len() {
		return errors.New("output: seek position out of range")
	}
	r.pos = p
	return nil
}

// Close implements beep.StreamCloser.
func (r *RawPCM) Close() error { return nil }
