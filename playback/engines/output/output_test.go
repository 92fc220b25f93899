package output_test

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/sadhana/recital/playback/engines/output"
)

var srcFormat = beep.Format{SampleRate: 22050, NumChannels: 1, Precision: 2}

func silence(d time.Duration) beep.StreamSeeker {
	buf := beep.NewBuffer(srcFormat)
	buf.Append(beep.Silence(srcFormat.SampleRate.N(d)))
	return buf.Streamer(0, buf.Len())
}

func newSession(t *testing.T) (*output.Session, *output.SilentBackend) {
	t.Helper()
	backend := &output.SilentBackend{}
	s := output.NewSession(44100, backend.Open)
	if err := s.Acquire(); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	t.Cleanup(s.Release)
	return s, backend
}

func TestSessionReferenceCounting(t *testing.T) {
	opens := 0
	backend := &output.SilentBackend{}
	s := output.NewSession(0, func(rate int, buf time.Duration) (output.Backend, error) {
		opens++
		return backend.Open(rate, buf)
	})

	if _, err := s.Play(silence(time.Second), srcFormat, nil); !errors.Is(err, output.ErrNotAcquired) {
		t.Errorf("Play() before Acquire() error = %v, want ErrNotAcquired", err)
	}

	_ = s.Acquire()
	_ = s.Acquire()
	if err := s.Wait(); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if opens != 1 || s.Refs() != 2 {
		t.Fatalf("opens = %d refs = %d", opens, s.Refs())
	}

	s.Release()
	if backend.Suspended() {
		t.Error("suspended while a reference is held")
	}
	s.Release()
	if !backend.Suspended() {
		t.Error("not suspended after the last release")
	}
	s.Release()
	if s.Refs() != 0 {
		t.Errorf("Refs() = %d after extra release", s.Refs())
	}

	_ = s.Acquire()
	if backend.Suspended() || opens != 1 {
		t.Error("Acquire() did not resume the existing device")
	}
	if s.SampleRate() != output.DefaultSampleRate {
		t.Errorf("SampleRate() = %d", s.SampleRate())
	}
}

func TestSessionOpenFailure(t *testing.T) {
	opens := 0
	s := output.NewSession(0, func(int, time.Duration) (output.Backend, error) {
		opens++
		return nil, errors.New("no sound card")
	})
	if err := s.Acquire(); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if err := s.Wait(); err == nil {
		t.Fatal("Wait() succeeded without a device")
	}
	if _, err := s.Play(silence(time.Second), srcFormat, nil); err == nil || !strings.Contains(err.Error(), "no sound card") {
		t.Errorf("Play() error = %v, want the open failure", err)
	}

	s.Release()
	if s.Refs() != 0 {
		t.Errorf("Refs() = %d after release", s.Refs())
	}

	// The next holder tries the device again.
	_ = s.Acquire()
	_ = s.Wait()
	if opens != 2 {
		t.Errorf("opens = %d, want a retry", opens)
	}
	s.Release()
}

func TestSessionAcquireDoesNotWaitForDevice(t *testing.T) {
	gate := make(chan struct{})
	backend := &output.SilentBackend{}
	s := output.NewSession(0, func(rate int, buf time.Duration) (output.Backend, error) {
		<-gate
		return backend.Open(rate, buf)
	})
	defer s.Release()

	acquired := make(chan error, 1)
	go func() { acquired <- s.Acquire() }()
	select {
	case err := <-acquired:
		if err != nil {
			t.Fatalf("Acquire() error = %v", err)
		}
	case <-time.After(time.Second):
		close(gate)
		t.Fatal("Acquire() blocked on a device that is still opening")
	}

	played := make(chan error, 1)
	go func() {
		st, err := s.Play(silence(time.Second), srcFormat, nil)
		if st != nil {
			defer st.Close()
		}
		played <- err
	}()
	select {
	case <-played:
		t.Fatal("Play() returned before the device was open")
	case <-time.After(50 * time.Millisecond):
	}

	close(gate)
	select {
	case err := <-played:
		if err != nil {
			t.Errorf("Play() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Play() never saw the device")
	}
}

func TestStreamPlaysToEnd(t *testing.T) {
	s, backend := newSession(t)

	ended := make(chan error, 1)
	st, err := s.Play(silence(500*time.Millisecond), srcFormat, func(err error) { ended <- err })
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	if st.Duration() != 500 || !st.Seekable() {
		t.Errorf("Duration() = %d Seekable() = %v", st.Duration(), st.Seekable())
	}
	if err := st.Play(); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-ended:
		if err != nil {
			t.Errorf("onEnd error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stream never ended")
	}

	// Half a second of stereo 16-bit audio at 44.1 kHz, give or take the
	// resampler's edges.
	got := backend.Players()[0].Consumed()
	if got < 85000 || got > 92000 {
		t.Errorf("consumed %d bytes, want about 88200", got)
	}
}

func TestStreamSeek(t *testing.T) {
	s, _ := newSession(t)
	st, err := s.Play(silence(time.Second), srcFormat, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	if err := st.Seek(250); err != nil {
		t.Fatalf("Seek() error = %v", err)
	}
	if pos := st.Position(); pos < 249 || pos > 250 {
		t.Errorf("Position() = %d, want 250", pos)
	}

	if err := st.Seek(5000); err != nil {
		t.Fatalf("Seek() past the end error = %v", err)
	}
	if pos := st.Position(); pos != 1000 {
		t.Errorf("Position() = %d, want clamped to 1000", pos)
	}
}

func TestStreamUnseekableSource(t *testing.T) {
	s, _ := newSession(t)
	st, err := s.Play(beep.Silence(1000), srcFormat, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	if st.Seekable() || st.Duration() != 0 {
		t.Errorf("Seekable() = %v Duration() = %d", st.Seekable(), st.Duration())
	}
	if err := st.Seek(10); err == nil {
		t.Error("Seek() on an unseekable source succeeded")
	}
}

func TestStreamClose(t *testing.T) {
	s, backend := newSession(t)

	called := make(chan struct{}, 1)
	st, err := s.Play(silence(time.Second), srcFormat, func(error) { called <- struct{}{} })
	if err != nil {
		t.Fatal(err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := st.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if err := st.Play(); !errors.Is(err, output.ErrStreamClosed) {
		t.Errorf("Play() after Close() error = %v", err)
	}
	if !backend.Players()[0].Closed() {
		t.Error("player left open")
	}

	select {
	case <-called:
		t.Error("onEnd called for a closed stream")
	case <-time.After(100 * time.Millisecond):
	}
}

// constant streams n frames of one sample value.
type constant struct {
	v float64
	n int
}

func (c *constant) Stream(samples [][2]float64) (int, bool) {
	if c.n == 0 {
		return 0, false
	}
	n := min(len(samples), c.n)
	for i := range samples[:n] {
		samples[i] = [2]float64{c.v, -c.v * 4}
	}
	c.n -= n
	return n, true
}

func (c *constant) Err() error { return nil }

func TestStreamSampleEncoding(t *testing.T) {
	s, backend := newSession(t)
	format := beep.Format{SampleRate: 44100, NumChannels: 2, Precision: 2}

	ended := make(chan error, 1)
	st, err := s.Play(&constant{v: 0.5, n: 10}, format, func(err error) { ended <- err })
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	_ = st.Play()
	<-ended

	if got := backend.Players()[0].Consumed(); got != 40 {
		t.Fatalf("consumed %d bytes, want 40", got)
	}
}

func TestPCMReaderThroughPlayer(t *testing.T) {
	var captured []byte
	s := output.NewSession(44100, func(int, time.Duration) (output.Backend, error) {
		return capture{&captured}, nil
	})
	if err := s.Acquire(); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Play(&constant{v: 0.5, n: 2}, beep.Format{SampleRate: 44100, NumChannels: 2, Precision: 2}, nil); err != nil {
		t.Fatal(err)
	}

	if len(captured) != 8 {
		t.Fatalf("captured %d bytes, want 8", len(captured))
	}
	left := int16(binary.LittleEndian.Uint16(captured[0:]))
	right := int16(binary.LittleEndian.Uint16(captured[2:]))
	if left != 16383 {
		t.Errorf("left sample = %d, want 16383", left)
	}
	if right != -32767 {
		t.Errorf("right sample = %d, want clipped to -32767", right)
	}
}

// capture is a backend whose players read their whole source up front.
type capture struct{ out *[]byte }

func (c capture) NewPlayer(r io.Reader) output.Player {
	*c.out, _ = io.ReadAll(r)
	return &output.SilentPlayer{}
}

func (c capture) Suspend() error { return nil }
func (c capture) Resume() error  { return nil }

func TestSpeak(t *testing.T) {
	s, backend := newSession(t)

	ended := make(chan error, 1)
	sp := s.Speak(context.Background(), func(context.Context) (beep.Streamer, beep.Format, error) {
		src, format := output.NewRawPCM(make([]byte, 4410), 22050)
		return src, format, nil
	}, func(err error) { ended <- err })

	select {
	case err := <-ended:
		if err != nil {
			t.Errorf("onEnd error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("speech never ended")
	}
	if !sp.Stopped() {
		t.Error("Stopped() = false after the end")
	}
	sp.Stop()
	waitClosed(t, backend)
}

func TestSpeakRenderError(t *testing.T) {
	s, _ := newSession(t)

	ended := make(chan error, 1)
	s.Speak(context.Background(), func(context.Context) (beep.Streamer, beep.Format, error) {
		return nil, beep.Format{}, errors.New("voice missing")
	}, func(err error) { ended <- err })

	select {
	case err := <-ended:
		if err == nil || err.Error() != "voice missing" {
			t.Errorf("onEnd error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("render error not reported")
	}
}

func TestSpeakStop(t *testing.T) {
	s, _ := newSession(t)

	rendering := make(chan struct{})
	called := make(chan struct{}, 1)
	sp := s.Speak(context.Background(), func(ctx context.Context) (beep.Streamer, beep.Format, error) {
		close(rendering)
		<-ctx.Done()
		return nil, beep.Format{}, ctx.Err()
	}, func(error) { called <- struct{}{} })

	<-rendering
	sp.Stop()
	sp.Stop()

	select {
	case <-called:
		t.Error("onEnd called after Stop")
	case <-time.After(100 * time.Millisecond):
	}
}

func waitClosed(t *testing.T, b *output.SilentBackend) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if players := b.Players(); len(players) > 0 && players[0].Closed() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("finished speech left its player open")
}

func TestRawPCM(t *testing.T) {
	data := []byte{0x00, 0x40, 0x00, 0xC0, 0xFF, 0x7F}
	src, format := output.NewRawPCM(data, 16000)
	if format.SampleRate != 16000 || format.NumChannels != 1 || src.Len() != 3 {
		t.Fatalf("format = %+v Len() = %d", format, src.Len())
	}

	samples := make([][2]float64, 4)
	n, ok := src.Stream(samples)
	if n != 3 || !ok {
		t.Fatalf("Stream() = %d, %v", n, ok)
	}
	want := []float64{0.5, -0.5, 32767.0 / 32768}
	for i, w := range want {
		if samples[i][0] != w || samples[i][1] != w {
			t.Errorf("sample %d = %v, want %v", i, samples[i], w)
		}
	}
	if n, ok := src.Stream(samples); n != 0 || ok {
		t.Errorf("Stream() at end = %d, %v", n, ok)
	}
	if err := src.Seek(1); err != nil || src.Position() != 1 {
		t.Errorf("Seek(1) = %v, Position() = %d", err, src.Position())
	}
	if err := src.Seek(4); err == nil {
		t.Error("Seek() past the end succeeded")
	}
}
