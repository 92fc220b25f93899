package probe

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/wav"

	"github.com/sadhana/recital/playback"
)

func writeWAV(t *testing.T, path string, d time.Duration) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	format := beep.Format{SampleRate: 8000, NumChannels: 1, Precision: 2}
	if err := wav.Encode(f, beep.Silence(format.SampleRate.N(d)), format); err != nil {
		t.Fatal(err)
	}
}

func TestFileWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Shiv Aarti.wav")
	writeWAV(t, path, 1500*time.Millisecond)

	info, err := File(path)
	if err != nil {
		t.Fatalf("File() error = %v", err)
	}
	if info.Title != "Shiv Aarti" {
		t.Errorf("Title = %q, want the file stem", info.Title)
	}
	if info.Duration != 1500*time.Millisecond {
		t.Errorf("Duration = %v", info.Duration)
	}
	if info.Size == 0 {
		t.Error("Size = 0")
	}
}

func TestFileInvalidMP3(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.mp3")
	if err := os.WriteFile(path, []byte("not really an mp3"), 0o644); err != nil {
		t.Fatal(err)
	}

	info, err := File(path)
	if err != nil {
		t.Fatalf("File() error = %v", err)
	}
	if info.Duration != 0 || info.Title != "broken" {
		t.Errorf("File() = %+v", info)
	}
}

func TestFileMissing(t *testing.T) {
	if _, err := File(filepath.Join(t.TempDir(), "absent.mp3")); err == nil {
		t.Error("File() succeeded for a missing file")
	}
}

func TestTrack(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ganesh.wav")
	writeWAV(t, path, 2*time.Second)

	tests := []struct {
		name  string
		track playback.Track
		title string
		ms    int64
	}{
		{"fills unknowns", playback.Track{Locator: path}, "ganesh", 2000},
		{"file scheme", playback.Track{Locator: "file://" + path}, "ganesh", 2000},
		{"keeps known", playback.Track{Locator: path, Title: "Jai Ganesh Deva", DurationMs: 1}, "Jai Ganesh Deva", 1},
		{"remote untouched", playback.Track{Locator: "https://cdn.example.org/ganesh.wav"}, "", 0},
		{"missing untouched", playback.Track{Locator: filepath.Join(dir, "absent.wav")}, "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Track(tt.track)
			if got.Title != tt.title || got.DurationMs != tt.ms {
				t.Errorf("Track() = %q %d, want %q %d", got.Title, got.DurationMs, tt.title, tt.ms)
			}
		})
	}
}
