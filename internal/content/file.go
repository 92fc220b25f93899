package content

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// DefaultDebounce is how long Watch waits for writes to settle.
const DefaultDebounce = 200 * time.Millisecond

type library struct {
	Records []Record `yaml:"records"`
}

// FileRepository serves records from a YAML library file, kept in memory.
type FileRepository struct {
	path string

	mu      sync.RWMutex
	records []Record
	index   map[string]int
}

// OpenFile loads the library at path.
func OpenFile(path string) (*FileRepository, error) {
	r := &FileRepository{path: path}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Path returns the library file path.
func (r *FileRepository) Path() string { return r.path }

// Reload re-reads the library file. On error the previous records stay.
func (r *FileRepository) Reload() error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return fmt.Errorf("reading library: %w", err)
	}
	records, err := Parse(data)
	if err != nil {
		return fmt.Errorf("%s: %w", r.path, err)
	}

	index := make(map[string]int, len(records))
	for i, rec := range records {
		index[rec.Ref()] = i
	}

	r.mu.Lock()
	r.records = records
	r.index = index
	r.mu.Unlock()
	return nil
}

// Parse decodes a YAML library document.
func Parse(data []byte) ([]Record, error) {
	var lib library
	if err := yaml.Unmarshal(data, &lib); err != nil {
		return nil, fmt.Errorf("parsing library: %w", err)
	}
	seen := make(map[string]bool, len(lib.Records))
	for _, rec := range lib.Records {
		if err := rec.Validate(); err != nil {
			return nil, err
		}
		if seen[rec.Ref()] {
			return nil, fmt.Errorf("duplicate record %s", rec.Ref())
		}
		seen[rec.Ref()] = true
	}
	return lib.Records, nil
}

// Get implements Repository.
func (r *FileRepository) Get(_ context.Context, typ, id string) (Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.index[typ+"/"+id]
	if !ok {
		return Record{}, fmt.Errorf("%w: %s/%s", ErrNotFound, typ, id)
	}
	return r.records[i], nil
}

// List implements Repository.
func (r *FileRepository) List(context.Context) ([]Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Record, len(r.records))
	copy(out, r.records)
	return out, nil
}

// Close implements Repository.
func (r *FileRepository) Close() error { return nil }

// Watcher reloads a FileRepository when its file changes.
type Watcher struct {
	repo     *FileRepository
	watcher  *fsnotify.Watcher
	debounce time.Duration
	onChange func([]Record)

	timerMu sync.Mutex
	timer   *time.Timer

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Watch starts reloading the repository whenever the library file is
// written, calling onChange with the new records after each successful
// reload. Bursts of writes within debounce cause one reload.
func (r *FileRepository) Watch(debounce time.Duration, onChange func([]Record)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// The directory is watched so editors that replace the file by rename
	// are still seen.
	if err := fw.Add(filepath.Dir(r.path)); err != nil {
		_ = fw.Close()
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	w := &Watcher{
		repo:     r,
		watcher:  fw,
		debounce: debounce,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	w.wg.Add(1)
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	defer w.wg.Done()
	name := filepath.Base(w.repo.path)

	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				w.schedule()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn("library watcher error", "error", err)
		}
	}
}

func (w *Watcher) schedule() {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	select {
	case <-w.done:
		return
	default:
	}
	if err := w.repo.Reload(); err != nil {
		log.Warn("reloading library", "error", err)
		return
	}
	log.Debug("library reloaded", "path", w.repo.path)
	if w.onChange != nil {
		records, _ := w.repo.List(context.Background())
		w.onChange(records)
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		w.timerMu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.timerMu.Unlock()
		err = w.watcher.Close()
		w.wg.Wait()
	})
	return err
}
