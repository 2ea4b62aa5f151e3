package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// File is a Watchable backed by a single JSON file, shared between
// processes. External changes are observed through an fsnotify watch on the
// containing directory and surfaced by diffing against the last known
// snapshot, so a handle's own writes never produce notifications.
//
// Writes replace the whole file atomically (temp file + rename). Two
// processes writing different keys at the same instant can clobber each
// other; the medium is last-writer-wins by contract.
type File struct {
	path string
	log  zerolog.Logger
	fw   *fsnotify.Watcher
	done chan struct{}

	mu       sync.Mutex
	snapshot map[string]string
	set      *watcherSet

	closeOnce sync.Once
}

var _ Watchable = (*File)(nil)

// OpenFile opens (creating if needed) the store file at path and begins
// watching it for external changes.
func OpenFile(path string, log zerolog.Logger) (*File, error) {
	if path == "" {
		return nil, errors.New("[store.OpenFile] path is required")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.Wrap(err, "[store.OpenFile] creating store directory")
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "[store.OpenFile] fsnotify watcher")
	}
	// Watch the directory, not the file: atomic renames swap the inode.
	if err := fw.Add(dir); err != nil {
		_ = fw.Close()
		return nil, errors.Wrap(err, "[store.OpenFile] watching "+dir)
	}

	f := &File{
		path:     filepath.Clean(path),
		log:      log,
		fw:       fw,
		done:     make(chan struct{}),
		snapshot: loadStoreFile(path, log),
		set:      newWatcherSet(),
	}
	go f.watchLoop()
	return f, nil
}

// Get implements Store. It reads the file fresh so cross-process writes are
// visible immediately, ahead of the watch notification.
func (f *File) Get(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := loadStoreFile(f.path, f.log)[key]
	return v, ok
}

// Set implements Store.
func (f *File) Set(key, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if old, ok := f.snapshot[key]; ok && old == value {
		return
	}
	f.snapshot[key] = value
	f.persistLocked()
}

// Remove implements Store.
func (f *File) Remove(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.snapshot[key]; !ok {
		return
	}
	delete(f.snapshot, key)
	f.persistLocked()
}

// Watch implements Watchable.
func (f *File) Watch(fn func(Change)) (cancel func()) {
	f.mu.Lock()
	id := f.set.add(fn)
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			f.set.remove(id)
			f.mu.Unlock()
		})
	}
}

// Close stops the file watcher. The handle remains readable and writable
// but no longer observes external changes.
func (f *File) Close() error {
	var err error
	f.closeOnce.Do(func() {
		close(f.done)
		err = f.fw.Close()
	})
	return err
}

func (f *File) watchLoop() {
	for {
		select {
		case <-f.done:
			return
		case ev, ok := <-f.fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != f.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			f.refresh()
		case err, ok := <-f.fw.Errors:
			if !ok {
				return
			}
			f.log.Warn().Err(err).Msg("store file watch error")
		}
	}
}

// refresh reloads the file and notifies watchers of every key that differs
// from the snapshot. A handle's own writes updated the snapshot already, so
// they diff to nothing.
func (f *File) refresh() {
	f.mu.Lock()
	current := loadStoreFile(f.path, f.log)

	var changes []Change
	for key, value := range current {
		if old, ok := f.snapshot[key]; !ok || old != value {
			changes = append(changes, Change{Key: key, Value: value})
		}
	}
	for key := range f.snapshot {
		if _, ok := current[key]; !ok {
			changes = append(changes, Change{Key: key, Removed: true})
		}
	}

	f.snapshot = current
	watchers := f.set.snapshot()
	f.mu.Unlock()

	for _, change := range changes {
		dispatch(watchers, change)
	}
}

func (f *File) persistLocked() {
	payload, err := json.Marshal(f.snapshot)
	if err != nil {
		f.log.Error().Err(err).Msg("marshalling store file")
		return
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), filepath.Base(f.path)+".tmp-*")
	if err != nil {
		f.log.Error().Err(err).Msg("creating store temp file")
		return
	}
	name := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		_ = os.Remove(name)
		f.log.Error().Err(err).Msg("writing store temp file")
		return
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(name)
		f.log.Error().Err(err).Msg("closing store temp file")
		return
	}
	if err := os.Rename(name, f.path); err != nil {
		_ = os.Remove(name)
		f.log.Error().Err(err).Msg("replacing store file")
	}
}

// loadStoreFile reads the store file, treating a missing or corrupt file as
// empty. Corruption from an unrelated writer must not break this subsystem.
func loadStoreFile(path string, log zerolog.Logger) map[string]string {
	payload, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Msg("reading store file")
		}
		return map[string]string{}
	}
	values := map[string]string{}
	if err := json.Unmarshal(payload, &values); err != nil {
		log.Warn().Err(err).Msg("store file corrupt, treating as empty")
		return map[string]string{}
	}
	return values
}
