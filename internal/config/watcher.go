package config

import (
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// DescriptorWatcher monitors the settings descriptor file and swaps in the
// new schema when the file changes, so the settings endpoint serves edits
// without a restart. It uses polling (not fsnotify) to keep dependencies
// minimal.
type DescriptorWatcher struct {
	path     string
	interval time.Duration
	log      *slog.Logger
	onChange func(old, new *Descriptor)

	mu       sync.Mutex
	current  *Descriptor
	done     chan struct{}
	stopOnce sync.Once

	// last known file state for change detection
	lastMtime time.Time
	lastHash  [sha256.Size]byte
}

// WatcherOption configures a [DescriptorWatcher].
type WatcherOption func(*DescriptorWatcher)

// WithInterval sets the polling interval. The default is 5 seconds.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *DescriptorWatcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithOnChange registers a callback invoked after a reload, outside the
// watcher's lock.
func WithOnChange(fn func(old, new *Descriptor)) WatcherOption {
	return func(w *DescriptorWatcher) {
		w.onChange = fn
	}
}

// NewDescriptorWatcher creates a descriptor file watcher. The initial load
// follows [LoadDescriptor] semantics: an unusable file falls back to the
// built-in schema rather than failing, and a later fix of the file is picked
// up by polling.
func NewDescriptorWatcher(path string, log *slog.Logger, opts ...WatcherOption) *DescriptorWatcher {
	w := &DescriptorWatcher{
		path:     path,
		interval: 5 * time.Second,
		log:      log,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	w.current = LoadDescriptor(path, log)
	if data, err := os.ReadFile(path); err == nil {
		w.lastHash = sha256.Sum256(data)
		if info, err := os.Stat(path); err == nil {
			w.lastMtime = info.ModTime()
		}
	}

	go w.poll()
	return w
}

// Current returns the most recently loaded valid descriptor.
func (w *DescriptorWatcher) Current() *Descriptor {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Stop stops the file watcher.
func (w *DescriptorWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
	})
}

// poll runs in a background goroutine, checking the descriptor file
// periodically.
func (w *DescriptorWatcher) poll() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.check()
		}
	}
}

// check reads the descriptor file and, if it has changed and is valid, swaps
// it in and calls onChange.
func (w *DescriptorWatcher) check() {
	// Quick mtime check first to avoid hashing unchanged files.
	info, err := os.Stat(w.path)
	if err != nil {
		// Missing file is the normal built-in-schema case, not worth
		// logging every poll.
		return
	}

	w.mu.Lock()
	mtime := w.lastMtime
	w.mu.Unlock()

	if info.ModTime().Equal(mtime) {
		return
	}

	desc, hash, newMtime, err := w.loadAndHash()
	if err != nil {
		w.log.Warn("config watcher: descriptor reload failed, keeping previous schema", "path", w.path, "error", err)
		return
	}

	w.mu.Lock()

	if hash == w.lastHash {
		// File was touched but content is identical.
		w.lastMtime = newMtime
		w.mu.Unlock()
		return
	}

	old := w.current
	w.current = desc
	w.lastHash = hash
	w.lastMtime = newMtime
	w.mu.Unlock()

	w.log.Info("config watcher: settings descriptor reloaded", "path", w.path, "descriptor", desc.String())

	// Invoke the callback outside the lock so it can safely call Current().
	if w.onChange != nil {
		w.onChange(old, desc)
	}
}

// loadAndHash reads the descriptor file, parses it, and returns the result
// alongside the file's SHA-256 hash and modification time. If the descriptor
// is invalid, it returns an error and the caller keeps the old one.
func (w *DescriptorWatcher) loadAndHash() (*Descriptor, [sha256.Size]byte, time.Time, error) {
	var zeroHash [sha256.Size]byte

	info, err := os.Stat(w.path)
	if err != nil {
		return nil, zeroHash, time.Time{}, err
	}

	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, zeroHash, time.Time{}, err
	}

	desc, err := ParseDescriptor(data)
	if err != nil {
		return nil, zeroHash, time.Time{}, fmt.Errorf("config: %s: %w", w.path, err)
	}

	return desc, sha256.Sum256(data), info.ModTime(), nil
}
