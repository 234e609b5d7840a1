package config

import (
	"log"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// Manager owns the live Config and watches its source file for changes,
// swapping in a freshly parsed Config atomically on write. Adapted from
// the teacher's config/manager.go reload mechanism, itself redesigned
// from polling to an fsnotify watcher — the dependency both the
// kephasnet and MiraiMindz-watt pack repos already carry for exactly
// this kind of file-change notification.
type Manager struct {
	path      string
	current   atomic.Pointer[Config]
	watcher   *fsnotify.Watcher
	logger    *log.Logger
	onReload  []func(*Config)
	mu        sync.Mutex
	closeOnce sync.Once
	stopCh    chan struct{}
}

// NewManager loads path once and starts watching it for writes. logger
// may be nil, in which case reload errors are discarded.
func NewManager(path string, logger *log.Logger) (*Manager, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, err
	}

	m := &Manager{
		path:    path,
		watcher: watcher,
		logger:  logger,
		stopCh:  make(chan struct{}),
	}
	m.current.Store(cfg)
	go m.watch()
	return m, nil
}

// Current returns the live Config. Safe to call concurrently with a
// reload in progress.
func (m *Manager) Current() *Config {
	return m.current.Load()
}

// OnReload registers a callback invoked, in registration order, every
// time a new Config is successfully loaded and swapped in.
func (m *Manager) OnReload(fn func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onReload = append(m.onReload, fn)
}

func (m *Manager) watch() {
	for {
		select {
		case <-m.stopCh:
			return
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			m.reload()
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			if m.logger != nil {
				m.logger.Printf("config: watcher error: %v", err)
			}
		}
	}
}

func (m *Manager) reload() {
	cfg, err := Load(m.path)
	if err != nil {
		if m.logger != nil {
			m.logger.Printf("config: reload of %s failed, keeping previous config: %v", m.path, err)
		}
		return
	}
	m.current.Store(cfg)

	m.mu.Lock()
	callbacks := append([]func(*Config){}, m.onReload...)
	m.mu.Unlock()
	for _, fn := range callbacks {
		fn(cfg)
	}
}

// Close stops the watcher goroutine and releases its fsnotify handle.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() { close(m.stopCh) })
	return m.watcher.Close()
}
