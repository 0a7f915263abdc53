package config

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// ReloadCallback is invoked after a successful reload with the previous and
// new configuration. Returning an error rejects the reload; the previous
// configuration stays active.
type ReloadCallback func(old, new *Config) error

// ConfigReloader re-reads the configuration on SIGHUP or when the config
// file changes on disk. All reloads run on one goroutine, so consumers of
// the callback (signing key rotation included) never see concurrent
// transitions.
type ConfigReloader struct {
	path     string
	logger   *logrus.Logger
	watcher  *fsnotify.Watcher
	sighup   chan os.Signal
	done     chan struct{}
	stopOnce sync.Once

	mu       sync.RWMutex
	current  *Config
	onReload ReloadCallback
}

// NewConfigReloader creates a reloader for the given config path. An empty
// path disables file watching; SIGHUP still triggers a reload attempt.
func NewConfigReloader(path string, current *Config, logger *logrus.Logger) (*ConfigReloader, error) {
	r := &ConfigReloader{
		path:    path,
		logger:  logger,
		current: current,
		sighup:  make(chan os.Signal, 1),
		done:    make(chan struct{}),
	}

	if path != "" {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, fmt.Errorf("create config watcher: %w", err)
		}
		if err := watcher.Add(path); err != nil {
			watcher.Close()
			return nil, fmt.Errorf("watch config file: %w", err)
		}
		r.watcher = watcher
	}

	signal.Notify(r.sighup, syscall.SIGHUP)
	return r, nil
}

// SetOnReloadCallback registers the callback fired on each successful reload.
func (r *ConfigReloader) SetOnReloadCallback(cb ReloadCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onReload = cb
}

// GetCurrentConfig returns a copy of the active configuration.
func (r *ConfigReloader) GetCurrentConfig() *Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg := *r.current
	return &cfg
}

// Start runs the reload loop until Stop is called. It is intended to run in
// its own goroutine.
func (r *ConfigReloader) Start() {
	var events chan fsnotify.Event
	var errs chan error
	if r.watcher != nil {
		events = r.watcher.Events
		errs = r.watcher.Errors
	}

	for {
		select {
		case <-r.done:
			return
		case <-r.sighup:
			r.logger.Info("received SIGHUP, reloading configuration")
			r.reload()
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			r.logger.WithField("file", ev.Name).Info("config file changed, reloading")
			r.reload()
			// Editors replace files on save; re-arm the watch in case the
			// inode changed.
			if r.watcher != nil {
				r.watcher.Add(r.path)
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			r.logger.WithError(err).Warn("config watcher error")
		}
	}
}

// Stop terminates the reload loop and releases the watcher.
func (r *ConfigReloader) Stop() {
	r.stopOnce.Do(func() {
		close(r.done)
		signal.Stop(r.sighup)
		if r.watcher != nil {
			r.watcher.Close()
		}
	})
}

func (r *ConfigReloader) reload() {
	newConfig, err := LoadConfig(r.path)
	if err != nil {
		r.logger.WithError(err).Error("config reload failed, keeping previous configuration")
		return
	}

	r.mu.Lock()
	old := r.current
	cb := r.onReload
	r.mu.Unlock()

	if err := r.validateReloadSafety(old, newConfig); err != nil {
		r.logger.WithError(err).Error("config reload rejected")
		return
	}

	if cb != nil {
		if err := cb(old, newConfig); err != nil {
			r.logger.WithError(err).Error("reload callback rejected new configuration")
			return
		}
	}

	r.mu.Lock()
	r.current = newConfig
	r.mu.Unlock()
	r.logger.Info("configuration reloaded")
}

// validateReloadSafety rejects changes that cannot be applied to a running
// process. Signing key material (key_base64) may change — that is exactly
// how rotation is delivered — but identity and storage bindings may not.
func (r *ConfigReloader) validateReloadSafety(old, new *Config) error {
	if old.Signing.KeyFile != new.Signing.KeyFile {
		return fmt.Errorf("signing.key_file cannot be changed during hot reload")
	}
	if old.Signing.ManufacturerID != new.Signing.ManufacturerID {
		return fmt.Errorf("signing.manufacturer_id cannot be changed during hot reload")
	}
	if old.Store.Enabled != new.Store.Enabled {
		return fmt.Errorf("store.enabled cannot be changed during hot reload")
	}
	if old.Store.Path != new.Store.Path {
		return fmt.Errorf("store.path cannot be changed during hot reload")
	}
	if old.TLS != new.TLS {
		return fmt.Errorf("tls settings cannot be changed during hot reload")
	}
	return nil
}
