// Package notify watches the configuration file and dispatches reloads, so
// retention and sync settings can change without a restart.
package notify

import (
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/quietlabs/engram/internal/config"
	"github.com/quietlabs/engram/internal/observe"
)

// ConfigWatcher watches one config file and invokes a callback with the
// re-parsed configuration on every change.
type ConfigWatcher struct {
	path     string
	callback func(*config.Config)
	obs      *observe.Observer
	watcher  *fsnotify.Watcher
	done     chan struct{}
}

// NewConfigWatcher creates a watcher for the config file at path.
func NewConfigWatcher(path string, obs *observe.Observer, callback func(*config.Config)) *ConfigWatcher {
	return &ConfigWatcher{
		path:     path,
		callback: callback,
		obs:      obs,
		done:     make(chan struct{}),
	}
}

// Start begins watching. The parent directory is watched rather than the
// file itself: editors and config tools typically replace the file, which
// would silently detach a file-level watch. Call Stop() to clean up.
func (cw *ConfigWatcher) Start() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("notify: create watcher: %w", err)
	}

	dir := filepath.Dir(cw.path)
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return fmt.Errorf("notify: watch %s: %w", dir, err)
	}
	cw.watcher = w

	go cw.loop()

	if cw.obs != nil {
		cw.obs.Log().Info().Str("path", cw.path).Msg("watching config file")
	}
	return nil
}

// Stop shuts down the watcher and waits for the loop to exit.
func (cw *ConfigWatcher) Stop() {
	if cw.watcher != nil {
		_ = cw.watcher.Close()
	}
	<-cw.done
}

func (cw *ConfigWatcher) loop() {
	defer close(cw.done)
	for {
		select {
		case evt, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if evt.Op&(fsnotify.Write|fsnotify.Create) != 0 && filepath.Clean(evt.Name) == filepath.Clean(cw.path) {
				cw.reload()
			}
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			if cw.obs != nil {
				cw.obs.Log().Warn().Err(err).Msg("config watcher error")
			}
		}
	}
}

func (cw *ConfigWatcher) reload() {
	cfg, err := config.Load(cw.path)
	if err != nil {
		// A half-written or invalid file keeps the previous settings.
		if cw.obs != nil {
			cw.obs.Log().Warn().Err(err).Msg("config reload skipped")
		}
		return
	}

	if cw.obs != nil {
		cw.obs.Log().Info().Str("path", cw.path).Msg("config reloaded")
	}
	if cw.callback != nil {
		cw.callback(cfg)
	}
}
