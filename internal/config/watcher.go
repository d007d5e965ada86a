package config

import (
	"sync"

	"github.com/fsnotify/fsnotify"

	"beatbox/internal/log"
)

// HotConfig wraps Config with file-watch reload support. Reload callbacks
// run on the watcher goroutine and receive the freshly validated config.
type HotConfig struct {
	mu   sync.RWMutex
	cfg  *Config
	path string
	subs []func(*Config)

	watcher *fsnotify.Watcher
}

// NewHotConfig loads the config once and remembers the path for reloads.
func NewHotConfig(path string) (*HotConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &HotConfig{cfg: cfg, path: path}, nil
}

// Get returns the current configuration snapshot.
func (hc *HotConfig) Get() *Config {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return hc.cfg
}

// OnReload registers a callback for config changes. Register all callbacks
// before calling Watch.
func (hc *HotConfig) OnReload(fn func(*Config)) {
	hc.subs = append(hc.subs, fn)
}

func (hc *HotConfig) reload() {
	cfg, err := Load(hc.path)
	if err != nil {
		log.Errorf("config: reload failed, keeping previous: %v", err)
		return
	}
	hc.mu.Lock()
	hc.cfg = cfg
	hc.mu.Unlock()

	log.Infof("config: reloaded from %s", hc.path)
	for _, fn := range hc.subs {
		fn(cfg)
	}
}

// Watch starts watching the config file for writes. It is a no-op when the
// config came from built-in defaults rather than a file.
func (hc *HotConfig) Watch() error {
	if hc.path == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	hc.watcher = watcher

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
					hc.reload()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warnf("config: watcher error: %v", err)
			}
		}
	}()

	return watcher.Add(hc.path)
}

// Close stops the watcher. Safe to call when Watch was never started.
func (hc *HotConfig) Close() error {
	if hc.watcher == nil {
		return nil
	}
	return hc.watcher.Close()
}
