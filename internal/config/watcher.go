package config

import (
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher reloads the config file when it changes on disk. Editors
// often produce several filesystem events per save, so changes are
// debounced before the file is re-read. A reload that fails validation
// is logged and dropped; the previous config stays in effect.
type Watcher struct {
	path     string
	debounce time.Duration
	onChange func(old, cur *Config)
	log      *zap.SugaredLogger

	fw      *fsnotify.Watcher
	last    *Config
	stopCh  chan struct{}
	doneCh  chan struct{}
	mu      sync.Mutex
	running bool
}

// WatcherConfig holds watcher parameters.
type WatcherConfig struct {
	Path     string
	Debounce time.Duration // default 200ms
	OnChange func(old, cur *Config)
	Log      *zap.SugaredLogger
}

// NewWatcher loads the config at cfg.Path and returns a watcher primed
// with it. Call Start to begin watching.
func NewWatcher(cfg WatcherConfig) (*Watcher, error) {
	if cfg.Path == "" {
		return nil, ErrMissingConfigFile
	}
	if cfg.OnChange == nil {
		return nil, ErrMissingOnChange
	}
	initial, err := Load(cfg.Path)
	if err != nil {
		return nil, err
	}
	debounce := cfg.Debounce
	if debounce == 0 {
		debounce = 200 * time.Millisecond
	}
	log := cfg.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Watcher{
		path:     cfg.Path,
		debounce: debounce,
		onChange: cfg.OnChange,
		log:      log,
		last:     initial,
	}, nil
}

// Current returns the most recently loaded config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}

// Start begins watching the file. It is a no-op when already running.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fw.Add(w.path); err != nil {
		fw.Close()
		return err
	}
	w.fw = fw
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.running = true
	go w.loop()
	return nil
}

// Stop stops watching and waits for the watch loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopCh)
	w.fw.Close()
	done := w.doneCh
	w.mu.Unlock()
	<-done
}

func (w *Watcher) loop() {
	defer close(w.doneCh)

	var timer *time.Timer
	var timerC <-chan time.Time
	for {
		select {
		case <-w.stopCh:
			if timer != nil {
				timer.Stop()
			}
			return
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.log.Warnw("config watch error", "path", w.path, "error", err)
		case <-timerC:
			timer = nil
			timerC = nil
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	next, err := Load(w.path)
	if err != nil {
		w.log.Warnw("config reload rejected", "path", w.path, "error", err)
		return
	}
	w.mu.Lock()
	old := w.last
	w.last = next
	w.mu.Unlock()
	w.log.Infow("config reloaded", "path", w.path)
	w.onChange(old, next)
}
