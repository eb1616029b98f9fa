package config

import (
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a Config from disk whenever its backing file changes,
// swapping the new values into the live Config via ReplaceFrom so callers
// holding a *Config pointer observe the update without re-fetching it.
// Grounded on the teacher's fsnotify usage for skills-directory watching;
// goclaw does not hot-reload config.json itself, so this is new code in
// the teacher's idiom (small struct, slog logging, a single watch loop).
type Watcher struct {
	path   string
	target *Config
	fsw    *fsnotify.Watcher
	log    *slog.Logger
}

// NewWatcher starts watching path for changes and reloading into target.
func NewWatcher(path string, target *Config, log *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(path); err != nil {
		fsw.Close()
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	w := &Watcher{path: path, target: target, fsw: fsw, log: log}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			fresh, err := Load(w.path)
			if err != nil {
				w.log.Warn("config reload failed", "path", w.path, "error", err)
				continue
			}
			w.target.ReplaceFrom(fresh)
			w.log.Info("config reloaded", "path", w.path)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("config watcher error", "error", err)
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error { return w.fsw.Close() }
