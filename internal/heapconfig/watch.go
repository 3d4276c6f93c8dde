package heapconfig

import (
	"github.com/fsnotify/fsnotify"
)

// Watcher re-loads a config file on write and pushes the new value onto
// Updates. Errors encountered while loading (including an incompatible
// format_version) are pushed onto Errors instead of being dropped; the
// previously loaded Config is left in place either way.
type Watcher struct {
	Updates chan *Config
	Errors  chan error

	fsw  *fsnotify.Watcher
	path string
	done chan struct{}
}

// Watch starts watching the file at path for writes and returns a Watcher.
// Callers should call Close when done.
func Watch(path string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := fsw.Add(path); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{
		Updates: make(chan *Config, 1),
		Errors:  make(chan error, 1),
		fsw:     fsw,
		path:    path,
		done:    make(chan struct{}),
	}

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

			cfg, err := Load(w.path)
			if err != nil {
				w.Errors <- err
				continue
			}

			w.Updates <- cfg
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}

			w.Errors <- err
		case <-w.done:
			return
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}
