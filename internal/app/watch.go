package app

import (
	"context"
	"crypto/sha256"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
)

// configWatcher debounces fsnotify events on the config file and triggers
// App.Reload only when the file's content actually changed, avoiding
// reload storms from editors that rewrite-via-rename or touch mtime
// without touching bytes.
//
// Grounded on pkg/hotreload/config_reloader.go's sha256 change detection
// and debounce interval, reimplemented against App.Reload instead of that
// file's types.Config-shaped onConfigChanged/onReloadSuccess callbacks,
// which have no equivalent in the topology-graph reload model.
type configWatcher struct {
	app      *App
	watcher  *fsnotify.Watcher
	debounce time.Duration
	lastHash [32]byte
}

func newConfigWatcher(a *App, debounce time.Duration) (*configWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	cw := &configWatcher{app: a, watcher: w, debounce: debounce}
	cw.lastHash = cw.hashFile()
	if err := w.Add(a.configPath); err != nil {
		w.Close()
		return nil, err
	}
	return cw, nil
}

func (cw *configWatcher) hashFile() [32]byte {
	data, err := os.ReadFile(cw.app.configPath)
	if err != nil {
		return [32]byte{}
	}
	return sha256.Sum256(data)
}

// run blocks processing fsnotify events until ctx is cancelled, reloading
// the app at most once per debounce window and only when the file's
// content hash actually changed since the last reload.
func (cw *configWatcher) run(ctx context.Context) {
	var pending *time.Timer
	defer func() {
		if pending != nil {
			pending.Stop()
		}
		cw.watcher.Close()
	}()

	fire := func() {
		h := cw.hashFile()
		if h == cw.lastHash {
			return
		}
		cw.lastHash = h
		if err := cw.app.Reload(ctx); err != nil {
			cw.app.logger.WithError(err).Error("app: config watcher reload failed")
		}
	}

	var pendingC <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			cw.app.logger.WithError(err).Warn("app: config watcher error")
		case ev, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if pending != nil {
				pending.Stop()
			}
			pending = time.NewTimer(cw.debounce)
			pendingC = pending.C
		case <-pendingC:
			pendingC = nil
			fire()
		}
	}
}
