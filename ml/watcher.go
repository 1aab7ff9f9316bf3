package ml

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ArtifactWatcher reports changes to the model artifact on disk. The served
// model is never swapped; the watcher only tells the operator a restart is
// needed to pick up a new artifact.
type ArtifactWatcher struct {
	watcher  *fsnotify.Watcher
	path     string
	log      *zap.SugaredLogger
	onChange func(fsnotify.Op)
	done     chan struct{}
}

// WatchArtifact watches the directory holding path, since the artifact may
// not exist yet. The directory is created when missing. onChange may be nil.
func WatchArtifact(path string, log *zap.SugaredLogger, onChange func(fsnotify.Op)) (*ArtifactWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	// the directory may not exist before the first training run
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("create %s: %w", dir, err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	w := &ArtifactWatcher{
		watcher:  watcher,
		path:     filepath.Clean(path),
		log:      log,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	go w.run()
	return w, nil
}

func (w *ArtifactWatcher) run() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			w.log.Warnw("model artifact changed on disk, restart the server to serve it", "path", w.path, "op", event.Op.String())
			if w.onChange != nil {
				w.onChange(event.Op)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Errorw("artifact watcher error", "path", w.path, "error", err)
		}
	}
}

// Close stops the watcher and waits for its goroutine to exit.
func (w *ArtifactWatcher) Close() error {
	err := w.watcher.Close()
	<-w.done
	return err
}
