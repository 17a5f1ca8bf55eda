// Package inbox watches a recipient's asset directory for the moment a
// new asset becomes fully visible (spec §3 Lifecycle: "becomes readable
// ... once the directory is visible"). fsnotify.Create on the asset's
// manifest.json is used as that visibility signal, since Write's last
// step is writing the chunk files after the manifest — by the time
// manifest.json exists, the directory was just created, but chunk
// writes may still be in flight, so callers should treat this as "asset
// has appeared" rather than "asset is guaranteed complete". LoadAsset
// reports a missing manifest or metadata file, and DecryptChunk a missing
// chunk file, as a malformed asset.
package inbox

import (
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Event reports a manifest becoming visible under a watched directory.
type Event struct {
	AssetDir     string
	ManifestPath string
}

// Watcher wraps an fsnotify.Watcher scoped to manifest.json creation
// events under one or more watched root directories.
type Watcher struct {
	fsw *fsnotify.Watcher
	log *logrus.Entry

	events chan Event
	errors chan error
	done   chan struct{}
}

// New constructs a Watcher. Call Watch to add root directories and Run
// to start delivering events.
func New(log *logrus.Entry) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Watcher{
		fsw:    fsw,
		log:    log.WithField("component", "inbox"),
		events: make(chan Event, 64),
		errors: make(chan error, 8),
		done:   make(chan struct{}),
	}, nil
}

// Watch adds root to the set of watched directories (typically the
// engine's configured OutputDir, where EncryptBytesToAsset materializes
// new <asset_id>/ subdirectories).
func (w *Watcher) Watch(root string) error {
	return w.fsw.Add(root)
}

// watchIfDir adds name to the watch set when it is a directory. fsnotify
// does not watch recursively, so the Create event for a new <asset_id>/
// subdirectory under a watched root must be followed by an explicit Add
// before that subdirectory's own manifest.json creation can be seen.
func (w *Watcher) watchIfDir(name string) {
	info, err := os.Stat(name)
	if err != nil || !info.IsDir() {
		return
	}
	if err := w.fsw.Add(name); err != nil {
		w.log.WithField("dir", name).WithError(err).Warn("failed to watch new asset directory")
	}
}

// Events returns the channel of manifest-visibility events.
func (w *Watcher) Events() <-chan Event { return w.events }

// Errors returns the channel of underlying watch errors.
func (w *Watcher) Errors() <-chan error { return w.errors }

// Run drains the underlying fsnotify channels until Close is called,
// translating manifest.json creation into Event values.
func (w *Watcher) Run() {
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&fsnotify.Create == 0 {
				continue
			}
			if filepath.Base(ev.Name) != "manifest.json" {
				w.watchIfDir(ev.Name)
				continue
			}
			assetDir := filepath.Dir(ev.Name)
			select {
			case w.events <- Event{AssetDir: assetDir, ManifestPath: ev.Name}:
			default:
				w.log.WithField("asset_dir", assetDir).Warn("inbox event channel full, dropping event")
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			select {
			case w.errors <- err:
			default:
			}
		}
	}
}

// Close stops Run and releases the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}
