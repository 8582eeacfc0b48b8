// Package watcher refreshes the note service when files under notes/
// change behind its back, for example after a git pull or a manual edit.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/gitnotes/internal/checksum"
	"github.com/starford/gitnotes/internal/notes"
	"github.com/starford/gitnotes/internal/noteservice"
)

// Refresher reloads cached state. *noteservice.Service implements it.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithPublisher sets the callback receiving change events.
func WithPublisher(fn func(noteservice.Event)) Option {
	return func(w *Watcher) { w.publish = fn }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// WithDebounce sets how long the watcher waits for a burst of events to
// settle before refreshing.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// Watcher turns file events under notes/ into service refreshes and
// note events.
type Watcher struct {
	dir      string
	svc      Refresher
	publish  func(noteservice.Event)
	logger   *slog.Logger
	debounce time.Duration

	// sums holds the checksum of every file seen, keyed by base name.
	sums map[string]string
	// paths holds the last known virtual path of every note.
	paths map[notes.NoteID]string
}

// New creates a watcher for the repository at root.
func New(root string, svc Refresher, opts ...Option) *Watcher {
	w := &Watcher{
		dir:      filepath.Join(root, notes.NotesDir),
		svc:      svc,
		publish:  func(noteservice.Event) {},
		logger:   slog.Default(),
		debounce: 200 * time.Millisecond,
		sums:     make(map[string]string),
		paths:    make(map[notes.NoteID]string),
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Run watches until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := w.scan(); err != nil {
		return err
	}
	if err := fw.Add(w.dir); err != nil {
		return err
	}
	w.logger.Info("watcher: started", slog.String("dir", w.dir))

	pending := make(map[notes.NoteID]struct{})
	var timer *time.Timer
	var timerCh <-chan time.Time
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(w.debounce)
			timerCh = timer.C
		} else {
			timer.Reset(w.debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			w.logger.Info("watcher: stopped")
			return nil

		case <-timerCh:
			w.flush(ctx, pending)
			pending = make(map[notes.NoteID]struct{})

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			name := filepath.Base(ev.Name)
			id, ok := noteFile(name)
			if !ok || !w.changed(name) {
				continue
			}
			w.logger.Debug("watcher: changed", slog.String("file", name), slog.String("op", ev.Op.String()))
			pending[id] = struct{}{}
			schedule()

		case watchErr, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// noteFile returns the note a file under notes/ belongs to.
func noteFile(name string) (notes.NoteID, bool) {
	stem, ok := strings.CutSuffix(name, notes.MetadataExt)
	if !ok {
		stem, ok = strings.CutSuffix(name, notes.ContentExt)
	}
	if !ok {
		return "", false
	}
	id, err := notes.ParseNoteID(stem)
	return id, err == nil
}

func (w *Watcher) scan() error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		id, ok := noteFile(e.Name())
		if !ok || e.IsDir() {
			continue
		}
		w.changed(e.Name())
		if strings.HasSuffix(e.Name(), notes.MetadataExt) {
			if m, err := w.readMetadata(id); err == nil {
				w.paths[id] = m.Path
			}
		}
	}
	return nil
}

// changed records the current checksum of name and reports whether it
// differs from the previous one. A vanished file counts as changed once.
func (w *Watcher) changed(name string) bool {
	data, err := os.ReadFile(filepath.Join(w.dir, name))
	if err != nil {
		if _, known := w.sums[name]; known {
			delete(w.sums, name)
			return true
		}
		return false
	}
	sum := checksum.Sum(data)
	if w.sums[name] == sum {
		return false
	}
	w.sums[name] = sum
	return true
}

// readMetadata reads the metadata of id. A missing file yields an error
// matching os.ErrNotExist.
func (w *Watcher) readMetadata(id notes.NoteID) (notes.Metadata, error) {
	data, err := os.ReadFile(filepath.Join(w.dir, string(id)+notes.MetadataExt))
	if err != nil {
		return notes.Metadata{}, err
	}
	m, err := notes.DecodeMetadata(data)
	if err != nil {
		return notes.Metadata{}, err
	}
	if m.ID != id {
		return notes.Metadata{}, fmt.Errorf("metadata of %s names note %q", id, m.ID)
	}
	return m, nil
}

func (w *Watcher) flush(ctx context.Context, pending map[notes.NoteID]struct{}) {
	if err := w.svc.Refresh(ctx); err != nil {
		w.logger.Warn("watcher: refresh failed", slog.String("error", err.Error()))
	}

	ids := make([]notes.NoteID, 0, len(pending))
	for id := range pending {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	for _, id := range ids {
		old, known := w.paths[id]
		m, err := w.readMetadata(id)
		switch {
		case errors.Is(err, os.ErrNotExist):
			if known {
				delete(w.paths, id)
				w.publish(noteservice.Event{Kind: noteservice.NoteDeleted, Path: old})
			}
		case err != nil:
			// Usually a write still in progress; its next event lands here again.
			w.logger.Debug("watcher: skip metadata", slog.String("id", string(id)), slog.String("error", err.Error()))
		case !known:
			w.paths[id] = m.Path
			w.publish(noteservice.Event{Kind: noteservice.NoteCreated, Path: m.Path})
		case old != m.Path:
			w.paths[id] = m.Path
			w.publish(noteservice.Event{Kind: noteservice.NoteDeleted, Path: old})
			w.publish(noteservice.Event{Kind: noteservice.NoteCreated, Path: m.Path})
		default:
			w.publish(noteservice.Event{Kind: noteservice.NoteUpdated, Path: m.Path})
		}
	}
}
