// Package server renders the HTML views served at the root route and keeps
// them in sync with the template directory.
package server

import (
	"context"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// ViewRenderer parses every *.html template in a directory and renders them
// by file name.
type ViewRenderer struct {
	dir string

	mu   sync.RWMutex
	tmpl *template.Template
}

// NewViewRenderer parses the templates in dir. It fails if dir holds no
// *.html file or one of them does not parse.
func NewViewRenderer(dir string) (*ViewRenderer, error) {
	v := &ViewRenderer{dir: dir}
	if err := v.Reload(); err != nil {
		return nil, err
	}
	return v, nil
}

// Reload re-parses the template directory. On failure the previously parsed
// templates stay in use.
func (v *ViewRenderer) Reload() error {
	tmpl, err := template.ParseGlob(filepath.Join(v.dir, "*.html"))
	if err != nil {
		return fmt.Errorf("views: parse %q: %w", v.dir, err)
	}

	v.mu.Lock()
	v.tmpl = tmpl
	v.mu.Unlock()
	return nil
}

// Render executes the template called name into w.
func (v *ViewRenderer) Render(w io.Writer, name string, data any) error {
	v.mu.RLock()
	tmpl := v.tmpl
	v.mu.RUnlock()

	if err := tmpl.ExecuteTemplate(w, name, data); err != nil {
		return fmt.Errorf("views: render %q: %w", name, err)
	}
	return nil
}

// Watch reloads the templates whenever a file in the directory is written or
// created. It runs until ctx is cancelled.
func (v *ViewRenderer) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("views: create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(v.dir); err != nil {
		return fmt.Errorf("views: watch %q: %w", v.dir, err)
	}

	slog.Debug("views: watching for changes", "dir", v.dir)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Editors often save via rename, so Create counts as a change too.
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			if err := v.Reload(); err != nil {
				slog.Error("views: reload failed, keeping previous templates", "dir", v.dir, "error", err)
				continue
			}
			slog.Info("views: reloaded", "file", event.Name)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("views: watcher error", "error", err)
		}
	}
}
