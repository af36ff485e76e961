package menu

import (
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/MrWong99/kioskvoice/internal/config"
)

// Source yields the current menu. Implementations are safe for concurrent
// use.
type Source interface {
	Current() *Menu
}

// Static is a Source that never changes.
type Static struct{ m *Menu }

// NewStatic wraps m. A nil m yields an empty menu.
func NewStatic(m *Menu) Static {
	if m == nil {
		m = &Menu{}
	}
	return Static{m: m}
}

// Current implements [Source].
func (s Static) Current() *Menu { return s.m }

// Open loads path and, when interval is positive, watches it for changes.
// stop releases the watcher and is never nil. A missing file yields an empty
// static menu.
func Open(path string, interval time.Duration) (src Source, stop func(), err error) {
	noop := func() {}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		m, err := Load(path)
		return NewStatic(m), noop, err
	}
	if interval <= 0 {
		m, err := Load(path)
		if err != nil {
			return nil, noop, err
		}
		return NewStatic(m), noop, nil
	}

	w, err := config.NewWatcher(path,
		func(r io.Reader) (*Menu, error) { return Parse(r) },
		func(_, m *Menu) { slog.Info("menu: reloaded", "path", path, "items", len(m.Items)) },
		config.WithInterval(interval),
	)
	if err != nil {
		return nil, noop, err
	}
	return w, w.Stop, nil
}
