package watch

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/san-kum/dynbridge/internal/bridge"
	"github.com/san-kum/dynbridge/internal/dynamo"
	"github.com/san-kum/dynbridge/internal/scene"
)

// ReadFragment loads one fragment file and resolves its anchor object.
func ReadFragment(path string, g scene.Graph) (bridge.Injection, error) {
	element, object, ok := parseName(path)
	if !ok {
		return bridge.Injection{}, fmt.Errorf("fragment %s: name is not <label>.<element>.xml", filepath.Base(path))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return bridge.Injection{}, err
	}
	inj := bridge.Injection{XML: string(data), Element: element, Object: scene.NoHandle}
	if object != "" {
		h, ok := lookup(g, object)
		if !ok {
			return inj, fmt.Errorf("fragment %s: object %q: %w", filepath.Base(path), object, dynamo.ErrUnknownObject)
		}
		inj.Object = h
	}
	return inj, nil
}

// ReadDir loads every fragment of dir in file name order.
func ReadDir(dir string, g scene.Graph) ([]bridge.Injection, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && isFragment(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	out := make([]bridge.Injection, 0, len(names))
	for _, name := range names {
		inj, err := ReadFragment(filepath.Join(dir, name), g)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(inj.XML) == "" {
			continue
		}
		out = append(out, inj)
	}
	return out, nil
}

func lookup(g scene.Graph, name string) (scene.Handle, bool) {
	stack := g.Roots()
	for len(stack) > 0 {
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if g.Name(h) == name {
			return h, true
		}
		stack = append(stack, g.Children(h)...)
	}
	return scene.NoHandle, false
}

// Reloader keeps the raw injections of a Context in step with a fragment
// directory. It is drained from the host goroutine through BeforeTick.
type Reloader struct {
	dir     string
	base    []bridge.Injection
	graph   scene.Graph
	ctx     *bridge.Context
	watcher *Watcher
	log     *log.Logger
	reloads int
}

// NewReloader loads dir once and starts watching it. Raw injections already
// queued on ctx stay in front of the fragments.
func NewReloader(dir string, g scene.Graph, ctx *bridge.Context, logger *log.Logger) (*Reloader, error) {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	list, err := ReadDir(dir, g)
	if err != nil {
		return nil, err
	}
	w, err := NewWatcher(dir)
	if err != nil {
		return nil, err
	}
	r := &Reloader{dir: dir, base: ctx.Injections(), graph: g, ctx: ctx, watcher: w, log: logger}
	r.apply(list)
	logger.Info("fragments loaded", "dir", dir, "count", len(list))
	return r, nil
}

// BeforeTick applies pending file changes. A directory that fails to load
// keeps the previous fragments.
func (r *Reloader) BeforeTick(t float64) error {
	changed := false
drain:
	for {
		select {
		case name, ok := <-r.watcher.Events:
			if !ok {
				return nil
			}
			r.log.Debug("fragment changed", "file", filepath.Base(name))
			changed = true
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return nil
			}
			r.log.Warn("watch error", "err", err)
		default:
			break drain
		}
	}
	if !changed {
		return nil
	}
	list, err := ReadDir(r.dir, r.graph)
	if err != nil {
		r.log.Warn("fragment reload failed", "t", t, "err", err)
		return nil
	}
	r.apply(list)
	r.reloads++
	r.log.Info("fragments reloaded", "t", t, "count", len(list))
	return nil
}

func (r *Reloader) apply(list []bridge.Injection) {
	r.ctx.SetInjections(append(append([]bridge.Injection(nil), r.base...), list...))
}

func (r *Reloader) Reloads() int {
	return r.reloads
}

func (r *Reloader) Close() error {
	return r.watcher.Close()
}
