package tui

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/san-kum/dynbridge/internal/config"
	"github.com/san-kum/dynbridge/internal/experiment"
	"github.com/san-kum/dynbridge/internal/scene"
)

const dropYAML = `
name: drop
objects:
  - name: floor
    type: shape
    pose: {position: [0, 0, -0.1]}
    shape:
      geoms:
        - primitive: box
          size: [2, 2, 0.1]
  - name: box
    type: shape
    pose: {position: [0, 0, 1]}
    shape:
      dynamic: true
      geoms:
        - primitive: box
          size: [0.1, 0.1, 0.1]
`

func factory(t *testing.T, duration float64) Factory {
	return func() (*experiment.Experiment, error) {
		g, _, err := scene.Parse([]byte(dropYAML))
		if err != nil {
			return nil, err
		}
		e := experiment.New(experiment.Config{
			Name:     "drop",
			Solver:   "planar",
			Dt:       0.05,
			Duration: duration,
			WorkDir:  t.TempDir(),
			Engine:   config.DefaultEngine(),
		}, g, nil)
		engine, err := experiment.NewSolvers().Get("planar")
		if err != nil {
			return nil, err
		}
		if err := e.Setup(engine, experiment.DefaultMetrics()); err != nil {
			return nil, err
		}
		return e, nil
	}
}

func newTestModel(t *testing.T, duration float64) model {
	t.Helper()
	m, err := newModel(factory(t, duration))
	if err != nil {
		t.Fatalf("newModel: %v", err)
	}
	t.Cleanup(func() { _ = m.exp.Close() })
	return m
}

func update(t *testing.T, m model, msg tea.Msg) (model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	nm, ok := next.(model)
	if !ok {
		t.Fatalf("Update returned %T", next)
	}
	return nm, cmd
}

func key(s string) tea.KeyMsg {
	if s == " " {
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestCanvas_Line(t *testing.T) {
	c := newCanvas(10, 5)
	c.line(0, 0, 9, 4, '*')
	if c.get(0, 0) != '*' || c.get(9, 4) != '*' {
		t.Error("line endpoints not drawn")
	}
	c.set(-1, 2, 'x')
	c.set(10, 2, 'x')
	if strings.ContainsRune(c.rows(""), 'x') {
		t.Error("out of range set was drawn")
	}
	if n := strings.Count(c.rows(""), "\n"); n != 5 {
		t.Errorf("rows = %d, want 5", n)
	}
}

func TestView_Project(t *testing.T) {
	var v view
	v.include(-1, 0)
	v.include(1, 2)
	w, h := 41, 21

	cx, cy := v.project(0, 1, w, h)
	if cx != w/2 || cy != h/2 {
		t.Errorf("center projects to %d,%d, want %d,%d", cx, cy, w/2, h/2)
	}
	lx, _ := v.project(-1, 1, w, h)
	rx, _ := v.project(1, 1, w, h)
	if lx >= cx || rx <= cx || lx < 0 || rx >= w {
		t.Errorf("x extent projects to %d..%d", lx, rx)
	}
	_, top := v.project(0, 2, w, h)
	_, bottom := v.project(0, 0, w, h)
	if top >= bottom || top < 0 || bottom >= h {
		t.Errorf("z extent projects to %d..%d", top, bottom)
	}
}

func TestSparkline(t *testing.T) {
	if got := sparkline(nil, 10); got != "" {
		t.Errorf("empty = %q", got)
	}
	got := []rune(sparkline([]float64{0, 1, 2, 3, 4, 5, 6, 7}, 8))
	if len(got) != 8 || got[0] != '▁' || got[7] != '█' {
		t.Errorf("sparkline = %q", string(got))
	}
}

func TestModel_TickAdvances(t *testing.T) {
	m := newTestModel(t, 1)
	m, cmd := update(t, m, tickMsg{})
	if cmd == nil {
		t.Error("tick did not schedule the next tick")
	}
	if m.exp.Time() <= 0 {
		t.Error("tick did not step the experiment")
	}
	if len(m.history) != 1 {
		t.Errorf("history = %d, want 1", len(m.history))
	}
	if !strings.Contains(m.View(), "running") {
		t.Error("view does not show running")
	}
}

func TestModel_Keys(t *testing.T) {
	m := newTestModel(t, 1)

	m, _ = update(t, m, key(" "))
	if !m.paused {
		t.Error("space did not pause")
	}
	before := m.exp.Time()
	m, _ = update(t, m, tickMsg{})
	if m.exp.Time() != before {
		t.Error("paused model stepped")
	}

	m, _ = update(t, m, key("+"))
	m, _ = update(t, m, key("+"))
	if m.speed != 4 {
		t.Errorf("speed = %v, want 4", m.speed)
	}
	m, _ = update(t, m, key("0"))
	if m.speed != 1 {
		t.Errorf("speed = %v, want 1", m.speed)
	}

	m, _ = update(t, m, key(" "))
	m, _ = update(t, m, tickMsg{})
	m, _ = update(t, m, key("r"))
	if m.exp.Time() != 0 || m.paused {
		t.Errorf("reset left t=%v paused=%v", m.exp.Time(), m.paused)
	}

	_, cmd := update(t, m, key("q"))
	if cmd == nil {
		t.Fatal("q returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q did not quit")
	}
}

func TestModel_StopsAtDuration(t *testing.T) {
	m := newTestModel(t, 0.1)
	for i := 0; i < 5; i++ {
		m, _ = update(t, m, tickMsg{})
	}
	if !m.done || !m.paused {
		t.Errorf("done=%v paused=%v after the duration", m.done, m.paused)
	}
	if !strings.Contains(m.View(), "done") {
		t.Error("view does not show done")
	}
}

func TestNewModel_FactoryError(t *testing.T) {
	want := errors.New("no scene")
	_, err := newModel(func() (*experiment.Experiment, error) { return nil, want })
	if !errors.Is(err, want) {
		t.Errorf("err = %v, want %v", err, want)
	}
}

func TestLiveRenderer(t *testing.T) {
	exp, err := factory(t, 1)()
	if err != nil {
		t.Fatal(err)
	}
	defer exp.Close()

	var out bytes.Buffer
	r := NewLiveRenderer(&out, exp, 1000)
	exp.AddHook(r)
	r.Start()
	for i := 0; i < 3; i++ {
		if err := exp.Step(); err != nil {
			t.Fatal(err)
		}
	}
	r.Stop()

	s := out.String()
	if !strings.Contains(s, "drop") || !strings.Contains(s, "box=(") {
		t.Errorf("frame missing header or state:\n%s", s)
	}
	if !strings.ContainsRune(s, '⬤') || !strings.ContainsRune(s, '═') {
		t.Error("frame missing the body or the floor")
	}
	if !strings.HasPrefix(s, hideCursor) || !strings.HasSuffix(s, showCursor) {
		t.Error("cursor escapes not written")
	}
}
