// Package tui renders running experiments in the terminal.
package tui

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/san-kum/dynbridge/internal/dynamo"
	"github.com/san-kum/dynbridge/internal/experiment"
)

var (
	cyan    = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	white   = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	dim     = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	dimmer  = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
	green   = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	yellow  = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	magenta = lipgloss.NewStyle().Foreground(lipgloss.Color("213"))
	red     = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

// Factory builds a ready experiment. Reset calls it again for a fresh scene.
type Factory func() (*experiment.Experiment, error)

type lastEnergy interface {
	Last() float64
}

type model struct {
	factory Factory
	exp     *experiment.Experiment
	frame   *frame
	err     error

	paused    bool
	done      bool
	halted    bool
	speed     float64
	history   []float64
	lastFrame time.Time
	fps       float64

	width  int
	height int
}

func newModel(factory Factory) (model, error) {
	m := model{factory: factory, speed: 1.0, width: 80, height: 24}
	if err := m.start(); err != nil {
		return m, err
	}
	return m, nil
}

func (m *model) start() error {
	exp, err := m.factory()
	if err != nil {
		return err
	}
	if m.exp != nil {
		_ = m.exp.Close()
	}
	m.exp = exp
	m.frame = newFrame(exp.Scene(), exp.Tracked())
	m.frame.record()
	m.history = make([]float64, 0, 60)
	m.paused, m.done, m.halted = false, false, false
	m.err = nil
	m.lastFrame = time.Time{}
	return nil
}

func (m model) Init() tea.Cmd { return tick() }

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(16*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case tickMsg:
		if !m.paused && m.err == nil {
			now := time.Now()
			if !m.lastFrame.IsZero() {
				dt := now.Sub(m.lastFrame).Seconds()
				if dt > 0 {
					m.fps = 1.0 / dt
				}
			}
			m.lastFrame = now
			steps := int(m.speed)
			if steps < 1 {
				steps = 1
			}
			for i := 0; i < steps && !m.paused; i++ {
				m.step()
			}
		}
		return m, tick()
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit
	case " ", "p":
		if !m.done && !m.halted {
			m.paused = !m.paused
		}
	case "r":
		if err := m.start(); err != nil {
			m.err = err
		}
		return m, tea.ClearScreen
	case "+", "=":
		m.speed = math.Min(m.speed*2, 16)
	case "-", "_":
		m.speed = math.Max(m.speed/2, 0.25)
	case "0":
		m.speed = 1.0
	}
	return m, nil
}

func (m *model) step() {
	cfg := m.exp.Config()
	if m.exp.Time() >= cfg.Duration-cfg.Dt/2 {
		m.paused = true
		m.done = true
		return
	}
	if err := m.exp.Step(); err != nil {
		m.paused = true
		if errors.Is(err, dynamo.ErrHalted) {
			m.halted = true
		} else {
			m.err = err
		}
		return
	}
	m.frame.record()
	m.history = append(m.history, m.kinetic())
	if len(m.history) > 60 {
		m.history = m.history[1:]
	}
}

func (m model) kinetic() float64 {
	for _, mt := range m.exp.Metrics() {
		if ke, ok := mt.(lastEnergy); ok {
			return ke.Last()
		}
	}
	return 0
}

func (m model) View() string {
	cw := m.width - 6
	ch := m.height - 12
	if cw < 50 {
		cw = 50
	}
	if ch < 12 {
		ch = 12
	}
	c := newCanvas(cw, ch)
	m.frame.draw(c)

	cfg := m.exp.Config()
	var b strings.Builder

	statusIcon := green.Render("●")
	statusText := green.Render("running")
	switch {
	case m.err != nil:
		statusIcon = red.Render("✕")
		statusText = red.Render("error")
	case m.halted:
		statusIcon = red.Render("■")
		statusText = red.Render("halted")
	case m.done:
		statusIcon = cyan.Render("✓")
		statusText = cyan.Render("done")
	case m.paused:
		statusIcon = yellow.Render("○")
		statusText = yellow.Render("paused")
	}
	b.WriteString(fmt.Sprintf("\n   %s %s  %s  %s\n",
		statusIcon, cyan.Render(cfg.Name), statusText, dim.Render(cfg.Solver)))

	progress := 0.0
	if cfg.Duration > 0 {
		progress = math.Min(m.exp.Time()/cfg.Duration, 1)
	}
	barWidth := 36
	filled := int(progress * float64(barWidth))
	timeStr := fmt.Sprintf("%.2fs/%.0fs", m.exp.Time(), cfg.Duration)
	bar := cyan.Render(strings.Repeat("━", filled)) + dimmer.Render(strings.Repeat("─", barWidth-filled))
	b.WriteString(fmt.Sprintf("   %s %s  %s  %s\n\n", bar, dim.Render(timeStr),
		dim.Render(fmt.Sprintf("%.0ffps", m.fps)), magenta.Render(fmt.Sprintf("×%g", m.speed))))

	b.WriteString(c.rows("   "))

	g := m.exp.Scene()
	var stateStr strings.Builder
	stateStr.WriteString("\n   ")
	for i, h := range m.exp.Tracked() {
		if i >= 3 {
			break
		}
		p := g.WorldPose(h).Position
		stateStr.WriteString(dim.Render(g.Name(h) + "="))
		stateStr.WriteString(white.Render(fmt.Sprintf("(%.2f, %.2f)", p.X(), p.Z())))
		stateStr.WriteString("  ")
	}
	b.WriteString(stateStr.String() + "\n")

	if len(m.history) > 1 {
		b.WriteString(fmt.Sprintf("   %s %s %s\n", dim.Render("KE"), green.Render(sparkline(m.history, 24)),
			dim.Render(fmt.Sprintf("%.3f", m.history[len(m.history)-1]))))
	}

	warnings := m.exp.Container().Warnings()
	if len(warnings) > 3 {
		warnings = warnings[len(warnings)-3:]
	}
	for _, w := range warnings {
		b.WriteString("   " + yellow.Render("! ") + dim.Render(w) + "\n")
	}
	if m.err != nil {
		b.WriteString("   " + red.Render(m.err.Error()) + "\n")
	}

	b.WriteString("\n" + dim.Render("   space pause  ±speed  r reset  q quit") + "\n")

	return b.String()
}

// RunInteractive runs the experiment built by factory in a full-screen view
// until the user quits.
func RunInteractive(factory Factory) error {
	m, err := newModel(factory)
	if err != nil {
		return err
	}
	p := tea.NewProgram(m, tea.WithAltScreen())
	final, err := p.Run()
	if fm, ok := final.(model); ok && fm.exp != nil {
		_ = fm.exp.Close()
	}
	return err
}
