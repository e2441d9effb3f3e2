package tui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/san-kum/dynbridge/internal/experiment"
)

const (
	width       = 70
	height      = 20
	clearScreen = "\033[2J\033[H"
	hideCursor  = "\033[?25l"
	showCursor  = "\033[?25h"
)

// LiveRenderer prints the scene of an experiment at a bounded frame rate.
// It runs as a hook, so every frame shows the state of the previous tick.
type LiveRenderer struct {
	out       io.Writer
	exp       *experiment.Experiment
	frameRate int
	lastFrame time.Time
	canvas    *canvas
	frame     *frame
}

func NewLiveRenderer(out io.Writer, exp *experiment.Experiment, frameRate int) *LiveRenderer {
	if frameRate <= 0 {
		frameRate = 30
	}
	return &LiveRenderer{
		out:       out,
		exp:       exp,
		frameRate: frameRate,
		canvas:    newCanvas(width, height),
		frame:     newFrame(exp.Scene(), exp.Tracked()),
	}
}

func (r *LiveRenderer) BeforeTick(t float64) error {
	r.frame.record()
	if time.Since(r.lastFrame) < time.Second/time.Duration(r.frameRate) {
		return nil
	}
	r.lastFrame = time.Now()
	r.frame.draw(r.canvas)
	r.render(t)
	return nil
}

func (r *LiveRenderer) render(t float64) {
	var b strings.Builder
	b.WriteString(clearScreen)
	b.WriteString(fmt.Sprintf("  %s  t=%.2fs\n", r.exp.Config().Name, t))
	b.WriteString("  " + strings.Repeat("-", width) + "\n")
	b.WriteString(r.canvas.rows("  "))
	b.WriteString("  " + strings.Repeat("-", width) + "\n")

	g := r.exp.Scene()
	var stateStr strings.Builder
	stateStr.WriteString("  ")
	for i, h := range r.exp.Tracked() {
		if i >= 3 {
			break
		}
		p := g.WorldPose(h).Position
		stateStr.WriteString(fmt.Sprintf("%s=(%.2f, %.2f) ", g.Name(h), p.X(), p.Z()))
	}
	b.WriteString(stateStr.String() + "\n")

	fmt.Fprint(r.out, b.String())
}

func (r *LiveRenderer) Start() { fmt.Fprint(r.out, hideCursor) }
func (r *LiveRenderer) Stop()  { fmt.Fprint(r.out, showCursor) }
