package tui

import (
	"math"
	"strings"
)

// canvas is a character grid addressed with y growing downwards.
type canvas struct {
	w, h  int
	cells [][]rune
}

func newCanvas(w, h int) *canvas {
	c := &canvas{w: w, h: h, cells: make([][]rune, h)}
	for i := range c.cells {
		c.cells[i] = make([]rune, w)
	}
	c.clear()
	return c
}

func (c *canvas) clear() {
	for y := range c.cells {
		for x := range c.cells[y] {
			c.cells[y][x] = ' '
		}
	}
}

func (c *canvas) set(x, y int, r rune) {
	if x >= 0 && x < c.w && y >= 0 && y < c.h {
		c.cells[y][x] = r
	}
}

func (c *canvas) get(x, y int) rune {
	if x >= 0 && x < c.w && y >= 0 && y < c.h {
		return c.cells[y][x]
	}
	return 0
}

func (c *canvas) line(x1, y1, x2, y2 int, r rune) {
	dx := intAbs(x2 - x1)
	dy := intAbs(y2 - y1)
	sx, sy := 1, 1
	if x1 > x2 {
		sx = -1
	}
	if y1 > y2 {
		sy = -1
	}
	err := dx - dy
	for {
		c.set(x1, y1, r)
		if x1 == x2 && y1 == y2 {
			break
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x1 += sx
		}
		if e2 < dx {
			err += dx
			y1 += sy
		}
	}
}

func (c *canvas) rows(indent string) string {
	var b strings.Builder
	for _, row := range c.cells {
		b.WriteString(indent)
		b.WriteString(string(row))
		b.WriteString("\n")
	}
	return b.String()
}

// view maps the solver's x/z plane onto a canvas. Bounds only grow so the
// picture does not jitter.
type view struct {
	minX, maxX float64
	minZ, maxZ float64
	set        bool
}

func (v *view) include(x, z float64) {
	if math.IsNaN(x) || math.IsNaN(z) || math.IsInf(x, 0) || math.IsInf(z, 0) {
		return
	}
	if !v.set {
		v.minX, v.maxX, v.minZ, v.maxZ = x, x, z, z
		v.set = true
		return
	}
	v.minX = math.Min(v.minX, x)
	v.maxX = math.Max(v.maxX, x)
	v.minZ = math.Min(v.minZ, z)
	v.maxZ = math.Max(v.maxZ, z)
}

// project returns the cell of world point (x, z). Terminal cells are about
// twice as tall as wide, so z is scaled by half.
func (v *view) project(x, z float64, w, h int) (int, int) {
	cx, cz := (v.minX+v.maxX)/2, (v.minZ+v.maxZ)/2
	spanX := math.Max(v.maxX-v.minX, 1) * 1.2
	spanZ := math.Max(v.maxZ-v.minZ, 1) * 1.2
	scale := math.Min(float64(w-1)/spanX, 2*float64(h-1)/spanZ)
	px := w/2 + int(math.Round((x-cx)*scale))
	py := h/2 - int(math.Round((z-cz)*scale/2))
	return px, py
}

func sparkline(data []float64, width int) string {
	if len(data) == 0 {
		return ""
	}
	chars := []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}
	minVal, maxVal := data[0], data[0]
	for _, v := range data {
		if v < minVal {
			minVal = v
		}
		if v > maxVal {
			maxVal = v
		}
	}
	rang := maxVal - minVal
	if rang == 0 {
		rang = 1
	}
	step := len(data) / width
	if step < 1 {
		step = 1
	}
	var sb strings.Builder
	for i := 0; i < width && i*step < len(data); i++ {
		v := data[i*step]
		idx := int((v - minVal) / rang * 7)
		if idx > 7 {
			idx = 7
		}
		if idx < 0 {
			idx = 0
		}
		sb.WriteRune(chars[idx])
	}
	return sb.String()
}

func trailChar(speed, maxSpeed float64) rune {
	if maxSpeed == 0 {
		return '·'
	}
	ratio := speed / maxSpeed
	if ratio < 0.25 {
		return '·'
	} else if ratio < 0.5 {
		return '∘'
	} else if ratio < 0.75 {
		return '○'
	}
	return '●'
}

func intAbs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
