// Package export renders stored traces as standalone SVG images.
package export

import (
	"fmt"
	"io"
	"math"
	"strings"
)

type Point struct{ X, Y float64 }

// Path is one labelled trajectory.
type Path struct {
	Label  string
	Points []Point
}

var palette = []string{"#00ff00", "#00bfff", "#ff8c00", "#ff69b4", "#ffd700", "#9370db"}

// BodyPaths pulls the <name>.x / <name>.z column pairs out of a trace, so each
// body traces its path in the solver plane.
func BodyPaths(header []string, states [][]float64) []Path {
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[h] = i
	}
	var paths []Path
	for _, h := range header {
		name, ok := strings.CutSuffix(h, ".x")
		if !ok {
			continue
		}
		zi, ok := index[name+".z"]
		if !ok {
			continue
		}
		xi := index[h]
		p := Path{Label: name}
		for _, row := range states {
			if xi >= len(row) || zi >= len(row) {
				continue
			}
			x, z := row[xi], row[zi]
			if math.IsNaN(x) || math.IsNaN(z) {
				continue
			}
			p.Points = append(p.Points, Point{x, z})
		}
		if len(p.Points) > 0 {
			paths = append(paths, p)
		}
	}
	return paths
}

// TrajectorySVG writes all paths into one image sharing a single scale.
func TrajectorySVG(w io.Writer, paths []Path, width, height int) error {
	n := 0
	for _, p := range paths {
		n += len(p.Points)
	}
	if n == 0 {
		return fmt.Errorf("no points to draw")
	}

	minX, maxX := math.Inf(1), math.Inf(-1)
	minY, maxY := math.Inf(1), math.Inf(-1)
	for _, p := range paths {
		for _, pt := range p.Points {
			minX, maxX = math.Min(minX, pt.X), math.Max(maxX, pt.X)
			minY, maxY = math.Min(minY, pt.Y), math.Max(maxY, pt.Y)
		}
	}

	rangeX := maxX - minX
	rangeY := maxY - minY
	if rangeX == 0 {
		rangeX = 1
	}
	if rangeY == 0 {
		rangeY = 1
	}
	minX -= rangeX * 0.1
	minY -= rangeY * 0.1
	rangeX *= 1.2
	rangeY *= 1.2

	var sb strings.Builder
	fmt.Fprintf(&sb, `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
`, width, height, width, height)

	for i, p := range paths {
		color := palette[i%len(palette)]
		fmt.Fprintf(&sb, `<path fill="none" stroke="%s" stroke-width="1.5" d="`, color)
		for j, pt := range p.Points {
			x := (pt.X - minX) / rangeX * float64(width)
			y := float64(height) - (pt.Y-minY)/rangeY*float64(height)
			if j == 0 {
				fmt.Fprintf(&sb, "M%.1f,%.1f", x, y)
			} else {
				fmt.Fprintf(&sb, " L%.1f,%.1f", x, y)
			}
		}
		sb.WriteString("\"/>\n")
		fmt.Fprintf(&sb, `<text x="8" y="%d" fill="%s" font-family="monospace" font-size="12">%s</text>
`, 16+14*i, color, p.Label)
	}

	sb.WriteString("</svg>\n")
	_, err := io.WriteString(w, sb.String())
	return err
}
