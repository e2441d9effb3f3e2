package export

import (
	"math"
	"strings"
	"testing"
)

func TestBodyPaths(t *testing.T) {
	header := []string{"box.x", "box.y", "box.z", "box.vx", "ball.x", "ball.z", "lone.x"}
	states := [][]float64{
		{0, 0, 1, 0, 2, 3, 9},
		{0.1, 0, 0.9, 1, math.NaN(), 3, 9},
	}

	paths := BodyPaths(header, states)
	if len(paths) != 2 {
		t.Fatalf("paths = %d, want 2", len(paths))
	}
	if paths[0].Label != "box" || len(paths[0].Points) != 2 {
		t.Errorf("box path = %+v", paths[0])
	}
	if paths[0].Points[1] != (Point{0.1, 0.9}) {
		t.Errorf("box point = %+v", paths[0].Points[1])
	}
	if paths[1].Label != "ball" || len(paths[1].Points) != 1 {
		t.Errorf("ball path = %+v", paths[1])
	}
}

func TestTrajectorySVG(t *testing.T) {
	var sb strings.Builder
	paths := []Path{
		{Label: "a", Points: []Point{{0, 0}, {1, 1}, {2, 0}}},
		{Label: "b", Points: []Point{{0, 1}}},
	}
	if err := TrajectorySVG(&sb, paths, 200, 100); err != nil {
		t.Fatal(err)
	}
	out := sb.String()
	if !strings.HasPrefix(out, "<?xml") || !strings.HasSuffix(out, "</svg>\n") {
		t.Error("not a complete svg document")
	}
	if n := strings.Count(out, "<path "); n != 2 {
		t.Errorf("paths = %d, want 2", n)
	}
	if !strings.Contains(out, ">a</text>") || !strings.Contains(out, ">b</text>") {
		t.Error("missing labels")
	}
}

func TestTrajectorySVG_Empty(t *testing.T) {
	var sb strings.Builder
	if err := TrajectorySVG(&sb, nil, 100, 100); err == nil {
		t.Error("expected error for empty input")
	}
}
