package scene

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/san-kum/dynbridge/internal/dynamo"
)

const armScene = `
name: arm
objects:
  - name: base
    type: shape
    shape:
      geoms:
        - primitive: box
          size: [0.5, 0.5, 0.1]
    children:
      - name: shoulder
        type: joint
        pose: {position: [0, 0, 0.2], axis_angle: [1, 0, 0, 1.5707963267948966]}
        joint: {type: revolute, control: velocity, target_velocity: 1.0}
        children:
          - name: link
            type: shape
            shape:
              dynamic: true
              mass: 2
              geoms:
                - primitive: capsule
                  size: [0.05, 0.3]
      - name: follower
        type: joint
        joint: {control: dependent, depends_on: shoulder, poly: [0, -1]}
particles:
  - {position: [0, 0, 1], radius: 0.02, density: 1000, respondable_mask: 255}
`

func TestParse_Hierarchy(t *testing.T) {
	m, f, err := Parse([]byte(armScene))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if f.Name != "arm" {
		t.Errorf("name = %q", f.Name)
	}

	base, ok := m.Lookup("base")
	if !ok {
		t.Fatal("base not found")
	}
	if len(m.Children(base)) != 2 {
		t.Errorf("base children = %d, want 2", len(m.Children(base)))
	}

	link, _ := m.Lookup("link")
	pos := m.WorldPose(link).Position
	if math.Abs(pos.Z()-0.2) > 1e-12 {
		t.Errorf("link z = %v, want 0.2 (inherits joint pose)", pos.Z())
	}

	shoulder, _ := m.Lookup("shoulder")
	follower, _ := m.Lookup("follower")
	jp, _ := m.Joint(follower)
	if jp.Dependency != shoulder {
		t.Errorf("dependency = %d, want %d", jp.Dependency, shoulder)
	}
	if len(m.Particles()) != 1 {
		t.Errorf("particles = %d, want 1", len(m.Particles()))
	}
}

func TestParse_UnknownReference(t *testing.T) {
	src := `
objects:
  - name: j
    type: joint
    joint: {control: dependent, depends_on: nobody}
`
	_, _, err := Parse([]byte(src))
	if !errors.Is(err, dynamo.ErrUnknownObject) {
		t.Errorf("expected ErrUnknownObject, got %v", err)
	}
}

func TestParse_BadPrimitive(t *testing.T) {
	src := `
objects:
  - name: s
    type: shape
    shape: {geoms: [{primitive: torus}]}
`
	if _, _, err := Parse([]byte(src)); err == nil {
		t.Error("expected error for unknown primitive")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scene.yaml")
	if err := os.WriteFile(path, []byte(armScene), 0644); err != nil {
		t.Fatal(err)
	}
	m, _, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(m.Roots()) != 1 {
		t.Errorf("roots = %d, want 1", len(m.Roots()))
	}
}
