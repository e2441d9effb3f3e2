package scene

import (
	"errors"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/dynbridge/internal/dynamo"
)

func TestMemory_Counters(t *testing.T) {
	m := NewMemory()
	root, err := m.Add(ObjectSpec{Name: "root", Type: TypeShape, Parent: NoHandle, Shape: &ShapeProps{}})
	if err != nil {
		t.Fatalf("add root: %v", err)
	}
	child, err := m.Add(ObjectSpec{Name: "child", Type: TypeDummy, Parent: root})
	if err != nil {
		t.Fatalf("add child: %v", err)
	}

	c := m.Counters()
	if c.Creation != 2 {
		t.Errorf("creation = %d, want 2", c.Creation)
	}

	if err := m.Reparent(child, NoHandle); err != nil {
		t.Fatalf("reparent: %v", err)
	}
	if got := m.Counters().Hierarchy; got != 1 {
		t.Errorf("hierarchy = %d, want 1", got)
	}
	if len(m.Roots()) != 2 {
		t.Errorf("expected 2 roots after reparent, got %d", len(m.Roots()))
	}

	if err := m.Remove(root); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if got := m.Counters().Destruction; got != 1 {
		t.Errorf("destruction = %d, want 1", got)
	}
}

func TestMemory_PublishDoesNotCountAsEdit(t *testing.T) {
	m := NewMemory()
	h, _ := m.Add(ObjectSpec{Name: "box", Type: TypeShape, Parent: NoHandle, Shape: &ShapeProps{Dynamic: true}})
	before := m.Counters()

	m.SetWorldPose(h, dynamo.NewTransform(mgl64.Vec3{1, 2, 3}, mgl64.QuatIdent()))
	m.SetVelocity(h, dynamo.Velocity{Linear: mgl64.Vec3{1, 0, 0}})
	if m.Counters() != before {
		t.Errorf("bridge writes changed counters: %+v -> %+v", before, m.Counters())
	}

	m.Move(h, dynamo.Identity())
	if m.Counters().Modification != before.Modification+1 {
		t.Error("host move should bump the modification counter")
	}
}

func TestMemory_MoveCarriesChildren(t *testing.T) {
	m := NewMemory()
	p, _ := m.Add(ObjectSpec{Name: "p", Type: TypeOther, Parent: NoHandle})
	c, _ := m.Add(ObjectSpec{Name: "c", Type: TypeOther, Parent: p, Pose: dynamo.NewTransform(mgl64.Vec3{0, 0, 1}, mgl64.QuatIdent())})

	m.Move(p, dynamo.NewTransform(mgl64.Vec3{5, 0, 0}, mgl64.QuatIdent()))
	got := m.WorldPose(c).Position
	if !dynamo.VecApproxEqual(got, mgl64.Vec3{5, 0, 1}, 1e-12) {
		t.Errorf("child position = %v, want [5 0 1]", got)
	}
}

func TestMemory_ReparentCycle(t *testing.T) {
	m := NewMemory()
	a, _ := m.Add(ObjectSpec{Name: "a", Type: TypeOther, Parent: NoHandle})
	b, _ := m.Add(ObjectSpec{Name: "b", Type: TypeOther, Parent: a})
	if err := m.Reparent(a, b); err == nil {
		t.Error("expected error reparenting under own descendant")
	}
	if err := m.Reparent(a, 99); !errors.Is(err, dynamo.ErrUnknownObject) {
		t.Errorf("expected ErrUnknownObject, got %v", err)
	}
}

func TestMemory_ZeroParentIsRoot(t *testing.T) {
	m := NewMemory()
	first, err := m.Add(ObjectSpec{Name: "first", Type: TypeDummy})
	if err != nil {
		t.Fatalf("add first: %v", err)
	}
	if first == NoHandle {
		t.Fatal("first handle collides with NoHandle")
	}
	second, err := m.Add(ObjectSpec{Name: "second", Type: TypeDummy})
	if err != nil {
		t.Fatalf("add second: %v", err)
	}
	if m.Parent(second) != NoHandle {
		t.Errorf("second nested under %d", m.Parent(second))
	}
	if len(m.Roots()) != 2 || len(m.Children(first)) != 0 {
		t.Errorf("roots = %v, children of first = %v", m.Roots(), m.Children(first))
	}
}
