package solver

import (
	"testing"

	"github.com/beevik/etree"
)

const indexDoc = `<mujoco>
  <worldbody>
    <geom name="floor" type="plane"/>
    <body name="a">
      <freejoint name="a_freejoint"/>
      <geom name="a_g0" type="box"/>
      <body name="b">
        <joint name="hinge" type="hinge"/>
        <geom name="b_g0" type="sphere"/>
        <site name="s"/>
      </body>
    </body>
  </worldbody>
  <actuator><motor name="hinge_act" joint="hinge"/></actuator>
  <sensor><force name="f" site="s"/><torque name="t" site="s"/></sensor>
</mujoco>`

func TestIndex_DocumentOrder(t *testing.T) {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(indexDoc); err != nil {
		t.Fatal(err)
	}
	ix := NewIndex(doc.Root())

	tests := []struct {
		kind Kind
		name string
		want int
	}{
		{KindBody, "world", 0},
		{KindBody, "a", 1},
		{KindBody, "b", 2},
		{KindJoint, "a_freejoint", 0},
		{KindJoint, "hinge", 1},
		{KindGeom, "floor", 0},
		{KindGeom, "b_g0", 2},
		{KindSite, "s", 0},
		{KindActuator, "hinge_act", 0},
		{KindSensor, "t", 1},
		{KindBody, "missing", -1},
	}
	for _, tt := range tests {
		if got := ix.Lookup(tt.kind, tt.name); got != tt.want {
			t.Errorf("Lookup(%s, %q) = %d, want %d", tt.kind, tt.name, got, tt.want)
		}
	}
	if ix.Count(KindGeom) != 3 {
		t.Errorf("geom count = %d, want 3", ix.Count(KindGeom))
	}
	// <force> under <sensor> is a sensor, never a body element
	if ix.Count(KindSensor) != 2 {
		t.Errorf("sensor count = %d, want 2", ix.Count(KindSensor))
	}
	if ix.Name(KindJoint, 1) != "hinge" || ix.Name(KindJoint, 9) != "" {
		t.Error("Name returned unexpected values")
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Get("planar"); err == nil {
		t.Error("expected error for unregistered solver")
	}
	if len(r.List()) != 0 {
		t.Error("new registry should be empty")
	}
}
