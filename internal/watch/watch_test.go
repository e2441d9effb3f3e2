package watch

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/dynbridge/internal/bridge"
	"github.com/san-kum/dynbridge/internal/dynamo"
	"github.com/san-kum/dynbridge/internal/scene"
)

func TestParseName(t *testing.T) {
	tests := []struct {
		path    string
		element string
		object  string
		ok      bool
	}{
		{"wall.worldbody.xml", "worldbody", "", true},
		{"/tmp/frags/tip.body.arm.xml", "body", "arm", true},
		{"light.asset.XML", "asset", "", true},
		{"wall.xml", "", "", false},
		{"tip.site.arm.xml", "", "", false},
		{".wall.worldbody.xml", "", "", false},
		{"wall.worldbody.yaml", "", "", false},
		{"a.b.c.d.xml", "", "", false},
	}
	for _, tt := range tests {
		element, object, ok := parseName(tt.path)
		if ok != tt.ok || element != tt.element || object != tt.object {
			t.Errorf("parseName(%q) = %q, %q, %v; want %q, %q, %v", tt.path, element, object, ok, tt.element, tt.object, tt.ok)
		}
	}
}

func graph(t *testing.T) *scene.Memory {
	t.Helper()
	g := scene.NewMemory()
	base, err := g.Add(scene.ObjectSpec{Name: "base", Type: scene.TypeDummy, Pose: dynamo.Identity()})
	if err != nil {
		t.Fatal(err)
	}
	_, err = g.Add(scene.ObjectSpec{
		Name:   "arm",
		Type:   scene.TypeShape,
		Parent: base,
		Pose:   dynamo.NewTransform(mgl64.Vec3{0, 0, 1}, mgl64.QuatIdent()),
		Shape:  &scene.ShapeProps{Dynamic: true, Respondable: true, Density: 1000},
	})
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func write(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestReadDir(t *testing.T) {
	dir := t.TempDir()
	g := graph(t)
	write(t, dir, "b.worldbody.xml", `<geom name="wall"/>`)
	write(t, dir, "a.body.arm.xml", `<site name="tip"/>`)
	write(t, dir, "empty.worldbody.xml", "  \n")
	write(t, dir, "notes.txt", "ignored")

	list, err := ReadDir(dir, g)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("fragments = %d, want 2", len(list))
	}
	arm, _ := g.Lookup("arm")
	if list[0].Element != "body" || list[0].Object != arm {
		t.Errorf("first fragment = %+v, want body of arm", list[0])
	}
	if list[1].Element != "worldbody" || list[1].Object != scene.NoHandle {
		t.Errorf("second fragment = %+v", list[1])
	}
}

func TestReadFragment_UnknownObject(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "tip.body.leg.xml", `<site/>`)
	_, err := ReadFragment(filepath.Join(dir, "tip.body.leg.xml"), graph(t))
	if !errors.Is(err, dynamo.ErrUnknownObject) {
		t.Errorf("expected ErrUnknownObject, got %v", err)
	}
}

func waitFor(t *testing.T, r *Reloader, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if err := r.BeforeTick(0); err != nil {
			t.Fatal(err)
		}
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestReloader(t *testing.T) {
	dir := t.TempDir()
	g := graph(t)
	ctx := bridge.NewContext()
	ok := ctx.InjectCompositeXML(bridge.CompositeInjection{XML: `<geom type="sphere" size="0.02"/>`, Prefix: "grain", Count: [3]int{2, 1, 1}})
	if !ok {
		t.Fatal("composite rejected")
	}
	write(t, dir, "wall.worldbody.xml", `<geom name="wall"/>`)

	r, err := NewReloader(dir, g, ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	if n := len(ctx.Injections()); n != 1 {
		t.Fatalf("initial injections = %d, want 1", n)
	}

	write(t, dir, "tip.body.arm.xml", `<site name="tip"/>`)
	waitFor(t, r, func() bool { return len(ctx.Injections()) == 2 })
	if r.Reloads() == 0 {
		t.Error("reload not counted")
	}
	if ctx.CompositeIndexFromPrefix("grain") != 0 {
		t.Error("reload dropped the composite")
	}

	if err := os.Remove(filepath.Join(dir, "wall.worldbody.xml")); err != nil {
		t.Fatal(err)
	}
	waitFor(t, r, func() bool { return len(ctx.Injections()) == 1 })
}

func TestReloader_BadFragmentKeepsPrevious(t *testing.T) {
	dir := t.TempDir()
	ctx := bridge.NewContext()
	write(t, dir, "wall.worldbody.xml", `<geom name="wall"/>`)

	r, err := NewReloader(dir, graph(t), ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	write(t, dir, "tip.body.leg.xml", `<site/>`)
	time.Sleep(300 * time.Millisecond)
	for i := 0; i < 5; i++ {
		if err := r.BeforeTick(0); err != nil {
			t.Fatal(err)
		}
	}
	if n := len(ctx.Injections()); n != 1 {
		t.Errorf("injections = %d, want the previous 1", n)
	}
	if r.Reloads() != 0 {
		t.Errorf("reloads = %d, want 0", r.Reloads())
	}
}

func TestWatcher_Close(t *testing.T) {
	w, err := NewWatcher(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
	if _, ok := <-w.Events; ok {
		t.Error("events channel still open")
	}
}

func TestReloader_KeepsQueuedInjections(t *testing.T) {
	dir := t.TempDir()
	ctx := bridge.NewContext()
	ctx.InjectXML(`<light name="sun"/>`, "worldbody", scene.NoHandle)
	write(t, dir, "wall.worldbody.xml", `<geom name="wall"/>`)

	r, err := NewReloader(dir, graph(t), ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	inj := ctx.Injections()
	if len(inj) != 2 || inj[0].XML != `<light name="sun"/>` {
		t.Errorf("injections = %+v, want queued light first", inj)
	}
}
