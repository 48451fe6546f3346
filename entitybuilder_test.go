package warehouse

import "testing"

type ebPosition struct{ X, Y float64 }
type ebTag struct{}

func TestEntityBuilderBuildWithComponents(t *testing.T) {
	w := NewWorld(nil)
	pos := FactoryNewComponent[ebPosition]()
	tag := FactoryNewComponent[ebTag]()

	e, err := w.Spawn("hero").
		With(pos.Component, ebPosition{X: 1, Y: 2}).
		With(tag.Component, nil).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if !e.Table().Contains(pos.Component) || !e.Table().Contains(tag.Component) {
		t.Fatalf("built entity missing queued components")
	}
	got := pos.GetFromEntity(e)
	if got.X != 1 || got.Y != 2 {
		t.Errorf("position = %+v, want {1 2}", got)
	}
	if name, ok := w.GetName(e); !ok || name != "hero" {
		t.Errorf("name = %q, ok=%v, want hero/true", name, ok)
	}
}

func TestEntityBuilderBuildWithoutName(t *testing.T) {
	w := NewWorld(nil)
	pos := FactoryNewComponent[ebPosition]()
	e, err := w.Spawn("").With(pos.Component, ebPosition{}).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if _, ok := w.GetName(e); ok {
		t.Errorf("expected no name for an unnamed entity")
	}
}

func TestEntityBuilderFiresComponentAddedForInitialComponents(t *testing.T) {
	w := NewWorld(nil)
	pos := FactoryNewComponent[ebPosition]()

	fired := 0
	Subscribe(w.Events(), func(e ComponentAddedEvent[ebPosition]) { fired++ })

	_, err := w.Spawn("").With(pos.Component, ebPosition{X: 1}).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if fired != 1 {
		t.Errorf("ComponentAddedEvent fired %d times for builder-initial component, want 1", fired)
	}
}
