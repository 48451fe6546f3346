package warehouse

import "testing"

type wPosition struct{ X, Y float64 }

func TestWorldSpawnDespawn(t *testing.T) {
	w := NewWorld(nil)
	pos := FactoryNewComponent[wPosition]()

	e, err := w.Spawn("a").With(pos.Component, wPosition{X: 1}).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !w.IsAlive(e) {
		t.Fatalf("entity should be alive right after Build")
	}

	if !w.Despawn(e) {
		t.Fatalf("Despawn returned false for a live entity")
	}
	if w.IsAlive(e) {
		t.Fatalf("entity should not be alive after Despawn")
	}
	if w.Despawn(e) {
		t.Fatalf("Despawn on an already-dead entity should return false")
	}
}

func TestWorldDespawnFiresEvent(t *testing.T) {
	w := NewWorld(nil)
	e, err := w.Spawn("").Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	fired := 0
	Subscribe(w.Events(), func(evt EntityDestroyedEvent) { fired++ })
	w.Despawn(e)
	if fired != 1 {
		t.Errorf("EntityDestroyedEvent fired %d times, want 1", fired)
	}
}

func TestWorldNamesUniqueAndLookup(t *testing.T) {
	w := NewWorld(nil)
	_, err := w.Spawn("dup").Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if _, err := w.Spawn("dup").Build(); err == nil {
		t.Fatalf("expected duplicate-name build to fail")
	}

	found, err := w.EntityByName("dup")
	if err != nil {
		t.Fatalf("EntityByName: %v", err)
	}
	if !found.Valid() {
		t.Fatalf("found entity is not valid")
	}

	if _, err := w.EntityByName("missing"); err != ErrNotFound {
		t.Errorf("EntityByName(missing) err = %v, want ErrNotFound", err)
	}
}

func TestWorldSetParentAndDespawnRecursive(t *testing.T) {
	w := NewWorld(nil)
	parent, err := w.Spawn("parent").Build()
	if err != nil {
		t.Fatalf("Build parent: %v", err)
	}
	child, err := w.Spawn("child").Build()
	if err != nil {
		t.Fatalf("Build child: %v", err)
	}

	if err := w.SetParent(child, parent, nil); err != nil {
		t.Fatalf("SetParent: %v", err)
	}

	w.DespawnRecursive(parent)
	if w.IsAlive(parent) || w.IsAlive(child) {
		t.Fatalf("DespawnRecursive should have removed both parent and child")
	}
}

func TestWorldGetAllEntities(t *testing.T) {
	w := NewWorld(nil)
	pos := FactoryNewComponent[wPosition]()
	for i := 0; i < 3; i++ {
		if _, err := w.Spawn("").With(pos.Component, wPosition{}).Build(); err != nil {
			t.Fatalf("Build: %v", err)
		}
	}
	all := w.GetAllEntities()
	if len(all) != 3 {
		t.Errorf("GetAllEntities returned %d, want 3", len(all))
	}
}

func TestWorldMemoryStats(t *testing.T) {
	w := NewWorld(nil)
	pos := FactoryNewComponent[wPosition]()
	e, err := w.Spawn("").With(pos.Component, wPosition{}).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	stats := w.GetMemoryStats()
	if stats.EntitiesActive != 1 {
		t.Errorf("EntitiesActive = %d, want 1", stats.EntitiesActive)
	}
	if stats.ArchetypeCount < 1 {
		t.Errorf("ArchetypeCount = %d, want >= 1", stats.ArchetypeCount)
	}

	w.Despawn(e)
	stats = w.GetMemoryStats()
	if stats.EntitiesActive != 0 {
		t.Errorf("EntitiesActive after despawn = %d, want 0", stats.EntitiesActive)
	}
}

func TestWorldAddSetGetHasRemove(t *testing.T) {
	w := NewWorld(nil)
	pos := FactoryNewComponent[wPosition]()
	e, err := w.Spawn("").Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if Has(e, pos) {
		t.Fatalf("fresh entity should not have Position yet")
	}
	if err := Add(e, pos, wPosition{X: 1, Y: 2}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !Has(e, pos) {
		t.Fatalf("expected Has to be true after Add")
	}

	got, err := Get(e, pos)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.X != 1 || got.Y != 2 {
		t.Errorf("Get = %+v, want {1 2}", got)
	}

	if err := Set(e, pos, wPosition{X: 9, Y: 9}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got2, _ := Get(e, pos)
	if got2.X != 9 || got2.Y != 9 {
		t.Errorf("Get after Set = %+v, want {9 9}", got2)
	}

	if !Remove(e, pos) {
		t.Fatalf("Remove returned false for a present component")
	}
	if Has(e, pos) {
		t.Fatalf("expected Has false after Remove")
	}
}

func TestWorldUpdateRunsScheduler(t *testing.T) {
	w := NewWorld(nil)
	ran := false
	w.AddSystem(&inlineSystem{fn: func(dt float64) error { ran = true; return nil }}, SystemOptions{Phase: Update})

	if err := w.Update(1.0 / 60); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !ran {
		t.Fatalf("registered system did not run")
	}
}

func TestWorldFlushAllIntegratesWithSpawn(t *testing.T) {
	w := NewWorld(nil)
	pos := FactoryNewComponent[wPosition]()

	cb, err := w.Buffers().Rent(1)
	if err != nil {
		t.Fatalf("Rent: %v", err)
	}
	ph := cb.Spawn("buffered")
	cb.With(ph, pos.Component, wPosition{X: 3, Y: 4})

	resolved, err := w.FlushAll()
	if err != nil {
		t.Fatalf("FlushAll: %v", err)
	}
	e := resolved[ph]
	if !w.IsAlive(e) {
		t.Fatalf("flushed entity is not alive")
	}
	if name, ok := w.GetName(e); !ok || name != "buffered" {
		t.Errorf("name = %q, ok=%v, want buffered/true", name, ok)
	}
}

func TestWorldDisposeIsIdempotent(t *testing.T) {
	w := NewWorld(nil)
	SetSingleton(w.Singletons(), wPosition{X: 1})
	w.Dispose()
	w.Dispose()
	if HasSingleton[wPosition](w.Singletons()) {
		t.Errorf("expected singletons cleared after Dispose")
	}
}

type wVelocity struct{ X, Y float64 }

func TestWorldArchetypeMigrationPreservesValues(t *testing.T) {
	w := NewWorld(nil)
	pos := FactoryNewComponent[wPosition]()
	vel := FactoryNewComponent[wVelocity]()

	e, err := w.Spawn("").With(pos.Component, wPosition{X: 5}).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	noVel := w.Query().With(pos.Component).Without(vel.Component)
	if got := noVel.Count(); got != 1 {
		t.Fatalf("pre-migration Without(vel) count = %d, want 1", got)
	}

	if err := Add(e, vel, wVelocity{X: 10}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if got := noVel.Count(); got != 0 {
		t.Errorf("post-migration Without(vel) count = %d, want 0", got)
	}
	if got := w.Query().With(pos.Component).With(vel.Component).Count(); got != 1 {
		t.Errorf("With(pos, vel) count = %d, want 1", got)
	}

	got, err := Get(e, pos)
	if err != nil {
		t.Fatalf("Get after migration: %v", err)
	}
	if got.X != 5 {
		t.Errorf("position X after migration = %v, want 5 (value must survive the move)", got.X)
	}
}

func TestWorldRemoveLastComponent(t *testing.T) {
	w := NewWorld(nil)
	pos := FactoryNewComponent[wPosition]()

	e, err := w.Spawn("").With(pos.Component, wPosition{X: 1}).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !Remove(e, pos) {
		t.Fatalf("Remove returned false for a present component")
	}
	if Has(e, pos) {
		t.Fatalf("Has should be false after removing the only component")
	}
	if !w.IsAlive(e) {
		t.Fatalf("entity should survive losing its last component")
	}
	if n := len(w.GetComponents(e)); n != 0 {
		t.Errorf("GetComponents returned %d entries, want 0", n)
	}

	if err := Add(e, pos, wPosition{X: 2}); err != nil {
		t.Fatalf("re-Add after removing last component: %v", err)
	}
	got, _ := Get(e, pos)
	if got.X != 2 {
		t.Errorf("re-added position X = %v, want 2", got.X)
	}
}

func TestWorldStaleHandleAfterRespawn(t *testing.T) {
	w := NewWorld(nil)
	pos := FactoryNewComponent[wPosition]()

	old, err := w.Spawn("").With(pos.Component, wPosition{}).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	w.Despawn(old)

	fresh, err := w.Spawn("").With(pos.Component, wPosition{}).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !w.IsAlive(fresh) {
		t.Fatalf("freshly spawned entity should be alive")
	}
	if w.IsAlive(old) {
		t.Errorf("handle from before the despawn must stay dead, even if its id was re-issued")
	}
}

type inlineSystem struct{ fn func(dt float64) error }

func (s *inlineSystem) OnBeforeUpdate(dt float64) {}
func (s *inlineSystem) Update(dt float64) error   { return s.fn(dt) }
func (s *inlineSystem) OnAfterUpdate(dt float64)  {}
