package warehouse

import (
	"reflect"
	"sync"

	"github.com/TheBitDrifter/table"
)

// World composes the full runtime: archetype storage, the event bus,
// query cache, scheduler, validation, singletons/RNG and command-buffer
// pool. It is the entry point external code is expected to use; Storage,
// EventBus and friends remain independently usable for callers that only
// need a subset.
type World struct {
	storage    Storage
	events     *EventBus
	queryCache *QueryCache
	scheduler  *Scheduler
	validation *ValidationManager
	singletons *Singletons
	rng        *RNG
	buffers    *CommandBufferPool
	archSub    Subscription

	names namesRegistry

	mu       sync.RWMutex
	children map[entityKey][]Entity
}

type entityKey struct {
	id       table.EntryID
	recycled int
}

func keyOf(e Entity) entityKey {
	return entityKey{id: e.ID(), recycled: e.Recycled()}
}

type namesRegistry struct {
	mu       sync.RWMutex
	byName   map[string]Entity
	byEntity map[entityKey]string
}

// NewWorld creates a World with a fresh schema and time-seeded RNG.
// provider may be nil, in which case every component resolves to no
// validation constraints.
func NewWorld(provider ConstraintProvider) *World {
	schema := table.Factory.NewSchema()
	sto := Factory.NewStorage(schema)

	bus := NewEventBus()
	sto.SetEventBus(bus)

	vm := NewValidationManager(provider)
	sto.SetValidation(vm)

	qc := NewQueryCache(sto)
	sub := qc.Attach(bus)

	return &World{
		storage:    sto,
		events:     bus,
		queryCache: qc,
		scheduler:  NewScheduler(),
		validation: vm,
		singletons: NewSingletons(),
		rng:        NewRNG(),
		buffers:    NewCommandBufferPool(),
		archSub:    sub,
		children:   make(map[entityKey][]Entity),
		names: namesRegistry{
			byName:   make(map[string]Entity),
			byEntity: make(map[entityKey]string),
		},
	}
}

// NewSeededWorld is NewWorld with a deterministic RNG seed.
func NewSeededWorld(provider ConstraintProvider, seed1, seed2 int64) *World {
	w := NewWorld(provider)
	w.rng = NewSeededRNG(seed1, seed2)
	return w
}

func (w *World) Storage() Storage               { return w.storage }
func (w *World) Events() *EventBus              { return w.events }
func (w *World) Scheduler() *Scheduler          { return w.scheduler }
func (w *World) Validation() *ValidationManager { return w.validation }
func (w *World) Singletons() *Singletons        { return w.singletons }
func (w *World) RNG() *RNG                      { return w.rng }
func (w *World) Buffers() *CommandBufferPool    { return w.buffers }

// Query returns a fresh QueryBuilder bound to this world's query cache.
func (w *World) Query() *QueryBuilder {
	return NewQueryBuilder(w.queryCache, w.storage)
}

// Spawn returns a builder for a new entity. name may be empty.
func (w *World) Spawn(name string) *EntityBuilder {
	return &EntityBuilder{world: w, name: name}
}

// materialize is the single entity-creation path behind EntityBuilder.Build
// and the command buffer's spawn op. Validation runs before the entity
// exists (a custom predicate sees a nil entity at this point); creation
// lands directly in the final archetype; ComponentAddedEvent[T] fires per
// component and EntityCreatedEvent fires last, once the entity is fully
// populated.
func (w *World) materialize(name string, values []componentValue) (Entity, error) {
	comps := make([]Component, 0, len(values))
	for _, cv := range values {
		dup := false
		for _, c := range comps {
			if c.ID() == cv.component.ID() {
				dup = true
				break
			}
		}
		if !dup {
			comps = append(comps, cv.component)
		}
	}

	if vm := w.storage.Validation(); vm != nil {
		for i := range comps {
			if err := vm.Validate(nil, comps[i], comps[:i+1]); err != nil {
				return nil, err
			}
		}
	}

	spawnComps := comps
	if len(spawnComps) == 0 {
		spawnComps = []Component{emptySeed}
	}
	entities, err := w.storage.NewEntities(1, spawnComps...)
	if err != nil {
		return nil, err
	}
	e := entities[0]

	for _, cv := range values {
		if cv.value == nil {
			continue
		}
		if err := writeRowValue(e.Table(), e.Index(), cv.value); err != nil {
			w.storage.DestroyEntities(e)
			return nil, err
		}
	}

	if name != "" {
		if err := w.SetName(e, name); err != nil {
			w.storage.DestroyEntities(e)
			return nil, err
		}
	}

	if bus := w.events; bus != nil {
		for _, c := range comps {
			info, ok := globalComponentRegistry.get(uint32(c.ID()))
			if !ok {
				continue
			}
			info.publishAdded(bus, e, zeroValueFor(e.Table(), e.Index(), info.Type))
		}
		Publish(bus, EntityCreatedEvent{Entity: e})
	}
	return e, nil
}

// Despawn destroys e, firing EntityDestroyedEvent first. Returns false if e
// was already not alive.
func (w *World) Despawn(e Entity) bool {
	if e == nil || !e.Valid() {
		return false
	}
	if w.events != nil {
		Publish(w.events, EntityDestroyedEvent{Entity: e})
	}
	if err := w.storage.DestroyEntities(e); err != nil {
		return false
	}
	w.clearName(e)
	w.mu.Lock()
	delete(w.children, keyOf(e))
	w.mu.Unlock()
	return true
}

// DespawnRecursive despawns e and every descendant recorded via SetParent,
// children first.
func (w *World) DespawnRecursive(e Entity) {
	w.mu.RLock()
	kids := append([]Entity{}, w.children[keyOf(e)]...)
	w.mu.RUnlock()
	for _, child := range kids {
		w.DespawnRecursive(child)
	}
	w.Despawn(e)
}

// SetParent establishes child's parent and records the relationship so
// DespawnRecursive can find it later.
func (w *World) SetParent(child, parent Entity, callback EntityDestroyCallback) error {
	if err := child.SetParent(parent, callback); err != nil {
		return err
	}
	w.mu.Lock()
	w.children[keyOf(parent)] = append(w.children[keyOf(parent)], child)
	w.mu.Unlock()
	return nil
}

// IsAlive reports whether e still refers to a live entity.
func (w *World) IsAlive(e Entity) bool {
	return e != nil && e.Valid()
}

// GetAllEntities returns every currently live entity across every
// non-disposed archetype.
func (w *World) GetAllEntities() []Entity {
	var all []Entity
	for _, arch := range w.storage.Archetypes() {
		if arch.Disposed() {
			continue
		}
		n := arch.Count()
		for i := 0; i < n; i++ {
			entry, err := arch.Table().Entry(i)
			if err != nil {
				continue
			}
			e, err := w.storage.Entity(int(entry.ID()))
			if err != nil {
				continue
			}
			all = append(all, e)
		}
	}
	return all
}

// SetName assigns name to e, or clears it if name is empty. Fails with
// ErrNotAlive on a despawned entity and ErrInvalidArgument if name is
// already assigned to a different entity.
func (w *World) SetName(e Entity, name string) error {
	if e == nil || !e.Valid() {
		return ErrNotAlive
	}
	w.names.mu.Lock()
	defer w.names.mu.Unlock()

	k := keyOf(e)
	if old, ok := w.names.byEntity[k]; ok {
		delete(w.names.byName, old)
		delete(w.names.byEntity, k)
	}
	if name == "" {
		return nil
	}
	if _, exists := w.names.byName[name]; exists {
		return ErrInvalidArgument
	}
	w.names.byName[name] = e
	w.names.byEntity[k] = name
	return nil
}

// GetName returns e's assigned name, if any. A despawned or stale handle
// has no name.
func (w *World) GetName(e Entity) (string, bool) {
	if e == nil || !e.Valid() {
		return "", false
	}
	w.names.mu.RLock()
	defer w.names.mu.RUnlock()
	name, ok := w.names.byEntity[keyOf(e)]
	return name, ok
}

// EntityByName looks up an entity by its assigned name, failing with
// ErrNotFound if none matches.
func (w *World) EntityByName(name string) (Entity, error) {
	w.names.mu.RLock()
	defer w.names.mu.RUnlock()
	e, ok := w.names.byName[name]
	if !ok {
		return nil, ErrNotFound
	}
	return e, nil
}

func (w *World) clearName(e Entity) {
	w.names.mu.Lock()
	defer w.names.mu.Unlock()
	k := keyOf(e)
	if name, ok := w.names.byEntity[k]; ok {
		delete(w.names.byName, name)
		delete(w.names.byEntity, k)
	}
}

// ComponentValue pairs a component's registered type with its current
// value, for introspection (GetComponents) and serialization collaborators.
type ComponentValue struct {
	Type  reflect.Type
	Value any
}

// GetComponents returns every component currently on e with its value, or
// nil for a despawned entity.
func (w *World) GetComponents(e Entity) []ComponentValue {
	if e == nil || !e.Valid() {
		return nil
	}
	var out []ComponentValue
	for _, c := range e.Components() {
		info, ok := globalComponentRegistry.get(uint32(c.ID()))
		if !ok {
			continue
		}
		out = append(out, ComponentValue{
			Type:  info.Type,
			Value: zeroValueFor(e.Table(), e.Index(), info.Type),
		})
	}
	return out
}

// AddSystem registers sys with the world's scheduler.
func (w *World) AddSystem(sys System, opts SystemOptions) {
	w.scheduler.AddSystem(sys, opts)
}

// AddSystemGroup registers every system in group with the world's scheduler.
func (w *World) AddSystemGroup(group *SystemGroup, opts SystemOptions) {
	w.scheduler.AddSystemGroup(group, opts)
}

// Update runs every scheduler phase once.
func (w *World) Update(dt float64) error {
	return w.scheduler.Update(dt)
}

// FixedUpdate runs only the FixedUpdate phase.
func (w *World) FixedUpdate(dt float64) error {
	return w.scheduler.FixedUpdate(dt)
}

// FlushAll flushes every rented command buffer against this world.
func (w *World) FlushAll() (map[PlaceholderEntity]Entity, error) {
	return w.buffers.FlushAll(w)
}

// FlushBatches flushes an explicit system-id batch sequence against this
// world.
func (w *World) FlushBatches(batches [][]int) (map[PlaceholderEntity]Entity, error) {
	return w.buffers.FlushBatches(w, batches)
}

// MemoryStats reports coarse counters for introspection/diagnostics.
type MemoryStats struct {
	EntitiesActive     int
	EntitiesAllocated  int
	ArchetypeCount     int
	ComponentTypeCount int
}

// GetMemoryStats reports current world size.
func (w *World) GetMemoryStats() MemoryStats {
	archs := w.storage.Archetypes()
	active := 0
	for _, a := range archs {
		if !a.Disposed() {
			active += a.Count()
		}
	}
	globalEntitiesMu.Lock()
	allocated := len(globalEntities)
	globalEntitiesMu.Unlock()

	return MemoryStats{
		EntitiesActive:     active,
		EntitiesAllocated:  allocated,
		ArchetypeCount:     len(archs),
		ComponentTypeCount: RegisteredComponentCount(),
	}
}

// Dispose clears the event bus and singletons so long-lived external
// subscribers/handles do not keep the world reachable. Idempotent.
func (w *World) Dispose() {
	if w.events != nil {
		w.events.Clear()
	}
	if w.singletons != nil {
		w.singletons.Clear()
	}
	w.archSub.Dispose()
}

// Add gives e a fresh T with the given value, failing with
// ErrUnregisteredType if c was never produced by FactoryNewComponent[T].
func Add[T any](e Entity, c AccessibleComponent[T], value T) error {
	if !e.Valid() {
		return ErrNotAlive
	}
	if err := RequireRegistered(c.Component); err != nil {
		return err
	}
	return e.AddComponentWithValue(c.Component, value)
}

// AddZero gives e a zero-valued T.
func AddZero[T any](e Entity, c AccessibleComponent[T]) error {
	if err := RequireRegistered(c.Component); err != nil {
		return err
	}
	return e.AddComponent(c.Component)
}

// Remove strips T from e, returning false if e didn't have it or is no
// longer alive.
func Remove[T any](e Entity, c AccessibleComponent[T]) bool {
	if !e.Valid() || !e.Table().Contains(c.Component) {
		return false
	}
	return e.RemoveComponent(c.Component) == nil
}

// Set overwrites e's existing T, publishing ComponentChangedEvent[T].
func Set[T any](e Entity, c AccessibleComponent[T], value T) error {
	return c.Set(e, value)
}

// Get returns a mutable pointer to e's T, failing with ErrNotAlive or
// ComponentNotFoundError as appropriate.
func Get[T any](e Entity, c AccessibleComponent[T]) (*T, error) {
	if !e.Valid() {
		return nil, ErrNotAlive
	}
	if !c.Accessor.Check(e.Table()) {
		return nil, ComponentNotFoundError{Component: c.Component}
	}
	return c.GetFromEntity(e), nil
}

// Has reports whether e currently carries T.
func Has[T any](e Entity, c AccessibleComponent[T]) bool {
	return e.Valid() && c.Accessor.Check(e.Table())
}
