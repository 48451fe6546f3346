package warehouse

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/TheBitDrifter/bark"
	"github.com/TheBitDrifter/table"
)

// Verify entity implements Entity interface
var _ Entity = &entity{}

// Entity represents a game object with components and hierarchical relationships
type Entity interface {
	table.Entry

	SetParent(parent Entity, callback EntityDestroyCallback) error
	Parent() Entity

	SetDestroyCallback(EntityDestroyCallback) error

	AddComponent(Component) error
	AddComponentWithValue(Component, any) error
	RemoveComponent(Component) error

	EnqueueAddComponent(Component) error
	EnqueueAddComponentWithValue(Component, any) error
	EnqueueRemoveComponent(Component) error

	Components() []Component
	ComponentsAsString() string

	Valid() bool
	Storage() Storage
	SetStorage(Storage)
}

// EntityDestroyCallback is called when an entity is destroyed
type EntityDestroyCallback func(Entity)

// entity implements the Entity interface
type entity struct {
	table.Entry
	id             table.EntryID
	issuedRecycled int
	sto            Storage
	relationships  relationships
}

// relationships tracks parent-child relationships and destroy callbacks
type relationships struct {
	recycled  int
	parent    Entity
	onDestroy EntityDestroyCallback
}

// ID returns the entity's unique identifier
func (e *entity) ID() table.EntryID {
	return e.id
}

// Index returns the entity's index in its table
func (e *entity) Index() int {
	return e.entry().Index()
}

// Recycled returns the entity's recycled count
func (e *entity) Recycled() int {
	return e.entry().Recycled()
}

// Table returns the table this entity belongs to
func (e *entity) Table() table.Table {
	return e.entry().Table()
}

// Storage returns the storage this entity belongs to
func (e *entity) Storage() Storage {
	return e.sto
}

// SetParent establishes a parent-child relationship with another entity
func (e *entity) SetParent(parent Entity, callback EntityDestroyCallback) error {
	if e.relationships.parent != nil {
		return EntityRelationError{child: e, parent: e.relationships.parent}
	}
	e.relationships.parent = parent
	e.relationships.recycled = parent.Recycled()
	err := parent.SetDestroyCallback(callback)
	if err != nil {
		return err
	}
	return nil
}

// Parent returns the parent entity if it exists and hasn't been recycled
func (e *entity) Parent() Entity {
	if e.relationships.parent != nil {
		if e.relationships.parent.Recycled() != e.relationships.recycled {
			return nil
		}
		return e.relationships.parent
	}
	return nil
}

// SetDestroyCallback sets the callback to be invoked when this entity is destroyed
func (e *entity) SetDestroyCallback(callback EntityDestroyCallback) error {
	e.relationships.onDestroy = callback
	return nil
}

// AddComponent adds a zero-valued component to the entity, moving it to a
// new archetype if needed.
func (e *entity) AddComponent(c Component) error {
	return e.addComponent(c, nil)
}

// AddComponentWithValue adds a component with an initial value.
func (e *entity) AddComponentWithValue(c Component, value any) error {
	return e.addComponent(c, value)
}

// addComponent is the single path both AddComponent and
// AddComponentWithValue funnel through: one place runs validation,
// transfers the entry, writes the value (if any), and publishes
// ComponentAddedEvent[T].
func (e *entity) addComponent(c Component, value any) error {
	if !e.Valid() {
		return ErrNotAlive
	}
	if e.sto.Locked() {
		return LockedStorageError{}
	}

	originTable := e.Table()
	if originTable.Contains(c) {
		return nil
	}
	current := e.liveComponents()
	for _, comp := range current {
		if comp.ID() == c.ID() {
			return nil
		}
	}

	prospective := append(append([]Component{}, current...), c)
	if vm := e.sto.Validation(); vm != nil {
		if err := vm.Validate(e, c, prospective); err != nil {
			return err
		}
	}

	destArchetype, err := e.sto.NewOrExistingArchetype(prospective...)
	if err != nil {
		return err
	}
	if err := originTable.TransferEntries(destArchetype.Table(), e.Index()); err != nil {
		return err
	}

	var written any
	if value != nil {
		if err := writeRowValue(destArchetype.Table(), e.Index(), value); err != nil {
			return fmt.Errorf("component %v: %w", c.Type(), err)
		}
		written = value
	} else if info, ok := globalComponentRegistry.get(uint32(c.ID())); ok {
		written = zeroValueFor(destArchetype.Table(), e.Index(), info.Type)
	}

	if bus := e.sto.EventBus(); bus != nil {
		if info, ok := globalComponentRegistry.get(uint32(c.ID())); ok {
			info.publishAdded(bus, e, written)
		}
	}

	return nil
}

// setComponentValue overwrites c's value on an already-alive entity and
// publishes ComponentChangedEvent[T]. Used by CommandBuffer's Set op, which
// cannot go through AccessibleComponent[T].Set because it only holds a
// type-erased Component token at that point.
func setComponentValue(e Entity, c Component, value any) error {
	if !e.Valid() {
		return ErrNotAlive
	}
	tbl := e.Table()
	if !tbl.Contains(c) {
		return ComponentNotFoundError{Component: c}
	}

	valueType := reflect.TypeOf(value)
	var old any
	found := false
	for _, row := range tbl.Rows() {
		if row.Type().Elem() == valueType {
			rv := reflect.Value(row).Index(e.Index())
			old = rv.Interface()
			rv.Set(reflect.ValueOf(value))
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: value type %v for component %v", ErrTypeMismatch, valueType, c.Type())
	}

	if sto := e.Storage(); sto != nil {
		if bus := sto.EventBus(); bus != nil {
			if info, ok := globalComponentRegistry.get(uint32(c.ID())); ok {
				info.publishChanged(bus, e, old, value)
			}
		}
	}
	return nil
}

// writeRowValue writes value into the column matching its dynamic type at
// the given slot. Fails when the table has no column of that type.
func writeRowValue(tbl table.Table, index int, value any) error {
	valueType := reflect.TypeOf(value)
	for _, row := range tbl.Rows() {
		if row.Type().Elem() == valueType {
			reflect.Value(row).Index(index).Set(reflect.ValueOf(value))
			return nil
		}
	}
	return fmt.Errorf("%w: no column for value type %v", ErrTypeMismatch, valueType)
}

// zeroValueFor reads back the just-written (possibly zero) value at index
// for the row matching compType, for event publication.
func zeroValueFor(tbl table.Table, index int, compType reflect.Type) any {
	for _, row := range tbl.Rows() {
		if row.Type().Elem() == compType {
			return reflect.Value(row).Index(index).Interface()
		}
	}
	return nil
}

// RemoveComponent removes a component from the entity, moving it to a new
// archetype and publishing ComponentRemovedEvent[T] once the move has
// succeeded. A failed remove publishes nothing.
func (e *entity) RemoveComponent(c Component) error {
	if !e.Valid() {
		return ErrNotAlive
	}
	if e.sto.Locked() {
		return LockedStorageError{}
	}
	originTable := e.Table()
	if !originTable.Contains(c) {
		return nil
	}
	newComps := []Component{}
	for _, comp := range e.liveComponents() {
		if comp.ID() != c.ID() {
			newComps = append(newComps, comp)
		}
	}
	if len(newComps) == 0 {
		// Removing the last component lands the entity in the seeded
		// no-components archetype; the table layer can't store a
		// zero-column table.
		newComps = append(newComps, emptySeed)
	}

	destArchetype, err := e.sto.NewOrExistingArchetype(newComps...)
	if err != nil {
		return fmt.Errorf("failed to get/create archetype: %w", err)
	}
	if err := originTable.TransferEntries(destArchetype.Table(), e.Index()); err != nil {
		return fmt.Errorf("failed to transfer entity: %w", err)
	}

	if bus := e.sto.EventBus(); bus != nil {
		if info, ok := globalComponentRegistry.get(uint32(c.ID())); ok {
			info.publishRemoved(bus, e)
		}
	}
	return nil
}

// EnqueueAddComponent queues a component addition or executes immediately if storage isn't locked
func (e *entity) EnqueueAddComponent(c Component) error {
	if !e.sto.Locked() {
		return e.AddComponent(c)
	}
	e.sto.Enqueue(AddComponentOperation{
		entity:    e,
		recycled:  e.Recycled(),
		component: c,
		storage:   e.sto,
	})
	return nil
}

// EnqueueAddComponentWithValue queues a component addition with value or executes immediately
func (e *entity) EnqueueAddComponentWithValue(c Component, val any) error {
	if !e.sto.Locked() {
		return e.AddComponentWithValue(c, val)
	}
	e.sto.Enqueue(AddComponentOperation{
		entity:    e,
		recycled:  e.Recycled(),
		component: c,
		value:     val,
		storage:   e.sto,
	})
	return nil
}

// EnqueueRemoveComponent queues a component removal or executes immediately if storage isn't locked
func (e *entity) EnqueueRemoveComponent(c Component) error {
	if !e.sto.Locked() {
		return e.RemoveComponent(c)
	}
	e.sto.Enqueue(RemoveComponentOperation{
		entity:    e,
		recycled:  e.Recycled(),
		component: c,
		storage:   e.sto,
	})
	return nil
}

// entry returns the table entry for this entity
func (e *entity) entry() table.Entry {
	en, err := globalEntryIndex.Entry(int(e.id - 1))
	if err != nil {
		panic(bark.AddTrace(err))
	}
	return en
}

// Components returns all components currently attached to this entity,
// resolved live from the archetype backing its current table rather than
// a per-handle cache: any handle referring to this id (however it was
// obtained -- Spawn's return value, Storage.Entity, a query iterator)
// reports the same, current set even after a structural change made
// through a different handle.
func (e *entity) Components() []Component {
	return e.liveComponents()
}

// liveComponents looks up the archetype backing e's current table and
// returns its column-type set, minus the internal empty-archetype seed
// column. Returns nil if e isn't wired to a storage or its table matches
// no known archetype (e.g. a freshly zeroed slot).
func (e *entity) liveComponents() []Component {
	if e.sto == nil {
		return nil
	}
	tbl := e.Table()
	for _, arch := range e.sto.Archetypes() {
		if arch.Table() != tbl {
			continue
		}
		comps := arch.ComponentTypes()
		filtered := make([]Component, 0, len(comps))
		for _, c := range comps {
			if c.ID() == emptySeed.ID() {
				continue
			}
			filtered = append(filtered, c)
		}
		return filtered
	}
	return nil
}

// ComponentsAsString returns a sorted, formatted string of component names
func (e *entity) ComponentsAsString() string {
	comps := e.liveComponents()
	if len(comps) == 0 {
		return "[]"
	}

	var components []string
	for _, c := range comps {
		typeName := reflect.TypeOf(c).String()
		typeName = strings.TrimPrefix(typeName, "*")
		parts := strings.Split(typeName, ".")
		name := parts[len(parts)-1]
		name = strings.TrimSuffix(name, "]")

		components = append(components, name)
	}

	sort.Strings(components)

	return "[" + strings.Join(components, ", ") + "]"
}

// Valid reports whether e still refers to a live entity: e's id must be
// non-zero and the shared per-id slot in globalEntities -- the single
// source every handle referring to this id resolves against, mutated by
// DestroyEntities -- must still identify the same issuance of that id. A
// handle kept past its entity's despawn sees its slot zeroed and reports
// false; a handle kept past the id's re-issue sees a newer issuedRecycled
// in the slot and also reports false, even though the id matches.
func (e *entity) Valid() bool {
	if e.id == 0 {
		return false
	}
	globalEntitiesMu.Lock()
	defer globalEntitiesMu.Unlock()
	idx := int(e.id) - 1
	if idx < 0 || idx >= len(globalEntities) {
		return false
	}
	slot := &globalEntities[idx]
	return slot.id == e.id && slot.issuedRecycled == e.issuedRecycled
}

// SetStorage sets the storage for this entity
func (e *entity) SetStorage(sto Storage) {
	e.sto = sto
}
