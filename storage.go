package warehouse

import (
	"fmt"
	"sync"

	"github.com/TheBitDrifter/mask"
	"github.com/TheBitDrifter/table"
)

// Ensure storage implements Storage interface
var _ Storage = &storage{}

var (
	globalEntryIndex = table.Factory.NewEntryIndex()
	globalEntitiesMu sync.Mutex
	globalEntities   = make([]entity, 0)
)

// Storage defines the interface for entity storage and manipulation
type Storage interface {
	Entity(id int) (Entity, error)
	NewEntities(int, ...Component) ([]Entity, error)
	NewOrExistingArchetype(components ...Component) (Archetype, error)
	EnqueueNewEntities(int, ...Component) error
	DestroyEntities(...Entity) error
	EnqueueDestroyEntities(...Entity) error
	RowIndexFor(Component) uint32
	Locked() bool
	AddLock()
	RemoveLock()
	Register(...Component)
	tableFor(...Component) (table.Table, error)

	TransferEntities(target Storage, entities ...Entity) error
	Enqueue(EntityOperation)
	Archetypes() []*ArchetypeImpl

	// SetEventBus wires the storage's archetype-creation notifications into
	// a World's event bus. Safe to leave unset for standalone storage use.
	SetEventBus(*EventBus)
	// EventBus returns the wired event bus, or nil if none was set.
	EventBus() *EventBus

	// SetValidation wires a ValidationManager that entity.go consults
	// before committing a component add. Safe to leave unset: validation
	// is then skipped entirely, matching ValidationDisabled.
	SetValidation(*ValidationManager)
	// Validation returns the wired validation manager, or nil if none
	// was set.
	Validation() *ValidationManager
}

// storage implements the Storage interface
type storage struct {
	mu             sync.Mutex
	lockCount      int
	schema         table.Schema
	archetypes     *archetypes
	operationQueue EntityOperationsQueue
	eventBus       *EventBus
	validation     *ValidationManager
}

// archetypes manages archetype collections and identification
type archetypes struct {
	nextID           archetypeID
	asSlice          []*ArchetypeImpl
	idsGroupedByMask map[mask.Mask]archetypeID
}

// newStorage creates a new Storage implementation with the given schema
func newStorage(schema table.Schema) Storage {
	archetypes := &archetypes{
		nextID:           1,
		idsGroupedByMask: make(map[mask.Mask]archetypeID),
	}
	return &storage{
		archetypes:     archetypes,
		schema:         schema,
		operationQueue: &entityOperationsQueue{},
	}
}

// SetEventBus wires archetype-created notifications to bus.
func (sto *storage) SetEventBus(bus *EventBus) {
	sto.eventBus = bus
}

// EventBus returns the wired event bus, or nil if none was set.
func (sto *storage) EventBus() *EventBus {
	return sto.eventBus
}

// SetValidation wires a ValidationManager consulted on every component add.
func (sto *storage) SetValidation(v *ValidationManager) {
	sto.validation = v
}

// Validation returns the wired validation manager, or nil if none was set.
func (sto *storage) Validation() *ValidationManager {
	return sto.validation
}

// Entity retrieves an entity by ID
func (sto *storage) Entity(id int) (Entity, error) {
	globalEntitiesMu.Lock()
	defer globalEntitiesMu.Unlock()
	if id <= 0 || id > len(globalEntities) {
		return nil, fmt.Errorf("%w: entity id %d", ErrOutOfRange, id)
	}
	return &globalEntities[id-1], nil
}

// NewOrExistingArchetype gets an existing archetype matching the component signature or creates a new one
func (sto *storage) NewOrExistingArchetype(components ...Component) (Archetype, error) {
	var entityMask mask.Mask
	for _, component := range components {
		sto.schema.Register(component)
		bit := sto.schema.RowIndexFor(component)
		entityMask.Mark(bit)
	}
	id, archetypeFound := sto.archetypes.idsGroupedByMask[entityMask]
	if archetypeFound {
		return sto.archetypes.asSlice[id-1], nil
	}

	created, err := newArchetype(sto.schema, globalEntryIndex, sto.archetypes.nextID, components...)
	if err != nil {
		return nil, err
	}
	archPtr := &created
	sto.archetypes.asSlice = append(sto.archetypes.asSlice, archPtr)
	sto.archetypes.idsGroupedByMask[entityMask] = created.id
	sto.archetypes.nextID++

	if sto.eventBus != nil {
		Publish(sto.eventBus, ArchetypeCreatedEvent{Archetype: archPtr})
	}

	return archPtr, nil
}

// NewEntities creates n new entities with the specified components
func (sto *storage) NewEntities(n int, components ...Component) ([]Entity, error) {
	if sto.Locked() {
		return nil, LockedStorageError{}
	}
	entityArchetype, err := sto.NewOrExistingArchetype(components...)
	if err != nil {
		return nil, err
	}
	entries, err := entityArchetype.Table().NewEntries(n)
	if err != nil {
		return nil, err
	}

	globalEntitiesMu.Lock()
	entities := make([]Entity, n)
	for i, entry := range entries {
		en := &entity{
			Entry:          entry,
			sto:            sto,
			id:             entry.ID(),
			issuedRecycled: entry.Recycled(),
		}
		entities[i] = en

		// The entry index recycles ids, so the slot for a new entry may
		// already exist; fresh ids extend the slice instead.
		idx := int(entry.ID()) - 1
		for idx >= len(globalEntities) {
			globalEntities = append(globalEntities, entity{})
		}
		globalEntities[idx] = *en
	}
	globalEntitiesMu.Unlock()

	return entities, nil
}

// RowIndexFor returns the bit index for a component in the schema
func (sto *storage) RowIndexFor(c Component) uint32 {
	return sto.schema.RowIndexFor(c)
}

// Locked checks if the storage is currently locked
func (sto *storage) Locked() bool {
	sto.mu.Lock()
	defer sto.mu.Unlock()
	return sto.lockCount > 0
}

// AddLock increments the advisory lock count. While it is above zero,
// direct structural changes fail with LockedStorageError and the Enqueue*
// variants queue their operation until the count returns to zero.
func (sto *storage) AddLock() {
	sto.mu.Lock()
	sto.lockCount++
	sto.mu.Unlock()
}

// RemoveLock decrements the lock count and, once it reaches zero, flushes
// any operations queued while locked.
func (sto *storage) RemoveLock() {
	sto.mu.Lock()
	sto.lockCount--
	empty := sto.lockCount <= 0
	sto.mu.Unlock()

	if empty {
		if err := sto.operationQueue.ProcessAll(sto); err != nil {
			panic(fmt.Errorf("error processing queued operations: %w", err))
		}
	}
}

// EnqueueNewEntities either creates entities immediately or queues creation if storage is locked
func (sto *storage) EnqueueNewEntities(count int, components ...Component) error {
	if !sto.Locked() {
		_, err := sto.NewEntities(count, components...)
		if err != nil {
			return fmt.Errorf("failed to create entities directly: %w", err)
		}
		return nil
	}
	sto.operationQueue.Enqueue(
		NewEntityOperation{
			count:      count,
			components: components,
		},
	)
	return nil
}

// DestroyEntities removes entities from storage
func (sto *storage) DestroyEntities(entities ...Entity) error {
	if sto.Locked() {
		return LockedStorageError{}
	}
	tableGroups := make(map[table.Table][]int)
	for _, en := range entities {
		if en == nil {
			continue
		}
		tableGroups[en.Table()] = append(tableGroups[en.Table()], int(en.ID()))
	}
	for tbl, ids := range tableGroups {
		if _, err := tbl.DeleteEntries(ids...); err != nil {
			return fmt.Errorf("failed to delete entries: %w", err)
		}
	}

	globalEntitiesMu.Lock()
	for _, en := range entities {
		if en == nil {
			continue
		}
		index := en.ID() - 1
		if int(index) < len(globalEntities) {
			globalEntities[index] = entity{}
		}
	}
	globalEntitiesMu.Unlock()
	return nil
}

// EnqueueDestroyEntities either destroys entities immediately or queues destruction if storage is locked
func (sto *storage) EnqueueDestroyEntities(entities ...Entity) error {
	if !sto.Locked() {
		return sto.DestroyEntities(entities...)
	}
	for _, en := range entities {
		sto.operationQueue.Enqueue(
			DestroyEntityOperation{
				entity:   en,
				recycled: en.Recycled(),
			})
	}
	return nil
}

// TransferEntities moves entities from this storage to the target storage
func (sto *storage) TransferEntities(target Storage, entities ...Entity) error {
	if sto.Locked() {
		return LockedStorageError{}
	}
	for _, en := range entities {
		comps := en.Components()
		target.Register(comps...)
		targetTbl, err := target.tableFor(comps...)
		if err != nil {
			return err
		}

		if err := en.Table().TransferEntries(targetTbl, en.Index()); err != nil {
			return err
		}
		en.SetStorage(target)
	}
	return nil
}

// Register adds components to the storage schema
func (sto *storage) Register(comps ...Component) {
	ets := make([]table.ElementType, len(comps))
	for i, c := range comps {
		ets[i] = c
	}
	sto.schema.Register(ets...)
}

// Enqueue adds an operation to the queue
func (sto *storage) Enqueue(op EntityOperation) {
	sto.operationQueue.Enqueue(op)
}

// Archetypes returns all archetypes in this storage
func (sto *storage) Archetypes() []*ArchetypeImpl {
	return sto.archetypes.asSlice
}

// tableFor gets or creates a table for the given component set
func (sto *storage) tableFor(comps ...Component) (table.Table, error) {
	var archeMask mask.Mask
	for _, c := range comps {
		archeMask.Mark(sto.RowIndexFor(c))
	}

	id, ok := sto.archetypes.idsGroupedByMask[archeMask]
	if !ok {
		created, err := newArchetype(sto.schema, globalEntryIndex, sto.archetypes.nextID, comps...)
		if err != nil {
			return nil, err
		}
		archPtr := &created
		sto.archetypes.asSlice = append(sto.archetypes.asSlice, archPtr)
		sto.archetypes.idsGroupedByMask[archeMask] = created.id
		id = created.id
		sto.archetypes.nextID++

		if sto.eventBus != nil {
			Publish(sto.eventBus, ArchetypeCreatedEvent{Archetype: archPtr})
		}
	}
	arche := sto.archetypes.asSlice[id-1]
	return arche.table, nil
}
