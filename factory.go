package warehouse

import (
	"reflect"

	"github.com/TheBitDrifter/table"
)

// factory implements the factory pattern for warehouse components.
type factory struct{}

// Factory is the global factory instance for creating warehouse components.
var Factory factory

// NewStorage creates a new Storage instance with the given schema.
func (f factory) NewStorage(schema table.Schema) Storage {
	return newStorage(schema)
}

// NewQueryCache creates a QueryCache backed by storage, for callers using
// Storage standalone without a World. NewWorld wires one up automatically.
func (f factory) NewQueryCache(storage Storage) *QueryCache {
	return NewQueryCache(storage)
}

// NewWorld creates a World with its own storage, event bus, query cache,
// scheduler, validation manager, singletons and RNG all wired together.
func (f factory) NewWorld(provider ConstraintProvider) *World {
	return NewWorld(provider)
}

// NewSeededWorld is NewWorld with a deterministic RNG seed.
func (f factory) NewSeededWorld(provider ConstraintProvider, seed1, seed2 int64) *World {
	return NewSeededWorld(provider, seed1, seed2)
}

// FactoryNewComponent creates a new AccessibleComponent for type T and
// registers it with the process-wide component registry, so entity.go can
// publish strongly-typed ComponentAddedEvent[T]/ComponentRemovedEvent[T]
// from code that only ever sees a type-erased Component token.
func FactoryNewComponent[T any]() AccessibleComponent[T] {
	iden := table.FactoryNewElementType[T]()
	t := reflect.TypeOf((*T)(nil)).Elem()

	globalComponentRegistry.register(&ComponentInfo{
		ID:    uint32(iden.ID()),
		Name:  t.String(),
		Type:  t,
		IsTag: t.Size() == 0,
		publishAdded: func(bus *EventBus, e Entity, value any) {
			v, _ := value.(T)
			Publish(bus, ComponentAddedEvent[T]{Entity: e, Value: v})
		},
		publishRemoved: func(bus *EventBus, e Entity) {
			Publish(bus, ComponentRemovedEvent[T]{Entity: e})
		},
		publishChanged: func(bus *EventBus, e Entity, old, new any) {
			o, _ := old.(T)
			n, _ := new.(T)
			Publish(bus, ComponentChangedEvent[T]{Entity: e, Old: o, New: n})
		},
	})

	return AccessibleComponent[T]{
		Component: iden,
		Accessor:  table.FactoryNewAccessor[T](iden),
	}
}

// FactoryNewCache creates a new Cache with the specified capacity.
func FactoryNewCache[T any](cap int) Cache[T] {
	return &SimpleCache[T]{
		itemIndices: make(map[string]int),
		maxCapacity: cap,
	}
}
