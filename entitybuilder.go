package warehouse

import "github.com/TheBitDrifter/table"

// emptySeedTag backs entities spawned with no components. The table layer
// requires at least one column per table, so the "no components" archetype
// stores this unexported zero-size column instead; it is filtered out of
// Components() and never visible to callers.
type emptySeedTag struct{}

var emptySeed Component = table.FactoryNewElementType[emptySeedTag]()

// EntityBuilder accumulates an entity's initial component set before Build
// commits it in one step.
type EntityBuilder struct {
	world  *World
	name   string
	values []componentValue
}

// With queues an initial component value. value may be nil for a tag
// component.
func (b *EntityBuilder) With(c Component, value any) *EntityBuilder {
	b.values = append(b.values, componentValue{component: c, value: value})
	return b
}

// Build commits the entity: validates the queued components, creates the
// entity directly in its final archetype, writes the queued values, assigns
// the name (if any), then publishes ComponentAddedEvent[T] per component
// followed by EntityCreatedEvent. These are the same notifications a later
// direct AddComponent produces, so subscribers cannot tell the two paths
// apart. A validation or naming failure aborts the build with no entity
// left behind.
func (b *EntityBuilder) Build() (Entity, error) {
	return b.world.materialize(b.name, b.values)
}
