package warehouse

import "github.com/TheBitDrifter/table"

// AccessibleComponent extends a base Component with table-based accessibility
// It provides methods to retrieve components using different access patterns
type AccessibleComponent[T any] struct {
	Component
	table.Accessor[T] // concrete.
}

// GetFromEntity retrieves a component value for the specified entity
func (c AccessibleComponent[T]) GetFromEntity(entity Entity) *T {
	return c.Get(entity.Index(), entity.Table())
}

// Set overwrites entity's existing T in place and publishes
// ComponentChangedEvent[T] on the entity's storage's event bus, if one is
// wired. The entity must already carry T; use AddComponentWithValue to give
// it one for the first time.
func (c AccessibleComponent[T]) Set(entity Entity, value T) error {
	if !entity.Valid() {
		return ErrNotAlive
	}
	if !c.Accessor.Check(entity.Table()) {
		return ComponentNotFoundError{Component: c.Component}
	}

	ptr := c.GetFromEntity(entity)
	old := *ptr
	*ptr = value

	if sto := entity.Storage(); sto != nil {
		if info, ok := globalComponentRegistry.get(uint32(c.ID())); ok {
			info.publishChanged(sto.EventBus(), entity, old, value)
		}
	}
	return nil
}
