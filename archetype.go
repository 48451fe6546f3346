package warehouse

import (
	"sort"

	"github.com/TheBitDrifter/table"
)

type archetypeID uint32

// Archetype is the read-only surface of a single component-type-set
// storage group exposed to queries and external callers.
type Archetype interface {
	ID() uint32
	Table() table.Table
	ComponentTypes() []Component
	Count() int
	ChunkCount() int
	Generate(n int) ([]table.Entry, error)
	Dispose()
}

// ArchetypeImpl is the canonical, concrete Archetype: one parallel set of
// columns (delegated to a table.Table, which already provides chunked,
// swap-back storage) plus the canonical id used to intern it.
type ArchetypeImpl struct {
	id         archetypeID
	table      table.Table
	components []Component
	disposed   bool
}

// newArchetype builds a new archetype storing exactly the given component
// set, backed by a table.Table built from the storage's schema.
func newArchetype(schema table.Schema, entryIndex table.EntryIndex, id archetypeID, components ...Component) (ArchetypeImpl, error) {
	elementTypes := make([]table.ElementType, len(components))
	for i, comp := range components {
		elementTypes[i] = comp
	}

	tbl, err := table.NewTableBuilder().
		WithSchema(schema).
		WithEntryIndex(entryIndex).
		WithElementTypes(elementTypes...).
		WithEvents(Config.tableEvents).
		Build()
	if err != nil {
		return ArchetypeImpl{}, err
	}

	sorted := make([]Component, len(components))
	copy(sorted, components)
	sort.Slice(sorted, func(i, j int) bool {
		return schema.RowIndexFor(sorted[i]) < schema.RowIndexFor(sorted[j])
	})

	return ArchetypeImpl{
		table:      tbl,
		id:         id,
		components: sorted,
	}, nil
}

// ID returns the archetype's canonical identifier.
func (a ArchetypeImpl) ID() uint32 {
	return uint32(a.id)
}

// Table returns the underlying column storage.
func (a ArchetypeImpl) Table() table.Table {
	return a.table
}

// ComponentTypes returns the archetype's column-type set in canonical
// (schema row index) order. Read-only: callers must not mutate the slice.
func (a ArchetypeImpl) ComponentTypes() []Component {
	return a.components
}

// Count returns the number of entities currently stored in this archetype.
func (a ArchetypeImpl) Count() int {
	return a.table.Length()
}

// ChunkCount returns the number of fixed-capacity chunks this archetype's
// table is spread across. The table dependency owns per-chunk layout
// internally; this is a derived view for introspection and statistics.
func (a ArchetypeImpl) ChunkCount() int {
	n := a.table.Length()
	if n == 0 {
		return 0
	}
	return (n + DefaultChunkCapacity - 1) / DefaultChunkCapacity
}

// Has reports whether this archetype stores a column for c.
func (a ArchetypeImpl) Has(c Component) bool {
	for _, comp := range a.components {
		if comp.ID() == c.ID() {
			return true
		}
	}
	return false
}

// Generate appends n freshly zero-initialised entities to this archetype
// and returns their entries.
func (a ArchetypeImpl) Generate(n int) ([]table.Entry, error) {
	return a.table.NewEntries(n)
}

// Dispose marks this archetype disposed, so query-cache lookups,
// ForEach/ForEachParallel iteration and GetAllEntities skip it. Its table
// and the entities in it are left in place; nothing is returned to a pool.
// Safe to call more than once.
func (a *ArchetypeImpl) Dispose() {
	a.disposed = true
}

// Disposed reports whether Dispose has been called.
func (a *ArchetypeImpl) Disposed() bool {
	return a.disposed
}
