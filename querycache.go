package warehouse

import (
	"sync"
	"sync/atomic"

	"github.com/TheBitDrifter/mask"
)

// QueryDescription is the caller-facing triple a QueryBuilder accumulates:
// components the caller reads or writes (both simply mean "required" at the
// storage level; Go has no borrow checker to tell them apart) and
// components the result set must not have.
type QueryDescription struct {
	Reads   []Component
	Writes  []Component
	Without []Component
}

// QueryDescriptor is QueryDescription's canonical, comparable form: the
// required and excluded component sets reduced to bitmasks, so two
// descriptions built in different orders hash and compare equal.
type QueryDescriptor struct {
	required mask.Mask
	excluded mask.Mask
}

func newQueryDescriptor(sto Storage, required, excluded []Component) QueryDescriptor {
	var reqMask, excMask mask.Mask
	for _, c := range required {
		reqMask.Mark(sto.RowIndexFor(c))
	}
	for _, c := range excluded {
		excMask.Mark(sto.RowIndexFor(c))
	}
	return QueryDescriptor{required: reqMask, excluded: excMask}
}

func (d QueryDescriptor) matches(arch *ArchetypeImpl) bool {
	archMask := arch.Table().(mask.Maskable).Mask()
	return archMask.ContainsAll(d.required) && archMask.ContainsNone(d.excluded)
}

// QueryCache maps descriptors to the archetype lists currently matching
// them, updated incrementally as new archetypes appear instead of being
// rebuilt on every lookup. One QueryCache per World; subscribed to its
// event bus's ArchetypeCreatedEvent for the incremental update.
type QueryCache struct {
	mu      sync.RWMutex
	entries map[QueryDescriptor][]*ArchetypeImpl
	storage Storage

	hits   atomic.Int64
	misses atomic.Int64
}

// NewQueryCache creates a cache backed by sto. Call Attach to wire it to a
// bus so later archetypes are folded in incrementally.
func NewQueryCache(sto Storage) *QueryCache {
	return &QueryCache{
		entries: make(map[QueryDescriptor][]*ArchetypeImpl),
		storage: sto,
	}
}

// Attach subscribes the cache to bus's ArchetypeCreatedEvent. Returns the
// Subscription so World can dispose it on teardown.
func (qc *QueryCache) Attach(bus *EventBus) Subscription {
	sub, _ := Subscribe(bus, func(evt ArchetypeCreatedEvent) {
		arch, ok := evt.Archetype.(*ArchetypeImpl)
		if !ok {
			return
		}
		qc.mu.Lock()
		defer qc.mu.Unlock()
		for desc, list := range qc.entries {
			if desc.matches(arch) {
				qc.entries[desc] = append(list, arch)
			}
		}
	})
	return sub
}

// Lookup returns the archetype list matching desc, computing and caching it
// on first use (a miss) and reusing it on every subsequent call (a hit).
func (qc *QueryCache) Lookup(desc QueryDescriptor) []*ArchetypeImpl {
	qc.mu.RLock()
	list, ok := qc.entries[desc]
	qc.mu.RUnlock()
	if ok {
		qc.hits.Add(1)
		return list
	}

	qc.mu.Lock()
	defer qc.mu.Unlock()
	if list, ok := qc.entries[desc]; ok {
		qc.hits.Add(1)
		return list
	}

	qc.misses.Add(1)
	var matched []*ArchetypeImpl
	for _, arch := range qc.storage.Archetypes() {
		if !arch.Disposed() && desc.matches(arch) {
			matched = append(matched, arch)
		}
	}
	qc.entries[desc] = matched
	return matched
}

// Invalidate discards a single cached descriptor, forcing the next Lookup
// to recompute it from scratch.
func (qc *QueryCache) Invalidate(desc QueryDescriptor) {
	qc.mu.Lock()
	defer qc.mu.Unlock()
	delete(qc.entries, desc)
}

// Stats reports cache hit/miss counters and the derived hit rate.
type Stats struct {
	Hits, Misses int64
	HitRate      float64
}

// Stats returns the cache's current hit/miss counters.
func (qc *QueryCache) Stats() Stats {
	hits := qc.hits.Load()
	misses := qc.misses.Load()
	total := hits + misses
	var rate float64
	if total > 0 {
		rate = float64(hits) / float64(total)
	}
	return Stats{Hits: hits, Misses: misses, HitRate: rate}
}

// QueryBuilder is the fluent surface World.Query returns: accumulate
// required/excluded component types, then Count/ForEach/ForEachParallel.
type QueryBuilder struct {
	cache    *QueryCache
	storage  Storage
	required []Component
	excluded []Component
}

// NewQueryBuilder creates a builder with no constraints yet.
func NewQueryBuilder(cache *QueryCache, sto Storage) *QueryBuilder {
	return &QueryBuilder{cache: cache, storage: sto}
}

// With adds c to the required set.
func (b *QueryBuilder) With(c Component) *QueryBuilder {
	b.required = append(b.required, c)
	return b
}

// Without adds c to the excluded set.
func (b *QueryBuilder) Without(c Component) *QueryBuilder {
	b.excluded = append(b.excluded, c)
	return b
}

func (b *QueryBuilder) descriptor() QueryDescriptor {
	return newQueryDescriptor(b.storage, b.required, b.excluded)
}

func (b *QueryBuilder) archetypes() []*ArchetypeImpl {
	return b.cache.Lookup(b.descriptor())
}

// Count returns the number of entities across every matching archetype.
func (b *QueryBuilder) Count() int {
	total := 0
	for _, arch := range b.archetypes() {
		total += arch.Count()
	}
	return total
}

// ForEach invokes fn once per matching entity, single-threaded, in slot
// order within a chunk; order across archetypes is the cache's list order.
func (b *QueryBuilder) ForEach(fn func(Entity)) error {
	b.storage.AddLock()
	defer b.storage.RemoveLock()

	for _, arch := range b.archetypes() {
		if arch.Disposed() {
			continue
		}
		n := arch.Count()
		for i := 0; i < n; i++ {
			entry, err := arch.Table().Entry(i)
			if err != nil {
				return err
			}
			ent, err := b.storage.Entity(int(entry.ID()))
			if err != nil {
				return err
			}
			fn(ent)
		}
	}
	return nil
}

// ForEachParallel partitions the matching archetypes across goroutines,
// one goroutine per archetype, skipping parallelisation entirely when the
// total matched entity count is below minEntityCount. Entities within a
// chunk are visited in slot order; ordering across chunks/archetypes is not
// guaranteed. Errors from every worker are joined via errors.Join.
func (b *QueryBuilder) ForEachParallel(fn func(Entity), minEntityCount int) error {
	b.storage.AddLock()
	defer b.storage.RemoveLock()

	archetypes := b.archetypes()
	total := 0
	for _, arch := range archetypes {
		total += arch.Count()
	}
	if total < minEntityCount {
		for _, arch := range archetypes {
			if err := iterateArchetype(b.storage, arch, fn); err != nil {
				return err
			}
		}
		return nil
	}

	var wg sync.WaitGroup
	errs := make([]error, len(archetypes))
	for i, arch := range archetypes {
		wg.Add(1)
		go func(i int, arch *ArchetypeImpl) {
			defer wg.Done()
			errs[i] = iterateArchetype(b.storage, arch, fn)
		}(i, arch)
	}
	wg.Wait()

	return joinErrors(errs)
}

func iterateArchetype(sto Storage, arch *ArchetypeImpl, fn func(Entity)) error {
	if arch.Disposed() {
		return nil
	}
	n := arch.Count()
	for i := 0; i < n; i++ {
		entry, err := arch.Table().Entry(i)
		if err != nil {
			return err
		}
		ent, err := sto.Entity(int(entry.ID()))
		if err != nil {
			return err
		}
		fn(ent)
	}
	return nil
}
