package warehouse

import (
	"sort"
	"sync"
)

// PlaceholderEntity names an entity that a CommandBuffer has promised to
// spawn but has not yet materialised. It is unique within the buffer that
// issued it (bufferID) and, combined with bufferID, unique for the
// lifetime of a single flush cycle.
type PlaceholderEntity struct {
	bufferID uint32
	local    int32
}

// globalID packs (bufferID, local) into one int64 losslessly: bufferID in
// the high 32 bits, local's bit pattern in the low 32, giving placeholders
// a total order. The flush path does not use it: the map-key identity of
// PlaceholderEntity itself is the (bufferID, local) struct, not this
// packed form.
func (p PlaceholderEntity) globalID() int64 {
	return int64(p.bufferID)<<32 | int64(uint32(p.local))
}

// EntityRef names either an already-real Entity or a PlaceholderEntity not
// yet resolved. Add/Set/Remove/Despawn take a ref so a system can target an
// entity another buffer is about to spawn, resolved once flush accumulates
// that buffer's placeholder.
type EntityRef struct {
	entity        Entity
	placeholder   PlaceholderEntity
	isPlaceholder bool
}

// RefEntity wraps an already-live Entity.
func RefEntity(e Entity) EntityRef { return EntityRef{entity: e} }

// RefPlaceholder wraps a placeholder from (possibly another) buffer.
func RefPlaceholder(p PlaceholderEntity) EntityRef {
	return EntityRef{placeholder: p, isPlaceholder: true}
}

func (r EntityRef) resolve(resolved map[PlaceholderEntity]Entity) (Entity, error) {
	if !r.isPlaceholder {
		return r.entity, nil
	}
	e, ok := resolved[r.placeholder]
	if !ok {
		return nil, UnresolvedPlaceholderError{Placeholder: r.placeholder}
	}
	return e, nil
}

type componentValue struct {
	component Component
	value     any
}

type bufferOp interface {
	apply(world *World, resolved map[PlaceholderEntity]Entity) error
}

type spawnOp struct {
	placeholder PlaceholderEntity
	name        string
	values      []componentValue
}

func (op *spawnOp) apply(world *World, resolved map[PlaceholderEntity]Entity) error {
	e, err := world.materialize(op.name, op.values)
	if err != nil {
		return err
	}
	resolved[op.placeholder] = e
	return nil
}

type addOp struct {
	target    EntityRef
	component Component
	value     any
}

func (op *addOp) apply(world *World, resolved map[PlaceholderEntity]Entity) error {
	e, err := op.target.resolve(resolved)
	if err != nil {
		return err
	}
	if op.value != nil {
		return e.AddComponentWithValue(op.component, op.value)
	}
	return e.AddComponent(op.component)
}

type setOp struct {
	target    EntityRef
	component Component
	value     any
}

func (op *setOp) apply(world *World, resolved map[PlaceholderEntity]Entity) error {
	e, err := op.target.resolve(resolved)
	if err != nil {
		return err
	}
	return setComponentValue(e, op.component, op.value)
}

type removeOp struct {
	target    EntityRef
	component Component
}

func (op *removeOp) apply(world *World, resolved map[PlaceholderEntity]Entity) error {
	e, err := op.target.resolve(resolved)
	if err != nil {
		return err
	}
	if e == nil || !e.Valid() {
		return nil
	}
	return e.RemoveComponent(op.component)
}

type despawnOp struct {
	target EntityRef
}

func (op *despawnOp) apply(world *World, resolved map[PlaceholderEntity]Entity) error {
	e, err := op.target.resolve(resolved)
	if err != nil {
		return err
	}
	if e == nil || !e.Valid() {
		return nil
	}
	world.Despawn(e)
	return nil
}

// CommandBuffer records deferred operations against a World. A buffer is
// owned by one system between CommandBufferPool.Rent and Return/flush;
// recording is additionally mutex-guarded so shared use stays safe.
type CommandBuffer struct {
	mu        sync.Mutex
	systemID  int
	bufferID  uint32
	nextLocal int32
	ops       []bufferOp
}

func (cb *CommandBuffer) reset(bufferID uint32) {
	cb.bufferID = bufferID
	cb.nextLocal = 0
	cb.ops = nil
}

// Spawn records a new entity and returns its placeholder. name may be
// empty.
func (cb *CommandBuffer) Spawn(name string) PlaceholderEntity {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.nextLocal--
	ph := PlaceholderEntity{bufferID: cb.bufferID, local: cb.nextLocal}
	cb.ops = append(cb.ops, &spawnOp{placeholder: ph, name: name})
	return ph
}

// With attaches an initial component value to a placeholder recorded by
// this same buffer's Spawn call.
func (cb *CommandBuffer) With(ph PlaceholderEntity, c Component, value any) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	for _, op := range cb.ops {
		if s, ok := op.(*spawnOp); ok && s.placeholder == ph {
			s.values = append(s.values, componentValue{component: c, value: value})
			return nil
		}
	}
	return UnresolvedPlaceholderError{Placeholder: ph}
}

// Add records a component add against target, with value if non-nil.
func (cb *CommandBuffer) Add(target EntityRef, c Component, value any) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.ops = append(cb.ops, &addOp{target: target, component: c, value: value})
	return nil
}

// Set records overwriting an existing component's value on target.
func (cb *CommandBuffer) Set(target EntityRef, c Component, value any) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.ops = append(cb.ops, &setOp{target: target, component: c, value: value})
	return nil
}

// Remove records removing c from target.
func (cb *CommandBuffer) Remove(target EntityRef, c Component) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.ops = append(cb.ops, &removeOp{target: target, component: c})
	return nil
}

// Despawn records destroying target.
func (cb *CommandBuffer) Despawn(target EntityRef) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.ops = append(cb.ops, &despawnOp{target: target})
	return nil
}

// DespawnPlaceholder records destroying the entity a not-yet-materialised
// placeholder resolves to. Like every other op, it is applied at its
// position in this buffer's recorded order during flush; useful for
// commands generated generically without knowing ahead of time whether a
// spawn will be kept.
func (cb *CommandBuffer) DespawnPlaceholder(ph PlaceholderEntity) error {
	return cb.Despawn(RefPlaceholder(ph))
}

// CommandBufferPool hands out at most one CommandBuffer per system id per
// flush cycle and flushes them in deterministic ascending system-id order.
type CommandBufferPool struct {
	mu           sync.Mutex
	rented       map[int]*CommandBuffer
	free         map[int]*CommandBuffer
	nextBufferID uint32
}

// NewCommandBufferPool creates an empty pool.
func NewCommandBufferPool() *CommandBufferPool {
	return &CommandBufferPool{
		rented: make(map[int]*CommandBuffer),
		free:   make(map[int]*CommandBuffer),
	}
}

// Rent hands back systemID's buffer, recycling a previously returned
// instance if one exists. Renting an id already rented this cycle is a
// programmer error (RentConflictError), not a recoverable condition.
func (p *CommandBufferPool) Rent(systemID int) (*CommandBuffer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.rented[systemID]; ok {
		return nil, RentConflictError{SystemID: systemID}
	}

	cb, ok := p.free[systemID]
	if ok {
		delete(p.free, systemID)
	} else {
		cb = &CommandBuffer{systemID: systemID}
	}
	cb.reset(p.nextBufferID)
	p.nextBufferID++

	p.rented[systemID] = cb
	return cb, nil
}

// Return releases systemID's buffer back to the pool without flushing it.
// Its recorded ops are discarded; re-renting systemID reuses the instance.
func (p *CommandBufferPool) Return(systemID int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cb, ok := p.rented[systemID]
	if !ok {
		return
	}
	delete(p.rented, systemID)
	p.free[systemID] = cb
}

// FlushAll applies every currently rented buffer's operations against
// world, in ascending system-id order, and returns the accumulated
// placeholder->real entity map. Deterministic regardless of rent order.
func (p *CommandBufferPool) FlushAll(world *World) (map[PlaceholderEntity]Entity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ids := make([]int, 0, len(p.rented))
	for id := range p.rented {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	resolved := make(map[PlaceholderEntity]Entity)
	var errs []error
	for _, id := range ids {
		cb := p.rented[id]
		for _, op := range cb.ops {
			if err := op.apply(world, resolved); err != nil {
				errs = append(errs, err)
			}
		}
		delete(p.rented, id)
		p.free[id] = cb
	}
	return resolved, joinErrors(errs)
}

// FlushBatches flushes an explicit sequence of system-id batches. Within a
// batch, ascending system-id order; the entity map accumulates across
// batches, so batch N+1's commands may reference batch N's placeholders.
func (p *CommandBufferPool) FlushBatches(world *World, batches [][]int) (map[PlaceholderEntity]Entity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	resolved := make(map[PlaceholderEntity]Entity)
	var errs []error
	for _, batch := range batches {
		ids := append([]int{}, batch...)
		sort.Ints(ids)
		for _, id := range ids {
			cb, ok := p.rented[id]
			if !ok {
				continue
			}
			for _, op := range cb.ops {
				if err := op.apply(world, resolved); err != nil {
					errs = append(errs, err)
				}
			}
			delete(p.rented, id)
			p.free[id] = cb
		}
	}
	return resolved, joinErrors(errs)
}
