package warehouse

import (
	"reflect"
	"sort"
	"sync"
)

// Phase names a fixed scheduling bucket run in order every tick.
type Phase string

const (
	EarlyUpdate Phase = "EarlyUpdate"
	FixedUpdate Phase = "FixedUpdate"
	Update      Phase = "Update"
	LateUpdate  Phase = "LateUpdate"
	Render      Phase = "Render"
	PostRender  Phase = "PostRender"
)

var phaseOrder = []Phase{EarlyUpdate, FixedUpdate, Update, LateUpdate, Render, PostRender}

// System is one unit of per-tick logic. OnEnabled/OnDisabled are optional;
// implement them (type-asserted at the enable/disable call site) only if
// the transition itself matters.
type System interface {
	OnBeforeUpdate(dt float64)
	Update(dt float64) error
	OnAfterUpdate(dt float64)
}

// EnableHook is implemented by systems that need to react to being
// re-enabled after DisableSystem.
type EnableHook interface {
	OnEnabled()
}

// DisableHook is implemented by systems that need to react to being
// disabled via DisableSystem.
type DisableHook interface {
	OnDisabled()
}

// ComponentDependencies declares the component types a system reads and
// writes, used to detect conflicts between systems considered for
// parallel execution within the same phase. A system with no declared
// dependencies is treated as conflicting with everything (the conservative
// default: never parallelised against).
type ComponentDependencies struct {
	Reads  []Component
	Writes []Component
}

// SystemOptions configures a system's place in the schedule.
type SystemOptions struct {
	Phase      Phase
	Order      int
	RunsBefore []reflect.Type
	RunsAfter  []reflect.Type
	Deps       ComponentDependencies
}

// SystemGroup is an ordered, named composite of systems registered and
// scheduled as one unit sharing the same SystemOptions.
type SystemGroup struct {
	Name    string
	Systems []System
}

type systemEntry struct {
	system     System
	typ        reflect.Type
	phase      Phase
	order      int
	runsBefore []reflect.Type
	runsAfter  []reflect.Type
	deps       ComponentDependencies
	enabled    bool
	insertion  int64
}

// Scheduler orders and runs systems per phase: topologically by
// RunsBefore/RunsAfter (tie-broken by Order then insertion), optionally
// batching non-conflicting systems within a phase to run concurrently.
type Scheduler struct {
	mu      sync.Mutex
	entries []*systemEntry
	seq     int64
}

// NewScheduler creates an empty Scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// AddSystem registers sys under opts. Systems default to enabled.
func (s *Scheduler) AddSystem(sys System, opts SystemOptions) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.entries = append(s.entries, &systemEntry{
		system:     sys,
		typ:        reflect.TypeOf(sys),
		phase:      opts.Phase,
		order:      opts.Order,
		runsBefore: opts.RunsBefore,
		runsAfter:  opts.RunsAfter,
		deps:       opts.Deps,
		enabled:    true,
		insertion:  s.seq,
	})
}

// AddSystemGroup registers every system in group under the same opts,
// preserving the group's internal ordering via successive insertion
// sequence numbers.
func (s *Scheduler) AddSystemGroup(group *SystemGroup, opts SystemOptions) {
	for _, sys := range group.Systems {
		s.AddSystem(sys, opts)
	}
}

func (s *Scheduler) find(t reflect.Type) *systemEntry {
	for _, e := range s.entries {
		if e.typ == t {
			return e
		}
	}
	return nil
}

// EnableSystem enables the registered system of type T, firing OnEnabled
// if it implements EnableHook and was previously disabled. Returns false
// if no system of type T is registered.
func EnableSystem[T System](s *Scheduler) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := reflect.TypeOf((*T)(nil)).Elem()
	e := s.find(t)
	if e == nil {
		return false
	}
	if !e.enabled {
		e.enabled = true
		if hook, ok := e.system.(EnableHook); ok {
			hook.OnEnabled()
		}
	}
	return true
}

// DisableSystem disables the registered system of type T, firing
// OnDisabled if it implements DisableHook and was previously enabled.
func DisableSystem[T System](s *Scheduler) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := reflect.TypeOf((*T)(nil)).Elem()
	e := s.find(t)
	if e == nil {
		return false
	}
	if e.enabled {
		e.enabled = false
		if hook, ok := e.system.(DisableHook); ok {
			hook.OnDisabled()
		}
	}
	return true
}

// GetSystem returns the registered system of type T, if any.
func GetSystem[T System](s *Scheduler) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var zero T
	t := reflect.TypeOf((*T)(nil)).Elem()
	e := s.find(t)
	if e == nil {
		return zero, false
	}
	typed, ok := e.system.(T)
	return typed, ok
}

// Update runs every phase in order.
func (s *Scheduler) Update(dt float64) error {
	for _, phase := range phaseOrder {
		if err := s.runPhase(phase, dt); err != nil {
			return err
		}
	}
	return nil
}

// FixedUpdate runs only the FixedUpdate phase.
func (s *Scheduler) FixedUpdate(dt float64) error {
	return s.runPhase(FixedUpdate, dt)
}

func (s *Scheduler) runPhase(phase Phase, dt float64) error {
	s.mu.Lock()
	var inPhase []*systemEntry
	for _, e := range s.entries {
		if e.phase == phase {
			inPhase = append(inPhase, e)
		}
	}
	sorted, err := topoSort(phase, inPhase)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	for _, batch := range batchByConflict(sorted) {
		if len(batch) == 1 {
			if err := runEntry(batch[0], dt); err != nil {
				return err
			}
			continue
		}
		var wg sync.WaitGroup
		errs := make([]error, len(batch))
		for i, e := range batch {
			wg.Add(1)
			go func(i int, e *systemEntry) {
				defer wg.Done()
				errs[i] = runEntry(e, dt)
			}(i, e)
		}
		wg.Wait()
		if err := joinErrors(errs); err != nil {
			return err
		}
	}
	return nil
}

func runEntry(e *systemEntry, dt float64) error {
	if !e.enabled {
		return nil
	}
	e.system.OnBeforeUpdate(dt)
	if err := e.system.Update(dt); err != nil {
		return err
	}
	e.system.OnAfterUpdate(dt)
	return nil
}

// topoSort orders entries within a single phase via Kahn's algorithm:
// edge A->B when A.runsBefore includes B's type or B.runsAfter includes
// A's type; constraints naming a type absent from the phase are ignored,
// and a system naming its own type is reported as a cycle.
// Ties among ready nodes break by Order ascending, then insertion order.
func topoSort(phase Phase, entries []*systemEntry) ([]*systemEntry, error) {
	present := make(map[reflect.Type]*systemEntry, len(entries))
	for _, e := range entries {
		present[e.typ] = e
	}

	edges := make(map[*systemEntry][]*systemEntry)
	indegree := make(map[*systemEntry]int)
	for _, e := range entries {
		indegree[e] = 0
	}
	addEdge := func(from, to *systemEntry) {
		edges[from] = append(edges[from], to)
		indegree[to]++
	}
	for _, e := range entries {
		for _, t := range e.runsBefore {
			if target, ok := present[t]; ok {
				if target == e {
					return nil, CycleError{Phase: phase, Path: []string{e.typ.String()}}
				}
				addEdge(e, target)
			}
		}
		for _, t := range e.runsAfter {
			if source, ok := present[t]; ok {
				if source == e {
					return nil, CycleError{Phase: phase, Path: []string{e.typ.String()}}
				}
				addEdge(source, e)
			}
		}
	}

	ready := make([]*systemEntry, 0, len(entries))
	for _, e := range entries {
		if indegree[e] == 0 {
			ready = append(ready, e)
		}
	}
	sortReady := func() {
		sort.Slice(ready, func(i, j int) bool {
			if ready[i].order != ready[j].order {
				return ready[i].order < ready[j].order
			}
			return ready[i].insertion < ready[j].insertion
		})
	}

	var sorted []*systemEntry
	for len(ready) > 0 {
		sortReady()
		n := ready[0]
		ready = ready[1:]
		sorted = append(sorted, n)
		for _, next := range edges[n] {
			indegree[next]--
			if indegree[next] == 0 {
				ready = append(ready, next)
			}
		}
	}

	if len(sorted) < len(entries) {
		var path []string
		for _, e := range entries {
			if indegree[e] > 0 {
				path = append(path, e.typ.String())
			}
		}
		return nil, CycleError{Phase: phase, Path: path}
	}
	return sorted, nil
}

// batchByConflict groups a topologically sorted entry list into batches
// safe to run concurrently: a system joins the current batch only if it
// shares no read/write conflict and no ordering edge with every system
// already in it. A system declaring no dependencies conflicts with
// everything and always starts (and ends) its own batch.
func batchByConflict(sorted []*systemEntry) [][]*systemEntry {
	var batches [][]*systemEntry
	var current []*systemEntry

	for _, e := range sorted {
		if len(current) == 0 {
			current = []*systemEntry{e}
			continue
		}
		if canJoin(e, current) {
			current = append(current, e)
			continue
		}
		batches = append(batches, current)
		current = []*systemEntry{e}
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}

func canJoin(candidate *systemEntry, batch []*systemEntry) bool {
	if len(candidate.deps.Reads) == 0 && len(candidate.deps.Writes) == 0 {
		return false
	}
	for _, member := range batch {
		if len(member.deps.Reads) == 0 && len(member.deps.Writes) == 0 {
			return false
		}
		if conflicts(candidate, member) {
			return false
		}
		if ordered(candidate, member) {
			return false
		}
	}
	return true
}

// ordered reports whether a and b carry an explicit RunsBefore/RunsAfter
// edge between them in either direction. Such a pair must never land in
// the same parallel batch even when their declared Reads/Writes don't
// conflict: the topological sort already places them correctly relative
// to each other, and running them concurrently would discard that order.
func ordered(a, b *systemEntry) bool {
	for _, t := range a.runsBefore {
		if t == b.typ {
			return true
		}
	}
	for _, t := range a.runsAfter {
		if t == b.typ {
			return true
		}
	}
	for _, t := range b.runsBefore {
		if t == a.typ {
			return true
		}
	}
	for _, t := range b.runsAfter {
		if t == a.typ {
			return true
		}
	}
	return false
}

func conflicts(a, b *systemEntry) bool {
	return anyShared(a.deps.Writes, b.deps.Writes) ||
		anyShared(a.deps.Reads, b.deps.Writes) ||
		anyShared(a.deps.Writes, b.deps.Reads)
}

func anyShared(a, b []Component) bool {
	for _, ca := range a {
		for _, cb := range b {
			if ca.ID() == cb.ID() {
				return true
			}
		}
	}
	return false
}
