package warehouse

import (
	"fmt"
	"sync"
)

// ValidationPredicate is a custom, component-specific check run in addition
// to the requires/conflicts lists. It receives the entity's full component
// set as it will be immediately after the add being validated. entity is
// nil when the check runs for a builder commit, before the entity exists.
type ValidationPredicate func(entity Entity, components []Component) error

// ConstraintProvider resolves a component's validation rules on first use.
// Returning nil predicate means "no custom check". A World is free to leave
// this unset, in which case no component has any constraint and every add
// passes.
type ConstraintProvider func(c Component) (requires, conflicts []Component, predicate ValidationPredicate)

type resolvedConstraint struct {
	requires  []Component
	conflicts []Component
	predicate ValidationPredicate
}

// ValidationManager enforces per-component requires/conflicts/predicate
// rules at every add path (direct and enqueued), resolving and caching each
// component's constraints on first use via its ConstraintProvider -- the
// same register-once-then-lookup shape as Cache and componentRegistry.
type ValidationManager struct {
	mu       sync.RWMutex
	provider ConstraintProvider
	resolved map[uint32]resolvedConstraint
	mode     ValidationMode
}

// NewValidationManager creates a ValidationManager backed by provider. A nil
// provider is valid: every component then resolves to no constraints, and
// only the mode gate (Config.ValidationMode, or the mode passed in) applies.
func NewValidationManager(provider ConstraintProvider) *ValidationManager {
	return &ValidationManager{
		provider: provider,
		resolved: make(map[uint32]resolvedConstraint),
		mode:     Config.ValidationMode,
	}
}

// SetMode overrides the manager's validation mode independent of the
// package-level Config default.
func (vm *ValidationManager) SetMode(mode ValidationMode) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.mode = mode
}

func (vm *ValidationManager) active() bool {
	vm.mu.RLock()
	mode := vm.mode
	vm.mu.RUnlock()

	switch mode {
	case ValidationDisabled:
		return false
	case ValidationDebugOnly:
		return isDebugBuild
	default:
		return true
	}
}

func (vm *ValidationManager) resolve(c Component) resolvedConstraint {
	vm.mu.RLock()
	rc, ok := vm.resolved[uint32(c.ID())]
	vm.mu.RUnlock()
	if ok {
		return rc
	}

	vm.mu.Lock()
	defer vm.mu.Unlock()
	if rc, ok := vm.resolved[uint32(c.ID())]; ok {
		return rc
	}

	if vm.provider != nil {
		requires, conflicts, predicate := vm.provider(c)
		rc = resolvedConstraint{requires: requires, conflicts: conflicts, predicate: predicate}
	}
	vm.resolved[uint32(c.ID())] = rc
	return rc
}

// Validate checks that adding c to entity (whose component set, including
// c, is given by components) satisfies c's resolved requires/conflicts and
// custom predicate. A nil ValidationManager always passes; callers should
// skip the call entirely rather than rely on that, since a nil receiver
// method call is itself a needless indirection on the hot add path.
func (vm *ValidationManager) Validate(entity Entity, c Component, components []Component) error {
	if vm == nil || !vm.active() {
		return nil
	}

	rc := vm.resolve(c)

	for _, req := range rc.requires {
		if !hasComponent(components, req) {
			return ValidationError{
				Entity:    entity,
				Component: c,
				Reason:    fmt.Sprintf("requires %T", req),
			}
		}
	}

	for _, conf := range rc.conflicts {
		if hasComponent(components, conf) {
			return ValidationError{
				Entity:    entity,
				Component: c,
				Reason:    fmt.Sprintf("conflicts with %T", conf),
			}
		}
	}

	if rc.predicate != nil {
		if err := rc.predicate(entity, components); err != nil {
			return ValidationError{Entity: entity, Component: c, Reason: err.Error()}
		}
	}

	return nil
}

func hasComponent(components []Component, c Component) bool {
	for _, comp := range components {
		if comp.ID() == c.ID() {
			return true
		}
	}
	return false
}
