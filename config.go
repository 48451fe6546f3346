package warehouse

import "github.com/TheBitDrifter/table"

// ValidationMode controls when component-add validation runs.
type ValidationMode int

const (
	// ValidationEnabled runs requires/conflicts/custom-predicate checks on every add.
	ValidationEnabled ValidationMode = iota
	// ValidationDebugOnly runs checks only in debug builds (see the debug build tag files debug_on.go/debug_off.go).
	ValidationDebugOnly
	// ValidationDisabled skips all validation checks.
	ValidationDisabled
)

// DefaultChunkCapacity is the per-chunk entity capacity used by archetype
// storage when a caller doesn't override it. A tunable, not a contract.
const DefaultChunkCapacity = 4096

// Config holds global configuration for the table system and the rest of
// the engine built on top of it.
var Config config = config{
	ValidationMode: ValidationEnabled,
}

type config struct {
	tableEvents    table.TableEvents
	ValidationMode ValidationMode
}

// SetTableEvents configures the table event callbacks
func (c *config) SetTableEvents(te table.TableEvents) {
	c.tableEvents = te
}

// SetValidationMode configures when component validation runs.
func (c *config) SetValidationMode(m ValidationMode) {
	c.ValidationMode = m
}
