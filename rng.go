package warehouse

import (
	"math/rand/v2"
	"time"
)

// RNG is a per-world seeded PRNG facade over math/rand/v2's PCG source.
// Identical seeds produce identical sequences; RNG carries no process-wide
// state, so two Worlds never interfere with each other's draws.
type RNG struct {
	rnd *rand.Rand
}

// NewRNG seeds from the current time, for unseeded/"don't care" worlds.
func NewRNG() *RNG {
	return NewSeededRNG(time.Now().UnixNano(), time.Now().UnixNano())
}

// NewSeededRNG seeds deterministically; the same (seed1, seed2) pair always
// produces the same draw sequence.
func NewSeededRNG(seed1, seed2 int64) *RNG {
	return &RNG{rnd: rand.New(rand.NewPCG(uint64(seed1), uint64(seed2)))}
}

// NextInt returns a value in [0, bound).
func (r *RNG) NextInt(bound int) int {
	return r.rnd.IntN(bound)
}

// NextIntRange returns a value in [min, max].
func (r *RNG) NextIntRange(min, max int) int {
	return min + r.rnd.IntN(max-min+1)
}

// NextFloat returns a value in the half-open range [0, 1).
func (r *RNG) NextFloat() float64 {
	return r.rnd.Float64()
}

// NextDouble is an alias for NextFloat, matching callers that distinguish
// float/double in the source domain.
func (r *RNG) NextDouble() float64 {
	return r.rnd.Float64()
}

// NextBool returns true with 50% probability.
func (r *RNG) NextBool() bool {
	return r.rnd.Float64() < 0.5
}

// NextBoolP returns true with probability p. p must lie in [0, 1].
func (r *RNG) NextBoolP(p float64) (bool, error) {
	if p < 0 || p > 1 {
		return false, ErrInvalidArgument
	}
	return r.rnd.Float64() < p, nil
}
