package warehouse

import "testing"

func TestRNGSeededDeterministic(t *testing.T) {
	a := NewSeededRNG(1, 2)
	b := NewSeededRNG(1, 2)

	for i := 0; i < 20; i++ {
		av := a.NextInt(1000)
		bv := b.NextInt(1000)
		if av != bv {
			t.Fatalf("draw %d diverged: %d != %d", i, av, bv)
		}
	}
}

func TestRNGDifferentSeedsDiverge(t *testing.T) {
	a := NewSeededRNG(1, 2)
	b := NewSeededRNG(3, 4)

	same := true
	for i := 0; i < 20; i++ {
		if a.NextInt(1_000_000) != b.NextInt(1_000_000) {
			same = false
			break
		}
	}
	if same {
		t.Fatalf("expected different seeds to diverge within 20 draws")
	}
}

func TestRNGIntRangeBounds(t *testing.T) {
	r := NewSeededRNG(7, 8)
	for i := 0; i < 200; i++ {
		v := r.NextIntRange(5, 10)
		if v < 5 || v > 10 {
			t.Fatalf("NextIntRange(5, 10) = %d, out of bounds", v)
		}
	}
}

func TestRNGFloatBounds(t *testing.T) {
	r := NewSeededRNG(1, 1)
	for i := 0; i < 200; i++ {
		v := r.NextFloat()
		if v < 0 || v >= 1 {
			t.Fatalf("NextFloat() = %v, out of [0,1)", v)
		}
	}
}

func TestRNGBoolPValidation(t *testing.T) {
	r := NewSeededRNG(1, 1)
	if _, err := r.NextBoolP(-0.1); err != ErrInvalidArgument {
		t.Errorf("NextBoolP(-0.1) err = %v, want ErrInvalidArgument", err)
	}
	if _, err := r.NextBoolP(1.1); err != ErrInvalidArgument {
		t.Errorf("NextBoolP(1.1) err = %v, want ErrInvalidArgument", err)
	}
	if _, err := r.NextBoolP(0.5); err != nil {
		t.Errorf("NextBoolP(0.5) err = %v, want nil", err)
	}
}

func TestRNGUnseededProducesValues(t *testing.T) {
	r := NewRNG()
	v := r.NextInt(100)
	if v < 0 || v >= 100 {
		t.Fatalf("NextInt(100) = %d, out of bounds", v)
	}
}
