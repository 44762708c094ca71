package entropy

import "testing"

func TestSeededDeterminism(t *testing.T) {
	a := NewSeeded(42)
	b := NewSeeded(42)
	for i := 0; i < 100; i++ {
		va, vb := a.Float(), b.Float()
		if va != vb {
			t.Fatalf("streams diverged at %d: %v != %v", i, va, vb)
		}
		if va < 0 || va >= 1 {
			t.Fatalf("value %v outside [0, 1)", va)
		}
	}

	c, d := NewSeeded(42), NewSeeded(43)
	same := true
	for i := 0; i < 10; i++ {
		if c.Float() != d.Float() {
			same = false
		}
	}
	if same {
		t.Error("different seeds produced identical streams")
	}
}

func TestRandomSeed(t *testing.T) {
	seen := map[int64]bool{}
	for i := 0; i < 10; i++ {
		s := RandomSeed()
		if s <= 0 {
			t.Fatalf("seed %d not positive", s)
		}
		seen[s] = true
	}
	if len(seen) < 2 {
		t.Error("seeds suspiciously repetitive")
	}
}
