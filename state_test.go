package buddy

import "testing"

func TestBitvectorGetSetDefaultsUnused(t *testing.T) {
	words := make([]uint32, RequiredWords(31))
	bv, err := NewBitvector(words, 31)
	if err != nil {
		t.Fatalf("NewBitvector: %v", err)
	}

	indices := []int{0, 15, 16, 30}
	for _, i := range indices {
		if got := bv.Get(i); got != Unused {
			t.Fatalf("cell %d should start Unused, got %v", i, got)
		}
	}

	for _, i := range indices {
		bv.Set(i, Full)
		if got := bv.Get(i); got != Full {
			t.Fatalf("cell %d should be Full after Set, got %v", i, got)
		}
	}

	// neighboring cells in the same word must be unaffected
	for _, i := range []int{1, 14, 17, 29} {
		if got := bv.Get(i); got != Unused {
			t.Fatalf("cell %d should remain Unused, got %v", i, got)
		}
	}
}

func TestBitvectorSetOverwrites(t *testing.T) {
	words := make([]uint32, RequiredWords(3))
	bv, err := NewBitvector(words, 3)
	if err != nil {
		t.Fatalf("NewBitvector: %v", err)
	}

	bv.Set(0, Split)
	bv.Set(0, Used)
	if got := bv.Get(0); got != Used {
		t.Fatalf("expected Used after overwrite, got %v", got)
	}
}

func TestBitvectorZero(t *testing.T) {
	words := make([]uint32, RequiredWords(20))
	bv, err := NewBitvector(words, 20)
	if err != nil {
		t.Fatalf("NewBitvector: %v", err)
	}
	for i := 0; i < 20; i++ {
		bv.Set(i, Full)
	}
	bv.Zero()
	for i := 0; i < 20; i++ {
		if got := bv.Get(i); got != Unused {
			t.Fatalf("cell %d should be Unused after Zero, got %v", i, got)
		}
	}
}

func TestNewBitvectorRejectsUndersizedStorage(t *testing.T) {
	words := make([]uint32, 1)
	if _, err := NewBitvector(words, 1000); err == nil {
		t.Fatalf("expected error for undersized storage")
	}
}

func TestRequiredWords(t *testing.T) {
	cases := []struct {
		cells int
		words int
	}{
		{1, 1},
		{16, 1},
		{17, 2},
		{32, 2},
		{33, 3},
	}
	for _, c := range cases {
		if got := RequiredWords(c.cells); got != c.words {
			t.Fatalf("RequiredWords(%d) = %d, want %d", c.cells, got, c.words)
		}
	}
}

func TestNodeStateString(t *testing.T) {
	cases := map[NodeState]string{
		Unused: "Unused",
		Used:   "Used",
		Split:  "Split",
		Full:   "Full",
	}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Fatalf("%d.String() = %q, want %q", s, got, want)
		}
	}
}
