package rtxp

import "testing"

func TestStashOrderPreserved(t *testing.T) {
	s := newStash(100)
	for i := 0; i < 5; i++ {
		s.push(i)
	}
	drained := s.drain()
	if len(drained) != 5 {
		t.Fatalf("len = %d, want 5", len(drained))
	}
	for i, v := range drained {
		if v.(int) != i {
			t.Errorf("drained[%d] = %v, want %d", i, v, i)
		}
	}
	if s.len() != 0 {
		t.Errorf("stash should be empty after drain, len=%d", s.len())
	}
}

func TestStashMinimumLimit(t *testing.T) {
	// spec.md §5: "design minimum 100".
	s := newStash(10)
	if s.limit != 100 {
		t.Errorf("limit = %d, want clamped to 100", s.limit)
	}
}

func TestStashDropsOldestWhenFull(t *testing.T) {
	s := newStash(100)
	for i := 0; i < 100; i++ {
		s.push(i)
	}
	dropped := s.push(100)
	if !dropped {
		t.Fatal("expected push on full stash to report dropped")
	}
	drained := s.drain()
	if len(drained) != 100 {
		t.Fatalf("len = %d, want 100", len(drained))
	}
	if drained[0].(int) != 1 {
		t.Errorf("oldest entry (0) should have been dropped, got first=%v", drained[0])
	}
	if drained[len(drained)-1].(int) != 100 {
		t.Errorf("newest entry should be last, got %v", drained[len(drained)-1])
	}
}
