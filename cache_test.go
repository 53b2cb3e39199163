package blockfile

import "testing"

func TestRecordCache(t *testing.T) {
	c := newRecordCache()

	c.Push(1, []byte("hello"), 10)
	c.Push(2, []byte("world"), 10)

	if _, ok := c.Get(1); !ok {
		t.Fatal("expected index 1 to be cached")
	}

	// Pushing a third entry should evict the oldest (index 1) to respect
	// the byte budget.
	c.Push(3, []byte("again"), 10)
	if _, ok := c.Get(1); ok {
		t.Fatal("expected index 1 to be evicted")
	}
	if _, ok := c.Get(2); !ok {
		t.Fatal("expected index 2 to remain cached")
	}

	c.Remove(2)
	if _, ok := c.Get(2); ok {
		t.Fatal("expected index 2 to be removed")
	}
}
