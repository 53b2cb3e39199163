package blockfile

import (
	"bytes"
	"path/filepath"
	"testing"
)

func newTestList(t *testing.T) *List {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.list")
	options := NewOptions()
	options.FrameSize = 64
	store, err := Create(path, options)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	list, err := OpenList(store)
	if err != nil {
		t.Fatal(err)
	}
	return list
}

func TestListInsertEndOrder(t *testing.T) {
	l := newTestList(t)

	i1, err := l.InsertEnd([]byte("a"))
	if err != nil {
		t.Fatal(err)
	}
	i2, err := l.InsertEnd([]byte("b"))
	if err != nil {
		t.Fatal(err)
	}
	i3, err := l.InsertEnd([]byte("c"))
	if err != nil {
		t.Fatal(err)
	}

	if l.Count() != 3 {
		t.Fatalf("want count 3, got %d", l.Count())
	}

	first, _ := l.FirstNode()
	last, _ := l.LastNode()
	if first != i1 {
		t.Fatalf("want first node %d, got %d", i1, first)
	}
	if last != i3 {
		t.Fatalf("want last node %d, got %d", i3, last)
	}

	var order []int64
	if err := l.Iter(func(index int64, data []byte) bool {
		order = append(order, index)
		return true
	}); err != nil {
		t.Fatal(err)
	}
	want := []int64{i1, i2, i3}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("want order %v, got %v", want, order)
		}
	}
}

func TestListInsertStartOrder(t *testing.T) {
	l := newTestList(t)

	i1, _ := l.InsertStart([]byte("a"))
	i2, _ := l.InsertStart([]byte("b"))
	i3, _ := l.InsertStart([]byte("c"))

	first, _ := l.FirstNode()
	last, _ := l.LastNode()
	if first != i3 {
		t.Fatalf("want first node %d, got %d", i3, first)
	}
	if last != i1 {
		t.Fatalf("want last node %d, got %d", i1, last)
	}
	_ = i2
}

func TestListInsertBeforeAfter(t *testing.T) {
	l := newTestList(t)

	mid, err := l.InsertEnd([]byte("mid"))
	if err != nil {
		t.Fatal(err)
	}
	before, err := l.InsertBefore(mid, []byte("before"))
	if err != nil {
		t.Fatal(err)
	}
	after, err := l.InsertAfter(mid, []byte("after"))
	if err != nil {
		t.Fatal(err)
	}

	first, _ := l.FirstNode()
	last, _ := l.LastNode()
	if first != before {
		t.Fatalf("want first %d, got %d", before, first)
	}
	if last != after {
		t.Fatalf("want last %d, got %d", after, last)
	}
	if l.Count() != 3 {
		t.Fatalf("want count 3, got %d", l.Count())
	}
}

func TestListRemoveMiddle(t *testing.T) {
	l := newTestList(t)

	i1, _ := l.InsertEnd([]byte("a"))
	i2, _ := l.InsertEnd([]byte("b"))
	i3, _ := l.InsertEnd([]byte("c"))

	if err := l.Remove(i2); err != nil {
		t.Fatal(err)
	}
	if l.Count() != 2 {
		t.Fatalf("want count 2, got %d", l.Count())
	}

	var order []int64
	_ = l.Iter(func(index int64, data []byte) bool {
		order = append(order, index)
		return true
	})
	if len(order) != 2 || order[0] != i1 || order[1] != i3 {
		t.Fatalf("want [%d %d], got %v", i1, i3, order)
	}
}

func TestListRemoveAllNodes(t *testing.T) {
	l := newTestList(t)

	i1, _ := l.InsertEnd([]byte("a"))
	i2, _ := l.InsertEnd([]byte("b"))

	if err := l.Remove(i1); err != nil {
		t.Fatal(err)
	}
	if err := l.Remove(i2); err != nil {
		t.Fatal(err)
	}
	if !l.IsEmpty() {
		t.Fatal("expected list to be empty")
	}
	if _, ok := l.FirstNode(); ok {
		t.Fatal("expected no first node")
	}
	if _, ok := l.LastNode(); ok {
		t.Fatal("expected no last node")
	}
}

func TestListGetNodeData(t *testing.T) {
	l := newTestList(t)

	want := []byte("payload")
	index, err := l.InsertEnd(want)
	if err != nil {
		t.Fatal(err)
	}
	got, err := l.GetNodeData(index)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("want %q, got %q", want, got)
	}
}

func TestListWastedRatioEmptyList(t *testing.T) {
	l := newTestList(t)
	if ratio := l.WastedRatio(); ratio != 0 {
		t.Fatalf("want wasted ratio 0 for a fresh list, got %v", ratio)
	}
}

func TestListCompactReclaimsSpace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.list")
	options := NewOptions()
	options.FrameSize = 64
	store, err := Create(path, options)
	if err != nil {
		t.Fatal(err)
	}
	l, err := OpenList(store)
	if err != nil {
		t.Fatal(err)
	}

	i1, _ := l.InsertEnd([]byte("msg one"))
	_, _ = l.InsertEnd([]byte("msg two"))
	i3, _ := l.InsertEnd([]byte("msg three"))

	if err := l.Remove(i1); err != nil {
		t.Fatal(err)
	}

	wasted, err := l.WastedBytes()
	if err != nil {
		t.Fatal(err)
	}
	if wasted <= 0 {
		t.Fatal("expected wasted bytes after remove")
	}
	if ratio := l.WastedRatio(); ratio <= 0 || ratio > 1 {
		t.Fatalf("want wasted ratio in (0,1] after remove, got %v", ratio)
	}

	if err := l.Compact(path, options); err != nil {
		t.Fatal(err)
	}

	wastedAfter, err := l.WastedBytes()
	if err != nil {
		t.Fatal(err)
	}
	if wastedAfter != 0 {
		t.Fatalf("expected no waste after compact, got %d", wastedAfter)
	}
	if ratio := l.WastedRatio(); ratio != 0 {
		t.Fatalf("want wasted ratio 0 after compact, got %v", ratio)
	}
	if l.Count() != 2 {
		t.Fatalf("want count 2 after compact, got %d", l.Count())
	}

	var payloads [][]byte
	_ = l.Iter(func(_ int64, data []byte) bool {
		payloads = append(payloads, append([]byte(nil), data...))
		return true
	})
	if len(payloads) != 2 || string(payloads[1]) != "msg three" {
		t.Fatalf("unexpected payloads after compact: %v", payloads)
	}
	_ = i3
}
