// Copyright 2019 Vedran Vuk. All rights reserved.
// Use of this source code is governed by a MIT
// license that can be found in the LICENSE file.

package blockfile

// Stack is a last-in-first-out container backed by a List. Items are
// opaque byte payloads - callers are responsible for encoding whatever
// value type they need into bytes before Push and decoding it back after
// Pop.
type Stack struct {
	list *List
}

// OpenStack opens a Stack backed by store.
func OpenStack(store *BlockStorage) (*Stack, error) {
	list, err := OpenList(store)
	if err != nil {
		return nil, err
	}
	return &Stack{list: list}, nil
}

// Push adds data to the top of the stack.
func (s *Stack) Push(data []byte) error {
	_, err := s.list.InsertEnd(data)
	return err
}

// Pop removes and returns the item at the top of the stack. ok is false if
// the stack is empty.
func (s *Stack) Pop() (data []byte, ok bool, err error) {
	index, present := s.list.LastNode()
	if !present {
		return nil, false, nil
	}
	data, err = s.list.GetNodeData(index)
	if err != nil {
		return nil, false, err
	}
	if err := s.list.Remove(index); err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Len returns the number of items in the stack.
func (s *Stack) Len() int64 {
	return s.list.Count()
}

// IsEmpty reports whether the stack holds no items.
func (s *Stack) IsEmpty() bool {
	return s.list.IsEmpty()
}

// WastedBytes reports free-list bytes reclaimable by Compact.
func (s *Stack) WastedBytes() (int64, error) {
	return s.list.WastedBytes()
}

// WastedRatio reports the fraction of allocated space that is currently
// wasted, a real number in [0,1].
func (s *Stack) WastedRatio() float64 {
	return s.list.WastedRatio()
}

// Compact rebuilds the stack's backing file at path, dropping free-list
// waste.
func (s *Stack) Compact(path string, options *Options) error {
	return s.list.Compact(path, options)
}
