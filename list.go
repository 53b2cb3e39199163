// Copyright 2019 Vedran Vuk. All rights reserved.
// Use of this source code is governed by a MIT
// license that can be found in the LICENSE file.

package blockfile

import (
	"os"
)

// List is a persistent doubly-linked list of byte payloads, built on top
// of a BlockStorage. Nodes are addressed by the block storage index of
// their record, which callers may retain across process restarts.
type List struct {
	store  *BlockStorage
	header *listHeader
}

// OpenList opens a List backed by store, initializing a fresh list header
// if store is empty.
func OpenList(store *BlockStorage) (*List, error) {
	l := &List{store: store}
	if store.IsEmpty() {
		l.header = &listHeader{}
		data, err := marshalListHeader(l.header)
		if err != nil {
			return nil, err
		}
		index, err := store.CreateRecord(data)
		if err != nil {
			return nil, err
		}
		if index != listHeaderIndex {
			return nil, ErrInvariant.Errorf("list header created at unexpected index %d", index)
		}
		return l, nil
	}
	if err := l.reloadHeader(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *List) reloadHeader() error {
	data, err := l.store.Read(listHeaderIndex)
	if err != nil {
		return err
	}
	header, err := unmarshalListHeader(data)
	if err != nil {
		return err
	}
	l.header = header
	return nil
}

// saveHeader persists the list header and flushes, the finalization step
// shared by every mutating List operation (spec.md §4.3: "save
// list-header; ...; flush").
func (l *List) saveHeader() error {
	data, err := marshalListHeader(l.header)
	if err != nil {
		return err
	}
	if err := l.store.Update(listHeaderIndex, data); err != nil {
		return err
	}
	return l.store.Sync()
}

// Store returns the BlockStorage backing this list, for callers (such as
// KeyValue) that need to allocate records outside the list's node chain.
func (l *List) Store() *BlockStorage {
	return l.store
}

// Count returns the number of elements in the list.
func (l *List) Count() int64 {
	return int64(l.header.ElementCount)
}

// IsEmpty reports whether the list has no elements.
func (l *List) IsEmpty() bool {
	return l.header.ElementCount == 0
}

// FirstNode returns the index of the first node, or ok=false if the list
// is empty.
func (l *List) FirstNode() (index int64, ok bool) {
	if l.header.FirstNode == 0 {
		return 0, false
	}
	return int64(l.header.FirstNode), true
}

// LastNode returns the index of the last node, or ok=false if the list is
// empty.
func (l *List) LastNode() (index int64, ok bool) {
	if l.header.LastNode == 0 {
		return 0, false
	}
	return int64(l.header.LastNode), true
}

// loadNode reads the node and payload at index.
func (l *List) loadNode(index int64) (*node, []byte, error) {
	record, err := l.store.Read(index)
	if err != nil {
		return nil, nil, err
	}
	return unmarshalNode(record)
}

// GetNodeData returns the payload stored at index.
func (l *List) GetNodeData(index int64) ([]byte, error) {
	_, data, err := l.loadNode(index)
	return data, err
}

func (l *List) saveNode(index int64, n *node, data []byte) error {
	record, err := marshalNode(n, data)
	if err != nil {
		return err
	}
	return l.store.Update(index, record)
}

// InsertStart inserts data as the new first element of the list.
func (l *List) InsertStart(data []byte) (int64, error) {
	n := &node{}
	record, err := marshalNode(n, data)
	if err != nil {
		return 0, err
	}
	index, err := l.store.CreateRecord(record)
	if err != nil {
		return 0, err
	}
	if first, ok := l.FirstNode(); ok {
		firstNode, firstData, err := l.loadNode(first)
		if err != nil {
			return 0, err
		}
		firstNode.PrevPtr = uint64(index)
		if err := l.saveNode(first, firstNode, firstData); err != nil {
			return 0, err
		}
		n.NextPtr = uint64(first)
		if err := l.saveNode(index, n, data); err != nil {
			return 0, err
		}
	}
	l.header.FirstNode = uint64(index)
	if l.header.LastNode == 0 {
		l.header.LastNode = uint64(index)
	}
	l.header.ElementCount++
	l.bumpAllocatorCursor(index, len(record))
	if err := l.saveHeader(); err != nil {
		return 0, err
	}
	return index, nil
}

// InsertEnd inserts data as the new last element of the list.
func (l *List) InsertEnd(data []byte) (int64, error) {
	n := &node{}
	record, err := marshalNode(n, data)
	if err != nil {
		return 0, err
	}
	index, err := l.store.CreateRecord(record)
	if err != nil {
		return 0, err
	}
	if last, ok := l.LastNode(); ok {
		lastNode, lastData, err := l.loadNode(last)
		if err != nil {
			return 0, err
		}
		lastNode.NextPtr = uint64(index)
		if err := l.saveNode(last, lastNode, lastData); err != nil {
			return 0, err
		}
		n.PrevPtr = uint64(last)
		if err := l.saveNode(index, n, data); err != nil {
			return 0, err
		}
	}
	l.header.LastNode = uint64(index)
	if l.header.FirstNode == 0 {
		l.header.FirstNode = uint64(index)
	}
	l.header.ElementCount++
	l.bumpAllocatorCursor(index, len(record))
	if err := l.saveHeader(); err != nil {
		return 0, err
	}
	return index, nil
}

// InsertBefore inserts data immediately before the node at at.
func (l *List) InsertBefore(at int64, data []byte) (int64, error) {
	atNode, atData, err := l.loadNode(at)
	if err != nil {
		return 0, err
	}
	if atNode.PrevPtr == 0 {
		return l.InsertStart(data)
	}
	n := &node{PrevPtr: atNode.PrevPtr, NextPtr: uint64(at)}
	record, err := marshalNode(n, data)
	if err != nil {
		return 0, err
	}
	index, err := l.store.CreateRecord(record)
	if err != nil {
		return 0, err
	}
	prevNode, prevData, err := l.loadNode(int64(atNode.PrevPtr))
	if err != nil {
		return 0, err
	}
	prevNode.NextPtr = uint64(index)
	if err := l.saveNode(int64(atNode.PrevPtr), prevNode, prevData); err != nil {
		return 0, err
	}
	atNode.PrevPtr = uint64(index)
	if err := l.saveNode(at, atNode, atData); err != nil {
		return 0, err
	}
	l.header.ElementCount++
	l.bumpAllocatorCursor(index, len(record))
	if err := l.saveHeader(); err != nil {
		return 0, err
	}
	return index, nil
}

// InsertAfter inserts data immediately after the node at at.
func (l *List) InsertAfter(at int64, data []byte) (int64, error) {
	atNode, atData, err := l.loadNode(at)
	if err != nil {
		return 0, err
	}
	if atNode.NextPtr == 0 {
		return l.InsertEnd(data)
	}
	n := &node{NextPtr: atNode.NextPtr, PrevPtr: uint64(at)}
	record, err := marshalNode(n, data)
	if err != nil {
		return 0, err
	}
	index, err := l.store.CreateRecord(record)
	if err != nil {
		return 0, err
	}
	nextNode, nextData, err := l.loadNode(int64(atNode.NextPtr))
	if err != nil {
		return 0, err
	}
	nextNode.PrevPtr = uint64(index)
	if err := l.saveNode(int64(atNode.NextPtr), nextNode, nextData); err != nil {
		return 0, err
	}
	atNode.NextPtr = uint64(index)
	if err := l.saveNode(at, atNode, atData); err != nil {
		return 0, err
	}
	l.header.ElementCount++
	l.bumpAllocatorCursor(index, len(record))
	if err := l.saveHeader(); err != nil {
		return 0, err
	}
	return index, nil
}

// Remove unlinks and deletes the node at index.
func (l *List) Remove(index int64) error {
	n, data, err := l.loadNode(index)
	if err != nil {
		return err
	}
	switch {
	case n.PrevPtr != 0 && n.NextPtr != 0:
		prevNode, prevData, err := l.loadNode(int64(n.PrevPtr))
		if err != nil {
			return err
		}
		nextNode, nextData, err := l.loadNode(int64(n.NextPtr))
		if err != nil {
			return err
		}
		prevNode.NextPtr = n.NextPtr
		nextNode.PrevPtr = n.PrevPtr
		if err := l.saveNode(int64(n.PrevPtr), prevNode, prevData); err != nil {
			return err
		}
		if err := l.saveNode(int64(n.NextPtr), nextNode, nextData); err != nil {
			return err
		}
	case n.PrevPtr != 0:
		prevNode, prevData, err := l.loadNode(int64(n.PrevPtr))
		if err != nil {
			return err
		}
		prevNode.NextPtr = 0
		if err := l.saveNode(int64(n.PrevPtr), prevNode, prevData); err != nil {
			return err
		}
		l.header.LastNode = n.PrevPtr
	case n.NextPtr != 0:
		nextNode, nextData, err := l.loadNode(int64(n.NextPtr))
		if err != nil {
			return err
		}
		nextNode.PrevPtr = 0
		if err := l.saveNode(int64(n.NextPtr), nextNode, nextData); err != nil {
			return err
		}
		l.header.FirstNode = n.NextPtr
	default:
		l.header.FirstNode = 0
		l.header.LastNode = 0
	}
	if err := l.store.Delete(index); err != nil {
		return err
	}
	l.header.ElementCount--
	l.header.UnusedBytes += uint64(nodePrefixSize + len(data))
	return l.saveHeader()
}

// bumpAllocatorCursor advances the allocator cursor to the byte offset just
// past a new node's record (its head frame's offset plus recordSize) if that
// exceeds the current cursor.
func (l *List) bumpAllocatorCursor(index int64, recordSize int) {
	end := uint64(l.store.offsetOf(uint64(index))) + uint64(recordSize)
	if end > l.header.AllocatorCursor {
		l.header.AllocatorCursor = end
	}
}

// Iter calls fn for every node in order from first to last, stopping early
// if fn returns false.
func (l *List) Iter(fn func(index int64, data []byte) bool) error {
	index, ok := l.FirstNode()
	for ok {
		n, data, err := l.loadNode(index)
		if err != nil {
			return err
		}
		if !fn(index, data) {
			return nil
		}
		if n.NextPtr == 0 {
			break
		}
		index = int64(n.NextPtr)
	}
	return nil
}

// WastedBytes reports the number of bytes sitting in the free list,
// reclaimable by Compact.
func (l *List) WastedBytes() (int64, error) {
	return l.store.WastedBytes()
}

// WastedRatio reports spec.md §4.3's wasted_file_space(): the accumulated
// UnusedBytes from removed nodes divided by the AllocatorCursor high-water
// mark, a real number in [0,1]. Returns 0 if AllocatorCursor is still 0 (an
// empty list that has never had a node created).
func (l *List) WastedRatio() float64 {
	if l.header.AllocatorCursor == 0 {
		return 0
	}
	return float64(l.header.UnusedBytes) / float64(l.header.AllocatorCursor)
}

// Compact rewrites the list to a fresh file at path, preserving element
// order and dropping free-list waste, then atomically replaces path with
// the compacted file. Node indices are NOT preserved across Compact.
func (l *List) Compact(path string, options *Options) error {
	tmpPath := path + ".compact"
	if exists, err := FileExists(tmpPath); err != nil {
		return err
	} else if exists {
		if err := os.Remove(tmpPath); err != nil {
			return ErrIO.Errorf("compact error: %w", err)
		}
	}
	newStore, err := Create(tmpPath, options)
	if err != nil {
		return err
	}
	newList, err := OpenList(newStore)
	if err != nil {
		newStore.Close()
		return err
	}
	var copyErr error
	_ = l.Iter(func(_ int64, data []byte) bool {
		if _, err := newList.InsertEnd(data); err != nil {
			copyErr = err
			return false
		}
		return true
	})
	if copyErr != nil {
		newStore.Close()
		return copyErr
	}
	if err := newStore.Close(); err != nil {
		return err
	}
	if err := l.store.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return ErrIO.Errorf("compact rename error: %w", err)
	}
	compacted, err := Open(path, options)
	if err != nil {
		return err
	}
	l.store = compacted
	return l.reloadHeader()
}
