// Copyright 2019 Vedran Vuk. All rights reserved.
// Use of this source code is governed by a MIT
// license that can be found in the LICENSE file.

package blockfile

// Queue is a first-in-first-out container backed by a List. Items are
// opaque byte payloads - callers are responsible for encoding whatever
// value type they need into bytes before Enqueue and decoding it back
// after Dequeue.
type Queue struct {
	list *List
}

// OpenQueue opens a Queue backed by store.
func OpenQueue(store *BlockStorage) (*Queue, error) {
	list, err := OpenList(store)
	if err != nil {
		return nil, err
	}
	return &Queue{list: list}, nil
}

// Enqueue adds data to the back of the queue.
func (q *Queue) Enqueue(data []byte) error {
	_, err := q.list.InsertStart(data)
	return err
}

// Dequeue removes and returns the item at the front of the queue. ok is
// false if the queue is empty.
func (q *Queue) Dequeue() (data []byte, ok bool, err error) {
	index, present := q.list.LastNode()
	if !present {
		return nil, false, nil
	}
	data, err = q.list.GetNodeData(index)
	if err != nil {
		return nil, false, err
	}
	if err := q.list.Remove(index); err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Len returns the number of items in the queue.
func (q *Queue) Len() int64 {
	return q.list.Count()
}

// IsEmpty reports whether the queue holds no items.
func (q *Queue) IsEmpty() bool {
	return q.list.IsEmpty()
}

// WastedBytes reports free-list bytes reclaimable by Compact.
func (q *Queue) WastedBytes() (int64, error) {
	return q.list.WastedBytes()
}

// WastedRatio reports the fraction of allocated space that is currently
// wasted, a real number in [0,1].
func (q *Queue) WastedRatio() float64 {
	return q.list.WastedRatio()
}

// Compact rebuilds the queue's backing file at path, dropping free-list
// waste.
func (q *Queue) Compact(path string, options *Options) error {
	return q.list.Compact(path, options)
}
