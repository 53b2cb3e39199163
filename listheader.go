// Copyright 2019 Vedran Vuk. All rights reserved.
// Use of this source code is governed by a MIT
// license that can be found in the LICENSE file.

package blockfile

import (
	"bytes"

	"github.com/vedranvuk/binaryex"
)

// listHeader is the bookkeeping record of a List, stored as the first
// record ever created in the underlying BlockStorage.
type listHeader struct {

	// FirstNode is the block storage index of the first node, or 0 if the
	// list is empty.
	FirstNode uint64

	// LastNode is the block storage index of the last node, or 0 if the
	// list is empty.
	LastNode uint64

	// ElementCount is the number of nodes currently in the list.
	ElementCount uint64

	// AllocatorCursor is a monotonically non-decreasing byte offset: the
	// highest end offset (head frame offset plus record size) of any node
	// record of this list. It does not gate allocation - BlockStorage's
	// free list does - but reports how far the file has grown to service
	// this list.
	AllocatorCursor uint64

	// UnusedBytes is the accumulated size of every node removed since the
	// list was last compacted (node prefix plus payload), incremented by
	// List.Remove and reset to 0 by a fresh List.Compact. Together with
	// AllocatorCursor it forms the ratio List.WastedRatio reports.
	UnusedBytes uint64
}

// listHeaderIndex is the fixed block storage index of a List's header
// record. It is always the first record created against a fresh
// BlockStorage.
const listHeaderIndex = 1

func marshalListHeader(h *listHeader) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	if err := binaryex.WriteStruct(buf, h); err != nil {
		return nil, ErrDecode.Errorf("marshal list header error: %w", err)
	}
	return buf.Bytes(), nil
}

func unmarshalListHeader(data []byte) (*listHeader, error) {
	h := &listHeader{}
	if err := binaryex.ReadStruct(bytes.NewBuffer(data), h); err != nil {
		return nil, ErrDecode.Errorf("unmarshal list header error: %w", err)
	}
	return h, nil
}
