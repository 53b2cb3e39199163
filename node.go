// Copyright 2019 Vedran Vuk. All rights reserved.
// Use of this source code is governed by a MIT
// license that can be found in the LICENSE file.

package blockfile

import (
	"bytes"

	"github.com/vedranvuk/binaryex"
)

// node is the fixed-size prefix stored at the front of every List element's
// underlying block storage record, followed immediately by the element's
// raw payload bytes.
type node struct {

	// NextPtr is the block storage index of the next node in list order,
	// or 0 if this is the last node.
	NextPtr uint64

	// PrevPtr is the block storage index of the previous node in list
	// order, or 0 if this is the first node.
	PrevPtr uint64
}

// nodePrefixSize is the fixed, binaryex-encoded size of a node's prefix:
// NextPtr, PrevPtr - 8 + 8 bytes.
const nodePrefixSize = 16

// marshalNode encodes n and appends payload, producing the bytes to be
// stored as a single block storage record.
func marshalNode(n *node, payload []byte) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, nodePrefixSize+len(payload)))
	if err := binaryex.WriteStruct(buf, n); err != nil {
		return nil, ErrDecode.Errorf("marshal node error: %w", err)
	}
	buf.Write(payload)
	return buf.Bytes(), nil
}

// unmarshalNode splits record into its node prefix and payload.
func unmarshalNode(record []byte) (*node, []byte, error) {
	r := bytes.NewReader(record)
	n := &node{}
	if err := binaryex.ReadStruct(r, n); err != nil {
		return nil, nil, ErrDecode.Errorf("unmarshal node error: %w", err)
	}
	payload := make([]byte, r.Len())
	copy(payload, record[len(record)-r.Len():])
	return n, payload, nil
}
