// Copyright 2019 Vedran Vuk. All rights reserved.
// Use of this source code is governed by a MIT
// license that can be found in the LICENSE file.

package blockfile

import (
	"bytes"
	"hash/crc32"

	"github.com/vedranvuk/binaryex"
)

// frameHeaderSize is the fixed, binaryex-encoded size of a frame header:
// BodySize, Deleted, Next, CRC32 - 8 + 1 + 8 + 4 bytes.
const frameHeaderSize = 21

// frame is the fixed-size unit of allocation in a BlockStorage's backing file. A
// record occupies one or more frames chained by Next; a free frame is
// threaded onto the free list via the same Next field.
type frame struct {

	// BodySize is the number of body bytes in this frame actually used by
	// the record (<= FrameSize-frameHeaderSize).
	BodySize uint64

	// Deleted marks the frame as free, threaded onto the free list.
	Deleted bool

	// Next is the dense index of the next frame in this record's chain, or
	// of the next free frame if Deleted. 0 means "none" - frame 0 is the
	// block storage header and is never part of a chain.
	Next uint64

	// CRC32 is the checksum of the whole record's bytes, set on the head
	// frame only (0 on every other frame), valid only when
	// Options.ChecksumRecords is set.
	CRC32 uint32
}

// marshalFrame encodes a frame header into a frameHeaderSize buffer.
func marshalFrame(f *frame) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, frameHeaderSize))
	if err := binaryex.WriteStruct(buf, f); err != nil {
		return nil, ErrDecode.Errorf("marshal frame error: %w", err)
	}
	return buf.Bytes(), nil
}

// unmarshalFrame decodes a frame header from data.
func unmarshalFrame(data []byte) (*frame, error) {
	f := &frame{}
	if err := binaryex.ReadStruct(bytes.NewBuffer(data), f); err != nil {
		return nil, ErrDecode.Errorf("unmarshal frame error: %w", err)
	}
	return f, nil
}

// checksum computes the CRC32 (IEEE) of body.
func checksum(body []byte) uint32 {
	return crc32.ChecksumIEEE(body)
}

// blockHeader is frame 0 of the backing file, describing overall block
// storage layout.
type blockHeader struct {

	// Version is the on-disk format version.
	Version uint64

	// FrameSize is the fixed total size of a frame in this file, fixed at
	// creation time and binding on every subsequent Open regardless of
	// what Options.FrameSize is passed.
	FrameSize uint64

	// FrameCount is the total number of frames currently allocated in the
	// file, including frame 0 and all free frames.
	FrameCount uint64

	// FirstFreeFrame is the dense index of the head of the free list, or 0
	// if the free list is empty.
	FirstFreeFrame uint64
}

// currentVersion is the on-disk format version written by Create.
const currentVersion = 1

// marshalBlockHeader encodes h. The result is not padded; it is written
// at the start of frame 0 as is.
func marshalBlockHeader(h *blockHeader) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	if err := binaryex.WriteStruct(buf, h); err != nil {
		return nil, ErrDecode.Errorf("marshal header error: %w", err)
	}
	return buf.Bytes(), nil
}

// unmarshalBlockHeader decodes a blockHeader from data.
func unmarshalBlockHeader(data []byte) (*blockHeader, error) {
	h := &blockHeader{}
	if err := binaryex.ReadStruct(bytes.NewBuffer(data), h); err != nil {
		return nil, ErrDecode.Errorf("unmarshal header error: %w", err)
	}
	return h, nil
}
