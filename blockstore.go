// Copyright 2019 Vedran Vuk. All rights reserved.
// Use of this source code is governed by a MIT
// license that can be found in the LICENSE file.

package blockfile

import (
	"bytes"
	"log"
)

// BlockStorage is a single-file, memory-mapped, frame-based allocator of
// variable-length byte records. Records are addressed by the dense frame
// index of their head frame, which is stable across Update and only
// invalidated by Delete. Frame 0 always holds the block storage header.
//
// BlockStorage is not safe for concurrent use - callers coordinate access
// themselves, same as the List layer built on top of it.
type BlockStorage struct {
	mapped  *MappedFile
	header  *blockHeader
	options *Options
	cache   *recordCache
}

// bodyCapacity is the number of body bytes usable in a single frame.
func (s *BlockStorage) bodyCapacity() int64 {
	return int64(s.header.FrameSize) - frameHeaderSize
}

// frameSize is the fixed total size of a frame in this file.
func (s *BlockStorage) frameSize() int64 {
	return int64(s.header.FrameSize)
}

// offsetOf returns the byte offset of frame index in the backing file.
func (s *BlockStorage) offsetOf(index uint64) int64 {
	return int64(index) * s.frameSize()
}

// Create creates a new block storage file at path. options may be nil, in
// which case defaults are used. It is an error for path to already exist.
func Create(path string, options *Options) (*BlockStorage, error) {
	if options == nil {
		options = NewOptions()
	}
	exists, err := FileExists(path)
	if err != nil {
		return nil, ErrIO.Errorf("create error: %w", err)
	}
	if exists {
		return nil, ErrInvariant.Errorf("create error: file already exists: %s", path)
	}
	mapped, err := OpenMappedFile(path)
	if err != nil {
		return nil, err
	}
	s := &BlockStorage{
		mapped:  mapped,
		options: options,
		cache:   newRecordCache(),
		header: &blockHeader{
			Version:        currentVersion,
			FrameSize:      uint64(options.FrameSize),
			FrameCount:     1,
			FirstFreeFrame: 0,
		},
	}
	if err := s.writeHeader(); err != nil {
		mapped.Close()
		return nil, err
	}
	return s, nil
}

// Open opens an existing block storage file at path, or creates it via
// Create if it does not exist. options configures only runtime behavior
// (checksums, cache) - the on-disk frame size is read from the file itself.
func Open(path string, options *Options) (*BlockStorage, error) {
	if options == nil {
		options = NewOptions()
	}
	exists, err := FileExists(path)
	if err != nil {
		return nil, ErrIO.Errorf("open error: %w", err)
	}
	if !exists {
		return Create(path, options)
	}
	mapped, err := OpenMappedFile(path)
	if err != nil {
		return nil, err
	}
	s := &BlockStorage{
		mapped:  mapped,
		options: options,
		cache:   newRecordCache(),
	}
	data, err := mapped.Read(0, options.FrameSize)
	if err != nil {
		// The file may have been created with a smaller frame size than
		// the one requested on Open; fall back to whatever is mapped.
		data, err = mapped.Read(0, mapped.Len())
		if err != nil {
			mapped.Close()
			return nil, err
		}
	}
	header, err := unmarshalBlockHeader(data)
	if err != nil {
		mapped.Close()
		return nil, err
	}
	s.header = header
	return s, nil
}

// Close flushes and closes the underlying file.
func (s *BlockStorage) Close() error {
	return s.mapped.Close()
}

// Sync flushes pending writes to disk.
func (s *BlockStorage) Sync() error {
	return s.mapped.Sync()
}

// IsEmpty reports whether the store holds no records - only the header
// frame is allocated and the free list is empty.
func (s *BlockStorage) IsEmpty() bool {
	return s.header.FrameCount == 1
}

// FrameCount returns the total number of frames allocated in the file,
// including the header frame and free frames.
func (s *BlockStorage) FrameCount() int64 {
	return int64(s.header.FrameCount)
}

// WastedBytes returns the total size, in bytes, of the frames currently
// sitting unused in the free list, a lower bound on space reclaimable by
// Compact.
func (s *BlockStorage) WastedBytes() (int64, error) {
	var wasted int64
	idx := s.header.FirstFreeFrame
	for idx != 0 {
		f, _, err := s.readFrame(idx)
		if err != nil {
			return 0, err
		}
		wasted += s.frameSize()
		idx = f.Next
	}
	return wasted, nil
}

func (s *BlockStorage) writeHeader() error {
	data, err := marshalBlockHeader(s.header)
	if err != nil {
		return err
	}
	return s.mapped.Write(0, data)
}

// readFrame reads the frame header and its full body capacity slice at
// index. The returned body slice aliases the mapping directly.
func (s *BlockStorage) readFrame(index uint64) (*frame, []byte, error) {
	base := s.offsetOf(index)
	headerBytes, err := s.mapped.Read(base, frameHeaderSize)
	if err != nil {
		return nil, nil, err
	}
	f, err := unmarshalFrame(headerBytes)
	if err != nil {
		return nil, nil, err
	}
	body, err := s.mapped.Read(base+frameHeaderSize, s.bodyCapacity())
	if err != nil {
		return nil, nil, err
	}
	return f, body, nil
}

// writeFrame writes the frame header and body (which may be shorter than
// bodyCapacity - only BodySize bytes are meaningful) at index.
func (s *BlockStorage) writeFrame(index uint64, f *frame, body []byte) error {
	headerBytes, err := marshalFrame(f)
	if err != nil {
		return err
	}
	base := s.offsetOf(index)
	if err := s.mapped.Write(base, headerBytes); err != nil {
		return err
	}
	if len(body) > 0 {
		if err := s.mapped.Write(base+frameHeaderSize, body); err != nil {
			return err
		}
	}
	return nil
}

// allocateFrame returns the index of a free frame, popping the head of the
// free list if non-empty, or appending a new frame to the file otherwise.
func (s *BlockStorage) allocateFrame() (uint64, error) {
	if s.header.FirstFreeFrame != 0 {
		return s.unlinkFreeFrame(s.header.FirstFreeFrame)
	}
	index := s.header.FrameCount
	s.header.FrameCount++
	if err := s.writeHeader(); err != nil {
		return 0, err
	}
	return index, nil
}

// unlinkFreeFrame removes index from the head of the free list and
// returns it. index must currently be the free list head.
func (s *BlockStorage) unlinkFreeFrame(index uint64) (uint64, error) {
	f, _, err := s.readFrame(index)
	if err != nil {
		return 0, err
	}
	if !f.Deleted {
		return 0, ErrInvariant.Errorf("free list head frame %d is not marked deleted", index)
	}
	s.header.FirstFreeFrame = f.Next
	if err := s.writeHeader(); err != nil {
		return 0, err
	}
	return index, nil
}

// freeFrame marks index as deleted and threads it onto the head of the
// free list.
func (s *BlockStorage) freeFrame(index uint64) error {
	f := &frame{Deleted: true, Next: s.header.FirstFreeFrame}
	if err := s.writeFrame(index, f, nil); err != nil {
		return err
	}
	s.header.FirstFreeFrame = index
	return s.writeHeader()
}

// UnlinkFreeFrame walks the free list looking for position and splices it
// out wherever it's found, leaving it orphaned - neither live nor
// reclaimable by a future allocateFrame. Unlike unlinkFreeFrame (which only
// ever pops the current head on behalf of allocateFrame), this is the
// advanced, rarely used escape hatch of spec.md §4.2: callers must
// document that misusing it leaks space. position not being on the free
// list at all is a silent no-op, matching the walk terminating without a
// match.
func (s *BlockStorage) UnlinkFreeFrame(position int64) error {
	target := uint64(position)
	cursor := s.header.FirstFreeFrame
	var prev uint64
	havePrev := false
	for cursor != 0 {
		f, _, err := s.readFrame(cursor)
		if err != nil {
			return err
		}
		if cursor == target {
			if havePrev {
				prevFrame, _, err := s.readFrame(prev)
				if err != nil {
					return err
				}
				prevFrame.Next = f.Next
				if err := s.writeFrame(prev, prevFrame, nil); err != nil {
					return err
				}
			} else {
				s.header.FirstFreeFrame = f.Next
				if err := s.writeHeader(); err != nil {
					return err
				}
			}
			return s.mapped.Sync()
		}
		prev = cursor
		havePrev = true
		cursor = f.Next
	}
	return nil
}

// CreateRecord writes data as a new record, chained across as many frames
// as needed, and returns the dense index of its head frame. Flushes before
// returning.
func (s *BlockStorage) CreateRecord(data []byte) (int64, error) {
	if len(data) == 0 {
		return 0, ErrInvariant.Errorf("cannot create an empty record")
	}
	indices, err := s.allocateChain(len(data))
	if err != nil {
		return 0, err
	}
	if err := s.writeChain(indices, data); err != nil {
		return 0, err
	}
	if s.options.CachedWrites && s.options.MaxCacheMemory > 0 {
		s.cache.Push(int64(indices[0]), data, s.options.MaxCacheMemory)
	}
	if err := s.mapped.Sync(); err != nil {
		return 0, err
	}
	return int64(indices[0]), nil
}

// allocateChain allocates enough frames to hold size bytes and returns
// their indices in chain order.
func (s *BlockStorage) allocateChain(size int) ([]uint64, error) {
	bodyCap := s.bodyCapacity()
	frameCount := (int64(size) + bodyCap - 1) / bodyCap
	indices := make([]uint64, frameCount)
	for i := range indices {
		index, err := s.allocateFrame()
		if err != nil {
			return nil, err
		}
		indices[i] = index
	}
	return indices, nil
}

// writeChain writes data across the given frame indices, chaining them via
// Next and recording the checksum on the head frame.
func (s *BlockStorage) writeChain(indices []uint64, data []byte) error {
	bodyCap := s.bodyCapacity()
	var crc uint32
	if s.options.ChecksumRecords {
		crc = checksum(data)
	}
	offset := 0
	for i, index := range indices {
		end := offset + int(bodyCap)
		if end > len(data) {
			end = len(data)
		}
		chunk := data[offset:end]
		f := &frame{BodySize: uint64(len(chunk))}
		if i+1 < len(indices) {
			f.Next = indices[i+1]
		}
		if i == 0 {
			f.CRC32 = crc
		}
		if err := s.writeFrame(index, f, chunk); err != nil {
			return err
		}
		offset = end
	}
	return nil
}

// OpenReader returns a ReadSeekCloser over the fully reassembled record at
// index, for callers that want to stream or seek through a large record's
// bytes rather than hold them as a single slice.
func (s *BlockStorage) OpenReader(index int64) (ReadSeekCloser, error) {
	data, err := s.Read(index)
	if err != nil {
		return nil, err
	}
	return newBoundedReader(data), nil
}

// Read reads and reassembles the record whose head frame is index.
func (s *BlockStorage) Read(index int64) ([]byte, error) {
	if cached, ok := s.cache.Get(index); ok {
		return cached, nil
	}
	data, headCRC, err := s.readChain(uint64(index))
	if err != nil {
		return nil, err
	}
	if s.options.ChecksumRecords {
		if got := checksum(data); got != headCRC {
			return nil, ErrDecode.Errorf("checksum mismatch for record %d", index)
		}
	}
	if s.options.MaxCacheMemory > 0 {
		s.cache.Push(index, data, s.options.MaxCacheMemory)
	}
	return data, nil
}

// readChain walks the frame chain starting at head, returning the
// concatenated body bytes and the checksum recorded on the head frame. A
// frame unexpectedly marked deleted mid-chain is logged and skipped rather
// than treated as fatal, since the free list can legitimately reuse a
// stale Next pointer's slot.
func (s *BlockStorage) readChain(head uint64) ([]byte, uint32, error) {
	if head == 0 || head >= s.header.FrameCount {
		return nil, 0, ErrOutOfBounds.Errorf("record index %d out of bounds", head)
	}
	var buf bytes.Buffer
	var headCRC uint32
	index := head
	first := true
	for index != 0 {
		f, body, err := s.readFrame(index)
		if err != nil {
			return nil, 0, err
		}
		if f.Deleted {
			if first {
				return nil, 0, ErrInvariant.Errorf("record %d has been deleted", head)
			}
			log.Printf("blockfile: corruption: frame %d referenced from record %d is marked deleted, skipping", index, head)
			index = f.Next
			continue
		}
		if first {
			headCRC = f.CRC32
			first = false
		}
		buf.Write(body[:f.BodySize])
		index = f.Next
	}
	return buf.Bytes(), headCRC, nil
}

// Update replaces the record at index with data, reusing as many frames
// from the existing chain as possible, freeing surplus frames and
// allocating additional ones as needed. The head index is unchanged.
// Flushes before returning.
func (s *BlockStorage) Update(index int64, data []byte) error {
	if len(data) == 0 {
		return ErrInvariant.Errorf("cannot update record %d to be empty", index)
	}
	head := uint64(index)
	if head == 0 || head >= s.header.FrameCount {
		return ErrOutOfBounds.Errorf("record index %d out of bounds", index)
	}
	existing, err := s.chainIndices(head)
	if err != nil {
		return err
	}
	bodyCap := s.bodyCapacity()
	needed := int((int64(len(data)) + bodyCap - 1) / bodyCap)
	var indices []uint64
	switch {
	case needed <= len(existing):
		indices = existing[:needed]
		for _, extra := range existing[needed:] {
			if err := s.freeFrame(extra); err != nil {
				return err
			}
		}
	default:
		indices = make([]uint64, 0, needed)
		indices = append(indices, existing...)
		for i := len(existing); i < needed; i++ {
			idx, err := s.allocateFrame()
			if err != nil {
				return err
			}
			indices = append(indices, idx)
		}
	}
	if err := s.writeChain(indices, data); err != nil {
		return err
	}
	s.cache.Remove(index)
	if s.options.CachedWrites && s.options.MaxCacheMemory > 0 {
		s.cache.Push(index, data, s.options.MaxCacheMemory)
	}
	return s.mapped.Sync()
}

// chainIndices returns the indices of every frame in the chain rooted at
// head, in order.
func (s *BlockStorage) chainIndices(head uint64) ([]uint64, error) {
	var indices []uint64
	index := head
	for index != 0 {
		f, _, err := s.readFrame(index)
		if err != nil {
			return nil, err
		}
		if f.Deleted {
			break
		}
		indices = append(indices, index)
		index = f.Next
	}
	return indices, nil
}

// Delete frees every frame in the chain rooted at index. Flushes before
// returning.
func (s *BlockStorage) Delete(index int64) error {
	head := uint64(index)
	if head == 0 || head >= s.header.FrameCount {
		return ErrOutOfBounds.Errorf("record index %d out of bounds", index)
	}
	indices, err := s.chainIndices(head)
	if err != nil {
		return err
	}
	for _, idx := range indices {
		if err := s.freeFrame(idx); err != nil {
			return err
		}
	}
	s.cache.Remove(index)
	return s.mapped.Sync()
}
