// Copyright 2019 Vedran Vuk. All rights reserved.
// Use of this source code is governed by a MIT
// license that can be found in the LICENSE file.

package blockfile

import (
	"os"

	"golang.org/x/sys/unix"
)

// minMappedSize is the minimum size a file is grown to on first open, used
// when the OS page size can't be determined.
const minMappedSize = 1024

// MappedFile owns a growable memory mapping of a backing file. It exposes
// byte-range read and write with automatic geometric growth and an explicit
// flush, and is the sole mutator of mapped bytes - everything above this
// layer (BlockStorage, List) goes through it rather than touching the file
// directly.
type MappedFile struct {
	file   *os.File
	data   []byte
	length int64
}

// OpenMappedFile opens path, creating it if it doesn't exist, and maps it
// read/write. If the file is empty it is first extended to one OS page (or
// minMappedSize if the page size is unavailable).
func OpenMappedFile(path string) (*MappedFile, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, ErrIO.Errorf("open error: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, ErrIO.Errorf("stat error: %w", err)
	}
	length := info.Size()
	if length == 0 {
		length = int64(os.Getpagesize())
		if length <= 0 {
			length = minMappedSize
		}
		if err := file.Truncate(length); err != nil {
			file.Close()
			return nil, ErrIO.Errorf("truncate error: %w", err)
		}
	}
	data, err := unix.Mmap(int(file.Fd()), 0, int(length), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		file.Close()
		return nil, ErrIO.Errorf("mmap error: %w", err)
	}
	return &MappedFile{file: file, data: data, length: length}, nil
}

// Len returns the current mapped length in bytes.
func (m *MappedFile) Len() int64 {
	return m.length
}

// Read returns a slice of the mapping covering [offset, offset+length). The
// returned slice aliases the mapping directly - it is a borrow, valid only
// until the next Write that grows the file.
func (m *MappedFile) Read(offset, length int64) ([]byte, error) {
	if offset < 0 || length < 0 || offset+length > m.length {
		return nil, ErrOutOfBounds.Errorf("read [%d,%d) exceeds mapped length %d", offset, offset+length, m.length)
	}
	return m.data[offset : offset+length], nil
}

// Write writes bytes at offset, growing the mapping first (by doubling)
// if the write would exceed the current mapped length.
func (m *MappedFile) Write(offset int64, bytes []byte) error {
	end := offset + int64(len(bytes))
	if end > m.length {
		if err := m.grow(end); err != nil {
			return err
		}
	}
	copy(m.data[offset:end], bytes)
	return nil
}

// grow doubles the mapped length until it covers minLength, remapping the
// file in the process.
func (m *MappedFile) grow(minLength int64) error {
	newLength := m.length
	if newLength <= 0 {
		newLength = minMappedSize
	}
	for newLength < minLength {
		newLength *= 2
	}
	if err := unix.Munmap(m.data); err != nil {
		return ErrIO.Errorf("munmap error: %w", err)
	}
	m.data = nil
	if err := m.file.Truncate(newLength); err != nil {
		return ErrIO.Errorf("truncate error: %w", err)
	}
	data, err := unix.Mmap(int(m.file.Fd()), 0, int(newLength), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return ErrIO.Errorf("mmap error: %w", err)
	}
	m.data = data
	m.length = newLength
	return nil
}

// Sync flushes dirty pages to the backing file. Best-effort - not a
// crash-atomicity primitive.
func (m *MappedFile) Sync() error {
	if err := unix.Msync(m.data, unix.MS_SYNC); err != nil {
		return ErrIO.Errorf("msync error: %w", err)
	}
	return nil
}

// Close flushes and unmaps the file, then closes the underlying file
// handle.
func (m *MappedFile) Close() error {
	if m.data == nil {
		return nil
	}
	_ = m.Sync()
	err := unix.Munmap(m.data)
	m.data = nil
	if cerr := m.file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return ErrIO.Errorf("close error: %w", err)
	}
	return nil
}
