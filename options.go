// Copyright 2019 Vedran Vuk. All rights reserved.
// Use of this source code is governed by a MIT
// license that can be found in the LICENSE file.

package blockfile

// Options configures a BlockStorage opened with Create or Open.
type Options struct {

	// FrameSize is the fixed total size of a frame, header and body
	// combined. Default: 1024.
	FrameSize int64

	// ChecksumRecords specifies whether a CRC32 (IEEE) checksum is
	// computed over a record's bytes on create/update and verified on
	// read. Default: true.
	ChecksumRecords bool

	// MaxCacheMemory specifies the maximum number of bytes of record
	// payloads to keep in an in-memory FIFO cache, keyed by head frame
	// index. If <= 0 caching is disabled. Default: 33554432 (32MB).
	MaxCacheMemory int64

	// CachedWrites specifies whether a record's bytes are cached
	// immediately on Create/Update, in addition to being cached on Read.
	// Used only if MaxCacheMemory > 0. Default: false.
	CachedWrites bool
}

// NewOptions returns a new *Options with default values.
func NewOptions() *Options {
	o := &Options{}
	o.init()
	return o
}

// init initializes o to default values.
func (o *Options) init() {
	o.FrameSize = 1024
	o.ChecksumRecords = true
	o.MaxCacheMemory = 33554432
	o.CachedWrites = false
}
