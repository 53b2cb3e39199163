package blockfile

import (
	"errors"
	"fmt"
	"io"
)

// ErrBoundedReader is the base error of a boundedReader.
var ErrBoundedReader = errors.New("boundedreader:")

// ReadSeekCloser combines io.ReadSeeker and io.Closer.
type ReadSeekCloser interface {
	io.ReadSeeker
	io.Closer
}

// boundedReaderWrapper wraps a boundedReader because its methods need a
// pointer receiver but the exported value must satisfy ReadSeekCloser.
type boundedReaderWrapper struct {
	r *boundedReader
}

// Read calls the wrapped boundedReader's Read.
func (w boundedReaderWrapper) Read(b []byte) (n int, err error) { return w.r.read(b) }

// Seek calls the wrapped boundedReader's Seek.
func (w boundedReaderWrapper) Seek(offset int64, whence int) (int64, error) {
	return w.r.seek(offset, whence)
}

// Close calls the wrapped boundedReader's Close.
func (w boundedReaderWrapper) Close() error { return w.r.close() }

// boundedReader is an io.ReadSeeker bounded to a single byte slice. It backs
// BlockStorage.OpenReader, giving callers a seekable view over a record's
// payload.
type boundedReader struct {
	data []byte
	pos  int64
}

// newBoundedReader returns a ReadSeekCloser bounded to data. data must
// remain valid (i.e. the owning record must not be updated or deleted) for
// the lifetime of the returned reader.
func newBoundedReader(data []byte) ReadSeekCloser {
	return boundedReaderWrapper{&boundedReader{data: data}}
}

func (r *boundedReader) read(b []byte) (n int, err error) {
	if r.pos >= int64(len(r.data)) {
		return 0, io.EOF
	}
	n = copy(b, r.data[r.pos:])
	r.pos += int64(n)
	return n, nil
}

func (r *boundedReader) seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = r.pos
	case io.SeekEnd:
		base = int64(len(r.data))
	default:
		return 0, fmt.Errorf("%w invalid whence", ErrBoundedReader)
	}
	pos := base + offset
	if pos < 0 || pos > int64(len(r.data)) {
		return 0, fmt.Errorf("%w seek out of bounds", ErrBoundedReader)
	}
	r.pos = pos
	return pos, nil
}

func (r *boundedReader) close() error {
	r.data = nil
	return nil
}
