package session

import (
	"io"
	"os"

	"github.com/webserv-go/webserv/concurrency/gopool"
)

// spillThreshold is the in-memory ceiling before a request body spills
// to a temporary file, per spec.md §4.6 (default 64 KiB).
const spillThreshold = 64 * 1024

// bodyStore implements httpparse.BodySink: it buffers in memory up to
// spillThreshold bytes, then transparently spills to a temp file owned
// by the session, exactly as spec.md §4.10 assigns body storage to C10
// rather than the parser.
type bodyStore struct {
	mem     []byte
	file    *os.File
	written int64
}

func newBodyStore() *bodyStore {
	return &bodyStore{}
}

func (b *bodyStore) Write(p []byte) (int, error) {
	if b.file == nil && int64(len(b.mem))+int64(len(p)) <= spillThreshold {
		b.mem = append(b.mem, p...)
		b.written += int64(len(p))
		return len(p), nil
	}
	if b.file == nil {
		f, err := os.CreateTemp("", "webserv-body-*")
		if err != nil {
			return 0, err
		}
		b.file = f
		if len(b.mem) > 0 {
			if _, err := f.Write(b.mem); err != nil {
				return 0, err
			}
			b.mem = nil
		}
	}
	n, err := b.file.Write(p)
	b.written += int64(n)
	return n, err
}

// Size returns the number of body bytes written so far.
func (b *bodyStore) Size() int64 { return b.written }

// Reader returns a fresh io.Reader over everything written, seeking a
// spilled file back to its start.
func (b *bodyStore) Reader() (io.Reader, error) {
	if b.file == nil {
		return io.NewSectionReader(newBytesReaderAt(b.mem), 0, int64(len(b.mem))), nil
	}
	if _, err := b.file.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return b.file, nil
}

// Close releases the spill file, if any. The file is closed
// synchronously, but its unlink is handed to the background pool: it
// touches nothing the event loop owns, so there's no reason to make the
// next session wait on it.
func (b *bodyStore) Close() {
	if b.file != nil {
		name := b.file.Name()
		b.file.Close()
		gopool.Go(func() { os.Remove(name) })
		b.file = nil
	}
	b.mem = nil
	b.written = 0
}

type bytesReaderAt []byte

func newBytesReaderAt(b []byte) *bytesReaderAt {
	br := bytesReaderAt(b)
	return &br
}

func (r *bytesReaderAt) ReadAt(p []byte, off int64) (int, error) {
	b := []byte(*r)
	if off >= int64(len(b)) {
		return 0, io.EOF
	}
	n := copy(p, b[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}
