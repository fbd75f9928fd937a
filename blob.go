package sqdb

import (
	"go4.org/mem"
)

// Blob is an immutable byte buffer.
//
// NewBlob copies its input, so a Blob built from engine memory stays
// valid after the statement moves on. Clone returns an alias sharing the
// same bytes; the bytes are dropped when the last alias is closed.
type Blob struct {
	refs refCount
	data []byte
}

// NewBlob returns a Blob holding a copy of b.
func NewBlob(b []byte) *Blob {
	blob := &Blob{data: make([]byte, len(b))}
	copy(blob.data, b)
	blob.refs.acquire()
	return blob
}

func (b *Blob) closed(op string) bool {
	if b.refs.n == nil {
		UsesAfterClose.Add(op, 1)
		return true
	}
	return false
}

// Size reports the number of bytes in b.
func (b *Blob) Size() int {
	if b.closed("Blob.Size") {
		return 0
	}
	return len(b.data)
}

// Data returns a read-only view of b's bytes.
// The view stays valid after b is closed.
func (b *Blob) Data() mem.RO {
	if b.closed("Blob.Data") {
		return mem.RO{}
	}
	return mem.B(b.data)
}

// AppendTo appends b's bytes to dst.
func (b *Blob) AppendTo(dst []byte) []byte {
	return mem.Append(dst, b.Data())
}

// String returns b's bytes as a string.
func (b *Blob) String() string {
	return b.Data().StringCopy()
}

// Clone returns a new alias of b.
// Cloning a closed Blob returns a closed Blob.
func (b *Blob) Clone() *Blob {
	if b.closed("Blob.Clone") {
		return &Blob{}
	}
	return &Blob{refs: b.refs.share(), data: b.data}
}

// Close releases this alias. The bytes are dropped with the last alias.
func (b *Blob) Close() {
	if b.closed("Blob.Close") {
		return
	}
	b.refs.release()
	b.data = nil
}
