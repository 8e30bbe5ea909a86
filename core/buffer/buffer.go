// File: core/buffer/buffer.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Growable byte buffer with a prepend reservation and reference-counted
// storage shared by zero-copy views.
//
//	+-------------------+------------------+------------------+
//	| prependable bytes |  readable bytes  |  writable bytes  |
//	+-------------------+------------------+------------------+
//	0      <=      readIndex   <=    writeIndex    <=    capacity

package buffer

import (
	"encoding/binary"
	"encoding/hex"
	"io"
	"math"
	"sync/atomic"

	"github.com/momentics/hioload-net/pool"
)

const (
	// PrependSize is the space kept in front of the readable bytes for cheap
	// header insertion.
	PrependSize = 8
	// InitialSize is the default writable capacity of a new buffer.
	InitialSize = 1450
)

// storage is the shared backing array. It goes back to the pool when the
// last holder releases it.
type storage struct {
	data []byte
	refs atomic.Int32
}

func newStorage(size int) *storage {
	s := &storage{data: pool.Default().GetBuffer(size)}
	s.refs.Store(1)
	return s
}

func (s *storage) retain() { s.refs.Add(1) }

func (s *storage) release() {
	if s.refs.Add(-1) == 0 {
		pool.Default().PutBuffer(s.data)
		s.data = nil
	}
}

func (s *storage) shared() bool { return s.refs.Load() > 1 }

// Buffer is not safe for concurrent use. Views created by Slice or ReadBuffer
// may live on other goroutines: each view has private cursors, and a writer
// holding shared storage copies it first, so a view keeps the bytes it saw
// when it was taken.
//
// The zero value is an empty buffer ready to use.
type Buffer struct {
	st         *storage
	readIndex  int
	writeIndex int
}

// New returns a buffer with InitialSize writable bytes.
func New() *Buffer {
	return NewWithSize(InitialSize)
}

// NewWithSize returns a buffer with at least size writable bytes.
func NewWithSize(size int) *Buffer {
	if size < 0 {
		size = 0
	}
	return &Buffer{
		st:         newStorage(PrependSize + size),
		readIndex:  PrependSize,
		writeIndex: PrependSize,
	}
}

// FromBytes returns a buffer holding a copy of p.
func FromBytes(p []byte) *Buffer {
	b := NewWithSize(len(p))
	b.Append(p)
	return b
}

// Readable returns the number of unread bytes.
func (b *Buffer) Readable() int { return b.writeIndex - b.readIndex }

// Len is an alias of Readable.
func (b *Buffer) Len() int { return b.Readable() }

// Writable returns the free space behind the readable bytes.
func (b *Buffer) Writable() int { return b.Capacity() - b.writeIndex }

// Prependable returns the free space in front of the readable bytes.
func (b *Buffer) Prependable() int { return b.readIndex }

// Capacity returns the size of the backing storage.
func (b *Buffer) Capacity() int {
	if b.st == nil {
		return 0
	}
	return len(b.st.data)
}

// Peek returns the readable bytes without consuming them. The slice aliases
// the buffer and is valid until the next mutation or Release.
func (b *Buffer) Peek() []byte {
	if b.st == nil {
		return nil
	}
	return b.st.data[b.readIndex:b.writeIndex]
}

// PeekAt returns n readable bytes starting at offset without consuming them.
func (b *Buffer) PeekAt(offset, n int) []byte {
	b.checkReadable(offset, n)
	start := b.readIndex + offset
	return b.st.data[start : start+n]
}

func (b *Buffer) checkReadable(offset, n int) {
	if offset < 0 || n < 0 || offset+n > b.Readable() {
		panic("buffer: read out of range")
	}
}

// own makes sure the buffer holds private storage with room for extra bytes
// of growth, copying shared storage first.
func (b *Buffer) own(extra int) {
	if b.st == nil {
		size := PrependSize + InitialSize
		if extra > InitialSize {
			size = PrependSize + extra
		}
		b.st = newStorage(size)
		b.readIndex, b.writeIndex = PrependSize, PrependSize
		return
	}
	if !b.st.shared() {
		return
	}
	n := b.Readable()
	size := PrependSize + n + extra
	if size < PrependSize+InitialSize {
		size = PrependSize + InitialSize
	}
	st := newStorage(size)
	copy(st.data[PrependSize:], b.st.data[b.readIndex:b.writeIndex])
	b.st.release()
	b.st = st
	b.readIndex, b.writeIndex = PrependSize, PrependSize+n
}

// EnsureWritable guarantees at least n writable bytes. When the free space
// on both sides is too small the storage grows to 2*capacity+n, otherwise
// the readable bytes are moved back to the prepend boundary.
func (b *Buffer) EnsureWritable(n int) {
	b.own(n)
	if b.Writable() >= n {
		return
	}
	readable := b.Readable()
	if b.Writable()+b.Prependable() < n+PrependSize {
		st := newStorage(2*b.Capacity() + n)
		copy(st.data[PrependSize:], b.st.data[b.readIndex:b.writeIndex])
		b.st.release()
		b.st = st
	} else {
		copy(b.st.data[PrependSize:], b.st.data[b.readIndex:b.writeIndex])
	}
	b.readIndex = PrependSize
	b.writeIndex = PrependSize + readable
}

// Append copies p behind the readable bytes.
func (b *Buffer) Append(p []byte) {
	b.EnsureWritable(len(p))
	copy(b.st.data[b.writeIndex:], p)
	b.writeIndex += len(p)
}

// AppendString copies s behind the readable bytes.
func (b *Buffer) AppendString(s string) {
	b.EnsureWritable(len(s))
	copy(b.st.data[b.writeIndex:], s)
	b.writeIndex += len(s)
}

// Write implements io.Writer. It never fails.
func (b *Buffer) Write(p []byte) (int, error) {
	b.Append(p)
	return len(p), nil
}

// WriteString implements io.StringWriter.
func (b *Buffer) WriteString(s string) (int, error) {
	b.AppendString(s)
	return len(s), nil
}

// Read implements io.Reader, consuming what it copies.
func (b *Buffer) Read(p []byte) (int, error) {
	if b.Readable() == 0 {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}
	n := copy(p, b.Peek())
	b.Retrieve(n)
	return n, nil
}

func (b *Buffer) grab(n int) []byte {
	b.EnsureWritable(n)
	p := b.st.data[b.writeIndex : b.writeIndex+n]
	b.writeIndex += n
	return p
}

func (b *Buffer) AppendUint8(v uint8) { b.grab(1)[0] = v }

func (b *Buffer) AppendUint16BE(v uint16) { binary.BigEndian.PutUint16(b.grab(2), v) }
func (b *Buffer) AppendUint16LE(v uint16) { binary.LittleEndian.PutUint16(b.grab(2), v) }
func (b *Buffer) AppendUint32BE(v uint32) { binary.BigEndian.PutUint32(b.grab(4), v) }
func (b *Buffer) AppendUint32LE(v uint32) { binary.LittleEndian.PutUint32(b.grab(4), v) }
func (b *Buffer) AppendUint64BE(v uint64) { binary.BigEndian.PutUint64(b.grab(8), v) }
func (b *Buffer) AppendUint64LE(v uint64) { binary.LittleEndian.PutUint64(b.grab(8), v) }

// AppendFloat32BE appends the IEEE 754 bits of v in network order.
func (b *Buffer) AppendFloat32BE(v float32) { b.AppendUint32BE(math.Float32bits(v)) }

// AppendFloat64BE appends the IEEE 754 bits of v in network order.
func (b *Buffer) AppendFloat64BE(v float64) { b.AppendUint64BE(math.Float64bits(v)) }

// Prepend writes p directly in front of the readable bytes. The reserved
// PrependSize bytes make short headers free; longer ones shift the data.
func (b *Buffer) Prepend(p []byte) {
	b.own(0)
	if len(p) > b.Prependable() {
		readable := b.Readable()
		st := newStorage(PrependSize + len(p) + readable + b.Writable())
		start := PrependSize + len(p)
		copy(st.data[start:], b.st.data[b.readIndex:b.writeIndex])
		b.st.release()
		b.st = st
		b.readIndex, b.writeIndex = start, start+readable
	}
	b.readIndex -= len(p)
	copy(b.st.data[b.readIndex:], p)
}

func (b *Buffer) PrependUint16BE(v uint16) {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	b.Prepend(tmp[:])
}

func (b *Buffer) PrependUint32BE(v uint32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	b.Prepend(tmp[:])
}

// Typed peeks read at offset from the first readable byte and panic when
// fewer bytes are readable; callers check Readable first.

func (b *Buffer) PeekUint8(offset int) uint8 { return b.PeekAt(offset, 1)[0] }

func (b *Buffer) PeekUint16BE(offset int) uint16 {
	return binary.BigEndian.Uint16(b.PeekAt(offset, 2))
}

func (b *Buffer) PeekUint16LE(offset int) uint16 {
	return binary.LittleEndian.Uint16(b.PeekAt(offset, 2))
}

func (b *Buffer) PeekUint32BE(offset int) uint32 {
	return binary.BigEndian.Uint32(b.PeekAt(offset, 4))
}

func (b *Buffer) PeekUint32LE(offset int) uint32 {
	return binary.LittleEndian.Uint32(b.PeekAt(offset, 4))
}

func (b *Buffer) PeekUint64BE(offset int) uint64 {
	return binary.BigEndian.Uint64(b.PeekAt(offset, 8))
}

func (b *Buffer) PeekUint64LE(offset int) uint64 {
	return binary.LittleEndian.Uint64(b.PeekAt(offset, 8))
}

func (b *Buffer) ReadUint8() uint8 {
	v := b.PeekUint8(0)
	b.Retrieve(1)
	return v
}

func (b *Buffer) ReadUint16BE() uint16 {
	v := b.PeekUint16BE(0)
	b.Retrieve(2)
	return v
}

func (b *Buffer) ReadUint16LE() uint16 {
	v := b.PeekUint16LE(0)
	b.Retrieve(2)
	return v
}

func (b *Buffer) ReadUint32BE() uint32 {
	v := b.PeekUint32BE(0)
	b.Retrieve(4)
	return v
}

func (b *Buffer) ReadUint32LE() uint32 {
	v := b.PeekUint32LE(0)
	b.Retrieve(4)
	return v
}

func (b *Buffer) ReadUint64BE() uint64 {
	v := b.PeekUint64BE(0)
	b.Retrieve(8)
	return v
}

func (b *Buffer) ReadUint64LE() uint64 {
	v := b.PeekUint64LE(0)
	b.Retrieve(8)
	return v
}

func (b *Buffer) ReadFloat32BE() float32 { return math.Float32frombits(b.ReadUint32BE()) }
func (b *Buffer) ReadFloat64BE() float64 { return math.Float64frombits(b.ReadUint64BE()) }

// Retrieve consumes n bytes; n at or past Readable empties the buffer.
func (b *Buffer) Retrieve(n int) {
	if n < 0 {
		panic("buffer: negative retrieve")
	}
	if n < b.Readable() {
		b.readIndex += n
		return
	}
	b.RetrieveAll()
}

// Skip is an alias of Retrieve.
func (b *Buffer) Skip(n int) { b.Retrieve(n) }

// RetrieveAll empties the buffer and resets both cursors to the prepend boundary.
func (b *Buffer) RetrieveAll() {
	b.readIndex = PrependSize
	b.writeIndex = PrependSize
	if b.st == nil {
		b.readIndex, b.writeIndex = 0, 0
	}
}

// RetrieveString consumes n bytes and returns them as a string.
func (b *Buffer) RetrieveString(n int) string {
	if n > b.Readable() {
		n = b.Readable()
	}
	s := string(b.PeekAt(0, n))
	b.Retrieve(n)
	return s
}

// RetrieveAllString consumes every readable byte.
func (b *Buffer) RetrieveAllString() string {
	return b.RetrieveString(b.Readable())
}

// ReadAsHexString consumes n bytes and returns their lowercase hex encoding.
func (b *Buffer) ReadAsHexString(n int) string {
	if n > b.Readable() {
		n = b.Readable()
	}
	s := hex.EncodeToString(b.PeekAt(0, n))
	b.Retrieve(n)
	return s
}

// RetrieveAllHexString consumes every readable byte as hex.
func (b *Buffer) RetrieveAllHexString() string {
	return b.ReadAsHexString(b.Readable())
}

// Slice returns a view of n readable bytes starting at offset. The view
// shares storage with b; neither side ever observes the other's later writes.
// The view must be released independently.
func (b *Buffer) Slice(offset, n int) *Buffer {
	b.checkReadable(offset, n)
	if b.st == nil {
		return &Buffer{}
	}
	b.st.retain()
	start := b.readIndex + offset
	return &Buffer{st: b.st, readIndex: start, writeIndex: start + n}
}

// ReadBuffer returns a view of the next n bytes and consumes them.
func (b *Buffer) ReadBuffer(n int) *Buffer {
	v := b.Slice(0, n)
	b.Retrieve(n)
	return v
}

// Clone returns an independent deep copy of the readable bytes.
func (b *Buffer) Clone() *Buffer {
	return FromBytes(b.Peek())
}

// Release drops this holder's reference to the storage and leaves the
// buffer empty. Calling it again is a no-op.
func (b *Buffer) Release() {
	if b.st == nil {
		return
	}
	b.st.release()
	b.st = nil
	b.readIndex, b.writeIndex = 0, 0
}

// Shared reports whether the storage is referenced by another view.
func (b *Buffer) Shared() bool {
	return b.st != nil && b.st.shared()
}
