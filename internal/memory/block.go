// Package memory provides the allocator that backs every tensor view.
//
// Blocks are tagged with a memory space and the stream they were allocated
// on. The Allocator keeps a registry of live blocks together with usage
// statistics; freeing an unregistered block is an error. On this CPU target
// all spaces live in host memory, but bookkeeping and release ordering follow
// the space a block was requested in.
package memory

import (
	"fmt"
	"unsafe"

	"github.com/born-ml/xform/internal/stream"
)

// Space identifies where a block lives.
type Space int

// Supported memory spaces.
const (
	Managed Space = iota
	Host
	Device
	AsyncDevice
)

// String returns a human-readable space name.
func (s Space) String() string {
	switch s {
	case Managed:
		return "managed"
	case Host:
		return "host"
	case Device:
		return "device"
	case AsyncDevice:
		return "async-device"
	default:
		return "unknown"
	}
}

// Block is a contiguous allocation. Storage is word-backed so that any
// element type up to 16 bytes can be laid over it.
type Block struct {
	words  []uint64
	size   int
	space  Space
	stream *stream.Stream
}

// NewBlock creates an unregistered block of size bytes. Use it for memory
// the caller owns outright; blocks that should be tracked come from
// Allocator.Alloc.
func NewBlock(space Space, size int) *Block {
	if size < 0 {
		panic(fmt.Sprintf("memory: negative block size %d", size))
	}
	return &Block{
		words:  make([]uint64, wordsFor(size)),
		size:   size,
		space:  space,
		stream: stream.Default,
	}
}

// Size returns the block size in bytes.
func (b *Block) Size() int {
	return b.size
}

// Space returns the memory space of the block.
func (b *Block) Space() Space {
	return b.space
}

// Stream returns the stream the block was allocated on.
func (b *Block) Stream() *stream.Stream {
	return b.stream
}

// Bytes returns the block contents as a byte slice.
func (b *Block) Bytes() []byte {
	if b.size == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&b.words[0])), b.size) //nolint:gosec // G103: word-backed storage
}

// Zero clears the block.
func (b *Block) Zero() {
	clear(b.words)
}

// Typed reinterprets the block as a slice of T. The length is the number of
// whole T values that fit in the block.
func Typed[T any](b *Block) []T {
	var zero T
	n := b.size / int(unsafe.Sizeof(zero))
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&b.words[0])), n) //nolint:gosec // G103: word-backed storage
}

// Reinterpret lays T over a byte slice that starts on an 8-byte boundary.
func Reinterpret[T any](buf []byte) []T {
	var zero T
	n := len(buf) / int(unsafe.Sizeof(zero))
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&buf[0])), n) //nolint:gosec // G103: caller guarantees alignment
}

// AlignUp rounds n up to the next multiple of 16 bytes.
func AlignUp(n int) int {
	return (n + 15) &^ 15
}

func wordsFor(size int) int {
	return (size + 7) / 8
}
