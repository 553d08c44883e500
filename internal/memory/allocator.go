package memory

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/born-ml/xform/internal/errs"
	"github.com/born-ml/xform/internal/stream"
)

// Config controls allocator behavior.
type Config struct {
	Limit  int64        // Maximum live bytes; 0 means unlimited.
	Pool   bool         // Reuse released blocks.
	Logger *slog.Logger // Debug logging of allocations; nil discards.
}

// DefaultConfig returns an unlimited allocator with pooling enabled.
func DefaultConfig() Config {
	return Config{
		Pool: true,
	}
}

type allocation struct {
	size   int
	space  Space
	stream stream.ID
}

// Allocator hands out blocks and tracks every live allocation.
// Allocation and free take the write lock; lookups take the read lock.
type Allocator struct {
	mu     sync.RWMutex
	live   map[*Block]allocation
	stats  Stats
	limit  int64
	pool   *Pool
	logger *slog.Logger
}

// NewAllocator creates an allocator.
func NewAllocator(cfg Config) *Allocator {
	a := &Allocator{
		live:   make(map[*Block]allocation),
		limit:  cfg.Limit,
		logger: cfg.Logger,
	}
	if a.logger == nil {
		a.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Pool {
		a.pool = NewPool()
	}
	return a
}

// Alloc allocates size bytes in space, associated with stream s (nil means
// the default stream). The memory is zeroed.
func (a *Allocator) Alloc(space Space, size int, s *stream.Stream) (*Block, error) {
	if size < 0 {
		return nil, errs.New(errs.KindInvalidSize, "alloc", "negative size %d", size)
	}
	if space < Managed || space > AsyncDevice {
		return nil, errs.New(errs.KindInvalidParameter, "alloc", "unknown memory space %d", int(space))
	}
	s = stream.Or(s)

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.limit > 0 && a.stats.CurrentBytes+int64(size) > a.limit {
		return nil, errs.New(errs.KindOutOfMemory, "alloc",
			"%d bytes requested, %d of %d in use", size, a.stats.CurrentBytes, a.limit)
	}

	var b *Block
	if a.pool != nil && size > 0 {
		b = a.pool.Acquire(space, size)
	} else {
		b = NewBlock(space, size)
	}
	b.stream = s

	a.live[b] = allocation{size: size, space: space, stream: s.ID()}
	a.stats.CurrentBytes += int64(size)
	a.stats.TotalBytes += int64(size)
	a.stats.MaxBytes = max(a.stats.MaxBytes, a.stats.CurrentBytes)
	a.stats.Allocs++
	a.stats.BySpace[space] += int64(size)

	return b, nil
}

// Free releases a block. The block is unregistered immediately; for
// AsyncDevice blocks the storage is recycled only after work already
// submitted to the block's stream has run.
func (a *Allocator) Free(b *Block) error {
	if b == nil {
		return errs.New(errs.KindAllocation, "free", "nil block")
	}

	a.mu.Lock()
	info, ok := a.live[b]
	if !ok {
		a.mu.Unlock()
		return errs.New(errs.KindAllocation, "free", "block %p is not allocated", b)
	}
	delete(a.live, b)
	a.stats.CurrentBytes -= int64(info.size)
	a.stats.Frees++
	a.stats.BySpace[info.space] -= int64(info.size)
	a.mu.Unlock()

	if info.space == AsyncDevice && !b.stream.IsDefault() {
		a.logger.Debug("async free queued", "bytes", info.size, "stream", info.stream)
		err := b.stream.Submit(func() error {
			a.recycle(b)
			return nil
		})
		if err == nil {
			return nil
		}
	}
	a.recycle(b)
	return nil
}

func (a *Allocator) recycle(b *Block) {
	if a.pool != nil && b.size > 0 {
		a.pool.Release(b)
	}
}

// Kind returns the space of a live block.
func (a *Allocator) Kind(b *Block) (Space, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	info, ok := a.live[b]
	return info.space, ok
}

// IsAllocated reports whether b is a live block of this allocator.
func (a *Allocator) IsAllocated(b *Block) bool {
	_, ok := a.Kind(b)
	return ok
}

// Stats returns a snapshot of usage statistics.
func (a *Allocator) Stats() Stats {
	a.mu.RLock()
	st := a.stats
	st.Live = len(a.live)
	a.mu.RUnlock()

	if a.pool != nil {
		st.Pool = a.pool.Stats()
	}
	return st
}

// Close drops pooled storage. Blocks still live are reported as an error.
func (a *Allocator) Close() error {
	if a.pool != nil {
		a.pool.Clear()
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	if n := len(a.live); n > 0 {
		return errs.New(errs.KindAllocation, "close", "%d blocks (%d bytes) still allocated", n, a.stats.CurrentBytes)
	}
	return nil
}

// Scratch is a temporary block released exactly once.
type Scratch struct {
	alloc *Allocator
	block *Block
	once  sync.Once
	err   error
}

// Scratch allocates a scoped temporary block. Callers pair it with a
// deferred Release.
func (a *Allocator) Scratch(space Space, size int, s *stream.Stream) (*Scratch, error) {
	b, err := a.Alloc(space, size, s)
	if err != nil {
		return nil, err
	}
	return &Scratch{alloc: a, block: b}, nil
}

// Block returns the scratch storage.
func (s *Scratch) Block() *Block {
	return s.block
}

// Release frees the scratch block. Further calls return the first result.
// Release on a nil Scratch is a no-op.
func (s *Scratch) Release() error {
	if s == nil {
		return nil
	}
	s.once.Do(func() {
		s.err = s.alloc.Free(s.block)
	})
	return s.err
}

// ReleaseAfter frees the scratch once work already submitted to st has run.
// On the default stream, or if st is closed, it releases immediately.
func (s *Scratch) ReleaseAfter(st *stream.Stream) error {
	if s == nil {
		return nil
	}
	st = stream.Or(st)
	if err := st.Submit(s.Release); err != nil {
		return s.Release()
	}
	return nil
}

// Stats summarizes allocator usage.
type Stats struct {
	CurrentBytes int64
	TotalBytes   int64
	MaxBytes     int64
	Allocs       uint64
	Frees        uint64
	Live         int
	BySpace      [AsyncDevice + 1]int64
	Pool         PoolStats
}

// String formats the statistics as a short report.
func (s Stats) String() string {
	return fmt.Sprintf(
		"memory: current %s, total %s, max %s, live %d (allocs %d, frees %d); pool hits %d, misses %d, pooled %d",
		formatBytes(s.CurrentBytes), formatBytes(s.TotalBytes), formatBytes(s.MaxBytes),
		s.Live, s.Allocs, s.Frees, s.Pool.Hits, s.Pool.Misses, s.Pool.Pooled)
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%dB", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f%ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
