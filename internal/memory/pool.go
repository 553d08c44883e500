package memory

import "sync"

// SizeClass represents block size categories for pooling.
type SizeClass int

const (
	// SmallBlock for blocks < 4KB.
	SmallBlock SizeClass = iota
	// MediumBlock for blocks 4KB-1MB.
	MediumBlock
	// LargeBlock for blocks > 1MB.
	LargeBlock
)

const (
	smallThreshold  = 4 * 1024    // 4KB
	mediumThreshold = 1024 * 1024 // 1MB
	maxPoolSize     = 100         // Max blocks per class
)

// Pool keeps released blocks for reuse, bucketed by size class.
// A pooled block is only handed out for the space it was allocated in.
type Pool struct {
	small  []*Block
	medium []*Block
	large  []*Block

	mu sync.Mutex

	created  uint64
	released uint64
	hits     uint64
	misses   uint64
}

// PoolStats summarizes pool usage.
type PoolStats struct {
	Created  uint64
	Released uint64
	Hits     uint64
	Misses   uint64
	Pooled   int
}

// NewPool creates an empty pool.
func NewPool() *Pool {
	return &Pool{
		small:  make([]*Block, 0, maxPoolSize),
		medium: make([]*Block, 0, maxPoolSize),
		large:  make([]*Block, 0, maxPoolSize),
	}
}

// Acquire returns a zeroed block of at least size bytes in space, reusing a
// pooled block when one fits.
func (p *Pool) Acquire(space Space, size int) *Block {
	p.mu.Lock()
	defer p.mu.Unlock()

	class := categorize(size)
	need := wordsFor(size)

	for i, b := range p.bucket(class) {
		if b.space == space && cap(b.words) >= need {
			p.remove(class, i)
			p.hits++
			b.words = b.words[:need]
			b.size = size
			b.Zero()
			return b
		}
	}

	p.misses++
	p.created++
	return NewBlock(space, size)
}

// Release returns a block to the pool. Reports false when the class is full
// and the block was dropped.
func (p *Pool) Release(b *Block) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.released++

	class := categorize(b.size)
	if len(p.bucket(class)) >= maxPoolSize {
		return false
	}
	b.stream = nil
	p.add(class, b)
	return true
}

// Clear drops every pooled block.
func (p *Pool) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.small = p.small[:0]
	p.medium = p.medium[:0]
	p.large = p.large[:0]
}

// Stats returns statistics about pool usage.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return PoolStats{
		Created:  p.created,
		Released: p.released,
		Hits:     p.hits,
		Misses:   p.misses,
		Pooled:   len(p.small) + len(p.medium) + len(p.large),
	}
}

func categorize(size int) SizeClass {
	if size < smallThreshold {
		return SmallBlock
	}
	if size < mediumThreshold {
		return MediumBlock
	}
	return LargeBlock
}

func (p *Pool) bucket(class SizeClass) []*Block {
	switch class {
	case SmallBlock:
		return p.small
	case MediumBlock:
		return p.medium
	case LargeBlock:
		return p.large
	default:
		return nil
	}
}

func (p *Pool) add(class SizeClass, b *Block) {
	switch class {
	case SmallBlock:
		p.small = append(p.small, b)
	case MediumBlock:
		p.medium = append(p.medium, b)
	case LargeBlock:
		p.large = append(p.large, b)
	}
}

func (p *Pool) remove(class SizeClass, i int) {
	switch class {
	case SmallBlock:
		p.small = append(p.small[:i], p.small[i+1:]...)
	case MediumBlock:
		p.medium = append(p.medium[:i], p.medium[i+1:]...)
	case LargeBlock:
		p.large = append(p.large[:i], p.large[i+1:]...)
	}
}
