package tensor

import (
	"fmt"

	"github.com/born-ml/xform/internal/errs"
	"github.com/born-ml/xform/internal/memory"
	"github.com/born-ml/xform/internal/stream"
)

// End selects through the last element of a dimension in Slice.
const End = -1

// View is a strided N-dimensional window onto a memory block.
// Views alias their block; only views created by Alloc, Zeros or FromSlice
// own it. Shape, strides and offset are in elements.
type View struct {
	block  *memory.Block
	shape  Shape
	stride []int
	offset int
	dtype  DataType
	owner  bool
}

// NewView creates a contiguous row-major view over block.
func NewView(block *memory.Block, shape Shape, dtype DataType) (*View, error) {
	return NewStrided(block, shape, shape.ComputeStrides(), 0, dtype)
}

// NewStrided creates a view with explicit strides and element offset.
// The view must fit inside the block.
func NewStrided(block *memory.Block, shape Shape, stride []int, offset int, dtype DataType) (*View, error) {
	if block == nil {
		return nil, errs.New(errs.KindInvalidParameter, "view", "nil block")
	}
	if err := shape.Validate(); err != nil {
		return nil, errs.Wrap(errs.KindInvalidSize, "view", err)
	}
	if len(stride) != len(shape) {
		return nil, errs.New(errs.KindInvalidSize, "view", "%d strides for rank %d", len(stride), len(shape))
	}
	if offset < 0 {
		return nil, errs.New(errs.KindInvalidSize, "view", "negative offset %d", offset)
	}
	last := offset
	for i, st := range stride {
		if st < 0 {
			return nil, errs.New(errs.KindNotSupported, "view", "negative stride %d at dim %d", st, i)
		}
		last += (shape[i] - 1) * st
	}
	if capacity := block.Size() / dtype.Size(); last >= capacity {
		return nil, errs.New(errs.KindInvalidSize, "view",
			"view reaches element %d of a %d element block", last, capacity)
	}

	return &View{
		block:  block,
		shape:  shape.Clone(),
		stride: append([]int(nil), stride...),
		offset: offset,
		dtype:  dtype,
	}, nil
}

// Alloc allocates a contiguous owning view from a.
func Alloc(a *memory.Allocator, space memory.Space, shape Shape, dtype DataType, s *stream.Stream) (*View, error) {
	if err := shape.Validate(); err != nil {
		return nil, errs.Wrap(errs.KindInvalidSize, "alloc", err)
	}
	b, err := a.Alloc(space, shape.NumElements()*dtype.Size(), s)
	if err != nil {
		return nil, err
	}
	v, err := NewView(b, shape, dtype)
	if err != nil {
		_ = a.Free(b)
		return nil, err
	}
	v.owner = true
	return v, nil
}

// Zeros creates a zero-filled owning view in untracked host memory.
func Zeros(shape Shape, dtype DataType) (*View, error) {
	if err := shape.Validate(); err != nil {
		return nil, errs.Wrap(errs.KindInvalidSize, "zeros", err)
	}
	v, err := NewView(memory.NewBlock(memory.Host, shape.NumElements()*dtype.Size()), shape, dtype)
	if err != nil {
		return nil, err
	}
	v.owner = true
	return v, nil
}

// Free returns an owning view's block to the allocator it came from.
func (v *View) Free(a *memory.Allocator) error {
	if !v.owner {
		return errs.New(errs.KindAllocation, "free", "view does not own its block")
	}
	return a.Free(v.block)
}

// Shape returns the view's shape.
func (v *View) Shape() Shape {
	return v.shape
}

// Strides returns the per-dimension strides in elements.
func (v *View) Strides() []int {
	return v.stride
}

// Rank returns the number of dimensions.
func (v *View) Rank() int {
	return len(v.shape)
}

// Size returns the length of dimension d.
func (v *View) Size(d int) int {
	return v.shape[d]
}

// Stride returns the stride of dimension d.
func (v *View) Stride(d int) int {
	return v.stride[d]
}

// Lsize returns the length of the last dimension.
func (v *View) Lsize() int {
	if len(v.shape) == 0 {
		return 1
	}
	return v.shape[len(v.shape)-1]
}

// Offset returns the element offset of the first element.
func (v *View) Offset() int {
	return v.offset
}

// DType returns the element type.
func (v *View) DType() DataType {
	return v.dtype
}

// Block returns the backing block.
func (v *View) Block() *memory.Block {
	return v.block
}

// Space returns the memory space of the backing block.
func (v *View) Space() memory.Space {
	return v.block.Space()
}

// IsOwner reports whether the view owns its block.
func (v *View) IsOwner() bool {
	return v.owner
}

// NumElements returns the number of logical elements.
func (v *View) NumElements() int {
	return v.shape.NumElements()
}

// Bytes returns the logical size in bytes.
func (v *View) Bytes() int {
	return v.NumElements() * v.dtype.Size()
}

// IsContiguous reports whether the view is dense row-major.
func (v *View) IsContiguous() bool {
	expected := 1
	for i := len(v.shape) - 1; i >= 0; i-- {
		if v.shape[i] != 1 && v.stride[i] != expected {
			return false
		}
		expected *= v.shape[i]
	}
	return true
}

// Index returns the element offset of idx within the block.
func (v *View) Index(idx ...int) int {
	if len(idx) != len(v.shape) {
		panic(fmt.Sprintf("view: %d indices for rank %d", len(idx), len(v.shape)))
	}
	off := v.offset
	for i, x := range idx {
		if x < 0 || x >= v.shape[i] {
			panic(fmt.Sprintf("view: index %d out of range [0,%d) at dim %d", x, v.shape[i], i))
		}
		off += x * v.stride[i]
	}
	return off
}

// Slice returns the sub-view [starts[i], ends[i]) in every dimension.
// An end of End selects through the last element.
func (v *View) Slice(starts, ends []int) (*View, error) {
	if len(starts) != len(v.shape) || len(ends) != len(v.shape) {
		return nil, errs.New(errs.KindInvalidSize, "slice", "bounds rank mismatch for rank %d", len(v.shape))
	}
	shape := make(Shape, len(v.shape))
	off := v.offset
	for i := range v.shape {
		end := ends[i]
		if end == End {
			end = v.shape[i]
		}
		if starts[i] < 0 || end > v.shape[i] || starts[i] >= end {
			return nil, errs.New(errs.KindInvalidSize, "slice",
				"bounds [%d,%d) invalid for dim %d of size %d", starts[i], ends[i], i, v.shape[i])
		}
		shape[i] = end - starts[i]
		off += starts[i] * v.stride[i]
	}
	return &View{
		block:  v.block,
		shape:  shape,
		stride: append([]int(nil), v.stride...),
		offset: off,
		dtype:  v.dtype,
	}, nil
}

// Permute reorders dimensions without moving data.
func (v *View) Permute(perm ...int) (*View, error) {
	if len(perm) != len(v.shape) {
		return nil, errs.New(errs.KindInvalidParameter, "permute", "%d axes for rank %d", len(perm), len(v.shape))
	}
	seen := make([]bool, len(perm))
	shape := make(Shape, len(perm))
	stride := make([]int, len(perm))
	for i, p := range perm {
		if p < 0 || p >= len(perm) || seen[p] {
			return nil, errs.New(errs.KindInvalidParameter, "permute", "invalid permutation %v", perm)
		}
		seen[p] = true
		shape[i] = v.shape[p]
		stride[i] = v.stride[p]
	}
	return &View{block: v.block, shape: shape, stride: stride, offset: v.offset, dtype: v.dtype}, nil
}

// PermuteMatrix swaps the last two dimensions. Views of rank < 2 are
// returned as a non-owning copy.
func (v *View) PermuteMatrix() *View {
	out := &View{
		block:  v.block,
		shape:  v.shape.Clone(),
		stride: append([]int(nil), v.stride...),
		offset: v.offset,
		dtype:  v.dtype,
	}
	if r := len(v.shape); r >= 2 {
		out.shape[r-1], out.shape[r-2] = out.shape[r-2], out.shape[r-1]
		out.stride[r-1], out.stride[r-2] = out.stride[r-2], out.stride[r-1]
	}
	return out
}

// Sub returns the rank-1 smaller view at index i of the first dimension.
func (v *View) Sub(i int) *View {
	if len(v.shape) == 0 || i < 0 || i >= v.shape[0] {
		panic(fmt.Sprintf("view: sub index %d out of range for shape %v", i, v.shape))
	}
	return &View{
		block:  v.block,
		shape:  v.shape[1:].Clone(),
		stride: append([]int(nil), v.stride[1:]...),
		offset: v.offset + i*v.stride[0],
		dtype:  v.dtype,
	}
}

// OuterOffsets returns the element offset of every index combination of the
// first dims dimensions, in row-major order.
func (v *View) OuterOffsets(dims int) []int {
	offsets := []int{v.offset}
	for d := 0; d < dims; d++ {
		next := make([]int, 0, len(offsets)*v.shape[d])
		for _, base := range offsets {
			for i := 0; i < v.shape[d]; i++ {
				next = append(next, base+i*v.stride[d])
			}
		}
		offsets = next
	}
	return offsets
}

// SameLayout reports whether two views have identical type, shape and strides.
func (v *View) SameLayout(o *View) bool {
	if v.dtype != o.dtype || !v.shape.Equal(o.shape) {
		return false
	}
	for i := range v.stride {
		if v.stride[i] != o.stride[i] {
			return false
		}
	}
	return true
}

// String returns a summary of the view's metadata.
func (v *View) String() string {
	return fmt.Sprintf("View(%s, shape=%v, stride=%v, offset=%d, %s)",
		v.dtype, []int(v.shape), v.stride, v.offset, v.block.Space())
}
