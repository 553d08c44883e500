package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/xform/internal/errs"
	"github.com/born-ml/xform/internal/memory"
)

func TestDataType_Size(t *testing.T) {
	assert.Equal(t, 4, Float32.Size())
	assert.Equal(t, 8, Float64.Size())
	assert.Equal(t, 8, Complex64.Size())
	assert.Equal(t, 16, Complex128.Size())
	assert.Equal(t, 4, Int32.Size())
	assert.Equal(t, 8, Int64.Size())
}

func TestDataType_Counterparts(t *testing.T) {
	assert.Equal(t, Float32, Complex64.Real())
	assert.Equal(t, Float64, Complex128.Real())
	assert.Equal(t, Complex64, Float32.Complex())
	assert.Equal(t, Complex128, Float64.Complex())
	assert.True(t, Complex64.IsComplex())
	assert.False(t, Float64.IsComplex())
	assert.False(t, Int64.IsFloat())
}

func TestTypeOf(t *testing.T) {
	assert.Equal(t, Float32, TypeOf[float32]())
	assert.Equal(t, Complex128, TypeOf[complex128]())
	assert.Equal(t, Int64, TypeOf[int64]())
}

func TestShape_Validate(t *testing.T) {
	assert.NoError(t, Shape{2, 3}.Validate())
	assert.Error(t, Shape{2, 0}.Validate())
	assert.Error(t, Shape{1, 1, 1, 1, 1}.Validate())
	assert.Equal(t, 6, Shape{2, 3, 4, 5}.Batch(2))
	assert.Equal(t, 1, Shape{4, 5}.Batch(2))
}

func TestFromSlice(t *testing.T) {
	v, err := FromSlice([]float64{1, 2, 3, 4, 5, 6}, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, Shape{2, 3}, v.Shape())
	assert.Equal(t, []int{3, 1}, v.Strides())
	assert.True(t, v.IsContiguous())
	assert.True(t, v.IsOwner())
	assert.Equal(t, 6.0, At[float64](v, 1, 2))
	assert.Equal(t, 48, v.Bytes())

	_, err = FromSlice([]float64{1, 2, 3}, 2, 2)
	assert.ErrorIs(t, err, errs.ErrInvalidSize)
}

func TestView_PermuteMatrix(t *testing.T) {
	v, err := FromSlice([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	require.NoError(t, err)

	vt := v.PermuteMatrix()
	assert.Equal(t, Shape{3, 2}, vt.Shape())
	assert.Equal(t, []int{1, 3}, vt.Strides())
	assert.False(t, vt.IsContiguous())
	assert.False(t, vt.IsOwner())
	assert.Equal(t, []float32{1, 4, 2, 5, 3, 6}, ToSlice[float32](vt))

	// Original untouched.
	assert.Equal(t, Shape{2, 3}, v.Shape())
}

func TestView_Permute(t *testing.T) {
	v, err := Zeros(Shape{2, 3, 4}, Float64)
	require.NoError(t, err)

	p, err := v.Permute(2, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, Shape{4, 2, 3}, p.Shape())
	assert.Equal(t, []int{1, 12, 4}, p.Strides())

	_, err = v.Permute(0, 0, 1)
	assert.ErrorIs(t, err, errs.ErrInvalidParameter)
	_, err = v.Permute(0, 1)
	assert.ErrorIs(t, err, errs.ErrInvalidParameter)
}

func TestView_Slice(t *testing.T) {
	data := make([]int32, 16)
	for i := range data {
		data[i] = int32(i)
	}
	v, err := FromSlice(data, 4, 4)
	require.NoError(t, err)

	s, err := v.Slice([]int{1, 2}, []int{3, End})
	require.NoError(t, err)
	assert.Equal(t, Shape{2, 2}, s.Shape())
	assert.Equal(t, 6, s.Offset())
	assert.Equal(t, []int32{6, 7, 10, 11}, ToSlice[int32](s))
	assert.Same(t, v.Block(), s.Block())

	_, err = v.Slice([]int{0, 3}, []int{4, 2})
	assert.ErrorIs(t, err, errs.ErrInvalidSize)
	_, err = v.Slice([]int{0}, []int{4})
	assert.ErrorIs(t, err, errs.ErrInvalidSize)
}

func TestView_Sub(t *testing.T) {
	v, err := FromSlice([]float64{1, 2, 3, 4, 5, 6}, 3, 2)
	require.NoError(t, err)

	row := v.Sub(2)
	assert.Equal(t, Shape{2}, row.Shape())
	assert.Equal(t, []float64{5, 6}, ToSlice[float64](row))

	assert.Panics(t, func() { v.Sub(3) })
}

func TestView_OuterOffsets(t *testing.T) {
	v, err := Zeros(Shape{2, 3, 4, 5}, Float32)
	require.NoError(t, err)

	assert.Equal(t, []int{0}, v.OuterOffsets(0))
	assert.Equal(t, []int{0, 60}, v.OuterOffsets(1))
	assert.Equal(t, []int{0, 20, 40, 60, 80, 100}, v.OuterOffsets(2))
}

func TestNewStrided_Bounds(t *testing.T) {
	b := memory.NewBlock(memory.Host, 8*10)

	_, err := NewStrided(b, Shape{2, 5}, []int{5, 1}, 0, Float64)
	require.NoError(t, err)

	_, err = NewStrided(b, Shape{2, 5}, []int{5, 1}, 1, Float64)
	assert.ErrorIs(t, err, errs.ErrInvalidSize)

	_, err = NewStrided(b, Shape{2, 5}, []int{5, -1}, 0, Float64)
	assert.ErrorIs(t, err, errs.ErrNotSupported)

	_, err = NewStrided(nil, Shape{2}, []int{1}, 0, Float64)
	assert.ErrorIs(t, err, errs.ErrInvalidParameter)
}

func TestView_AllocFree(t *testing.T) {
	a := memory.NewAllocator(memory.DefaultConfig())

	v, err := Alloc(a, memory.Device, Shape{3, 3}, Complex64, nil)
	require.NoError(t, err)
	assert.Equal(t, memory.Device, v.Space())
	assert.Equal(t, 72, v.Block().Size())

	sub := v.PermuteMatrix()
	assert.ErrorIs(t, sub.Free(a), errs.ErrAllocation)

	require.NoError(t, v.Free(a))
	assert.Equal(t, int64(0), a.Stats().CurrentBytes)
}

func TestData_TypeMismatchPanics(t *testing.T) {
	v, err := Zeros(Shape{2}, Float32)
	require.NoError(t, err)
	assert.Panics(t, func() { Data[float64](v) })
}

func TestFill(t *testing.T) {
	v, err := Zeros(Shape{2, 3}, Float64)
	require.NoError(t, err)

	vt := v.PermuteMatrix()
	Fill(vt, []float64{1, 2, 3, 4, 5, 6})
	assert.Equal(t, []float64{1, 3, 5, 2, 4, 6}, ToSlice[float64](v))
}

func TestView_SameLayout(t *testing.T) {
	a, _ := Zeros(Shape{4, 8}, Float32)
	b, _ := Zeros(Shape{4, 8}, Float32)
	c, _ := Zeros(Shape{4, 8}, Float64)
	assert.True(t, a.SameLayout(b))
	assert.False(t, a.SameLayout(c))
	assert.False(t, a.SameLayout(a.PermuteMatrix()))
}
