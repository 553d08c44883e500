package backend

import "github.com/born-ml/xform/internal/tensor"

// FFTType selects the transform variant by input and output element types.
type FFTType int

// FFT variants. Single precision first, then double.
const (
	C2C FFTType = iota // complex64 -> complex64
	R2C                // float32 -> complex64
	C2R                // complex64 -> float32
	Z2Z                // complex128 -> complex128
	D2Z                // float64 -> complex128
	Z2D                // complex128 -> float64
	InvalidFFT
)

// String returns the variant name.
func (t FFTType) String() string {
	switch t {
	case C2C:
		return "C2C"
	case R2C:
		return "R2C"
	case C2R:
		return "C2R"
	case Z2Z:
		return "Z2Z"
	case D2Z:
		return "D2Z"
	case Z2D:
		return "Z2D"
	default:
		return "invalid"
	}
}

// IsComplexToComplex reports whether both sides are complex.
func (t FFTType) IsComplexToComplex() bool {
	return t == C2C || t == Z2Z
}

// IsRealToComplex reports whether the input is real.
func (t FFTType) IsRealToComplex() bool {
	return t == R2C || t == D2Z
}

// IsComplexToReal reports whether the output is real.
func (t FFTType) IsComplexToReal() bool {
	return t == C2R || t == Z2D
}

// IsDouble reports whether the variant is double precision.
func (t FFTType) IsDouble() bool {
	return t == Z2Z || t == D2Z || t == Z2D
}

// FFTTypeOf deduces the variant from input and output element types.
func FFTTypeOf(in, out tensor.DataType) FFTType {
	switch {
	case in == tensor.Complex128 && out == tensor.Complex128:
		return Z2Z
	case in == tensor.Float64 && out == tensor.Complex128:
		return D2Z
	case in == tensor.Complex128 && out == tensor.Float64:
		return Z2D
	case in == tensor.Complex64 && out == tensor.Complex64:
		return C2C
	case in == tensor.Float32 && out == tensor.Complex64:
		return R2C
	case in == tensor.Complex64 && out == tensor.Float32:
		return C2R
	default:
		return InvalidFFT
	}
}

// Direction of a transform.
type Direction int

// Transform directions.
const (
	Forward Direction = iota
	Inverse
)

// String returns the direction name.
func (d Direction) String() string {
	if d == Inverse {
		return "inverse"
	}
	return "forward"
}

// FFTConfig is the vendor-facing description of a batched 1D or 2D FFT.
//
// N, InEmbed and OutEmbed are ordered fastest dimension first. Element x
// (and row y for rank 2) of batch b of the input lives at
//
//	b*IDist + (y*InEmbed[0] + x)*IStride
//
// and likewise for the output.
type FFTConfig struct {
	Rank     int
	N        [2]int
	Batch    int
	InEmbed  [2]int
	OutEmbed [2]int
	IStride  int
	OStride  int
	IDist    int
	ODist    int
	Type     FFTType
}

// Elements returns the number of points in one transform.
func (c FFTConfig) Elements() int {
	if c.Rank == 2 {
		return c.N[0] * c.N[1]
	}
	return c.N[0]
}

// FFTLibrary creates FFT handles.
type FFTLibrary interface {
	Name() string
	CreateFFT() (FFTHandle, error)
}

// FFTHandle is a configured vendor FFT.
type FFTHandle interface {
	// WorkspaceSize reports the scratch the configuration needs.
	WorkspaceSize(cfg FFTConfig) (host, device int, err error)
	// Configure binds the configuration and workspace.
	Configure(cfg FFTConfig, ws Workspace) error
	// Execute runs all batches. Inverse transforms are unnormalized.
	Execute(dir Direction, in, out Ptr) error
	// Destroy releases vendor resources.
	Destroy() error
}
