// Package tensor provides the strided view type consumed by every transform.
package tensor

// DType is a constraint for supported element types.
type DType interface {
	~float32 | ~float64 | ~complex64 | ~complex128 | ~int32 | ~int64
}

// Float is the constraint for real floating-point element types.
type Float interface {
	~float32 | ~float64
}

// Complex is the constraint for complex element types.
type Complex interface {
	~complex64 | ~complex128
}

// DataType represents runtime type information for views.
type DataType int

// Supported data types.
const (
	Float32 DataType = iota
	Float64
	Complex64
	Complex128
	Int32
	Int64
)

// Size returns the byte size of the data type.
func (dt DataType) Size() int {
	switch dt {
	case Float32, Int32:
		return 4
	case Float64, Int64, Complex64:
		return 8
	case Complex128:
		return 16
	default:
		panic("unknown data type")
	}
}

// String returns a human-readable name for the data type.
func (dt DataType) String() string {
	switch dt {
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case Complex64:
		return "complex64"
	case Complex128:
		return "complex128"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	default:
		return "unknown"
	}
}

// IsComplex reports whether dt is a complex type.
func (dt DataType) IsComplex() bool {
	return dt == Complex64 || dt == Complex128
}

// IsFloat reports whether dt is a real or complex floating-point type.
func (dt DataType) IsFloat() bool {
	return dt == Float32 || dt == Float64 || dt.IsComplex()
}

// Real returns the real counterpart of a complex type; real types map to themselves.
func (dt DataType) Real() DataType {
	switch dt {
	case Complex64:
		return Float32
	case Complex128:
		return Float64
	default:
		return dt
	}
}

// Complex returns the complex counterpart of a real floating-point type;
// complex types map to themselves.
func (dt DataType) Complex() DataType {
	switch dt {
	case Float32:
		return Complex64
	case Float64:
		return Complex128
	default:
		return dt
	}
}

// TypeOf returns the DataType of T.
func TypeOf[T DType]() DataType {
	var zero T
	switch any(zero).(type) {
	case float32:
		return Float32
	case float64:
		return Float64
	case complex64:
		return Complex64
	case complex128:
		return Complex128
	case int32:
		return Int32
	case int64:
		return Int64
	default:
		panic("unsupported type")
	}
}
