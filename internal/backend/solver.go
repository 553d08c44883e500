package backend

import "github.com/born-ml/xform/internal/tensor"

// SolverKind selects the dense factorization.
type SolverKind int

// Factorizations.
const (
	Cholesky SolverKind = iota
	LU
	QR
	SVD
	Eig
)

// String returns the factorization name.
func (k SolverKind) String() string {
	switch k {
	case Cholesky:
		return "cholesky"
	case LU:
		return "lu"
	case QR:
		return "qr"
	case SVD:
		return "svd"
	case Eig:
		return "eig"
	default:
		return "unknown"
	}
}

// Uplo selects a triangle.
type Uplo int

// Triangles.
const (
	Upper Uplo = iota
	Lower
)

// String returns the triangle name.
func (u Uplo) String() string {
	if u == Lower {
		return "lower"
	}
	return "upper"
}

// SVDJob controls how many singular vectors are produced.
type SVDJob byte

// Singular vector jobs.
const (
	SVDAll       SVDJob = 'A' // All columns of U (rows of VT).
	SVDSlim      SVDJob = 'S' // The leading min(m, n).
	SVDOverwrite SVDJob = 'O' // Overwrite A; not supported.
	SVDNone      SVDJob = 'N' // No vectors.
)

// EigJob controls whether eigenvectors are produced.
type EigJob int

// Eigen jobs.
const (
	EigVectors EigJob = iota
	EigValuesOnly
)

// SolverConfig describes one column-major factorization of an M x N matrix
// with leading dimension LDA. Pivots use the 1-based LAPACK convention.
type SolverConfig struct {
	Kind  SolverKind
	DType tensor.DataType
	M     int
	N     int
	LDA   int
	Uplo  Uplo
	JobZ  EigJob
	JobU  SVDJob
	JobVT SVDJob
	LDU   int
	LDVT  int
}

// SolverArgs holds the operands of one factorization. Unused fields are zero.
type SolverArgs struct {
	A    Ptr // Matrix, overwritten by the factors.
	Ipiv Ptr // LU pivots ([]int64).
	Tau  Ptr // QR Householder scalars.
	S    Ptr // Singular values (real).
	U    Ptr // Left singular vectors.
	VT   Ptr // Right singular vectors, transposed.
	W    Ptr // Eigenvalues (real).
}

// SolverLibrary creates solver handles.
type SolverLibrary interface {
	Name() string
	CreateSolver() (SolverHandle, error)
}

// SolverHandle is a configured vendor dense solver.
type SolverHandle interface {
	// WorkspaceSize reports the per-matrix scratch for the configuration.
	WorkspaceSize(cfg SolverConfig) (host, device int, err error)
	Configure(cfg SolverConfig) error
	// Execute factors one matrix. info is the LAPACK status: 0 on success,
	// > 0 when the factorization broke down. Calls with distinct workspaces
	// and operands may run concurrently.
	Execute(args SolverArgs, ws Workspace) (info int, err error)
	Destroy() error
}
