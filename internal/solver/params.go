// Package solver plans and runs batched dense factorizations: Cholesky, LU,
// QR, SVD and the symmetric eigensolver, plus the LU determinant.
//
// Callers pass row-major views. The vendor contract is column-major, so each
// call transposes its input into scratch, factors every matrix of the batch
// there and copies the factors back into the caller's output views.
package solver

import (
	"log/slog"

	"github.com/born-ml/xform/internal/backend"
	"github.com/born-ml/xform/internal/errs"
	"github.com/born-ml/xform/internal/plan"
	"github.com/born-ml/xform/internal/stream"
	"github.com/born-ml/xform/internal/tensor"
)

// numKinds is the number of factorization families.
const numKinds = int(backend.Eig) + 1

// Params fully determines a solver plan. Fields a family does not use stay
// zero.
type Params struct {
	Kind   backend.SolverKind
	M, N   int
	LDA    int
	Batch  int
	Uplo   backend.Uplo
	JobZ   backend.EigJob
	JobU   backend.SVDJob
	JobVT  backend.SVDJob
	DType  tensor.DataType
	Stream stream.ID
}

// Hash combines the family, dimensions, batch and stream.
func Hash(p Params) uint64 {
	return plan.NewHasher().
		Ints(int(p.Kind), p.M, p.N, p.Batch).
		Uint64(uint64(p.Stream)).
		Sum()
}

// Equal compares every field, including the triangle and job flags.
func Equal(a, b Params) bool {
	return a == b
}

// K returns min(M, N).
func (p Params) K() int {
	return min(p.M, p.N)
}

// UCols returns the number of left singular vectors produced.
func (p Params) UCols() int {
	return svdExtent(p.JobU, p.M, p.K())
}

// VTRows returns the number of right singular vectors produced.
func (p Params) VTRows() int {
	return svdExtent(p.JobVT, p.N, p.K())
}

func svdExtent(job backend.SVDJob, full, k int) int {
	switch job {
	case backend.SVDAll:
		return full
	case backend.SVDSlim:
		return k
	default:
		return 0
	}
}

// Config converts the parameters to the vendor configuration.
func (p Params) Config() backend.SolverConfig {
	return backend.SolverConfig{
		Kind:  p.Kind,
		DType: p.DType,
		M:     p.M,
		N:     p.N,
		LDA:   p.LDA,
		Uplo:  p.Uplo,
		JobZ:  p.JobZ,
		JobU:  p.JobU,
		JobVT: p.JobVT,
		LDU:   max(1, p.M),
		LDVT:  max(1, p.VTRows()),
	}
}

// LogValue implements slog.LogValuer.
func (p Params) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("kind", p.Kind.String()),
		slog.Int("m", p.M),
		slog.Int("n", p.N),
		slog.Int("batch", p.Batch),
		slog.String("dtype", p.DType.String()),
		slog.Uint64("stream", uint64(p.Stream)),
	}
	switch p.Kind {
	case backend.Cholesky:
		attrs = append(attrs, slog.String("uplo", p.Uplo.String()))
	case backend.SVD:
		attrs = append(attrs, slog.String("jobs", string([]byte{byte(p.JobU), byte(p.JobVT)})))
	case backend.Eig:
		attrs = append(attrs, slog.String("uplo", p.Uplo.String()), slog.Bool("vectors", p.JobZ == backend.EigVectors))
	}
	return slog.GroupValue(attrs...)
}

// deduce derives the shared parameters of a factorization of the matrices
// in the last two dimensions of in.
func deduce(kind backend.SolverKind, in *tensor.View, id stream.ID) (Params, error) {
	op := kind.String()
	r := in.Rank()
	if r < 2 || r > tensor.MaxRank {
		return Params{}, errs.New(errs.KindInvalidSize, op, "rank %d input", r)
	}
	if !in.DType().IsFloat() {
		return Params{}, errs.New(errs.KindInvalidType, op, "%s input", in.DType())
	}
	m, n := in.Size(r-2), in.Size(r-1)
	if m <= 0 || n <= 0 {
		return Params{}, errs.New(errs.KindInvalidSize, op, "%dx%d matrix", m, n)
	}
	return Params{
		Kind:   kind,
		M:      m,
		N:      n,
		LDA:    m,
		Batch:  in.Shape().Batch(2),
		DType:  in.DType(),
		Stream: id,
	}, nil
}

// validate rechecks a descriptor that may not have come from a Deduce
// function.
func (p Params) validate(op string) error {
	if int(p.Kind) < 0 || int(p.Kind) >= numKinds {
		return errs.New(errs.KindInvalidParameter, op, "unknown factorization %d", int(p.Kind))
	}
	if p.M <= 0 || p.N <= 0 || p.Batch <= 0 || p.LDA < p.M {
		return errs.New(errs.KindInvalidSize, op, "m=%d n=%d lda=%d batch=%d", p.M, p.N, p.LDA, p.Batch)
	}
	if !p.DType.IsFloat() {
		return errs.New(errs.KindInvalidType, op, "%s input", p.DType)
	}
	switch p.Kind {
	case backend.Cholesky:
		if err := checkSquare(p); err != nil {
			return err
		}
		return checkUplo(op, p.Uplo)
	case backend.Eig:
		if err := checkSquare(p); err != nil {
			return err
		}
		if err := checkUplo(op, p.Uplo); err != nil {
			return err
		}
		if p.JobZ != backend.EigVectors && p.JobZ != backend.EigValuesOnly {
			return errs.New(errs.KindInvalidParameter, op, "job %d", int(p.JobZ))
		}
	case backend.SVD:
		for _, job := range []backend.SVDJob{p.JobU, p.JobVT} {
			switch job {
			case backend.SVDAll, backend.SVDSlim, backend.SVDNone:
			default:
				return errs.New(errs.KindInvalidParameter, op, "job %q", rune(job))
			}
		}
	}
	return nil
}

func checkSquare(p Params) error {
	if p.M != p.N {
		return errs.New(errs.KindInvalidSize, p.Kind.String(), "%dx%d matrix is not square", p.M, p.N)
	}
	return nil
}

func checkUplo(op string, u backend.Uplo) error {
	if u != backend.Upper && u != backend.Lower {
		return errs.New(errs.KindInvalidParameter, op, "triangle %d", int(u))
	}
	return nil
}

// DeduceCholesky derives the parameters of a Cholesky factorization.
func DeduceCholesky(in *tensor.View, uplo backend.Uplo, id stream.ID) (Params, error) {
	p, err := deduce(backend.Cholesky, in, id)
	if err != nil {
		return Params{}, err
	}
	if err := checkSquare(p); err != nil {
		return Params{}, err
	}
	if err := checkUplo("cholesky", uplo); err != nil {
		return Params{}, err
	}
	p.Uplo = uplo
	return p, nil
}

// DeduceLU derives the parameters of an LU factorization with partial
// pivoting.
func DeduceLU(in *tensor.View, id stream.ID) (Params, error) {
	return deduce(backend.LU, in, id)
}

// DeduceQR derives the parameters of a Householder QR factorization.
func DeduceQR(in *tensor.View, id stream.ID) (Params, error) {
	return deduce(backend.QR, in, id)
}

// DeduceSVD derives the parameters of a singular value decomposition.
// Overwriting A with the vectors is not supported.
func DeduceSVD(in *tensor.View, jobU, jobVT backend.SVDJob, id stream.ID) (Params, error) {
	p, err := deduce(backend.SVD, in, id)
	if err != nil {
		return Params{}, err
	}
	for _, job := range []backend.SVDJob{jobU, jobVT} {
		switch job {
		case backend.SVDAll, backend.SVDSlim, backend.SVDNone:
		default:
			return Params{}, errs.New(errs.KindInvalidParameter, "svd", "job %q", rune(job))
		}
	}
	p.JobU, p.JobVT = jobU, jobVT
	return p, nil
}

// DeduceEig derives the parameters of a symmetric eigendecomposition.
func DeduceEig(in *tensor.View, jobZ backend.EigJob, uplo backend.Uplo, id stream.ID) (Params, error) {
	p, err := deduce(backend.Eig, in, id)
	if err != nil {
		return Params{}, err
	}
	if err := checkSquare(p); err != nil {
		return Params{}, err
	}
	if err := checkUplo("eig", uplo); err != nil {
		return Params{}, err
	}
	if jobZ != backend.EigVectors && jobZ != backend.EigValuesOnly {
		return Params{}, errs.New(errs.KindInvalidParameter, "eig", "job %d", int(jobZ))
	}
	p.JobZ, p.Uplo = jobZ, uplo
	return p, nil
}
