package solver

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/xform/internal/backend"
	"github.com/born-ml/xform/internal/backend/backendtest"
	"github.com/born-ml/xform/internal/backend/gonumlib"
	"github.com/born-ml/xform/internal/errs"
	"github.com/born-ml/xform/internal/memory"
	"github.com/born-ml/xform/internal/parallel"
	"github.com/born-ml/xform/internal/plan"
	"github.com/born-ml/xform/internal/stream"
	"github.com/born-ml/xform/internal/tensor"
)

const tol = 1e-10

type fixture struct {
	planner *Planner
	lib     *backendtest.Solver
	alloc   *memory.Allocator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		lib:   backendtest.NewSolver(gonumlib.LAPACK{}),
		alloc: memory.NewAllocator(memory.DefaultConfig()),
	}
	f.planner = New(Config{
		Library:      f.lib,
		Allocator:    f.alloc,
		Parallel:     parallel.DefaultConfig(),
		ScratchSpace: memory.AsyncDevice,
	})
	t.Cleanup(func() {
		assert.NoError(t, f.planner.Close())
		assert.Zero(t, f.lib.Live())
		assert.NoError(t, f.alloc.Close())
	})
	return f
}

func zeros(t *testing.T, dt tensor.DataType, shape ...int) *tensor.View {
	t.Helper()
	v, err := tensor.Zeros(tensor.Shape(shape), dt)
	require.NoError(t, err)
	return v
}

func fromSlice[T tensor.DType](t *testing.T, data []T, shape ...int) *tensor.View {
	t.Helper()
	v, err := tensor.FromSlice(data, shape...)
	require.NoError(t, err)
	return v
}

func random(r *rand.Rand, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = r.NormFloat64()
	}
	return out
}

// spd returns b*bᵀ + n*I for a random n x n matrix b.
func spd(r *rand.Rand, n int) []float64 {
	b := random(r, n*n)
	a := make([]float64, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			for k := 0; k < n; k++ {
				a[i*n+j] += b[i*n+k] * b[j*n+k]
			}
		}
		a[i*n+i] += float64(n)
	}
	return a
}

func symmetric(r *rand.Rand, n int) []float64 {
	a := random(r, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < i; j++ {
			a[j*n+i] = a[i*n+j]
		}
	}
	return a
}

// mul multiplies row-major m x k and k x n matrices.
func mul(a, b []float64, m, k, n int) []float64 {
	c := make([]float64, m*n)
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			for l := 0; l < k; l++ {
				c[i*n+j] += a[i*k+l] * b[l*n+j]
			}
		}
	}
	return c
}

func TestDeduce(t *testing.T) {
	f64 := func(shape ...int) *tensor.View { return zeros(t, tensor.Float64, shape...) }

	p, err := DeduceLU(f64(2, 3, 4, 5), 7)
	require.NoError(t, err)
	assert.Equal(t, Params{Kind: backend.LU, M: 4, N: 5, LDA: 4, Batch: 6, DType: tensor.Float64, Stream: 7}, p)
	assert.Equal(t, 4, p.K())

	p, err = DeduceSVD(f64(5, 3), backend.SVDAll, backend.SVDSlim, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, p.UCols())
	assert.Equal(t, 3, p.VTRows())
	assert.Equal(t, 5, p.Config().LDU)
	assert.Equal(t, 3, p.Config().LDVT)

	_, err = DeduceCholesky(f64(3, 4), backend.Lower, 0)
	assert.ErrorIs(t, err, errs.ErrInvalidSize)
	_, err = DeduceCholesky(f64(3, 3), backend.Uplo(5), 0)
	assert.ErrorIs(t, err, errs.ErrInvalidParameter)
	_, err = DeduceQR(f64(3), 0)
	assert.ErrorIs(t, err, errs.ErrInvalidSize)
	_, err = DeduceQR(zeros(t, tensor.Int64, 3, 3), 0)
	assert.ErrorIs(t, err, errs.ErrInvalidType)
	_, err = DeduceSVD(f64(3, 3), backend.SVDOverwrite, backend.SVDNone, 0)
	assert.ErrorIs(t, err, errs.ErrInvalidParameter)
	_, err = DeduceEig(f64(3, 3), backend.EigJob(9), backend.Lower, 0)
	assert.ErrorIs(t, err, errs.ErrInvalidParameter)
	_, err = DeduceEig(f64(2, 3), backend.EigVectors, backend.Lower, 0)
	assert.ErrorIs(t, err, errs.ErrInvalidSize)
}

func TestDeduce_DeterministicAcrossStorage(t *testing.T) {
	a, err := DeduceQR(zeros(t, tensor.Float32, 2, 4, 3), 1)
	require.NoError(t, err)
	b, err := DeduceQR(zeros(t, tensor.Float32, 2, 4, 3), 1)
	require.NoError(t, err)
	assert.True(t, Equal(a, b))
	assert.Equal(t, Hash(a), Hash(b))
}

func TestHashEqualContract(t *testing.T) {
	r := rand.New(rand.NewSource(1112))
	ps := make([]Params, 300)
	for i := range ps {
		ps[i] = Params{
			Kind:   backend.SolverKind(r.Intn(2)),
			M:      1 + r.Intn(2),
			N:      1 + r.Intn(2),
			Batch:  1 + r.Intn(2),
			Uplo:   backend.Uplo(r.Intn(2)),
			JobU:   []backend.SVDJob{backend.SVDAll, backend.SVDNone}[r.Intn(2)],
			DType:  tensor.DataType(r.Intn(2)),
			Stream: stream.ID(r.Intn(2)),
		}
	}
	for i := range ps {
		for j := range ps {
			if Equal(ps[i], ps[j]) {
				require.Equal(t, Hash(ps[i]), Hash(ps[j]))
			}
		}
	}
}

func TestCholesky_Known(t *testing.T) {
	f := newFixture(t)
	in := fromSlice(t, []float64{4, 2, 2, 3}, 2, 2)

	lower := zeros(t, tensor.Float64, 2, 2)
	require.NoError(t, f.planner.Cholesky(lower, in, backend.Lower, nil))
	assert.InDelta(t, 2, tensor.At[float64](lower, 0, 0), tol)
	assert.InDelta(t, 1, tensor.At[float64](lower, 1, 0), tol)
	assert.InDelta(t, math.Sqrt2, tensor.At[float64](lower, 1, 1), tol)

	upper := zeros(t, tensor.Float64, 2, 2)
	require.NoError(t, f.planner.Cholesky(upper, in, backend.Upper, nil))
	assert.InDelta(t, 2, tensor.At[float64](upper, 0, 0), tol)
	assert.InDelta(t, 1, tensor.At[float64](upper, 0, 1), tol)
	assert.InDelta(t, math.Sqrt2, tensor.At[float64](upper, 1, 1), tol)

	assert.Equal(t, []float64{4, 2, 2, 3}, tensor.ToSlice[float64](in))
	assert.Equal(t, 2, f.planner.Stats()["cholesky"].Entries)
}

func TestCholesky_BatchReconstructs(t *testing.T) {
	f := newFixture(t)
	r := rand.New(rand.NewSource(11))
	const batch, n = 5, 4

	var data []float64
	for b := 0; b < batch; b++ {
		data = append(data, spd(r, n)...)
	}
	in := fromSlice(t, data, batch, n, n)
	require.NoError(t, f.planner.Cholesky(in, in, backend.Lower, nil))

	got := tensor.ToSlice[float64](in)
	for b := 0; b < batch; b++ {
		l := make([]float64, n*n)
		lt := make([]float64, n*n)
		for i := 0; i < n; i++ {
			for j := 0; j <= i; j++ {
				l[i*n+j] = got[b*n*n+i*n+j]
				lt[j*n+i] = l[i*n+j]
			}
		}
		assert.InDeltaSlice(t, data[b*n*n:(b+1)*n*n], mul(l, lt, n, n, n), 1e-9)
	}
	assert.EqualValues(t, batch, f.lib.Executes.Load())
}

func TestCholesky_NotPositiveDefinite(t *testing.T) {
	f := newFixture(t)
	in := fromSlice(t, []float32{1, 2, 2, 1}, 2, 2)
	err := f.planner.Cholesky(zeros(t, tensor.Float32, 2, 2), in, backend.Lower, nil)
	assert.ErrorIs(t, err, errs.ErrVendor)
}

// luCheck verifies Pᵀ*A = L*U for the row-major factors.
func luCheck(t *testing.T, a, lu []float64, piv []int64, m, n int) {
	t.Helper()
	k := min(m, n)
	pa := append([]float64(nil), a...)
	for i := 0; i < k; i++ {
		p := int(piv[i]) - 1
		require.GreaterOrEqual(t, p, i)
		for j := 0; j < n; j++ {
			pa[i*n+j], pa[p*n+j] = pa[p*n+j], pa[i*n+j]
		}
	}
	l := make([]float64, m*k)
	u := make([]float64, k*n)
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			switch {
			case i > j && j < k:
				l[i*k+j] = lu[i*n+j]
			case i <= j && i < k:
				u[i*n+j] = lu[i*n+j]
			}
		}
		if i < k {
			l[i*k+i] = 1
		}
	}
	assert.InDeltaSlice(t, pa, mul(l, u, m, k, n), 1e-9)
}

func TestLU_Reconstructs(t *testing.T) {
	f := newFixture(t)
	r := rand.New(rand.NewSource(23))

	for _, tc := range []struct {
		name        string
		batch, m, n int
	}{
		{"Square", 3, 4, 4},
		{"Tall", 2, 5, 3},
		{"Wide", 1, 2, 4},
	} {
		t.Run(tc.name, func(t *testing.T) {
			k := min(tc.m, tc.n)
			data := random(r, tc.batch*tc.m*tc.n)
			in := fromSlice(t, data, tc.batch, tc.m, tc.n)
			out := zeros(t, tensor.Float64, tc.batch, tc.m, tc.n)
			piv := zeros(t, tensor.Int64, tc.batch, k)

			require.NoError(t, f.planner.LU(out, piv, in, nil))
			assert.Equal(t, data, tensor.ToSlice[float64](in))

			lu, pv := tensor.ToSlice[float64](out), tensor.ToSlice[int64](piv)
			sz := tc.m * tc.n
			for b := 0; b < tc.batch; b++ {
				luCheck(t, data[b*sz:(b+1)*sz], lu[b*sz:(b+1)*sz], pv[b*k:(b+1)*k], tc.m, tc.n)
			}
		})
	}
}

func TestLU_KnownPivot(t *testing.T) {
	f := newFixture(t)
	in := fromSlice(t, []float64{0, 2, 1, 3}, 2, 2)
	piv := zeros(t, tensor.Int64, 2)
	require.NoError(t, f.planner.LU(in, piv, in, nil))
	assert.InDeltaSlice(t, []float64{1, 3, 0, 2}, tensor.ToSlice[float64](in), tol)
	assert.Equal(t, []int64{2, 2}, tensor.ToSlice[int64](piv))
}

func TestLU_TransposedInputView(t *testing.T) {
	f := newFixture(t)
	r := rand.New(rand.NewSource(44))
	stored := random(r, 9)
	in := fromSlice(t, stored, 3, 3).PermuteMatrix()
	logical := tensor.ToSlice[float64](in)

	out := zeros(t, tensor.Float64, 3, 3)
	piv := zeros(t, tensor.Int64, 3)
	require.NoError(t, f.planner.LU(out, piv, in, nil))
	luCheck(t, logical, tensor.ToSlice[float64](out), tensor.ToSlice[int64](piv), 3, 3)
}

func TestLU_SingularIsVendorError(t *testing.T) {
	f := newFixture(t)
	in := fromSlice(t, []float64{1, 2, 2, 4}, 2, 2)
	err := f.planner.LU(zeros(t, tensor.Float64, 2, 2), zeros(t, tensor.Int64, 2), in, nil)
	assert.ErrorIs(t, err, errs.ErrVendor)
}

// qrCheck rebuilds Q from the Householder vectors and verifies Q*R = A.
func qrCheck(t *testing.T, a, qr, tau []float64, m, n int) {
	t.Helper()
	k := min(m, n)
	x := make([]float64, m*n)
	for i := 0; i < k; i++ {
		for j := i; j < n; j++ {
			x[i*n+j] = qr[i*n+j]
		}
	}
	for i := k - 1; i >= 0; i-- {
		v := make([]float64, m)
		v[i] = 1
		for j := i + 1; j < m; j++ {
			v[j] = qr[j*n+i]
		}
		for c := 0; c < n; c++ {
			dot := 0.0
			for j := 0; j < m; j++ {
				dot += v[j] * x[j*n+c]
			}
			for j := 0; j < m; j++ {
				x[j*n+c] -= tau[i] * v[j] * dot
			}
		}
	}
	assert.InDeltaSlice(t, a, x, 1e-9)
}

func TestQR_Reconstructs(t *testing.T) {
	f := newFixture(t)
	r := rand.New(rand.NewSource(56))
	const batch, m, n = 2, 5, 3

	data := random(r, batch*m*n)
	in := fromSlice(t, data, batch, m, n)
	out := zeros(t, tensor.Float64, batch, m, n)
	tau := zeros(t, tensor.Float64, batch, n)
	require.NoError(t, f.planner.QR(out, tau, in, nil))

	qr, ts := tensor.ToSlice[float64](out), tensor.ToSlice[float64](tau)
	for b := 0; b < batch; b++ {
		qrCheck(t, data[b*m*n:(b+1)*m*n], qr[b*m*n:(b+1)*m*n], ts[b*n:(b+1)*n], m, n)
	}
}

func TestQR_Known(t *testing.T) {
	f := newFixture(t)
	in := fromSlice(t, []float64{3, 1, 4, 2}, 2, 2)
	tau := zeros(t, tensor.Float64, 2)
	require.NoError(t, f.planner.QR(in, tau, in, nil))
	assert.InDelta(t, 5, math.Abs(tensor.At[float64](in, 0, 0)), tol)
	assert.InDelta(t, 2.2, math.Abs(tensor.At[float64](in, 0, 1)), tol)
	assert.InDelta(t, 0.4, math.Abs(tensor.At[float64](in, 1, 1)), tol)
}

func TestSVD(t *testing.T) {
	r := rand.New(rand.NewSource(78))
	const m, n, k = 4, 3, 3
	data := random(r, m*n)

	t.Run("Slim", func(t *testing.T) {
		f := newFixture(t)
		in := fromSlice(t, data, m, n)
		u, s, vt := zeros(t, tensor.Float64, m, k), zeros(t, tensor.Float64, k), zeros(t, tensor.Float64, k, n)
		require.NoError(t, f.planner.SVD(u, s, vt, in, backend.SVDSlim, backend.SVDSlim, nil))
		assert.Equal(t, data, tensor.ToSlice[float64](in))

		sv := tensor.ToSlice[float64](s)
		assert.GreaterOrEqual(t, sv[0], sv[1])
		assert.GreaterOrEqual(t, sv[1], sv[2])
		us := tensor.ToSlice[float64](u)
		for i := 0; i < m; i++ {
			for j := 0; j < k; j++ {
				us[i*k+j] *= sv[j]
			}
		}
		assert.InDeltaSlice(t, data, mul(us, tensor.ToSlice[float64](vt), m, k, n), 1e-9)
	})

	t.Run("AllOrthogonal", func(t *testing.T) {
		f := newFixture(t)
		in := fromSlice(t, data, m, n)
		u, s, vt := zeros(t, tensor.Float64, m, m), zeros(t, tensor.Float64, k), zeros(t, tensor.Float64, n, n)
		require.NoError(t, f.planner.SVD(u, s, vt, in, backend.SVDAll, backend.SVDAll, nil))

		us := tensor.ToSlice[float64](u)
		ut := make([]float64, m*m)
		for i := 0; i < m; i++ {
			for j := 0; j < m; j++ {
				ut[j*m+i] = us[i*m+j]
			}
		}
		eye := make([]float64, m*m)
		for i := 0; i < m; i++ {
			eye[i*m+i] = 1
		}
		assert.InDeltaSlice(t, eye, mul(ut, us, m, m, m), 1e-9)
	})

	t.Run("ValuesOnly", func(t *testing.T) {
		f := newFixture(t)
		in := fromSlice(t, data, m, n)
		slim := zeros(t, tensor.Float64, k)
		require.NoError(t, f.planner.SVD(zeros(t, tensor.Float64, m, k), slim, zeros(t, tensor.Float64, k, n),
			in, backend.SVDSlim, backend.SVDSlim, nil))

		s := zeros(t, tensor.Float64, k)
		require.NoError(t, f.planner.SVD(nil, s, nil, in, backend.SVDNone, backend.SVDNone, nil))
		assert.InDeltaSlice(t, tensor.ToSlice[float64](slim), tensor.ToSlice[float64](s), 1e-9)
	})

	t.Run("Errors", func(t *testing.T) {
		f := newFixture(t)
		in := fromSlice(t, data, m, n)
		s := zeros(t, tensor.Float64, k)
		err := f.planner.SVD(nil, s, nil, in, backend.SVDOverwrite, backend.SVDNone, nil)
		assert.ErrorIs(t, err, errs.ErrInvalidParameter)
		err = f.planner.SVD(nil, s, nil, in, backend.SVDSlim, backend.SVDNone, nil)
		assert.ErrorIs(t, err, errs.ErrInvalidParameter)
		err = f.planner.SVD(zeros(t, tensor.Float64, m, m), s, nil, in, backend.SVDSlim, backend.SVDNone, nil)
		assert.ErrorIs(t, err, errs.ErrInvalidSize)
		err = f.planner.SVD(nil, zeros(t, tensor.Float32, k), nil, in, backend.SVDNone, backend.SVDNone, nil)
		assert.ErrorIs(t, err, errs.ErrInvalidType)
		assert.Zero(t, f.lib.Vendor())
	})
}

func TestEig(t *testing.T) {
	f := newFixture(t)
	r := rand.New(rand.NewSource(910))
	const n = 4
	data := symmetric(r, n)
	in := fromSlice(t, data, n, n)

	vecs := zeros(t, tensor.Float64, n, n)
	w := zeros(t, tensor.Float64, n)
	require.NoError(t, f.planner.Eig(vecs, w, in, backend.EigVectors, backend.Lower, nil))

	ws, vs := tensor.ToSlice[float64](w), tensor.ToSlice[float64](vecs)
	av := mul(data, vs, n, n, n)
	for j := 0; j < n; j++ {
		if j > 0 {
			assert.LessOrEqual(t, ws[j-1], ws[j])
		}
		for i := 0; i < n; i++ {
			assert.InDelta(t, ws[j]*vs[i*n+j], av[i*n+j], 1e-9)
		}
	}

	only := zeros(t, tensor.Float64, n)
	require.NoError(t, f.planner.Eig(nil, only, in, backend.EigValuesOnly, backend.Upper, nil))
	assert.InDeltaSlice(t, ws, tensor.ToSlice[float64](only), 1e-9)
	assert.Equal(t, 2, f.planner.Stats()["eig"].Entries)
}

func TestEig_Known(t *testing.T) {
	f := newFixture(t)
	in := fromSlice(t, []float32{2, 1, 1, 2}, 2, 2)
	w := zeros(t, tensor.Float32, 2)
	vecs := zeros(t, tensor.Float32, 2, 2)
	require.NoError(t, f.planner.Eig(vecs, w, in, backend.EigVectors, backend.Upper, nil))
	assert.InDeltaSlice(t, []float32{1, 3}, tensor.ToSlice[float32](w), 1e-5)
	for _, v := range tensor.ToSlice[float32](vecs) {
		assert.InDelta(t, 1/math.Sqrt2, math.Abs(float64(v)), 1e-5)
	}
}

func TestDet(t *testing.T) {
	f := newFixture(t)

	t.Run("Single", func(t *testing.T) {
		out := zeros(t, tensor.Float64, 1)
		require.NoError(t, f.planner.Det(out, fromSlice(t, []float64{1, 2, 3, 4}, 2, 2), nil))
		assert.InDelta(t, -2, tensor.At[float64](out, 0), tol)
	})

	t.Run("Batch", func(t *testing.T) {
		in := fromSlice(t, []float64{
			0, 1, 0, 1, 0, 0, 0, 0, 1,
			2, 0, 0, 0, 3, 0, 0, 0, 4,
			1, 2, 3, 2, 4, 6, 1, 1, 1,
			2, 1, 0, 1, 3, 1, 0, 1, 4,
		}, 4, 3, 3)
		out := zeros(t, tensor.Float64, 4)
		require.NoError(t, f.planner.Det(out, in, nil))
		assert.InDeltaSlice(t, []float64{-1, 24, 0, 18}, tensor.ToSlice[float64](out), 1e-9)
	})

	t.Run("Float32", func(t *testing.T) {
		out := zeros(t, tensor.Float32, 1)
		require.NoError(t, f.planner.Det(out, fromSlice(t, []float32{0, 2, 3, 0}, 2, 2), nil))
		assert.InDelta(t, -6, float64(tensor.At[float32](out, 0)), 1e-5)
	})

	t.Run("Errors", func(t *testing.T) {
		in := zeros(t, tensor.Float64, 2, 3, 3)
		assert.ErrorIs(t, f.planner.Det(zeros(t, tensor.Float64, 3), in, nil), errs.ErrInvalidSize)
		assert.ErrorIs(t, f.planner.Det(zeros(t, tensor.Float32, 2), in, nil), errs.ErrInvalidType)
		assert.ErrorIs(t, f.planner.Det(zeros(t, tensor.Float64, 2), zeros(t, tensor.Float64, 2, 3, 4), nil), errs.ErrInvalidSize)
		c := zeros(t, tensor.Complex128, 2, 2)
		assert.ErrorIs(t, f.planner.Det(zeros(t, tensor.Complex128, 1), c, nil), errs.ErrNotSupported)
	})
}

func TestCache_HitsAndMisses(t *testing.T) {
	f := newFixture(t)
	r := rand.New(rand.NewSource(1314))
	s := stream.New()
	defer s.Close()

	chol := func(n, batch int, uplo backend.Uplo, st *stream.Stream) {
		var data []float64
		for b := 0; b < batch; b++ {
			data = append(data, spd(r, n)...)
		}
		in := fromSlice(t, data, batch, n, n)
		require.NoError(t, f.planner.Cholesky(in, in, uplo, st))
		require.NoError(t, stream.Or(st).Synchronize())
	}

	chol(3, 2, backend.Lower, nil)
	chol(3, 2, backend.Lower, nil)
	assert.EqualValues(t, 1, f.lib.Creates.Load())
	assert.EqualValues(t, 1, f.lib.Queries.Load())
	assert.EqualValues(t, 1, f.lib.Configures.Load())
	assert.EqualValues(t, 4, f.lib.Executes.Load())

	chol(4, 2, backend.Lower, nil)
	chol(3, 3, backend.Lower, nil)
	chol(3, 2, backend.Upper, nil)
	chol(3, 2, backend.Lower, s)
	assert.EqualValues(t, 5, f.lib.Creates.Load())
	assert.Equal(t, plan.Stats{Entries: 5, Hits: 1, Misses: 5, Builds: 5}, f.planner.Stats()["cholesky"])
	assert.Zero(t, f.planner.Stats()["lu"].Entries)
}

func TestAsyncStream(t *testing.T) {
	f := newFixture(t)
	s := stream.New()
	defer s.Close()

	in := fromSlice(t, []float32{0, 2, 1, 3}, 2, 2)
	out := zeros(t, tensor.Float32, 2, 2)
	piv := zeros(t, tensor.Int64, 2)
	det := zeros(t, tensor.Float32, 1)

	require.NoError(t, f.planner.LU(out, piv, in, s))
	require.NoError(t, f.planner.Det(det, in, s))
	require.NoError(t, s.Synchronize())

	assert.InDeltaSlice(t, []float32{1, 3, 0, 2}, tensor.ToSlice[float32](out), 1e-6)
	assert.Equal(t, []int64{2, 2}, tensor.ToSlice[int64](piv))
	assert.InDelta(t, -2, float64(tensor.At[float32](det, 0)), 1e-6)
}

func TestComplexNotSupported(t *testing.T) {
	f := newFixture(t)
	in := zeros(t, tensor.Complex128, 2, 2)
	err := f.planner.QR(in, zeros(t, tensor.Complex128, 2), in, nil)
	assert.ErrorIs(t, err, errs.ErrNotSupported)
	assert.Zero(t, f.lib.Live())
	assert.Equal(t, plan.Stats{Misses: 1, Failed: 1}, f.planner.Stats()["qr"])
}

func TestOutputMismatchMakesNoVendorCall(t *testing.T) {
	f := newFixture(t)
	in := zeros(t, tensor.Float64, 3, 3)

	assert.ErrorIs(t, f.planner.Cholesky(zeros(t, tensor.Float64, 3, 2), in, backend.Lower, nil), errs.ErrInvalidSize)
	assert.ErrorIs(t, f.planner.Cholesky(zeros(t, tensor.Float32, 3, 3), in, backend.Lower, nil), errs.ErrInvalidType)
	assert.ErrorIs(t, f.planner.LU(in, zeros(t, tensor.Int32, 3), in, nil), errs.ErrInvalidType)
	assert.ErrorIs(t, f.planner.LU(in, zeros(t, tensor.Int64, 2), in, nil), errs.ErrInvalidSize)
	assert.ErrorIs(t, f.planner.QR(in, nil, in, nil), errs.ErrInvalidParameter)
	assert.ErrorIs(t, f.planner.Eig(nil, zeros(t, tensor.Float64, 3), in, backend.EigVectors, backend.Lower, nil), errs.ErrInvalidParameter)
	assert.Zero(t, f.lib.Vendor())
}

func TestPlan_Direct(t *testing.T) {
	f := newFixture(t)
	params, err := DeduceLU(zeros(t, tensor.Float64, 2, 2), 0)
	require.NoError(t, err)
	pl, err := f.planner.Plan(params, nil)
	require.NoError(t, err)
	assert.Equal(t, plan.Ready, pl.State())

	// Row-major A is rejected; the vendor reads column-major.
	a := fromSlice(t, []float64{4, 3, 6, 3}, 2, 2)
	_, err = pl.Execute(Operands{A: a, Ipiv: zeros(t, tensor.Int64, 2)})
	assert.ErrorIs(t, err, errs.ErrNotSupported)
	_, err = pl.Execute(Operands{A: a.PermuteMatrix()})
	assert.ErrorIs(t, err, errs.ErrInvalidParameter)

	infos, err := pl.Execute(Operands{A: a.PermuteMatrix(), Ipiv: zeros(t, tensor.Int64, 2)})
	require.NoError(t, err)
	assert.Equal(t, []int{0}, infos)

	_, err = f.planner.Plan(Params{Kind: backend.SolverKind(42)}, nil)
	assert.ErrorIs(t, err, errs.ErrInvalidParameter)
	_, err = NewPlan(gonumlib.LAPACK{}, f.alloc, Params{Kind: backend.QR}, parallel.Sequential(), nil)
	assert.ErrorIs(t, err, errs.ErrInvalidSize)

	require.NoError(t, pl.Release())
	_, err = pl.Execute(Operands{A: a.PermuteMatrix(), Ipiv: zeros(t, tensor.Int64, 2)})
	assert.Error(t, err)
	assert.Equal(t, plan.Released, pl.State())
}

func TestNewPlan_ValidatesDescriptor(t *testing.T) {
	alloc := memory.NewAllocator(memory.DefaultConfig())
	defer alloc.Close()

	sq := Params{M: 3, N: 3, LDA: 3, Batch: 1, DType: tensor.Float64}
	with := func(kind backend.SolverKind, edit func(p *Params)) Params {
		p := sq
		p.Kind = kind
		if kind == backend.SVD {
			p.JobU, p.JobVT = backend.SVDSlim, backend.SVDSlim
		}
		edit(&p)
		return p
	}

	for name, tc := range map[string]struct {
		params Params
		want   error
	}{
		"CholeskyNotSquare": {with(backend.Cholesky, func(p *Params) { p.N = 4 }), errs.ErrInvalidSize},
		"CholeskyUplo":      {with(backend.Cholesky, func(p *Params) { p.Uplo = backend.Uplo(5) }), errs.ErrInvalidParameter},
		"EigNotSquare":      {with(backend.Eig, func(p *Params) { p.M, p.LDA = 4, 4 }), errs.ErrInvalidSize},
		"EigJob":            {with(backend.Eig, func(p *Params) { p.JobZ = backend.EigJob(9) }), errs.ErrInvalidParameter},
		"EigUplo":           {with(backend.Eig, func(p *Params) { p.Uplo = backend.Uplo(-1) }), errs.ErrInvalidParameter},
		"SVDOverwrite":      {with(backend.SVD, func(p *Params) { p.JobU = backend.SVDOverwrite }), errs.ErrInvalidParameter},
		"SVDUnknownJob":     {with(backend.SVD, func(p *Params) { p.JobVT = backend.SVDJob('x') }), errs.ErrInvalidParameter},
		"LeadingDimension":  {with(backend.LU, func(p *Params) { p.LDA = 2 }), errs.ErrInvalidSize},
		"EmptyBatch":        {with(backend.QR, func(p *Params) { p.Batch = 0 }), errs.ErrInvalidSize},
		"IntegerType":       {with(backend.LU, func(p *Params) { p.DType = tensor.Int64 }), errs.ErrInvalidType},
		"UnknownKind":       {with(backend.SolverKind(42), func(*Params) {}), errs.ErrInvalidParameter},
	} {
		t.Run(name, func(t *testing.T) {
			lib := backendtest.NewSolver(gonumlib.LAPACK{})
			_, err := NewPlan(lib, alloc, tc.params, parallel.Sequential(), nil)
			assert.ErrorIs(t, err, tc.want)
			assert.Zero(t, lib.Vendor())
		})
	}

	for _, kind := range []backend.SolverKind{backend.Cholesky, backend.LU, backend.QR, backend.SVD, backend.Eig} {
		t.Run("Valid"+kind.String(), func(t *testing.T) {
			lib := backendtest.NewSolver(gonumlib.LAPACK{})
			pl, err := NewPlan(lib, alloc, with(kind, func(*Params) {}), parallel.Sequential(), nil)
			require.NoError(t, err)
			require.NoError(t, pl.Release())
			assert.Zero(t, lib.Live())
		})
	}
}
