package gonumlib

import (
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/lapack"
	lapackgonum "gonum.org/v1/gonum/lapack/gonum"

	"github.com/born-ml/xform/internal/backend"
	"github.com/born-ml/xform/internal/errs"
	"github.com/born-ml/xform/internal/memory"
	"github.com/born-ml/xform/internal/tensor"
)

// LAPACK is the gonum dense solver library.
type LAPACK struct{}

var _ backend.SolverLibrary = LAPACK{}

// Name returns the library name.
func (LAPACK) Name() string {
	return "gonum/lapack"
}

// CreateSolver creates an unconfigured handle.
func (LAPACK) CreateSolver() (backend.SolverHandle, error) {
	return &solverHandle{}, nil
}

type solverHandle struct {
	impl       lapackgonum.Implementation
	cfg        backend.SolverConfig
	layout     solverLayout
	configured bool
}

// solverLayout sizes the per-matrix workspace, in float64 elements.
type solverLayout struct {
	a, ipiv, tau, s, u, vt, w, work int
	uCols, vtRows                   int
	lwork                           int
}

func (l solverLayout) bytes() int {
	n := 0
	for _, c := range []int{l.a, l.ipiv, l.tau, l.s, l.u, l.vt, l.w, l.work} {
		n += memory.AlignUp(c * 8)
	}
	return n
}

func (h *solverHandle) layoutFor(cfg backend.SolverConfig) (l solverLayout, err error) {
	defer errs.Recover("lapack", &err)

	switch cfg.DType {
	case tensor.Float32, tensor.Float64:
	case tensor.Complex64, tensor.Complex128:
		return l, errs.New(errs.KindNotSupported, "lapack", "%s %s factorization", cfg.DType, cfg.Kind)
	default:
		return l, errs.New(errs.KindInvalidType, "lapack", "%s factorization of %s", cfg.Kind, cfg.DType)
	}
	m, n := cfg.M, cfg.N
	if m <= 0 || n <= 0 || cfg.LDA < m {
		return l, errs.New(errs.KindInvalidSize, "lapack", "m=%d n=%d lda=%d", m, n, cfg.LDA)
	}
	k := min(m, n)
	l.a = m * n

	query := []float64{0}
	switch cfg.Kind {
	case backend.Cholesky:
		if m != n {
			return l, errs.New(errs.KindInvalidSize, "lapack", "cholesky of %dx%d", m, n)
		}
	case backend.LU:
		l.ipiv = k
	case backend.QR:
		l.tau = k
		h.impl.Dgeqrf(m, n, make([]float64, l.a), n, make([]float64, k), query, -1)
		l.lwork = int(query[0])
	case backend.SVD:
		jobU, jobVT, err := svdJobs(cfg)
		if err != nil {
			return l, err
		}
		l.s = k
		l.uCols = svdExtent(cfg.JobU, m, k)
		l.vtRows = svdExtent(cfg.JobVT, n, k)
		l.u = m * l.uCols
		l.vt = l.vtRows * n
		h.impl.Dgesvd(jobU, jobVT, m, n, make([]float64, l.a), n, make([]float64, k),
			make([]float64, l.u), max(1, l.uCols), make([]float64, l.vt), max(1, n), query, -1)
		l.lwork = int(query[0])
	case backend.Eig:
		if m != n {
			return l, errs.New(errs.KindInvalidSize, "lapack", "eig of %dx%d", m, n)
		}
		l.w = n
		h.impl.Dsyev(eigJob(cfg.JobZ), uplo(cfg.Uplo), n, make([]float64, l.a), n, make([]float64, n), query, -1)
		l.lwork = int(query[0])
	default:
		return l, errs.New(errs.KindInvalidParameter, "lapack", "unknown factorization %d", int(cfg.Kind))
	}
	l.work = l.lwork
	return l, nil
}

func svdJobs(cfg backend.SolverConfig) (u, vt lapack.SVDJob, err error) {
	conv := func(j backend.SVDJob) (lapack.SVDJob, error) {
		switch j {
		case backend.SVDAll:
			return lapack.SVDAll, nil
		case backend.SVDSlim:
			return lapack.SVDStore, nil
		case backend.SVDNone:
			return lapack.SVDNone, nil
		default:
			return 0, errs.New(errs.KindInvalidParameter, "lapack", "svd job %q", rune(j))
		}
	}
	if u, err = conv(cfg.JobU); err != nil {
		return 0, 0, err
	}
	if vt, err = conv(cfg.JobVT); err != nil {
		return 0, 0, err
	}
	return u, vt, nil
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

func eigJob(j backend.EigJob) lapack.EVJob {
	if j == backend.EigValuesOnly {
		return lapack.EVNone
	}
	return lapack.EVCompute
}

func uplo(u backend.Uplo) blas.Uplo {
	if u == backend.Lower {
		return blas.Lower
	}
	return blas.Upper
}

func (h *solverHandle) WorkspaceSize(cfg backend.SolverConfig) (host, device int, err error) {
	l, err := h.layoutFor(cfg)
	if err != nil {
		return 0, 0, err
	}
	return l.bytes(), 0, nil
}

func (h *solverHandle) Configure(cfg backend.SolverConfig) error {
	l, err := h.layoutFor(cfg)
	if err != nil {
		return err
	}
	h.cfg = cfg
	h.layout = l
	h.configured = true
	return nil
}

func (h *solverHandle) Execute(args backend.SolverArgs, ws backend.Workspace) (info int, err error) {
	defer errs.Recover("lapack", &err)

	if !h.configured {
		return 0, errs.New(errs.KindInvalidParameter, "lapack", "handle not configured")
	}
	if len(ws.Host) < h.layout.bytes() {
		return 0, errs.New(errs.KindInvalidSize, "lapack", "workspace %d bytes, need %d", len(ws.Host), h.layout.bytes())
	}
	if h.cfg.DType == tensor.Float32 {
		return execute[float32](h, args, ws)
	}
	return execute[float64](h, args, ws)
}

// scratch carves the workspace in layout order.
type scratch struct {
	buf []byte
}

func (s *scratch) take(n int) []float64 {
	out := memory.Reinterpret[float64](s.buf[:n*8])
	s.buf = s.buf[memory.AlignUp(n*8):]
	return out
}

func (s *scratch) takeInts(n int) []int {
	out := memory.Reinterpret[int](s.buf[:n*8])
	s.buf = s.buf[memory.AlignUp(n*8):]
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func execute[T float32 | float64](h *solverHandle, args backend.SolverArgs, ws backend.Workspace) (int, error) {
	cfg, l := h.cfg, h.layout
	m, n := cfg.M, cfg.N
	k := min(m, n)

	a, err := backend.Slice[T]("lapack", args.A)
	if err != nil {
		return 0, err
	}

	sc := &scratch{buf: ws.Host}
	r := sc.take(l.a)
	ipiv := sc.takeInts(l.ipiv)
	tau := sc.take(l.tau)
	s := sc.take(l.s)
	u := sc.take(l.u)
	vt := sc.take(l.vt)
	w := sc.take(l.w)
	work := sc.take(l.work)

	// Column-major (lda) to row-major (n).
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			r[i*n+j] = float64(a[i+j*cfg.LDA])
		}
	}

	info := 0
	switch cfg.Kind {
	case backend.Cholesky:
		if !h.impl.Dpotrf(uplo(cfg.Uplo), n, r, n) {
			info = 1
		}

	case backend.LU:
		piv, err := backend.Slice[int64]("lapack", args.Ipiv)
		if err != nil {
			return 0, err
		}
		if !h.impl.Dgetrf(m, n, r, n, ipiv) {
			info = 1
		}
		for i := 0; i < k; i++ {
			piv[i] = int64(ipiv[i]) + 1
		}

	case backend.QR:
		out, err := backend.Slice[T]("lapack", args.Tau)
		if err != nil {
			return 0, err
		}
		h.impl.Dgeqrf(m, n, r, n, tau, work, l.lwork)
		for i := 0; i < k; i++ {
			out[i] = T(tau[i])
		}

	case backend.SVD:
		jobU, jobVT, err := svdJobs(cfg)
		if err != nil {
			return 0, err
		}
		if !h.impl.Dgesvd(jobU, jobVT, m, n, r, n, s, u, max(1, l.uCols), vt, max(1, n), work, l.lwork) {
			info = 1
		}
		sOut, err := backend.Slice[T]("lapack", args.S)
		if err != nil {
			return 0, err
		}
		for i := 0; i < k; i++ {
			sOut[i] = T(s[i])
		}
		if l.uCols > 0 {
			uOut, err := backend.Slice[T]("lapack", args.U)
			if err != nil {
				return 0, err
			}
			toColMajor(uOut, u, m, l.uCols, cfg.LDU)
		}
		if l.vtRows > 0 {
			vtOut, err := backend.Slice[T]("lapack", args.VT)
			if err != nil {
				return 0, err
			}
			toColMajor(vtOut, vt, l.vtRows, n, cfg.LDVT)
		}
		// A is destroyed by the factorization; leave the caller's copy alone.
		return info, nil

	case backend.Eig:
		if !h.impl.Dsyev(eigJob(cfg.JobZ), uplo(cfg.Uplo), n, r, n, w, work, l.lwork) {
			info = 1
		}
		wOut, err := backend.Slice[T]("lapack", args.W)
		if err != nil {
			return 0, err
		}
		for i := 0; i < n; i++ {
			wOut[i] = T(w[i])
		}
	}

	toColMajor(a, r, m, n, cfg.LDA)
	return info, nil
}

// toColMajor writes the row-major rows x cols matrix src into dst with
// column-major leading dimension ld.
func toColMajor[T float32 | float64](dst []T, src []float64, rows, cols, ld int) {
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			dst[i+j*ld] = T(src[i*cols+j])
		}
	}
}

func (h *solverHandle) Destroy() error {
	h.configured = false
	return nil
}
