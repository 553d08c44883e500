// Package gonumlib implements the vendor contracts on top of gonum:
// dsp/fourier for FFTs, blas for GEMM and lapack for the dense solvers.
//
// The solver handle honours the column-major contract of backend.SolverHandle
// by converting each matrix to gonum's row-major layout inside its workspace.
package gonumlib

import (
	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/born-ml/xform/internal/backend"
	"github.com/born-ml/xform/internal/errs"
	"github.com/born-ml/xform/internal/memory"
)

// FFT is the gonum FFT library.
type FFT struct{}

var _ backend.FFTLibrary = FFT{}

// Name returns the library name.
func (FFT) Name() string {
	return "gonum/fourier"
}

// CreateFFT creates an unconfigured handle.
func (FFT) CreateFFT() (backend.FFTHandle, error) {
	return &fftHandle{}, nil
}

type fftHandle struct {
	cfg        backend.FFTConfig
	configured bool

	// Transform objects for the fast (x) and slow (y) dimensions.
	cx, cy *fourier.CmplxFFT
	rx     *fourier.FFT

	grid  []complex128 // Rank 2 working grid, ny rows of gx columns.
	seq   []complex128
	dst   []complex128
	reals []float64
}

type fftLayout struct {
	nx, ny int // Logical lengths, fastest first.
	gx     int // Columns of the working grid.
	line   int
	host   int
}

func layoutFFT(cfg backend.FFTConfig) (fftLayout, error) {
	if cfg.Type == backend.InvalidFFT {
		return fftLayout{}, errs.New(errs.KindInvalidType, "fourier", "invalid transform type")
	}
	if cfg.Rank != 1 && cfg.Rank != 2 {
		return fftLayout{}, errs.New(errs.KindNotSupported, "fourier", "rank %d transforms", cfg.Rank)
	}
	l := fftLayout{nx: cfg.N[0], ny: 1}
	if cfg.Rank == 2 {
		l.ny = cfg.N[1]
	}
	if l.nx <= 0 || l.ny <= 0 || cfg.Batch <= 0 {
		return fftLayout{}, errs.New(errs.KindInvalidSize, "fourier", "n=%v batch=%d", cfg.N, cfg.Batch)
	}

	l.gx = l.nx
	if !cfg.Type.IsComplexToComplex() {
		l.gx = l.nx/2 + 1
	}
	l.line = max(l.nx, l.ny)

	grid := 0
	if cfg.Rank == 2 {
		grid = l.ny * l.gx
	}
	l.host = memory.AlignUp(grid*16) + 2*memory.AlignUp(l.line*16) + memory.AlignUp(l.line*8)
	return l, nil
}

func (h *fftHandle) WorkspaceSize(cfg backend.FFTConfig) (host, device int, err error) {
	l, err := layoutFFT(cfg)
	if err != nil {
		return 0, 0, err
	}
	return l.host, 0, nil
}

func (h *fftHandle) Configure(cfg backend.FFTConfig, ws backend.Workspace) error {
	l, err := layoutFFT(cfg)
	if err != nil {
		return err
	}
	if len(ws.Host) < l.host {
		return errs.New(errs.KindInvalidSize, "fourier", "workspace %d bytes, need %d", len(ws.Host), l.host)
	}

	buf := ws.Host
	if cfg.Rank == 2 {
		h.grid = memory.Reinterpret[complex128](buf[:l.ny*l.gx*16])
		buf = buf[memory.AlignUp(l.ny*l.gx*16):]
	}
	h.seq = memory.Reinterpret[complex128](buf[:l.line*16])
	buf = buf[memory.AlignUp(l.line*16):]
	h.dst = memory.Reinterpret[complex128](buf[:l.line*16])
	buf = buf[memory.AlignUp(l.line*16):]
	h.reals = memory.Reinterpret[float64](buf[:l.line*8])

	if cfg.Type.IsComplexToComplex() {
		h.cx = fourier.NewCmplxFFT(l.nx)
	} else {
		h.rx = fourier.NewFFT(l.nx)
	}
	if cfg.Rank == 2 {
		h.cy = fourier.NewCmplxFFT(l.ny)
	}

	h.cfg = cfg
	h.configured = true
	return nil
}

func (h *fftHandle) Execute(dir backend.Direction, in, out backend.Ptr) (err error) {
	defer errs.Recover("fourier", &err)

	if !h.configured {
		return errs.New(errs.KindInvalidParameter, "fourier", "handle not configured")
	}
	switch {
	case h.cfg.Type.IsRealToComplex() && dir != backend.Forward:
		return errs.New(errs.KindInvalidParameter, "fourier", "%s transforms run forward only", h.cfg.Type)
	case h.cfg.Type.IsComplexToReal() && dir != backend.Inverse:
		return errs.New(errs.KindInvalidParameter, "fourier", "%s transforms run inverse only", h.cfg.Type)
	}

	for b := 0; b < h.cfg.Batch; b++ {
		ib := in.Off + b*h.cfg.IDist
		ob := out.Off + b*h.cfg.ODist
		if h.cfg.Rank == 1 {
			err = h.exec1D(dir, in.Data, out.Data, ib, ob)
		} else {
			err = h.exec2D(dir, in.Data, out.Data, ib, ob)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (h *fftHandle) exec1D(dir backend.Direction, in, out any, ib, ob int) error {
	n := h.cfg.N[0]
	istr, ostr := h.cfg.IStride, h.cfg.OStride

	switch {
	case h.cfg.Type.IsComplexToComplex():
		seq, dst := h.seq[:n], h.dst[:n]
		if err := loadComplex(seq, in, ib, istr); err != nil {
			return err
		}
		if dir == backend.Forward {
			h.cx.Coefficients(dst, seq)
		} else {
			h.cx.Sequence(dst, seq)
		}
		return storeComplex(out, dst, ob, ostr)

	case h.cfg.Type.IsRealToComplex():
		reals, dst := h.reals[:n], h.dst[:n/2+1]
		if err := loadReal(reals, in, ib, istr); err != nil {
			return err
		}
		h.rx.Coefficients(dst, reals)
		return storeComplex(out, dst, ob, ostr)

	default:
		seq, reals := h.seq[:n/2+1], h.reals[:n]
		if err := loadComplex(seq, in, ib, istr); err != nil {
			return err
		}
		h.rx.Sequence(reals, seq)
		return storeReal(out, reals, ob, ostr)
	}
}

func (h *fftHandle) exec2D(dir backend.Direction, in, out any, ib, ob int) error {
	nx, ny := h.cfg.N[0], h.cfg.N[1]
	gx := len(h.grid) / ny
	istr, ostr := h.cfg.IStride, h.cfg.OStride
	ie, oe := h.cfg.InEmbed[0], h.cfg.OutEmbed[0]

	rowIn := func(y int) int { return ib + y*ie*istr }
	rowOut := func(y int) int { return ob + y*oe*ostr }

	switch {
	case h.cfg.Type.IsComplexToComplex():
		for y := 0; y < ny; y++ {
			row := h.grid[y*gx : (y+1)*gx]
			if err := loadComplex(h.seq[:nx], in, rowIn(y), istr); err != nil {
				return err
			}
			h.transformX(dir, row, h.seq[:nx])
		}
		h.transformColumns(dir, gx, ny)
		for y := 0; y < ny; y++ {
			if err := storeComplex(out, h.grid[y*gx:(y+1)*gx], rowOut(y), ostr); err != nil {
				return err
			}
		}

	case h.cfg.Type.IsRealToComplex():
		for y := 0; y < ny; y++ {
			if err := loadReal(h.reals[:nx], in, rowIn(y), istr); err != nil {
				return err
			}
			h.rx.Coefficients(h.grid[y*gx:(y+1)*gx], h.reals[:nx])
		}
		h.transformColumns(backend.Forward, gx, ny)
		for y := 0; y < ny; y++ {
			if err := storeComplex(out, h.grid[y*gx:(y+1)*gx], rowOut(y), ostr); err != nil {
				return err
			}
		}

	default:
		for y := 0; y < ny; y++ {
			if err := loadComplex(h.grid[y*gx:(y+1)*gx], in, rowIn(y), istr); err != nil {
				return err
			}
		}
		h.transformColumns(backend.Inverse, gx, ny)
		for y := 0; y < ny; y++ {
			h.rx.Sequence(h.reals[:nx], h.grid[y*gx:(y+1)*gx])
			if err := storeReal(out, h.reals[:nx], rowOut(y), ostr); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *fftHandle) transformX(dir backend.Direction, dst, seq []complex128) {
	if dir == backend.Forward {
		h.cx.Coefficients(dst, seq)
	} else {
		h.cx.Sequence(dst, seq)
	}
}

// transformColumns runs the y transform down every grid column in place.
func (h *fftHandle) transformColumns(dir backend.Direction, gx, ny int) {
	seq, dst := h.seq[:ny], h.dst[:ny]
	for x := 0; x < gx; x++ {
		for y := 0; y < ny; y++ {
			seq[y] = h.grid[y*gx+x]
		}
		if dir == backend.Forward {
			h.cy.Coefficients(dst, seq)
		} else {
			h.cy.Sequence(dst, seq)
		}
		for y := 0; y < ny; y++ {
			h.grid[y*gx+x] = dst[y]
		}
	}
}

func (h *fftHandle) Destroy() error {
	h.cx, h.cy, h.rx = nil, nil, nil
	h.grid, h.seq, h.dst, h.reals = nil, nil, nil, nil
	h.configured = false
	return nil
}

func loadComplex(dst []complex128, src any, base, stride int) error {
	switch s := src.(type) {
	case []complex128:
		for i := range dst {
			dst[i] = s[base+i*stride]
		}
	case []complex64:
		for i := range dst {
			dst[i] = complex128(s[base+i*stride])
		}
	default:
		return errs.New(errs.KindInvalidType, "fourier", "complex input expected, got %T", src)
	}
	return nil
}

func storeComplex(dst any, src []complex128, base, stride int) error {
	switch d := dst.(type) {
	case []complex128:
		for i, v := range src {
			d[base+i*stride] = v
		}
	case []complex64:
		for i, v := range src {
			d[base+i*stride] = complex64(v)
		}
	default:
		return errs.New(errs.KindInvalidType, "fourier", "complex output expected, got %T", dst)
	}
	return nil
}

func loadReal(dst []float64, src any, base, stride int) error {
	switch s := src.(type) {
	case []float64:
		for i := range dst {
			dst[i] = s[base+i*stride]
		}
	case []float32:
		for i := range dst {
			dst[i] = float64(s[base+i*stride])
		}
	default:
		return errs.New(errs.KindInvalidType, "fourier", "real input expected, got %T", src)
	}
	return nil
}

func storeReal(dst any, src []float64, base, stride int) error {
	switch d := dst.(type) {
	case []float64:
		for i, v := range src {
			d[base+i*stride] = v
		}
	case []float32:
		for i, v := range src {
			d[base+i*stride] = float32(v)
		}
	default:
		return errs.New(errs.KindInvalidType, "fourier", "real output expected, got %T", dst)
	}
	return nil
}
