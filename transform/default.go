// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package transform

import (
	"sync"

	"github.com/born-ml/xform/tensor"
)

var (
	defaultMu     sync.Mutex
	defaultEngine *Engine
)

// Default returns the package-level Engine, creating it with DefaultConfig
// on first use.
func Default() *Engine {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultEngine == nil {
		defaultEngine = New(DefaultConfig())
	}
	return defaultEngine
}

// Close releases the default Engine's plans. The next package-level call
// starts a fresh Engine.
func Close() error {
	defaultMu.Lock()
	e := defaultEngine
	defaultEngine = nil
	defaultMu.Unlock()

	if e == nil {
		return nil
	}
	return e.Close()
}

// DefaultStats returns the default Engine's statistics.
func DefaultStats() Stats {
	return Default().Stats()
}

// FFT runs the forward transform of in along its last dimension into out.
// The input is zero-padded or truncated to the length out implies.
func FFT(out, in *tensor.View, s *Stream) error {
	return Default().FFT().FFT(out, in, s)
}

// IFFT runs the inverse transform along the last dimension, scaled by 1/N.
func IFFT(out, in *tensor.View, s *Stream) error {
	return Default().FFT().IFFT(out, in, s)
}

// FFT2 runs the forward transform over the last two dimensions.
func FFT2(out, in *tensor.View, s *Stream) error {
	return Default().FFT().FFT2(out, in, s)
}

// IFFT2 runs the inverse transform over the last two dimensions, scaled by
// 1/(N0*N1).
func IFFT2(out, in *tensor.View, s *Stream) error {
	return Default().FFT().IFFT2(out, in, s)
}

// DCT computes the type-II discrete cosine transform of each row of in.
func DCT(out, in *tensor.View, s *Stream) error {
	return Default().FFT().DCT(out, in, s)
}

// MatMul computes C = alpha*A*B + beta*C over the last two dimensions.
func MatMul(c, a, b *tensor.View, s *Stream, opts ...MatMulOption) error {
	return Default().MatMul().MatMul(c, a, b, s, opts...)
}

// Cholesky factors symmetric positive definite matrices.
func Cholesky(out, in *tensor.View, uplo Uplo, s *Stream) error {
	return Default().Solver().Cholesky(out, in, uplo, s)
}

// LU factors matrices with partial pivoting; piv receives 1-based int64
// row interchanges.
func LU(out, piv, in *tensor.View, s *Stream) error {
	return Default().Solver().LU(out, piv, in, s)
}

// QR computes Householder QR factorizations.
func QR(out, tau, in *tensor.View, s *Stream) error {
	return Default().Solver().QR(out, tau, in, s)
}

// SVD computes singular value decompositions.
func SVD(u, sv, vt, in *tensor.View, jobU, jobVT SVDJob, s *Stream) error {
	return Default().Solver().SVD(u, sv, vt, in, jobU, jobVT, s)
}

// Eig computes eigendecompositions of symmetric matrices.
func Eig(out, w, in *tensor.View, jobZ EigJob, uplo Uplo, s *Stream) error {
	return Default().Solver().Eig(out, w, in, jobZ, uplo, s)
}

// Det computes determinants through LU.
func Det(out, in *tensor.View, s *Stream) error {
	return Default().Solver().Det(out, in, s)
}
