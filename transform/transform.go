// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package transform provides cached FFT, GEMM and dense solver transforms
// over strided tensor views.
//
// Every call deduces a descriptor from its views and looks it up in a plan
// cache owned by an Engine. The first call for a descriptor builds a plan
// (vendor handle plus workspace); later calls reuse it. Work is submitted to
// a Stream: nil means the default stream, which runs inline.
//
// Example:
//
//	sig, _ := tensor.FromSlice([]complex128{1, 2, 3, 4}, 4)
//	freq, _ := tensor.Zeros(tensor.Shape{4}, tensor.Complex128)
//	if err := transform.FFT(freq, sig, nil); err != nil {
//	    log.Fatal(err)
//	}
//
// The package-level functions use a default Engine created on first use.
// Programs that want isolated caches construct their own with New.
package transform

import (
	"github.com/born-ml/xform/internal/backend"
	"github.com/born-ml/xform/internal/engine"
	"github.com/born-ml/xform/internal/errs"
	"github.com/born-ml/xform/internal/matmul"
	"github.com/born-ml/xform/internal/memory"
	"github.com/born-ml/xform/internal/parallel"
	"github.com/born-ml/xform/internal/stream"
)

// Engine owns an allocator and one plan cache per transform family.
type Engine = engine.Engine

// Config controls an Engine.
type Config = engine.Config

// Stats is a snapshot of allocator and plan cache activity.
type Stats = engine.Stats

// New creates an Engine. Close it to release its plans.
func New(cfg Config) *Engine {
	return engine.New(cfg)
}

// DefaultConfig returns the gonum vendor libraries with parallel batches.
func DefaultConfig() Config {
	return engine.DefaultConfig()
}

// ParallelConfig controls batch fan-out.
type ParallelConfig = parallel.Config

// Stream is an ordered work queue.
type Stream = stream.Stream

// NewStream starts a stream. Close it when done.
func NewStream() *Stream {
	return stream.New()
}

// Allocator tracks workspace and scratch memory.
type Allocator = memory.Allocator

// MemoryConfig controls an Allocator.
type MemoryConfig = memory.Config

// Space is a memory space.
type Space = memory.Space

// Memory spaces.
const (
	Managed     Space = memory.Managed
	Host        Space = memory.Host
	Device      Space = memory.Device
	AsyncDevice Space = memory.AsyncDevice
)

// Provider selects the GEMM implementation.
type Provider = matmul.Provider

// GEMM providers.
const (
	Auto      Provider = matmul.Auto
	BLAS      Provider = matmul.BLAS
	Reference Provider = matmul.Reference
)

// MatMulOption configures a single MatMul call.
type MatMulOption = matmul.Option

// WithAlpha scales the product. The default is 1.
func WithAlpha(alpha complex128) MatMulOption {
	return matmul.WithAlpha(alpha)
}

// WithBeta accumulates beta*C into the result. The default is 0.
func WithBeta(beta complex128) MatMulOption {
	return matmul.WithBeta(beta)
}

// WithProvider selects the GEMM implementation. The default is Auto.
func WithProvider(p Provider) MatMulOption {
	return matmul.WithProvider(p)
}

// Uplo selects a triangle of a symmetric matrix.
type Uplo = backend.Uplo

// Triangles.
const (
	Upper Uplo = backend.Upper
	Lower Uplo = backend.Lower
)

// SVDJob selects how many singular vectors are produced.
type SVDJob = backend.SVDJob

// Singular vector jobs.
const (
	SVDAll  SVDJob = backend.SVDAll
	SVDSlim SVDJob = backend.SVDSlim
	SVDNone SVDJob = backend.SVDNone
)

// EigJob selects whether eigenvectors are produced.
type EigJob = backend.EigJob

// Eigen jobs.
const (
	EigVectors    EigJob = backend.EigVectors
	EigValuesOnly EigJob = backend.EigValuesOnly
)

// Error is the error type returned by every transform.
type Error = errs.Error

// Error kinds, matched with errors.Is.
var (
	ErrInvalidSize      = errs.ErrInvalidSize
	ErrInvalidType      = errs.ErrInvalidType
	ErrInvalidParameter = errs.ErrInvalidParameter
	ErrNotSupported     = errs.ErrNotSupported
	ErrVendor           = errs.ErrVendor
	ErrOutOfMemory      = errs.ErrOutOfMemory
	ErrAllocation       = errs.ErrAllocation
)
