// Package main provides the xform CLI.
package main

import (
	"fmt"
	"log/slog"
	"math"
	"math/cmplx"
	"os"

	"github.com/born-ml/xform/tensor"
	"github.com/born-ml/xform/transform"
)

const version = "v0.1.0-dev"

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "version":
			fmt.Printf("xform %s\n", version)
			return
		case "demo":
			path := ""
			if len(os.Args) > 2 {
				path = os.Args[2]
			}
			if err := demo(path); err != nil {
				fmt.Fprintf(os.Stderr, "demo: %v\n", err)
				os.Exit(1)
			}
			return
		}
	}

	fmt.Println("xform - cached FFT, GEMM and dense solver transforms")
	fmt.Printf("Version: %s\n\n", version)
	fmt.Println("Commands:")
	fmt.Println("  version              Show version")
	fmt.Println("  demo [config.yaml]   Run each transform family and print cache and memory statistics")
}

func demo(path string) (err error) {
	cfg, level, err := loadConfig(path)
	if err != nil {
		return err
	}
	cfg.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	e := transform.New(cfg)
	defer func() {
		if cerr := e.Close(); err == nil {
			err = cerr
		}
	}()

	s := transform.NewStream()
	defer s.Close()

	// A 1000-sample tone, zero-padded to 1024 by the transform.
	const n, bins, tone = 1000, 1024, 64
	sig := make([]complex128, n)
	for i := range sig {
		sig[i] = complex(math.Sin(2*math.Pi*tone*float64(i)/bins), 0)
	}
	in, err := tensor.FromSlice(sig, n)
	if err != nil {
		return err
	}
	freq, err := tensor.Zeros(tensor.Shape{bins}, tensor.Complex128)
	if err != nil {
		return err
	}
	for i := 0; i < 3; i++ {
		if err := e.FFT().FFT(freq, in, s); err != nil {
			return err
		}
	}

	// A batch of products, repeated to show plan reuse.
	a, err := tensor.Zeros(tensor.Shape{8, 64, 64}, tensor.Float32)
	if err != nil {
		return err
	}
	vals := make([]float32, a.NumElements())
	for i := range vals {
		vals[i] = float32(i%7) - 3
	}
	tensor.Fill(a, vals)
	c, err := tensor.Zeros(a.Shape(), tensor.Float32)
	if err != nil {
		return err
	}
	for _, prov := range []transform.Provider{transform.Auto, transform.BLAS, transform.Reference} {
		if err := e.MatMul().MatMul(c, a, a.PermuteMatrix(), s, transform.WithProvider(prov)); err != nil {
			return err
		}
	}

	m, err := tensor.FromSlice([]float64{4, 1, 0, 1, 3, 1, 0, 1, 2}, 3, 3)
	if err != nil {
		return err
	}
	det, err := tensor.Zeros(tensor.Shape{1}, tensor.Float64)
	if err != nil {
		return err
	}
	if err := e.Solver().Det(det, m, s); err != nil {
		return err
	}
	if err := s.Synchronize(); err != nil {
		return err
	}

	peak := 0
	bin := tensor.ToSlice[complex128](freq)
	for k := 1; k < bins/2; k++ {
		if cmplx.Abs(bin[k]) > cmplx.Abs(bin[peak]) {
			peak = k
		}
	}
	fmt.Printf("fft: peak at bin %d of %d\n", peak, bins)
	fmt.Printf("gemm: c[0,0,0] = %g\n", tensor.At[float32](c, 0, 0, 0))
	fmt.Printf("det: %g\n\n", tensor.At[float64](det, 0))
	fmt.Println(e.Stats())
	return nil
}
