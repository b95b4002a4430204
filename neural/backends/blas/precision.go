// precision.go - Rundung von Gewichten und Outputs auf fp16/bf16
package blas

import (
	"fmt"

	"github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"
)

// Precision is the floating point format weights and outputs are rounded to.
type Precision string

const (
	FP32 Precision = "fp32"
	FP16 Precision = "fp16"
	BF16 Precision = "bf16"
)

// ParsePrecision accepts "fp32", "fp16" and "bf16".
func ParsePrecision(s string) (Precision, error) {
	switch p := Precision(s); p {
	case FP32, FP16, BF16:
		return p, nil
	default:
		return "", fmt.Errorf("blas: unknown precision %q (want fp32, fp16 or bf16)", s)
	}
}

// Round rounds xs in place.
func (p Precision) Round(xs []float32) {
	switch p {
	case FP16:
		for i, x := range xs {
			xs[i] = float16.Fromfloat32(x).Float32()
		}
	case BF16:
		copy(xs, bfloat16.DecodeFloat32(bfloat16.EncodeFloat32(xs)))
	}
}

// RoundFloat64 rounds xs through float32 and then p.
func (p Precision) RoundFloat64(xs []float64) {
	if p == FP32 {
		for i, x := range xs {
			xs[i] = float64(float32(x))
		}
		return
	}
	tmp := make([]float32, len(xs))
	for i, x := range xs {
		tmp[i] = float32(x)
	}
	p.Round(tmp)
	for i, x := range tmp {
		xs[i] = float64(x)
	}
}
