// cpu.go - Erkennung der CPU-Erweiterungen fuer Logging und Batch-Groesse
package blas

import (
	"strings"

	"golang.org/x/sys/cpu"
)

// Features lists the SIMD extensions of the host CPU.
type Features struct {
	AVX2    bool
	FMA     bool
	AVX512F bool
	ASIMD   bool // ARM64 NEON
}

// DetectFeatures reads the flags from golang.org/x/sys/cpu.
func DetectFeatures() Features {
	return Features{
		AVX2:    cpu.X86.HasAVX2,
		FMA:     cpu.X86.HasFMA,
		AVX512F: cpu.X86.HasAVX512F,
		ASIMD:   cpu.ARM64.HasASIMD,
	}
}

// RecommendedBatchSize ist groesser wenn breite Vektor-Einheiten da sind.
func (f Features) RecommendedBatchSize() int {
	switch {
	case f.AVX512F:
		return 64
	case f.AVX2 || f.ASIMD:
		return 32
	default:
		return 16
	}
}

func (f Features) String() string {
	var names []string
	if f.AVX2 {
		names = append(names, "avx2")
	}
	if f.FMA {
		names = append(names, "fma")
	}
	if f.AVX512F {
		names = append(names, "avx512f")
	}
	if f.ASIMD {
		names = append(names, "asimd")
	}
	if len(names) == 0 {
		return "generic"
	}
	return strings.Join(names, ",")
}
