package blas

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/x448/float16"

	"github.com/lczero/lc0go/neural"
	"github.com/lczero/lc0go/optionsdict"
)

func newBackend(t *testing.T, opts string) *Backend {
	t.Helper()
	d, err := optionsdict.Parse(opts)
	if err != nil {
		t.Fatalf("Parse(%q): %v", opts, err)
	}
	b, err := New(d)
	if err != nil {
		t.Fatalf("New(%q): %v", opts, err)
	}
	t.Cleanup(b.Close)
	return b.(*Backend)
}

func evaluate(t *testing.T, b neural.Backend, n int) *neural.BatchBuffers {
	t.Helper()
	bufs, err := neural.NewBatchBuffersFor(b, n)
	if err != nil {
		t.Fatal(err)
	}
	for pos := range n {
		for plane := range neural.InputPlanes {
			bufs.SetPlane(pos, plane, uint64(0x0101010101010101)<<(pos%8), float32(plane%2))
		}
		bufs.SetPlane(pos, 104, ^uint64(0), float32(pos)/10)
	}
	if err := neural.RunInference(context.Background(), b, bufs, n); err != nil {
		t.Fatalf("RunInference: %v", err)
	}
	return bufs
}

func TestRegistered(t *testing.T) {
	f, ok := neural.DefaultRegistry.FindByName(Name)
	if !ok || f.Priority() != Priority {
		t.Fatalf("blas nicht registriert: %v %v", f, ok)
	}
}

func TestOutputs(t *testing.T) {
	bufs := evaluate(t, newBackend(t, "threads=2"), 5)

	for pos := range 5 {
		var sum float64
		for _, p := range bufs.Policy(pos) {
			sum += float64(p)
		}
		if math.Abs(sum-1) > 1e-3 {
			t.Errorf("Policy-Summe an Position %d = %v", pos, sum)
		}

		wdl := bufs.Value(pos)
		if s := float64(wdl[0] + wdl[1] + wdl[2]); math.Abs(s-1) > 1e-5 {
			t.Errorf("WDL-Summe an Position %d = %v", pos, s)
		}
		if ml, ok := bufs.MovesLeft(pos); !ok || ml < 0 {
			t.Errorf("MovesLeft(%d) = %v, %v", pos, ml, ok)
		}
	}
}

func TestThreadsDoNotChangeResults(t *testing.T) {
	one := evaluate(t, newBackend(t, "threads=1,seed=3"), 9)
	many := evaluate(t, newBackend(t, "threads=4,seed=3"), 9)

	approx := cmpopts.EquateApprox(0, 1e-6)
	if diff := cmp.Diff(one.PolicyOutput, many.PolicyOutput, approx); diff != "" {
		t.Errorf("Policy abhaengig von threads (-1 +4):\n%s", diff)
	}
	if diff := cmp.Diff(one.ValueOutput, many.ValueOutput, approx); diff != "" {
		t.Errorf("Value abhaengig von threads (-1 +4):\n%s", diff)
	}
}

func TestScalarValue(t *testing.T) {
	b := newBackend(t, "wdl=false,moves-left=false")
	if b.Attributes().HasWDL || b.Attributes().HasMovesLeft {
		t.Fatalf("Attributes = %+v", b.Attributes())
	}

	bufs := evaluate(t, b, 2)
	for pos := range 2 {
		if q := bufs.Value(pos)[0]; q < -1 || q > 1 {
			t.Errorf("tanh-Value ausserhalb [-1, 1]: %v", q)
		}
	}
	if bufs.MovesLeftOutput != nil {
		t.Error("moves-left Buffer ohne moves-left Kopf")
	}
}

func TestPrecisionFP16(t *testing.T) {
	bufs := evaluate(t, newBackend(t, "precision=fp16"), 2)
	for _, v := range bufs.ValueOutput {
		if float16.Fromfloat32(v).Float32() != v {
			t.Fatalf("%v ist nicht als fp16 darstellbar", v)
		}
	}
}

func TestPrecisionBF16(t *testing.T) {
	bufs := evaluate(t, newBackend(t, "precision=bf16"), 2)
	for _, v := range bufs.PolicyOutput {
		if math.Float32bits(v)&0xffff != 0 {
			t.Fatalf("%v hat mehr als bf16-Mantisse", v)
		}
	}
}

func TestInvalidOptions(t *testing.T) {
	tests := []struct {
		opts string
		want error
	}{
		{"precision=fp8", nil},
		{"threads=0", nil},
		{"thread=2", optionsdict.ErrUnusedOption},
		{"threads=two", optionsdict.ErrWrongType},
	}
	for _, tt := range tests {
		t.Run(tt.opts, func(t *testing.T) {
			d, _ := optionsdict.Parse(tt.opts)
			b, err := New(d)
			if err == nil || b != nil {
				t.Fatalf("New(%q) sollte fehlschlagen", tt.opts)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("erwartet %v, bekommen %v", tt.want, err)
			}
		})
	}
}

func TestWeightsOption(t *testing.T) {
	cfg, err := neural.NewConfig(Name, "threads=2,precision=fp16")
	if err != nil {
		t.Fatal(err)
	}
	cfg.Set(neural.WeightsID, "net.pb.gz")

	b, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer b.Close()
	if got := b.(*Backend).threads; got != 2 {
		t.Errorf("threads = %d, erwartet 2 aus backend-opts", got)
	}

	cfg.Set(neural.WeightsID, 7)
	if _, err := New(cfg); !errors.Is(err, optionsdict.ErrWrongType) {
		t.Errorf("weights als Zahl: erwartet ErrWrongType, bekommen %v", err)
	}
}

func TestEvaluateIncompatibleBuffers(t *testing.T) {
	b := newBackend(t, "wdl=true,moves-left=false")
	bufs, _ := neural.NewBatchBuffers(1, false, false)
	if err := b.Evaluate(context.Background(), bufs, 1); !errors.Is(err, neural.ErrIncompatibleBuffers) {
		t.Errorf("erwartet ErrIncompatibleBuffers, bekommen %v", err)
	}
}

func TestFeaturesString(t *testing.T) {
	if got := (Features{}).String(); got != "generic" {
		t.Errorf("String() = %q", got)
	}
	if got := (Features{AVX2: true, FMA: true}).String(); got != "avx2,fma" {
		t.Errorf("String() = %q", got)
	}
	if got := (Features{AVX512F: true}).RecommendedBatchSize(); got != 64 {
		t.Errorf("RecommendedBatchSize = %d", got)
	}
}
