package random

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/lczero/lc0go/neural"
	"github.com/lczero/lc0go/optionsdict"
)

func newBackend(t *testing.T, opts string) neural.Backend {
	t.Helper()
	d, err := optionsdict.Parse(opts)
	if err != nil {
		t.Fatalf("Parse(%q): %v", opts, err)
	}
	b, err := New(d)
	if err != nil {
		t.Fatalf("New(%q): %v", opts, err)
	}
	return b
}

func fill(bufs *neural.BatchBuffers, n int) {
	for pos := range n {
		for plane := range neural.InputPlanes {
			bufs.SetPlane(pos, plane, uint64(pos+1)<<(plane%64), float32(plane%3))
		}
	}
}

func evaluate(t *testing.T, b neural.Backend, n int) *neural.BatchBuffers {
	t.Helper()
	bufs, err := neural.NewBatchBuffersFor(b, n)
	if err != nil {
		t.Fatal(err)
	}
	fill(bufs, n)
	if err := neural.RunInference(context.Background(), b, bufs, n); err != nil {
		t.Fatalf("RunInference: %v", err)
	}
	return bufs
}

func TestRegistered(t *testing.T) {
	f, ok := neural.DefaultRegistry.FindByName(Name)
	if !ok {
		t.Fatal("random nicht in der DefaultRegistry")
	}
	if f.Priority() != Priority {
		t.Errorf("Priority = %d, erwartet %d", f.Priority(), Priority)
	}
}

func TestDeterministic(t *testing.T) {
	a := evaluate(t, newBackend(t, "seed=7"), 4)
	b := evaluate(t, newBackend(t, "seed=7"), 4)

	if diff := cmp.Diff(a.PolicyOutput, b.PolicyOutput); diff != "" {
		t.Errorf("Policy nicht deterministisch (-a +b):\n%s", diff)
	}
	if diff := cmp.Diff(a.ValueOutput, b.ValueOutput); diff != "" {
		t.Errorf("Value nicht deterministisch (-a +b):\n%s", diff)
	}

	c := evaluate(t, newBackend(t, "seed=8"), 4)
	if cmp.Equal(a.PolicyOutput, c.PolicyOutput) {
		t.Error("anderer seed sollte andere Outputs liefern")
	}
}

func TestOutputsWellFormed(t *testing.T) {
	bufs := evaluate(t, newBackend(t, ""), 3)

	for pos := range 3 {
		var sum float64
		for _, p := range bufs.Policy(pos) {
			if p < 0 {
				t.Fatalf("negative Policy an Position %d", pos)
			}
			sum += float64(p)
		}
		if math.Abs(sum-1) > 1e-3 {
			t.Errorf("Policy-Summe an Position %d = %v", pos, sum)
		}

		wdl := bufs.Value(pos)
		if s := wdl[0] + wdl[1] + wdl[2]; math.Abs(float64(s)-1) > 1e-5 {
			t.Errorf("WDL-Summe an Position %d = %v", pos, s)
		}
		if ml, ok := bufs.MovesLeft(pos); !ok || ml < 0 {
			t.Errorf("MovesLeft(%d) = %v, %v", pos, ml, ok)
		}
	}
}

func TestOptions(t *testing.T) {
	b := newBackend(t, "wdl=false,moves-left=false,uniform")
	attrs := b.Attributes()
	if attrs.HasWDL || attrs.HasMovesLeft {
		t.Errorf("Attributes = %+v", attrs)
	}

	bufs := evaluate(t, b, 2)
	if q := bufs.Value(1)[0]; q < -1 || q > 1 {
		t.Errorf("Skalar-Value ausserhalb [-1, 1]: %v", q)
	}
	if got := bufs.Policy(1)[100]; got != 1.0/neural.NumOutputPolicy {
		t.Errorf("uniform Policy = %v", got)
	}
}

func TestUnknownOption(t *testing.T) {
	d, _ := optionsdict.Parse("sed=1")
	if _, err := New(d); !errors.Is(err, optionsdict.ErrUnusedOption) {
		t.Errorf("erwartet ErrUnusedOption, bekommen %v", err)
	}
}

func TestCreateFromConfigWithWeights(t *testing.T) {
	r := neural.NewRegistry()
	r.MustRegister(neural.NewFactory(Name, Priority, New))

	t.Run("flach", func(t *testing.T) {
		cfg := optionsdict.New()
		cfg.Set(neural.BackendID, Name)
		cfg.Set(neural.WeightsID, "net.pb.gz")
		cfg.Set("seed", 4)
		b, err := r.CreateFromConfig(cfg)
		if err != nil {
			t.Fatalf("CreateFromConfig: %v", err)
		}
		b.Close()
	})

	t.Run("mit backend-opts", func(t *testing.T) {
		cfg, err := neural.NewConfig(Name, "seed=4,uniform")
		if err != nil {
			t.Fatal(err)
		}
		cfg.Set(neural.WeightsID, "net.pb.gz")
		b, err := r.CreateFromConfig(cfg)
		if err != nil {
			t.Fatalf("CreateFromConfig: %v", err)
		}
		b.Close()
	})

	t.Run("falsch geschriebene Option", func(t *testing.T) {
		cfg, _ := neural.NewConfig(Name, "sead=4")
		if _, err := r.CreateFromConfig(cfg); !errors.Is(err, optionsdict.ErrUnusedOption) {
			t.Errorf("erwartet ErrUnusedOption, bekommen %v", err)
		}
	})
}

func TestDelayHonoursContext(t *testing.T) {
	b := newBackend(t, "delay=10000")
	bufs, _ := neural.NewBatchBuffersFor(b, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := b.Evaluate(ctx, bufs, 1)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("erwartet DeadlineExceeded, bekommen %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("Evaluate hat den Kontext ignoriert")
	}
}
