// MODUL: blas
// ZWECK: CPU-Backend auf gonum mit linearen Koepfen ueber Plane-Features
// INPUT: optionsdict mit seed, threads, wdl, moves-left, precision
// OUTPUT: Softmax-Policy, WDL- oder Skalar-Value, Moves-Left pro Position
// NEBENEFFEKTE: Registriert sich in neural.DefaultRegistry (init), startet Goroutinen pro Evaluate
// ABHAENGIGKEITEN: gonum/mat, x/sync/errgroup, x/sys/cpu, x448/float16, d4l3k/go-bfloat16
// HINWEISE: Gewichte kommen aus dem seed, nicht aus einer Netzwerk-Datei

// Package blas implements a CPU backend. Each position is reduced to one
// feature per input plane and pushed through dense heads for policy, value
// and moves-left. Rows of a batch are evaluated in parallel.
package blas

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/bits"
	"math/rand/v2"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/lczero/lc0go/neural"
	"github.com/lczero/lc0go/optionsdict"
)

// Name und Prioritaet in der Registry
const (
	Name     = "blas"
	Priority = 50
)

func init() {
	neural.MustRegister(neural.NewFactory(Name, Priority, New))
}

// Backend implements neural.Backend.
type Backend struct {
	attrs     neural.Attributes
	threads   int
	precision Precision
	cpu       Features

	policyW *mat.Dense // InputPlanes x NumOutputPolicy
	valueW  *mat.Dense // InputPlanes x 3 (WDL) oder x 1
	movesW  *mat.Dense // InputPlanes x 1, nil ohne moves-left
}

// ============================================================================
// Erstellung
// ============================================================================

// New creates a blas backend from cfg. A weights file is only logged, the
// weights are drawn from the seed.
func New(cfg *optionsdict.Dict) (neural.Backend, error) {
	opts, err := neural.BackendOptions(cfg)
	if err != nil {
		return nil, fmt.Errorf("blas: %w", err)
	}
	weights, err := neural.Weights(cfg)
	if err != nil {
		return nil, fmt.Errorf("blas: %w", err)
	}

	seed, err1 := optionsdict.Optional(opts, "seed", 1)
	threads, err2 := optionsdict.Optional(opts, "threads", runtime.NumCPU())
	wdl, err3 := optionsdict.Optional(opts, "wdl", true)
	movesLeft, err4 := optionsdict.Optional(opts, "moves-left", true)
	precisionName, err5 := optionsdict.Optional(opts, "precision", string(FP32))
	if err := errors.Join(err1, err2, err3, err4, err5); err != nil {
		return nil, fmt.Errorf("blas: %w", err)
	}

	precision, err := ParsePrecision(precisionName)
	if err != nil {
		return nil, err
	}
	if threads <= 0 {
		return nil, fmt.Errorf("blas: threads must be positive, got %d", threads)
	}
	if err := opts.CheckAllOptionsRead(); err != nil {
		return nil, err
	}

	feats := DetectFeatures()
	b := &Backend{
		attrs: neural.Attributes{
			HasWDL:               wdl,
			HasMovesLeft:         movesLeft,
			RunsOnCPU:            true,
			RecommendedBatchSize: feats.RecommendedBatchSize(),
		},
		threads:   threads,
		precision: precision,
		cpu:       feats,
	}

	rng := rand.New(rand.NewPCG(uint64(seed), 0x6c6330))
	b.policyW = b.newWeights(rng, neural.NumOutputPolicy)
	if wdl {
		b.valueW = b.newWeights(rng, 3)
	} else {
		b.valueW = b.newWeights(rng, 1)
	}
	if movesLeft {
		b.movesW = b.newWeights(rng, 1)
	}

	slog.Info("blas backend", "weights", weights, "threads", threads, "precision", precision, "cpu", feats, "wdl", wdl, "moves-left", movesLeft)
	return b, nil
}

// newWeights zieht normalverteilte Gewichte, gerundet auf die Praezision
func (b *Backend) newWeights(rng *rand.Rand, cols int) *mat.Dense {
	scale := 1 / math.Sqrt(neural.InputPlanes)
	data := make([]float64, neural.InputPlanes*cols)
	for i := range data {
		data[i] = rng.NormFloat64() * scale
	}
	b.precision.RoundFloat64(data)
	return mat.NewDense(neural.InputPlanes, cols, data)
}

func (b *Backend) Attributes() neural.Attributes { return b.attrs }

// Close drops the weights.
func (b *Backend) Close() {
	b.policyW, b.valueW, b.movesW = nil, nil, nil
}

// CPUFeatures returns the instruction set extensions found at creation.
func (b *Backend) CPUFeatures() Features { return b.cpu }

// ============================================================================
// Auswertung
// ============================================================================

// Evaluate splits the first n positions into at most threads contiguous
// chunks and evaluates them concurrently.
func (b *Backend) Evaluate(ctx context.Context, bufs *neural.BatchBuffers, n int) error {
	if b.policyW == nil {
		return fmt.Errorf("blas: backend closed")
	}
	if bufs.ValueSize() != b.valueW.RawMatrix().Cols {
		return fmt.Errorf("%w: value head has %d outputs, buffers hold %d",
			neural.ErrIncompatibleBuffers, b.valueW.RawMatrix().Cols, bufs.ValueSize())
	}
	if bufs.HasMovesLeft() && b.movesW == nil {
		return fmt.Errorf("%w: no moves-left head", neural.ErrIncompatibleBuffers)
	}

	chunk := (n + b.threads - 1) / b.threads

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(b.threads)
	for start := 0; start < n; start += chunk {
		end := min(start+chunk, n)
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			b.evaluateRows(bufs, start, end)
			return nil
		})
	}
	return g.Wait()
}

// evaluateRows schreibt die Outputs der Positionen [start, end)
func (b *Backend) evaluateRows(bufs *neural.BatchBuffers, start, end int) {
	x := features(bufs, start, end)

	var policy mat.Dense
	policy.Mul(x, b.policyW)
	for r := range end - start {
		out := bufs.Policy(start + r)
		softmax(out, policy.RawRowView(r))
		b.precision.Round(out)
	}

	var value mat.Dense
	value.Mul(x, b.valueW)
	for r := range end - start {
		out := bufs.Value(start + r)
		if len(out) == 3 {
			softmax(out, value.RawRowView(r))
		} else {
			out[0] = float32(math.Tanh(value.At(r, 0)))
		}
		b.precision.Round(out)
	}

	if !bufs.HasMovesLeft() {
		return
	}
	var moves mat.Dense
	moves.Mul(x, b.movesW)
	for r := range end - start {
		bufs.MovesLeftOutput[start+r] = float32(max(0, moves.At(r, 0)*100))
	}
	b.precision.Round(bufs.MovesLeftOutput[start:end])
}

// features baut die Feature-Matrix: pro Plane Bitanzahl mal Plane-Wert, /64
func features(bufs *neural.BatchBuffers, start, end int) *mat.Dense {
	x := mat.NewDense(end-start, neural.InputPlanes, nil)
	for r := range end - start {
		masks, values := bufs.Masks(start+r), bufs.Values(start+r)
		row := x.RawRowView(r)
		for p := range row {
			row[p] = float64(bits.OnesCount64(masks[p])) * float64(values[p]) / 64
		}
	}
	return x
}

func softmax(out []float32, logits []float64) {
	hi := math.Inf(-1)
	for _, v := range logits {
		hi = max(hi, v)
	}
	var sum float64
	for _, v := range logits {
		sum += math.Exp(v - hi)
	}
	for i, v := range logits {
		out[i] = float32(math.Exp(v-hi) / sum)
	}
}
