// MODUL: random
// ZWECK: Deterministisches Pseudo-Zufalls-Backend fuer Tests und Benchmarks
// INPUT: optionsdict mit seed, delay, uniform, wdl, moves-left
// OUTPUT: Policy/Value/Moves-Left aus einem Hash der Input-Planes
// NEBENEFFEKTE: Registriert sich in neural.DefaultRegistry (init)
// ABHAENGIGKEITEN: neural, optionsdict
// HINWEISE: Gleiche Planes und gleicher seed liefern immer gleiche Outputs

// Package random provides a backend that needs no weights. Its outputs are
// a pure function of the input planes and the seed, which makes it useful
// for exercising search code and the serving path.
package random

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand/v2"
	"time"

	"github.com/lczero/lc0go/neural"
	"github.com/lczero/lc0go/optionsdict"
)

// Name und Prioritaet in der Registry
const (
	Name     = "random"
	Priority = -900
)

func init() {
	neural.MustRegister(neural.NewFactory(Name, Priority, New))
}

// Backend implements neural.Backend.
type Backend struct {
	seed    uint64
	delay   time.Duration
	uniform bool
	attrs   neural.Attributes
}

// New creates a random backend from cfg. Unknown options are an error, the
// weights file is ignored.
func New(cfg *optionsdict.Dict) (neural.Backend, error) {
	opts, err := neural.BackendOptions(cfg)
	if err != nil {
		return nil, fmt.Errorf("random: %w", err)
	}

	seed, err1 := optionsdict.Optional(opts, "seed", 0)
	delay, err2 := optionsdict.Optional(opts, "delay", 0)
	uniform, err3 := optionsdict.Optional(opts, "uniform", false)
	wdl, err4 := optionsdict.Optional(opts, "wdl", true)
	movesLeft, err5 := optionsdict.Optional(opts, "moves-left", true)
	if err := errors.Join(err1, err2, err3, err4, err5); err != nil {
		return nil, fmt.Errorf("random: %w", err)
	}

	b := &Backend{
		seed:    uint64(seed),
		delay:   time.Duration(delay) * time.Millisecond,
		uniform: uniform,
		attrs: neural.Attributes{
			HasWDL:               wdl,
			HasMovesLeft:         movesLeft,
			RunsOnCPU:            true,
			RecommendedBatchSize: 16,
		},
	}
	if err := opts.CheckAllOptionsRead(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Backend) Attributes() neural.Attributes { return b.attrs }

func (b *Backend) Close() {}

// Evaluate fills the outputs of the first n positions. With a delay it
// sleeps first and returns early when ctx ends.
func (b *Backend) Evaluate(ctx context.Context, bufs *neural.BatchBuffers, n int) error {
	if b.delay > 0 {
		t := time.NewTimer(b.delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}

	for pos := range n {
		b.evaluatePosition(bufs, pos)
	}
	return nil
}

func (b *Backend) evaluatePosition(bufs *neural.BatchBuffers, pos int) {
	rng := rand.New(rand.NewPCG(b.hashPosition(bufs, pos), b.seed))

	// Skalar in [-1, 1]
	q := float32(rng.Float64()*2 - 1)
	value := bufs.Value(pos)
	if bufs.WDL() {
		d := float32(rng.Float64()) * (1 - abs32(q))
		value[0] = (1 + q - d) / 2
		value[1] = d
		value[2] = (1 - q - d) / 2
	} else {
		value[0] = q
	}

	policy := bufs.Policy(pos)
	if b.uniform {
		for i := range policy {
			policy[i] = 1.0 / neural.NumOutputPolicy
		}
	} else {
		var sum float32
		for i := range policy {
			policy[i] = float32(rng.Float64())
			sum += policy[i]
		}
		for i := range policy {
			policy[i] /= sum
		}
	}

	if bufs.HasMovesLeft() {
		bufs.MovesLeftOutput[pos] = float32(math.Floor(rng.Float64() * 200))
	}
}

func (b *Backend) hashPosition(bufs *neural.BatchBuffers, pos int) uint64 {
	h := fnv.New64a()
	var buf [8]byte

	binary.LittleEndian.PutUint64(buf[:], b.seed)
	h.Write(buf[:])

	masks, values := bufs.Masks(pos), bufs.Values(pos)
	for i := range masks {
		binary.LittleEndian.PutUint64(buf[:], masks[i])
		h.Write(buf[:])
		binary.LittleEndian.PutUint32(buf[:4], math.Float32bits(values[i]))
		h.Write(buf[:4])
	}
	return h.Sum64()
}

func abs32(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}
