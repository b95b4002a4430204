// MODUL: demux
// ZWECK: Verteilt einen Batch auf mehrere Kind-Backends und wertet parallel aus
// INPUT: optionsdict, jedes Sub-Dict beschreibt ein Kind (backend=..., weitere Optionen)
// OUTPUT: Zusammengefuehrte Outputs in den BatchBuffers des Aufrufers
// NEBENEFFEKTE: Erstellt Kind-Backends ueber die Registry, Goroutine pro Kind und Aufruf
// ABHAENGIGKEITEN: neural, optionsdict, x/sync/errgroup
// HINWEISE: Kinder muessen bei WDL und Moves-Left uebereinstimmen

// Package demux implements a backend that splits every batch into
// contiguous chunks and evaluates them on child backends concurrently.
//
// Children are configured as sub-dicts of the backend options:
//
//	backend=demux,backend-opts=(gpu0(backend=blas,threads=2),gpu1(backend=blas,threads=2))
//
// A sub-dict without a backend key uses its own name as the backend name.
package demux

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/lczero/lc0go/logutil"
	"github.com/lczero/lc0go/neural"
	"github.com/lczero/lc0go/optionsdict"
)

// Name und Prioritaet in der Registry
const (
	Name     = "demux"
	Priority = -1000
)

// ErrNoChildren wenn die Optionen kein Sub-Dict enthalten
var ErrNoChildren = errors.New("demux: no child backends configured")

func init() {
	neural.MustRegister(neural.NewFactory(Name, Priority, Factory(neural.DefaultRegistry)))
}

// Factory returns a constructor that resolves children through r.
func Factory(r *neural.Registry) neural.CreateFunc {
	return func(opts *optionsdict.Dict) (neural.Backend, error) {
		b, err := New(r, opts)
		if err != nil {
			return nil, err
		}
		return b, nil
	}
}

type child struct {
	name    string
	backend neural.Backend
	attrs   neural.Attributes
}

// Backend implements neural.Backend.
type Backend struct {
	children []child
	attrs    neural.Attributes
}

// New creates one child per sub-dict of the backend options of cfg. On any
// error the children created so far are closed again.
func New(r *neural.Registry, cfg *optionsdict.Dict) (_ *Backend, err error) {
	opts, err := neural.BackendOptions(cfg)
	if err != nil {
		return nil, fmt.Errorf("demux: %w", err)
	}

	b := &Backend{}
	defer func() {
		if err != nil {
			b.Close()
		}
	}()

	for _, name := range opts.Subdicts() {
		sub, err := opts.Subdict(name)
		if err != nil {
			return nil, err
		}
		backendName, err := optionsdict.Optional(sub, neural.BackendID, name)
		if err != nil {
			return nil, fmt.Errorf("demux: child %q: %w", name, err)
		}

		cb, err := r.CreateFromName(backendName, sub)
		if err != nil {
			return nil, fmt.Errorf("demux: child %q: %w", name, err)
		}
		b.children = append(b.children, child{name: name, backend: cb, attrs: cb.Attributes()})
	}

	if len(b.children) == 0 {
		return nil, ErrNoChildren
	}
	if err := opts.CheckAllOptionsRead(); err != nil {
		return nil, err
	}

	b.attrs, err = combine(b.children)
	if err != nil {
		return nil, err
	}

	slog.Info("demux backend", "children", len(b.children), "wdl", b.attrs.HasWDL, "moves-left", b.attrs.HasMovesLeft)
	return b, nil
}

// combine prueft die Kinder auf gleiche Outputs und summiert die Batch-Groessen
func combine(children []child) (neural.Attributes, error) {
	first := children[0].attrs
	attrs := neural.Attributes{
		HasWDL:       first.HasWDL,
		HasMovesLeft: first.HasMovesLeft,
		RunsOnCPU:    true,
	}

	unlimited := false
	for _, c := range children {
		if c.attrs.HasWDL != first.HasWDL || c.attrs.HasMovesLeft != first.HasMovesLeft {
			return neural.Attributes{}, fmt.Errorf("%w: demux child %q (wdl %t, moves-left %t) differs from %q (wdl %t, moves-left %t)",
				neural.ErrIncompatibleBuffers, c.name, c.attrs.HasWDL, c.attrs.HasMovesLeft,
				children[0].name, first.HasWDL, first.HasMovesLeft)
		}
		attrs.RunsOnCPU = attrs.RunsOnCPU && c.attrs.RunsOnCPU
		attrs.RecommendedBatchSize += c.attrs.RecommendedBatchSize
		if c.attrs.MaximumBatchSize == 0 {
			unlimited = true
		}
		attrs.MaximumBatchSize += c.attrs.MaximumBatchSize
	}
	if unlimited {
		attrs.MaximumBatchSize = 0
	}
	return attrs, nil
}

func (b *Backend) Attributes() neural.Attributes { return b.attrs }

// Close closes all children.
func (b *Backend) Close() {
	for _, c := range b.children {
		c.backend.Close()
	}
	b.children = nil
}

// ============================================================================
// Auswertung
// ============================================================================

// Evaluate splits the first n positions into one contiguous chunk per child.
// The first error cancels the other children.
func (b *Backend) Evaluate(ctx context.Context, bufs *neural.BatchBuffers, n int) error {
	if len(b.children) == 0 {
		return fmt.Errorf("demux: backend closed")
	}

	k := min(len(b.children), n)
	g, ctx := errgroup.WithContext(ctx)

	start := 0
	for i := range k {
		size := n / k
		if i < n%k {
			size++
		}
		c, s, e := b.children[i], start, start+size
		start = e

		g.Go(func() error {
			if err := c.evaluate(ctx, bufs, s, e); err != nil {
				return fmt.Errorf("demux: child %q: %w", c.name, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// evaluate wertet [start, end) auf dem Kind aus, in Stuecken bis zu dessen Maximum
func (c child) evaluate(ctx context.Context, bufs *neural.BatchBuffers, start, end int) error {
	step := end - start
	if c.attrs.MaximumBatchSize > 0 {
		step = min(step, c.attrs.MaximumBatchSize)
	}

	cb, err := neural.NewBatchBuffers(step, bufs.WDL(), bufs.HasMovesLeft())
	if err != nil {
		return err
	}
	defer cb.Release()

	for s := start; s < end; s += step {
		m := min(step, end-s)
		logutil.Trace("demux chunk", "child", c.name, "from", s, "positions", m)
		copyInputs(cb, bufs, s, m)
		if err := neural.RunInference(ctx, c.backend, cb, m); err != nil {
			return err
		}
		copyOutputs(bufs, cb, s, m)
	}
	return nil
}

// copyInputs kopiert m Positionen ab from aus src an den Anfang von dst
func copyInputs(dst, src *neural.BatchBuffers, from, m int) {
	lo, hi := from*neural.InputPlanes, (from+m)*neural.InputPlanes
	copy(dst.InputMasks, src.InputMasks[lo:hi])
	copy(dst.InputValues, src.InputValues[lo:hi])
}

// copyOutputs kopiert die ersten m Outputs aus src ab Position to nach dst
func copyOutputs(dst, src *neural.BatchBuffers, to, m int) {
	copy(dst.PolicyOutput[to*neural.NumOutputPolicy:], src.PolicyOutput[:m*neural.NumOutputPolicy])

	vs := dst.ValueSize()
	copy(dst.ValueOutput[to*vs:], src.ValueOutput[:m*vs])

	if dst.HasMovesLeft() {
		copy(dst.MovesLeftOutput[to:], src.MovesLeftOutput[:m])
	}
}
