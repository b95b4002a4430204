// inference.go - Einstiegspunkt fuer einen Inferenz-Aufruf
// Hauptfunktionen: NewBatchBuffersFor, RunInference
package neural

import (
	"context"
	"fmt"
	"time"

	"github.com/lczero/lc0go/logutil"
)

// NewBatchBuffersFor allocates buffers shaped for the outputs of b.
func NewBatchBuffersFor(b Backend, maxBatchSize int) (*BatchBuffers, error) {
	attrs := b.Attributes()
	return NewBatchBuffers(maxBatchSize, attrs.HasWDL, attrs.HasMovesLeft)
}

// RunInference checks that bufs fits b and evaluates the first batchSize
// positions.
func RunInference(ctx context.Context, b Backend, bufs *BatchBuffers, batchSize int) error {
	if bufs == nil || bufs.State() != Allocated {
		return ErrBuffersReleased
	}

	if batchSize <= 0 || batchSize > bufs.MaxBatchSize() {
		return fmt.Errorf("%w: %d positions, buffers hold %d", ErrInvalidBatch, batchSize, bufs.MaxBatchSize())
	}

	attrs := b.Attributes()
	if attrs.MaximumBatchSize > 0 && batchSize > attrs.MaximumBatchSize {
		return fmt.Errorf("%w: %d positions, backend accepts at most %d", ErrInvalidBatch, batchSize, attrs.MaximumBatchSize)
	}
	if attrs.HasWDL != bufs.WDL() {
		return fmt.Errorf("%w: backend wdl %t, buffers wdl %t", ErrIncompatibleBuffers, attrs.HasWDL, bufs.WDL())
	}
	if bufs.HasMovesLeft() && !attrs.HasMovesLeft {
		return fmt.Errorf("%w: backend has no moves-left output", ErrIncompatibleBuffers)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	err := b.Evaluate(ctx, bufs, batchSize)
	logutil.TraceContext(ctx, "evaluated batch", "positions", batchSize, "duration", time.Since(start), "error", err)
	return err
}
