// MODUL: batch
// ZWECK: Flache Ein-/Ausgabe-Buffer fuer einen Inferenz-Aufruf
// INPUT: maxBatchSize, WDL-Flag, Moves-Left-Flag
// OUTPUT: BatchBuffers mit festen Groessen (112 Input-Planes, 1858 Policy-Outputs)
// NEBENEFFEKTE: Alloziert Speicher, Release gibt alles gemeinsam frei
// ABHAENGIGKEITEN: Keine
// HINWEISE: Nicht thread-sicher, gehoert genau einem laufenden Aufruf

package neural

import (
	"fmt"
	"math"
)

// Shape contract shared by every backend and caller.
const (
	InputPlanes     = 112
	NumOutputPolicy = 1858
)

// BufferState is the lifecycle state of a BatchBuffers.
type BufferState int

const (
	Uninitialized BufferState = iota
	Allocated
	Released
)

func (s BufferState) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Allocated:
		return "allocated"
	case Released:
		return "released"
	default:
		return fmt.Sprintf("BufferState(%d)", int(s))
	}
}

// BatchBuffers holds the inputs and outputs of one inference call for up to
// MaxBatchSize positions. Position i owns
//
//	InputMasks[i*InputPlanes : (i+1)*InputPlanes]        one bitboard per plane
//	InputValues[i*InputPlanes : (i+1)*InputPlanes]       the scalar for each plane
//	PolicyOutput[i*NumOutputPolicy : (i+1)*NumOutputPolicy]
//	ValueOutput[i*ValueSize() : (i+1)*ValueSize()]       scalar or W/D/L
//	MovesLeftOutput[i]                                   only if HasMovesLeft
//
// The sizes are fixed at construction.
type BatchBuffers struct {
	InputMasks      []uint64
	InputValues     []float32
	PolicyOutput    []float32
	ValueOutput     []float32
	MovesLeftOutput []float32

	maxBatchSize int
	wdl          bool
	movesLeft    bool
	state        BufferState
}

// NewBatchBuffers allocates all buffers for maxBatchSize positions at once.
// Either every buffer is allocated or an *AllocationError (ErrAllocation) is
// returned and nothing is.
func NewBatchBuffers(maxBatchSize int, wdl, movesLeft bool) (bufs *BatchBuffers, err error) {
	allocErr := func(reason string) *AllocationError {
		return &AllocationError{MaxBatchSize: maxBatchSize, WDL: wdl, MovesLeft: movesLeft, Reason: reason}
	}

	if maxBatchSize <= 0 {
		return nil, allocErr("max batch size must be positive")
	}

	valueSize := 1
	if wdl {
		valueSize = 3
	}

	// Bytes pro Position ueber alle Buffer
	perPosition := InputPlanes*(8+4) + NumOutputPolicy*4 + valueSize*4 + 4
	if maxBatchSize > math.MaxInt/perPosition {
		return nil, allocErr("size overflows")
	}

	defer func() {
		if r := recover(); r != nil {
			bufs = nil
			err = allocErr(fmt.Sprint(r))
		}
	}()

	b := &BatchBuffers{
		maxBatchSize: maxBatchSize,
		wdl:          wdl,
		movesLeft:    movesLeft,
	}
	b.InputMasks = make([]uint64, maxBatchSize*InputPlanes)
	b.InputValues = make([]float32, maxBatchSize*InputPlanes)
	b.PolicyOutput = make([]float32, maxBatchSize*NumOutputPolicy)
	b.ValueOutput = make([]float32, maxBatchSize*valueSize)
	if movesLeft {
		b.MovesLeftOutput = make([]float32, maxBatchSize)
	}
	b.state = Allocated

	return b, nil
}

// Release drops all buffers. Calling it again is a no-op.
func (b *BatchBuffers) Release() {
	if b.state != Allocated {
		return
	}
	b.InputMasks = nil
	b.InputValues = nil
	b.PolicyOutput = nil
	b.ValueOutput = nil
	b.MovesLeftOutput = nil
	b.state = Released
}

func (b *BatchBuffers) State() BufferState { return b.state }
func (b *BatchBuffers) MaxBatchSize() int  { return b.maxBatchSize }
func (b *BatchBuffers) WDL() bool          { return b.wdl }

// HasMovesLeft reports whether a moves-left buffer was requested.
func (b *BatchBuffers) HasMovesLeft() bool { return b.movesLeft }

// ValueSize is 3 with WDL, 1 otherwise.
func (b *BatchBuffers) ValueSize() int {
	if b.wdl {
		return 3
	}
	return 1
}

// ============================================================================
// Zugriff pro Position
// ============================================================================

// SetPlane writes mask and value of one input plane of position pos.
func (b *BatchBuffers) SetPlane(pos, plane int, mask uint64, value float32) {
	i := pos*InputPlanes + plane
	b.InputMasks[i] = mask
	b.InputValues[i] = value
}

// Plane returns mask and value of one input plane of position pos.
func (b *BatchBuffers) Plane(pos, plane int) (uint64, float32) {
	i := pos*InputPlanes + plane
	return b.InputMasks[i], b.InputValues[i]
}

// Masks returns the input bitboards of position pos.
func (b *BatchBuffers) Masks(pos int) []uint64 {
	return b.InputMasks[pos*InputPlanes : (pos+1)*InputPlanes : (pos+1)*InputPlanes]
}

// Values returns the input plane scalars of position pos.
func (b *BatchBuffers) Values(pos int) []float32 {
	return b.InputValues[pos*InputPlanes : (pos+1)*InputPlanes : (pos+1)*InputPlanes]
}

// Policy returns the policy output of position pos.
func (b *BatchBuffers) Policy(pos int) []float32 {
	return b.PolicyOutput[pos*NumOutputPolicy : (pos+1)*NumOutputPolicy : (pos+1)*NumOutputPolicy]
}

// Value returns the value output of position pos: one scalar, or W, D, L.
func (b *BatchBuffers) Value(pos int) []float32 {
	n := b.ValueSize()
	return b.ValueOutput[pos*n : (pos+1)*n : (pos+1)*n]
}

// MovesLeft returns the moves-left output of position pos; ok is false when
// the buffers were built without one.
func (b *BatchBuffers) MovesLeft(pos int) (v float32, ok bool) {
	if b.MovesLeftOutput == nil {
		return 0, false
	}
	return b.MovesLeftOutput[pos], true
}

// ClearInputs zeroes the inputs of the first n positions so a set can be
// refilled within the same call.
func (b *BatchBuffers) ClearInputs(n int) {
	clear(b.InputMasks[:n*InputPlanes])
	clear(b.InputValues[:n*InputPlanes])
}
