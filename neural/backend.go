// MODUL: backend
// ZWECK: Vertrag fuer Inferenz-Backends und ihre Factories
// INPUT: optionsdict.Dict mit Backend-Optionen
// OUTPUT: Backend-Instanzen, die BatchBuffers auswerten
// NEBENEFFEKTE: Keine
// ABHAENGIGKEITEN: optionsdict
// HINWEISE: Konkrete Backends liegen unter neural/backends/ und registrieren sich via init()

// Package neural selects, configures and instantiates inference backends at
// runtime and defines the fixed-shape batch buffers every backend consumes.
package neural

import (
	"context"

	"github.com/lczero/lc0go/optionsdict"
)

// Backend evaluates batches of encoded positions. Its lifetime is
// independent of the registry that created it.
type Backend interface {
	// Attributes describes the outputs the backend produces.
	Attributes() Attributes

	// Evaluate reads the first batchSize positions from the input buffers
	// of bufs and writes policy, value and (if bufs has one) moves-left
	// outputs for them.
	Evaluate(ctx context.Context, bufs *BatchBuffers, batchSize int) error

	// Close frees all resources held by the backend.
	Close()
}

// Attributes beschreibt die Faehigkeiten eines Backends.
type Attributes struct {
	HasWDL       bool // Value-Head liefert Win/Draw/Loss statt Skalar
	HasMovesLeft bool // Moves-Left-Head vorhanden
	RunsOnCPU    bool

	// RecommendedBatchSize ist ein Hinweis fuer den Batching-Layer, 0 = egal
	RecommendedBatchSize int

	// MaximumBatchSize begrenzt batchSize in Evaluate, 0 = unbegrenzt
	MaximumBatchSize int
}

// BackendFactory creates one kind of Backend. Name must be unique within a
// Registry; higher Priority sorts first when listing.
type BackendFactory interface {
	Name() string
	Priority() int
	Create(opts *optionsdict.Dict) (Backend, error)
}

// CreateFunc is the constructor wrapped by NewFactory.
type CreateFunc func(opts *optionsdict.Dict) (Backend, error)

type funcFactory struct {
	name     string
	priority int
	create   CreateFunc
}

// NewFactory adapts a constructor function to the BackendFactory interface.
func NewFactory(name string, priority int, create CreateFunc) BackendFactory {
	return &funcFactory{name: name, priority: priority, create: create}
}

func (f *funcFactory) Name() string  { return f.name }
func (f *funcFactory) Priority() int { return f.priority }

func (f *funcFactory) Create(opts *optionsdict.Dict) (Backend, error) {
	return f.create(opts)
}
