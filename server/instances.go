// MODUL: instances
// ZWECK: Verwaltung der ueber HTTP erstellten Backend-Instanzen
// INPUT: neural.Backend aus der Registry, Instanz-IDs
// OUTPUT: Instanzen in Erstellungsreihenfolge
// NEBENEFFEKTE: Close schliesst das Backend
// ABHAENGIGKEITEN: google/uuid (IDs), wk8/go-ordered-map (Reihenfolge)
// HINWEISE: Evaluate haelt die Lese-Sperre der Instanz, Close wartet darauf

package server

import (
	"sync"
	"time"

	"github.com/google/uuid"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/lczero/lc0go/api"
	"github.com/lczero/lc0go/neural"
)

type instance struct {
	id        string
	backend   string
	options   string
	attrs     neural.Attributes
	createdAt time.Time

	// mu: RLock fuer Evaluate, Lock fuer Close
	mu     sync.RWMutex
	b      neural.Backend
	closed bool
}

func newInstance(name, options string, b neural.Backend) *instance {
	return &instance{
		id:        uuid.NewString(),
		backend:   name,
		options:   options,
		attrs:     b.Attributes(),
		createdAt: time.Now().UTC(),
		b:         b,
	}
}

func (i *instance) info() api.InstanceInfo {
	return api.InstanceInfo{
		ID:      i.id,
		Backend: i.backend,
		Options: i.options,
		Attributes: api.Attributes{
			WDL:                  i.attrs.HasWDL,
			MovesLeft:            i.attrs.HasMovesLeft,
			RunsOnCPU:            i.attrs.RunsOnCPU,
			RecommendedBatchSize: i.attrs.RecommendedBatchSize,
			MaximumBatchSize:     i.attrs.MaximumBatchSize,
		},
		CreatedAt: i.createdAt,
	}
}

// acquire sperrt die Instanz fuer eine Auswertung. ok ist false nach Close.
func (i *instance) acquire() (neural.Backend, func(), bool) {
	i.mu.RLock()
	if i.closed {
		i.mu.RUnlock()
		return nil, nil, false
	}
	return i.b, i.mu.RUnlock, true
}

func (i *instance) close() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return
	}
	i.b.Close()
	i.b = nil
	i.closed = true
}

// ============================================================================
// instanceStore
// ============================================================================

type instanceStore struct {
	mu sync.Mutex
	m  *orderedmap.OrderedMap[string, *instance]
}

func newInstanceStore() *instanceStore {
	return &instanceStore{m: orderedmap.New[string, *instance]()}
}

func (s *instanceStore) add(i *instance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m.Set(i.id, i)
}

func (s *instanceStore) get(id string) (*instance, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m.Get(id)
}

// remove nimmt die Instanz aus dem Store, schliessen muss der Aufrufer
func (s *instanceStore) remove(id string) (*instance, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m.Delete(id)
}

func (s *instanceStore) list() []*instance {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*instance, 0, s.m.Len())
	for p := s.m.Oldest(); p != nil; p = p.Next() {
		out = append(out, p.Value)
	}
	return out
}

// drain leert den Store und gibt alle Instanzen zurueck
func (s *instanceStore) drain() []*instance {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*instance, 0, s.m.Len())
	for p := s.m.Oldest(); p != nil; p = p.Next() {
		out = append(out, p.Value)
	}
	s.m = orderedmap.New[string, *instance]()
	return out
}
