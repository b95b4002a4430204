// MODUL: registry
// ZWECK: Registry fuer Backend-Factories mit Prioritaets-Sortierung und Default-Auswahl
// INPUT: BackendFactory-Instanzen, Backend-Namen, optionsdict.Dict
// OUTPUT: Sortierte Namensliste, Backend-Instanzen, Registrierungs-Tokens
// NEBENEFFEKTE: Logging via slog
// ABHAENGIGKEITEN: emirpasic/gods (Factory-Liste), agnivade/levenshtein (Namensvorschlaege)
// HINWEISE: Thread-sicher durch RWMutex; Create laeuft ausserhalb des Locks

package neural

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/agnivade/levenshtein"
	"github.com/emirpasic/gods/v2/lists/arraylist"

	"github.com/lczero/lc0go/optionsdict"
)

// Token identifies one registration. It is returned by Register and is the
// only handle Remove accepts, so a factory is removed by identity and never
// by name.
type Token uint64

type registration struct {
	token   Token
	factory BackendFactory
}

// FactoryInfo is one row of the priority-ordered listing.
type FactoryInfo struct {
	Name     string
	Priority int
	Default  bool
}

// ============================================================================
// Registry
// ============================================================================

// Registry owns a set of backend factories and resolves backends by name or
// by priority. The zero value is not usable, use NewRegistry.
type Registry struct {
	mu          sync.RWMutex
	factories   *arraylist.List[*registration]
	nextToken   Token
	defaultName string
}

// RegistryOption konfiguriert eine neue Registry.
type RegistryOption func(*Registry)

// WithDefaultBackend designates name as the default backend. ListNames
// rotates it to the front and fails if it is not registered.
func WithDefaultBackend(name string) RegistryOption {
	return func(r *Registry) {
		r.defaultName = name
	}
}

// NewRegistry erstellt eine leere Registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{factories: arraylist.New[*registration]()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetDefaultBackend changes the designated default; "" clears it.
func (r *Registry) SetDefaultBackend(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaultName = name
}

// DefaultBackend returns the designated default name, "" if none.
func (r *Registry) DefaultBackend() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultName
}

// Len returns the number of registered factories.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.factories.Size()
}

// ============================================================================
// Registrierung
// ============================================================================

// Register takes ownership of f. A second factory with the same name is
// rejected with ErrDuplicateBackend.
func (r *Registry) Register(f BackendFactory) (Token, error) {
	if f == nil {
		return 0, &RegistryError{Op: "register", Err: errors.New("nil factory")}
	}
	name := f.Name()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.findLocked(name) != nil {
		return 0, &RegistryError{Op: "register", Name: name, Err: ErrDuplicateBackend}
	}

	r.nextToken++
	reg := &registration{token: r.nextToken, factory: f}
	r.factories.Add(reg)

	slog.Debug("registered backend", "name", name, "priority", f.Priority())
	return reg.token, nil
}

// MustRegister ist Register fuer init()-Funktionen und panict bei Fehlern.
func (r *Registry) MustRegister(f BackendFactory) Token {
	tok, err := r.Register(f)
	if err != nil {
		panic(err)
	}
	return tok
}

// Remove deletes the factory registered under tok. Removing a token that is
// not (or no longer) registered fails with ErrUnregisteredBackend and leaves
// the registry unchanged.
func (r *Registry) Remove(tok Token) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, reg := range r.factories.Values() {
		if reg.token == tok {
			r.factories.Remove(i)
			slog.Debug("removed backend", "name", reg.factory.Name())
			return nil
		}
	}

	return &RegistryError{Op: "remove", Err: fmt.Errorf("%w (token %d)", ErrUnregisteredBackend, tok)}
}

// ============================================================================
// Abfrage
// ============================================================================

// ListNames returns the registered names sorted descending by
// (priority, name): higher priority first, equal priorities in descending
// name order. A designated default is moved to the front with the relative
// order of the others kept. A designated default that is not registered is
// a configuration error wrapping ErrUnknownBackend.
func (r *Registry) ListNames() ([]string, error) {
	infos, err := r.Factories()
	if err != nil {
		return nil, err
	}

	names := make([]string, len(infos))
	for i, fi := range infos {
		names[i] = fi.Name
	}
	return names, nil
}

// Factories is ListNames with priorities and the default flag.
func (r *Registry) Factories() ([]FactoryInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]FactoryInfo, 0, r.factories.Size())
	for _, reg := range r.factories.Values() {
		infos = append(infos, FactoryInfo{
			Name:     reg.factory.Name(),
			Priority: reg.factory.Priority(),
		})
	}

	slices.SortFunc(infos, func(a, b FactoryInfo) int {
		if c := cmp.Compare(b.Priority, a.Priority); c != 0 {
			return c
		}
		return cmp.Compare(b.Name, a.Name)
	})

	if r.defaultName == "" {
		return infos, nil
	}

	pos := slices.IndexFunc(infos, func(fi FactoryInfo) bool { return fi.Name == r.defaultName })
	if pos < 0 {
		return nil, r.unknownLocked("list", r.defaultName)
	}

	// Rotation von [0, pos] um eins nach rechts
	def := infos[pos]
	def.Default = true
	copy(infos[1:pos+1], infos[:pos])
	infos[0] = def

	return infos, nil
}

// Validate checks that a designated default is registered. Startup code
// calls it so a bad default stops the process early.
func (r *Registry) Validate() error {
	_, err := r.Factories()
	return err
}

// FindByName returns the factory registered under name.
func (r *Registry) FindByName(name string) (BackendFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if reg := r.findLocked(name); reg != nil {
		return reg.factory, true
	}
	return nil, false
}

func (r *Registry) findLocked(name string) *registration {
	for _, reg := range r.factories.Values() {
		if reg.factory.Name() == name {
			return reg
		}
	}
	return nil
}

// unknownLocked baut einen ErrUnknownBackend-Fehler mit Namensvorschlaegen.
func (r *Registry) unknownLocked(op, name string) error {
	var suggestions []string
	for _, reg := range r.factories.Values() {
		candidate := reg.factory.Name()
		if levenshtein.ComputeDistance(name, candidate) <= 2 {
			suggestions = append(suggestions, candidate)
		}
	}
	slices.Sort(suggestions)

	return &RegistryError{Op: op, Name: name, Err: ErrUnknownBackend, Suggestions: suggestions}
}

// ============================================================================
// Backend-Erstellung
// ============================================================================

// CreateFromName creates a backend with the factory registered under name.
// An unknown name fails with ErrUnknownBackend. A factory error is returned
// wrapped with the backend name, and no backend is returned with it.
func (r *Registry) CreateFromName(name string, opts *optionsdict.Dict) (Backend, error) {
	r.mu.RLock()
	reg := r.findLocked(name)
	var notFound error
	if reg == nil {
		notFound = r.unknownLocked("create", name)
	}
	r.mu.RUnlock()

	if notFound != nil {
		return nil, notFound
	}

	if opts == nil {
		opts = optionsdict.New()
	}

	slog.Info("creating backend", "name", name, "options", opts.String())

	b, err := reg.factory.Create(opts)
	if err != nil {
		if b != nil {
			b.Close()
		}
		return nil, &RegistryError{Op: "create", Name: name, Err: err}
	}
	if b == nil {
		return nil, &RegistryError{Op: "create", Name: name, Err: errors.New("factory returned no backend")}
	}

	return b, nil
}

// CreateFromConfig reads the backend name from the BackendID key of cfg and
// delegates to CreateFromName with cfg itself. A missing or mistyped key is
// returned as the *optionsdict.KeyError. Factories find their own options
// with BackendOptions and the network file with Weights.
func (r *Registry) CreateFromConfig(cfg *optionsdict.Dict) (Backend, error) {
	if cfg == nil {
		cfg = optionsdict.New()
	}

	name, err := optionsdict.Get[string](cfg, BackendID)
	if err != nil {
		return nil, fmt.Errorf("neural: backend config: %w", err)
	}

	return r.CreateFromName(name, cfg)
}
