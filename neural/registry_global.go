// MODUL: registry_global
// ZWECK: Globale DefaultRegistry und Package-Level Convenience-Funktionen
// INPUT: BackendFactory, Backend-Name, optionsdict.Dict
// OUTPUT: Backend-Instanzen, sortierte Namensliste
// NEBENEFFEKTE: Aendert globale DefaultRegistry
// ABHAENGIGKEITEN: registry.go (Registry)
// HINWEISE: Backends registrieren sich via init() in ihren Packages

package neural

import (
	"github.com/lczero/lc0go/optionsdict"
)

// DefaultBackend designates the default backend of DefaultRegistry. It is
// set at link time:
//
//	go build -ldflags "-X github.com/lczero/lc0go/neural.DefaultBackend=blas"
//
// A name that no backend registers makes ListBackendNames fail.
var DefaultBackend string

// DefaultRegistry is the process-wide registry the built-in backends
// register with.
var DefaultRegistry = NewRegistry(WithDefaultBackend(DefaultBackend))

// Register registriert f in der DefaultRegistry.
func Register(f BackendFactory) (Token, error) {
	return DefaultRegistry.Register(f)
}

// MustRegister registriert f in der DefaultRegistry und panict bei Fehlern.
func MustRegister(f BackendFactory) Token {
	return DefaultRegistry.MustRegister(f)
}

// ListBackendNames returns DefaultRegistry.ListNames.
func ListBackendNames() ([]string, error) {
	return DefaultRegistry.ListNames()
}

// CreateBackend creates the named backend from DefaultRegistry, or the first
// backend of ListBackendNames when name is empty.
func CreateBackend(name string, opts *optionsdict.Dict) (Backend, error) {
	return DefaultRegistry.CreateOrDefault(name, opts)
}

// CreateOrDefault creates the named backend, or the first listed one when
// name is empty.
func (r *Registry) CreateOrDefault(name string, opts *optionsdict.Dict) (Backend, error) {
	if name == "" {
		names, err := r.ListNames()
		if err != nil {
			return nil, err
		}
		if len(names) == 0 {
			return nil, &RegistryError{Op: "create", Err: ErrNoBackends}
		}
		name = names[0]
	}
	return r.CreateFromName(name, opts)
}
