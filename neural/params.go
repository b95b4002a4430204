// params.go - Gemeinsame Konfigurationsschluessel fuer alle Backends
package neural

import (
	"fmt"

	"github.com/lczero/lc0go/optionsdict"
)

const (
	// BackendID haelt den Namen des zu erstellenden Backends
	BackendID = "backend"

	// BackendOptionsID haelt die backend-spezifischen Optionen, als
	// Sub-Dict oder als noch ungeparster String
	BackendOptionsID = "backend-opts"

	// WeightsID haelt den Pfad der Netzwerk-Datei
	WeightsID = "weights"
)

// NewConfig builds the configuration object CreateFromConfig expects from a
// backend name and a backend-opts string.
func NewConfig(backend, backendOpts string) (*optionsdict.Dict, error) {
	cfg := optionsdict.New()
	if backend != "" {
		cfg.Set(BackendID, backend)
	}

	sub := cfg.AddSubdict(BackendOptionsID)
	if err := optionsdict.ParseInto(sub, backendOpts); err != nil {
		return nil, fmt.Errorf("neural: %s: %w", BackendOptionsID, err)
	}
	return cfg, nil
}

// BackendOptions returns the backend specific options inside the dict a
// factory was handed: the BackendOptionsID sub-dict, a new dict parsed from
// a string stored under that key, or cfg itself when there is neither.
//
// The shared keys of cfg are marked read so CheckAllOptionsRead on a flat
// cfg does not reject them. cfg is not modified otherwise.
func BackendOptions(cfg *optionsdict.Dict) (*optionsdict.Dict, error) {
	cfg.MarkRead(BackendID, WeightsID)

	if cfg.HasSubdict(BackendOptionsID) {
		return cfg.Subdict(BackendOptionsID)
	}

	if !cfg.Exists(BackendOptionsID) {
		return cfg, nil
	}

	s, err := optionsdict.Get[string](cfg, BackendOptionsID)
	if err != nil {
		return nil, fmt.Errorf("neural: backend config: %w", err)
	}
	sub, err := optionsdict.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("neural: %s: %w", BackendOptionsID, err)
	}
	return sub, nil
}

// Weights returns the network file named in cfg, or "" when none is set.
func Weights(cfg *optionsdict.Dict) (string, error) {
	w, err := optionsdict.Optional(cfg, WeightsID, "")
	if err != nil {
		return "", fmt.Errorf("neural: backend config: %w", err)
	}
	return w, nil
}
