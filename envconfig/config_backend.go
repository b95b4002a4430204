// config_backend.go - Backend-Auswahl und Grenzen fuer Inferenz-Anfragen
package envconfig

var (
	// Backend ist das Backend fuer bench/serve wenn keins angegeben ist
	Backend = String("LC0_BACKEND")

	// BackendOpts sind die backend-opts fuer Backend
	BackendOpts = String("LC0_BACKEND_OPTS")

	// DefaultBackend ueberschreibt das beim Linken designierte Default-Backend
	DefaultBackend = String("LC0_DEFAULT_BACKEND")
)

var (
	// MaxBatch begrenzt die Positionen pro Evaluate-Anfrage
	MaxBatch = Uint("LC0_MAX_BATCH", 1024)

	// NumParallel begrenzt gleichzeitig laufende Evaluate-Anfragen
	NumParallel = Uint("LC0_NUM_PARALLEL", 4)
)
