// config_utils.go - Utility-Funktionen und Export fuer Konfiguration
//
// Dieses Modul enthaelt:
// - String: String-Getter
// - Uint: Integer-Getter mit Default-Wert
// - EnvVar: Struktur fuer Environment-Variablen-Info
// - AsMap: Gibt alle Konfigurationen als Map zurueck
// - Values: Gibt alle Konfigurationswerte als String-Map zurueck
package envconfig

import (
	"fmt"
	"log/slog"
	"strconv"
)

// =============================================================================
// String-Getter
// =============================================================================

// String gibt eine Funktion zurueck, die einen String liest
func String(s string) func() string {
	return func() string {
		return Var(s)
	}
}

// =============================================================================
// Integer-Getter
// =============================================================================

// Uint gibt eine Funktion zurueck, die einen uint mit Default-Wert liest
func Uint(key string, defaultValue uint) func() uint {
	return func() uint {
		if s := Var(key); s != "" {
			if n, err := strconv.ParseUint(s, 10, 64); err != nil {
				slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
			} else {
				return uint(n)
			}
		}
		return defaultValue
	}
}

// =============================================================================
// Export-Strukturen und -Funktionen
// =============================================================================

// EnvVar repraesentiert eine Environment-Variable mit Metadaten
type EnvVar struct {
	Name        string
	Value       any
	Description string
}

// AsMap gibt alle Konfigurationen als Map zurueck
// Enthaelt Namen, aktuelle Werte und Beschreibungen
func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"LC0_DEBUG":           {"LC0_DEBUG", LogLevel(), "Show additional debug information (e.g. LC0_DEBUG=1, LC0_DEBUG=2 for trace)"},
		"LC0_HOST":            {"LC0_HOST", Host(), "IP Address for the lc0 server (default 127.0.0.1:11435)"},
		"LC0_ORIGINS":         {"LC0_ORIGINS", AllowedOrigins(), "A comma separated list of allowed origins"},
		"LC0_BACKEND":         {"LC0_BACKEND", Backend(), "Backend used when none is given (default: first listed)"},
		"LC0_BACKEND_OPTS":    {"LC0_BACKEND_OPTS", BackendOpts(), "Options for LC0_BACKEND, e.g. \"threads=4,precision=fp16\""},
		"LC0_DEFAULT_BACKEND": {"LC0_DEFAULT_BACKEND", DefaultBackend(), "Backend listed first, must be registered"},
		"LC0_MAX_BATCH":       {"LC0_MAX_BATCH", MaxBatch(), "Maximum number of positions per evaluate request (default 1024)"},
		"LC0_NUM_PARALLEL":    {"LC0_NUM_PARALLEL", NumParallel(), "Maximum number of parallel evaluate requests (default 4)"},
	}
}

// Values gibt alle Konfigurationswerte als String-Map zurueck
func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}
