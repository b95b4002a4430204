// errors.go - Fehlerarten der Backend-Registry und der Batch-Buffer
package neural

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrUnknownBackend: kein Factory mit diesem Namen, oder der
	// designierte Default fehlt in der Liste
	ErrUnknownBackend = errors.New("unknown backend")

	// ErrUnregisteredBackend: Remove fuer ein nicht (mehr) registriertes Factory
	ErrUnregisteredBackend = errors.New("attempt to remove unregistered backend")

	// ErrDuplicateBackend: Name bereits registriert
	ErrDuplicateBackend = errors.New("backend already registered")

	// ErrNoBackends: Registry ist leer
	ErrNoBackends = errors.New("no backends registered")

	// ErrAllocation: Batch-Buffer konnten nicht angelegt werden
	ErrAllocation = errors.New("batch buffer allocation failed")

	ErrInvalidBatch        = errors.New("invalid batch size")
	ErrIncompatibleBuffers = errors.New("batch buffers do not match backend outputs")
	ErrBuffersReleased     = errors.New("batch buffers not allocated")
)

// RegistryError reports a failed registry operation together with the
// backend name involved.
type RegistryError struct {
	Op   string // "register", "list", "create", "remove"
	Name string
	Err  error

	// Suggestions are registered names close to Name, for unknown backends.
	Suggestions []string
}

func (e *RegistryError) Error() string {
	var sb strings.Builder
	sb.WriteString("neural: ")
	sb.WriteString(e.Op)
	if e.Name != "" {
		sb.WriteString(" backend ")
		sb.WriteString(strconv.Quote(e.Name))
	}
	sb.WriteString(": ")
	sb.WriteString(e.Err.Error())

	if len(e.Suggestions) > 0 {
		quoted := make([]string, len(e.Suggestions))
		for i, s := range e.Suggestions {
			quoted[i] = strconv.Quote(s)
		}
		sb.WriteString(" (did you mean ")
		sb.WriteString(strings.Join(quoted, " or "))
		sb.WriteString("?)")
	}
	return sb.String()
}

func (e *RegistryError) Unwrap() error {
	return e.Err
}

// AllocationError describes a BatchBuffers request that could not be satisfied.
type AllocationError struct {
	MaxBatchSize int
	WDL          bool
	MovesLeft    bool
	Reason       string
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("neural: allocate batch buffers (max batch %d, wdl %t, moves-left %t): %s",
		e.MaxBatchSize, e.WDL, e.MovesLeft, e.Reason)
}

func (e *AllocationError) Unwrap() error {
	return ErrAllocation
}
