// types.go - JSON-Typen der HTTP-API (Backends, Instanzen, Evaluate)
// Enthaelt: StatusError, BackendInfo, Instance*, Evaluate*, Plane, Position, Result
package api

import (
	"fmt"
	"time"
)

// StatusError is an error with an HTTP status code and message.
type StatusError struct {
	StatusCode   int
	Status       string
	ErrorMessage string `json:"error"`
}

func (e StatusError) Error() string {
	switch {
	case e.Status != "" && e.ErrorMessage != "":
		return fmt.Sprintf("%s: %s", e.Status, e.ErrorMessage)
	case e.Status != "":
		return e.Status
	case e.ErrorMessage != "":
		return e.ErrorMessage
	default:
		return "something went wrong, please see the lc0 server logs for details"
	}
}

// =============================================================================
// Backends
// =============================================================================

// BackendInfo ist eine Zeile der priorisierten Backend-Liste
type BackendInfo struct {
	Name     string `json:"name"`
	Priority int    `json:"priority"`
	Default  bool   `json:"default,omitempty"`
}

// ListBackendsResponse is the response from [Client.ListBackends]. Backends
// are in selection order, the first one is used when no name is given.
type ListBackendsResponse struct {
	Backends []BackendInfo `json:"backends"`
}

// =============================================================================
// Instanzen
// =============================================================================

// Attributes spiegelt neural.Attributes
type Attributes struct {
	WDL                  bool `json:"wdl"`
	MovesLeft            bool `json:"moves_left"`
	RunsOnCPU            bool `json:"runs_on_cpu"`
	RecommendedBatchSize int  `json:"recommended_batch_size,omitempty"`
	MaximumBatchSize     int  `json:"maximum_batch_size,omitempty"`
}

// CreateInstanceRequest creates a backend instance on the server. An empty
// Backend selects the first listed backend. Options is a backend-opts
// string such as "threads=2,precision=fp16".
type CreateInstanceRequest struct {
	Backend string `json:"backend,omitempty"`
	Options string `json:"options,omitempty"`
}

// InstanceInfo describes a live backend instance.
type InstanceInfo struct {
	ID         string     `json:"id"`
	Backend    string     `json:"backend"`
	Options    string     `json:"options,omitempty"`
	Attributes Attributes `json:"attributes"`
	CreatedAt  time.Time  `json:"created_at"`
}

type ListInstancesResponse struct {
	Instances []InstanceInfo `json:"instances"`
}

// =============================================================================
// Evaluate
// =============================================================================

// Plane ist eine Input-Plane: Bitboard plus Skalar. Die Maske wird als
// String uebertragen, damit JSON-Clients keine Bits verlieren.
type Plane struct {
	Mask  uint64  `json:"mask,string"`
	Value float32 `json:"value"`
}

// Position holds up to 112 planes; missing trailing planes are zero.
type Position struct {
	Planes []Plane `json:"planes"`
}

// EvaluateRequest evaluates positions on an instance created earlier.
type EvaluateRequest struct {
	Instance  string     `json:"instance"`
	Positions []Position `json:"positions"`
}

// Result holds the outputs for one position. Value has three entries
// (win, draw, loss) for WDL backends and one otherwise.
type Result struct {
	Policy    []float32 `json:"policy"`
	Value     []float32 `json:"value"`
	MovesLeft *float32  `json:"moves_left,omitempty"`
}

type EvaluateResponse struct {
	Results       []Result      `json:"results"`
	TotalDuration time.Duration `json:"total_duration,omitempty"`
}
