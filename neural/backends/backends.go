// Package backends links every built-in backend into the binary. Importing
// it for side effects registers blas, random and demux with
// neural.DefaultRegistry.
package backends

import (
	_ "github.com/lczero/lc0go/neural/backends/blas"
	_ "github.com/lczero/lc0go/neural/backends/demux"
	_ "github.com/lczero/lc0go/neural/backends/random"
)
