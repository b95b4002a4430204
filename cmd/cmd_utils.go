// cmd_utils.go - Gemeinsame Hilfsfunktionen der Commands
// Hauptfunktionen: prepareRegistry, isTerminal, checkServerHeartbeat
package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/lczero/lc0go/api"
	"github.com/lczero/lc0go/envconfig"
	"github.com/lczero/lc0go/neural"
)

// prepareRegistry uebernimmt LC0_DEFAULT_BACKEND und prueft das Default-Backend
func prepareRegistry(r *neural.Registry) error {
	if name := envconfig.DefaultBackend(); name != "" {
		r.SetDefaultBackend(name)
	}
	return r.Validate()
}

// isTerminal meldet ob w ein Terminal ist
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// checkServerHeartbeat - Prueft ob der Server laeuft
func checkServerHeartbeat(cmd *cobra.Command, _ []string) error {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return err
	}
	if err := client.Heartbeat(cmd.Context()); err != nil {
		return fmt.Errorf("lc0 server not responding, start it with 'lc0 serve': %w", err)
	}
	return nil
}
