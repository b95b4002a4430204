// cmd.go - Haupt-CLI Setup und Root Command
// Hauptfunktionen: NewCLI, appendEnvDocs
package cmd

import (
	"fmt"
	"log"
	"os"
	"runtime"

	"github.com/containerd/console"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/lczero/lc0go/envconfig"
	_ "github.com/lczero/lc0go/neural/backends"
)

// appendEnvDocs - Fuegt Umgebungsvariablen-Dokumentation zum Command hinzu
func appendEnvDocs(cmd *cobra.Command, envs []envconfig.EnvVar) {
	if len(envs) == 0 {
		return
	}

	envUsage := `
Environment Variables:
`
	for _, e := range envs {
		envUsage += fmt.Sprintf("      %-24s   %s\n", e.Name, e.Description)
	}

	cmd.SetUsageTemplate(cmd.UsageTemplate() + envUsage)
}

// NewCLI - Erstellt das Haupt-CLI mit allen Commands
func NewCLI() *cobra.Command {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	cobra.EnableCommandSorting = false

	if runtime.GOOS == "windows" && term.IsTerminal(int(os.Stdout.Fd())) {
		console.ConsoleFromFile(os.Stdin) //nolint:errcheck
	}

	rootCmd := &cobra.Command{
		Use:           "lc0",
		Short:         "Neural network backends for chess position evaluation",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		Run: func(cmd *cobra.Command, args []string) {
			if version, _ := cmd.Flags().GetBool("version"); version {
				versionHandler(cmd, args)
				return
			}

			cmd.Print(cmd.UsageString())
		},
	}

	rootCmd.Flags().BoolP("version", "v", false, "Show version information")

	serveCmd := newServeCmd()
	listCmd := newListCmd()
	benchCmd := newBenchCmd()
	psCmd := newPsCmd()

	// Environment-Dokumentation hinzufuegen
	envVars := envconfig.AsMap()

	for _, cmd := range []*cobra.Command{serveCmd, listCmd, benchCmd, psCmd} {
		switch cmd {
		case serveCmd:
			appendEnvDocs(cmd, []envconfig.EnvVar{
				envVars["LC0_DEBUG"],
				envVars["LC0_HOST"],
				envVars["LC0_ORIGINS"],
				envVars["LC0_DEFAULT_BACKEND"],
				envVars["LC0_MAX_BATCH"],
				envVars["LC0_NUM_PARALLEL"],
			})
		case listCmd:
			appendEnvDocs(cmd, []envconfig.EnvVar{envVars["LC0_DEFAULT_BACKEND"]})
		case benchCmd:
			appendEnvDocs(cmd, []envconfig.EnvVar{
				envVars["LC0_HOST"],
				envVars["LC0_BACKEND"],
				envVars["LC0_BACKEND_OPTS"],
				envVars["LC0_DEFAULT_BACKEND"],
			})
		default:
			appendEnvDocs(cmd, []envconfig.EnvVar{envVars["LC0_HOST"]})
		}
	}

	rootCmd.AddCommand(
		serveCmd,
		listCmd,
		benchCmd,
		psCmd,
	)

	return rootCmd
}
