// cmd_list.go - List und PS Commands
// Hauptfunktionen: ListHandler, ListRunningHandler
package cmd

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/lczero/lc0go/api"
	"github.com/lczero/lc0go/neural"
)

// newTable - Tabelle im gemeinsamen Stil aller Listen
func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	return table
}

// ListHandler - Listet die einkompilierten Backends in Auswahlreihenfolge
func ListHandler(cmd *cobra.Command, args []string) error {
	if err := prepareRegistry(neural.DefaultRegistry); err != nil {
		return err
	}

	infos, err := neural.DefaultRegistry.Factories()
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	writeBackends(w, infos, args, isTerminal(w))
	return nil
}

// writeBackends schreibt eine Tabelle, oder nur Namen wenn w kein Terminal ist
func writeBackends(w io.Writer, infos []neural.FactoryInfo, args []string, table bool) {
	var data [][]string
	for _, fi := range infos {
		if len(args) > 0 && !strings.HasPrefix(fi.Name, args[0]) {
			continue
		}

		if !table {
			fmt.Fprintln(w, fi.Name)
			continue
		}

		def := ""
		if fi.Default {
			def = "*"
		}
		data = append(data, []string{fi.Name, strconv.Itoa(fi.Priority), def})
	}

	if !table {
		return
	}

	t := newTable(w, []string{"NAME", "PRIORITY", "DEFAULT"})
	t.AppendBulk(data)
	t.Render()
}

// ListRunningHandler - Listet die Instanzen eines laufenden Servers
func ListRunningHandler(cmd *cobra.Command, args []string) error {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return err
	}

	resp, err := client.ListInstances(cmd.Context())
	if err != nil {
		return err
	}

	writeInstances(cmd.OutOrStdout(), resp.Instances, args, time.Now())
	return nil
}

func writeInstances(w io.Writer, insts []api.InstanceInfo, args []string, now time.Time) {
	var data [][]string
	for _, inst := range insts {
		if len(args) > 0 && !strings.HasPrefix(inst.Backend, args[0]) {
			continue
		}

		outputs := "value"
		if inst.Attributes.WDL {
			outputs = "wdl"
		}
		if inst.Attributes.MovesLeft {
			outputs += "+moves-left"
		}

		processor := "GPU"
		if inst.Attributes.RunsOnCPU {
			processor = "CPU"
		}

		age := now.Sub(inst.CreatedAt).Round(time.Second)
		data = append(data, []string{inst.ID[:min(8, len(inst.ID))], inst.Backend, outputs, processor, age.String() + " ago"})
	}

	t := newTable(w, []string{"ID", "BACKEND", "OUTPUTS", "PROCESSOR", "CREATED"})
	t.AppendBulk(data)
	t.Render()
}

// newListCmd - Erstellt den list Command
func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list [prefix]",
		Aliases: []string{"ls"},
		Short:   "List backends in selection order",
		Args:    cobra.MaximumNArgs(1),
		RunE:    ListHandler,
	}
}

// newPsCmd - Erstellt den ps Command
func newPsCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "ps [backend]",
		Short:   "List backend instances of a running server",
		Args:    cobra.MaximumNArgs(1),
		PreRunE: checkServerHeartbeat,
		RunE:    ListRunningHandler,
	}
}
