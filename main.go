package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/lczero/lc0go/cmd"
)

func main() {
	cobra.CheckErr(cmd.NewCLI().ExecuteContext(context.Background()))
}
