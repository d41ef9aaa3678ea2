// Command bashed builds Bashed Patches for TES4-family game plugins.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/roach88/bashed/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := cli.NewRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "bashed:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
