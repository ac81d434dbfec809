// Command bithedge runs the BitHedge backend: price oracle pipeline,
// policy orchestration, capital allocation, transaction engine,
// expiration scheduling, event processing, and the RPC surface a
// frontend talks to.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "bithedge",
		Short: "BitHedge Bitcoin price-protection marketplace backend",
	}
	root.PersistentFlags().String("config", "config.toml", "path to the TOML configuration file")
	root.AddCommand(newStartCmd())
	return root
}
