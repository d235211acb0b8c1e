// Command acqctl is the operator CLI for the acquiring core.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:          "acqctl",
		Short:        "Operator tools for the acquiring core",
		Version:      Version,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(allocateCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(seedCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
