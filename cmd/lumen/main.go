// Package main provides the CLI entry point for the Lumen journaling service.
//
// Start the server:
//
//	lumen serve --config lumen.yaml
//
// Populate a development database with demo accounts and entries:
//
//	lumen seed
//
// Configuration can reference environment variables with ${VAR} syntax; the
// default config reads LUMEN_JWT_SECRET for the session signing key.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Build information - populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	root := &cobra.Command{
		Use:           "lumen",
		Short:         "Lumen anonymous journaling service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newServeCommand())
	root.AddCommand(newSeedCommand())
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("lumen %s (%s)\n", version, commit)
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
