package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/benvon/mentra/cmd/configure/commands"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "mentra-configure",
		Short:        "Configuration tool for the Mentra API",
		Long:         "CLI tool for database-stored settings: CORS origins, rate limits and schema migrations",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(commands.NewCorsCmd())
	rootCmd.AddCommand(commands.NewRatelimitCmd())
	rootCmd.AddCommand(commands.NewListCmd())
	rootCmd.AddCommand(commands.NewMigrateCmd())
	rootCmd.AddCommand(commands.NewCheckCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
