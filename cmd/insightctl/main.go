package main

import (
	"fmt"
	"os"

	"github.com/edulane/insights-api/cmd/insightctl/commands"
	"github.com/spf13/cobra"
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "insightctl",
		Short: "Administration tool for the insights API",
		Long:  "CLI tool for pre-warming snapshots, inspecting insights, and reviewing policy",
	}

	rootCmd.AddCommand(commands.NewPrewarmCmd())
	rootCmd.AddCommand(commands.NewSnapshotCmd())
	rootCmd.AddCommand(commands.NewLatestCmd())
	rootCmd.AddCommand(commands.NewPolicyCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
