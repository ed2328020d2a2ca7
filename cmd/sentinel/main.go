package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sentinelhq/sentinel/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "sentinel",
	Short: "Health monitoring and self-healing escalation for personal infrastructure",
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.GetInfo())
	},
}

func main() {
	rootCmd.AddCommand(versionCmd, serveCmd, checkCmd, tokenCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
