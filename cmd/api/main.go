package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "flowtask",
	Short: "FlowTask Pro backend",
	Long:  "Task management API server with reminders, AI chat, and an offline cache proxy.",
}

func main() {
	rootCmd.AddCommand(serveCmd, migrateCmd, proxyCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
