// Package main provides the entry point for the pipeline automation server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "crmauto",
	Short: "CRM pipeline automation engine",
	Long:  "crmauto turns pipeline events into tasks: stage transitions, won deals and scheduled staleness scans drive configurable automation rules.",
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
