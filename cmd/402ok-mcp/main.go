package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "402ok-mcp",
	Short: "Payment-gated MCP tool server",
	Long:  "Serves MCP tools behind the x402 payment lifecycle: challenge, verify, execute, settle.",
}

func main() {
	rootCmd.AddCommand(NewServeCmd())
	rootCmd.AddCommand(NewVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
