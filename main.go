// Package main is the entry point for the tracker MCP server.
package main

import (
	"fmt"
	"os"

	"tracker-mcp-server/cmd"
	"tracker-mcp-server/internal/logging"
)

func main() {
	if err := cmd.Execute(); err != nil {
		logging.Error("command execution failed", "error", err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
