package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is stamped by the release build.
var version = "1.0.0"

func main() {
	root := &cobra.Command{
		Use:           "gosfmcp",
		Short:         "Snowflake MCP server",
		Long:          "gosfmcp exposes a permission-gated Snowflake query and object management surface over the Model Context Protocol.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newDoctorCmd())
	root.AddCommand(newConfigureCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
