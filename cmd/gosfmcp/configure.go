package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

// starterConfig is written by the configure command. It starts read-mostly:
// queries and metadata commands allowed, destructive statements denied.
const starterConfig = `# gosfmcp service configuration
connection:
  account: ""
  user: ""
  role: ""
  warehouse: ""
  # authenticator: externalbrowser

sql_statement_permissions:
  - select: true
  - show: true
  - describe: true
  - use: true
  - explain: true
  - insert: false
  - update: false
  - delete: false
  - create: false
  - drop: false
  - alter: false
  - truncate: false
  - grant: false
  - revoke: false
  - unknown: false

server:
  transport: stdio

logging:
  level: info
  format: text
  output: stderr
`

func newConfigureCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "configure",
		Short: "Write a starter configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			return runConfigure(configPath)
		},
	}
	cmd.Flags().String("config", ".gosfmcp/config.yaml", "Path to write the configuration file")
	return cmd
}

func runConfigure(configPath string) error {
	printBanner(os.Stderr, isTTY(os.Stderr.Fd()))

	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config file %s already exists, remove it first", configPath)
	}
	if dir := filepath.Dir(configPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(configPath, []byte(starterConfig), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Wrote %s\n", configPath)
	fmt.Fprintln(os.Stderr, "Fill in the connection section, then check it with 'gosfmcp doctor'.")
	return nil
}
