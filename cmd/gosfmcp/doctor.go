package main

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	sfmcp "github.com/sfmcp/snowflake-mcp"
)

func newDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the service configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			if configPath == "" {
				configPath = os.Getenv("SERVICE_CONFIG_FILE")
			}
			return doctor(os.Stderr, isTTY(os.Stderr.Fd()), configPath)
		},
	}
	cmd.Flags().String("config", "", "Path to the service configuration file (default $SERVICE_CONFIG_FILE)")
	return cmd
}

func doctor(w io.Writer, useColor bool, configPath string) error {
	printBanner(w, useColor)
	fmt.Fprintf(w, "gosfmcp %s\n\n", version)

	if !doctorValidateConfig(w, useColor, configPath) {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Fix the issues above and run 'gosfmcp doctor' again.")
		return nil
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Configuration looks good. Start the server with 'gosfmcp serve'.")
	return nil
}

// doctorValidateConfig loads and validates the config file, printing check
// results. Returns true if every check passed.
func doctorValidateConfig(w io.Writer, useColor bool, configPath string) bool {
	allPassed := true

	if configPath == "" {
		printCheck(w, useColor, false, "Config file path set (--config or SERVICE_CONFIG_FILE)")
		return false
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		printCheck(w, useColor, false, fmt.Sprintf("Config file readable (%s)", configPath))
		return false
	}
	printCheck(w, useColor, true, fmt.Sprintf("Config file readable (%s)", configPath))

	config, err := sfmcp.ParseServerConfig(data)
	if err != nil {
		printCheck(w, useColor, false, fmt.Sprintf("Config file is valid YAML: %v", err))
		return false
	}
	printCheck(w, useColor, true, "Config file is valid YAML")

	// Permission entries
	if len(config.Permissions) == 0 {
		printCheck(w, useColor, false, "sql_statement_permissions is non-empty (every statement will be denied)")
		allPassed = false
	} else {
		printCheck(w, useColor, true, fmt.Sprintf("sql_statement_permissions has %d entries", len(config.Permissions)))
	}
	seen := map[string]bool{}
	for _, entry := range config.Permissions {
		key := strings.ToLower(entry.StatementType)
		if prev, dup := seen[key]; dup && prev != entry.Allowed {
			printCheck(w, useColor, false, fmt.Sprintf("statement type %q listed with conflicting values (the disallow wins)", key))
			allPassed = false
		}
		seen[key] = entry.Allowed
	}

	// HTTP transport settings
	if config.Server.Transport == "http" {
		if config.Server.Port <= 0 {
			printCheck(w, useColor, false, "server.port is > 0 (required for http transport)")
			allPassed = false
		} else {
			printCheck(w, useColor, true, fmt.Sprintf("server.port is > 0 (%d)", config.Server.Port))
		}
	}
	if config.Server.HealthCheckEnabled && config.Server.HealthCheckPath == "" {
		printCheck(w, useColor, false, "health_check_path is set (required when health_check_enabled)")
		allPassed = false
	}

	// Regex patterns compile
	for i, rule := range config.ErrorGuidance {
		if _, err := regexp.Compile(rule.Pattern); err != nil {
			printCheck(w, useColor, false, fmt.Sprintf("error_guidance[%d] regex compiles: %v", i, err))
			allPassed = false
		}
	}
	for i, rule := range config.Sanitization {
		if _, err := regexp.Compile(rule.Pattern); err != nil {
			printCheck(w, useColor, false, fmt.Sprintf("sanitization[%d] regex compiles: %v", i, err))
			allPassed = false
		}
	}

	// Credentials discoverable from the config file or environment. Serve
	// also reads flags and falls back to connections.toml, so a miss here is
	// reported but not counted as a failure.
	account := config.Connection.Account
	if v := os.Getenv("SNOWFLAKE_ACCOUNT"); v != "" {
		account = v
	}
	connName := config.Connection.ConnectionName
	if v := os.Getenv("SNOWFLAKE_CONNECTION_NAME"); v != "" {
		connName = v
	}
	if account != "" || connName != "" {
		printCheck(w, useColor, true, "Account or connection name configured")
	} else {
		printCheck(w, useColor, true, "No account configured, serve will fall back to the default connections.toml profile")
	}

	// Private key file readable when configured
	if config.Connection.PrivateKeyFile != "" {
		if _, err := os.Stat(config.Connection.PrivateKeyFile); err != nil {
			printCheck(w, useColor, false, fmt.Sprintf("private_key_file readable (%s)", config.Connection.PrivateKeyFile))
			allPassed = false
		} else {
			printCheck(w, useColor, true, fmt.Sprintf("private_key_file readable (%s)", config.Connection.PrivateKeyFile))
		}
	}

	return allPassed
}

// printCheck prints a pass/fail line with an optional color marker.
func printCheck(w io.Writer, useColor bool, passed bool, message string) {
	mark := "x"
	if passed {
		mark = "ok"
	}
	if useColor {
		if passed {
			fmt.Fprintf(w, "  \033[32m✓\033[0m %s\n", message)
		} else {
			fmt.Fprintf(w, "  \033[31m✗\033[0m %s\n", message)
		}
		return
	}
	fmt.Fprintf(w, "  [%s] %s\n", mark, message)
}
