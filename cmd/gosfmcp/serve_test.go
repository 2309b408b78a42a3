package main

import (
	"testing"

	"github.com/rs/zerolog"

	sfmcp "github.com/sfmcp/snowflake-mcp"
)

func TestResolveConnectionParamsFlagBeatsEnv(t *testing.T) {
	t.Setenv("SNOWFLAKE_ACCOUNT", "env-acct")
	t.Setenv("SNOWFLAKE_USER", "env-user")

	cmd := newServeCmd()
	if err := cmd.Flags().Set("account", "flag-acct"); err != nil {
		t.Fatalf("set flag: %v", err)
	}

	params := resolveConnectionParams(cmd, sfmcp.ConnectionConfig{})
	if params.Account != "flag-acct" {
		t.Errorf("Account = %q, want the flag value", params.Account)
	}
	if params.User != "env-user" {
		t.Errorf("User = %q, want the environment value", params.User)
	}
}

func TestResolveConnectionParamsEnvBeatsConfigFile(t *testing.T) {
	t.Setenv("SNOWFLAKE_WAREHOUSE", "env-wh")

	cmd := newServeCmd()
	params := resolveConnectionParams(cmd, sfmcp.ConnectionConfig{
		Warehouse: "file-wh",
		Role:      "file-role",
	})
	if params.Warehouse != "env-wh" {
		t.Errorf("Warehouse = %q, want the environment value", params.Warehouse)
	}
	if params.Role != "file-role" {
		t.Errorf("Role = %q, want the config file value", params.Role)
	}
}

func TestResolveConnectionParamsExplicitEmptyFlagWins(t *testing.T) {
	t.Setenv("SNOWFLAKE_ROLE", "env-role")

	cmd := newServeCmd()
	if err := cmd.Flags().Set("role", ""); err != nil {
		t.Fatalf("set flag: %v", err)
	}

	params := resolveConnectionParams(cmd, sfmcp.ConnectionConfig{Role: "file-role"})
	if params.Role != "" {
		t.Errorf("Role = %q, want the explicitly empty flag value", params.Role)
	}
}

func TestSetupLoggerLevels(t *testing.T) {
	t.Parallel()
	cases := []struct {
		level string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"bogus", zerolog.InfoLevel},
	}
	for _, tc := range cases {
		logger := setupLogger(sfmcp.LoggingConfig{Level: tc.level})
		if got := logger.GetLevel(); got != tc.want {
			t.Errorf("setupLogger level %q = %v, want %v", tc.level, got, tc.want)
		}
	}
}
