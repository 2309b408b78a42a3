package sfmcp

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sfmcp/snowflake-mcp/internal/sferror"
)

// Config is the base configuration used by library mode via New().
type Config struct {
	Permissions   []PermissionEntry  `yaml:"sql_statement_permissions"`
	ErrorGuidance []GuidanceRule     `yaml:"error_guidance"`
	Sanitization  []SanitizationRule `yaml:"sanitization"`
	Query         QueryConfig        `yaml:"query"`
}

// ServerConfig embeds Config and adds server-only sections for CLI mode.
type ServerConfig struct {
	Config     `yaml:",inline"`
	Connection ConnectionConfig `yaml:"connection"`
	Server     ServerSettings   `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// PermissionEntry is one row of the sql_statement_permissions list. In YAML
// each entry is a single-key mapping from a statement type to a boolean:
//
//	sql_statement_permissions:
//	  - select: true
//	  - show: true
//	  - drop: false
//
// Entry order does not matter; duplicates are resolved by the policy (last
// write wins within each set, a disallow beats an allow for the same type).
type PermissionEntry struct {
	StatementType string
	Allowed       bool
}

// UnmarshalYAML decodes the single-key mapping form.
func (e *PermissionEntry) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode || len(value.Content) != 2 {
		return fmt.Errorf("sql_statement_permissions entries must each map one statement type to a boolean (line %d)", value.Line)
	}
	e.StatementType = value.Content[0].Value
	if err := value.Content[1].Decode(&e.Allowed); err != nil {
		return fmt.Errorf("sql_statement_permissions entry %q: %w", e.StatementType, err)
	}
	return nil
}

// MarshalYAML writes the entry back in the single-key mapping form.
func (e PermissionEntry) MarshalYAML() (interface{}, error) {
	return map[string]bool{e.StatementType: e.Allowed}, nil
}

// ConnectionConfig holds the non-secret connection parameters for CLI mode.
// Passwords and tokens never live in the config file; they come from
// environment variables or an interactive prompt.
type ConnectionConfig struct {
	Account        string `yaml:"account"`
	Host           string `yaml:"host"`
	User           string `yaml:"user"`
	Role           string `yaml:"role"`
	Warehouse      string `yaml:"warehouse"`
	Database       string `yaml:"database"`
	Schema         string `yaml:"schema"`
	Authenticator  string `yaml:"authenticator"`
	PrivateKeyFile string `yaml:"private_key_file"`
	ConnectionName string `yaml:"connection_name"`
}

// ServerSettings holds transport settings for CLI mode.
type ServerSettings struct {
	// Transport is "stdio" (default) or "http".
	Transport          string `yaml:"transport"`
	Port               int    `yaml:"port"`
	EndpointPath       string `yaml:"endpoint_path"`
	HealthCheckEnabled bool   `yaml:"health_check_enabled"`
	HealthCheckPath    string `yaml:"health_check_path"`
}

// LoggingConfig holds logging settings for CLI mode.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
	Output string `yaml:"output"` // stderr, stdout, or file path
}

// QueryConfig holds query execution limits.
type QueryConfig struct {
	MaxSQLLength    int `yaml:"max_sql_length"`
	MaxResultLength int `yaml:"max_result_length"`
}

// GuidanceRule maps a Snowflake error-message pattern to a hint appended to
// the error before it reaches the agent.
type GuidanceRule struct {
	Pattern string `yaml:"pattern" json:"pattern"`
	Hint    string `yaml:"hint" json:"hint"`
}

// SanitizationRule defines a regex replacement applied to every string field
// of every result row.
type SanitizationRule struct {
	Pattern     string `yaml:"pattern" json:"pattern"`
	Replacement string `yaml:"replacement" json:"replacement"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// LoadServerConfig reads and decodes a YAML service configuration file.
// Unknown keys are rejected so a typo fails at startup instead of silently
// disabling a section.
func LoadServerConfig(path string) (*ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, sferror.Configuration(fmt.Sprintf("failed to read config file %s", path), err)
	}
	return ParseServerConfig(data)
}

// ParseServerConfig decodes YAML configuration bytes.
func ParseServerConfig(data []byte) (*ServerConfig, error) {
	var cfg ServerConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, sferror.Configuration("failed to parse config file", err)
	}
	if cfg.Server.Transport == "" {
		cfg.Server.Transport = "stdio"
	}
	if cfg.Server.Transport != "stdio" && cfg.Server.Transport != "http" {
		return nil, sferror.Configuration(fmt.Sprintf("server.transport must be stdio or http, got %q", cfg.Server.Transport), nil)
	}
	return &cfg, nil
}
