package sfmcp

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/sfmcp/snowflake-mcp/internal/auth"
	"github.com/sfmcp/snowflake-mcp/internal/conn"
	"github.com/sfmcp/snowflake-mcp/internal/guidance"
	"github.com/sfmcp/snowflake-mcp/internal/permission"
	"github.com/sfmcp/snowflake-mcp/internal/sanitize"
	"github.com/sfmcp/snowflake-mcp/internal/sferror"
)

// SnowflakeMcp is the core engine behind the query and object management
// tools. All exported methods are safe for concurrent use; concurrent calls
// serialize on the single persistent Snowflake session.
type SnowflakeMcp struct {
	config    Config
	manager   *conn.Manager
	policy    *permission.Policy
	sanitizer *sanitize.Sanitizer
	guide     *guidance.Matcher
	logger    zerolog.Logger
}

// Option is a functional option for New().
type Option func(*options)

type options struct {
	env          auth.Environment
	opener       func(dsn string) (*sql.DB, error)
	loginTimeout time.Duration
}

// withOpener substitutes the driver used to open the connection pool.
// Used by tests.
func withOpener(f func(dsn string) (*sql.DB, error)) Option {
	return func(o *options) { o.opener = f }
}

// WithEnvironment overrides how the engine inspects the process environment
// during authentication resolution.
func WithEnvironment(env auth.Environment) Option {
	return func(o *options) { o.env = env }
}

// WithLoginTimeout bounds the initial connection handshake.
func WithLoginTimeout(d time.Duration) Option {
	return func(o *options) { o.loginTimeout = d }
}

// New creates a SnowflakeMcp engine and verifies the Snowflake connection.
// params carries the resolved connection parameters (the CLI builds them
// from flags, environment variables, and prompts). Panics on invalid config.
// Returns an error only for runtime failures, principally a connection that
// cannot be established or verified.
func New(ctx context.Context, params auth.Params, config Config, logger zerolog.Logger, opts ...Option) (*SnowflakeMcp, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	// Config validation. Invalid limits are programmer errors, not runtime
	// conditions.
	if config.Query.MaxSQLLength == 0 {
		config.Query.MaxSQLLength = 100000
	}
	if config.Query.MaxResultLength == 0 {
		config.Query.MaxResultLength = 100000
	}
	if config.Query.MaxSQLLength < 0 {
		panic("sfmcp: query.max_sql_length must be > 0")
	}
	if config.Query.MaxResultLength < 0 {
		panic("sfmcp: query.max_result_length must be > 0")
	}
	for _, e := range config.Permissions {
		if e.StatementType == "" {
			panic("sfmcp: sql_statement_permissions entry with empty statement type")
		}
	}

	policy := permission.NewPolicy(mapPermissionEntries(config.Permissions))

	san, err := sanitize.NewSanitizer(mapSanitizationRules(config.Sanitization))
	if err != nil {
		return nil, sferror.Configuration("invalid sanitization rule", err)
	}
	guide, err := guidance.NewMatcher(mapGuidanceRules(config.ErrorGuidance))
	if err != nil {
		return nil, sferror.Configuration("invalid error_guidance rule", err)
	}

	manager := conn.NewManager(conn.Options{
		Params:       params,
		Env:          o.env,
		Logger:       logger,
		LoginTimeout: o.loginTimeout,
		Opener:       o.opener,
	})

	engine := &SnowflakeMcp{
		config:    config,
		manager:   manager,
		policy:    policy,
		sanitizer: san,
		guide:     guide,
		logger:    logger,
	}

	if err := manager.Verify(ctx); err != nil {
		manager.Cleanup(ctx)
		return nil, sferror.Connection("query_manager", fmt.Errorf("failed to establish Snowflake connection: %w", err))
	}

	if policy.Empty() {
		logger.Warn().Msg("no sql statement permissions configured, every statement will be denied")
	} else {
		logger.Info().
			Int("allowed", policy.AllowedCount()).
			Int("disallowed", policy.DisallowedCount()).
			Msg("sql statement permissions loaded")
	}

	return engine, nil
}

// Close tears down the persistent connection. Close failures are logged,
// never returned; shutdown must not fail.
func (s *SnowflakeMcp) Close(ctx context.Context) {
	s.manager.Cleanup(ctx)
}

// mapPermissionEntries converts config entries to the policy's rule type.
func mapPermissionEntries(entries []PermissionEntry) []permission.Entry {
	result := make([]permission.Entry, len(entries))
	for i, e := range entries {
		result[i] = permission.Entry{
			StatementType: e.StatementType,
			Allowed:       e.Allowed,
		}
	}
	return result
}

// mapSanitizationRules converts config rules to the sanitizer's rule type.
func mapSanitizationRules(rules []SanitizationRule) []sanitize.Rule {
	result := make([]sanitize.Rule, len(rules))
	for i, r := range rules {
		result[i] = sanitize.Rule{
			Pattern:     r.Pattern,
			Replacement: r.Replacement,
		}
	}
	return result
}

// mapGuidanceRules converts config rules to the matcher's rule type.
func mapGuidanceRules(rules []GuidanceRule) []guidance.Rule {
	result := make([]guidance.Rule, len(rules))
	for i, r := range rules {
		result[i] = guidance.Rule{
			Pattern: r.Pattern,
			Hint:    r.Hint,
		}
	}
	return result
}
